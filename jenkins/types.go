/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package jenkins

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Build results reported by Jenkins.
const (
	ResultSuccess  = "SUCCESS"
	ResultUnstable = "UNSTABLE"
	ResultFailure  = "FAILURE"
	ResultNotBuilt = "NOT_BUILT"
	ResultAborted  = "ABORTED"
)

const (
	classLeftItem    = "hudson.model.Queue$LeftItem"
	classBlockedItem = "hudson.model.Queue$BlockedItem"
)

// Parameter is a single build parameter as reported inside an action.
type Parameter struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// String renders the parameter value the way it was submitted.
func (p Parameter) String() string {
	switch v := p.Value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
}

// Action is an entry of the polymorphic "actions" array. Only parameter
// actions are decoded.
type Action struct {
	Class      string      `json:"_class"`
	Parameters []Parameter `json:"parameters"`
}

// Actions is the list attached to queue items and builds.
type Actions []Action

// Parameter looks up a build parameter by name.
func (a Actions) Parameter(name string) (string, bool) {
	for _, act := range a {
		for _, p := range act.Parameters {
			if p.Name == name {
				return p.String(), true
			}
		}
	}
	return "", false
}

// Task names the job a queue item belongs to.
type Task struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// BuildRef identifies a build by number and URL.
type BuildRef struct {
	Number int    `json:"number"`
	URL    string `json:"url"`
}

// QueueItem is a pending or recently started build request.
type QueueItem struct {
	Class      string    `json:"_class"`
	ID         int64     `json:"id"`
	URL        string    `json:"url"`
	Blocked    bool      `json:"blocked"`
	Buildable  bool      `json:"buildable"`
	Stuck      bool      `json:"stuck"`
	Cancelled  bool      `json:"cancelled"`
	Why        string    `json:"why"`
	Task       Task      `json:"task"`
	Executable *BuildRef `json:"executable"`
	Actions    Actions   `json:"actions"`
}

// LeftQueue reports whether the item has been handed to an executor.
func (q *QueueItem) LeftQueue() bool {
	return q.Class == classLeftItem || q.Executable != nil
}

// IsBlocked reports whether the item waits on a blocking condition, such as
// another build of the same job.
func (q *QueueItem) IsBlocked() bool {
	return q.Blocked || q.Class == classBlockedItem
}

// Artifact is a file archived by a build.
type Artifact struct {
	DisplayPath  string `json:"displayPath"`
	FileName     string `json:"fileName"`
	RelativePath string `json:"relativePath"`
}

// Build is a single execution of a job.
type Build struct {
	Number          int        `json:"number"`
	URL             string     `json:"url"`
	FullDisplayName string     `json:"fullDisplayName"`
	Building        bool       `json:"building"`
	Result          *string    `json:"result"`
	Duration        int64      `json:"duration"`
	KeepLog         bool       `json:"keepLog"`
	Timestamp       int64      `json:"timestamp"`
	Actions         Actions    `json:"actions"`
	Artifacts       []Artifact `json:"artifacts"`
}

// Finished reports whether Jenkins has recorded a result.
func (b *Build) Finished() bool { return b.Result != nil && *b.Result != "" }

// Job is a buildable project and its build history.
type Job struct {
	Name     string     `json:"name"`
	FullName string     `json:"fullName"`
	URL      string     `json:"url"`
	Builds   []BuildRef `json:"builds"`
}

// Queue is the controller-wide build queue.
type Queue struct {
	Items []QueueItem `json:"items"`
}

// TestCase is a single test case in a report.
type TestCase struct {
	ClassName string  `json:"className"`
	Name      string  `json:"name"`
	Status    string  `json:"status"`
	Duration  float64 `json:"duration"`
}

// Failed reports whether the case counts as a failure.
func (tc TestCase) Failed() bool {
	return tc.Status == "FAILED" || tc.Status == "REGRESSION"
}

// TestSuite groups test cases.
type TestSuite struct {
	Name  string     `json:"name"`
	Cases []TestCase `json:"cases"`
}

// TestReport is the aggregated JUnit result of a build.
type TestReport struct {
	Class     string      `json:"_class"`
	PassCount int         `json:"passCount"`
	FailCount int         `json:"failCount"`
	SkipCount int         `json:"skipCount"`
	Suites    []TestSuite `json:"suites"`
}

// FailedCases returns every failed case across suites.
func (r *TestReport) FailedCases() []TestCase {
	var out []TestCase
	for _, s := range r.Suites {
		for _, c := range s.Cases {
			if c.Failed() {
				out = append(out, c)
			}
		}
	}
	return out
}

// CaseURL links to the page Jenkins renders for a single test case of the
// build at buildURL.
func CaseURL(buildURL string, tc TestCase) string {
	pkg, class := "(root)", tc.ClassName
	if i := strings.LastIndex(tc.ClassName, "."); i >= 0 {
		pkg, class = tc.ClassName[:i], tc.ClassName[i+1:]
	}
	return fmt.Sprintf("%stestReport/%s/%s/%s/",
		strings.TrimSuffix(buildURL, "/")+"/", safeName(pkg), safeName(class), safeName(tc.Name))
}

// safeName mirrors the escaping Jenkins applies to test names in URLs.
func safeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '(', r == ')', r == '-':
			return r
		}
		return '_'
	}, s)
}
