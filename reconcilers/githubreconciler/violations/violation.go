/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package violations

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/md5" //nolint: gosec
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strconv"

	"github.com/chainguard-dev/clog"
)

// ReportName is the file name of a violation report inside an archive.
const ReportName = "violations.json"

// Violation is a single static analysis finding.
type Violation struct {
	Message  string `json:"message"`
	File     string `json:"file"`
	Severity string `json:"severity"`
	Category string `json:"category"`
	Line     int    `json:"lineNumber"`
}

// Hash fingerprints the violation. Two violations with the same hash are
// the same finding.
func (v Violation) Hash() string {
	sum := md5.Sum([]byte(v.Message + v.File + v.Severity + v.Category + strconv.Itoa(v.Line))) //nolint: gosec
	return hex.EncodeToString(sum[:])
}

func (v Violation) String() string {
	msg := v.Message
	if r := []rune(msg); len(r) > 50 {
		msg = string(r[:50]) + "..."
	}
	return fmt.Sprintf("%s:%d [%s/%s] %s", v.File, v.Line, v.Severity, v.Category, msg)
}

var requiredKeys = []string{"message", "file", "severity", "category", "lineNumber"}

// ParseReport decodes a violation report. Entries missing a required key,
// or with a malformed value, are skipped with a warning.
func ParseReport(ctx context.Context, name string, data []byte) ([]Violation, error) {
	var items []map[string]json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", name, err)
	}

	log := clog.FromContext(ctx).With("report", name)
	out := make([]Violation, 0, len(items))
	for i, item := range items {
		complete := true
		for _, k := range requiredKeys {
			if _, ok := item[k]; !ok {
				complete = false
				break
			}
		}
		if !complete {
			log.With("index", i).Warn("Skipping incomplete violation")
			continue
		}
		raw, _ := json.Marshal(item)
		var v Violation
		if err := json.Unmarshal(raw, &v); err != nil {
			log.With("index", i).Warnf("Skipping malformed violation: %v", err)
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// ParseArchive reads every violation report in a zip archive. Reports
// that cannot be decoded are skipped with a warning.
func ParseArchive(ctx context.Context, archive []byte) ([]Violation, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}

	var all []Violation
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || path.Base(f.Name) != ReportName {
			continue
		}
		data, err := readFile(f)
		if err != nil {
			clog.FromContext(ctx).With("report", f.Name).Warnf("Skipping unreadable report: %v", err)
			continue
		}
		vs, err := ParseReport(ctx, f.Name, data)
		if err != nil {
			clog.FromContext(ctx).With("report", f.Name).Warnf("Skipping report: %v", err)
			continue
		}
		all = append(all, vs...)
	}
	return all, nil
}

func readFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(io.LimitReader(rc, 32<<20))
}
