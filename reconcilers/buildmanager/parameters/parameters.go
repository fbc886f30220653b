/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package parameters selects additional build parameters from the set of
// files a pull request touches.
//
// The configuration is a YAML (or JSON) document of the form:
//
//	parameters_by_path:
//	- path_patterns: ["docs/**", "*.md"]
//	  extra_parameters:
//	    SKIP_TESTS: true
//
// Patterns are shell-style globs matched against the whole path: `*` and
// `?` never cross a `/`, `**` does, and a leading `**/` also matches files
// in the base directory.
package parameters

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rule maps a set of path patterns to the parameters they enable.
type Rule struct {
	PathPatterns    []string       `json:"path_patterns" yaml:"path_patterns" jsonschema:"required,minItems=1,description=Glob patterns matched against changed paths"`
	ExtraParameters map[string]any `json:"extra_parameters" yaml:"extra_parameters" jsonschema:"required,description=Parameters added when any pattern matches"`

	compiled []*regexp.Regexp
}

// Config is the parsed configuration file.
type Config struct {
	ParametersByPath []*Rule `json:"parameters_by_path" yaml:"parameters_by_path" jsonschema:"required"`
}

// Load reads and compiles the configuration at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening parameters config: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes and compiles a configuration document.
func Parse(r io.Reader) (*Config, error) {
	var cfg Config
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("decoding parameters config: %w", err)
	}
	for i, rule := range cfg.ParametersByPath {
		if rule == nil {
			return nil, fmt.Errorf("parameters_by_path[%d] is empty", i)
		}
		for _, p := range rule.PathPatterns {
			re, err := Compile(p)
			if err != nil {
				return nil, fmt.Errorf("parameters_by_path[%d]: %w", i, err)
			}
			rule.compiled = append(rule.compiled, re)
		}
	}
	return &cfg, nil
}

// Matches reports whether any of the files matches one of the rule's patterns.
func (r *Rule) Matches(files []string) bool {
	for _, re := range r.compiled {
		if slices.ContainsFunc(files, re.MatchString) {
			return true
		}
	}
	return false
}

// ExtraParameters merges the parameters of every rule matching files, in
// file order, so later rules override earlier ones.
func (c *Config) ExtraParameters(files []string) map[string]any {
	out := make(map[string]any)
	for _, rule := range c.ParametersByPath {
		if rule.Matches(files) {
			maps.Copy(out, rule.ExtraParameters)
		}
	}
	return out
}

// Compile translates a glob into an anchored regular expression.
func Compile(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("^(?s:" + translate(pattern) + ")$")
	if err != nil {
		return nil, fmt.Errorf("compiling pattern %q: %w", pattern, err)
	}
	return re, nil
}

func translate(pat string) string {
	var sb strings.Builder
	for i := 0; i < len(pat); {
		c := pat[i]
		i++
		switch c {
		case '*':
			if i < len(pat) && pat[i] == '*' {
				i++
				// **/ consumes its slash: it matches the base directory, and
				// a/**/b also matches a/xb.
				if i < len(pat) && pat[i] == '/' {
					i++
				}
				sb.WriteString(".*")
				continue
			}
			sb.WriteString("[^/]*")
		case '?':
			sb.WriteString("[^/]")
		case '[':
			j := i
			if j < len(pat) && pat[j] == '!' {
				j++
			}
			if j < len(pat) && pat[j] == ']' {
				j++
			}
			for j < len(pat) && pat[j] != ']' {
				j++
			}
			if j >= len(pat) {
				sb.WriteString(`\[`)
				continue
			}
			set := strings.ReplaceAll(pat[i:j], `\`, `\\`)
			i = j + 1
			switch {
			case strings.HasPrefix(set, "!"):
				set = "^/" + set[1:]
			case strings.HasPrefix(set, "^"), strings.HasPrefix(set, "["):
				set = `\` + set
			}
			sb.WriteString("[" + set + "]")
		default:
			sb.WriteString(regexp.QuoteMeta(pat[i-1 : i]))
		}
	}
	return sb.String()
}
