/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"chainguard.dev/prbuild/jenkins"
	"chainguard.dev/prbuild/reconcilers/githubreconciler"
	"chainguard.dev/prbuild/reconcilers/githubreconciler/annotations"
	"chainguard.dev/prbuild/retry"
	"github.com/chainguard-dev/clog"
)

type jenkinsConfig struct {
	URL      string `env:"INPUT_URL,required"`
	Username string `env:"INPUT_USERNAME"`
	APIToken string `env:"INPUT_API_TOKEN"`
}

func (c jenkinsConfig) client(ctx context.Context) (*jenkins.Client, error) {
	if c.Username == "" || c.APIToken == "" {
		clog.InfoContextf(ctx, "Username or token not provided, connecting to Jenkins without authentication")
	}
	return jenkins.New(c.URL, jenkins.WithBasicAuth(c.Username, c.APIToken))
}

type githubConfig struct {
	AccessToken    string `env:"INPUT_ACCESS_TOKEN"`
	AppID          int64  `env:"INPUT_APP_ID"`
	InstallationID int64  `env:"INPUT_INSTALLATION_ID"`
	PrivateKey     string `env:"INPUT_APP_PRIVATE_KEY"`

	APIURL     string `env:"GITHUB_API_URL"`
	GraphQLURL string `env:"GITHUB_GRAPHQL_URL"`
	EventPath  string `env:"GITHUB_EVENT_PATH,required"`
}

// pullRequest is the pull request an action run is about, with clients
// to talk to GitHub on its behalf.
type pullRequest struct {
	res     *githubreconciler.Resource
	clients *githubreconciler.Clients
}

func (c githubConfig) pullRequest(ctx context.Context) (*pullRequest, error) {
	res, err := githubreconciler.LoadEvent(c.EventPath)
	if err != nil {
		return nil, err
	}
	clients, err := githubreconciler.NewClients(ctx, githubreconciler.Credentials{
		Token:          c.AccessToken,
		AppID:          c.AppID,
		InstallationID: c.InstallationID,
		PrivateKey:     []byte(c.PrivateKey),
		APIURL:         c.APIURL,
		GraphQLURL:     c.GraphQLURL,
	})
	if err != nil {
		return nil, err
	}
	return &pullRequest{res: res, clients: clients}, nil
}

// store returns the annotation store of the pull request, or nil when
// GitHub cannot be written to.
func (p *pullRequest) store() *annotations.Store {
	if p.clients.Anonymous {
		return nil
	}
	return annotations.New(p.clients.REST.Issues, p.res)
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func phase(timeout, interval int) (retry.Config, error) {
	cfg := retry.Config{Timeout: seconds(timeout), Interval: seconds(interval)}
	return cfg, cfg.Validate()
}

// splitList splits a comma separated list, dropping empty entries.
func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseParameters decodes the JSON object of build parameters into the
// string form Jenkins expects.
func parseParameters(s string) (map[string]string, error) {
	out := map[string]string{}
	if strings.TrimSpace(s) == "" {
		return out, nil
	}
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parameters is not valid JSON: %w", err)
	}
	for k, v := range raw {
		switch v := v.(type) {
		case nil:
			out[k] = ""
		case string:
			out[k] = v
		case bool:
			out[k] = strconv.FormatBool(v)
		case json.Number:
			out[k] = v.String()
		default:
			b, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("encoding parameter %s: %w", k, err)
			}
			out[k] = string(b)
		}
	}
	return out, nil
}

// writeOutput appends a step output to the file GitHub Actions collects
// them from.
func writeOutput(path, name, value string) error {
	if path == "" {
		return errors.New("GITHUB_OUTPUT is not set")
	}
	if strings.ContainsAny(value, "\r\n") {
		return fmt.Errorf("output %s must fit on a single line", name)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint: gosec
	if err != nil {
		return fmt.Errorf("opening step outputs: %w", err)
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, "%s=%s\n", name, value); err != nil {
		return fmt.Errorf("writing output %s: %w", name, err)
	}
	return nil
}

// compactJSON renders v on one line without HTML escaping.
func compactJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
