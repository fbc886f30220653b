/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package githubreconciler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const prEvent = `{
  "action": "synchronize",
  "number": 42,
  "pull_request": {
    "number": 42,
    "draft": true,
    "head": {"ref": "feature", "sha": "abc123", "repo": {"clone_url": "https://github.com/fork/app.git"}},
    "base": {"ref": "main", "repo": {"full_name": "acme/app"}}
  }
}`

func TestParseEvent(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name    string
		payload string
		want    *Resource
		wantErr bool
	}{{
		name:    "pull request",
		payload: prEvent,
		want: &Resource{
			Owner:        "acme",
			Repo:         "app",
			Number:       42,
			HeadCloneURL: "https://github.com/fork/app.git",
			HeadRef:      "feature",
			HeadSHA:      "abc123",
			Draft:        true,
		},
	}, {
		name:    "push event",
		payload: `{"ref": "refs/heads/main"}`,
		wantErr: true,
	}, {
		name:    "malformed base",
		payload: `{"number": 1, "pull_request": {"base": {"repo": {"full_name": "acme"}}}}`,
		wantErr: true,
	}, {
		name:    "not json",
		payload: `{`,
		wantErr: true,
	}} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseEvent([]byte(tc.payload))
			if (err != nil) != tc.wantErr {
				t.Fatalf("ParseEvent() = %v, wanted error = %v", err, tc.wantErr)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("ParseEvent() (-want, +got) = %s", diff)
			}
		})
	}
}

func TestLoadEvent(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "event.json")
	require.NoError(t, os.WriteFile(path, []byte(prEvent), 0o600))

	res, err := LoadEvent(path)
	require.NoError(t, err)
	require.Equal(t, "acme/app#42", res.String())
	require.Equal(t, "https://github.com/fork/app.git#feature", res.CorrelationToken())

	_, err = LoadEvent("")
	require.Error(t, err)
}
