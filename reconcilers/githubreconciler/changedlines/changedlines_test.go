/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package changedlines

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"

	"chainguard.dev/prbuild/reconcilers/githubreconciler"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-github/v84/github"
	"github.com/stretchr/testify/require"
)

func TestFromPatch(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name  string
		patch string
		want  *File
	}{{
		name: "modified",
		patch: "@@ -1,4 +1,5 @@\n" +
			" package a\n" +
			"-import old\n" +
			"+import new\n" +
			"+import extra\n" +
			" \n" +
			" func A() {}\n" +
			"@@ -20,2 +21,3 @@ func B() {\n" +
			" \tx := 1\n" +
			"+\ty := 2\n" +
			" }\n",
		want: &File{Path: "a.go", LineNumbers: []int{2, 3, 22}},
	}, {
		name:  "new file",
		patch: "@@ -0,0 +1,2 @@\n+line one\n+line two",
		want:  &File{Path: "a.go", LineNumbers: []int{1, 2}, IsNewFile: true},
	}, {
		name:  "only removals",
		patch: "@@ -1,2 +1,1 @@\n keep\n-drop\n",
		want:  &File{Path: "a.go"},
	}, {
		name: "binary",
		want: &File{Path: "a.go"},
	}} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := FromPatch("a.go", tc.patch)
			require.NoError(t, err)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("FromPatch() (-want, +got) = %s", diff)
			}
		})
	}
}

type fakeFiles struct {
	pages [][]*github.CommitFile
}

func (f *fakeFiles) ListFiles(_ context.Context, _, _ string, _ int, opts *github.ListOptions) ([]*github.CommitFile, *github.Response, error) {
	p := max(opts.Page, 1)
	resp := &github.Response{}
	if p < len(f.pages) {
		resp.NextPage = p + 1
	}
	return f.pages[p-1], resp, nil
}

func TestCollectAndEncode(t *testing.T) {
	t.Parallel()
	client := &fakeFiles{pages: [][]*github.CommitFile{{
		{Filename: github.Ptr("src/A.java"), Patch: github.Ptr("@@ -1,1 +1,2 @@\n class A {}\n+// note\n")},
	}, {
		{Filename: github.Ptr("logo.png")},
		{Filename: github.Ptr("src/B.java"), Patch: github.Ptr("@@ -0,0 +1,1 @@\n+class B {}\n")},
	}}}

	files, err := ListFiles(context.Background(), client, &githubreconciler.Resource{Owner: "acme", Repo: "app", Number: 1})
	require.NoError(t, err)
	require.Len(t, files, 3)

	got, err := Collect(context.Background(), files)
	require.NoError(t, err)
	want := []File{
		{Path: "src/A.java", LineNumbers: []int{2}},
		{Path: "src/B.java", LineNumbers: []int{1}, IsNewFile: true},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Collect() (-want, +got) = %s", diff)
	}

	enc, err := Encode(got)
	require.NoError(t, err)
	raw, err := base64.StdEncoding.DecodeString(enc)
	require.NoError(t, err)
	var decoded []File
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, want, decoded)

	empty, err := Encode(nil)
	require.NoError(t, err)
	require.Equal(t, base64.StdEncoding.EncodeToString([]byte("[]")), empty)
}
