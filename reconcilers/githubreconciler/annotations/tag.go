/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package annotations

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
)

// tagPattern matches a hidden HTML comment on a single line. The JSON
// encoder escapes '<' and '>', so a tag never contains its own terminator.
var tagPattern = regexp.MustCompile(`<!--(.*?)-->`)

// Tag is the machine-readable trailer that gives a comment its logical id.
type Tag struct {
	ID       string          `json:"id"`
	Metadata json.RawMessage `json:"metadata"`
}

// Decode unmarshals the tag metadata into v.
func (t Tag) Decode(v any) error {
	if len(t.Metadata) == 0 {
		return errors.New("tag has no metadata")
	}
	if err := json.Unmarshal(t.Metadata, v); err != nil {
		return fmt.Errorf("decoding metadata of %q: %w", t.ID, err)
	}
	return nil
}

// Embed appends a tag carrying id and metadata to body. A nil metadata
// value is recorded as an empty object.
func Embed(body, id string, metadata any) (string, error) {
	if id == "" {
		return "", errors.New("annotation id is required")
	}
	if metadata == nil {
		metadata = struct{}{}
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("encoding metadata: %w", err)
	}
	tag, err := json.Marshal(Tag{ID: id, Metadata: raw})
	if err != nil {
		return "", fmt.Errorf("encoding tag: %w", err)
	}
	return body + "\n<!--" + string(tag) + "-->", nil
}

// Extract returns every well-formed tag found in body, in order. Hidden
// comments that are not tags are ignored.
func Extract(body string) []Tag {
	var tags []Tag
	for _, m := range tagPattern.FindAllStringSubmatch(body, -1) {
		var t Tag
		if err := json.Unmarshal([]byte(m[1]), &t); err != nil || t.ID == "" {
			continue
		}
		tags = append(tags, t)
	}
	return tags
}

// HasTag reports whether body carries a tag with the given id.
func HasTag(body, id string) bool {
	for _, t := range Extract(body) {
		if t.ID == id {
			return true
		}
	}
	return false
}
