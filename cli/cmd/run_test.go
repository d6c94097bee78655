package cmd

import (
	"testing"
)

func TestParseMetadata(t *testing.T) {
	metadata, err := parseMetadata(`{"team":"infra","owner":"amy"}`)
	if err != nil {
		t.Fatalf("parseMetadata: %v", err)
	}
	if metadata["team"] != "infra" || metadata["owner"] != "amy" {
		t.Errorf("metadata = %v", metadata)
	}

	metadata, err = parseMetadata("")
	if err != nil {
		t.Fatalf("empty input: %v", err)
	}
	if metadata != nil {
		t.Errorf("empty input should yield nil, got %v", metadata)
	}

	for _, bad := range []string{
		"not json",
		`["a","b"]`,
		`{"nested":{"x":1}}`,
	} {
		if _, err := parseMetadata(bad); err == nil {
			t.Errorf("parseMetadata(%q) should fail", bad)
		}
	}
}
