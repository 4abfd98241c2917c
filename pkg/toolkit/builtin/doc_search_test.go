package toolbuiltin

import (
	"context"
	"strings"
	"testing"
)

func TestDocSearchToolGuards(t *testing.T) {
	tool := NewDocSearchTool(nil, "search_docs")

	if _, err := tool.Execute(nil, map[string]interface{}{"query": "x"}); err == nil || !strings.Contains(err.Error(), "context is nil") {
		t.Fatalf("expected nil-context error, got %v", err)
	}

	if _, err := tool.Execute(context.Background(), map[string]interface{}{"query": "x"}); err == nil || !strings.Contains(err.Error(), "not configured") {
		t.Fatalf("expected unconfigured-client error, got %v", err)
	}
}

func TestDocSearchToolSchemaAndName(t *testing.T) {
	tool := NewDocSearchTool(nil, "search_docs")
	if tool.Name() != "doc_search" {
		t.Fatalf("unexpected name %q", tool.Name())
	}
	schema := tool.Schema()
	if schema == nil || schema.Type != "object" {
		t.Fatalf("unexpected schema %+v", schema)
	}
	found := false
	for _, r := range schema.Required {
		if r == "query" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected query to be required, schema=%+v", schema)
	}
}

func TestSummarizePassages(t *testing.T) {
	passages := []map[string]any{
		{"text": "first"},
		{"text": "second"},
	}
	got := summarizePassages(passages)
	if got != "first\n\nsecond" {
		t.Fatalf("unexpected summary: %q", got)
	}
}
