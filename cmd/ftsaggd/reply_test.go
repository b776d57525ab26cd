package main

import (
	"testing"

	"aggsearch/internal/lookup"
	"aggsearch/internal/rp"
	"aggsearch/internal/value"
)

func TestRenderRows_HidesNonVisibleKeys(t *testing.T) {
	lk := lookup.New()
	title, _ := lk.GetOrAdd("title", lookup.Flags{Loaded: true})
	_, _ = lk.GetOrAdd("__score_bm25", lookup.Flags{Source: lookup.SourceComputed, Hidden: true})

	row := lookup.NewRow(lk.Len())
	row.Set(title.Slot, value.String("hello world"))

	rows := []rp.SearchResult{{DocID: 7, Score: 1.5, Row: row}}
	out := renderRows(rows, lk)

	if len(out) != 1 {
		t.Fatalf("expected 1 row, got %d", len(out))
	}
	if out[0].DocID != 7 || out[0].Score != 1.5 {
		t.Fatalf("unexpected docId/score: %+v", out[0])
	}
	if len(out[0].Fields) != 1 {
		t.Fatalf("expected only the visible key, got %v", out[0].Fields)
	}
	if out[0].Fields["title"] != "hello world" {
		t.Fatalf("unexpected title field: %v", out[0].Fields["title"])
	}
}

func TestRenderRows_NilLookupYieldsNoFields(t *testing.T) {
	row := lookup.NewRow(0)
	rows := []rp.SearchResult{{DocID: 1, Score: 0, Row: row}}
	out := renderRows(rows, nil)
	if len(out) != 1 || len(out[0].Fields) != 0 {
		t.Fatalf("expected empty fields for a nil lookup, got %+v", out)
	}
}

func TestValueToNative_RecursesArraysAndMaps(t *testing.T) {
	m := value.NewOrderedMap()
	m.Set("count", value.Number(3))
	m.Set("tags", value.Array([]value.Value{value.String("a"), value.String("b")}))

	got := valueToNative(value.Map(m))
	asMap, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("expected map[string]any, got %T", got)
	}
	if asMap["count"] != float64(3) {
		t.Fatalf("unexpected count: %v", asMap["count"])
	}
	tags, ok := asMap["tags"].([]any)
	if !ok || len(tags) != 2 || tags[0] != "a" || tags[1] != "b" {
		t.Fatalf("unexpected tags: %v", asMap["tags"])
	}
}

func TestValueToNative_Null(t *testing.T) {
	if got := valueToNative(value.Null); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}
