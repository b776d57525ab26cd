package main

import (
	"aggsearch/internal/lookup"
	"aggsearch/internal/rp"
	"aggsearch/internal/value"
)

// rowReply is one SearchResult rendered for the wire: the fields a
// client actually asked to see (Lookup.VisibleKeys), plus doc id and
// score.
type rowReply struct {
	DocID  uint64         `json:"docId"`
	Score  float64        `json:"score"`
	Fields map[string]any `json:"fields,omitempty"`
}

// renderRows converts a drained batch of SearchResults into JSON-friendly
// rows, reading only the keys VisibleKeys says belong in a reply — a
// GROUP's hidden pre-group columns and a HYBRID branch's raw per-leg
// scores never leak into the client-visible shape.
func renderRows(rows []rp.SearchResult, lk *lookup.Lookup) []rowReply {
	var visible []lookup.Key
	if lk != nil {
		visible = lk.VisibleKeys()
	}
	out := make([]rowReply, len(rows))
	for i, r := range rows {
		fields := make(map[string]any, len(visible))
		if r.Row != nil {
			for _, k := range visible {
				v, ok := r.Row.GetByKey(&k)
				if !ok {
					continue
				}
				fields[k.Name] = valueToNative(v)
			}
		}
		out[i] = rowReply{DocID: r.DocID, Score: r.Score, Fields: fields}
	}
	return out
}

// valueToNative converts a value.Value into a plain Go value encoding/json
// already knows how to marshal, recursing through arrays and maps.
func valueToNative(v value.Value) any {
	v = v.Deref()
	switch v.Kind() {
	case value.KindNull:
		return nil
	case value.KindNumber:
		n, _ := v.Number()
		return n
	case value.KindString:
		return v.String()
	case value.KindArray:
		elems := v.Elements()
		out := make([]any, len(elems))
		for i, e := range elems {
			out[i] = valueToNative(e)
		}
		return out
	case value.KindMap:
		return mapToNative(v)
	default:
		return v.String()
	}
}

func mapToNative(v value.Value) any {
	m := v.AsMap()
	if m == nil {
		return nil
	}
	out := make(map[string]any, m.Len())
	for _, k := range m.Keys() {
		fv, _ := m.Get(k)
		out[k] = valueToNative(fv)
	}
	return out
}
