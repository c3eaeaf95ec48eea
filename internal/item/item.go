// Package item defines the unit of work flowing through grading pipelines:
// one submission, its free-form source fields, and the results steps have
// recorded against it.
package item

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Item is one submission. Key identifies it within its source, Path is the
// directory holding its files, Steps maps step names to recorded results,
// and Fields carries whatever else the source knows about it (author,
// timestamps, ids), possibly nested.
type Item struct {
	Key    string
	Path   string
	Steps  map[string]Result
	Fields map[string]any
}

// New returns an empty item with initialized maps.
func New(key, path string) *Item {
	return &Item{
		Key:    key,
		Path:   path,
		Steps:  map[string]Result{},
		Fields: map[string]any{},
	}
}

// HasStep reports whether a result is recorded under name.
func (it *Item) HasStep(name string) bool {
	_, ok := it.Steps[name]
	return ok
}

// SetStep records a result, replacing any previous one.
func (it *Item) SetStep(name string, r Result) {
	if it.Steps == nil {
		it.Steps = map[string]Result{}
	}
	it.Steps[name] = r
}

// Field resolves a dotted path against the item. "key" and "path" resolve to
// the identity fields; anything else walks nested Fields maps, so "user.id"
// reads Fields["user"]["id"].
func (it *Item) Field(path string) (any, bool) {
	switch path {
	case "key":
		return it.Key, true
	case "path":
		return it.Path, true
	}
	var cur any = it.Fields
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// FieldString resolves a dotted path and renders the value as a string.
// Numbers render without an exponent so ids survive the trip.
func (it *Item) FieldString(path string) (string, bool) {
	v, ok := it.Field(path)
	if !ok {
		return "", false
	}
	return Stringify(v)
}

// SetField writes a dotted path into Fields, creating intermediate maps.
func (it *Item) SetField(path string, value any) {
	if it.Fields == nil {
		it.Fields = map[string]any{}
	}
	parts := strings.Split(path, ".")
	cur := it.Fields
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[part] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = value
}

// Stringify renders a scalar document value as a string.
func Stringify(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case json.Number:
		return val.String(), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case int:
		return strconv.Itoa(val), true
	case bool:
		return strconv.FormatBool(val), true
	default:
		return "", false
	}
}

// MarshalJSON writes the document form: key, path, and steps alongside the
// spread source fields.
func (it *Item) MarshalJSON() ([]byte, error) {
	doc := make(map[string]any, len(it.Fields)+3)
	for k, v := range it.Fields {
		switch k {
		case "key", "path", "steps":
			return nil, fmt.Errorf("item: field uses reserved key %q", k)
		}
		doc[k] = v
	}
	doc["key"] = it.Key
	doc["path"] = it.Path
	doc["steps"] = it.Steps
	return json.Marshal(doc)
}

// UnmarshalJSON restores an item from its document form.
func (it *Item) UnmarshalJSON(data []byte) error {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	out := Item{
		Steps:  map[string]Result{},
		Fields: map[string]any{},
	}
	for k, raw := range doc {
		switch k {
		case "key":
			if err := json.Unmarshal(raw, &out.Key); err != nil {
				return fmt.Errorf("item: decode key: %w", err)
			}
		case "path":
			if err := json.Unmarshal(raw, &out.Path); err != nil {
				return fmt.Errorf("item: decode path: %w", err)
			}
		case "steps":
			if err := json.Unmarshal(raw, &out.Steps); err != nil {
				return fmt.Errorf("item: decode steps: %w", err)
			}
		default:
			var v any
			if err := json.Unmarshal(raw, &v); err != nil {
				return fmt.Errorf("item: decode field %s: %w", k, err)
			}
			out.Fields[k] = v
		}
	}
	*it = out
	return nil
}
