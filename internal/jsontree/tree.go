// Package jsontree handles untyped JSON documents: parsing, canonical
// rendering, deep equality and diffs. It backs the full-body comparison that
// catches fields a typed model would silently drop.
package jsontree

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
)

// Parse decodes raw JSON into a generic tree of maps, slices and scalars.
// Numbers stay json.Number so 2 and 2.0 differ and large integers keep
// every digit.
func Parse(data []byte) (any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("parse json: empty document")
	}
	if !json.Valid(data) {
		var discard any
		if err := json.Unmarshal(data, &discard); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
		return nil, fmt.Errorf("parse json: invalid document")
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	return tree, nil
}

// Canonical renders tree as indented JSON with object keys sorted.
func Canonical(tree any) ([]byte, error) {
	out, err := json.MarshalIndent(tree, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return out, nil
}

// Equal reports whether two trees are structurally identical.
func Equal(expected, actual any) bool {
	return cmp.Equal(expected, actual)
}

// Diff returns a readable (-expected +actual) diff, or "" when the trees match.
func Diff(expected, actual any) string {
	return cmp.Diff(expected, actual)
}

// EqualBytes parses both documents and compares the resulting trees.
func EqualBytes(expected, actual []byte) (bool, error) {
	exp, err := Parse(expected)
	if err != nil {
		return false, fmt.Errorf("expected: %w", err)
	}
	act, err := Parse(actual)
	if err != nil {
		return false, fmt.Errorf("actual: %w", err)
	}
	return Equal(exp, act), nil
}
