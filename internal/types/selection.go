package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// SelectionEntry selects one variant for one dimension
type SelectionEntry struct {
	DimensionID string
	VariantID   string
}

// Selection maps dimension ids to variant ids and remembers insertion order.
// The order decides precedence when variables are combined, so it survives
// a JSON round trip: the object is written and read key by key.
type Selection []SelectionEntry

// Get returns the variant selected for a dimension
func (s Selection) Get(dimensionID string) (string, bool) {
	for _, e := range s {
		if e.DimensionID == dimensionID {
			return e.VariantID, true
		}
	}
	return "", false
}

// Set selects a variant. An existing dimension keeps its position; a new one
// is appended.
func (s Selection) Set(dimensionID, variantID string) Selection {
	for i := range s {
		if s[i].DimensionID == dimensionID {
			out := s.Clone()
			out[i].VariantID = variantID
			return out
		}
	}
	return append(s.Clone(), SelectionEntry{DimensionID: dimensionID, VariantID: variantID})
}

// Delete removes the selection of a dimension
func (s Selection) Delete(dimensionID string) Selection {
	out := make(Selection, 0, len(s))
	for _, e := range s {
		if e.DimensionID != dimensionID {
			out = append(out, e)
		}
	}
	return out
}

// Clone returns an independent copy
func (s Selection) Clone() Selection {
	if s == nil {
		return nil
	}
	out := make(Selection, len(s))
	copy(out, s)
	return out
}

// MarshalJSON writes the selection as an object in insertion order
func (s Selection) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.DimensionID)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(e.VariantID)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object keeping key order. A repeated key keeps the
// position of its first occurrence and the value of its last.
func (s *Selection) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("failed to read selection: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("selection must be a JSON object")
	}

	var out Selection
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("failed to read selection key: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("selection key must be a string")
		}
		var value string
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("selection value for %q must be a string: %w", key, err)
		}
		out = out.Set(key, value)
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("failed to read selection: %w", err)
	}

	*s = out
	return nil
}
