package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ID is a marketplace listing id. The search API and older data files
// encode it as either a JSON string or a number; it is always written back
// as a string.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// UnmarshalJSON decodes a stored listing, accepting numeric ids.
func (l *EnrichedListing) UnmarshalJSON(b []byte) error {
	type plain EnrichedListing
	aux := struct {
		ID ID `json:"id"`
		*plain
	}{plain: (*plain)(l)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	l.ID = string(aux.ID)
	return nil
}
