// Package models holds the records persisted by the storage layer.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Variables is a free-form JSON object kept in a JSONB column, such as the
// transient readings of an eNodeB or the details of an event
type Variables map[string]interface{}

// Value implements driver.Valuer. Empty maps are stored as {}.
func (v Variables) Value() (driver.Value, error) {
	if len(v) == 0 {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode variables: %w", err)
	}
	return b, nil
}

// Scan implements sql.Scanner
func (v *Variables) Scan(src interface{}) error {
	var raw []byte
	switch s := src.(type) {
	case nil:
		*v = Variables{}
		return nil
	case []byte:
		raw = s
	case string:
		raw = []byte(s)
	default:
		return fmt.Errorf("scan variables: unsupported type %T", src)
	}

	out := Variables{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("decode variables: %w", err)
	}
	*v = out
	return nil
}
