package database

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONValue marshals v for a JSONB column.
func JSONValue(v any) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// ScanJSON decodes a JSONB column into dst. A NULL column leaves dst untouched.
func ScanJSON(src any, dst any) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("jsonb: unsupported column type %T", src)
	}
	return json.Unmarshal(b, dst)
}
