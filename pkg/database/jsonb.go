package database

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONB scans a json/jsonb column into T. A NULL column leaves Data at its zero value.
type JSONB[T any] struct {
	Data  T
	Valid bool
}

func (p *JSONB[T]) Scan(src any) error {
	var zero T
	p.Data = zero
	p.Valid = false

	var b []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("JSONB.Scan: expected []byte, got %T", src)
	}

	if err := json.Unmarshal(b, &p.Data); err != nil {
		return fmt.Errorf("JSONB.Scan: %w", err)
	}
	p.Valid = true
	return nil
}

func (p JSONB[T]) Value() (driver.Value, error) {
	if !p.Valid {
		return nil, nil
	}
	return json.Marshal(p.Data)
}
