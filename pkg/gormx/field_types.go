package gormx

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

// RawJson stores an already encoded JSON document as text.
type RawJson json.RawMessage

func (s *RawJson) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*s = nil
	case []byte:
		*s = append((*s)[0:0], v...)
	case string:
		*s = RawJson(v)
	default:
		return errors.New(fmt.Sprint("Failed to scan JSON value:", v))
	}
	return nil
}

func (s RawJson) Value() (driver.Value, error) {
	if len(s) == 0 {
		return nil, nil
	}
	return string(s), nil
}

func (s RawJson) MarshalJSON() ([]byte, error) {
	if len(s) == 0 {
		return []byte("null"), nil
	}
	return s, nil
}

func (s *RawJson) UnmarshalJSON(data []byte) error {
	*s = append((*s)[0:0], data...)
	return nil
}
