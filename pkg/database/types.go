package database

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// StringArray stores a list of strings in a single text column as a JSON
// array. Values written by PostgreSQL array columns ({a,b}) are accepted on
// read so existing TEXT[] data keeps scanning.
type StringArray []string

// Scan implements sql.Scanner.
func (a *StringArray) Scan(value interface{}) error {
	var raw string
	switch v := value.(type) {
	case nil:
		*a = nil
		return nil
	case []byte:
		raw = string(v)
	case string:
		raw = v
	default:
		return fmt.Errorf("StringArray: unsupported scan type %T", value)
	}

	raw = strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(raw, "["):
		return json.Unmarshal([]byte(raw), a)
	case strings.HasPrefix(raw, "{") && strings.HasSuffix(raw, "}"):
		inner := strings.Trim(raw, "{}")
		if inner == "" {
			*a = StringArray{}
			return nil
		}
		parts := strings.Split(inner, ",")
		for i, p := range parts {
			parts[i] = strings.Trim(p, `"`)
		}
		*a = parts
		return nil
	case raw == "":
		*a = StringArray{}
		return nil
	default:
		*a = StringArray{raw}
		return nil
	}
}

// Value implements driver.Valuer.
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	data, err := json.Marshal([]string(a))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// GormDataType returns the GORM data type hint.
func (StringArray) GormDataType() string {
	return "text"
}

// Contains reports whether s is an element of a.
func (a StringArray) Contains(s string) bool {
	for _, v := range a {
		if v == s {
			return true
		}
	}
	return false
}
