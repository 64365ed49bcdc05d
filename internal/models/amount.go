package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Amount is a monetary value exactly as the catalog sent it. JSON numbers and
// strings are both accepted so malformed prices reach the pricing engine
// untouched instead of failing the whole catalog decode.
type Amount string

func (a Amount) IsZero() bool {
	return strings.TrimSpace(string(a)) == ""
}

func (a Amount) String() string {
	return strings.TrimSpace(string(a))
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*a = ""
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = Amount(strings.TrimSpace(s))
		return nil
	}
	*a = Amount(raw)
	return nil
}

func (a *Amount) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var v interface{}
	if err := unmarshal(&v); err != nil {
		return err
	}
	if v == nil {
		*a = ""
		return nil
	}
	*a = Amount(strings.TrimSpace(fmt.Sprint(v)))
	return nil
}
