package models

import (
	"fmt"
	"strings"
)

// Field resolves a dotted path inside a raw record, e.g.
// "device.generic_name". When an intermediate value is a list, the first
// element is used; source records frequently wrap single devices or patients
// in one-element arrays.
func (r RawRecord) Field(path string) (interface{}, bool) {
	var cur interface{} = map[string]interface{}(r)
	for _, part := range strings.Split(path, ".") {
		if arr, ok := cur.([]interface{}); ok {
			if len(arr) == 0 {
				return nil, false
			}
			cur = arr[0]
		}
		m, ok := cur.(map[string]interface{})
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

// StringField resolves a dotted path to a trimmed string. Numeric values are
// formatted; missing or empty values return "".
func (r RawRecord) StringField(path string) string {
	v, ok := r.Field(path)
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []interface{}:
		if len(t) == 0 {
			return ""
		}
		if s, ok := t[0].(string); ok {
			return strings.TrimSpace(s)
		}
		return strings.TrimSpace(fmt.Sprintf("%v", t[0]))
	case float64:
		return strings.TrimSuffix(strings.TrimSuffix(fmt.Sprintf("%f", t), "000000"), ".")
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", t))
	}
}
