package configstore

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// CanonicalJSON serializes a document with stable, sorted key ordering at
// every nesting level. Two semantically equal documents always produce
// identical bytes, which is what makes the content hash a usable version.
func CanonicalJSON(doc map[string]interface{}) ([]byte, error) {
	return json.Marshal(canonicalize(doc))
}

func canonicalize(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		om := orderedmap.New[string, interface{}]()
		for _, k := range keys {
			om.Set(k, canonicalize(t[k]))
		}
		return om
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = canonicalize(e)
		}
		return out
	default:
		return v
	}
}

// Required document modes.
var validModes = map[string]bool{"full": true, "semi": true, "manual": true}

// ValidateDocument checks the schema constraints a configuration document
// must satisfy before it may be persisted.
func ValidateDocument(doc map[string]interface{}) error {
	if doc == nil {
		return &ValidationError{Reason: "document is empty"}
	}

	for _, field := range []string{"species", "stage", "start_time"} {
		s, ok := doc[field].(string)
		if !ok || s == "" {
			return &ValidationError{Field: field, Reason: "must be a non-empty string"}
		}
	}

	if err := validateISO8601(doc["start_time"].(string)); err != nil {
		return &ValidationError{Field: "start_time", Reason: err.Error()}
	}

	days, ok := asPositiveInt(doc["expected_days"])
	if !ok || days <= 0 {
		return &ValidationError{Field: "expected_days", Reason: "must be a positive integer"}
	}

	mode, ok := doc["mode"].(string)
	if !ok || !validModes[mode] {
		return &ValidationError{Field: "mode", Reason: `must be one of "full", "semi", "manual"`}
	}

	if thresholds, present := doc["thresholds"]; present {
		if _, ok := thresholds.(map[string]interface{}); !ok {
			return &ValidationError{Field: "thresholds", Reason: "must be an object"}
		}
	}

	return nil
}

// asPositiveInt accepts the numeric representations json.Unmarshal may
// produce and requires an integral value.
func asPositiveInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	case int:
		return n, true
	default:
		return 0, false
	}
}

func validateISO8601(s string) error {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if _, err := time.Parse(layout, s); err == nil {
			return nil
		}
	}
	return fmt.Errorf("%q is not an ISO-8601 timestamp", s)
}
