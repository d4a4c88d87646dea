package store

import (
	"encoding/json"
	"strings"
)

// placeholderList returns "?,?,?" for n placeholders.
func placeholderList(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

// intsToArgs converts []int to []any for use with database/sql.
func intsToArgs(ids []int) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// marshalNames converts a name list to JSON text for storage.
func marshalNames(names []string) string {
	if len(names) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(names)
	return string(b)
}

// unmarshalNames converts JSON text back to a name list. Never nil.
func unmarshalNames(s string) []string {
	names := []string{}
	if s == "" || s == "null" {
		return names
	}
	_ = json.Unmarshal([]byte(s), &names)
	if names == nil {
		return []string{}
	}
	return names
}

// nullString maps "" to SQL NULL.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
