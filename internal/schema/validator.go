// Package schema validates tool parameters against declared JSON schemas and
// merges every operation's schema with the common context fragment, so that
// discovery always shows the full parameter surface and calls are validated
// against the same merged shape.
package schema

import (
	"fmt"
	"strings"
)

// FieldError describes one invalid or missing parameter. Errors are collected
// across all fields, not short-circuited, so an unattended caller can fix the
// whole call in one retry.
type FieldError struct {
	Field       string      `json:"field"`
	Value       interface{} `json:"value"`
	Requirement string      `json:"requirement"`
}

// ValidationError aggregates the field-level errors for one call.
type ValidationError struct {
	Fields []FieldError
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Requirement))
	}
	return "parameter validation failed: " + strings.Join(parts, "; ")
}

// ContextFragment is the common context-field fragment merged into every
// operation schema. It mirrors the inbound envelope's context object.
func ContextFragment() map[string]interface{} {
	return map[string]interface{}{
		"context": map[string]interface{}{
			"type":        "object",
			"description": "Continuity context threaded through every call.",
			"properties": map[string]interface{}{
				"sessionId": map[string]interface{}{
					"type":        "string",
					"description": "Canonical session identifier from a previous response banner.",
				},
				"workspaceId": map[string]interface{}{
					"type":        "string",
					"description": "Workspace to operate in. Inherited from the parent context when omitted.",
				},
				"memory": map[string]interface{}{
					"type":        "string",
					"description": "Free-form memory the caller wants carried forward.",
				},
				"goal": map[string]interface{}{
					"type":        "string",
					"description": "The caller's current goal.",
				},
				"constraints": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "Constraints the operation must respect.",
				},
			},
		},
	}
}

// MergeWithContext returns a copy of opSchema with the common context
// fragment folded into its properties. Operation-declared properties win on
// name collision; required lists are preserved (the context fields are never
// required). A nil opSchema yields a minimal object schema carrying only the
// fragment.
func MergeWithContext(opSchema map[string]interface{}) map[string]interface{} {
	merged := map[string]interface{}{
		"type": "object",
	}
	props := map[string]interface{}{}

	for k, v := range ContextFragment() {
		props[k] = v
	}

	if opSchema != nil {
		for k, v := range opSchema {
			if k == "properties" {
				continue
			}
			merged[k] = v
		}
		if opProps, ok := opSchema["properties"].(map[string]interface{}); ok {
			for k, v := range opProps {
				props[k] = v
			}
		}
	}

	merged["properties"] = props
	return merged
}

// Validate checks params against the (merged) schema and returns the
// normalized bag. Validation never silently fixes input: it only accepts or
// reports. Unknown fields pass through untouched; operations own their own
// strictness beyond the declared surface.
func Validate(params map[string]interface{}, schema map[string]interface{}) (map[string]interface{}, error) {
	normalized := make(map[string]interface{}, len(params))
	for k, v := range params {
		normalized[k] = v
	}

	if schema == nil {
		return normalized, nil
	}

	var errs []FieldError

	props, _ := schema["properties"].(map[string]interface{})

	// Required fields: present and non-empty.
	if required, ok := schema["required"].([]interface{}); ok {
		for _, r := range required {
			name, ok := r.(string)
			if !ok {
				continue
			}
			v, present := params[name]
			if !present || isEmpty(v) {
				errs = append(errs, FieldError{
					Field:       name,
					Value:       v,
					Requirement: "required and must be non-empty",
				})
			}
		}
	} else if required, ok := schema["required"].([]string); ok {
		for _, name := range required {
			v, present := params[name]
			if !present || isEmpty(v) {
				errs = append(errs, FieldError{
					Field:       name,
					Value:       v,
					Requirement: "required and must be non-empty",
				})
			}
		}
	}

	// Type checks for provided fields with a declared type.
	for name, raw := range params {
		spec, ok := props[name].(map[string]interface{})
		if !ok {
			continue
		}
		wantType, ok := spec["type"].(string)
		if !ok || raw == nil {
			continue
		}
		if !matchesType(raw, wantType) {
			errs = append(errs, FieldError{
				Field:       name,
				Value:       raw,
				Requirement: fmt.Sprintf("must be of type %s", wantType),
			})
		}
	}

	if len(errs) > 0 {
		return nil, &ValidationError{Fields: errs}
	}
	return normalized, nil
}

// RequiredFields extracts the declared required-field names from a schema.
// Used best-effort when building failure diagnostics.
func RequiredFields(schema map[string]interface{}) []string {
	if schema == nil {
		return nil
	}
	switch required := schema["required"].(type) {
	case []string:
		return required
	case []interface{}:
		var names []string
		for _, r := range required {
			if s, ok := r.(string); ok {
				names = append(names, s)
			}
		}
		return names
	default:
		return nil
	}
}

func isEmpty(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []interface{}:
		return len(t) == 0
	case map[string]interface{}:
		return len(t) == 0
	default:
		return false
	}
}

// matchesType checks a decoded JSON value against a JSON-schema type name.
// Numbers decode as float64; "integer" additionally demands an integral value.
func matchesType(v interface{}, wantType string) bool {
	switch wantType {
	case "string":
		_, ok := v.(string)
		return ok
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "number":
		return isNumber(v)
	case "integer":
		f, ok := asFloat(v)
		return ok && f == float64(int64(f))
	case "array":
		switch v.(type) {
		case []interface{}, []string:
			return true
		}
		return false
	case "object":
		_, ok := v.(map[string]interface{})
		return ok
	default:
		return true
	}
}

func isNumber(v interface{}) bool {
	_, ok := asFloat(v)
	return ok
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
