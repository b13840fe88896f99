package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_CollectsAllErrorsTogether(t *testing.T) {
	s := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"name":       map[string]interface{}{"type": "string"},
			"activeTask": map[string]interface{}{"type": "string"},
			"pageSize":   map[string]interface{}{"type": "integer"},
		},
		"required": []interface{}{"name", "activeTask"},
	}

	_, err := Validate(map[string]interface{}{"pageSize": "ten"}, s)
	require.Error(t, err)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	require.Len(t, ve.Fields, 3, "missing name, missing activeTask, and mistyped pageSize must all be reported at once")

	fields := map[string]bool{}
	for _, f := range ve.Fields {
		fields[f.Field] = true
	}
	assert.True(t, fields["name"])
	assert.True(t, fields["activeTask"])
	assert.True(t, fields["pageSize"])
}

func TestValidate_AcceptsValidParams(t *testing.T) {
	s := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"name": map[string]interface{}{"type": "string"},
			"tags": map[string]interface{}{"type": "array"},
		},
		"required": []interface{}{"name"},
	}

	params := map[string]interface{}{
		"name": "cp1",
		"tags": []interface{}{"a", "b"},
	}
	got, err := Validate(params, s)
	require.NoError(t, err)
	assert.Equal(t, "cp1", got["name"])
}

func TestValidate_RequiredMeansNonEmpty(t *testing.T) {
	s := map[string]interface{}{
		"type":     "object",
		"required": []interface{}{"name"},
	}

	_, err := Validate(map[string]interface{}{"name": "   "}, s)
	require.Error(t, err, "whitespace-only values do not satisfy a required field")
}

func TestValidate_NeverSilentlyFixes(t *testing.T) {
	s := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"page": map[string]interface{}{"type": "integer"},
		},
	}

	_, err := Validate(map[string]interface{}{"page": "0"}, s)
	require.Error(t, err, "a string is not coerced to an integer; it is reported")
}

func TestValidate_UnknownFieldsPassThrough(t *testing.T) {
	s := map[string]interface{}{"type": "object"}

	got, err := Validate(map[string]interface{}{"custom": 42}, s)
	require.NoError(t, err)
	assert.Equal(t, 42, got["custom"])
}

func TestValidate_NilSchemaAcceptsEverything(t *testing.T) {
	got, err := Validate(map[string]interface{}{"anything": true}, nil)
	require.NoError(t, err)
	assert.Equal(t, true, got["anything"])
}

func TestValidate_IntegerDemandsIntegralValue(t *testing.T) {
	s := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"page": map[string]interface{}{"type": "integer"},
		},
	}

	_, err := Validate(map[string]interface{}{"page": 1.5}, s)
	require.Error(t, err)

	_, err = Validate(map[string]interface{}{"page": float64(2)}, s)
	require.NoError(t, err, "JSON numbers decode as float64; integral ones pass")
}

func TestMergeWithContext_AddsFragmentWithoutRequiring(t *testing.T) {
	op := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"name": map[string]interface{}{"type": "string"},
		},
		"required": []interface{}{"name"},
	}

	merged := MergeWithContext(op)
	props, ok := merged["properties"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, props, "name")
	assert.Contains(t, props, "context")

	required := RequiredFields(merged)
	assert.Equal(t, []string{"name"}, required, "context fields are never required")
}

func TestMergeWithContext_OperationPropertiesWin(t *testing.T) {
	op := map[string]interface{}{
		"properties": map[string]interface{}{
			"context": map[string]interface{}{"type": "string", "description": "op-specific"},
		},
	}

	merged := MergeWithContext(op)
	props := merged["properties"].(map[string]interface{})
	spec := props["context"].(map[string]interface{})
	assert.Equal(t, "string", spec["type"])
}

func TestMergeWithContext_NilSchema(t *testing.T) {
	merged := MergeWithContext(nil)
	props, ok := merged["properties"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, props, "context")
}

func TestValidationError_MessageListsEveryField(t *testing.T) {
	err := &ValidationError{Fields: []FieldError{
		{Field: "name", Requirement: "required and must be non-empty"},
		{Field: "page", Requirement: "must be of type integer"},
	}}
	msg := err.Error()
	assert.Contains(t, msg, "name")
	assert.Contains(t, msg, "page")
}
