package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type searchArgs struct {
	Request string `json:"request" description:"The request to forward"`
	Limit   *int   `json:"limit,omitempty"`
}

func TestCreateSchema(t *testing.T) {
	s := CreateSchema(searchArgs{})
	assert.Equal(t, "object", s["type"])
	assert.Equal(t, []string{"request"}, s["required"])
	props := s["properties"].(map[string]any)
	assert.Equal(t, "The request to forward", props["request"].(map[string]any)["description"])
	assert.Equal(t, "integer", props["limit"].(map[string]any)["type"])
}

func TestValidateParameters_RequiredForms(t *testing.T) {
	goSchema := map[string]any{
		"type":       "object",
		"properties": map[string]any{"request": map[string]any{"type": "string"}},
		"required":   []string{"request"},
	}
	jsonSchema := map[string]any{
		"type":       "object",
		"properties": map[string]any{"request": map[string]any{"type": "string"}},
		"required":   []any{"request"},
	}
	for _, schema := range []map[string]any{goSchema, jsonSchema} {
		err := ValidateParameters(map[string]any{}, schema)
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "request", ve.Field)

		assert.NoError(t, ValidateParameters(map[string]any{"request": "x"}, schema))
		assert.Error(t, ValidateParameters(map[string]any{"request": 3}, schema))
	}
}

type filterArgs struct {
	Source string `json:"source"`
	Days   int    `json:"days,omitempty"`
}

type queryArgs struct {
	Query  string     `json:"query"`
	Tags   []string   `json:"tags,omitempty"`
	Filter filterArgs `json:"filter"`
}

func TestCreateSchema_Nested(t *testing.T) {
	s := CreateSchema(&queryArgs{})
	assert.Equal(t, []string{"query", "filter"}, s["required"])

	props := s["properties"].(map[string]any)
	tags := props["tags"].(map[string]any)
	assert.Equal(t, "array", tags["type"])
	assert.Equal(t, "string", tags["items"].(map[string]any)["type"])

	filter := props["filter"].(map[string]any)
	assert.Equal(t, "object", filter["type"])
	assert.Equal(t, []string{"source"}, filter["required"])
}

func TestValidateParameters_Nested(t *testing.T) {
	schema := CreateSchema(queryArgs{})

	tests := []struct {
		name  string
		args  map[string]any
		field string
	}{
		{"valid", map[string]any{"query": "q", "filter": map[string]any{"source": "web", "days": float64(3)}}, ""},
		{"missing nested", map[string]any{"query": "q", "filter": map[string]any{}}, "filter.source"},
		{"bad item", map[string]any{"query": "q", "tags": []any{"a", 1}, "filter": map[string]any{"source": "web"}}, "tags[1]"},
		{"fractional integer", map[string]any{"query": "q", "filter": map[string]any{"source": "web", "days": 1.5}}, "filter.days"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateParameters(tt.args, schema)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestValidateParameters_Enum(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"unit": map[string]any{"type": "string", "enum": []string{"celsius", "fahrenheit"}},
		},
	}
	assert.NoError(t, ValidateParameters(map[string]any{"unit": "celsius"}, schema))
	assert.Error(t, ValidateParameters(map[string]any{"unit": "kelvin"}, schema))
}
