package util

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
)

// ValidationError reports the first argument that does not match a tool's
// parameter schema. Field is a dotted path for nested objects.
type ValidationError struct {
	Field   string `json:"field"`
	Value   any    `json:"value,omitempty"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// CreateSchema derives an object schema from a struct. Field names follow
// the json tag, descriptions come from a `description` tag, and fields are
// required unless they are pointers or tagged omitempty. Nested structs
// become nested object schemas.
func CreateSchema(structType any) map[string]any {
	t := reflect.TypeOf(structType)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return objectSchema(t)
}

func objectSchema(t reflect.Type) map[string]any {
	props := map[string]any{}
	var required []string

	for field := range fields(t) {
		name, opts, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			continue
		}
		if name == "" {
			name = field.Name
		}

		prop := typeSchema(field.Type)
		if d := field.Tag.Get("description"); d != "" {
			prop["description"] = d
		}
		props[name] = prop

		omit := slices.Contains(strings.Split(opts, ","), "omitempty")
		if !omit && field.Type.Kind() != reflect.Pointer {
			required = append(required, name)
		}
	}

	schema := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func fields(t reflect.Type) func(func(reflect.StructField) bool) {
	return func(yield func(reflect.StructField) bool) {
		for i := range t.NumField() {
			if f := t.Field(i); f.IsExported() && !yield(f) {
				return
			}
		}
	}
}

func typeSchema(t reflect.Type) map[string]any {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.String:
		return map[string]any{"type": "string"}
	case reflect.Bool:
		return map[string]any{"type": "boolean"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return map[string]any{"type": "integer"}
	case reflect.Float32, reflect.Float64:
		return map[string]any{"type": "number"}
	case reflect.Slice, reflect.Array:
		return map[string]any{"type": "array", "items": typeSchema(t.Elem())}
	case reflect.Struct:
		return objectSchema(t)
	case reflect.Map:
		return map[string]any{"type": "object"}
	default:
		return map[string]any{"type": "string"}
	}
}

// ValidateParameters checks decoded tool arguments against an object schema:
// required fields, primitive types, enums, array items and nested objects.
// Unknown fields are allowed.
func ValidateParameters(params map[string]any, schema map[string]any) error {
	return validateObject("", params, schema)
}

func validateObject(path string, obj map[string]any, schema map[string]any) error {
	for _, name := range RequiredFields(schema) {
		if _, ok := obj[name]; !ok {
			return &ValidationError{Field: join(path, name), Message: "required field is missing"}
		}
	}

	props, _ := schema["properties"].(map[string]any)
	for name, value := range obj {
		prop, ok := props[name].(map[string]any)
		if !ok {
			continue
		}
		if err := validateValue(join(path, name), value, prop); err != nil {
			return err
		}
	}
	return nil
}

func validateValue(path string, value any, schema map[string]any) error {
	if value == nil {
		return nil
	}

	want, _ := schema["type"].(string)
	if !matchesType(value, want) {
		return &ValidationError{Field: path, Value: value, Message: fmt.Sprintf("expected type %s, got %T", want, value)}
	}

	if enum, ok := schema["enum"].([]any); ok && !slices.Contains(enum, value) {
		return &ValidationError{Field: path, Value: value, Message: fmt.Sprintf("must be one of %v", enum)}
	}
	if enum, ok := schema["enum"].([]string); ok {
		if s, _ := value.(string); !slices.Contains(enum, s) {
			return &ValidationError{Field: path, Value: value, Message: fmt.Sprintf("must be one of %v", enum)}
		}
	}

	switch v := value.(type) {
	case map[string]any:
		return validateObject(path, v, schema)
	case []any:
		items, ok := schema["items"].(map[string]any)
		if !ok {
			return nil
		}
		for i, item := range v {
			if err := validateValue(fmt.Sprintf("%s[%d]", path, i), item, items); err != nil {
				return err
			}
		}
	}
	return nil
}

// RequiredFields reads "required" as either []string (Go literal schemas)
// or []any (decoded JSON).
func RequiredFields(schema map[string]any) []string {
	switch v := schema["required"].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, r := range v {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func matchesType(value any, want string) bool {
	switch want {
	case "string":
		_, ok := value.(string)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "integer":
		switch v := value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return true
		case float64:
			return v == float64(int64(v))
		}
		return false
	case "number":
		switch value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
			return true
		}
		return false
	case "array":
		_, ok := value.([]any)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	default:
		return true
	}
}

func join(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}
