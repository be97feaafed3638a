package tool

import (
	"encoding/json"
	"reflect"
	"strings"
)

// SchemaFor derives a JSON schema object from a params struct.
//
// Property names come from the json tag, descriptions from the desc tag.
// A field is required unless its json tag carries omitempty. Types are
// inferred from the Go kind and default to "string" when unknown. A type tag
// overrides the inferred type; type:"any" leaves the property unconstrained.
func SchemaFor(v any) map[string]any {
	properties := map[string]any{}
	required := []string{}

	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return map[string]any{
			"type":       "object",
			"properties": properties,
			"required":   required,
		}
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		name, optional := jsonName(field)
		if name == "-" {
			continue
		}

		desc := field.Tag.Get("desc")
		if desc == "" {
			desc = "Parameter: " + name
		}

		prop := map[string]any{
			"type":        jsonType(field.Type),
			"description": desc,
		}
		switch override := field.Tag.Get("type"); override {
		case "":
		case "any":
			delete(prop, "type")
		default:
			prop["type"] = override
		}
		if enum := field.Tag.Get("enum"); enum != "" {
			prop["enum"] = strings.Split(enum, ",")
		}
		if prop["type"] == "array" {
			prop["items"] = map[string]any{"type": jsonType(elemType(field.Type))}
		}

		properties[name] = prop
		if !optional {
			required = append(required, name)
		}
	}

	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

func jsonName(field reflect.StructField) (string, bool) {
	tag := field.Tag.Get("json")
	if tag == "" {
		return field.Name, false
	}
	parts := strings.Split(tag, ",")
	name := parts[0]
	if name == "" {
		name = field.Name
	}
	optional := false
	for _, opt := range parts[1:] {
		if opt == "omitempty" || opt == "omitzero" {
			optional = true
		}
	}
	return name, optional
}

func elemType(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() == reflect.Slice || t.Kind() == reflect.Array {
		return t.Elem()
	}
	return t
}

func jsonType(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "integer"
	case reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Map, reflect.Struct:
		return "object"
	default:
		return "string"
	}
}

// Decode unmarshals raw params into a params struct. On failure it returns
// the failed Result the tool should hand back.
func Decode[T any](params json.RawMessage) (T, *Result) {
	var p T
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return p, Fail("invalid parameters: %v", err)
	}
	return p, nil
}

// ArgsMap decodes raw params into a generic map for logging and trajectories.
func ArgsMap(params json.RawMessage) map[string]any {
	if len(params) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(params, &m); err != nil {
		return map[string]any{"raw": string(params)}
	}
	return m
}

// SanitizeArgs masks values whose key looks like a credential.
func SanitizeArgs(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	sensitive := []string{"password", "token", "secret", "api_key", "key"}
	out := make(map[string]any, len(args))
	for k, v := range args {
		lower := strings.ToLower(k)
		masked := false
		for _, s := range sensitive {
			if strings.Contains(lower, s) {
				masked = true
				break
			}
		}
		if masked {
			out[k] = "***"
		} else {
			out[k] = v
		}
	}
	return out
}
