package fieldtype

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/ham-dashboard/ham-client/internal/errors"
)

// Keys of a tracked field object that sit beside the variant parameters.
const (
	keyType    = "type"
	keyField   = "field"
	keyLogging = "logging"
)

var (
	compileOnce sync.Once
	compiled    map[Tag]*gojsonschema.Schema
	compileErr  error
)

// JSONSchema returns the JSON Schema document describing a tracked field
// object of the given variant: the tag, the optional field name and logging
// flag, and exactly the variant's parameters.
func JSONSchema(tag Tag) (map[string]any, bool) {
	s, ok := registry[tag]
	if !ok {
		return nil, false
	}

	props := map[string]any{
		keyType:    map[string]any{"type": "string", "enum": []string{string(tag)}},
		keyField:   map[string]any{"type": "string"},
		keyLogging: map[string]any{"type": "boolean"},
	}
	required := []string{keyType}
	for _, a := range s.Args {
		prop := map[string]any{"type": "string"}
		if a.Kind == ArgChoice {
			values := make([]string, len(a.Options))
			for i, o := range a.Options {
				values[i] = o.Value
			}
			prop["enum"] = values
		}
		props[a.Name] = prop
		required = append(required, a.Name)
	}

	return map[string]any{
		"$schema":              "http://json-schema.org/draft-07/schema#",
		"title":                s.Label,
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}, true
}

func compileSchemas() {
	compiled = make(map[Tag]*gojsonschema.Schema, len(registry))
	for _, tag := range Tags() {
		doc, _ := JSONSchema(tag)
		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(doc))
		if err != nil {
			compileErr = errors.Wrapf(errors.ErrorTypeInternal, err, "compile schema for %s", tag)
			return
		}
		compiled[tag] = schema
	}
}

// Validate checks a decoded tracked field object (or bare field type object)
// against its variant's schema. The object must name a known tag in "type"
// and carry exactly that variant's parameters.
func Validate(doc map[string]any) error {
	compileOnce.Do(compileSchemas)
	if compileErr != nil {
		return compileErr
	}

	rawTag, ok := doc[keyType].(string)
	if !ok {
		return errors.CreateWithMessage(errors.CodeUnknownFieldType, `missing or non-string "type"`)
	}
	schema, ok := compiled[Tag(rawTag)]
	if !ok {
		return errors.Create(errors.CodeUnknownFieldType).WithDetails(map[string]any{"type": rawTag})
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return errors.CreateWithCause(errors.CodeInvalidFieldType, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return errors.Create(errors.CodeInvalidFieldType).
			WithMessagef("invalid %s parameters: %s", rawTag, strings.Join(msgs, "; ")).
			WithDetails(map[string]any{"type": rawTag, "violations": msgs})
	}
	return nil
}

// ValidateJSON is Validate for raw JSON bytes.
func ValidateJSON(data []byte) error {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return errors.Wrap(errors.ErrorTypeParsing, err, "invalid field type JSON")
	}
	return Validate(doc)
}
