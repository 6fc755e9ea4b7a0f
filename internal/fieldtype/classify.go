package fieldtype

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// StateField is the pseudo field name of an entity's state scalar.
const StateField = "state"

// DefaultUnit is the measurement unit used when no sibling unit attribute exists.
const DefaultUnit = "units"

const unitOfMeasurement = "unit_of_measurement"

type boolWord struct {
	trueLabel  string
	falseLabel string
	truth      bool
}

// lexicon maps the recognised boolean words to their label pair and polarity.
var lexicon = map[string]boolWord{
	"yes":   {"Yes", "No", true},
	"no":    {"Yes", "No", false},
	"true":  {"True", "False", true},
	"false": {"True", "False", false},
	"on":    {"On", "Off", true},
	"off":   {"On", "Off", false},
}

// LexiconTruth reports the polarity of a boolean word (any case) and
// whether the word is in the lexicon at all.
func LexiconTruth(word string) (truth, ok bool) {
	w, ok := lexicon[strings.ToLower(word)]
	return w.truth, ok
}

// Classify infers the variant of a field from its name, current value and
// sibling attributes. Rules are applied in a fixed order and the first match
// wins. Classify never panics; values it cannot make sense of are Generic.
func Classify(field string, raw any, attrs map[string]any) (ft FieldType) {
	defer func() {
		if recover() != nil {
			ft = Generic{}
		}
	}()

	lower := strings.ToLower(field)
	if isMetaName(lower) {
		return Metadata{Kind: MetaKind(lower)}
	}

	text, ok := Stringify(raw)
	if !ok {
		return Generic{}
	}

	if w, ok := lexicon[strings.ToLower(text)]; ok {
		return Boolean{TrueLabel: w.trueLabel, FalseLabel: w.falseLabel}
	}
	if _, ok := ParseTime(text); ok {
		return Timestamp{}
	}
	if lower == unitOfMeasurement {
		return Unit{For: StateField}
	}
	if strings.Contains(lower, "_unit") {
		return Unit{For: strings.ReplaceAll(lower, "_unit", "")}
	}

	numeric := IsNumeric(text)
	if numeric && (lower == string(AxisLatitude) || lower == string(AxisLongitude)) {
		return Location{Axis: Axis(lower)}
	}
	if numeric {
		return Measurement{Unit: siblingUnit(field, attrs)}
	}

	if _, isString := raw.(string); isString {
		return String{}
	}
	if _, err := json.Marshal(raw); err == nil {
		return JSON{}
	}
	return Generic{}
}

// ClassifyEntity classifies the state and every attribute of an entity,
// state first and attributes in name order.
func ClassifyEntity(state any, attrs map[string]any) []TrackedField {
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]TrackedField, 0, len(names)+1)
	out = append(out, TrackedField{Field: StateField, Type: Classify(StateField, state, attrs)})
	for _, name := range names {
		out = append(out, TrackedField{Field: name, Type: Classify(name, attrs[name], attrs)})
	}
	return out
}

// ValueOf returns the current value of field: the state for "state",
// otherwise the attribute of that name.
func ValueOf(field string, state any, attrs map[string]any) (any, bool) {
	if field == StateField {
		return state, true
	}
	v, ok := attrs[field]
	return v, ok
}

// Stringify converts a raw value to its display text. It reports false for
// nil and for values that have no textual form.
func Stringify(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case bool:
		return strconv.FormatBool(x), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), true
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(x), true
	case json.Number:
		return x.String(), true
	case fmt.Stringer:
		return x.String(), true
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", false
	}
	return string(b), true
}

// IsNumeric reports whether text is a finite decimal number.
func IsNumeric(text string) bool {
	t := strings.TrimSpace(text)
	if t == "" {
		return false
	}
	f, err := strconv.ParseFloat(t, 64)
	return err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
}

func isMetaName(lower string) bool {
	for _, k := range MetaKinds() {
		if string(k) == lower {
			return true
		}
	}
	return false
}

func siblingUnit(field string, attrs map[string]any) string {
	key := field + "_unit"
	if field == StateField {
		key = unitOfMeasurement
	}
	if u, ok := Stringify(attrs[key]); ok {
		return u
	}
	return DefaultUnit
}
