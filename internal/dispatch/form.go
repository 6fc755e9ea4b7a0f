package dispatch

import (
	"maps"

	"github.com/ham-dashboard/ham-client/internal/errors"
	"github.com/ham-dashboard/ham-client/internal/fieldtype"
)

// Form is the editable state of one tracked field's type: a selected tag and
// the argument values entered so far. It is not safe for concurrent use.
type Form struct {
	field    string
	original fieldtype.FieldType
	tag      fieldtype.Tag
	values   map[string]string
}

// NewForm starts editing field from its current type. A nil type starts
// from Generic.
func NewForm(field string, current fieldtype.FieldType) *Form {
	if current == nil {
		current = fieldtype.Generic{}
	}
	f := &Form{field: field, original: current}
	f.Reset()
	return f
}

// Field returns the name of the field being edited.
func (f *Form) Field() string { return f.field }

// Tag returns the selected variant.
func (f *Form) Tag() fieldtype.Tag { return f.tag }

// Value returns the entered value of an argument.
func (f *Form) Value(name string) (string, bool) {
	v, ok := f.values[name]
	return v, ok
}

// Arguments returns the arguments of the selected variant.
func (f *Form) Arguments() []fieldtype.Argument {
	s, _ := fieldtype.Lookup(f.tag)
	return s.Args
}

// Select switches the variant. Values of arguments with the same name in
// the new variant are kept; all others are discarded.
func (f *Form) Select(tag fieldtype.Tag) error {
	s, ok := fieldtype.Lookup(tag)
	if !ok {
		return errors.Create(errors.CodeUnknownFieldType).WithDetails(map[string]any{"type": string(tag)})
	}
	kept := make(map[string]string, len(s.Args))
	for _, a := range s.Args {
		if v, ok := f.values[a.Name]; ok {
			kept[a.Name] = v
		}
	}
	f.tag = tag
	f.values = kept
	return nil
}

// Set enters a value for an argument of the selected variant. Choice
// arguments only accept one of their options.
func (f *Form) Set(name, value string) error {
	s, _ := fieldtype.Lookup(f.tag)
	arg, ok := s.Arg(name)
	if !ok {
		return errors.CreateWithMessage(errors.CodeInvalidArgument, "no such argument for "+string(f.tag)).WithPath(name)
	}
	if !arg.Allows(value) {
		return errors.CreateWithMessage(errors.CodeInvalidArgument, "value is not one of the options").
			WithPath(name).
			WithDetails(map[string]any{"value": value})
	}
	f.values[name] = value
	return nil
}

// Reset discards edits and returns to the type the form started from.
func (f *Form) Reset() {
	f.tag = f.original.Tag()
	f.values = maps.Clone(f.original.Params())
	if f.values == nil {
		f.values = map[string]string{}
	}
}

// Dirty reports whether the built type would differ from the original.
func (f *Form) Dirty() bool {
	return f.tag != f.original.Tag() || !maps.Equal(f.values, f.original.Params())
}

// Build returns the FieldType described by the form. Every argument of the
// selected variant must have been entered.
func (f *Form) Build() (fieldtype.FieldType, error) {
	for _, a := range f.Arguments() {
		if _, ok := f.values[a.Name]; !ok {
			return nil, errors.CreateWithMessage(errors.CodeMissingArgument, a.Label+" is required").WithPath(a.Name)
		}
	}
	return fieldtype.New(f.tag, f.values)
}
