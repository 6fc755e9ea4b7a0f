package fieldtype

import (
	"encoding/json"

	"github.com/ham-dashboard/ham-client/internal/errors"
)

// New builds the variant for tag from wire-named parameters. The parameter
// set must match the variant's schema exactly.
func New(tag Tag, params map[string]string) (FieldType, error) {
	doc := make(map[string]any, len(params)+1)
	for k, v := range params {
		doc[k] = v
	}
	doc[keyType] = string(tag)
	return Decode(doc)
}

// Decode builds a FieldType from a decoded object such as the body of a
// tracked field. The keys "field" and "logging" are accepted and ignored.
func Decode(doc map[string]any) (FieldType, error) {
	if err := Validate(doc); err != nil {
		return nil, err
	}
	str := func(key string) string {
		s, _ := doc[key].(string)
		return s
	}

	switch Tag(str(keyType)) {
	case TagBoolean:
		return Boolean{TrueLabel: str(ArgTrueName), FalseLabel: str(ArgFalseName)}, nil
	case TagMeasurement:
		return Measurement{Unit: str(ArgUnit)}, nil
	case TagString:
		return String{}, nil
	case TagMetadata:
		return Metadata{Kind: MetaKind(str(ArgMetaType))}, nil
	case TagUnit:
		return Unit{For: str(ArgFor)}, nil
	case TagGeneric:
		return Generic{}, nil
	case TagJSON:
		return JSON{}, nil
	case TagTimestamp:
		return Timestamp{}, nil
	case TagLocation:
		return Location{Axis: Axis(str(ArgCoordinate))}, nil
	}
	// Validate rejects unknown tags.
	return nil, errors.Create(errors.CodeUnknownFieldType)
}

// Check re-validates a FieldType value built by hand, e.g. a Metadata with
// an arbitrary Kind.
func Check(ft FieldType) error {
	if ft == nil {
		return errors.CreateWithMessage(errors.CodeInvalidFieldType, "field type is nil")
	}
	_, err := New(ft.Tag(), ft.Params())
	return err
}

// Object returns the flat wire object {"field", "type", params...} for ft.
func Object(field string, ft FieldType) map[string]any {
	obj := map[string]any{keyField: field, keyType: string(ft.Tag())}
	for k, v := range ft.Params() {
		obj[k] = v
	}
	return obj
}

// TrackedField is a field of an entity that has been opted into tracking,
// carrying its explicit FieldType and logging flag.
type TrackedField struct {
	Field   string
	Logging bool
	Type    FieldType
}

// MarshalJSON writes the flat wire shape.
func (tf TrackedField) MarshalJSON() ([]byte, error) {
	if tf.Type == nil {
		return nil, errors.CreateWithMessage(errors.CodeInvalidFieldType, "tracked field has no type").WithPath(tf.Field)
	}
	obj := Object(tf.Field, tf.Type)
	obj[keyLogging] = tf.Logging
	return json.Marshal(obj)
}

// UnmarshalJSON reads the flat wire shape, rejecting parameter sets that do
// not match the variant.
func (tf *TrackedField) UnmarshalJSON(data []byte) error {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return errors.Wrap(errors.ErrorTypeParsing, err, "invalid tracked field JSON")
	}
	field, ok := doc[keyField].(string)
	if !ok || field == "" {
		return errors.CreateWithMessage(errors.CodeInvalidFieldType, `tracked field needs a "field" name`)
	}
	ft, err := Decode(doc)
	if err != nil {
		var typed *errors.Error
		if errors.As(err, &typed) {
			return typed.WithPath(field)
		}
		return err
	}
	logging, _ := doc[keyLogging].(bool)

	tf.Field = field
	tf.Logging = logging
	tf.Type = ft
	return nil
}
