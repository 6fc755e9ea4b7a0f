// Package fieldtype defines the closed set of field type variants used to
// interpret entity fields, the registry of their editable arguments, and the
// heuristic classifier that infers a variant from an untyped value.
//
// A FieldType is a sealed sum type: exactly one of the variant structs in
// this package. Switches over FieldType should handle every variant; see
// Tags for the authoritative list.
package fieldtype

// Tag identifies a FieldType variant on the wire.
type Tag string

// Variant tags.
const (
	TagBoolean     Tag = "boolean"
	TagMeasurement Tag = "measurement"
	TagString      Tag = "string"
	TagMetadata    Tag = "metadata"
	TagUnit        Tag = "unit"
	TagGeneric     Tag = "generic"
	TagJSON        Tag = "json"
	TagTimestamp   Tag = "timestamp"
	TagLocation    Tag = "location"
)

// Tags returns every variant tag in registry order.
func Tags() []Tag {
	return []Tag{
		TagBoolean,
		TagMeasurement,
		TagString,
		TagMetadata,
		TagUnit,
		TagGeneric,
		TagJSON,
		TagTimestamp,
		TagLocation,
	}
}

// Valid reports whether t is a known tag.
func (t Tag) Valid() bool {
	_, ok := registry[t]
	return ok
}

// MetaKind names the entity metadata attribute a metadata field holds.
type MetaKind string

// Metadata kinds. These are also the reserved attribute names that the
// classifier maps to the metadata variant.
const (
	MetaDeviceClass  MetaKind = "device_class"
	MetaStateClass   MetaKind = "state_class"
	MetaFriendlyName MetaKind = "friendly_name"
	MetaIcon         MetaKind = "icon"
	MetaAttribution  MetaKind = "attribution"
)

// MetaKinds returns the metadata kinds in display order.
func MetaKinds() []MetaKind {
	return []MetaKind{MetaDeviceClass, MetaStateClass, MetaFriendlyName, MetaIcon, MetaAttribution}
}

// Axis is the coordinate a location field holds.
type Axis string

// Coordinate axes.
const (
	AxisLatitude  Axis = "latitude"
	AxisLongitude Axis = "longitude"
)

// Wire names of variant parameters.
const (
	ArgTrueName   = "trueName"
	ArgFalseName  = "falseName"
	ArgUnit       = "unit"
	ArgMetaType   = "metaType"
	ArgFor        = "for"
	ArgCoordinate = "coordinate"
)

// FieldType is one variant of the field type sum. Implementations are the
// structs in this package only.
type FieldType interface {
	// Tag returns the variant tag.
	Tag() Tag
	// Params returns the variant's parameters keyed by wire name.
	Params() map[string]string

	fieldType()
}

// Boolean renders a value as one of two labels.
type Boolean struct {
	TrueLabel  string
	FalseLabel string
}

// Measurement is a numeric value with a unit.
type Measurement struct {
	Unit string
}

// String is plain text.
type String struct{}

// Metadata is one of the reserved entity metadata attributes.
type Metadata struct {
	Kind MetaKind
}

// Unit is a unit-of-measure attribute describing another field.
type Unit struct {
	For string
}

// Generic is an opaque value shown verbatim.
type Generic struct{}

// JSON is a structured value.
type JSON struct{}

// Timestamp is a date/time value.
type Timestamp struct{}

// Location is one coordinate of the entity's position.
type Location struct {
	Axis Axis
}

func (Boolean) Tag() Tag     { return TagBoolean }
func (Measurement) Tag() Tag { return TagMeasurement }
func (String) Tag() Tag      { return TagString }
func (Metadata) Tag() Tag    { return TagMetadata }
func (Unit) Tag() Tag        { return TagUnit }
func (Generic) Tag() Tag     { return TagGeneric }
func (JSON) Tag() Tag        { return TagJSON }
func (Timestamp) Tag() Tag   { return TagTimestamp }
func (Location) Tag() Tag    { return TagLocation }

func (b Boolean) Params() map[string]string {
	return map[string]string{ArgTrueName: b.TrueLabel, ArgFalseName: b.FalseLabel}
}

func (m Measurement) Params() map[string]string {
	return map[string]string{ArgUnit: m.Unit}
}

func (String) Params() map[string]string { return map[string]string{} }

func (m Metadata) Params() map[string]string {
	return map[string]string{ArgMetaType: string(m.Kind)}
}

func (u Unit) Params() map[string]string {
	return map[string]string{ArgFor: u.For}
}

func (Generic) Params() map[string]string   { return map[string]string{} }
func (JSON) Params() map[string]string      { return map[string]string{} }
func (Timestamp) Params() map[string]string { return map[string]string{} }

func (l Location) Params() map[string]string {
	return map[string]string{ArgCoordinate: string(l.Axis)}
}

func (Boolean) fieldType()     {}
func (Measurement) fieldType() {}
func (String) fieldType()      {}
func (Metadata) fieldType()    {}
func (Unit) fieldType()        {}
func (Generic) fieldType()     {}
func (JSON) fieldType()        {}
func (Timestamp) fieldType()   {}
func (Location) fieldType()    {}
