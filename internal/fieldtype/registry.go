package fieldtype

// ArgKind says how an argument is entered.
type ArgKind string

const (
	// ArgText is free text.
	ArgText ArgKind = "text"
	// ArgChoice is one value out of Options.
	ArgChoice ArgKind = "choice"
)

// Option is one entry of a choice argument.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Argument describes one editable parameter of a variant.
type Argument struct {
	Name    string   `json:"argument"`
	Label   string   `json:"label"`
	Kind    ArgKind  `json:"type"`
	Options []Option `json:"options,omitempty"`
}

// Allows reports whether value is acceptable for the argument.
func (a Argument) Allows(value string) bool {
	if a.Kind != ArgChoice {
		return true
	}
	for _, o := range a.Options {
		if o.Value == value {
			return true
		}
	}
	return false
}

// Schema is the registry entry of one variant.
type Schema struct {
	Tag   Tag        `json:"type"`
	Label string     `json:"label"`
	Args  []Argument `json:"arguments"`
}

// Arg returns the argument with the given wire name.
func (s Schema) Arg(name string) (Argument, bool) {
	for _, a := range s.Args {
		if a.Name == name {
			return a, true
		}
	}
	return Argument{}, false
}

var registry = map[Tag]Schema{
	TagBoolean: {
		Tag:   TagBoolean,
		Label: "True or False",
		Args: []Argument{
			{Name: ArgTrueName, Label: "True Label", Kind: ArgText},
			{Name: ArgFalseName, Label: "False Label", Kind: ArgText},
		},
	},
	TagMeasurement: {
		Tag:   TagMeasurement,
		Label: "Measurement",
		Args: []Argument{
			{Name: ArgUnit, Label: "Unit", Kind: ArgText},
		},
	},
	TagString: {Tag: TagString, Label: "Text"},
	TagMetadata: {
		Tag:   TagMetadata,
		Label: "Entity Metadata",
		Args: []Argument{
			{
				Name:  ArgMetaType,
				Label: "Metadata Type",
				Kind:  ArgChoice,
				Options: []Option{
					{Value: string(MetaDeviceClass), Label: "Device Class"},
					{Value: string(MetaStateClass), Label: "State Class"},
					{Value: string(MetaFriendlyName), Label: "Friendly Name"},
					{Value: string(MetaIcon), Label: "Icon"},
					{Value: string(MetaAttribution), Label: "Attribution"},
				},
			},
		},
	},
	TagUnit: {
		Tag:   TagUnit,
		Label: "Unit",
		Args: []Argument{
			{Name: ArgFor, Label: "Applies To Field", Kind: ArgText},
		},
	},
	TagGeneric:   {Tag: TagGeneric, Label: "Generic Data"},
	TagJSON:      {Tag: TagJSON, Label: "JSON"},
	TagTimestamp: {Tag: TagTimestamp, Label: "Date/Time"},
	TagLocation: {
		Tag:   TagLocation,
		Label: "Latitude/Longitude",
		Args: []Argument{
			{
				Name:  ArgCoordinate,
				Label: "Coordinate",
				Kind:  ArgChoice,
				Options: []Option{
					{Value: string(AxisLatitude), Label: "Latitude"},
					{Value: string(AxisLongitude), Label: "Longitude"},
				},
			},
		},
	},
}

// Lookup returns a copy of the schema for tag.
func Lookup(tag Tag) (Schema, bool) {
	s, ok := registry[tag]
	if !ok {
		return Schema{}, false
	}
	return s.clone(), true
}

// Schemas returns copies of every schema in tag order.
func Schemas() []Schema {
	out := make([]Schema, 0, len(registry))
	for _, tag := range Tags() {
		out = append(out, registry[tag].clone())
	}
	return out
}

func (s Schema) clone() Schema {
	c := s
	c.Args = make([]Argument, len(s.Args))
	for i, a := range s.Args {
		c.Args[i] = a
		if a.Options != nil {
			c.Args[i].Options = append([]Option(nil), a.Options...)
		}
	}
	return c
}
