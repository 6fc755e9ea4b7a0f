// Package dispatch turns a field value and its FieldType into a display
// description, drives the field type edit form and submits edits to the
// backend. Every switch over FieldType here covers all variants.
package dispatch

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ham-dashboard/ham-client/internal/fieldtype"
	"github.com/ham-dashboard/ham-client/internal/types"
)

// Kind is the presentational shape of a rendered value.
type Kind string

// Display kinds.
const (
	KindText  Kind = "text"
	KindCode  Kind = "code"
	KindBadge Kind = "badge"
	KindBlock Kind = "block"
	KindLink  Kind = "link"
)

// Badge colors.
const (
	ColorGreen = "green"
	ColorRed   = "red"
	ColorNone  = ""
)

// InvalidDate is shown for timestamps that do not parse.
const InvalidDate = "Invalid Date"

// TimeLayout is the local-time format of rendered timestamps.
const TimeLayout = "2006-01-02 15:04:05"

const mapsURL = "https://www.google.com/maps/@%s,%s,13z"

// Action is an interactive element attached to a display.
type Action struct {
	Label    string `json:"label"`
	URL      string `json:"url,omitempty"`
	Disabled bool   `json:"disabled"`
}

// Display describes how a value is presented.
type Display struct {
	Tag      fieldtype.Tag `json:"type"`
	Kind     Kind          `json:"kind"`
	Text     string        `json:"text"`
	Color    string        `json:"color,omitempty"`
	Emphasis string        `json:"emphasis,omitempty"`
	Action   *Action       `json:"action,omitempty"`
}

// Render produces the display of value under ft. entity supplies sibling
// attributes for variants that read them (location). Render is pure; a
// FieldType outside the known variants is a programming error and panics.
func Render(value any, ft fieldtype.FieldType, entity types.BasicState) Display {
	switch v := ft.(type) {
	case fieldtype.Boolean:
		return renderBoolean(value, v)
	case fieldtype.Measurement:
		return Display{Tag: v.Tag(), Kind: KindText, Text: text(value) + " " + v.Unit}
	case fieldtype.String:
		return Display{Tag: v.Tag(), Kind: KindText, Text: text(value)}
	case fieldtype.Metadata:
		label := strings.Replace(string(v.Kind), "_", " ", 1)
		return Display{Tag: v.Tag(), Kind: KindBadge, Text: label + ": " + text(value)}
	case fieldtype.Unit:
		return Display{Tag: v.Tag(), Kind: KindBadge, Text: v.For + " : " + text(value)}
	case fieldtype.Generic:
		return Display{Tag: v.Tag(), Kind: KindCode, Text: text(value)}
	case fieldtype.JSON:
		return Display{Tag: v.Tag(), Kind: KindBlock, Text: indentJSON(value)}
	case fieldtype.Timestamp:
		return Display{Tag: v.Tag(), Kind: KindCode, Text: renderTime(value)}
	case fieldtype.Location:
		return renderLocation(v, entity)
	}
	panic(fmt.Sprintf("dispatch: unhandled field type %T", ft))
}

// Truth reports whether value is the true side of a boolean field: its text
// equals TrueLabel, ignoring case.
func Truth(value any, b fieldtype.Boolean) bool {
	return strings.EqualFold(text(value), b.TrueLabel)
}

func renderBoolean(value any, b fieldtype.Boolean) Display {
	if Truth(value, b) {
		return Display{Tag: fieldtype.TagBoolean, Kind: KindBadge, Text: b.TrueLabel, Color: ColorGreen}
	}
	return Display{Tag: fieldtype.TagBoolean, Kind: KindBadge, Text: b.FalseLabel, Color: ColorRed}
}

func renderLocation(l fieldtype.Location, entity types.BasicState) Display {
	lat, latOK := coordinate(entity.Attributes, fieldtype.AxisLatitude)
	lon, lonOK := coordinate(entity.Attributes, fieldtype.AxisLongitude)

	d := Display{
		Tag:      fieldtype.TagLocation,
		Kind:     KindLink,
		Text:     lat + " °, " + lon + " °",
		Emphasis: string(l.Axis),
		Action:   &Action{Label: "Open map", Disabled: !latOK || !lonOK},
	}
	if latOK && lonOK {
		d.Action.URL = fmt.Sprintf(mapsURL, lat, lon)
	}
	return d
}

func coordinate(attrs map[string]any, axis fieldtype.Axis) (string, bool) {
	if s, ok := fieldtype.Stringify(attrs[string(axis)]); ok {
		return s, true
	}
	return "?", false
}

func renderTime(value any) string {
	s, ok := fieldtype.Stringify(value)
	if !ok {
		return InvalidDate
	}
	t, ok := fieldtype.ParseTime(s)
	if !ok {
		return InvalidDate
	}
	return t.In(time.Local).Format(TimeLayout)
}

func indentJSON(value any) string {
	b, err := json.MarshalIndent(value, "", "    ")
	if err != nil {
		return text(value)
	}
	return string(b)
}

func text(value any) string {
	s, _ := fieldtype.Stringify(value)
	return s
}
