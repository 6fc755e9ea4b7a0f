// Package types provides the entity and event shapes exchanged with the
// dashboard backend.
package types

import (
	"strings"
	"time"

	"github.com/ham-dashboard/ham-client/internal/fieldtype"
)

// Event types published by the backend.
const (
	EventStates        = "states"
	EventViews         = "views"
	EventData          = "data"
	EventHAStatus      = "ha_status"
	trackedEventPrefix = "entity.tracked."
)

// TrackedEventType is the event type carrying updates to one tracked entity.
func TrackedEventType(haid string) string {
	return trackedEventPrefix + haid
}

// Entity is the backend's read-only view of a Home Assistant entity.
type Entity struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Type        string         `json:"type"`
	State       any            `json:"state"`
	Attributes  map[string]any `json:"attributes"`
	LastChanged *string        `json:"last_changed,omitempty"`
	LastUpdated *string        `json:"last_updated,omitempty"`
	Tracked     bool           `json:"tracked"`
}

// Basic returns the live-view projection of the entity.
func (e *Entity) Basic() BasicState {
	return BasicState{EntityID: e.ID, State: e.State, Attributes: e.Attributes}
}

// BasicState is the live view of an entity.
type BasicState struct {
	EntityID   string         `json:"entityId"`
	State      any            `json:"state"`
	Attributes map[string]any `json:"attributes"`
}

// Value returns the value of field ("state" or an attribute name).
func (b BasicState) Value(field string) (any, bool) {
	return fieldtype.ValueOf(field, b.State, b.Attributes)
}

// TrackedEntity is an entity opted into tracking with its typed fields.
type TrackedEntity struct {
	ID            string                   `json:"id"`
	LastUpdate    float64                  `json:"last_update"`
	HAID          string                   `json:"haid"`
	Name          string                   `json:"name"`
	Type          string                   `json:"type"`
	TrackedValues []fieldtype.TrackedField `json:"tracked_values"`
}

// Field returns the tracked field with the given name.
func (t *TrackedEntity) Field(name string) (fieldtype.TrackedField, bool) {
	for _, tf := range t.TrackedValues {
		if tf.Field == name {
			return tf, true
		}
	}
	return fieldtype.TrackedField{}, false
}

// LastUpdateTime converts LastUpdate (Unix seconds) to a time.
func (t *TrackedEntity) LastUpdateTime() time.Time {
	if t.LastUpdate <= 0 {
		return time.Time{}
	}
	sec := int64(t.LastUpdate)
	nsec := int64((t.LastUpdate - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec)
}

// StateSnapshot is a Home Assistant state object inside a state_changed event.
type StateSnapshot struct {
	EntityID    string         `json:"entity_id"`
	State       any            `json:"state"`
	Attributes  map[string]any `json:"attributes"`
	LastChanged string         `json:"last_changed,omitempty"`
	LastUpdated string         `json:"last_updated,omitempty"`
}

// StateChangedData is the data of a state_changed event.
type StateChangedData struct {
	EntityID string         `json:"entity_id"`
	OldState *StateSnapshot `json:"old_state"`
	NewState *StateSnapshot `json:"new_state"`
}

// StatesEvent is the payload of a "states" event.
type StatesEvent struct {
	EventType string           `json:"event_type,omitempty"`
	TimeFired string           `json:"time_fired,omitempty"`
	Origin    string           `json:"origin,omitempty"`
	Data      StateChangedData `json:"data"`
}

// NewBasicState returns the live view carried by the event, or false when
// the event does not describe entityID or the entity was removed.
func (e StatesEvent) NewBasicState(entityID string) (BasicState, bool) {
	if e.Data.EntityID != entityID || e.Data.NewState == nil {
		return BasicState{}, false
	}
	ns := e.Data.NewState
	return BasicState{EntityID: ns.EntityID, State: ns.State, Attributes: ns.Attributes}, true
}

// SplitEntityID splits "sensor.outdoor" into its domain and object id.
func SplitEntityID(id string) (domain, name string) {
	domain, name, ok := strings.Cut(id, ".")
	if !ok {
		return "", id
	}
	return domain, name
}
