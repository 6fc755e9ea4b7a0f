package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ham-dashboard/ham-client/internal/fieldtype"
)

func TestTrackedEntity_Decode(t *testing.T) {
	t.Parallel()

	body := `{
		"id": "a1",
		"last_update": 1718447445.5,
		"haid": "sensor.outdoor",
		"name": "outdoor",
		"type": "sensor",
		"tracked_values": [
			{"field": "state", "type": "measurement", "unit": "°C", "logging": true},
			{"field": "friendly_name", "type": "metadata", "metaType": "friendly_name"}
		]
	}`

	var te TrackedEntity
	require.NoError(t, json.Unmarshal([]byte(body), &te))
	assert.Equal(t, "sensor.outdoor", te.HAID)
	require.Len(t, te.TrackedValues, 2)

	f, ok := te.Field("state")
	require.True(t, ok)
	assert.True(t, f.Logging)
	assert.Equal(t, fieldtype.Measurement{Unit: "°C"}, f.Type)

	_, ok = te.Field("missing")
	assert.False(t, ok)

	assert.Equal(t, time.Unix(1718447445, 500000000), te.LastUpdateTime())
}

func TestTrackedEntity_RejectsBadField(t *testing.T) {
	t.Parallel()

	body := `{"haid": "x.y", "tracked_values": [{"field": "state", "type": "boolean"}]}`
	var te TrackedEntity
	assert.Error(t, json.Unmarshal([]byte(body), &te))
}

func TestStatesEvent_NewBasicState(t *testing.T) {
	t.Parallel()

	payload := `{
		"event_type": "state_changed",
		"data": {
			"entity_id": "light.kitchen",
			"old_state": null,
			"new_state": {"entity_id": "light.kitchen", "state": "on", "attributes": {"brightness": 200}}
		}
	}`
	var ev StatesEvent
	require.NoError(t, json.Unmarshal([]byte(payload), &ev))

	bs, ok := ev.NewBasicState("light.kitchen")
	require.True(t, ok)
	assert.Equal(t, "on", bs.State)
	assert.Equal(t, float64(200), bs.Attributes["brightness"])

	_, ok = ev.NewBasicState("light.hall")
	assert.False(t, ok)

	ev.Data.NewState = nil
	_, ok = ev.NewBasicState("light.kitchen")
	assert.False(t, ok)
}

func TestEntity_Basic(t *testing.T) {
	t.Parallel()

	e := Entity{ID: "sensor.a", State: "12", Attributes: map[string]any{"unit_of_measurement": "W"}}
	bs := e.Basic()

	v, ok := bs.Value("state")
	assert.True(t, ok)
	assert.Equal(t, "12", v)

	v, ok = bs.Value("unit_of_measurement")
	assert.True(t, ok)
	assert.Equal(t, "W", v)
}

func TestSplitEntityID(t *testing.T) {
	t.Parallel()

	d, n := SplitEntityID("sensor.outdoor.temp")
	assert.Equal(t, "sensor", d)
	assert.Equal(t, "outdoor.temp", n)

	d, n = SplitEntityID("bare")
	assert.Empty(t, d)
	assert.Equal(t, "bare", n)
}

func TestTrackedEventType(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "entity.tracked.sensor.a", TrackedEventType("sensor.a"))
}
