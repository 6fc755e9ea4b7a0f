package dispatch

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ham-dashboard/ham-client/internal/errors"
	"github.com/ham-dashboard/ham-client/internal/fieldtype"
	"github.com/ham-dashboard/ham-client/internal/types"
)

type fakeStore struct {
	entity  *types.TrackedEntity
	putErr  error
	posted  map[string]any
	tracked []fieldtype.TrackedField
	logging map[string]bool
	removed string
}

func (s *fakeStore) TrackEntity(_ context.Context, haid string, fields []fieldtype.TrackedField) (*types.TrackedEntity, error) {
	s.tracked = fields
	return &types.TrackedEntity{HAID: haid, TrackedValues: fields}, nil
}

func (s *fakeStore) UntrackEntity(_ context.Context, haid string) error {
	s.removed = haid
	return nil
}

func (s *fakeStore) PutTrackedField(_ context.Context, _ string, obj map[string]any) (*types.TrackedEntity, error) {
	s.posted = obj
	if s.putErr != nil {
		return nil, s.putErr
	}
	return s.entity, nil
}

func (s *fakeStore) StartLogging(_ context.Context, _, field string) error {
	s.logging[field] = true
	return nil
}

func (s *fakeStore) StopLogging(_ context.Context, _, field string) error {
	s.logging[field] = false
	return nil
}

func TestSubmitEdit(t *testing.T) {
	t.Parallel()

	store := &fakeStore{entity: &types.TrackedEntity{
		HAID: "sensor.a",
		TrackedValues: []fieldtype.TrackedField{
			{Field: "state", Logging: true, Type: fieldtype.Measurement{Unit: "kWh"}},
		},
	}}
	ed := NewEditor(store, zerolog.Nop())

	tf, err := ed.SubmitEdit(context.Background(), "sensor.a", "state", fieldtype.Measurement{Unit: "kWh"})
	require.NoError(t, err)
	assert.Equal(t, fieldtype.Measurement{Unit: "kWh"}, tf.Type)
	assert.True(t, tf.Logging)
	assert.Equal(t, map[string]any{"field": "state", "type": "measurement", "unit": "kWh"}, store.posted)
}

// echoStore persists whatever object it is sent, the way the backend does.
type echoStore struct {
	fakeStore
}

func (s *echoStore) PutTrackedField(_ context.Context, haid string, obj map[string]any) (*types.TrackedEntity, error) {
	s.posted = obj
	ft, err := fieldtype.Decode(obj)
	if err != nil {
		return nil, err
	}
	field, _ := obj["field"].(string)
	return &types.TrackedEntity{
		HAID:          haid,
		TrackedValues: []fieldtype.TrackedField{{Field: field, Type: ft}},
	}, nil
}

func TestSubmitEdit_RoundTripEveryTag(t *testing.T) {
	t.Parallel()

	entity := types.BasicState{
		EntityID:   "sensor.a",
		State:      "on",
		Attributes: map[string]any{"latitude": 52.1, "longitude": 4.3},
	}

	for _, tag := range fieldtype.Tags() {
		tag := tag
		t.Run(string(tag), func(t *testing.T) {
			t.Parallel()

			schema, ok := fieldtype.Lookup(tag)
			require.True(t, ok)
			params := map[string]string{}
			for _, a := range schema.Args {
				if a.Kind == fieldtype.ArgChoice {
					params[a.Name] = a.Options[len(a.Options)-1].Value
					continue
				}
				params[a.Name] = "on"
			}
			ft, err := fieldtype.New(tag, params)
			require.NoError(t, err)

			ed := NewEditor(&echoStore{}, zerolog.Nop())
			tf, err := ed.SubmitEdit(context.Background(), "sensor.a", "state", ft)
			require.NoError(t, err)

			assert.Equal(t, ft, tf.Type)
			assert.Equal(t, "state", tf.Field)
			assert.Equal(t, Render(entity.State, ft, entity), Render(entity.State, tf.Type, entity))
		})
	}
}

func TestSubmitEdit_InvalidTypeNotSent(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	ed := NewEditor(store, zerolog.Nop())

	_, err := ed.SubmitEdit(context.Background(), "sensor.a", "icon", fieldtype.Metadata{Kind: "colour"})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
	assert.Nil(t, store.posted)

	_, err = ed.SubmitEdit(context.Background(), "", "icon", fieldtype.String{})
	assert.Equal(t, errors.CodeMissingArgument, errors.GetCode(err))
}

func TestSubmitEdit_Rejected(t *testing.T) {
	t.Parallel()

	store := &fakeStore{putErr: errors.New(errors.ErrorTypeAPI, "nope")}
	ed := NewEditor(store, zerolog.Nop())

	_, err := ed.SubmitEdit(context.Background(), "sensor.a", "state", fieldtype.String{})
	require.Error(t, err)
	assert.True(t, errors.IsAPI(err))
	assert.Equal(t, errors.CodeFieldTypeRejected, errors.GetCode(err))
}

func TestSubmitEdit_NetworkErrorPassesThrough(t *testing.T) {
	t.Parallel()

	netErr := errors.Create(errors.CodeRequestFailed)
	store := &fakeStore{putErr: netErr}
	ed := NewEditor(store, zerolog.Nop())

	_, err := ed.SubmitEdit(context.Background(), "sensor.a", "state", fieldtype.String{})
	assert.Equal(t, errors.CodeRequestFailed, errors.GetCode(err))
}

func TestSubmitEdit_FieldMissingFromResponse(t *testing.T) {
	t.Parallel()

	store := &fakeStore{entity: &types.TrackedEntity{HAID: "sensor.a"}}
	ed := NewEditor(store, zerolog.Nop())

	_, err := ed.SubmitEdit(context.Background(), "sensor.a", "state", fieldtype.String{})
	assert.True(t, errors.IsNotFound(err))
}

func TestEditor_TrackAndLogging(t *testing.T) {
	t.Parallel()

	store := &fakeStore{logging: map[string]bool{}}
	ed := NewEditor(store, zerolog.Nop())
	ctx := context.Background()

	fields := fieldtype.ClassifyEntity("on", map[string]any{"icon": "mdi:lamp"})
	te, err := ed.Track(ctx, "light.a", fields)
	require.NoError(t, err)
	assert.Equal(t, "light.a", te.HAID)
	assert.Len(t, store.tracked, 2)

	_, err = ed.Track(ctx, "light.a", []fieldtype.TrackedField{{Field: "x", Type: fieldtype.Location{Axis: "up"}}})
	require.Error(t, err)

	require.NoError(t, ed.StartLogging(ctx, "light.a", "state"))
	assert.True(t, store.logging["state"])
	require.NoError(t, ed.StopLogging(ctx, "light.a", "state"))
	assert.False(t, store.logging["state"])

	require.NoError(t, ed.Untrack(ctx, "light.a"))
	assert.Equal(t, "light.a", store.removed)
}
