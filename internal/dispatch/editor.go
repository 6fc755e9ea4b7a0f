package dispatch

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/ham-dashboard/ham-client/internal/errors"
	"github.com/ham-dashboard/ham-client/internal/fieldtype"
	"github.com/ham-dashboard/ham-client/internal/types"
)

// TrackedStore is the backend surface the Editor writes through.
type TrackedStore interface {
	TrackEntity(ctx context.Context, haid string, fields []fieldtype.TrackedField) (*types.TrackedEntity, error)
	UntrackEntity(ctx context.Context, haid string) error
	PutTrackedField(ctx context.Context, haid string, obj map[string]any) (*types.TrackedEntity, error)
	StartLogging(ctx context.Context, haid, field string) error
	StopLogging(ctx context.Context, haid, field string) error
}

// Editor persists field type changes for tracked entities.
type Editor struct {
	store  TrackedStore
	logger zerolog.Logger
}

// NewEditor returns an Editor writing through store.
func NewEditor(store TrackedStore, logger zerolog.Logger) *Editor {
	return &Editor{store: store, logger: logger}
}

// SubmitEdit replaces the type of field on the tracked entity. The whole
// variant is sent, not a patch. On success the persisted field is returned
// as the backend stored it. Rejections are api errors with code
// field_type_rejected; nothing is changed locally in that case.
func (e *Editor) SubmitEdit(ctx context.Context, entityID, field string, ft fieldtype.FieldType) (*fieldtype.TrackedField, error) {
	if entityID == "" || field == "" {
		return nil, errors.CreateWithMessage(errors.CodeMissingArgument, "entity id and field are required")
	}
	if err := fieldtype.Check(ft); err != nil {
		return nil, err
	}

	te, err := e.store.PutTrackedField(ctx, entityID, fieldtype.Object(field, ft))
	if err != nil {
		if errors.IsNetwork(err) || errors.IsTimeout(err) || errors.IsCanceled(err) || errors.IsAuth(err) {
			return nil, err
		}
		e.logger.Warn().Err(err).Str("entity", entityID).Str("field", field).Msg("field type rejected")
		return nil, errors.CreateWithCause(errors.CodeFieldTypeRejected, err).WithPath(entityID + "/" + field)
	}

	persisted, ok := te.Field(field)
	if !ok {
		return nil, errors.Create(errors.CodeFieldNotTracked).WithPath(entityID + "/" + field)
	}
	e.logger.Debug().Str("entity", entityID).Str("field", field).Str("type", string(persisted.Type.Tag())).Msg("field type updated")
	return &persisted, nil
}

// Track starts tracking entity with the given fields.
func (e *Editor) Track(ctx context.Context, entityID string, fields []fieldtype.TrackedField) (*types.TrackedEntity, error) {
	for _, f := range fields {
		if err := fieldtype.Check(f.Type); err != nil {
			var typed *errors.Error
			if errors.As(err, &typed) {
				return nil, typed.WithPath(f.Field)
			}
			return nil, err
		}
	}
	return e.store.TrackEntity(ctx, entityID, fields)
}

// Untrack stops tracking entity.
func (e *Editor) Untrack(ctx context.Context, entityID string) error {
	return e.store.UntrackEntity(ctx, entityID)
}

// StartLogging enables value logging for a tracked field.
func (e *Editor) StartLogging(ctx context.Context, entityID, field string) error {
	return e.store.StartLogging(ctx, entityID, field)
}

// StopLogging disables value logging for a tracked field.
func (e *Editor) StopLogging(ctx context.Context, entityID, field string) error {
	return e.store.StopLogging(ctx, entityID, field)
}
