package testfixtures

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/ham-dashboard/ham-client/internal/types"
)

// Paths served by Backend.
const (
	EventsPath   = "/api/events"
	EventsWSPath = "/api/events/ws"
)

type trackedRecord struct {
	ID         string
	LastUpdate float64
	HAID       string
	Name       string
	Type       string
	Values     []map[string]any
}

func (r *trackedRecord) view() map[string]any {
	values := r.Values
	if values == nil {
		values = []map[string]any{}
	}
	return map[string]any{
		"id":             r.ID,
		"last_update":    r.LastUpdate,
		"haid":           r.HAID,
		"name":           r.Name,
		"type":           r.Type,
		"tracked_values": values,
	}
}

// Backend is a fake dashboard backend: REST endpoints for entities and
// tracked entities plus the event stream.
type Backend struct {
	*httptest.Server
	*Hub

	mu         sync.Mutex
	token      string
	entities   map[string]types.Entity
	tracked    map[string]*trackedRecord
	rejectPut  string
	requests   map[string]int
	lastBodies map[string]any
}

// NewBackend starts a fake backend. When token is non-empty every request
// must carry it as a bearer credential.
func NewBackend(t *testing.T, token string) *Backend {
	t.Helper()
	b := &Backend{
		Hub:        NewHub(),
		token:      token,
		entities:   make(map[string]types.Entity),
		tracked:    make(map[string]*trackedRecord),
		requests:   make(map[string]int),
		lastBodies: make(map[string]any),
	}

	r := mux.NewRouter()
	r.Use(b.count, b.auth)
	r.HandleFunc(EventsPath, b.ServeSSE).Methods(http.MethodGet)
	r.HandleFunc(EventsWSPath, b.ServeWS).Methods(http.MethodGet)

	api := r.PathPrefix("/api/ha").Subrouter()
	api.HandleFunc("/entities", b.listEntities).Methods(http.MethodGet)
	api.HandleFunc("/entities/tracked", b.listTracked).Methods(http.MethodGet)
	api.HandleFunc("/entities/tracked/{haid}", b.getTracked).Methods(http.MethodGet)
	api.HandleFunc("/entities/tracked/{haid}", b.track).Methods(http.MethodPost)
	api.HandleFunc("/entities/tracked/{haid}", b.untrack).Methods(http.MethodDelete)
	api.HandleFunc("/entities/tracked/{haid}/values", b.putValue).Methods(http.MethodPost)
	api.HandleFunc("/entities/tracked/{haid}/values/{field}/logging", b.logging(true)).Methods(http.MethodPost)
	api.HandleFunc("/entities/tracked/{haid}/values/{field}/logging", b.logging(false)).Methods(http.MethodDelete)
	api.HandleFunc("/entities/{id}", b.getEntity).Methods(http.MethodGet)

	b.Server = httptest.NewServer(r)
	t.Cleanup(func() {
		b.Disconnect()
		b.Server.Close()
	})
	return b
}

// WSURL returns the WebSocket URL of the event stream.
func (b *Backend) WSURL() string {
	return "ws" + strings.TrimPrefix(b.URL, "http") + EventsWSPath
}

// SetEntity stores or replaces an entity.
func (b *Backend) SetEntity(e types.Entity) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entities[e.ID] = e
}

// SetState changes an entity's state and publishes the matching "states"
// event the way Home Assistant reports state_changed.
func (b *Backend) SetState(entityID string, state any, attrs map[string]any) {
	b.mu.Lock()
	old, existed := b.entities[entityID]
	e := old
	domain, name := types.SplitEntityID(entityID)
	e.ID, e.Type, e.Name = entityID, domain, name
	e.State = state
	e.Attributes = attrs
	b.entities[entityID] = e
	b.mu.Unlock()

	var oldState any
	if existed {
		oldState = snapshot(old)
	}
	b.Publish(types.EventStates, map[string]any{
		"event_type": "state_changed",
		"time_fired": time.Now().UTC().Format(time.RFC3339Nano),
		"origin":     "LOCAL",
		"data": map[string]any{
			"entity_id": entityID,
			"old_state": oldState,
			"new_state": snapshot(e),
		},
	})
}

func snapshot(e types.Entity) map[string]any {
	return map[string]any{"entity_id": e.ID, "state": e.State, "attributes": e.Attributes}
}

// RejectValues makes value updates fail with the given backend detail code.
// An empty code accepts again.
func (b *Backend) RejectValues(code string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rejectPut = code
}

// Requests returns how often "METHOD path" was requested.
func (b *Backend) Requests(method, path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.requests[method+" "+path]
}

// LastBody returns the decoded body of the last request to "METHOD path".
func (b *Backend) LastBody(method, path string) any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastBodies[method+" "+path]
}

// TrackedValues returns the stored tracked values of haid.
func (b *Backend) TrackedValues(haid string) []map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.tracked[haid]
	if !ok {
		return nil
	}
	return append([]map[string]any(nil), rec.Values...)
}

func (b *Backend) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.requests[r.Method+" "+r.URL.Path]++
		b.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b.token != "" && r.Header.Get("Authorization") != "Bearer "+b.token {
			writeDetail(w, http.StatusUnauthorized, "auth.invalid", "Invalid credential.", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) listEntities(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	out := make([]types.Entity, 0, len(b.entities))
	for _, e := range b.entities {
		e.Tracked = b.tracked[e.ID] != nil
		out = append(out, e)
	}
	b.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) getEntity(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	b.mu.Lock()
	e, ok := b.entities[id]
	e.Tracked = b.tracked[id] != nil
	b.mu.Unlock()
	if !ok {
		writeDetail(w, http.StatusNotFound, "entity.invalid_id", "Entity with id "+id+" does not exist.", nil)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (b *Backend) listTracked(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	out := make([]map[string]any, 0, len(b.tracked))
	for _, rec := range b.tracked {
		out = append(out, rec.view())
	}
	b.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i]["haid"].(string) < out[j]["haid"].(string) })
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) getTracked(w http.ResponseWriter, r *http.Request) {
	haid := mux.Vars(r)["haid"]
	b.mu.Lock()
	rec, ok := b.tracked[haid]
	var view map[string]any
	if ok {
		view = rec.view()
	}
	b.mu.Unlock()
	if !ok {
		notTracked(w, haid)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (b *Backend) track(w http.ResponseWriter, r *http.Request) {
	haid := mux.Vars(r)["haid"]
	var values []map[string]any
	if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
		writeDetail(w, http.StatusBadRequest, "request.invalid_body", err.Error(), nil)
		return
	}
	b.record(r, values)

	b.mu.Lock()
	e, ok := b.entities[haid]
	if !ok {
		b.mu.Unlock()
		writeDetail(w, http.StatusNotFound, "entity.invalid_id", "Entity with id "+haid+" does not exist.", nil)
		return
	}
	if _, exists := b.tracked[haid]; exists {
		b.mu.Unlock()
		writeDetail(w, http.StatusMethodNotAllowed, "entity.tracking.already_tracked", "That entity is already being tracked.", nil)
		return
	}
	rec := &trackedRecord{
		ID:         uuid.NewString(),
		LastUpdate: float64(time.Now().UnixMilli()) / 1000,
		HAID:       haid,
		Name:       e.Name,
		Type:       e.Type,
		Values:     values,
	}
	b.tracked[haid] = rec
	view := rec.view()
	b.mu.Unlock()

	writeJSON(w, http.StatusCreated, view)
}

func (b *Backend) untrack(w http.ResponseWriter, r *http.Request) {
	haid := mux.Vars(r)["haid"]
	b.mu.Lock()
	_, ok := b.tracked[haid]
	delete(b.tracked, haid)
	b.mu.Unlock()
	if !ok {
		notTracked(w, haid)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) putValue(w http.ResponseWriter, r *http.Request) {
	haid := mux.Vars(r)["haid"]
	var value map[string]any
	if err := json.NewDecoder(r.Body).Decode(&value); err != nil {
		writeDetail(w, http.StatusBadRequest, "request.invalid_body", err.Error(), nil)
		return
	}
	b.record(r, value)

	b.mu.Lock()
	if b.rejectPut != "" {
		code := b.rejectPut
		b.mu.Unlock()
		writeDetail(w, http.StatusBadRequest, code, "Value rejected.", map[string]any{"field": value["field"]})
		return
	}
	rec, ok := b.tracked[haid]
	if !ok {
		b.mu.Unlock()
		notTracked(w, haid)
		return
	}
	field, _ := value["field"].(string)
	rec.Values = append(without(rec.Values, field), value)
	rec.LastUpdate = float64(time.Now().UnixMilli()) / 1000
	view := rec.view()
	b.mu.Unlock()

	b.Publish(types.TrackedEventType(haid), view)
	writeJSON(w, http.StatusCreated, view)
}

func (b *Backend) logging(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		haid, field := vars["haid"], vars["field"]

		b.mu.Lock()
		rec, ok := b.tracked[haid]
		if !ok {
			b.mu.Unlock()
			notTracked(w, haid)
			return
		}
		var found map[string]any
		for _, v := range rec.Values {
			if v["field"] == field {
				found = v
			}
		}
		if found == nil {
			b.mu.Unlock()
			writeDetail(w, http.StatusNotFound, "entity.tracking.invalid_field", "Field "+field+" is not tracked.", nil)
			return
		}
		found["logging"] = enabled
		rec.Values = append(without(rec.Values, field), found)
		view := rec.view()
		b.mu.Unlock()

		b.Publish(types.TrackedEventType(haid), view)
		writeJSON(w, http.StatusCreated, nil)
	}
}

func (b *Backend) record(r *http.Request, body any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastBodies[r.Method+" "+r.URL.Path] = body
}

func without(values []map[string]any, field string) []map[string]any {
	out := make([]map[string]any, 0, len(values))
	for _, v := range values {
		if v["field"] != field {
			out = append(out, v)
		}
	}
	return out
}

func notTracked(w http.ResponseWriter, haid string) {
	writeDetail(w, http.StatusNotFound, "entity.tracking.invalid_id", "Entity with id "+haid+" is not being tracked.", nil)
}

// Detail encodes a backend error detail: a JSON document carried as a string.
func Detail(code, message string, data map[string]any) string {
	b, _ := json.Marshal(map[string]any{"code": code, "message": message, "data": data})
	return string(b)
}

func writeDetail(w http.ResponseWriter, status int, code, message string, data map[string]any) {
	writeJSON(w, status, map[string]any{"status_code": status, "detail": Detail(code, message, data)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
