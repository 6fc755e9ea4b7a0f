package errors

import "sync"

// ErrorDefinition holds the definition of a registered error.
type ErrorDefinition struct {
	Code    string
	Type    ErrorType
	Message string
}

// Registry holds registered error definitions for consistent error creation.
type Registry struct {
	mu          sync.RWMutex
	definitions map[string]ErrorDefinition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{definitions: make(map[string]ErrorDefinition)}
}

// Register adds or overwrites a definition.
func (r *Registry) Register(def ErrorDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.definitions[def.Code] = def
}

// Get returns the definition for code, or nil.
func (r *Registry) Get(code string) *ErrorDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if def, ok := r.definitions[code]; ok {
		return &def
	}
	return nil
}

// Create builds an Error from a registered definition.
// Unregistered codes produce an internal error carrying the code.
func (r *Registry) Create(code string) *Error {
	def := r.Get(code)
	if def == nil {
		return &Error{Type: ErrorTypeInternal, Code: code, Message: "unregistered error code", Details: make(map[string]any)}
	}
	return &Error{Type: def.Type, Code: def.Code, Message: def.Message, Details: make(map[string]any)}
}

// CreateWithMessage builds an Error from a definition with a custom message.
func (r *Registry) CreateWithMessage(code, message string) *Error {
	e := r.Create(code)
	e.Message = message
	return e
}

// CreateWithCause builds an Error from a definition wrapping cause.
func (r *Registry) CreateWithCause(code string, cause error) *Error {
	e := r.Create(code)
	e.Cause = cause
	return e
}

// DefaultRegistry is the process-wide registry.
var DefaultRegistry = NewRegistry()

// Register adds a definition to DefaultRegistry.
func Register(def ErrorDefinition) { DefaultRegistry.Register(def) }

// Create builds an Error from DefaultRegistry.
func Create(code string) *Error { return DefaultRegistry.Create(code) }

// CreateWithMessage builds an Error from DefaultRegistry with a custom message.
func CreateWithMessage(code, message string) *Error {
	return DefaultRegistry.CreateWithMessage(code, message)
}

// CreateWithCause builds an Error from DefaultRegistry wrapping cause.
func CreateWithCause(code string, cause error) *Error {
	return DefaultRegistry.CreateWithCause(code, cause)
}

// Error codes.
const (
	// Event channel
	CodeConnectionFailed  = "connection_failed"
	CodeConnectionDropped = "connection_dropped"
	CodeChannelClosed     = "channel_closed"
	CodeCredentialMissing = "credential_missing"
	CodeMalformedEvent    = "malformed_event"
	CodeUnexpectedStatus  = "unexpected_status"

	// Subscriptions
	CodeInvalidSubscription = "invalid_subscription"

	// Field types
	CodeInvalidFieldType  = "invalid_field_type"
	CodeUnknownFieldType  = "unknown_field_type"
	CodeFieldTypeRejected = "field_type_rejected"

	// Entities
	CodeEntityNotFound   = "entity_not_found"
	CodeEntityNotTracked = "entity_not_tracked"
	CodeFieldNotTracked  = "field_not_tracked"

	// Requests
	CodeRequestFailed  = "request_failed"
	CodeRequestBuild   = "request_build_failed"
	CodeResponseDecode = "response_decode_failed"
	CodeUnauthorized   = "unauthorized"

	// Arguments and configuration
	CodeMissingArgument = "missing_argument"
	CodeInvalidArgument = "invalid_argument"
	CodeInvalidConfig   = "invalid_config"
)

func init() {
	for _, def := range []ErrorDefinition{
		{CodeConnectionFailed, ErrorTypeNetwork, "failed to open event stream"},
		{CodeConnectionDropped, ErrorTypeNetwork, "event stream dropped"},
		{CodeChannelClosed, ErrorTypeSubscription, "event channel is closed"},
		{CodeCredentialMissing, ErrorTypeAuth, "no credential available"},
		{CodeMalformedEvent, ErrorTypeParsing, "malformed event"},
		{CodeUnexpectedStatus, ErrorTypeNetwork, "unexpected response status"},
		{CodeInvalidSubscription, ErrorTypeValidation, "invalid subscription"},
		{CodeInvalidFieldType, ErrorTypeValidation, "invalid field type parameters"},
		{CodeUnknownFieldType, ErrorTypeValidation, "unknown field type"},
		{CodeFieldTypeRejected, ErrorTypeAPI, "backend rejected field type"},
		{CodeEntityNotFound, ErrorTypeNotFound, "entity not found"},
		{CodeEntityNotTracked, ErrorTypeNotFound, "entity is not tracked"},
		{CodeFieldNotTracked, ErrorTypeNotFound, "field is not tracked"},
		{CodeRequestFailed, ErrorTypeNetwork, "request failed"},
		{CodeRequestBuild, ErrorTypeInternal, "failed to build request"},
		{CodeResponseDecode, ErrorTypeParsing, "failed to decode response"},
		{CodeUnauthorized, ErrorTypeAuth, "credential rejected"},
		{CodeMissingArgument, ErrorTypeValidation, "missing argument"},
		{CodeInvalidArgument, ErrorTypeValidation, "invalid argument"},
		{CodeInvalidConfig, ErrorTypeValidation, "invalid configuration"},
	} {
		Register(def)
	}
}
