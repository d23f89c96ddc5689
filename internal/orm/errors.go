package orm

import (
	"errors"
	"fmt"
)

var (
	// ErrContextSpent indicates that Save already committed this context; load a new one.
	ErrContextSpent = errors.New("orm: context already saved")
	// ErrStaleRecord indicates that an update or delete matched no stored row.
	ErrStaleRecord = errors.New("orm: record not found in storage")
	// ErrUnknownEntity indicates that a schema is not registered with the model.
	ErrUnknownEntity = errors.New("orm: unknown entity")

	errMissingModel   = errors.New("model is required")
	errMissingGateway = errors.New("storage gateway is required")
)

// ConfigurationError reports a schema registration problem detected by NewModel.
type ConfigurationError struct {
	Entity string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Entity == "" {
		return fmt.Sprintf("orm: invalid model: %s", e.Reason)
	}
	return fmt.Sprintf("orm: invalid model: entity %s: %s", e.Entity, e.Reason)
}

func newConfigurationError(entity, format string, args ...any) error {
	return &ConfigurationError{Entity: entity, Reason: fmt.Sprintf(format, args...)}
}

// ValidationBatchError reports that one or more live records failed validation.
// It is returned before any storage call is made.
type ValidationBatchError struct {
	Entity  string
	Invalid int
	Total   int
	Causes  []error
}

func (e *ValidationBatchError) Error() string {
	return fmt.Sprintf("orm: %d of %d %s records failed validation", e.Invalid, e.Total, e.Entity)
}

func (e *ValidationBatchError) Unwrap() []error {
	return e.Causes
}

// ReferenceResolutionError reports a foreign key value with no matching target record.
type ReferenceResolutionError struct {
	Entity string
	Field  string
	Target string
	Key    any
}

func (e *ReferenceResolutionError) Error() string {
	return fmt.Sprintf("orm: %s.%s references missing %s with key %v", e.Entity, e.Field, e.Target, e.Key)
}

// StorageOperationError wraps a failure reported by the storage gateway.
type StorageOperationError struct {
	Entity    string
	Operation string
	Err       error
}

func (e *StorageOperationError) Error() string {
	if e.Entity == "" {
		return fmt.Sprintf("orm: storage %s: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("orm: storage %s %s: %v", e.Operation, e.Entity, e.Err)
}

func (e *StorageOperationError) Unwrap() error {
	return e.Err
}

// InternalDispatchError reports a failure of generic dispatch over an entity type
// that happened before any storage call for that type.
type InternalDispatchError struct {
	Entity    string
	Operation string
	Err       error
}

func (e *InternalDispatchError) Error() string {
	return fmt.Sprintf("orm: dispatch %s %s: %v", e.Operation, e.Entity, e.Err)
}

func (e *InternalDispatchError) Unwrap() error {
	return e.Err
}

// recoverDispatch converts a panic raised by user-supplied accessors into an
// InternalDispatchError assigned to target.
func recoverDispatch(entity, operation string, target *error) {
	recovered := recover()
	if recovered == nil {
		return
	}
	cause, ok := recovered.(error)
	if !ok {
		cause = fmt.Errorf("%v", recovered)
	}
	*target = &InternalDispatchError{Entity: entity, Operation: operation, Err: cause}
}
