package validation

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// StructValidator checks records against their `validate` struct tags.
type StructValidator struct {
	validate *validator.Validate
}

// NewStructValidator returns a validator that requires struct tags to be satisfied.
func NewStructValidator() *StructValidator {
	return &StructValidator{validate: validator.New(validator.WithRequiredStructEnabled())}
}

// Validate returns nil when record satisfies its tags. Navigation fields must be
// tagged `validate:"-"` so only persistable values are checked.
func (v *StructValidator) Validate(record any) error {
	if record == nil {
		return errors.New("validation: nil record")
	}
	err := v.validate.Struct(record)
	if err == nil {
		return nil
	}
	var fieldErrors validator.ValidationErrors
	if errors.As(err, &fieldErrors) {
		return &RecordError{Record: record, Fields: fieldErrors}
	}
	return err
}

// RecordError lists the failed constraints of one record.
type RecordError struct {
	Record any
	Fields validator.ValidationErrors
}

func (e *RecordError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("validation: %T is invalid", e.Record)
	}
	first := e.Fields[0]
	return fmt.Sprintf("validation: %T.%s failed %q (%d violations)", e.Record, first.StructField(), first.Tag(), len(e.Fields))
}

func (e *RecordError) Unwrap() error {
	return e.Fields
}
