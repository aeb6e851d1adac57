// Package errors defines error types and utilities for tablerecord
package errors

import (
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

// Common errors that can occur in tablerecord operations
var (
	// ErrItemNotFound is returned by single-item lookups when no item matches the key
	ErrItemNotFound = errors.New("item not found")

	// ErrIndexNotFound is returned when a selected index is not part of the schema
	ErrIndexNotFound = errors.New("index not found")

	// ErrIncompleteKeySchema is returned when a key schema has a RANGE element but no HASH element
	ErrIncompleteKeySchema = errors.New("incomplete key schema")

	// ErrMissingPartitionKey is returned when a partition key is required but absent
	ErrMissingPartitionKey = errors.New("missing partition key")

	// ErrDuplicateKey is returned when a key role is defined twice for different attributes
	ErrDuplicateKey = errors.New("duplicate key definition")

	// ErrDuplicateIndex is returned when two indexes share a name
	ErrDuplicateIndex = errors.New("duplicate index")

	// ErrInvalidProjection is returned when an index projection is malformed
	ErrInvalidProjection = errors.New("invalid projection")

	// ErrInvalidAttributeType is returned for attribute types other than S, N and B
	ErrInvalidAttributeType = errors.New("invalid attribute type")

	// ErrInvalidOperator is returned when an invalid query operator is used
	ErrInvalidOperator = errors.New("invalid query operator")

	// ErrInvalidLimit is returned for non-positive limits
	ErrInvalidLimit = errors.New("invalid limit")

	// ErrInvalidRecord is returned when a record fails validation
	ErrInvalidRecord = errors.New("invalid record")

	// ErrModelNotRegistered is returned when a record type has no registered schema
	ErrModelNotRegistered = errors.New("model not registered")

	// ErrConditionFailed is returned when a conditional write is rejected
	ErrConditionFailed = errors.New("condition check failed")

	// ErrSchemaMismatch is returned when a live table does not match the registered schema
	ErrSchemaMismatch = errors.New("schema mismatch")
)

// SchemaError reports a problem with a key schema or index lookup.
type SchemaError struct {
	Err   error
	Model string
	Op    string
}

func (e *SchemaError) Error() string {
	if e.Model == "" {
		return fmt.Sprintf("tablerecord: schema error during %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("tablerecord: schema error during %s on %s: %v", e.Op, e.Model, e.Err)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// NewSchemaError creates a SchemaError
func NewSchemaError(op, model string, err error) *SchemaError {
	return &SchemaError{Op: op, Model: model, Err: err}
}

// ValidationError reports a caller-side problem detected before a request is sent.
type ValidationError struct {
	Err   error
	Field string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("tablerecord: validation failed: %v", e.Err)
	}
	return fmt.Sprintf("tablerecord: validation failed for %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a ValidationError
func NewValidationError(field string, err error) *ValidationError {
	return &ValidationError{Field: field, Err: err}
}

// RecordError represents a failed record operation with context
type RecordError struct {
	Err     error
	Context map[string]any
	Op      string
	Model   string
}

// Error implements the error interface
func (e *RecordError) Error() string {
	// Model and context stay out of the message; they are available to callers via errors.As.
	return fmt.Sprintf("tablerecord: %s operation failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *RecordError) Unwrap() error {
	return e.Err
}

// Is checks if the error matches the target error
func (e *RecordError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewError creates a new RecordError
func NewError(op, model string, err error) *RecordError {
	return &RecordError{
		Op:    op,
		Model: model,
		Err:   err,
	}
}

// NewErrorWithContext creates a new RecordError with context
func NewErrorWithContext(op, model string, err error, context map[string]any) *RecordError {
	return &RecordError{
		Op:      op,
		Model:   model,
		Err:     err,
		Context: context,
	}
}

// IsNotFound checks if an error indicates an item was not found
func IsNotFound(err error) bool {
	return errors.Is(err, ErrItemNotFound)
}

// IsSchemaError reports whether err is or wraps a SchemaError
func IsSchemaError(err error) bool {
	var target *SchemaError
	return errors.As(err, &target)
}

// IsValidationError reports whether err is or wraps a ValidationError
func IsValidationError(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsConditionFailed checks if an error indicates a condition check failure
func IsConditionFailed(err error) bool {
	if errors.Is(err, ErrConditionFailed) {
		return true
	}
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

// IsBackendError reports whether err carries an error returned by the store.
func IsBackendError(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr)
}

// IsResourceNotFound reports whether the store rejected a call because the table does not exist.
func IsResourceNotFound(err error) bool {
	var rnf *types.ResourceNotFoundException
	return errors.As(err, &rnf)
}
