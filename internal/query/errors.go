package query

import (
	"errors"
	"fmt"
)

// Error represents a failure detected while interpreting or compiling a query.
//
// Query errors include:
//   - Unknown operator: operator name outside the closed set
//   - Unmapped field: field-mapping transform found no target for a field
//   - Empty aggregate: aggregate query selects nothing
//   - Malformed between: between value is not a {lower, upper} pair
//   - Unknown aggregate column: backend row column outside the alias contract
//
// Error carries structured fields so callers can report the offending input.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Field is the field name involved, when there is one.
	Field string

	// Value is the offending value, when there is one.
	Value any
}

// ErrorCode categorizes query errors.
type ErrorCode string

const (
	// ErrCodeUnknownOperator indicates an operator name outside the supported set.
	ErrCodeUnknownOperator ErrorCode = "UNKNOWN_OPERATOR"

	// ErrCodeUnmappedField indicates a field with no entry in a field map.
	ErrCodeUnmappedField ErrorCode = "UNMAPPED_FIELD"

	// ErrCodeEmptyAggregate indicates an aggregate query with no selections.
	ErrCodeEmptyAggregate ErrorCode = "EMPTY_AGGREGATE"

	// ErrCodeMalformedBetween indicates a between value that is not a range.
	ErrCodeMalformedBetween ErrorCode = "MALFORMED_BETWEEN"

	// ErrCodeUnknownAggregateColumn indicates a result column that is not an aggregate alias.
	ErrCodeUnknownAggregateColumn ErrorCode = "UNKNOWN_AGGREGATE_COLUMN"

	// ErrCodeInvalidFilter indicates a structurally invalid filter document.
	ErrCodeInvalidFilter ErrorCode = "INVALID_FILTER"

	// ErrCodeNotFound indicates a lookup by id matched no record.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
)

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// IsUnknownOperator reports whether err is an unknown-operator error.
// Uses errors.As to handle wrapped errors.
func IsUnknownOperator(err error) bool {
	return hasCode(err, ErrCodeUnknownOperator)
}

// IsUnmappedField reports whether err is an unmapped-field error.
func IsUnmappedField(err error) bool {
	return hasCode(err, ErrCodeUnmappedField)
}

// IsEmptyAggregate reports whether err is an empty-aggregate error.
func IsEmptyAggregate(err error) bool {
	return hasCode(err, ErrCodeEmptyAggregate)
}

// IsMalformedBetween reports whether err is a malformed-between error.
func IsMalformedBetween(err error) bool {
	return hasCode(err, ErrCodeMalformedBetween)
}

// IsUnknownAggregateColumn reports whether err is an unknown-aggregate-column error.
func IsUnknownAggregateColumn(err error) bool {
	return hasCode(err, ErrCodeUnknownAggregateColumn)
}

// IsInvalidFilter reports whether err is an invalid-filter error.
func IsInvalidFilter(err error) bool {
	return hasCode(err, ErrCodeInvalidFilter)
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeNotFound)
}

// CodeOf returns the code of a query error, or "" for any other error.
func CodeOf(err error) ErrorCode {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Code
	}
	return ""
}

func hasCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// NewUnknownOperatorError creates an Error for an unsupported operator name.
func NewUnknownOperatorError(op string) *Error {
	return &Error{
		Code:    ErrCodeUnknownOperator,
		Message: fmt.Sprintf("unknown operator %q", op),
		Value:   op,
	}
}

// NewUnmappedFieldError creates an Error for a field missing from a field map.
func NewUnmappedFieldError(field string) *Error {
	return &Error{
		Code:    ErrCodeUnmappedField,
		Message: fmt.Sprintf("No corresponding field found for '%s'", field),
		Field:   field,
	}
}

// NewEmptyAggregateError creates an Error for an aggregate query with no selections.
func NewEmptyAggregateError() *Error {
	return &Error{
		Code:    ErrCodeEmptyAggregate,
		Message: "No aggregate fields found",
	}
}

// NewMalformedBetweenError creates an Error for a between value that is not a range.
func NewMalformedBetweenError(field string, value any) *Error {
	return &Error{
		Code:    ErrCodeMalformedBetween,
		Message: fmt.Sprintf("between on '%s' expects {lower, upper}, got %v", field, value),
		Field:   field,
		Value:   value,
	}
}

// NewUnknownAggregateColumnError creates an Error for a non-alias result column.
func NewUnknownAggregateColumnError(column string) *Error {
	return &Error{
		Code:    ErrCodeUnknownAggregateColumn,
		Message: "Unknown aggregate column encountered",
		Field:   column,
	}
}

// NewInvalidFilterError creates an Error for a structurally invalid filter.
func NewInvalidFilterError(field, format string, args ...any) *Error {
	return &Error{
		Code:    ErrCodeInvalidFilter,
		Message: fmt.Sprintf(format, args...),
		Field:   field,
	}
}

// NewNotFoundError creates an Error for a missing record.
func NewNotFoundError(id any) *Error {
	return &Error{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("Unable to find record with id: %v", id),
		Value:   id,
	}
}
