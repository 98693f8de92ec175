// Package domain defines core types, interfaces, and errors for data collections and joins.
package domain

import (
	"errors"
	"fmt"
)

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ValidationError indicates invalid input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ConflictError indicates the destination already exists and overwrite was not requested.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// ResolutionError indicates a data collection reference could not be resolved
// within a project.
type ResolutionError struct {
	Reference string
	Message   string
}

func (e *ResolutionError) Error() string { return e.Message }

// NotProcessedError indicates a data collection has no canonical table yet.
// It is a warning: callers may trigger processing and retry.
type NotProcessedError struct {
	DataCollectionID string
	Message          string
}

func (e *NotProcessedError) Error() string { return e.Message }

// SchemaMismatchError indicates raw files could not be turned into a relation:
// unsupported format, unreadable file, or no files at all.
type SchemaMismatchError struct {
	File    string // offending file, empty when not file-specific
	Message string
}

func (e *SchemaMismatchError) Error() string {
	if e.File == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}

// ExternalSyncWarning records a catalog or project synchronisation failure that
// happened after a durable table write. It is logged and reported, never rolled back.
type ExternalSyncWarning struct {
	Step string
	Err  error
}

func (e *ExternalSyncWarning) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Step, e.Err)
}

func (e *ExternalSyncWarning) Unwrap() error { return e.Err }

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrConflict creates a ConflictError with a formatted message.
func ErrConflict(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// ErrResolution creates a ResolutionError for the given reference.
func ErrResolution(ref string, format string, args ...interface{}) *ResolutionError {
	return &ResolutionError{Reference: ref, Message: fmt.Sprintf(format, args...)}
}

// ErrNotProcessed creates a NotProcessedError for the given data collection.
func ErrNotProcessed(dcID string, format string, args ...interface{}) *NotProcessedError {
	return &NotProcessedError{DataCollectionID: dcID, Message: fmt.Sprintf(format, args...)}
}

// ErrSchemaMismatch creates a SchemaMismatchError naming the offending file.
func ErrSchemaMismatch(file string, format string, args ...interface{}) *SchemaMismatchError {
	return &SchemaMismatchError{File: file, Message: fmt.Sprintf(format, args...)}
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsConflict reports whether err is (or wraps) a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsNotProcessed reports whether err is (or wraps) a NotProcessedError.
func IsNotProcessed(err error) bool {
	var np *NotProcessedError
	return errors.As(err, &np)
}
