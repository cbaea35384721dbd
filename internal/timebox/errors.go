package timebox

import (
	"errors"
	"fmt"
)

// ConfigErrorCode categorizes registration failures.
type ConfigErrorCode string

const (
	// ErrCodeDuplicatePriority indicates two reactions share a priority.
	ErrCodeDuplicatePriority ConfigErrorCode = "DUPLICATE_PRIORITY"

	// ErrCodeMissingBody indicates a reaction without a body.
	ErrCodeMissingBody ConfigErrorCode = "MISSING_BODY"

	// ErrCodeMissingType indicates a slot without a required type.
	ErrCodeMissingType ConfigErrorCode = "MISSING_TYPE"

	// ErrCodeInvalidAuthority indicates a negative minimum authority.
	ErrCodeInvalidAuthority ConfigErrorCode = "INVALID_AUTHORITY"
)

// ConfigError is returned when a reaction cannot be registered. It is
// fatal for the Coordinator being built and never occurs at dispatch time.
type ConfigError struct {
	Code     ConfigErrorCode
	Message  string
	Reaction string
	Priority int
	Slot     int // -1 when not slot-specific
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Slot >= 0 {
		return fmt.Sprintf("%s: %s (reaction=%s, priority=%d, slot=%d)", e.Code, e.Message, e.Reaction, e.Priority, e.Slot)
	}
	return fmt.Sprintf("%s: %s (reaction=%s, priority=%d)", e.Code, e.Message, e.Reaction, e.Priority)
}

// GuardError reports a guard that failed to evaluate. The affected slot
// or reaction is treated as not satisfied for the current round; other
// reactions are unaffected.
type GuardError struct {
	Reaction string
	Priority int
	Slot     int // -1 for a reaction-level guard
	Err      error
}

// Error implements the error interface.
func (e *GuardError) Error() string {
	if e.Slot >= 0 {
		return fmt.Sprintf("guard failed on reaction %s slot %d: %v", e.Reaction, e.Slot, e.Err)
	}
	return fmt.Sprintf("reaction guard failed on %s: %v", e.Reaction, e.Err)
}

// Unwrap returns the underlying guard error.
func (e *GuardError) Unwrap() error {
	return e.Err
}

// ProducerError reports an asynchronous producer that failed before
// yielding a value. It is only ever observed through the producer's Handle.
type ProducerError struct {
	ProducerID string
	Err        error
}

// Error implements the error interface.
func (e *ProducerError) Error() string {
	return fmt.Sprintf("producer %s failed: %v", e.ProducerID, e.Err)
}

// Unwrap returns the underlying failure.
func (e *ProducerError) Unwrap() error {
	return e.Err
}

// ReactionError reports a reaction body that returned an error. The
// reaction still counts as fired for the round.
type ReactionError struct {
	Reaction string
	Priority int
	Err      error
}

// Error implements the error interface.
func (e *ReactionError) Error() string {
	return fmt.Sprintf("reaction %s (priority %d) failed: %v", e.Reaction, e.Priority, e.Err)
}

// Unwrap returns the body's error.
func (e *ReactionError) Unwrap() error {
	return e.Err
}

// ErrProducerCancelled is recorded on a Handle whose producer was
// cancelled before its value was delivered.
var ErrProducerCancelled = errors.New("producer cancelled")

// IsConfigError returns true if err is a ConfigError.
// Uses errors.As to handle wrapped errors.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsDuplicatePriority returns true if err is a duplicate priority ConfigError.
func IsDuplicatePriority(err error) bool {
	var ce *ConfigError
	if errors.As(err, &ce) {
		return ce.Code == ErrCodeDuplicatePriority
	}
	return false
}

// IsGuardError returns true if err is or wraps a GuardError.
func IsGuardError(err error) bool {
	var ge *GuardError
	return errors.As(err, &ge)
}

// IsProducerError returns true if err is or wraps a ProducerError.
func IsProducerError(err error) bool {
	var pe *ProducerError
	return errors.As(err, &pe)
}

// IsReactionError returns true if err is or wraps a ReactionError.
func IsReactionError(err error) bool {
	var re *ReactionError
	return errors.As(err, &re)
}
