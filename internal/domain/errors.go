package domain

import "errors"

var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")

	// Transition rejections. All of them leave persisted state untouched.
	ErrAlreadyInitialized      = errors.New("timeline already initialized")
	ErrOutOfSequence           = errors.New("step out of sequence")
	ErrAlreadyActive           = errors.New("step already active")
	ErrNotActive               = errors.New("step not active")
	ErrIncompleteSequence      = errors.New("sequence incomplete")
	ErrNotYetCompleted         = errors.New("batch not yet completed")
	ErrInvalidStatusTransition = errors.New("invalid batch status transition")

	// ErrDataUnavailable wraps storage or network failures that survived the retry budget.
	ErrDataUnavailable = errors.New("data unavailable")
)

// IsRejection reports whether err is an expected business-rule rejection
// that a caller resolves by re-fetching state.
func IsRejection(err error) bool {
	for _, target := range []error{
		ErrAlreadyInitialized,
		ErrOutOfSequence,
		ErrAlreadyActive,
		ErrNotActive,
		ErrIncompleteSequence,
		ErrNotYetCompleted,
		ErrInvalidStatusTransition,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
