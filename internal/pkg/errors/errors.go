package errors

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrInvalid         = errors.New("invalid")
	ErrConflict        = errors.New("conflict")
	ErrTooMany         = errors.New("too many requests")
	ErrInternal        = errors.New("internal")
	ErrPayloadTooBig   = errors.New("payload too large")
	ErrUpstream        = errors.New("upstream unavailable")
	ErrCircuitOpen     = errors.New("circuit open")
	ErrBudgetExceeded  = errors.New("monthly budget exceeded")
	ErrExtraction      = errors.New("extraction failed")
	ErrEmptyDocument   = errors.New("document is empty")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrClassifier      = errors.New("classification failed")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsTransient reports whether a retry may succeed. Workers requeue these
// with backoff; request handlers translate them to 503.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUpstream) || errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrTooMany)
}

// IsPermanent reports errors that no amount of retrying will fix. Jobs fail
// immediately on these.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrExtraction) ||
		errors.Is(err, ErrEmptyDocument) ||
		errors.Is(err, ErrUnsupportedType) ||
		errors.Is(err, ErrBudgetExceeded) ||
		errors.Is(err, ErrInvalid) ||
		errors.Is(err, ErrNotFound)
}
