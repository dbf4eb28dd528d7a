package errcode

const (
	ErrUnknown = 10000000 + iota
	ErrUnauthorized
	ErrForbidden
	ErrNotFound
	ErrInvalid
	ErrConflict
	ErrTooMany
	ErrInternal
	ErrInvalidFile
	ErrPayloadTooLarge
	ErrUploadFailed
	ErrUpstreamUnavailable
	ErrBudgetExceeded
	ErrExtractionFailed
	ErrEmptyDocument
	ErrUnsupportedType
	ErrClassifierFailed
	ErrAIUnavailable
)
