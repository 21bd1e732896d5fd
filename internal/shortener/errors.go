package shortener

import "errors"

var (
	// ErrInvalidShortCode is returned for codes outside 3-50 characters of
	// the [A-Za-z0-9_-] alphabet.
	ErrInvalidShortCode = errors.New("invalid short code format")
	// ErrURLTooLong is returned when the original URL exceeds the configured
	// maximum length.
	ErrURLTooLong = errors.New("original url too long")
	// ErrExpiryOutOfRange is returned when the requested expiry exceeds the
	// configured maximum.
	ErrExpiryOutOfRange = errors.New("expiry out of range")
	// ErrURLExpired is returned when resolving a short code whose expiry has
	// passed.
	ErrURLExpired = errors.New("url expired")
	// ErrURLDeactivated is returned when resolving a short code that was
	// explicitly disabled.
	ErrURLDeactivated = errors.New("url deactivated")
	// ErrGenerationExhausted is returned when no unique short code could be
	// generated within the retry budget at any escalation length. It signals
	// namespace pressure and must be surfaced, not retried.
	ErrGenerationExhausted = errors.New("short code generation exhausted")
)
