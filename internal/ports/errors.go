package ports

import "errors"

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Remote Source Errors
	ErrSourceUnavailable = errors.New("historical data source is unavailable")
	ErrConnectionFailed  = errors.New("failed to connect to the data source")
	ErrRateLimited       = errors.New("API rate limit exceeded")
	ErrMalformedResponse = errors.New("data source returned a malformed response")

	// Synchronization Errors
	ErrNoBaseline     = errors.New("no local baseline to update")
	ErrCorruptAppend  = errors.New("fetched records failed integrity checks")
	ErrCorruptRecord  = errors.New("local record is malformed")
	ErrUnsupportedKey = errors.New("key cannot be used as a record name")

	// Database Specific Errors
	ErrDBConnection = errors.New("database connection error")
	ErrQueryFailed  = errors.New("database query failed")
	ErrUpdateFailed = errors.New("database update failed")
)
