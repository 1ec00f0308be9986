// Package errs holds the sentinel errors shared across feed fetching,
// derivation and static sync. Wrap them with fmt.Errorf("...: %w", ...)
// and test with errors.Is.
package errs

import "errors"

var (
	// ErrInvalidEndpoint means no usable URL is configured for a feed.
	ErrInvalidEndpoint = errors.New("invalid feed endpoint")
	// ErrMissingCredential means the city has no API key.
	ErrMissingCredential = errors.New("missing feed credential")
	// ErrTransport covers network failures and non-success HTTP statuses.
	ErrTransport = errors.New("feed transport failure")
	// ErrDecode means the payload could not be decoded.
	ErrDecode = errors.New("feed decode failure")
	// ErrLookupMiss means a static record referenced by a feed is absent.
	ErrLookupMiss = errors.New("static lookup miss")
	// ErrSyncFile means one static file failed to download, parse or apply.
	ErrSyncFile = errors.New("static sync file failure")
	// ErrNoData means no snapshot has been fetched yet.
	ErrNoData = errors.New("no realtime data yet")
	// ErrUnknownCity means the city id is not in the registry.
	ErrUnknownCity = errors.New("unknown city")
)

// IsConfiguration reports whether err is a configuration problem that
// retrying will not fix.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrInvalidEndpoint) || errors.Is(err, ErrMissingCredential)
}

// IsRetryable reports whether the next poll may succeed where this one failed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransport) || errors.Is(err, ErrDecode)
}
