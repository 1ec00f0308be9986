package errs

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassification(t *testing.T) {
	wrapped := func(err error) error { return fmt.Errorf("fetching bus feed: %w", err) }

	assert.True(t, IsConfiguration(wrapped(ErrInvalidEndpoint)))
	assert.True(t, IsConfiguration(wrapped(ErrMissingCredential)))
	assert.False(t, IsConfiguration(wrapped(ErrTransport)))

	assert.True(t, IsRetryable(wrapped(ErrTransport)))
	assert.True(t, IsRetryable(wrapped(ErrDecode)))
	assert.False(t, IsRetryable(wrapped(ErrMissingCredential)))
	assert.False(t, IsRetryable(nil))
}
