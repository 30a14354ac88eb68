package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorStringAndUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewError(ErrUpstreamError, "model call failed").
		WithHTTPStatus(http.StatusBadGateway).
		WithRetryable(true).
		WithProvider("gemini").
		WithCause(cause)

	assert.Contains(t, err.Error(), "UPSTREAM_ERROR")
	assert.Contains(t, err.Error(), "connection refused")
	assert.ErrorIs(t, err, cause)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewError(ErrRateLimited, "slow down").WithRetryable(true)))
	assert.False(t, IsRetryable(NewError(ErrInvalidRequest, "bad input")))
	assert.False(t, IsRetryable(errors.New("plain error")))
	assert.False(t, IsRetryable(nil))

	// The retryable flag must survive fmt.Errorf wrapping.
	wrapped := fmt.Errorf("search entities: %w",
		NewError(ErrUpstreamError, "timeout").WithRetryable(true))
	assert.True(t, IsRetryable(wrapped))
}

func TestGetErrorCode(t *testing.T) {
	assert.Equal(t, ErrIndexUnavailable, GetErrorCode(NewError(ErrIndexUnavailable, "not loaded")))
	assert.Equal(t, ErrEmptyEmbedding,
		GetErrorCode(fmt.Errorf("embed: %w", NewError(ErrEmptyEmbedding, "no vector"))))
	assert.Equal(t, ErrorCode(""), GetErrorCode(errors.New("plain")))
}
