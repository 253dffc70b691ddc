package rag

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestServiceErrorWrapping(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := newConnectionError("pool.store", "weaviate unreachable", cause)

	assert.Contains(t, err.Error(), "pool.store")
	assert.Contains(t, err.Error(), "connection refused")
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ErrTypeConnection, ErrorTypeOf(err))
}

func TestErrorTypeOfWrappedError(t *testing.T) {
	inner := newUpstreamError("search", "weaviate query failed", nil)
	wrapped := fmt.Errorf("retrieve: %w", inner)

	assert.Equal(t, ErrTypeUpstream, ErrorTypeOf(wrapped))
	assert.Equal(t, ErrorType(""), ErrorTypeOf(errors.New("plain")))
}

func TestIsTimeout(t *testing.T) {
	assert.True(t, IsTimeout(context.DeadlineExceeded))
	assert.True(t, IsTimeout(fmt.Errorf("search: %w", context.DeadlineExceeded)))
	assert.True(t, IsTimeout(newTimeoutError("search", "deadline exceeded", nil)))
	assert.False(t, IsTimeout(newUpstreamError("search", "boom", nil)))
	assert.False(t, IsTimeout(context.Canceled))
}
