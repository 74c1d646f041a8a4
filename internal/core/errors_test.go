package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyError(t *testing.T) {
	cases := []struct {
		err  string
		want ErrorType
	}{
		{"429 too many requests", ErrorRate},
		{"rate limit exceeded", ErrorRate},
		{"insufficient_quota for this key", ErrorQuota},
		{"request timeout", ErrorTransient},
		{"service temporarily unavailable", ErrorTransient},
		{"upstream returned 503", ErrorTransient},
		{"invalid api key", ErrorPermanent},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, ClassifyError(errors.New(tc.err)), tc.err)
	}
	require.Equal(t, ErrorType(""), ClassifyError(nil))
}

func TestIsRetryable(t *testing.T) {
	require.True(t, IsRetryable(errors.New("429")))
	require.True(t, IsRetryable(errors.New("connection refused")))
	require.False(t, IsRetryable(errors.New("quota exhausted")))
	require.False(t, IsRetryable(errors.New("bad request")))
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("query", "must not be empty")
	require.True(t, IsValidation(err))
	require.Equal(t, "validation: query: must not be empty", err.Error())

	wrapped := fmt.Errorf("handler: %w", err)
	require.True(t, IsValidation(wrapped))
	require.False(t, IsValidation(errors.New("other")))
}

func TestEmbeddingFailureUnwraps(t *testing.T) {
	cause := errors.New("boom")
	err := &EmbeddingFailure{FailedIndices: []int{2, 3}, Err: cause}
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "2 input(s)")
}
