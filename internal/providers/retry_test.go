package providers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"litchat/internal/core"
)

type flakyLLM struct {
	failures int
	attempts int
	err      error
}

func (f *flakyLLM) Complete(context.Context, CompleteRequest) (CompleteResponse, ProviderInfo, error) {
	f.attempts++
	if f.attempts <= f.failures {
		return CompleteResponse{}, ProviderInfo{}, f.err
	}
	return CompleteResponse{Text: "ok"}, ProviderInfo{Name: "flaky"}, nil
}

func (f *flakyLLM) Stream(context.Context, CompleteRequest) (<-chan Fragment, ProviderInfo, error) {
	f.attempts++
	if f.attempts <= f.failures {
		return nil, ProviderInfo{}, f.err
	}
	out := make(chan Fragment, 1)
	out <- Fragment{Done: true}
	close(out)
	return out, ProviderInfo{Name: "flaky"}, nil
}

func TestRetryingLLMRecoversFromTransientErrors(t *testing.T) {
	inner := &flakyLLM{failures: 2, err: errors.New("429 rate limited")}
	r := NewRetryingLLM(inner, RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond})

	resp, _, err := r.Complete(context.Background(), CompleteRequest{Prompt: "q"})
	require.NoError(t, err)
	require.Equal(t, "ok", resp.Text)
	require.Equal(t, 3, inner.attempts)
}

func TestRetryingLLMSurfacesModelUnavailable(t *testing.T) {
	inner := &flakyLLM{failures: 10, err: errors.New("503 unavailable")}
	r := NewRetryingLLM(inner, RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond})

	_, _, err := r.Complete(context.Background(), CompleteRequest{Prompt: "q"})
	require.Error(t, err)
	require.ErrorIs(t, err, core.ErrModelUnavailable)
	require.Equal(t, 2, inner.attempts)
}

func TestRetryingLLMDoesNotRetryPermanentErrors(t *testing.T) {
	inner := &flakyLLM{failures: 10, err: errors.New("invalid request")}
	r := NewRetryingLLM(inner, RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond})

	_, _, err := r.Complete(context.Background(), CompleteRequest{Prompt: "q"})
	require.Error(t, err)
	require.NotErrorIs(t, err, core.ErrModelUnavailable)
	require.Equal(t, 1, inner.attempts)
}

func TestRetryingLLMStreamRetries(t *testing.T) {
	inner := &flakyLLM{failures: 1, err: errors.New("connection reset")}
	r := NewRetryingLLM(inner, RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond})

	frags, _, err := r.Stream(context.Background(), CompleteRequest{Prompt: "q"})
	require.NoError(t, err)
	require.Equal(t, 2, inner.attempts)
	for range frags {
	}
}
