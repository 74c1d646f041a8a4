package providers

import (
	"context"
	"errors"
	"time"

	"litchat/internal/core"
)

type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Factor      float64
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 250 * time.Millisecond
	}
	if p.Factor < 1 {
		p.Factor = 2
	}
	return p
}

// RetryingLLM wraps an LLMProvider with exponential-backoff retries on
// rate-limit and transient failures. Exhausted retries surface
// core.ErrModelUnavailable; Stream is never retried once fragments flow.
type RetryingLLM struct {
	inner  LLMProvider
	policy RetryPolicy
}

func NewRetryingLLM(inner LLMProvider, policy RetryPolicy) *RetryingLLM {
	return &RetryingLLM{inner: inner, policy: policy.normalized()}
}

func (r *RetryingLLM) Complete(ctx context.Context, req CompleteRequest) (CompleteResponse, ProviderInfo, error) {
	var (
		resp CompleteResponse
		info ProviderInfo
		err  error
	)
	delay := r.policy.BaseDelay
	for attempt := 0; attempt < r.policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			if sleepErr := sleepCtx(ctx, delay); sleepErr != nil {
				return CompleteResponse{}, info, sleepErr
			}
			delay = time.Duration(float64(delay) * r.policy.Factor)
		}
		resp, info, err = r.inner.Complete(ctx, req)
		if err == nil {
			return resp, info, nil
		}
		if !core.IsRetryable(err) {
			return CompleteResponse{}, info, err
		}
	}
	return CompleteResponse{}, info, errors.Join(core.ErrModelUnavailable, err)
}

func (r *RetryingLLM) Stream(ctx context.Context, req CompleteRequest) (<-chan Fragment, ProviderInfo, error) {
	var (
		frags <-chan Fragment
		info  ProviderInfo
		err   error
	)
	delay := r.policy.BaseDelay
	for attempt := 0; attempt < r.policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			if sleepErr := sleepCtx(ctx, delay); sleepErr != nil {
				return nil, info, sleepErr
			}
			delay = time.Duration(float64(delay) * r.policy.Factor)
		}
		frags, info, err = r.inner.Stream(ctx, req)
		if err == nil {
			return frags, info, nil
		}
		if !core.IsRetryable(err) {
			return nil, info, err
		}
	}
	return nil, info, errors.Join(core.ErrModelUnavailable, err)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
