package esim

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
)

type RetryPolicy struct {
	Attempts uint64
	Base     time.Duration
	Max      time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Base: 500 * time.Millisecond, Max: 5 * time.Second}
}

// RetryingProvisioner retries transient provider failures with capped
// exponential backoff. Non-retryable errors return after the first attempt.
// Every attempt carries the same idempotency key; without a key only a 429,
// which the provider rejected before doing any work, is retried.
type RetryingProvisioner struct {
	next   Provisioner
	policy RetryPolicy
	logger *slog.Logger
}

func NewRetryingProvisioner(next Provisioner, policy RetryPolicy, logger *slog.Logger) *RetryingProvisioner {
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}
	if policy.Base <= 0 {
		policy.Base = DefaultRetryPolicy().Base
	}
	if policy.Max < policy.Base {
		policy.Max = policy.Base
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryingProvisioner{next: next, policy: policy, logger: logger}
}

func (p *RetryingProvisioner) Provision(ctx context.Context, planID, idempotencyKey string) (Credentials, error) {
	b := retry.NewExponential(p.policy.Base)
	b = retry.WithCappedDuration(p.policy.Max, b)
	b = retry.WithMaxRetries(p.policy.Attempts-1, b)

	var (
		out     Credentials
		attempt int
	)
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		c, err := p.next.Provision(ctx, planID, idempotencyKey)
		if err == nil {
			out = c
			return nil
		}
		if retryableWithKey(err, idempotencyKey) && uint64(attempt) < p.policy.Attempts {
			p.logger.WarnContext(ctx, "esim provision attempt failed, retrying",
				"plan_id", planID, "idempotency_key", idempotencyKey, "attempt", attempt, "err", err)
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return Credentials{}, err
	}
	return out, nil
}

func retryableWithKey(err error, key string) bool {
	if key != "" {
		return Retryable(err)
	}
	var pe *ProvisioningError
	return errors.As(err, &pe) && pe.StatusCode == http.StatusTooManyRequests
}
