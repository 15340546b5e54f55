package esim

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	ErrProvisioningFailed      = errors.New("esim provisioning failed")
	ErrInvalidProviderResponse = errors.New("invalid esim provider response")
)

const maxBodyInError = 512

// ProvisioningError is a non-2xx answer from the provider.
type ProvisioningError struct {
	StatusCode int
	Body       string
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("esim provider returned %d: %s", e.StatusCode, e.Body)
}

func (e *ProvisioningError) Is(target error) bool { return target == ErrProvisioningFailed }

// Retryable reports whether another attempt may succeed: 5xx, 429 and
// transport failures are; 4xx, malformed responses and cancellation are not.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var pe *ProvisioningError
	if errors.As(err, &pe) {
		return pe.StatusCode >= 500 || pe.StatusCode == http.StatusTooManyRequests
	}
	if errors.Is(err, ErrInvalidProviderResponse) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}
