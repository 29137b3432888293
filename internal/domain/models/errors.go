package models

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrProviderTransient   = errors.New("provider transient failure")
	ErrProviderRateLimited = errors.New("provider rate limited")
	ErrProviderNotFound    = errors.New("provider returned no data")
	ErrProviderFatal       = errors.New("provider fatal error")

	ErrScoringInputInvalid = errors.New("scoring input invalid")
	ErrForecastUnavailable = errors.New("forecast service unavailable")

	ErrSubscriptionConnectFailed = errors.New("subscription connect failed")
	ErrSubscriptionMaxRetries    = errors.New("subscription reconnect attempts exhausted")
)

// ProviderError carries the classification of a failed upstream call.
// errors.Is matches both the Kind sentinel and the wrapped cause.
type ProviderError struct {
	Kind       error
	Status     int
	RetryAfter time.Duration
	Err        error
}

func (e *ProviderError) Error() string {
	msg := e.Kind.Error()
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ProviderError) Is(target error) bool { return target == e.Kind }

func (e *ProviderError) Unwrap() error { return e.Err }
