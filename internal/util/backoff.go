package util

import (
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/spf13/viper"
)

const (
	paramRetryInterval = "retry-interval"
	paramRetryMaxTime  = "retry-max-time"
	paramRetryPolicy   = "retry-policy"

	defaultRetryInterval = 50 * time.Millisecond
	defaultRetryMaxTime  = time.Second
	defaultRetryPolicy   = PolicyExponential

	PolicyConstant    = "constant"
	PolicyExponential = "exponential"
)

// BackoffFactory creates a fresh BackOff for every sequence of retries.
type BackoffFactory func() backoff.BackOff

// NewBackoffFactory returns exponential backoffs which never stop on their own and are capped at
// maxInterval. A multiplier of 1 gives a randomized constant interval.
func NewBackoffFactory(multiplier float64, interval, maxInterval time.Duration) BackoffFactory {
	return func() backoff.BackOff {
		bo := backoff.NewExponentialBackOff()
		bo.Multiplier = multiplier
		bo.InitialInterval = interval
		bo.MaxInterval = maxInterval
		bo.MaxElapsedTime = 0
		bo.Reset()
		return bo
	}
}

// GetRetryFromViper reads a retry policy from v.
func GetRetryFromViper(v *viper.Viper) (BackoffFactory, error) {
	v.SetDefault(paramRetryInterval, defaultRetryInterval)
	v.SetDefault(paramRetryMaxTime, defaultRetryMaxTime)
	v.SetDefault(paramRetryPolicy, defaultRetryPolicy)

	interval := v.GetDuration(paramRetryInterval)
	maxTime := v.GetDuration(paramRetryMaxTime)
	policy := v.GetString(paramRetryPolicy)

	if interval <= 0 {
		return nil, errors.New(paramRetryInterval + " must be positive")
	}
	if maxTime < interval {
		return nil, errors.New(paramRetryMaxTime + " must not be less than " + paramRetryInterval)
	}

	switch policy {
	case PolicyExponential:
		return NewBackoffFactory(backoff.DefaultMultiplier, interval, maxTime), nil
	case PolicyConstant:
		return NewBackoffFactory(1.0, interval, interval), nil
	default:
		return nil, fmt.Errorf("%s (%s) not one of %s or %s", paramRetryPolicy, policy, PolicyConstant, PolicyExponential)
	}
}
