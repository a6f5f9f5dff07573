package messaging

import (
	"time"

	"github.com/pkg/errors"
)

// Classification is the retry classification of a handler error
type Classification int

const (
	// ClassUnclassified means the policy's default classification applies
	ClassUnclassified Classification = iota
	// ClassRetryable errors walk the endpoint's retry delay sequence
	ClassRetryable
	// ClassTerminal errors go straight to the dead letter sink
	ClassTerminal
)

// Classifier decides how an error is treated by the retry policy
type Classifier func(error) Classification

// BreakerSettings configures the endpoint circuit breaker. A zero
// TripThreshold disables the breaker.
type BreakerSettings struct {
	TripThreshold  uint32        // failures within the tracking window that open the circuit
	TrackingWindow time.Duration // rolling window over which failures are counted
	ResetInterval  time.Duration // how long the circuit stays open before half-open
	HalfOpenTrials uint32        // trial messages admitted while half-open
}

// RateLimitSettings bounds messages admitted to the handler per window.
// Zero Events means unlimited.
type RateLimitSettings struct {
	Events int
	Window time.Duration
}

// EndpointPolicy describes the resilience behavior of one logical endpoint.
// Immutable once the endpoint is running.
type EndpointPolicy struct {
	Name string

	// RetryDelays is the ordered delay sequence applied to retryable
	// failures. Empty means no retries.
	RetryDelays []time.Duration

	// Classify decides whether a handler error is retryable or terminal.
	// Nil leaves everything unclassified.
	Classify Classifier

	// DefaultClassification applies to unclassified errors. Must be
	// ClassRetryable or ClassTerminal.
	DefaultClassification Classification

	Breaker        BreakerSettings
	RateLimit      RateLimitSettings
	MaxConcurrency int64 // max in-flight handler invocations, 0 = unlimited
}

// Validate reports malformed policies. Policy errors are fatal at startup.
func (p EndpointPolicy) Validate() error {
	if p.Name == "" {
		return errors.New("endpoint policy requires a name")
	}
	if p.DefaultClassification == ClassUnclassified {
		return errors.Errorf("endpoint %s: default classification must be retryable or terminal", p.Name)
	}
	for i, delay := range p.RetryDelays {
		if delay < 0 {
			return errors.Errorf("endpoint %s: retry delay %d is negative", p.Name, i)
		}
	}
	if p.Breaker.TripThreshold > 0 {
		if p.Breaker.TrackingWindow <= 0 {
			return errors.Errorf("endpoint %s: breaker tracking window is required", p.Name)
		}
		if p.Breaker.ResetInterval <= 0 {
			return errors.Errorf("endpoint %s: breaker reset interval is required", p.Name)
		}
	}
	if p.RateLimit.Events > 0 && p.RateLimit.Window <= 0 {
		return errors.Errorf("endpoint %s: rate limit window is required", p.Name)
	}
	if p.MaxConcurrency < 0 {
		return errors.Errorf("endpoint %s: max concurrency is negative", p.Name)
	}
	return nil
}

// classify resolves an error's classification, consulting explicit
// Retryable/Terminal wrapping first, then the policy classifier, then the
// policy default.
func (p EndpointPolicy) classify(err error) Classification {
	if class, ok := explicitClassification(err); ok {
		return class
	}
	if p.Classify != nil {
		if class := p.Classify(err); class != ClassUnclassified {
			return class
		}
	}
	return p.DefaultClassification
}

// classifiedError carries an explicit classification chosen at the point
// where the error is raised.
type classifiedError struct {
	class Classification
	err   error
}

func (e *classifiedError) Error() string { return e.err.Error() }
func (e *classifiedError) Unwrap() error { return e.err }

// Retryable marks an error as transient so the retry policy applies
// regardless of the endpoint classifier.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{class: ClassRetryable, err: err}
}

// Terminal marks an error as non-retryable so it is dead-lettered
// immediately.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{class: ClassTerminal, err: err}
}

func explicitClassification(err error) (Classification, bool) {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.class, true
	}
	return ClassUnclassified, false
}
