package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"quiz-league-client/internal/domain"
)

const (
	// MaxRetries bounds the retries of one logical call (MaxRetries+1 attempts).
	MaxRetries = 3
	// BaseDelay is the first backoff wait; attempt n waits BaseDelay * 2^n.
	BaseDelay = time.Second
)

// Doer is the transport RetryClient wraps; *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RetryHook observes every scheduled retry.
type RetryHook func(attempt int, delay time.Duration, cause error)

// RetryClient executes one logical HTTP call, retrying transport failures
// and 429 responses with exponential backoff. Any other response is returned
// untouched, including domain errors.
type RetryClient struct {
	doer       Doer
	clock      clockwork.Clock
	maxRetries int
	baseDelay  time.Duration
	logger     zerolog.Logger
	hook       RetryHook
}

// RetryOption customizes a RetryClient.
type RetryOption func(*RetryClient)

// WithClock replaces the real clock, used by tests.
func WithClock(clock clockwork.Clock) RetryOption {
	return func(c *RetryClient) { c.clock = clock }
}

// WithBackoff overrides the retry budget and base delay.
func WithBackoff(maxRetries int, baseDelay time.Duration) RetryOption {
	return func(c *RetryClient) {
		if maxRetries >= 0 {
			c.maxRetries = maxRetries
		}
		if baseDelay > 0 {
			c.baseDelay = baseDelay
		}
	}
}

// WithLogger sets the logger receiving one record per retry.
func WithLogger(logger zerolog.Logger) RetryOption {
	return func(c *RetryClient) { c.logger = logger }
}

// WithRetryHook registers an observer for retries.
func WithRetryHook(hook RetryHook) RetryOption {
	return func(c *RetryClient) { c.hook = hook }
}

func NewRetryClient(doer Doer, opts ...RetryOption) *RetryClient {
	c := &RetryClient{
		doer:       doer,
		clock:      clockwork.NewRealClock(),
		maxRetries: MaxRetries,
		baseDelay:  BaseDelay,
		logger:     log.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Execute performs req, retrying per the backoff policy. The request body
// is replayed through req.GetBody on every attempt.
func (c *RetryClient) Execute(ctx context.Context, req *http.Request) (*http.Response, error) {
	var (
		resp     *http.Response
		attempts int
	)
	operation := func() error {
		attemptReq, err := rewind(ctx, req, attempts)
		if err != nil {
			return backoff.Permanent(err)
		}
		attempts++

		r, err := c.doer.Do(attemptReq)
		switch {
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return backoff.Permanent(ctxErr)
			}
			return &attemptError{cause: err, final: &domain.NetworkError{Attempts: attempts, Err: err}}
		case r.StatusCode == http.StatusTooManyRequests:
			drain(r)
			return &attemptError{
				cause: fmt.Errorf("rate limited (%s)", r.Status),
				final: &domain.ExhaustedRetriesError{Attempts: attempts},
			}
		}
		resp = r
		return nil
	}
	notify := func(err error, delay time.Duration) {
		cause := err
		var ae *attemptError
		if errors.As(err, &ae) {
			cause = ae.cause
		}
		c.logger.Warn().
			Err(cause).
			Str("method", req.Method).
			Str("path", req.URL.Path).
			Int("attempt", attempts).
			Dur("delay", delay).
			Msg("retrying request")
		if c.hook != nil {
			c.hook(attempts-1, delay, cause)
		}
	}

	err := backoff.RetryNotifyWithTimer(operation, c.policy(ctx), notify, &clockTimer{clock: c.clock})
	if err != nil {
		var ae *attemptError
		if errors.As(err, &ae) {
			return nil, ae.final
		}
		return nil, err
	}
	return resp, nil
}

// policy doubles the delay from baseDelay on every retry, without jitter.
// WithMaxRetries treats 0 as unlimited, so a zero budget stops outright.
func (c *RetryClient) policy(ctx context.Context) backoff.BackOff {
	if c.maxRetries == 0 {
		return backoff.WithContext(&backoff.StopBackOff{}, ctx)
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval:     c.baseDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         24 * time.Hour,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.maxRetries)), ctx)
}

// attemptError carries the retryable cause of one attempt and the error
// reported once the retry budget runs out.
type attemptError struct {
	cause error
	final error
}

func (e *attemptError) Error() string { return e.cause.Error() }

func (e *attemptError) Unwrap() error { return e.cause }

// clockTimer adapts a clockwork clock to backoff.Timer.
type clockTimer struct {
	clock clockwork.Clock
	timer clockwork.Timer
}

func (t *clockTimer) Start(d time.Duration) {
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = t.clock.NewTimer(d)
}

func (t *clockTimer) Stop() {
	if t.timer != nil {
		t.timer.Stop()
	}
}

func (t *clockTimer) C() <-chan time.Time {
	return t.timer.Chan()
}

func rewind(ctx context.Context, req *http.Request, attempt int) (*http.Request, error) {
	r := req.Clone(ctx)
	if req.Body == nil || req.Body == http.NoBody {
		return r, nil
	}
	if req.GetBody == nil {
		if attempt > 0 {
			return nil, fmt.Errorf("request body cannot be replayed")
		}
		return r, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("rewind body: %w", err)
	}
	r.Body = body
	return r, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
