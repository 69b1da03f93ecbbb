package remote

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"quiz-league-client/internal/domain"
)

type step struct {
	status int
	err    error
}

type scriptedDoer struct {
	mu     sync.Mutex
	steps  []step
	calls  int
	bodies []string
}

func (d *scriptedDoer) Do(req *http.Request) (*http.Response, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if req.Body != nil {
		b, _ := io.ReadAll(req.Body)
		d.bodies = append(d.bodies, string(b))
	}
	s := d.steps[len(d.steps)-1]
	if d.calls < len(d.steps) {
		s = d.steps[d.calls]
	}
	d.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &http.Response{
		StatusCode: s.status,
		Status:     http.StatusText(s.status),
		Body:       io.NopCloser(strings.NewReader(`{}`)),
	}, nil
}

func (d *scriptedDoer) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type outcome struct {
	resp *http.Response
	err  error
}

func runExecute(client *RetryClient, req *http.Request) <-chan outcome {
	done := make(chan outcome, 1)
	go func() {
		resp, err := client.Execute(context.Background(), req)
		done <- outcome{resp, err}
	}()
	return done
}

func newRequest(t *testing.T) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, "http://api.test/api/leagues/create", strings.NewReader(`{"name":"x"}`))
	require.NoError(t, err)
	return req
}

func advanceBackoff(t *testing.T, clock *clockwork.FakeClock, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(d)
}

func TestRetryRateLimitedThenSuccess(t *testing.T) {
	clock := clockwork.NewFakeClock()
	doer := &scriptedDoer{steps: []step{{status: 429}, {status: 429}, {status: 429}, {status: 200}}}

	var mu sync.Mutex
	var delays []time.Duration
	client := NewRetryClient(doer,
		WithClock(clock),
		WithLogger(zerolog.Nop()),
		WithRetryHook(func(_ int, d time.Duration, _ error) {
			mu.Lock()
			delays = append(delays, d)
			mu.Unlock()
		}),
	)

	done := runExecute(client, newRequest(t))
	for _, d := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second} {
		advanceBackoff(t, clock, d)
	}

	select {
	case out := <-done:
		require.NoError(t, out.err)
		require.Equal(t, http.StatusOK, out.resp.StatusCode)
	case <-time.After(time.Second):
		t.Fatalf("execute did not return")
	}

	require.Equal(t, 4, doer.callCount())
	mu.Lock()
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, delays)
	mu.Unlock()
	for _, body := range doer.bodies {
		require.Equal(t, `{"name":"x"}`, body)
	}
}

func TestRetryWaitsFullBackoff(t *testing.T) {
	clock := clockwork.NewFakeClock()
	doer := &scriptedDoer{steps: []step{{status: 429}, {status: 200}}}
	client := NewRetryClient(doer, WithClock(clock), WithLogger(zerolog.Nop()))

	done := runExecute(client, newRequest(t))
	advanceBackoff(t, clock, 999*time.Millisecond)
	select {
	case <-done:
		t.Fatalf("returned before the backoff elapsed")
	case <-time.After(50 * time.Millisecond):
	}
	require.Equal(t, 1, doer.callCount())

	clock.Advance(time.Millisecond)
	out := <-done
	require.NoError(t, out.err)
	require.Equal(t, 2, doer.callCount())
}

func TestRetryExhaustedOnRateLimit(t *testing.T) {
	clock := clockwork.NewFakeClock()
	doer := &scriptedDoer{steps: []step{{status: 429}}}
	client := NewRetryClient(doer, WithClock(clock), WithLogger(zerolog.Nop()))

	done := runExecute(client, newRequest(t))
	for _, d := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second} {
		advanceBackoff(t, clock, d)
	}
	out := <-done

	var exhausted *domain.ExhaustedRetriesError
	require.ErrorAs(t, out.err, &exhausted)
	require.Equal(t, 4, exhausted.Attempts)
	require.ErrorIs(t, out.err, domain.ErrRetriesExhausted)
	require.Equal(t, 4, doer.callCount())
}

func TestRetryNetworkError(t *testing.T) {
	clock := clockwork.NewFakeClock()
	refused := errors.New("connection refused")
	doer := &scriptedDoer{steps: []step{{err: refused}}}
	client := NewRetryClient(doer, WithClock(clock), WithLogger(zerolog.Nop()))

	done := runExecute(client, newRequest(t))
	for _, d := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second} {
		advanceBackoff(t, clock, d)
	}
	out := <-done

	var netErr *domain.NetworkError
	require.ErrorAs(t, out.err, &netErr)
	require.ErrorIs(t, out.err, refused)
	require.ErrorIs(t, out.err, domain.ErrRetriesExhausted)
	require.Equal(t, 4, doer.callCount())
}

func TestRetryDoesNotRetryDomainErrors(t *testing.T) {
	doer := &scriptedDoer{steps: []step{{status: http.StatusBadRequest}}}
	client := NewRetryClient(doer, WithClock(clockwork.NewFakeClock()), WithLogger(zerolog.Nop()))

	resp, err := client.Execute(context.Background(), newRequest(t))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, 1, doer.callCount())
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	clock := clockwork.NewFakeClock()
	doer := &scriptedDoer{steps: []step{{status: 429}}}
	client := NewRetryClient(doer, WithClock(clock), WithLogger(zerolog.Nop()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := client.Execute(ctx, newRequest(t))
		done <- err
	}()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatalf("execute ignored cancellation")
	}
	require.Equal(t, 1, doer.callCount())
}

func TestRetryZeroBudgetFailsFirstAttempt(t *testing.T) {
	doer := &scriptedDoer{steps: []step{{status: 429}}}
	client := NewRetryClient(doer, WithClock(clockwork.NewFakeClock()), WithLogger(zerolog.Nop()), WithBackoff(0, time.Second))

	_, err := client.Execute(context.Background(), newRequest(t))
	var exhausted *domain.ExhaustedRetriesError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, 1, exhausted.Attempts)
	require.Equal(t, 1, doer.callCount())
}
