package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func fail(context.Context) (int, error) { return 0, errBoom }
func ok(context.Context) (int, error)   { return 1, nil }

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(threshold int) (*Breaker, *testClock) {
	clk := &testClock{now: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
	b := NewBreaker(BreakerConfig{FailureThreshold: threshold, ResetTimeout: time.Minute})
	b.now = clk.Now
	return b, clk
}

func TestBreaker_ClosedPassesThrough(t *testing.T) {
	b, _ := newTestBreaker(3)
	v, err := Do(context.Background(), b, ok)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, Closed, b.State())
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := Do(ctx, b, fail)
		assert.ErrorIs(t, err, errBoom)
	}
	assert.Equal(t, Open, b.State())

	called := false
	_, err := Do(ctx, b, func(context.Context) (int, error) {
		called = true
		return 0, nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	b, _ := newTestBreaker(3)
	ctx := context.Background()

	_, _ = Do(ctx, b, fail)
	_, _ = Do(ctx, b, fail)
	_, _ = Do(ctx, b, ok)
	_, _ = Do(ctx, b, fail)
	_, _ = Do(ctx, b, fail)
	assert.Equal(t, Closed, b.State())
}

func TestBreaker_HalfOpenTrialCall(t *testing.T) {
	b, clk := newTestBreaker(1)
	ctx := context.Background()

	_, _ = Do(ctx, b, fail)
	assert.Equal(t, Open, b.State())

	clk.Advance(time.Minute)
	assert.Equal(t, HalfOpen, b.State())

	_, err := Do(ctx, b, ok)
	require.NoError(t, err)
	assert.Equal(t, Closed, b.State())
}

func TestBreaker_FailedTrialReopens(t *testing.T) {
	b, clk := newTestBreaker(1)
	ctx := context.Background()

	_, _ = Do(ctx, b, fail)
	clk.Advance(time.Minute)
	_, err := Do(ctx, b, fail)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, Open, b.State())

	_, err = Do(ctx, b, ok)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestBreaker_OnStateChange(t *testing.T) {
	var transitions []string
	b := NewBreaker(BreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Minute,
		OnStateChange: func(from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	_, _ = Do(context.Background(), b, fail)
	assert.Equal(t, []string{"closed->open"}, transitions)
}

func TestFromSettings(t *testing.T) {
	cfg := FromSettings(0, 0)
	assert.Equal(t, 5, cfg.FailureThreshold)
	assert.Equal(t, 30*time.Second, cfg.ResetTimeout)

	cfg = FromSettings(2, 10)
	assert.Equal(t, 2, cfg.FailureThreshold)
	assert.Equal(t, 10*time.Second, cfg.ResetTimeout)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", Closed.String())
	assert.Equal(t, "open", Open.String())
	assert.Equal(t, "half-open", HalfOpen.String())
	assert.Equal(t, "unknown", State(9).String())
}
