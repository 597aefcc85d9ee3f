package throttle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type mockClock struct {
	mu      sync.Mutex
	current time.Time
}

func newMockClock() *mockClock {
	return &mockClock{current: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

func (c *mockClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	c.Advance(d)
	ch <- c.Now()
	return ch
}

func TestOnBatchCompleteNarrowsDelayWhenLatencyIsLow(t *testing.T) {
	clk := newMockClock()
	th := newWithClock(clk)

	th.OnBatchComplete(50 * time.Millisecond)

	snap := th.Snapshot()
	require.Greater(t, snap.EMALatencyMS, 0.0)
	require.Equal(t, minDelayMS, snap.CurrentDelayMS)
	require.GreaterOrEqual(t, snap.CurrentConcurrency, baseConcurrency)
}

func TestOnBatchCompleteWidensDelayWhenLatencyIsHigh(t *testing.T) {
	clk := newMockClock()
	th := newWithClock(clk)

	th.OnBatchComplete(3 * time.Second)

	snap := th.Snapshot()
	require.Greater(t, snap.CurrentDelayMS, minDelayMS)
	require.LessOrEqual(t, snap.CurrentConcurrency, baseConcurrency)
}

func TestOnRateLimitSetsBackoffAndReducesTarget(t *testing.T) {
	clk := newMockClock()
	th := newWithClock(clk)
	before := th.Snapshot()

	th.OnRateLimit(5 * time.Second)

	after := th.Snapshot()
	require.Less(t, after.EffectiveTarget, before.EffectiveTarget)
	require.Equal(t, 1, after.RateLimitCount)
	require.LessOrEqual(t, after.CurrentConcurrency, baseConcurrency)
}

func TestWaitHonorsBackoffWindow(t *testing.T) {
	clk := newMockClock()
	th := newWithClock(clk)
	th.OnRateLimit(2 * time.Second)

	start := clk.Now()
	err := th.Wait(context.Background())
	require.NoError(t, err)
	require.True(t, clk.Now().Sub(start) >= 2*time.Second)
}

func TestRecoversEffectiveTargetAfterQuietPeriod(t *testing.T) {
	clk := newMockClock()
	th := newWithClock(clk)
	th.OnRateLimit(0)
	reduced := th.Snapshot().EffectiveTarget
	require.Less(t, reduced, defaultTarget)

	clk.Advance(90 * time.Second)
	th.OnBatchComplete(100 * time.Millisecond)

	recovered := th.Snapshot().EffectiveTarget
	require.Greater(t, recovered, reduced)
}

func TestOnErrorMultipliesDelay(t *testing.T) {
	clk := newMockClock()
	th := newWithClock(clk)
	before := th.Snapshot().CurrentDelayMS

	th.OnError()

	after := th.Snapshot().CurrentDelayMS
	require.InDelta(t, before*1.2, after, 0.001)
}
