package oracle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dynamiccoin/dmcd/pkg/config"
	"github.com/dynamiccoin/dmcd/pkg/core/types"
)

const liveTime = 1469916001

var errFeed = errors.New("feed down")

type fakeFeed struct {
	mu    sync.Mutex
	calls int
	fails int // fail this many more calls
	price types.Fiat
	gate  chan struct{}
}

func (f *fakeFeed) Price(ctx context.Context, ts int64) (Quote, error) {
	f.mu.Lock()
	f.calls++
	fail := f.fails > 0
	if fail {
		f.fails--
	}
	price, gate := f.price, f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return Quote{}, ctx.Err()
		}
	}
	if fail {
		return Quote{}, errFeed
	}
	return Quote{Time: ts, Price: price}, nil
}

func (f *fakeFeed) setFails(n int) {
	f.mu.Lock()
	f.fails = n
	f.mu.Unlock()
}

func (f *fakeFeed) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testConfig() config.OracleConfig {
	cfg := config.DefaultConfig().Oracle
	cfg.MaxAttempts = 3
	cfg.RequestTimeout = config.Duration(time.Second)
	cfg.InitialBackoff = config.Duration(time.Millisecond)
	cfg.MaxBackoff = config.Duration(2 * time.Millisecond)
	cfg.RateLimit = 0
	return cfg
}

func TestBootstrapWindows(t *testing.T) {
	feed := &fakeFeed{price: 5 * types.OneFiat}
	o := New(config.MainNetParams(), feed, testConfig())

	tests := []struct {
		ts   int64
		want types.Fiat
	}{
		{1438828878, 656350},
		{1440898408, 656350},
		{1440898409, 100},
		{1441880382, 100},
		{1441880383, 100},
		{1469915999, 100},
	}
	for _, tt := range tests {
		q, err := o.PriceAt(context.Background(), tt.ts)
		if err != nil {
			t.Fatalf("PriceAt(%d) failed: %v", tt.ts, err)
		}
		if q.Price != tt.want {
			t.Errorf("PriceAt(%d) = %s, want %s", tt.ts, q.Price, tt.want)
		}
	}
	if n := feed.callCount(); n != 0 {
		t.Errorf("feed called %d times inside the bootstrap windows", n)
	}
}

func TestLiveFeedAndCache(t *testing.T) {
	feed := &fakeFeed{price: 2 * types.OneFiat}
	o := New(config.MainNetParams(), feed, testConfig())
	ctx := context.Background()

	for _, ts := range []int64{1469916000, liveTime, liveTime} {
		q, err := o.PriceAt(ctx, ts)
		require.NoError(t, err)
		require.Equal(t, 2*types.OneFiat, q.Price)
		require.Equal(t, ts, q.Time)
		require.False(t, q.Stale)
	}
	require.Equal(t, 2, feed.callCount(), "repeated timestamp should be served from cache")

	// Times before the first window are not covered by any fixed price.
	_, err := o.PriceAt(ctx, 1000)
	require.NoError(t, err)
	require.Equal(t, 3, feed.callCount())
}

func TestRetryThenSucceed(t *testing.T) {
	feed := &fakeFeed{price: types.OneFiat, fails: 2}
	o := New(config.MainNetParams(), feed, testConfig())

	q, err := o.PriceAt(context.Background(), liveTime)
	require.NoError(t, err)
	require.Equal(t, types.OneFiat, q.Price)
	require.Equal(t, 3, feed.callCount())
}

func TestRetryExhaustion(t *testing.T) {
	feed := &fakeFeed{price: types.OneFiat, fails: 100}
	o := New(config.MainNetParams(), feed, testConfig())

	_, err := o.PriceAt(context.Background(), liveTime)
	require.ErrorIs(t, err, ErrUnavailable)
	require.ErrorIs(t, err, errFeed)
	require.Equal(t, 3, feed.callCount(), "exactly max_attempts calls")
}

func TestNonPositivePriceRejected(t *testing.T) {
	feed := &fakeFeed{price: 0}
	o := New(config.MainNetParams(), feed, testConfig())

	_, err := o.PriceAt(context.Background(), liveTime)
	require.ErrorIs(t, err, ErrUnavailable)
	require.ErrorIs(t, err, ErrInvalidPrice)
}

func TestStaleFallback(t *testing.T) {
	cfg := testConfig()
	cfg.Fallback = config.FallbackStale
	cfg.MaxStaleness = config.Duration(time.Minute)

	feed := &fakeFeed{price: 3 * types.OneFiat}
	o := New(config.MainNetParams(), feed, cfg)
	clock := time.Unix(1700000000, 0)
	o.now = func() time.Time { return clock }

	_, err := o.PriceAt(context.Background(), liveTime)
	require.NoError(t, err)

	feed.setFails(100)
	clock = clock.Add(30 * time.Second)
	q, err := o.PriceAt(context.Background(), liveTime+60)
	require.NoError(t, err)
	require.True(t, q.Stale)
	require.Equal(t, 3*types.OneFiat, q.Price)

	clock = clock.Add(time.Minute)
	_, err = o.PriceAt(context.Background(), liveTime+120)
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestRejectFallback(t *testing.T) {
	feed := &fakeFeed{price: 3 * types.OneFiat}
	o := New(config.MainNetParams(), feed, testConfig())

	_, err := o.PriceAt(context.Background(), liveTime)
	require.NoError(t, err)

	feed.setFails(100)
	_, err = o.PriceAt(context.Background(), liveTime+60)
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestConcurrentQueriesCollapse(t *testing.T) {
	feed := &fakeFeed{price: types.OneFiat, gate: make(chan struct{})}
	o := New(config.MainNetParams(), feed, testConfig())

	var wg sync.WaitGroup
	results := make([]Quote, 8)
	errs := make([]error, len(results))
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = o.PriceAt(context.Background(), liveTime)
		}(i)
	}
	require.Eventually(t, func() bool { return feed.callCount() == 1 }, time.Second, time.Millisecond)
	close(feed.gate)
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		require.Equal(t, types.OneFiat, results[i].Price)
	}
	require.Equal(t, 1, feed.callCount())
}

func TestCallerCancellation(t *testing.T) {
	feed := &fakeFeed{price: types.OneFiat, gate: make(chan struct{})}
	defer close(feed.gate)
	o := New(config.MainNetParams(), feed, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := o.PriceAt(ctx, liveTime)
		done <- err
	}()
	require.Eventually(t, func() bool { return feed.callCount() == 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("PriceAt did not return after cancellation")
	}
}

// deadlineFeed fails like a real client would once its context has expired.
type deadlineFeed struct{ price types.Fiat }

func (f deadlineFeed) Price(ctx context.Context, ts int64) (Quote, error) {
	if err := ctx.Err(); err != nil {
		return Quote{}, err
	}
	return Quote{Time: ts, Price: f.price}, nil
}

func TestZeroRequestTimeoutUsesDefault(t *testing.T) {
	cfg := testConfig()
	cfg.RequestTimeout = 0
	o := New(config.MainNetParams(), deadlineFeed{price: types.OneFiat}, cfg)

	q, err := o.PriceAt(context.Background(), liveTime)
	require.NoError(t, err)
	require.Equal(t, types.OneFiat, q.Price)
}
