// Package oracle supplies the USD price of DMC at a given chain time.
//
// Block times inside the bootstrap windows of the network parameters get the
// fixed price of their window. Every other time is looked up on a live feed,
// with bounded retries, a quote cache and an optional stale fallback.
package oracle

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/dynamiccoin/dmcd/pkg/config"
	"github.com/dynamiccoin/dmcd/pkg/core/types"
)

var (
	// ErrUnavailable is returned when the live feed could not produce a
	// price within the configured attempts. It wraps the last failure.
	ErrUnavailable = errors.New("price oracle unavailable")

	ErrInvalidPrice = errors.New("price feed returned a non-positive price")
)

// DefaultRequestTimeout bounds a feed call when the config leaves it unset.
const DefaultRequestTimeout = 5 * time.Second

// Quote is a price observation.
type Quote struct {
	Time  int64 // unix seconds the price refers to
	Price types.Fiat

	// Stale is set when the feed failed and the quote is the last good one.
	Stale bool
}

// Feed is a remote source of prices.
type Feed interface {
	Price(ctx context.Context, ts int64) (Quote, error)
}

// Oracle answers price queries for block timestamps. It is safe for
// concurrent use and holds no lock while the feed is being called.
type Oracle struct {
	windows []config.PriceWindow
	feed    Feed
	cfg     config.OracleConfig
	log     log.Logger

	limiter *rate.Limiter
	group   singleflight.Group
	cache   *fastcache.Cache
	now     func() time.Time

	mu     sync.Mutex
	last   *Quote
	lastAt time.Time
}

// New returns an oracle for the given network that falls back to feed
// outside the bootstrap windows.
func New(params *config.NetworkParams, feed Feed, cfg config.OracleConfig) *Oracle {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = config.Duration(DefaultRequestTimeout)
	}
	if cfg.CacheBytes <= 0 {
		cfg.CacheBytes = 1 << 20
	}
	return &Oracle{
		windows: params.PriceWindows,
		feed:    feed,
		cfg:     cfg,
		log:     log.New("module", "oracle"),
		limiter: rate.NewLimiter(limit, 1),
		cache:   fastcache.New(cfg.CacheBytes),
		now:     time.Now,
	}
}

// PriceAt returns the price for a block stamped ts.
func (o *Oracle) PriceAt(ctx context.Context, ts int64) (Quote, error) {
	if price, ok := o.windowPrice(ts); ok {
		return Quote{Time: ts, Price: price}, nil
	}
	if q, ok := o.cached(ts); ok {
		return q, nil
	}

	// The shared fetch must not fail for everyone when the caller that
	// started it goes away, so it only keeps the caller's values.
	fctx := context.WithoutCancel(ctx)
	ch := o.group.DoChan(strconv.FormatInt(ts, 10), func() (interface{}, error) {
		return o.fetch(fctx, ts)
	})
	select {
	case <-ctx.Done():
		return Quote{}, ctx.Err()
	case res := <-ch:
		if res.Err == nil {
			return res.Val.(Quote), nil
		}
		return o.fallback(ts, res.Err)
	}
}

func (o *Oracle) windowPrice(ts int64) (types.Fiat, bool) {
	for _, w := range o.windows {
		if ts >= w.Start && ts < w.End {
			return w.Price, true
		}
	}
	return 0, false
}

func (o *Oracle) fetch(ctx context.Context, ts int64) (Quote, error) {
	var (
		quote    Quote
		attempts int
	)
	op := func() error {
		attempts++
		if err := o.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		actx, cancel := context.WithTimeout(ctx, o.cfg.RequestTimeout.Std())
		defer cancel()

		q, err := o.feed.Price(actx, ts)
		if err != nil {
			return err
		}
		if q.Price <= 0 {
			return fmt.Errorf("%w: %d", ErrInvalidPrice, q.Price)
		}
		quote = q
		return nil
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = o.cfg.InitialBackoff.Std()
	eb.MaxInterval = o.cfg.MaxBackoff.Std()
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, o.cfg.MaxAttempts-1), ctx)

	err := backoff.RetryNotify(op, b, func(err error, wait time.Duration) {
		o.log.Warn("Price feed query failed", "time", ts, "attempt", attempts, "retry", wait, "err", err)
	})
	if err != nil {
		return Quote{}, fmt.Errorf("%w: %d attempts: %w", ErrUnavailable, attempts, err)
	}

	quote.Stale = false
	o.store(ts, quote)
	o.log.Debug("Fetched live price", "time", ts, "feedtime", quote.Time, "price", quote.Price)
	return quote, nil
}

func (o *Oracle) fallback(ts int64, err error) (Quote, error) {
	if o.cfg.Fallback != config.FallbackStale {
		return Quote{}, err
	}
	o.mu.Lock()
	last, age := o.last, o.now().Sub(o.lastAt)
	o.mu.Unlock()

	if last == nil || age > o.cfg.MaxStaleness.Std() {
		return Quote{}, err
	}
	o.log.Warn("Serving stale price", "time", ts, "price", last.Price, "age", age, "err", err)
	q := *last
	q.Stale = true
	return q, nil
}

// cache values: feed time (8 bytes) | price (8 bytes)
func (o *Oracle) cached(ts int64) (Quote, bool) {
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], uint64(ts))
	val := o.cache.Get(nil, key[:])
	if len(val) != 16 {
		return Quote{}, false
	}
	return Quote{
		Time:  int64(binary.BigEndian.Uint64(val[:8])),
		Price: types.Fiat(binary.BigEndian.Uint64(val[8:])),
	}, true
}

func (o *Oracle) store(ts int64, q Quote) {
	var key [8]byte
	var val [16]byte
	binary.BigEndian.PutUint64(key[:], uint64(ts))
	binary.BigEndian.PutUint64(val[:8], uint64(q.Time))
	binary.BigEndian.PutUint64(val[8:], uint64(q.Price))
	o.cache.Set(key[:], val[:])

	o.mu.Lock()
	o.last, o.lastAt = &q, o.now()
	o.mu.Unlock()
}
