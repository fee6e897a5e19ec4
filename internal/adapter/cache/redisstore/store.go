// Package redisstore implements the shared, fail-open result store on Redis.
//
// Every operation is bounded by a short timeout and routed through a circuit
// breaker. Any failure degrades to a miss (Get) or a dropped write (Set);
// callers never see a store error.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"

	"github.com/Buringskul/cv-feedback-bot/internal/adapter/observability"
	"github.com/Buringskul/cv-feedback-bot/internal/domain"
	obsctx "github.com/Buringskul/cv-feedback-bot/internal/observability"
)

// DefaultTTL applies when Set is called with a non-positive ttl.
const DefaultTTL = 604800 * time.Second

// Options tunes a Store. Zero values take the defaults.
type Options struct {
	OpTimeout       time.Duration
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

func (o Options) withDefaults() Options {
	if o.OpTimeout <= 0 {
		o.OpTimeout = 500 * time.Millisecond
	}
	if o.BreakerFailures == 0 {
		o.BreakerFailures = 3
	}
	if o.BreakerCooldown <= 0 {
		o.BreakerCooldown = 30 * time.Second
	}
	return o
}

// Store is a domain.ResultStore backed by a long-lived Redis client.
type Store struct {
	rdb       *redis.Client
	opTimeout time.Duration
	cb        *gobreaker.CircuitBreaker[[]byte]
	available atomic.Bool
}

// New wraps rdb. A nil client yields a store that always misses.
func New(rdb *redis.Client, opts Options) *Store {
	opts = opts.withDefaults()
	st := gobreaker.Settings{
		Name:        "redis-result-store",
		MaxRequests: 1,
		Timeout:     opts.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("result store breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
			observability.SetCacheBreakerState(int(to))
		},
		// A caller giving up is not a sign that Redis is unhealthy.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}
	return &Store{
		rdb:       rdb,
		opTimeout: opts.OpTimeout,
		cb:        gobreaker.NewCircuitBreaker[[]byte](st),
	}
}

// NewClient builds the process-wide Redis client from a redis:// URL with
// tight timeouts and OpenTelemetry tracing.
func NewClient(url string, opTimeout time.Duration) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("op=redisstore.NewClient: %w", err)
	}
	if opTimeout <= 0 {
		opTimeout = 500 * time.Millisecond
	}
	opt.DialTimeout = 2 * time.Second
	opt.ReadTimeout = opTimeout
	opt.WriteTimeout = opTimeout
	opt.MaxRetries = 3
	opt.MinRetryBackoff = 50 * time.Millisecond
	opt.MaxRetryBackoff = 2 * time.Second
	rdb := redis.NewClient(opt)
	if err := redisotel.InstrumentTracing(rdb); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("op=redisstore.NewClient: instrument: %w", err)
	}
	return rdb, nil
}

// Get returns the stored result for key; every failure is a miss.
func (s *Store) Get(ctx context.Context, key string) (domain.AnalysisResult, bool) {
	if s == nil || s.rdb == nil {
		return domain.AnalysisResult{}, false
	}
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	b, err := s.cb.Execute(func() ([]byte, error) {
		b, err := s.rdb.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return b, err
	})
	if err != nil {
		s.fail(ctx, "get", key, err)
		return domain.AnalysisResult{}, false
	}
	s.available.Store(true)
	if b == nil {
		return domain.AnalysisResult{}, false
	}
	var v domain.AnalysisResult
	if err := json.Unmarshal(b, &v); err != nil {
		observability.RecordCacheError("decode")
		obsctx.LoggerFromContext(ctx).Warn("result store entry undecodable; treating as miss",
			slog.String("key", key), slog.Any("error", err))
		return domain.AnalysisResult{}, false
	}
	return v, true
}

// Set writes v under key with ttl (SET key value EX ttl). Failures are dropped.
func (s *Store) Set(ctx context.Context, key string, v domain.AnalysisResult, ttl time.Duration) {
	if s == nil || s.rdb == nil {
		return
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	b, err := json.Marshal(v)
	if err != nil {
		observability.RecordCacheError("encode")
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	_, err = s.cb.Execute(func() ([]byte, error) {
		return nil, s.rdb.Set(ctx, key, b, ttl).Err()
	})
	if err != nil {
		s.fail(ctx, "set", key, err)
		return
	}
	s.available.Store(true)
}

// Available reports whether the last store operation reached Redis and the
// breaker is not open. It is informational only.
func (s *Store) Available() bool {
	if s == nil || s.rdb == nil {
		return false
	}
	return s.available.Load() && s.cb.State() != gobreaker.StateOpen
}

// Ping checks connectivity directly, bypassing the breaker, and updates Available.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.rdb == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	err := s.rdb.Ping(ctx).Err()
	s.available.Store(err == nil)
	return err
}

func (s *Store) fail(ctx context.Context, op, key string, err error) {
	observability.RecordCacheError(op)
	lg := obsctx.LoggerFromContext(ctx)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		lg.Debug("result store skipped; breaker open", slog.String("op", op), slog.String("key", key))
		return
	}
	if !errors.Is(err, context.Canceled) {
		s.available.Store(false)
	}
	lg.Warn("result store unavailable; continuing without cache",
		slog.String("op", op), slog.String("key", key), slog.Any("error", err))
}
