package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"go.uber.org/ratelimit"
	"golang.org/x/sync/singleflight"

	"github.com/upbo/upbotrading/internal/config"
	"github.com/upbo/upbotrading/internal/events"
	"github.com/upbo/upbotrading/internal/logger"
	"github.com/upbo/upbotrading/internal/metrics"
	"github.com/upbo/upbotrading/internal/storage"
)

type Options struct {
	Model    string
	ProModel string
	// Timeout bounds one provider exchange including retries.
	Timeout           time.Duration
	Cooldown          time.Duration
	RetryDelay        time.Duration
	MaxRetries        int
	RequestsPerMinute int
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Model:             cfg.AI.Model,
		ProModel:          cfg.AI.ProModel,
		Timeout:           cfg.AITimeout(),
		Cooldown:          cfg.AICooldown(),
		RetryDelay:        cfg.AIRetryDelay(),
		MaxRetries:        cfg.AIMaxRetries(),
		RequestsPerMinute: cfg.AI.RequestsPerMinute,
	}
}

// Gateway mediates every call to the provider: cache-first reads, one flight
// per cache key, a global cooldown after rate limiting, retries with doubling
// delay and stale-or-default fallback. Cached operations never return errors.
type Gateway struct {
	provider Provider
	cache    *Cache
	group    singleflight.Group
	limiter  ratelimit.Limiter
	bus      *events.Bus
	opts     Options
	logger   *logger.Logger

	mu            sync.Mutex
	cooldownUntil time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewGateway(provider Provider, kv storage.KV, bus *events.Bus, opts Options, log *logger.Logger) *Gateway {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.ProModel == "" {
		opts.ProModel = opts.Model
	}

	limiter := ratelimit.NewUnlimited()
	if opts.RequestsPerMinute > 0 {
		limiter = ratelimit.New(opts.RequestsPerMinute, ratelimit.Per(time.Minute))
	}
	if bus == nil {
		bus = events.NewBus()
	}

	return &Gateway{
		provider: provider,
		cache:    NewCache(kv, log),
		limiter:  limiter,
		bus:      bus,
		opts:     opts,
		logger:   log.With("component", "ai"),
		now:      time.Now,
		sleep:    sleepContext,
	}
}

// CooldownUntil reports the end of the current cooldown window, if any.
func (g *Gateway) CooldownUntil() (time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.now().Before(g.cooldownUntil) {
		return g.cooldownUntil, true
	}
	return time.Time{}, false
}

func (g *Gateway) enterCooldown() {
	g.mu.Lock()
	g.cooldownUntil = g.now().Add(g.opts.Cooldown)
	until := g.cooldownUntil
	g.mu.Unlock()

	metrics.AICooldowns.Inc()
	g.logger.Warn("rate limit hit, cooling down", "until", until.Format(time.TimeOnly))
}

// withRetry runs fn under the cooldown gate and the retry policy. The gate is
// checked on entry only; a retry scheduled by the call that tripped the
// cooldown still goes out.
func (g *Gateway) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if until, cooling := g.CooldownUntil(); cooling {
		metrics.AIProviderCalls.WithLabelValues("cooldown").Inc()
		return fmt.Errorf("%s: %w until %s", op, ErrQuotaCooldown, until.Format(time.TimeOnly))
	}

	b := &backoff.Backoff{
		Min:    g.opts.RetryDelay,
		Max:    g.opts.RetryDelay << g.opts.MaxRetries,
		Factor: 2,
	}

	for attempt := 0; ; attempt++ {
		g.limiter.Take()
		if cerr := ctx.Err(); cerr != nil {
			metrics.AIProviderCalls.WithLabelValues("expired").Inc()
			return fmt.Errorf("%s: waiting for rate limiter: %w", op, cerr)
		}
		err := fn(ctx)
		if err == nil {
			metrics.AIProviderCalls.WithLabelValues("ok").Inc()
			return nil
		}

		switch {
		case IsInvalidCredential(err):
			metrics.AIProviderCalls.WithLabelValues("invalid_credential").Inc()
			g.logger.Error("provider rejected credential", "op", op, "error", err)
			g.bus.Publish(events.Event{Kind: events.KindCredentialInvalid, At: g.now(), Err: err})
			return fmt.Errorf("%s: %w: %w", op, ErrInvalidCredential, err)
		case errors.Is(err, ErrMalformedResponse):
			metrics.AIProviderCalls.WithLabelValues("malformed").Inc()
			return fmt.Errorf("%s: %w", op, err)
		case ctx.Err() != nil:
			metrics.AIProviderCalls.WithLabelValues("error").Inc()
			return fmt.Errorf("%s: %w", op, err)
		case IsRateLimit(err):
			metrics.AIProviderCalls.WithLabelValues("rate_limited").Inc()
			g.enterCooldown()
		default:
			metrics.AIProviderCalls.WithLabelValues("error").Inc()
		}

		if attempt >= g.opts.MaxRetries {
			return fmt.Errorf("%s: %w", op, err)
		}
		delay := b.Duration()
		g.logger.Warn("provider call failed, retrying", "op", op, "attempt", attempt+1, "delay", delay, "error", err)
		if serr := g.sleep(ctx, delay); serr != nil {
			return fmt.Errorf("%s: %w", op, serr)
		}
	}
}

// cached runs the full policy for one cached operation. fallback builds the
// default when neither a live nor a stale value is available.
func cached[T any](ctx context.Context, g *Gateway, op, key string, ttl time.Duration, fallback func(err error) T, call func(ctx context.Context) (T, error)) T {
	stale, state := lookup[T](ctx, g, key, ttl)
	if state == fresh {
		metrics.AICacheLookups.WithLabelValues(op, "hit").Inc()
		return stale
	}

	ch := g.group.DoChan(key, func() (any, error) {
		metrics.AICacheLookups.WithLabelValues(op, "miss").Inc()

		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.opts.Timeout)
		defer cancel()

		var result T
		err := g.withRetry(callCtx, op, func(ctx context.Context) error {
			v, err := call(ctx)
			if err != nil {
				return err
			}
			result = v
			return nil
		})
		if err == nil {
			if perr := g.cache.Put(callCtx, key, result); perr != nil {
				g.logger.Warn("store ai cache entry", "key", key, "error", perr)
			}
			return result, nil
		}

		if errors.Is(err, ErrQuotaCooldown) {
			g.logger.Debug("provider skipped during cooldown", "op", op)
		} else {
			g.logger.Warn("provider call failed", "op", op, "error", err)
		}

		if v, st := lookup[T](callCtx, g, key, ttl); st != missing {
			metrics.AICacheLookups.WithLabelValues(op, "stale").Inc()
			return v, nil
		}
		metrics.AICacheLookups.WithLabelValues(op, "default").Inc()
		return fallback(err), nil
	})

	select {
	case res := <-ch:
		return res.Val.(T)
	case <-ctx.Done():
		if state == expired {
			return stale
		}
		return fallback(ctx.Err())
	}
}

type entryState int

const (
	missing entryState = iota
	expired
	fresh
)

func lookup[T any](ctx context.Context, g *Gateway, key string, ttl time.Duration) (T, entryState) {
	var v T
	data, age, ok := g.cache.Get(ctx, key)
	if !ok {
		return v, missing
	}
	if err := json.Unmarshal(data, &v); err != nil {
		g.logger.Warn("undecodable ai cache entry", "key", key, "error", err)
		var zero T
		return zero, missing
	}
	if age < ttl {
		return v, fresh
	}
	return v, expired
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
