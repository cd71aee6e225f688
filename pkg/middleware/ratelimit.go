package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Suhaibinator/SDispatch/pkg/common"
	"go.uber.org/ratelimit"
	"go.uber.org/zap"
)

// Rate limit key strategies.
const (
	StrategyIP     = "ip"
	StrategyRoute  = "route"
	StrategyCustom = "custom"
)

// RateLimitConfig defines configuration for rate limiting
type RateLimitConfig struct {
	// BucketName prefixes every key, so hooks sharing a name share limits.
	BucketName string

	// Limit is the number of requests allowed per Window.
	Limit  int
	Window time.Duration

	// Strategy picks the client key: StrategyIP (default), StrategyRoute or
	// StrategyCustom.
	Strategy string

	// KeyExtractor computes the key for StrategyCustom.
	KeyExtractor func(*common.Context) (string, error)
}

func (c *RateLimitConfig) key(ctx *common.Context) (string, error) {
	var key string
	switch c.Strategy {
	case StrategyRoute:
		key = ctx.RouteName()
	case StrategyCustom:
		if c.KeyExtractor == nil {
			key = ClientIPOf(ctx)
			break
		}
		k, err := c.KeyExtractor(ctx)
		if err != nil {
			return "", err
		}
		key = k
	default:
		key = ClientIPOf(ctx)
	}
	return c.BucketName + ":" + key, nil
}

// RateLimiter decides whether a request under key fits in limit per window.
// It returns the requests left and the time until the window resets.
type RateLimiter interface {
	Allow(key string, limit int, window time.Duration) (allowed bool, remaining int, reset time.Duration)
}

// WindowLimiter is a fixed window RateLimiter. Expired windows are swept at
// most once per window length, so idle keys do not accumulate.
type WindowLimiter struct {
	mu        sync.Mutex
	windows   map[string]*fixedWindow
	now       func() time.Time
	nextSweep time.Time
}

type fixedWindow struct {
	start time.Time
	end   time.Time
	count int
}

// NewWindowLimiter creates a WindowLimiter.
func NewWindowLimiter() *WindowLimiter {
	return &WindowLimiter{windows: make(map[string]*fixedWindow), now: time.Now}
}

func (l *WindowLimiter) Allow(key string, limit int, window time.Duration) (bool, int, time.Duration) {
	if window <= 0 {
		window = time.Second
	}
	if limit <= 0 {
		limit = 1
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if !now.Before(l.nextSweep) {
		l.sweep(now)
		l.nextSweep = now.Add(window)
	}
	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= window {
		w = &fixedWindow{start: now, end: now.Add(window)}
		l.windows[key] = w
	}
	reset := w.start.Add(window).Sub(now)

	if w.count >= limit {
		return false, 0, reset
	}
	w.count++
	return true, limit - w.count, reset
}

func (l *WindowLimiter) sweep(now time.Time) {
	for key, w := range l.windows {
		if !now.Before(w.end) {
			delete(l.windows, key)
		}
	}
}

// RateLimit is a pre hook rejecting requests over the configured limit with
// 429 Too Many Requests. It sets the X-RateLimit-* headers on every request
// it sees.
type RateLimit struct {
	config  RateLimitConfig
	limiter RateLimiter
	logger  *zap.Logger
}

// NewRateLimit creates a RateLimit hook. A nil limiter uses a WindowLimiter.
func NewRateLimit(config RateLimitConfig, limiter RateLimiter, logger *zap.Logger) *RateLimit {
	if limiter == nil {
		limiter = NewWindowLimiter()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimit{config: config, limiter: limiter, logger: logger}
}

func (rl *RateLimit) OnPreRequest(ctx *common.Context) error {
	key, err := rl.config.key(ctx)
	if err != nil {
		rl.logger.Error("Failed to extract rate limit key",
			zap.String("route", ctx.RouteName()),
			zap.Error(err),
		)
		return fmt.Errorf("rate limit key: %w", err)
	}

	allowed, remaining, reset := rl.limiter.Allow(key, rl.config.Limit, rl.config.Window)

	h := ctx.Response.Header
	h.Set("X-RateLimit-Limit", strconv.Itoa(rl.config.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(reset).Unix(), 10))

	if !allowed {
		retry := int64(reset.Round(time.Second) / time.Second)
		if retry < 1 {
			retry = 1
		}
		h.Set("Retry-After", strconv.FormatInt(retry, 10))
		rl.logger.Warn("Rate limit exceeded",
			zap.String("route", ctx.RouteName()),
			zap.String("key", key),
			zap.Int("limit", rl.config.Limit),
		)
		return common.NewHTTPError(http.StatusTooManyRequests, "Too Many Requests")
	}
	return nil
}

func (rl *RateLimit) OnPostRequest(*common.Context) error {
	return nil
}

// Throttle is a pre hook that paces requests instead of rejecting them: each
// key gets a leaky bucket of Rate requests per Per, and a request arriving
// early waits for its slot.
type Throttle struct {
	config   RateLimitConfig
	opts     []ratelimit.Option
	limiters sync.Map // key -> ratelimit.Limiter
	mu       sync.Mutex
}

// NewThrottle creates a Throttle allowing config.Limit requests per
// config.Window for each key. opts are passed to ratelimit.New.
func NewThrottle(config RateLimitConfig, opts ...ratelimit.Option) *Throttle {
	if config.Limit <= 0 {
		config.Limit = 1
	}
	if config.Window > 0 {
		opts = append([]ratelimit.Option{ratelimit.Per(config.Window)}, opts...)
	}
	return &Throttle{config: config, opts: opts}
}

func (t *Throttle) limiter(key string) ratelimit.Limiter {
	if l, ok := t.limiters.Load(key); ok {
		return l.(ratelimit.Limiter)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if l, ok := t.limiters.Load(key); ok {
		return l.(ratelimit.Limiter)
	}
	l := ratelimit.New(t.config.Limit, t.opts...)
	t.limiters.Store(key, l)
	return l
}

func (t *Throttle) OnPreRequest(ctx *common.Context) error {
	key, err := t.config.key(ctx)
	if err != nil {
		return fmt.Errorf("throttle key: %w", err)
	}
	t.limiter(key).Take()
	return ctx.Context().Err()
}

func (t *Throttle) OnPostRequest(*common.Context) error {
	return nil
}
