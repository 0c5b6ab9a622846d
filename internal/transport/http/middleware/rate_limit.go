package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arklim/labsys-access/internal/core/port"
	"github.com/arklim/labsys-access/internal/infra/logger"
)

// IdentifierFunc extracts the key a limit is scoped to, such as the client IP.
type IdentifierFunc func(*gin.Context) (string, bool)

// RateLimitRule is a sliding-window limit applied per identifier.
type RateLimitRule struct {
	Name       string
	Limit      int
	Window     time.Duration
	Identifier IdentifierFunc
}

// RateLimitResponse is returned with 429.
type RateLimitResponse struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retry_after"`
	TraceID    string `json:"trace_id,omitempty"`
}

// RateLimiter throttles requests using a shared sliding-window store.
// It fails open: a store error lets the request through and is logged.
type RateLimiter struct {
	store  port.RateLimitStore
	logger *zap.Logger
	now    func() time.Time
}

type windowState struct {
	allowed   bool
	limit     int
	remaining int
	reset     time.Time
	retry     time.Duration
}

// NewRateLimiter builds a limiter over store.
func NewRateLimiter(store port.RateLimitStore, log *zap.Logger) *RateLimiter {
	if log == nil {
		log = zap.NewNop()
	}
	return &RateLimiter{store: store, logger: log, now: time.Now}
}

// WithClock overrides the clock, primarily for tests.
func (rl *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	if now != nil {
		rl.now = now
	}
	return rl
}

// ClientIPIdentifier scopes a rule to the request's client IP.
func ClientIPIdentifier() IdentifierFunc {
	return func(c *gin.Context) (string, bool) {
		ip := c.ClientIP()
		return ip, ip != ""
	}
}

// RateLimit enforces rules in order. The first exhausted rule rejects the
// request; otherwise headers describe the tightest remaining budget.
func (rl *RateLimiter) RateLimit(rules ...RateLimitRule) gin.HandlerFunc {
	active := make([]RateLimitRule, 0, len(rules))
	for _, rule := range rules {
		if rule.Identifier == nil || rule.Limit <= 0 || rule.Window <= 0 {
			continue
		}
		if rule.Name == "" {
			rule.Name = "default"
		}
		active = append(active, rule)
	}

	return func(c *gin.Context) {
		if len(active) == 0 || rl.store == nil {
			c.Next()
			return
		}

		now := rl.now()
		var tightest *windowState

		for _, rule := range active {
			identifier, ok := rule.Identifier(c)
			if !ok {
				continue
			}

			state, err := rl.evaluate(c, rule, rule.Name+":"+identifier, now)
			if err != nil {
				logger.WithContext(c.Request.Context(), rl.logger).Warn("rate limit check failed",
					zap.String("rule", rule.Name),
					zap.String("identifier", logger.MaskIP(identifier)),
					zap.Error(err),
				)
				continue
			}

			if !state.allowed {
				writeRateLimitHeaders(c, state)
				retry := retrySeconds(state.retry)
				c.AbortWithStatusJSON(http.StatusTooManyRequests, RateLimitResponse{
					Error:      "too many requests",
					RetryAfter: retry,
					TraceID:    GetTraceID(c),
				})
				return
			}

			if tightest == nil || state.remaining < tightest.remaining {
				s := state
				tightest = &s
			}
		}

		if tightest != nil {
			writeRateLimitHeaders(c, *tightest)
		}
		c.Next()
	}
}

func (rl *RateLimiter) evaluate(c *gin.Context, rule RateLimitRule, key string, now time.Time) (windowState, error) {
	ctx := c.Request.Context()

	if err := rl.store.TrimWindow(ctx, key, rule.Window, now); err != nil {
		return windowState{}, err
	}
	count, err := rl.store.CountAttempts(ctx, key, rule.Window, now)
	if err != nil {
		return windowState{}, err
	}
	oldest, hasOldest, err := rl.store.OldestAttempt(ctx, key, rule.Window, now)
	if err != nil {
		return windowState{}, err
	}

	state := windowState{allowed: true, limit: rule.Limit, reset: now.Add(rule.Window)}
	if hasOldest {
		state.reset = oldest.Add(rule.Window)
	}
	state.retry = state.reset.Sub(now)
	if state.retry < 0 {
		state.retry = 0
	}

	if count >= rule.Limit {
		state.allowed = false
		return state, nil
	}

	if err := rl.store.RecordAttempt(ctx, key, now); err != nil {
		return windowState{}, err
	}
	state.remaining = rule.Limit - count - 1
	if state.remaining < 0 {
		state.remaining = 0
	}
	return state, nil
}

func writeRateLimitHeaders(c *gin.Context, s windowState) {
	h := c.Writer.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(s.limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(s.remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(s.reset.Unix(), 10))
	if !s.allowed {
		h.Set("Retry-After", strconv.Itoa(retrySeconds(s.retry)))
	}
}

func retrySeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}
