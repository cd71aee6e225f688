package middleware

import (
	"fmt"
	"time"

	"github.com/Suhaibinator/SDispatch/pkg/common"
	"go.uber.org/zap"
)

// Timing measures the time spent between its pre and post hook. The start
// time lives in the Context, so a single Timing serves concurrent requests.
// The duration is logged and reported in a Server-Timing response header.
type Timing struct {
	logger *zap.Logger
	slow   time.Duration
}

// NewTiming creates a Timing hook. Requests slower than slow are logged at
// Warn, the others at Info; a zero slow logs everything at Info.
func NewTiming(logger *zap.Logger, slow time.Duration) *Timing {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Timing{logger: logger, slow: slow}
}

func (t *Timing) OnPreRequest(ctx *common.Context) error {
	ctx.SetHookState(t, time.Now())
	return nil
}

func (t *Timing) OnPostRequest(ctx *common.Context) error {
	elapsed, ok := t.Elapsed(ctx)
	if !ok {
		return nil
	}
	ctx.Response.Header.Set("Server-Timing", fmt.Sprintf("app;dur=%.3f", float64(elapsed)/float64(time.Millisecond)))

	fields := []zap.Field{
		zap.String("route", ctx.RouteName()),
		zap.String("url", ctx.Request.URL),
		zap.Duration("duration", elapsed),
	}
	if t.slow > 0 && elapsed > t.slow {
		t.logger.Warn("Slow action", fields...)
		return nil
	}
	t.logger.Info("Action timed", fields...)
	return nil
}

// Elapsed returns the time since the pre hook ran for ctx.
func (t *Timing) Elapsed(ctx *common.Context) (time.Duration, bool) {
	v, ok := ctx.HookState(t)
	if !ok {
		return 0, false
	}
	start, ok := v.(time.Time)
	if !ok {
		return 0, false
	}
	return time.Since(start), true
}
