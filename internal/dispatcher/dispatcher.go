// Package dispatcher routes a validated job to the handler for its mode and
// shapes the outcome into a response envelope.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/dxywop/cf-clearance-scraper/internal/job"
	"github.com/dxywop/cf-clearance-scraper/internal/metrics"
)

// Messages written into error envelopes.
const (
	MsgInvalidMode   = "Invalid mode specified"
	MsgHandlerPanic  = "internal handler error"
	MsgNoHandler     = "mode is not available"
	defaultJobBudget = 60 * time.Second
)

// Handlers is the fixed mode table. A nil entry answers 500.
type Handlers struct {
	Source       job.Handler
	TurnstileMin job.Handler
	TurnstileMax job.Handler
	WAFSession   job.Handler
}

func (h Handlers) lookup(mode job.Mode) (job.Handler, bool) {
	switch mode {
	case job.ModeSource:
		return h.Source, true
	case job.ModeTurnstileMin:
		return h.TurnstileMin, true
	case job.ModeTurnstileMax:
		return h.TurnstileMax, true
	case job.ModeWAFSession:
		return h.WAFSession, true
	default:
		return nil, false
	}
}

// Dispatcher invokes exactly one handler per job.
type Dispatcher struct {
	handlers Handlers
	timeout  time.Duration
	logger   *zap.Logger
}

// New creates a Dispatcher. timeout bounds each handler call.
func New(handlers Handlers, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = defaultJobBudget
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		handlers: handlers,
		timeout:  timeout,
		logger:   logger.Named("dispatcher"),
	}
}

// Dispatch runs d through its handler and returns the envelope to write.
func (d *Dispatcher) Dispatch(ctx context.Context, desc job.Descriptor) job.Envelope {
	handler, known := d.handlers.lookup(desc.Mode)
	if !known {
		return job.Fail(http.StatusBadRequest, MsgInvalidMode)
	}

	start := time.Now()
	env := d.run(ctx, handler, desc)
	metrics.ObserveJob(string(desc.Mode), env.Status(), time.Since(start))
	return env
}

func (d *Dispatcher) run(ctx context.Context, handler job.Handler, desc job.Descriptor) (env job.Envelope) {
	logger := d.logger.With(zap.String("mode", string(desc.Mode)), zap.String("site", metrics.SanitizeSite(desc.URL)))
	if handler == nil {
		logger.Error("no handler registered")
		return job.Fail(http.StatusInternalServerError, MsgNoHandler)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("handler panicked", zap.Any("panic", rec), zap.Stack("stack"))
			env = job.Fail(http.StatusInternalServerError, MsgHandlerPanic)
		}
	}()

	result, err := handler.Run(ctx, desc)
	if err != nil {
		herr := &job.HandlerError{Mode: desc.Mode, Err: err}
		logger.Warn("handler failed", zap.Error(herr), zap.Bool("deadline", errors.Is(err, context.DeadlineExceeded)))
		return job.Fail(http.StatusInternalServerError, herr.Error())
	}
	return shape(desc.Mode, result)
}

func shape(mode job.Mode, result job.Result) job.Envelope {
	switch mode {
	case job.ModeSource:
		return job.OK(map[string]any{"source": result.Value})
	case job.ModeTurnstileMin, job.ModeTurnstileMax:
		return job.OK(map[string]any{"token": result.Value})
	default:
		fields := make(map[string]any, len(result.Fields))
		for k, v := range result.Fields {
			fields[k] = v
		}
		return job.OK(fields)
	}
}

// String describes the configured table for startup logs.
func (h Handlers) String() string {
	return fmt.Sprintf("source=%t turnstile-min=%t turnstile-max=%t waf-session=%t",
		h.Source != nil, h.TurnstileMin != nil, h.TurnstileMax != nil, h.WAFSession != nil)
}
