package hostfuncs

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/reglet-dev/reglet-script/domain/ports"
	"go.uber.org/zap"
)

// Middleware is a function that wraps a ByteHandler to add cross-cutting behavior.
// Middleware executes in FIFO order (first registered wraps first, onion model).
//
// Example usage:
//
//	timing := func(next ByteHandler) ByteHandler {
//	    return func(ctx context.Context, payload []byte) ([]byte, error) {
//	        start := time.Now()
//	        defer func() { observe(time.Since(start)) }()
//	        return next(ctx, payload)
//	    }
//	}
type Middleware func(next ByteHandler) ByteHandler

// RegistryOption is a functional option for configuring a HandlerRegistry.
type RegistryOption func(*registryBuilder)

// Host call statuses reported by LoggingMiddleware and MetricsMiddleware.
const (
	StatusOK      = "ok"
	StatusFailure = "failure"
)

// PanicRecoveryMiddleware returns a middleware that catches panics and converts
// them to structured ErrorResponse JSON instead of crashing the host.
func PanicRecoveryMiddleware() Middleware {
	return func(next ByteHandler) ByteHandler {
		return func(ctx context.Context, payload []byte) (resp []byte, err error) {
			defer func() {
				if r := recover(); r != nil {
					resp = NewPanicError(r).ToJSON()
					err = nil // Return JSON error, not Go error
				}
			}()
			return next(ctx, payload)
		}
	}
}

// LoggingMiddleware logs every host call at debug level and failures at warn.
func LoggingMiddleware(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next ByteHandler) ByteHandler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			funcName := functionName(ctx)
			start := time.Now()
			resp, err := next(ctx, payload)
			status := callStatus(resp, err)

			fields := []zap.Field{
				zap.String("op", funcName),
				zap.String("status", status),
				zap.Duration("elapsed", time.Since(start)),
			}
			if access := accessSummary(ctx); len(access) > 0 {
				fields = append(fields, zap.Strings("access", access))
			}
			switch {
			case err != nil:
				logger.Warn("host call failed", append(fields, zap.Error(err))...)
			case status != StatusOK:
				logger.Debug("host call returned error", fields...)
			default:
				logger.Debug("host call", fields...)
			}
			return resp, err
		}
	}
}

// MetricsMiddleware reports every host call to recorder.
func MetricsMiddleware(recorder ports.MetricsRecorder) Middleware {
	return func(next ByteHandler) ByteHandler {
		if recorder == nil {
			return next
		}
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			start := time.Now()
			resp, err := next(ctx, payload)
			recorder.RecordHostCall(functionName(ctx), callStatus(resp, err), time.Since(start))
			return resp, err
		}
	}
}

// accessSummary renders the access checks of the call, e.g.
// "write /p/out.txt (denied: path not permitted)".
func accessSummary(ctx context.Context) []string {
	hc, ok := ctx.(HostContext)
	if !ok {
		return nil
	}
	checks := hc.Checks()
	out := make([]string, len(checks))
	for i, c := range checks {
		s := c.Capability.String()
		if c.Path != "" {
			s += " " + c.Path
		}
		if !c.Allowed {
			s += " (denied: " + c.Reason + ")"
		}
		out[i] = s
	}
	return out
}

func functionName(ctx context.Context) string {
	if hc, ok := ctx.(HostContext); ok {
		return hc.FunctionName()
	}
	return "unknown"
}

// callStatus is StatusOK, StatusFailure for a Go error, or the error
// identifier of a structured error response.
func callStatus(resp []byte, err error) string {
	if err != nil {
		return StatusFailure
	}
	node, gerr := sonic.Get(resp, "error")
	if gerr != nil {
		return StatusOK
	}
	if id, serr := node.String(); serr == nil && id != "" {
		return id
	}
	return StatusOK
}
