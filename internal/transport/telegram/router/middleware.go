package router

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"kinobot/pkg/logx"
)

// slowRequest promotes a successful request log from DEBUG to INFO.
const slowRequest = 750 * time.Millisecond

type HandlerFunc func(ctx context.Context, req *Request) error

type Middleware func(next HandlerFunc) HandlerFunc

// Chain wraps h so that m[0] runs first.
func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

// requestLogger returns the request-scoped logger, which already carries
// rid, chat, sender and command. Requests built without one get those
// fields attached to fallback.
func requestLogger(fallback logx.Logger, req *Request) logx.Logger {
	if req == nil {
		return fallback
	}
	if !req.Logger.IsZero() {
		return req.Logger
	}
	return fallback.With(
		logx.String("rid", req.ReqID),
		logx.Int64("chat_id", req.Chat.ChatID),
		logx.Int64("from_id", req.FromID),
		logx.String("cmd", req.Command),
	)
}

func MWTimeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		if d <= 0 {
			return next
		}
		return func(ctx context.Context, req *Request) error {
			cctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(cctx, req)
		}
	}
}

// MWPanicRecover turns a handler panic into an error.
func MWPanicRecover(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				requestLogger(log, req).Error("handler panic",
					logx.Any("panic", r),
					logx.Stack(string(debug.Stack())),
				)
				err = fmt.Errorf("handler panic: %v", r)
			}()
			return next(ctx, req)
		}
	}
}

func MWRequestLog(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			err := next(ctx, req)
			d := time.Since(start)

			logger := requestLogger(log, req)
			fields := []logx.Field{logx.Duration("dur", d)}
			if req != nil {
				fields = append(fields,
					logx.String("kind", string(req.Update.Kind)),
					logx.Bool("owner", req.IsOwner),
					logx.Int("args", len(req.Args)),
				)
			}
			switch {
			case errors.Is(err, context.DeadlineExceeded):
				logger.Warn("request timed out", fields...)
			case err != nil:
				logger.Warn("request failed", append(fields, logx.Err(err))...)
			case d >= slowRequest:
				logger.Info("slow request", fields...)
			default:
				logger.Debug("request ok", fields...)
			}
			return err
		}
	}
}
