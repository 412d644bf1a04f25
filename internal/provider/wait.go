package provider

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/aelexs/sms-otp/internal/domain"
	"github.com/aelexs/sms-otp/internal/otp"
	"github.com/aelexs/sms-otp/internal/poll"
)

var (
	// errNoMessage is a native wait that ended without delivering a message.
	errNoMessage = errors.New("no message received")

	errEmptyPhoneNumber = errors.New("empty phone number in response")
)

// nativeWaitFunc asks the backend to hold the request until a message
// received after since arrives, returning its body.
type nativeWaitFunc func(ctx context.Context, since time.Time, timeout time.Duration) (string, error)

// waiter runs the native-then-poll strategy for one binding and owns the
// binding's message watermark.
type waiter struct {
	name      string
	clock     domain.Clock
	poller    *poll.Poller
	extractor *otp.Extractor
	logger    *slog.Logger
	watermark time.Time
}

func newWaiter(name string, interval time.Duration, opts Options) *waiter {
	return &waiter{
		name:      name,
		clock:     opts.Clock,
		extractor: opts.Extractor,
		logger:    opts.Logger,
		poller: poll.New(poll.Config{
			Name:      name,
			Interval:  interval,
			Clock:     opts.Clock,
			Sleeper:   opts.Sleeper,
			Extractor: opts.Extractor,
			Logger:    opts.Logger,
		}),
	}
}

// markSession pins the first wait's lower bound to now, once.
func (w *waiter) markSession() {
	if w.watermark.IsZero() {
		w.watermark = w.clock.Now()
	}
}

// wait tries native (when non-nil) and then polls search with whatever is
// left of timeout. Both paths share one deadline.
func (w *waiter) wait(ctx context.Context, timeout time.Duration, native nativeWaitFunc, search poll.SearchFunc) (string, error) {
	ctx, span := tracer.Start(ctx, w.name+".wait")
	defer span.End()

	timeout = domain.TimeoutOrDefault(timeout)
	start := w.clock.Now()
	deadline := start.Add(timeout)
	since := w.watermark
	if since.IsZero() {
		since = start
	}
	span.SetAttributes(
		attribute.Int64("otp.timeout_ms", timeout.Milliseconds()),
		attribute.Bool("otp.native", native != nil),
	)

	if native != nil {
		body, err := native(ctx, since, timeout)
		switch {
		case err == nil:
			if m, ok := w.extractor.Find(body); ok {
				w.watermark = w.clock.Now()
				span.SetAttributes(attribute.String("otp.rule", m.Rule))
				return m.Code, nil
			}
			w.logger.InfoContext(ctx, "native wait returned a message without a code, polling")
		case ctx.Err() != nil:
			span.SetStatus(codes.Error, ctx.Err().Error())
			return "", ctx.Err()
		case isHardFailure(err):
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return "", domain.NewProviderError(w.name, "wait for sms", err)
		case errors.Is(err, errNoMessage):
			w.logger.DebugContext(ctx, "native wait ended without a message")
		default:
			span.RecordError(err)
			w.logger.WarnContext(ctx, "native wait failed, polling",
				slog.String("error", err.Error()))
		}
	}

	remaining := poll.Remaining(w.clock, deadline)
	if remaining <= 0 {
		err := &domain.TimeoutError{Timeout: timeout}
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	w.logger.DebugContext(ctx, "polling for sms",
		slog.Duration("remaining", remaining),
		slog.Duration("interval", w.poller.Interval()))
	res, watermark, err := w.poller.Wait(ctx, since, remaining, search)
	w.watermark = watermark
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		if domain.IsTimeout(err) {
			return "", &domain.TimeoutError{Timeout: timeout}
		}
		return "", err
	}
	return res.Code, nil
}
