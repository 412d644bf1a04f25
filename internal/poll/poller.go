// Package poll turns a "search messages since T" backend primitive into a
// bounded wait for an OTP code.
//
// The wait is bounded by a wall-clock deadline rather than an iteration
// count. Each successful query advances the watermark to the moment the query
// was issued, so consecutive query windows overlap and never leave a gap. A
// message whose body holds no code is never retried once the watermark moves
// past it.
package poll

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/aelexs/sms-otp/internal/domain"
	"github.com/aelexs/sms-otp/internal/otp"
)

var tracer = otel.Tracer("poll")

var (
	iterationsTotal   metric.Int64Counter
	searchErrorsTotal metric.Int64Counter
	extractionsTotal  metric.Int64Counter
)

func init() {
	m := otel.Meter("poll")

	iterationsTotal, _ = m.Int64Counter("otp_poll_iterations_total",
		metric.WithDescription("Total message searches issued by polling loops"))
	searchErrorsTotal, _ = m.Int64Counter("otp_poll_search_errors_total",
		metric.WithDescription("Total message searches that failed and were skipped"))
	extractionsTotal, _ = m.Int64Counter("otp_extractions_total",
		metric.WithDescription("Total codes extracted, by cascade rule"))
}

// SearchFunc returns the bodies of messages received after since, in the
// order the backend delivers them.
type SearchFunc func(ctx context.Context, since time.Time) ([]string, error)

// Config configures a Poller. Zero fields take defaults.
type Config struct {
	Name      string // Backend name used in logs and spans
	Interval  time.Duration
	Clock     domain.Clock
	Sleeper   domain.Sleeper
	Extractor *otp.Extractor
	Logger    *slog.Logger // Used as given; callers pass a logger scoped to the backend
}

// Poller runs the bounded polling loop for one backend.
type Poller struct {
	name      string
	interval  time.Duration
	clock     domain.Clock
	sleeper   domain.Sleeper
	extractor *otp.Extractor
	logger    *slog.Logger
}

// Result is a successful wait.
type Result struct {
	Code string
	Rule string
}

// New creates a Poller from cfg.
func New(cfg Config) *Poller {
	p := &Poller{
		name:      cfg.Name,
		interval:  cfg.Interval,
		clock:     cfg.Clock,
		sleeper:   cfg.Sleeper,
		extractor: cfg.Extractor,
		logger:    cfg.Logger,
	}
	if p.interval <= 0 {
		p.interval = domain.DefaultPollInterval
	}
	if p.clock == nil {
		p.clock = domain.RealClock{}
	}
	if p.sleeper == nil {
		if s, ok := p.clock.(domain.Sleeper); ok {
			p.sleeper = s
		} else {
			p.sleeper = domain.RealClock{}
		}
	}
	if p.extractor == nil {
		p.extractor = otp.NewExtractor(nil)
	}
	if cfg.Logger == nil {
		p.logger = slog.Default().With(slog.String("provider", cfg.Name))
	}
	return p
}

// Interval returns the sleep between iterations.
func (p *Poller) Interval() time.Duration { return p.interval }

// Wait polls search until a message yields a code or timeout elapses.
//
// since is the lower bound of the first query; a zero since means the moment
// Wait is entered. The returned watermark is the lower bound the next Wait
// should use; it is valid whether or not a code was found. A failing search
// is logged and skipped without moving the watermark. When the deadline
// passes without a code Wait returns *domain.TimeoutError carrying timeout.
func (p *Poller) Wait(ctx context.Context, since time.Time, timeout time.Duration, search SearchFunc) (Result, time.Time, error) {
	ctx, span := tracer.Start(ctx, "poll.wait")
	defer span.End()

	timeout = domain.TimeoutOrDefault(timeout)
	start := p.clock.Now()
	deadline := start.Add(timeout)
	watermark := since
	if watermark.IsZero() {
		watermark = start
	}

	span.SetAttributes(
		attribute.String("otp.provider", p.name),
		attribute.Int64("otp.timeout_ms", timeout.Milliseconds()),
	)

	for iteration := 1; p.clock.Now().Before(deadline); iteration++ {
		issuedAt := p.clock.Now()
		iterationsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", p.name)))

		bodies, err := search(ctx, watermark)
		switch {
		case ctx.Err() != nil:
			span.SetStatus(codes.Error, ctx.Err().Error())
			return Result{}, watermark, ctx.Err()
		case err != nil:
			searchErrorsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", p.name)))
			span.RecordError(err)
			p.logger.WarnContext(ctx, "message search failed, retrying",
				slog.Int("iteration", iteration), slog.String("error", err.Error()))
		default:
			for _, body := range bodies {
				if m, ok := p.extractor.Find(body); ok {
					extractionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("rule", m.Rule)))
					span.SetAttributes(attribute.Int("otp.iterations", iteration), attribute.String("otp.rule", m.Rule))
					p.logger.DebugContext(ctx, "otp code extracted",
						slog.Int("iteration", iteration), slog.String("rule", m.Rule))
					return Result{Code: m.Code, Rule: m.Rule}, issuedAt, nil
				}
			}
			watermark = issuedAt
		}

		remaining := deadline.Sub(p.clock.Now())
		if remaining <= 0 {
			break
		}
		if err := p.sleeper.Sleep(ctx, min(p.interval, remaining)); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return Result{}, watermark, err
		}
	}

	err := &domain.TimeoutError{Timeout: timeout}
	span.SetStatus(codes.Error, err.Error())
	p.logger.InfoContext(ctx, "no otp code before deadline", slog.Int64("timeout_ms", timeout.Milliseconds()))
	return Result{}, watermark, err
}

// Remaining returns the budget left before deadline, never negative.
func Remaining(clock domain.Clock, deadline time.Time) time.Duration {
	if d := deadline.Sub(clock.Now()); d > 0 {
		return d
	}
	return 0
}
