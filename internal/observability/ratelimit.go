package observability

import (
	"context"
	"fmt"
	"time"

	"inkwell/internal/ratelimit"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "inkwell/ratelimit"

// Option configures the rate limit instruments.
type Option func(*options)

type options struct {
	meterProvider metric.MeterProvider
}

// WithMeterProvider records into mp instead of the global meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		o.meterProvider = mp
	}
}

func meterFrom(opts []Option) metric.Meter {
	o := options{meterProvider: otel.GetMeterProvider()}
	for _, opt := range opts {
		opt(&o)
	}
	return o.meterProvider.Meter(meterName)
}

// InstrumentedChecker wraps a ratelimit.Checker and counts verdicts per
// policy. It satisfies ratelimit.Checker so it drops into the middleware
// unchanged.
type InstrumentedChecker struct {
	inner    ratelimit.Checker
	checks   metric.Int64Counter
	duration metric.Float64Histogram
	policy   attribute.KeyValue
}

var _ ratelimit.Checker = (*InstrumentedChecker)(nil)

// NewInstrumentedChecker records ratelimit.checks and
// ratelimit.check.duration for every Check call on inner.
func NewInstrumentedChecker(inner ratelimit.Checker, opts ...Option) (*InstrumentedChecker, error) {
	meter := meterFrom(opts)

	checks, err := meter.Int64Counter(
		"ratelimit.checks",
		metric.WithDescription("Number of admission checks by policy and verdict"),
		metric.WithUnit("{check}"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"ratelimit.check.duration",
		metric.WithDescription("Duration of admission checks in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedChecker{
		inner:    inner,
		checks:   checks,
		duration: duration,
		policy:   attribute.String("policy", inner.Name()),
	}, nil
}

func (c *InstrumentedChecker) Name() string {
	return c.inner.Name()
}

func (c *InstrumentedChecker) Check(attrs ratelimit.Attributes) ratelimit.Verdict {
	start := time.Now()
	v := c.inner.Check(attrs)
	elapsed := time.Since(start).Seconds()

	verdict := "admitted"
	if !v.Admitted {
		verdict = "denied"
	}

	ctx := context.Background()
	c.duration.Record(ctx, elapsed, metric.WithAttributes(c.policy))
	c.checks.Add(ctx, 1, metric.WithAttributes(c.policy, attribute.String("verdict", verdict)))
	return v
}

// StatsSource is anything that can report window store occupancy.
type StatsSource interface {
	Stats() ratelimit.Stats
}

// RegisterStoreGauges publishes ratelimit.store.keys, split by state
// (active or expired), read from source on each collection. Unregister the
// returned registration on shutdown.
func RegisterStoreGauges(source StatsSource, opts ...Option) (metric.Registration, error) {
	meter := meterFrom(opts)

	keys, err := meter.Int64ObservableGauge(
		"ratelimit.store.keys",
		metric.WithDescription("Window store entries by state"),
		metric.WithUnit("{key}"),
	)
	if err != nil {
		return nil, err
	}

	active := metric.WithAttributes(attribute.String("state", "active"))
	expired := metric.WithAttributes(attribute.String("state", "expired"))

	reg, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		stats := source.Stats()
		o.ObserveInt64(keys, int64(stats.ActiveKeys), active)
		o.ObserveInt64(keys, int64(stats.ExpiredKeys), expired)
		return nil
	}, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to register store gauge callback: %w", err)
	}
	return reg, nil
}
