package memo

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsObserver records cache operations as OpenTelemetry instruments:
// memo.ops, memo.hits, memo.misses, memo.errors and the
// memo.op.duration_ms histogram, attributed by op and driver.
type MetricsObserver struct {
	ops      metric.Int64Counter
	hits     metric.Int64Counter
	misses   metric.Int64Counter
	errors   metric.Int64Counter
	duration metric.Float64Histogram
}

// NewMetricsObserver creates the instruments on meter.
// @group Observability
//
// Example: export cache metrics
//
//	provider := sdkmetric.NewMeterProvider()
//	obs, _ := memo.NewMetricsObserver(provider.Meter("memo"))
//	h := memo.New(memo.NewMemoryBackend(context.Background()), memo.WithObserver(obs))
//	_ = h
func NewMetricsObserver(meter metric.Meter) (*MetricsObserver, error) {
	ops, err := meter.Int64Counter(
		"memo.ops",
		metric.WithDescription("Total number of cache operations"),
		metric.WithUnit("{op}"),
	)
	if err != nil {
		return nil, err
	}
	hits, err := meter.Int64Counter(
		"memo.hits",
		metric.WithDescription("Operations served entirely from cache"),
		metric.WithUnit("{op}"),
	)
	if err != nil {
		return nil, err
	}
	misses, err := meter.Int64Counter(
		"memo.misses",
		metric.WithDescription("Operations that ran the wrapped function"),
		metric.WithUnit("{op}"),
	)
	if err != nil {
		return nil, err
	}
	errs, err := meter.Int64Counter(
		"memo.errors",
		metric.WithDescription("Operations that returned an error"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram(
		"memo.op.duration_ms",
		metric.WithDescription("Cache operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	return &MetricsObserver{ops: ops, hits: hits, misses: misses, errors: errs, duration: duration}, nil
}

// OnCacheOp implements Observer.
func (m *MetricsObserver) OnCacheOp(ctx context.Context, op string, _ string, hit bool, err error, dur time.Duration, driver Driver) {
	opt := metric.WithAttributes(
		attribute.String("memo.op", op),
		attribute.String("memo.driver", string(driver)),
	)
	m.ops.Add(ctx, 1, opt)
	switch {
	case err != nil:
		m.errors.Add(ctx, 1, opt)
	case hit:
		m.hits.Add(ctx, 1, opt)
	case op != opClear:
		m.misses.Add(ctx, 1, opt)
	}
	m.duration.Record(ctx, float64(dur.Microseconds())/1000, opt)
}
