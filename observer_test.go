package memo

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestObserverReceivesHelperOps(t *testing.T) {
	obs := &observerSpy{}
	h := New(newMemoryStore(0, 0), WithObserver(obs))
	ctx := context.Background()

	fn := func(context.Context) (int, error) { return 1, nil }
	_, _ = Call(ctx, h, "k", time.Minute, fn)
	_, _ = Call(ctx, h, "k", time.Minute, fn)

	calls := 0
	cf := MustCached(h, "add:{a}:{b}", Params("a", "b"), time.Minute, add(&calls))
	_, _ = cf.Map(ctx, [][]any{{1, 2}})
	_ = cf.ClearCache(ctx, Positional(1, 2))

	ops := obs.Ops()
	if len(ops) != 4 {
		t.Fatalf("expected 4 ops, got %+v", ops)
	}
	want := []observedOp{
		{op: opCall, key: "k", hit: false, driver: DriverMemory},
		{op: opCall, key: "k", hit: true, driver: DriverMemory},
		{op: opMap, key: "add:{a}:{b}", hit: false, driver: DriverMemory},
		{op: opClear, key: "add:1:2", hit: true, driver: DriverMemory},
	}
	for i, w := range want {
		if ops[i] != w {
			t.Fatalf("op %d: got %+v want %+v", i, ops[i], w)
		}
	}
}

func TestObserverReceivesLocalOps(t *testing.T) {
	obs := &observerSpy{}
	calls := 0
	m := Memoize(time.Minute, counting(&calls), WithLocalObserver(obs))
	ctx := context.Background()
	_, _ = m.Call(ctx, Positional(1))
	_, _ = m.Call(ctx, Positional(1))
	_, _ = m.Call(ctx, Positional([]int{1}))

	ops := obs.Ops()
	if len(ops) != 3 {
		t.Fatalf("expected 3 ops, got %+v", ops)
	}
	if ops[0].op != opLocal || ops[0].hit || ops[0].driver != DriverLocal {
		t.Fatalf("unexpected first op %+v", ops[0])
	}
	if !ops[1].hit {
		t.Fatalf("expected second op to hit")
	}
	if !errors.Is(ops[2].err, ErrUnhashableArgument) {
		t.Fatalf("expected unhashable error to be observed, got %v", ops[2].err)
	}
}

func TestMultiObserverFansOut(t *testing.T) {
	a, b := &observerSpy{}, &observerSpy{}
	multi := MultiObserver(a, nil, b)
	multi.OnCacheOp(context.Background(), opCall, "k", true, nil, time.Millisecond, DriverRedis)
	if len(a.Ops()) != 1 || len(b.Ops()) != 1 {
		t.Fatalf("expected both observers called, a=%d b=%d", len(a.Ops()), len(b.Ops()))
	}
	var nilFunc ObserverFunc
	nilFunc.OnCacheOp(context.Background(), opCall, "k", true, nil, 0, DriverRedis)
}

func TestLogObserver(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewWithOptions(&buf, log.Options{Level: log.DebugLevel})
	obs := LogObserver(logger)
	ctx := context.Background()

	obs.OnCacheOp(ctx, opCall, "user:1", true, nil, time.Millisecond, DriverMemory)
	out := buf.String()
	if !strings.Contains(out, "cache op") || !strings.Contains(out, "user:1") || !strings.Contains(out, "memory") {
		t.Fatalf("unexpected debug line: %q", out)
	}

	buf.Reset()
	obs.OnCacheOp(ctx, opMap, "add:{a}", false, errors.New("backend down"), time.Millisecond, DriverRedis)
	out = buf.String()
	if !strings.Contains(out, "cache op failed") || !strings.Contains(out, "backend down") {
		t.Fatalf("unexpected error line: %q", out)
	}

	buf.Reset()
	quiet := LogObserver(log.NewWithOptions(&buf, log.Options{Level: log.InfoLevel}))
	quiet.OnCacheOp(ctx, opCall, "k", false, nil, 0, DriverMemory)
	if buf.Len() != 0 {
		t.Fatalf("expected debug line suppressed at info level, got %q", buf.String())
	}
}

func TestMetricsObserver(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	obs, err := NewMetricsObserver(mp.Meter("test"))
	if err != nil {
		t.Fatalf("failed to create observer: %v", err)
	}

	h := New(newMemoryStore(0, 0), WithObserver(obs))
	ctx := context.Background()
	fn := func(context.Context) (int, error) { return 1, nil }
	_, _ = Call(ctx, h, "k", time.Minute, fn)
	_, _ = Call(ctx, h, "k", time.Minute, fn)
	_, _ = Call(ctx, h, "bad", time.Minute, func(context.Context) (int, error) { return 0, errors.New("boom") })

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	for name, want := range map[string]int64{
		"memo.ops":    3,
		"memo.hits":   1,
		"memo.misses": 1,
		"memo.errors": 1,
	} {
		if got := sumOf(t, rm, name); got != want {
			t.Fatalf("%s: got %d want %d", name, got, want)
		}
	}
	m := findMetric(rm, "memo.op.duration_ms")
	if m == nil {
		t.Fatal("memo.op.duration_ms metric not found")
	}
	hist, ok := m.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("expected Histogram[float64], got %T", m.Data)
	}
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	if count != 3 {
		t.Fatalf("expected 3 duration samples, got %d", count)
	}
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func sumOf(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	m := findMetric(rm, name)
	if m == nil {
		return 0
	}
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("%s: expected Sum[int64], got %T", name, m.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}
