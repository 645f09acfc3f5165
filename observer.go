package memo

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
)

// Observer receives events for cache operations.
// It is called by Helper, CachedFunc and Memoized after each operation
// completes. op is one of "call", "map", "clear" or "memoize".
type Observer interface {
	OnCacheOp(ctx context.Context, op string, key string, hit bool, err error, dur time.Duration, driver Driver)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, op string, key string, hit bool, err error, dur time.Duration, driver Driver)

// OnCacheOp implements Observer.
func (f ObserverFunc) OnCacheOp(ctx context.Context, op string, key string, hit bool, err error, dur time.Duration, driver Driver) {
	if f == nil {
		return
	}
	f(ctx, op, key, hit, err, dur, driver)
}

// MultiObserver fans each event out to every non-nil observer in order.
func MultiObserver(observers ...Observer) Observer {
	list := make([]Observer, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			list = append(list, o)
		}
	}
	return multiObserver(list)
}

type multiObserver []Observer

func (m multiObserver) OnCacheOp(ctx context.Context, op string, key string, hit bool, err error, dur time.Duration, driver Driver) {
	for _, o := range m {
		o.OnCacheOp(ctx, op, key, hit, err, dur, driver)
	}
}

// LogObserver writes one structured log line per operation. Failures are
// logged at error level and everything else at debug. A nil logger uses the
// charmbracelet/log default logger.
// @group Observability
//
// Example: log cache traffic
//
//	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "memo"})
//	h := memo.New(memo.NewMemoryBackend(context.Background()),
//		memo.WithObserver(memo.LogObserver(logger)))
//	_ = h
func LogObserver(logger *log.Logger) Observer {
	if logger == nil {
		logger = log.Default()
	}
	return ObserverFunc(func(_ context.Context, op string, key string, hit bool, err error, dur time.Duration, driver Driver) {
		kv := []any{"op", op, "key", key, "hit", hit, "driver", string(driver), "dur", dur}
		if err != nil {
			logger.Error("cache op failed", append(kv, "error", err)...)
			return
		}
		logger.Debug("cache op", kv...)
	})
}
