// Package memotest provides a reusable contract suite for memo backends.
//
// It depends only on the method set of memo.Backend, so backend
// implementations outside this module, and tests inside package memo itself,
// can run it without an import cycle.
//
// Example:
//
//	func TestRedisBackendContract(t *testing.T) {
//		srv := miniredis.RunT(t)
//		client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
//		store := memo.NewRedisBackend(context.Background(), client, memo.WithPrefix("test"))
//
//		// Namespace keys per test and tune TTL waits for backend semantics as needed.
//		memotest.RunBackendContract(t, store, memotest.Options{
//			CaseName: t.Name(),
//			Advance:  srv.FastForward,
//		})
//	}
package memotest
