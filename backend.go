package memo

import (
	"context"
	"time"
)

// Driver identifies a backend implementation.
type Driver string

const (
	DriverNull      Driver = "null"
	DriverFile      Driver = "file"
	DriverMemory    Driver = "memory"
	DriverMemcached Driver = "memcached"
	DriverDynamo    Driver = "dynamodb"
	DriverSQL       Driver = "sql"
	DriverRedis     Driver = "redis"
	DriverNATS      Driver = "nats"
)

// Backend is the key/value capability the call and batch wrappers depend on.
//
// GetMany returns only the keys that were found; a key missing from the
// returned map is a cache miss. A ttl <= 0 means the backend default.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	GetMany(ctx context.Context, keys ...string) (map[string][]byte, error)
	SetMany(ctx context.Context, values map[string][]byte, ttl time.Duration) error
}

// Store is a Backend built by this package. It also reports its driver and
// can drop every key in its scope.
type Store interface {
	Backend
	Driver() Driver
	Flush(ctx context.Context) error
}

func driverOf(b Backend) Driver {
	if d, ok := b.(interface{ Driver() Driver }); ok {
		return d.Driver()
	}
	return ""
}

func cloneBytes(value []byte) []byte {
	if value == nil {
		return nil
	}
	clone := make([]byte, len(value))
	copy(clone, value)
	return clone
}
