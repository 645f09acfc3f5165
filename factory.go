package memo

import (
	"context"
	"fmt"
)

// NewBackend returns a concrete store for the requested driver, wrapped with
// encryption and compression when configured. Construction failures do not
// panic; the returned store reports the error from every call.
// @group Constructors
//
// Example: select driver explicitly
//
//	ctx := context.Background()
//	store := memo.NewBackend(ctx, memo.BackendConfig{
//		Driver: memo.DriverMemory,
//	})
//	fmt.Println(store.Driver()) // memory
func NewBackend(ctx context.Context, cfg BackendConfig) Store {
	cfg = cfg.withDefaults()
	store, err := newDriverStore(ctx, cfg)
	if err != nil {
		return &errorStore{driver: cfg.Driver, err: err}
	}
	return decorateStore(store, cfg)
}

func newDriverStore(ctx context.Context, cfg BackendConfig) (Store, error) {
	switch cfg.Driver {
	case DriverMemory:
		return newMemoryStore(cfg.DefaultTTL, cfg.MemoryCleanupInterval), nil
	case DriverRedis:
		return newRedisStore(cfg.RedisClient, cfg.DefaultTTL, cfg.Prefix), nil
	case DriverMemcached:
		return newMemcachedStore(cfg.MemcachedAddresses, cfg.DefaultTTL, cfg.Prefix), nil
	case DriverFile:
		return newFileStore(cfg.FileDir, cfg.DefaultTTL), nil
	case DriverNull:
		return newNullStore(), nil
	case DriverSQL:
		return newSQLStore(ctx, cfg)
	case DriverNATS:
		kv := cfg.NATSKeyValue
		if kv == nil {
			dialed, err := dialNATSKeyValue(cfg.NATSURL, cfg.NATSBucket)
			if err != nil {
				return nil, err
			}
			kv = dialed
		}
		return newNATSStore(kv, cfg.DefaultTTL, cfg.Prefix, cfg.NATSBucketTTL), nil
	case DriverDynamo:
		return newDynamoStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("memo: unknown driver %q", cfg.Driver)
	}
}

func decorateStore(store Store, cfg BackendConfig) Store {
	switch cfg.Compression {
	case CompressionNone, CompressionGzip, CompressionSnappy, CompressionZstd:
	default:
		return &errorStore{driver: cfg.Driver, err: fmt.Errorf("%w: %q", ErrUnsupportedCodec, cfg.Compression)}
	}
	encrypted, err := newEncryptingStore(store, cfg.EncryptionKey)
	if err != nil {
		return &errorStore{driver: cfg.Driver, err: err}
	}
	return newShapingStore(encrypted, cfg.Compression, cfg.MaxValueBytes)
}

// NewBackendWith builds a store using a driver and a set of functional options.
// Required data (e.g., Redis client) must be provided via options when needed.
// @group Constructors
//
// Example: redis store (options)
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
//	store := memo.NewBackendWith(ctx, memo.DriverRedis,
//		memo.WithRedisClient(redisClient),
//		memo.WithPrefix("app"),
//		memo.WithDefaultTTL(5*time.Minute),
//	)
//	fmt.Println(store.Driver()) // redis
func NewBackendWith(ctx context.Context, driver Driver, opts ...BackendOption) Store {
	cfg := BackendConfig{Driver: driver}
	for _, opt := range opts {
		cfg = opt(cfg)
	}
	return NewBackend(ctx, cfg)
}

// NewMemoryBackend is a convenience for an in-process store.
// @group Constructors
func NewMemoryBackend(ctx context.Context, opts ...BackendOption) Store {
	return NewBackendWith(ctx, DriverMemory, opts...)
}

// NewRedisBackend is a convenience for a redis-backed store. Redis client is required.
// @group Constructors
//
// Example: redis helper
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
//	store := memo.NewRedisBackend(ctx, redisClient, memo.WithPrefix("app"))
//	fmt.Println(store.Driver()) // redis
func NewRedisBackend(ctx context.Context, client RedisClient, opts ...BackendOption) Store {
	return NewBackendWith(ctx, DriverRedis, append([]BackendOption{WithRedisClient(client)}, opts...)...)
}

// NewFileBackend is a convenience for a filesystem-backed store.
// @group Constructors
func NewFileBackend(ctx context.Context, dir string, opts ...BackendOption) Store {
	return NewBackendWith(ctx, DriverFile, append([]BackendOption{WithFileDir(dir)}, opts...)...)
}

// NewMemcachedBackend is a convenience for a memcached-backed store.
// @group Constructors
func NewMemcachedBackend(ctx context.Context, addrs []string, opts ...BackendOption) Store {
	return NewBackendWith(ctx, DriverMemcached, append([]BackendOption{WithMemcachedAddresses(addrs...)}, opts...)...)
}

// NewSQLBackend is a convenience for a database/sql store.
// @group Constructors
//
// Example: sqlite
//
//	store := memo.NewSQLBackend(ctx, "sqlite", "file:memo.db", "")
//	fmt.Println(store.Driver()) // sql
func NewSQLBackend(ctx context.Context, driverName, dsn, table string, opts ...BackendOption) Store {
	return NewBackendWith(ctx, DriverSQL, append([]BackendOption{WithSQL(driverName, dsn, table)}, opts...)...)
}

// NewNATSBackend is a convenience for a store over a NATS JetStream key-value bucket.
// @group Constructors
func NewNATSBackend(ctx context.Context, kv NATSKeyValue, opts ...BackendOption) Store {
	return NewBackendWith(ctx, DriverNATS, append([]BackendOption{WithNATSKeyValue(kv)}, opts...)...)
}

// NewDynamoBackend is a convenience for a DynamoDB store. A nil client is
// built from the region and endpoint options.
// @group Constructors
func NewDynamoBackend(ctx context.Context, client DynamoAPI, opts ...BackendOption) Store {
	return NewBackendWith(ctx, DriverDynamo, append([]BackendOption{WithDynamoClient(client)}, opts...)...)
}

// NewNullBackend returns a store that never holds anything; every call is
// computed.
// @group Constructors
func NewNullBackend(ctx context.Context, opts ...BackendOption) Store {
	return NewBackendWith(ctx, DriverNull, opts...)
}
