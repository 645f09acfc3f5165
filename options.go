package memo

import "time"

// BackendOption mutates BackendConfig when constructing a store.
type BackendOption func(BackendConfig) BackendConfig

// WithDefaultTTL overrides the fallback TTL used when ttl <= 0.
func WithDefaultTTL(ttl time.Duration) BackendOption {
	return func(cfg BackendConfig) BackendConfig {
		cfg.DefaultTTL = ttl
		return cfg
	}
}

// WithMemoryCleanupInterval overrides the sweep interval for the memory driver.
func WithMemoryCleanupInterval(interval time.Duration) BackendOption {
	return func(cfg BackendConfig) BackendConfig {
		cfg.MemoryCleanupInterval = interval
		return cfg
	}
}

// WithPrefix sets the key prefix for shared backends.
func WithPrefix(prefix string) BackendOption {
	return func(cfg BackendConfig) BackendConfig {
		cfg.Prefix = prefix
		return cfg
	}
}

// WithRedisClient sets the redis client; required when using DriverRedis.
func WithRedisClient(client RedisClient) BackendOption {
	return func(cfg BackendConfig) BackendConfig {
		cfg.RedisClient = client
		return cfg
	}
}

// WithFileDir sets the directory used by the file driver.
func WithFileDir(dir string) BackendOption {
	return func(cfg BackendConfig) BackendConfig {
		cfg.FileDir = dir
		return cfg
	}
}

// WithMemcachedAddresses sets memcached server addresses (host:port).
func WithMemcachedAddresses(addrs ...string) BackendOption {
	return func(cfg BackendConfig) BackendConfig {
		cfg.MemcachedAddresses = append([]string(nil), addrs...)
		return cfg
	}
}

// WithSQL configures the sql driver. table may be empty for the default.
func WithSQL(driverName, dsn, table string) BackendOption {
	return func(cfg BackendConfig) BackendConfig {
		cfg.SQLDriverName = driverName
		cfg.SQLDSN = dsn
		cfg.SQLTable = table
		return cfg
	}
}

// WithNATSKeyValue sets the key-value bucket used by the nats driver.
func WithNATSKeyValue(kv NATSKeyValue) BackendOption {
	return func(cfg BackendConfig) BackendConfig {
		cfg.NATSKeyValue = kv
		return cfg
	}
}

// WithNATSBucketTTL leaves expiry to the bucket's MaxAge instead of per-entry
// envelopes.
func WithNATSBucketTTL(enabled bool) BackendOption {
	return func(cfg BackendConfig) BackendConfig {
		cfg.NATSBucketTTL = enabled
		return cfg
	}
}

// WithDynamoClient injects a DynamoDB client.
func WithDynamoClient(client DynamoAPI) BackendOption {
	return func(cfg BackendConfig) BackendConfig {
		cfg.DynamoClient = client
		return cfg
	}
}

// WithDynamoTable sets the DynamoDB table name.
func WithDynamoTable(table string) BackendOption {
	return func(cfg BackendConfig) BackendConfig {
		cfg.DynamoTable = table
		return cfg
	}
}

// WithDynamoRegion sets the region used when the client is built here.
func WithDynamoRegion(region string) BackendOption {
	return func(cfg BackendConfig) BackendConfig {
		cfg.DynamoRegion = region
		return cfg
	}
}

// WithDynamoEndpoint points the built client at a local DynamoDB.
func WithDynamoEndpoint(endpoint string) BackendOption {
	return func(cfg BackendConfig) BackendConfig {
		cfg.DynamoEndpoint = endpoint
		return cfg
	}
}

// WithCompression enables value compression using the chosen codec.
func WithCompression(codec CompressionCodec) BackendOption {
	return func(cfg BackendConfig) BackendConfig {
		cfg.Compression = codec
		return cfg
	}
}

// WithMaxValueBytes rejects stored values larger than n bytes (after
// compression). Zero disables the limit.
func WithMaxValueBytes(n int) BackendOption {
	return func(cfg BackendConfig) BackendConfig {
		cfg.MaxValueBytes = n
		return cfg
	}
}

// WithEncryptionKey enables at-rest encryption using the provided AES key (16/24/32 bytes).
func WithEncryptionKey(key []byte) BackendOption {
	return func(cfg BackendConfig) BackendConfig {
		cfg.EncryptionKey = append([]byte(nil), key...)
		return cfg
	}
}
