package memo

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/redis/go-redis/v9"
)

const (
	defaultCachePrefix           = "memo"
	defaultCacheTTL              = 5 * time.Minute
	defaultMemoryCleanupInterval = 10 * time.Minute
	defaultTableName             = "memo_entries"
	defaultDynamoRegion          = "us-east-1"
)

func defaultFileDir() string {
	return filepath.Join(os.TempDir(), "memo-file")
}

// BackendConfig controls how a Store is constructed.
type BackendConfig struct {
	Driver Driver

	// DefaultTTL is used when a write provides ttl <= 0.
	DefaultTTL time.Duration

	// Prefix namespaces keys in shared backends.
	Prefix string

	// MemoryCleanupInterval controls in-process cache eviction.
	MemoryCleanupInterval time.Duration

	// RedisClient is required when DriverRedis is used.
	RedisClient RedisClient

	// FileDir controls where the file driver stores entries.
	FileDir string

	MemcachedAddresses []string

	// SQLDriverName is one of "sqlite", "pgx", "postgres" or "mysql".
	SQLDriverName string
	SQLDSN        string
	SQLTable      string

	// NATSKeyValue is used as is when set; otherwise NATSURL and NATSBucket
	// are dialed.
	NATSKeyValue NATSKeyValue
	NATSURL      string
	NATSBucket   string
	// NATSBucketTTL stores raw values and leaves expiry to the bucket's MaxAge.
	NATSBucketTTL bool

	DynamoClient   DynamoAPI
	DynamoEndpoint string
	DynamoRegion   string
	DynamoTable    string

	Compression   CompressionCodec
	MaxValueBytes int
	// EncryptionKey enables AES-GCM at rest; 16, 24 or 32 bytes.
	EncryptionKey []byte
}

func (c BackendConfig) withDefaults() BackendConfig {
	if c.Driver == "" {
		c.Driver = DriverMemory
	}
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = defaultCacheTTL
	}
	if c.MemoryCleanupInterval <= 0 {
		c.MemoryCleanupInterval = defaultMemoryCleanupInterval
	}
	if c.Prefix == "" {
		c.Prefix = defaultCachePrefix
	}
	if c.FileDir == "" {
		c.FileDir = defaultFileDir()
	}
	if c.SQLTable == "" {
		c.SQLTable = defaultTableName
	}
	if c.DynamoTable == "" {
		c.DynamoTable = defaultTableName
	}
	if c.DynamoRegion == "" {
		c.DynamoRegion = defaultDynamoRegion
	}
	if c.Compression == "" {
		c.Compression = CompressionNone
	}
	return c
}

type envConfig struct {
	Driver                string        `env:"MEMO_DRIVER" envDefault:"memory"`
	DefaultTTL            time.Duration `env:"MEMO_DEFAULT_TTL" envDefault:"5m"`
	Prefix                string        `env:"MEMO_PREFIX" envDefault:"memo"`
	MemoryCleanupInterval time.Duration `env:"MEMO_MEMORY_CLEANUP_INTERVAL" envDefault:"10m"`
	RedisAddr             string        `env:"MEMO_REDIS_ADDR"`
	RedisPassword         string        `env:"MEMO_REDIS_PASSWORD"`
	RedisDB               int           `env:"MEMO_REDIS_DB" envDefault:"0"`
	FileDir               string        `env:"MEMO_FILE_DIR"`
	MemcachedAddresses    []string      `env:"MEMO_MEMCACHED_ADDRESSES" envSeparator:","`
	SQLDriverName         string        `env:"MEMO_SQL_DRIVER"`
	SQLDSN                string        `env:"MEMO_SQL_DSN"`
	SQLTable              string        `env:"MEMO_SQL_TABLE"`
	NATSURL               string        `env:"MEMO_NATS_URL"`
	NATSBucket            string        `env:"MEMO_NATS_BUCKET"`
	NATSBucketTTL         bool          `env:"MEMO_NATS_BUCKET_TTL" envDefault:"false"`
	DynamoEndpoint        string        `env:"MEMO_DYNAMO_ENDPOINT"`
	DynamoRegion          string        `env:"MEMO_DYNAMO_REGION"`
	DynamoTable           string        `env:"MEMO_DYNAMO_TABLE"`
	Compression           string        `env:"MEMO_COMPRESSION" envDefault:"none"`
	MaxValueBytes         int           `env:"MEMO_MAX_VALUE_BYTES" envDefault:"0"`
	EncryptionKey         string        `env:"MEMO_ENCRYPTION_KEY"`
}

// ConfigFromEnv reads a BackendConfig from MEMO_* environment variables.
// A redis client is created when MEMO_REDIS_ADDR is set.
// @group Config
//
// Example: configure from the environment
//
//	cfg, err := memo.ConfigFromEnv()
//	if err != nil {
//		return err
//	}
//	h := memo.New(memo.NewBackend(ctx, cfg))
func ConfigFromEnv() (BackendConfig, error) {
	raw, err := env.ParseAs[envConfig]()
	if err != nil {
		return BackendConfig{}, fmt.Errorf("memo: parse env config: %w", err)
	}
	cfg := BackendConfig{
		Driver:                Driver(raw.Driver),
		DefaultTTL:            raw.DefaultTTL,
		Prefix:                raw.Prefix,
		MemoryCleanupInterval: raw.MemoryCleanupInterval,
		FileDir:               raw.FileDir,
		MemcachedAddresses:    raw.MemcachedAddresses,
		SQLDriverName:         raw.SQLDriverName,
		SQLDSN:                raw.SQLDSN,
		SQLTable:              raw.SQLTable,
		NATSURL:               raw.NATSURL,
		NATSBucket:            raw.NATSBucket,
		NATSBucketTTL:         raw.NATSBucketTTL,
		DynamoEndpoint:        raw.DynamoEndpoint,
		DynamoRegion:          raw.DynamoRegion,
		DynamoTable:           raw.DynamoTable,
		Compression:           CompressionCodec(raw.Compression),
		MaxValueBytes:         raw.MaxValueBytes,
	}
	if raw.EncryptionKey != "" {
		cfg.EncryptionKey = []byte(raw.EncryptionKey)
	}
	if raw.RedisAddr != "" {
		cfg.RedisClient = redis.NewClient(&redis.Options{
			Addr:     raw.RedisAddr,
			Password: raw.RedisPassword,
			DB:       raw.RedisDB,
		})
	}
	return cfg, nil
}
