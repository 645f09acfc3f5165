package memo

import (
	"testing"
	"time"
)

func TestBackendConfigWithDefaults(t *testing.T) {
	cfg := (BackendConfig{}).withDefaults()

	if cfg.Driver != DriverMemory {
		t.Fatalf("expected default driver memory, got %s", cfg.Driver)
	}
	if cfg.DefaultTTL != defaultCacheTTL {
		t.Fatalf("unexpected default ttl: %v", cfg.DefaultTTL)
	}
	if cfg.MemoryCleanupInterval != defaultMemoryCleanupInterval {
		t.Fatalf("unexpected cleanup interval: %v", cfg.MemoryCleanupInterval)
	}
	if cfg.Prefix != defaultCachePrefix {
		t.Fatalf("unexpected prefix: %s", cfg.Prefix)
	}
	if cfg.FileDir == "" {
		t.Fatalf("expected default file dir set")
	}
	if cfg.SQLTable != defaultTableName || cfg.DynamoTable != defaultTableName {
		t.Fatalf("unexpected default tables: %q %q", cfg.SQLTable, cfg.DynamoTable)
	}
	if cfg.DynamoRegion != defaultDynamoRegion {
		t.Fatalf("unexpected default region: %q", cfg.DynamoRegion)
	}
	if cfg.Compression != CompressionNone {
		t.Fatalf("expected default compression none")
	}
}

func TestBackendConfigWithDefaultsPreservesExplicitValues(t *testing.T) {
	cfg := (BackendConfig{
		Driver:                DriverFile,
		DefaultTTL:            time.Second,
		Prefix:                "svc",
		Compression:           CompressionGzip,
		MaxValueBytes:         1024,
		EncryptionKey:         testKey,
		MemoryCleanupInterval: 2 * time.Second,
		FileDir:               "/tmp/memo-test",
		SQLTable:              "entries",
	}).withDefaults()

	if cfg.Driver != DriverFile {
		t.Fatalf("driver overwritten: %q", cfg.Driver)
	}
	if cfg.DefaultTTL != time.Second {
		t.Fatalf("default ttl overwritten: %v", cfg.DefaultTTL)
	}
	if cfg.MemoryCleanupInterval != 2*time.Second {
		t.Fatalf("cleanup interval overwritten: %v", cfg.MemoryCleanupInterval)
	}
	if cfg.Prefix != "svc" {
		t.Fatalf("prefix overwritten: %q", cfg.Prefix)
	}
	if cfg.Compression != CompressionGzip {
		t.Fatalf("compression overwritten: %q", cfg.Compression)
	}
	if cfg.MaxValueBytes != 1024 {
		t.Fatalf("max value bytes overwritten: %d", cfg.MaxValueBytes)
	}
	if cfg.FileDir != "/tmp/memo-test" {
		t.Fatalf("file dir overwritten: %q", cfg.FileDir)
	}
	if cfg.SQLTable != "entries" {
		t.Fatalf("sql table overwritten: %q", cfg.SQLTable)
	}
	if len(cfg.EncryptionKey) == 0 {
		t.Fatalf("encryption key overwritten")
	}
}

func TestConfigFromEnvDefaults(t *testing.T) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("config from env: %v", err)
	}
	if cfg.Driver != DriverMemory || cfg.DefaultTTL != 5*time.Minute || cfg.Prefix != "memo" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Compression != CompressionNone || cfg.RedisClient != nil || cfg.EncryptionKey != nil {
		t.Fatalf("unexpected optional defaults: %+v", cfg)
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("MEMO_DRIVER", "redis")
	t.Setenv("MEMO_DEFAULT_TTL", "90s")
	t.Setenv("MEMO_PREFIX", "svc")
	t.Setenv("MEMO_REDIS_ADDR", "127.0.0.1:6399")
	t.Setenv("MEMO_REDIS_DB", "3")
	t.Setenv("MEMO_MEMCACHED_ADDRESSES", "a:11211,b:11211")
	t.Setenv("MEMO_SQL_DRIVER", "sqlite")
	t.Setenv("MEMO_SQL_DSN", "file:memo.db")
	t.Setenv("MEMO_NATS_BUCKET_TTL", "true")
	t.Setenv("MEMO_COMPRESSION", "zstd")
	t.Setenv("MEMO_MAX_VALUE_BYTES", "4096")
	t.Setenv("MEMO_ENCRYPTION_KEY", string(testKey))

	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("config from env: %v", err)
	}
	if cfg.Driver != DriverRedis || cfg.DefaultTTL != 90*time.Second || cfg.Prefix != "svc" {
		t.Fatalf("unexpected core config: %+v", cfg)
	}
	if cfg.RedisClient == nil {
		t.Fatalf("expected redis client built from MEMO_REDIS_ADDR")
	}
	if len(cfg.MemcachedAddresses) != 2 || cfg.MemcachedAddresses[1] != "b:11211" {
		t.Fatalf("unexpected memcached addresses: %v", cfg.MemcachedAddresses)
	}
	if cfg.SQLDriverName != "sqlite" || cfg.SQLDSN != "file:memo.db" {
		t.Fatalf("unexpected sql config: %q %q", cfg.SQLDriverName, cfg.SQLDSN)
	}
	if !cfg.NATSBucketTTL || cfg.Compression != CompressionZstd || cfg.MaxValueBytes != 4096 {
		t.Fatalf("unexpected shaping config: %+v", cfg)
	}
	if string(cfg.EncryptionKey) != string(testKey) {
		t.Fatalf("unexpected encryption key")
	}
}

func TestConfigFromEnvInvalidDuration(t *testing.T) {
	t.Setenv("MEMO_DEFAULT_TTL", "soon")
	if _, err := ConfigFromEnv(); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestBackendOptionsMutateConfig(t *testing.T) {
	var cfg BackendConfig
	cfg = WithDefaultTTL(time.Second)(cfg)
	cfg = WithMemoryCleanupInterval(2 * time.Second)(cfg)
	cfg = WithPrefix("svc")(cfg)
	cfg = WithFileDir("/tmp/x")(cfg)
	cfg = WithMemcachedAddresses("a:1", "b:2")(cfg)
	cfg = WithSQL("sqlite", "file:x.db", "entries")(cfg)
	cfg = WithNATSBucketTTL(true)(cfg)
	cfg = WithDynamoTable("tbl")(cfg)
	cfg = WithDynamoRegion("eu-west-1")(cfg)
	cfg = WithDynamoEndpoint("http://localhost:8000")(cfg)
	cfg = WithCompression(CompressionSnappy)(cfg)
	cfg = WithMaxValueBytes(10)(cfg)
	cfg = WithEncryptionKey(testKey)(cfg)

	if cfg.DefaultTTL != time.Second ||
		cfg.MemoryCleanupInterval != 2*time.Second ||
		cfg.Prefix != "svc" ||
		cfg.FileDir != "/tmp/x" ||
		len(cfg.MemcachedAddresses) != 2 ||
		cfg.SQLDriverName != "sqlite" || cfg.SQLDSN != "file:x.db" || cfg.SQLTable != "entries" ||
		!cfg.NATSBucketTTL ||
		cfg.DynamoTable != "tbl" || cfg.DynamoRegion != "eu-west-1" || cfg.DynamoEndpoint != "http://localhost:8000" ||
		cfg.Compression != CompressionSnappy ||
		cfg.MaxValueBytes != 10 ||
		len(cfg.EncryptionKey) != 32 {
		t.Fatalf("options did not apply correctly: %+v", cfg)
	}
}
