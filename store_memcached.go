package memo

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"net"
	"strconv"
	"strings"
	"time"
)

var dialMemcached = func(ctx context.Context, network, addr string) (net.Conn, error) {
	d := net.Dialer{Timeout: 3 * time.Second}
	return d.DialContext(ctx, network, addr)
}

// memcachedStore speaks the memcached text protocol over small per-address
// connection pools.
type memcachedStore struct {
	addrs      []string
	defaultTTL time.Duration
	prefix     string
	pools      map[string]chan *memcachedConn
}

type memcachedConn struct {
	addr   string
	conn   net.Conn
	reader *bufio.Reader
}

func newMemcachedStore(addrs []string, defaultTTL time.Duration, prefix string) Store {
	if len(addrs) == 0 {
		addrs = []string{"127.0.0.1:11211"}
	}
	if defaultTTL <= 0 {
		defaultTTL = defaultCacheTTL
	}
	if prefix == "" {
		prefix = defaultCachePrefix
	}
	pools := make(map[string]chan *memcachedConn, len(addrs))
	for _, addr := range addrs {
		pools[addr] = make(chan *memcachedConn, 16)
	}
	return &memcachedStore{addrs: addrs, defaultTTL: defaultTTL, prefix: prefix, pools: pools}
}

func (s *memcachedStore) Driver() Driver { return DriverMemcached }

func (s *memcachedStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	found, err := s.GetMany(ctx, key)
	if err != nil {
		return nil, false, err
	}
	value, ok := found[key]
	return value, ok, nil
}

// GetMany issues one multi-key get per server owning any of the keys.
func (s *memcachedStore) GetMany(ctx context.Context, keys ...string) (map[string][]byte, error) {
	found := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return found, nil
	}
	byCacheKey := make(map[string]string, len(keys))
	byServer := make(map[int][]string)
	var order []int
	for _, key := range keys {
		full := s.cacheKey(key)
		if _, dup := byCacheKey[full]; dup {
			continue
		}
		byCacheKey[full] = key
		owner := s.serverFor(full)
		if _, seen := byServer[owner]; !seen {
			order = append(order, owner)
		}
		byServer[owner] = append(byServer[owner], full)
	}
	for _, owner := range order {
		if err := s.getFrom(ctx, owner, byServer[owner], byCacheKey, found); err != nil {
			return nil, err
		}
	}
	return found, nil
}

func (s *memcachedStore) getFrom(ctx context.Context, owner int, fullKeys []string, byCacheKey map[string]string, found map[string][]byte) error {
	mc, err := s.acquire(ctx, owner)
	if err != nil {
		return err
	}
	bad := false
	defer func() { s.release(mc, bad) }()

	if _, err := fmt.Fprintf(mc.conn, "get %s\r\n", strings.Join(fullKeys, " ")); err != nil {
		bad = true
		return err
	}
	for {
		line, err := mc.reader.ReadString('\n')
		if err != nil {
			bad = true
			return err
		}
		if line == "END\r\n" {
			return nil
		}
		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) < 4 || fields[0] != "VALUE" {
			bad = true
			return fmt.Errorf("unexpected response: %s", strings.TrimSpace(line))
		}
		bytesLen, err := strconv.Atoi(fields[3])
		if err != nil {
			bad = true
			return fmt.Errorf("parse length: %w", err)
		}
		// value plus trailing \r\n
		value := make([]byte, bytesLen+2)
		if _, err := io.ReadFull(mc.reader, value); err != nil {
			bad = true
			return err
		}
		if key, ok := byCacheKey[fields[1]]; ok {
			found[key] = value[:bytesLen]
		}
	}
}

func (s *memcachedStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.SetMany(ctx, map[string][]byte{key: value}, ttl)
}

// SetMany reuses one connection per owning server.
func (s *memcachedStore) SetMany(ctx context.Context, values map[string][]byte, ttl time.Duration) error {
	if len(values) == 0 {
		return nil
	}
	byServer := make(map[int]map[string][]byte)
	for key, value := range values {
		full := s.cacheKey(key)
		owner := s.serverFor(full)
		if byServer[owner] == nil {
			byServer[owner] = make(map[string][]byte)
		}
		byServer[owner][full] = value
	}
	for owner, batch := range byServer {
		if err := s.setOn(ctx, owner, batch, ttl); err != nil {
			return err
		}
	}
	return nil
}

func (s *memcachedStore) setOn(ctx context.Context, owner int, batch map[string][]byte, ttl time.Duration) error {
	mc, err := s.acquire(ctx, owner)
	if err != nil {
		return err
	}
	bad := false
	defer func() { s.release(mc, bad) }()
	for full, value := range batch {
		if err := s.store(mc, full, value, ttl); err != nil {
			bad = true
			return err
		}
	}
	return nil
}

// memcachedMaxRelativeTTL is the largest exptime memcached reads as relative
// seconds; anything larger is taken as a unix timestamp.
const memcachedMaxRelativeTTL = 30 * 24 * 60 * 60

func (s *memcachedStore) exptime(ttl time.Duration) int64 {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	seconds := int64(ttl.Seconds())
	if seconds < 1 {
		return 1
	}
	if seconds > memcachedMaxRelativeTTL {
		return time.Now().Add(ttl).Unix()
	}
	return seconds
}

func (s *memcachedStore) store(mc *memcachedConn, full string, value []byte, ttl time.Duration) error {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "set %s 0 %d %d\r\n", full, s.exptime(ttl), len(value))
	buf.Write(value)
	buf.WriteString("\r\n")
	if _, err := mc.conn.Write(buf.Bytes()); err != nil {
		return err
	}
	line, err := mc.reader.ReadString('\n')
	if err != nil {
		return err
	}
	if !strings.HasPrefix(line, "STORED") {
		return fmt.Errorf("memcached set failed: %s", strings.TrimSpace(line))
	}
	return nil
}

func (s *memcachedStore) Delete(ctx context.Context, key string) error {
	full := s.cacheKey(key)
	mc, err := s.acquire(ctx, s.serverFor(full))
	if err != nil {
		return err
	}
	bad := false
	defer func() { s.release(mc, bad) }()
	if _, err := fmt.Fprintf(mc.conn, "delete %s\r\n", full); err != nil {
		bad = true
		return err
	}
	line, err := mc.reader.ReadString('\n')
	if err != nil {
		bad = true
		return err
	}
	switch strings.TrimSpace(line) {
	case "DELETED", "NOT_FOUND":
		return nil
	default:
		bad = true
		return fmt.Errorf("memcached delete failed: %s", strings.TrimSpace(line))
	}
}

// Flush clears every configured server; memcached has no prefix scan.
func (s *memcachedStore) Flush(ctx context.Context) error {
	for i := range s.addrs {
		if err := s.flushServer(ctx, i); err != nil {
			return err
		}
	}
	return nil
}

func (s *memcachedStore) flushServer(ctx context.Context, owner int) error {
	mc, err := s.acquire(ctx, owner)
	if err != nil {
		return err
	}
	bad := false
	defer func() { s.release(mc, bad) }()
	if _, err := fmt.Fprintf(mc.conn, "flush_all\r\n"); err != nil {
		bad = true
		return err
	}
	line, err := mc.reader.ReadString('\n')
	if err != nil {
		bad = true
		return err
	}
	if !strings.HasPrefix(line, "OK") {
		bad = true
		return fmt.Errorf("memcached flush failed: %s", strings.TrimSpace(line))
	}
	return nil
}

// serverFor maps a full cache key to the index of the server that owns it.
func (s *memcachedStore) serverFor(full string) int {
	if len(s.addrs) <= 1 {
		return 0
	}
	return int(crc32.ChecksumIEEE([]byte(full)) % uint32(len(s.addrs)))
}

// acquire returns a connection to the owning server, trying the others in
// order only when the owner cannot be dialed.
func (s *memcachedStore) acquire(ctx context.Context, owner int) (*memcachedConn, error) {
	if len(s.addrs) == 0 {
		return nil, errors.New("memcached: no addresses configured")
	}
	var errs bytes.Buffer
	for i := 0; i < len(s.addrs); i++ {
		addr := s.addrs[(owner+i)%len(s.addrs)]
		if pool, ok := s.pools[addr]; ok {
			select {
			case mc := <-pool:
				if mc != nil {
					return mc, nil
				}
			default:
			}
		}
		conn, err := dialMemcached(ctx, "tcp", addr)
		if err == nil {
			return &memcachedConn{
				addr:   addr,
				conn:   conn,
				reader: bufio.NewReader(conn),
			}, nil
		}
		fmt.Fprintf(&errs, "%s: %v; ", addr, err)
	}
	return nil, fmt.Errorf("memcached dial failed: %s", errs.String())
}

func (s *memcachedStore) release(mc *memcachedConn, bad bool) {
	if mc == nil || mc.conn == nil {
		return
	}
	if bad {
		_ = mc.conn.Close()
		return
	}
	pool, ok := s.pools[mc.addr]
	if !ok {
		_ = mc.conn.Close()
		return
	}
	select {
	case pool <- mc:
	default:
		_ = mc.conn.Close()
	}
}

// memcachedMaxKeyLen is the protocol's key length limit.
const memcachedMaxKeyLen = 250

// cacheKey hashes keys the text protocol cannot carry (too long, or
// containing whitespace or control characters).
func (s *memcachedStore) cacheKey(key string) string {
	full := key
	if s.prefix != "" {
		full = s.prefix + ":" + key
	}
	if len(full) <= memcachedMaxKeyLen && !strings.ContainsFunc(full, func(r rune) bool { return r <= ' ' || r == 0x7f }) {
		return full
	}
	sum := sha256.Sum256([]byte(full))
	return s.prefix + ":sha256:" + hex.EncodeToString(sum[:])
}
