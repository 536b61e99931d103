package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"travel-agent-api/internal/database"
)

// Cache is a time-expiring key-value store for upstream responses.
// Implementations must be safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

var (
	ErrNotFound = fmt.Errorf("cache: key not found")
)

type RedisCache struct {
	client *redis.Client
	prefix string
}

func NewRedisCache(addr string, password string, db int) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{client: client, prefix: "travel:"}, nil
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, r.prefix+key, value, ttl).Err()
}

func (r *RedisCache) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefix+key).Err()
}

// Clear removes only this application's keys, not the whole database.
func (r *RedisCache) Clear(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}

// SQLiteCache keeps entries in a SQLite table so they survive restarts.
type SQLiteCache struct {
	db  *database.DB
	now func() time.Time
}

func NewSQLiteCache(db *database.DB) *SQLiteCache {
	return &SQLiteCache{db: db, now: time.Now}
}

func (s *SQLiteCache) Get(ctx context.Context, key string) ([]byte, error) {
	value, found, err := s.db.GetCacheEntry(ctx, key, s.now())
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return value, nil
}

func (s *SQLiteCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.db.PutCacheEntry(ctx, key, value, s.now().Add(ttl))
}

func (s *SQLiteCache) Delete(ctx context.Context, key string) error {
	return s.db.DeleteCacheEntry(ctx, key)
}

func (s *SQLiteCache) Clear(ctx context.Context) error {
	return s.db.ClearCacheEntries(ctx)
}

// PurgeExpired deletes expired rows and reports how many were removed.
func (s *SQLiteCache) PurgeExpired(ctx context.Context) (int64, error) {
	return s.db.PurgeExpired(ctx, s.now())
}

// Len counts stored rows, expired ones included.
func (s *SQLiteCache) Len(ctx context.Context) (int, error) {
	return s.db.CountCacheEntries(ctx)
}

// InMemoryCache is a process-local cache bounded by entry count. When full,
// expired entries are dropped first, then the entry closest to expiry.
type InMemoryCache struct {
	mu         sync.Mutex
	data       map[string]cacheEntry
	maxEntries int
	now        func() time.Time
	done       chan struct{}
	closeOnce  sync.Once
}

type cacheEntry struct {
	value     []byte
	expiresAt time.Time
}

// Option configures an InMemoryCache.
type Option func(*InMemoryCache)

// WithMaxEntries bounds the number of stored entries. Zero means unbounded.
func WithMaxEntries(n int) Option {
	return func(m *InMemoryCache) {
		m.maxEntries = n
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *InMemoryCache) {
		m.now = now
	}
}

// WithJanitor starts a goroutine purging expired entries every interval.
// Stop it with Close.
func WithJanitor(interval time.Duration) Option {
	return func(m *InMemoryCache) {
		go m.janitor(interval)
	}
}

func NewInMemoryCache(opts ...Option) *InMemoryCache {
	m := &InMemoryCache{
		data: make(map[string]cacheEntry),
		now:  time.Now,
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *InMemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.data[key]
	if !exists {
		return nil, ErrNotFound
	}

	if !m.now().Before(entry.expiresAt) {
		delete(m.data, key)
		return nil, ErrNotFound
	}

	return entry.value, nil
}

func (m *InMemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.data[key]; !exists && m.maxEntries > 0 && len(m.data) >= m.maxEntries {
		m.evictLocked()
	}

	m.data[key] = cacheEntry{
		value:     value,
		expiresAt: m.now().Add(ttl),
	}

	return nil
}

func (m *InMemoryCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	return nil
}

func (m *InMemoryCache) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data = make(map[string]cacheEntry)
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (m *InMemoryCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

// Close stops the janitor goroutine, if any.
func (m *InMemoryCache) Close() {
	m.closeOnce.Do(func() { close(m.done) })
}

func (m *InMemoryCache) evictLocked() {
	now := m.now()
	removed := false
	for key, entry := range m.data {
		if !now.Before(entry.expiresAt) {
			delete(m.data, key)
			removed = true
		}
	}
	if removed && len(m.data) < m.maxEntries {
		return
	}

	var (
		oldestKey string
		oldest    time.Time
	)
	for key, entry := range m.data {
		if oldestKey == "" || entry.expiresAt.Before(oldest) {
			oldestKey = key
			oldest = entry.expiresAt
		}
	}
	delete(m.data, oldestKey)
}

func (m *InMemoryCache) purgeExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for key, entry := range m.data {
		if !now.Before(entry.expiresAt) {
			delete(m.data, key)
		}
	}
}

func (m *InMemoryCache) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.purgeExpired()
		case <-m.done:
			return
		}
	}
}

func GetJSON(ctx context.Context, cache Cache, key string, dest interface{}) error {
	data, err := cache.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

func SetJSON(ctx context.Context, cache Cache, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return cache.Set(ctx, key, data, ttl)
}

// Switch routes calls to an underlying cache while enabled reports true and
// behaves as an always-empty cache otherwise.
type Switch struct {
	cache   Cache
	enabled func() bool
}

func NewSwitch(cache Cache, enabled func() bool) *Switch {
	return &Switch{cache: cache, enabled: enabled}
}

func (s *Switch) Get(ctx context.Context, key string) ([]byte, error) {
	if !s.enabled() {
		return nil, ErrNotFound
	}
	return s.cache.Get(ctx, key)
}

func (s *Switch) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if !s.enabled() {
		return nil
	}
	return s.cache.Set(ctx, key, value, ttl)
}

func (s *Switch) Delete(ctx context.Context, key string) error {
	return s.cache.Delete(ctx, key)
}

func (s *Switch) Clear(ctx context.Context) error {
	return s.cache.Clear(ctx)
}
