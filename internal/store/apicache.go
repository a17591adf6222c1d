package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// CacheKey builds a canonical cache key from the oracle name, method, and
// arguments. Argument order and case never change the key.
func CacheKey(oracle, method string, args map[string]string) string {
	keys := make([]string, 0, len(args))
	values := make(map[string]string, len(args))
	for key, value := range args {
		canonical := strings.ToLower(strings.TrimSpace(key))
		keys = append(keys, canonical)
		values[canonical] = value
	}
	sort.Strings(keys)

	var builder strings.Builder
	builder.WriteString(strings.ToLower(strings.TrimSpace(oracle)))
	builder.WriteByte(':')
	builder.WriteString(strings.ToLower(strings.TrimSpace(method)))
	for _, key := range keys {
		builder.WriteByte('|')
		builder.WriteString(key)
		builder.WriteByte('=')
		builder.WriteString(strings.ToLower(strings.TrimSpace(values[key])))
	}
	return builder.String()
}

// CacheGet returns the cached entry for a key, or nil on miss or expiry.
// Expired entries are left in place for EvictExpired to collect.
func (s *Store) CacheGet(ctx context.Context, key string) (*CacheEntry, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT cache_key, value, kind, captured_at FROM api_cache WHERE cache_key = ?`,
		key,
	)
	var (
		cacheKey    string
		value       string
		kind        string
		capturedRaw string
	)
	if err := row.Scan(&cacheKey, &value, &kind, &capturedRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("cache get: %w", err)
	}

	entry := &CacheEntry{Key: cacheKey, Value: value, Kind: CacheKind(kind)}
	if captured, err := parseTimeString(capturedRaw); err == nil {
		entry.CapturedAt = captured
	}
	if entry.Expired(time.Now().UTC()) {
		return nil, nil
	}
	return entry, nil
}

// CachePut stores an oracle reply. Repeated puts for the same key refresh the
// value and timestamp.
func (s *Store) CachePut(ctx context.Context, key, value string, kind CacheKind) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.db.ExecContext(
		ctx,
		`INSERT OR REPLACE INTO api_cache (cache_key, value, kind, captured_at) VALUES (?, ?, ?, ?)`,
		key,
		value,
		string(kind),
		formatTime(time.Now().UTC()),
	)
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// EvictExpired removes entries older than their kind's TTL.
func (s *Store) EvictExpired(ctx context.Context) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	now := time.Now().UTC()
	res, err := s.db.ExecContext(
		ctx,
		`DELETE FROM api_cache WHERE
            (kind = ? AND captured_at < ?) OR
            (kind = ? AND captured_at < ?)`,
		string(CachePositive),
		formatTime(now.Add(-PositiveCacheTTL)),
		string(CacheNegative),
		formatTime(now.Add(-NegativeCacheTTL)),
	)
	if err != nil {
		return 0, fmt.Errorf("evict expired cache entries: %w", err)
	}
	return res.RowsAffected()
}
