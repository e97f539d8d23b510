package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// DefaultTTL is applied when Put is called without a TTL.
const DefaultTTL = 24 * time.Hour

// DefaultPrefix namespaces analysis results in a shared store.
const DefaultPrefix = "ai_analysis:"

// ResultCache stores analysis results keyed by a fingerprint of the input
// file. The fingerprint includes the modification time, so a changed file
// never hits an old entry. A miss is always safe; store failures are logged
// and treated as misses.
type ResultCache struct {
	store  Store
	prefix string
	ttl    time.Duration
	stat   func(string) (fs.FileInfo, error)
	logger *slog.Logger
}

// New creates a ResultCache. ttl <= 0 selects DefaultTTL.
func New(store Store, ttl time.Duration, logger *slog.Logger) *ResultCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ResultCache{
		store:  store,
		prefix: DefaultPrefix,
		ttl:    ttl,
		stat:   os.Stat,
		logger: logger,
	}
}

// Key returns hex(sha256(canonical path + "|" + mtime)) for path.
func (c *ResultCache) Key(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("cache: canonicalize %s: %w", path, err)
	}
	abs = filepath.Clean(abs)

	info, err := c.stat(abs)
	if err != nil {
		return "", fmt.Errorf("cache: stat %s: %w", abs, err)
	}

	h := sha256.New()
	h.Write([]byte(abs))
	h.Write([]byte("|"))
	h.Write([]byte(strconv.FormatInt(info.ModTime().UnixNano(), 10)))
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (c *ResultCache) storeKey(path string) (string, bool) {
	k, err := c.Key(path)
	if err != nil {
		c.logger.Debug("cache key unavailable", slog.String("path", path), slog.String("error", err.Error()))
		return "", false
	}
	return c.prefix + k, true
}

// Get decodes a cached value for path into v. It reports false on a miss,
// an expired entry, a store error, or an undecodable entry.
func (c *ResultCache) Get(ctx context.Context, path string, v any) bool {
	key, ok := c.storeKey(path)
	if !ok {
		return false
	}
	raw, found, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache read failed", slog.String("path", path), slog.String("error", err.Error()))
		return false
	}
	if !found {
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		c.logger.Warn("cache entry undecodable, evicting", slog.String("path", path), slog.String("error", err.Error()))
		_ = c.store.Delete(ctx, key)
		return false
	}
	return true
}

// Put stores v for path. ttl <= 0 selects the cache default.
func (c *ResultCache) Put(ctx context.Context, path string, v any, ttl time.Duration) {
	key, ok := c.storeKey(path)
	if !ok {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("cache encode failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	if err := c.store.Set(ctx, key, raw, ttl); err != nil {
		c.logger.Warn("cache write failed", slog.String("path", path), slog.String("error", err.Error()))
	}
}

// Has reports whether an unexpired entry exists for path without decoding it.
func (c *ResultCache) Has(ctx context.Context, path string) bool {
	key, ok := c.storeKey(path)
	if !ok {
		return false
	}
	found, err := c.store.Exists(ctx, key)
	if err != nil {
		c.logger.Warn("cache exists failed", slog.String("path", path), slog.String("error", err.Error()))
		return false
	}
	return found
}

// Forget evicts the entry for path's current fingerprint.
func (c *ResultCache) Forget(ctx context.Context, path string) error {
	key, ok := c.storeKey(path)
	if !ok {
		return nil
	}
	return c.store.Delete(ctx, key)
}

// ErrFlushUnsupported is returned by Flush when the store cannot enumerate keys.
var ErrFlushUnsupported = errors.New("cache: store does not support flush")

// Flush drops every analysis entry. Best-effort.
func (c *ResultCache) Flush(ctx context.Context) error {
	f, ok := c.store.(Flusher)
	if !ok {
		return ErrFlushUnsupported
	}
	return f.Flush(ctx, c.prefix)
}
