package settings

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
)

const (
	maxAttachmentSizeKey = "max_attachment_size"
	maxCacheEntriesKey   = "max_cache_entries"
)

type Store interface {
	GetSetting(ctx context.Context, name string) (string, bool, error)
	SetSetting(ctx context.Context, name, value string) error
}

// Runtime holds settings that admins can change while the bot runs. Values
// are kept in memory for lock-free reads and written through to the store.
type Runtime struct {
	store             Store
	maxAttachmentSize atomic.Int64
	maxCacheEntries   atomic.Int64
}

// Load reads stored values, falling back to the given defaults for anything
// not stored yet.
func Load(ctx context.Context, store Store, defaultMaxAttachmentSize int64, defaultMaxCacheEntries int) (*Runtime, error) {
	r := &Runtime{store: store}

	size, err := loadInt(ctx, store, maxAttachmentSizeKey, defaultMaxAttachmentSize)
	if err != nil {
		return nil, err
	}
	r.maxAttachmentSize.Store(size)

	entries, err := loadInt(ctx, store, maxCacheEntriesKey, int64(defaultMaxCacheEntries))
	if err != nil {
		return nil, err
	}
	r.maxCacheEntries.Store(entries)

	return r, nil
}

func (r *Runtime) MaxAttachmentSize() int64 {
	return r.maxAttachmentSize.Load()
}

func (r *Runtime) SetMaxAttachmentSize(ctx context.Context, size int64) error {
	if size < 0 {
		return fmt.Errorf("max attachment size must not be negative: %d", size)
	}

	if err := r.store.SetSetting(ctx, maxAttachmentSizeKey, strconv.FormatInt(size, 10)); err != nil {
		return fmt.Errorf("saving %s: %w", maxAttachmentSizeKey, err)
	}
	r.maxAttachmentSize.Store(size)

	return nil
}

func (r *Runtime) MaxCacheEntries() int {
	return int(r.maxCacheEntries.Load())
}

func (r *Runtime) SetMaxCacheEntries(ctx context.Context, n int) error {
	if n < 0 {
		return fmt.Errorf("max cache entries must not be negative: %d", n)
	}

	if err := r.store.SetSetting(ctx, maxCacheEntriesKey, strconv.Itoa(n)); err != nil {
		return fmt.Errorf("saving %s: %w", maxCacheEntriesKey, err)
	}
	r.maxCacheEntries.Store(int64(n))

	return nil
}

func loadInt(ctx context.Context, store Store, name string, defaultValue int64) (int64, error) {
	raw, ok, err := store.GetSetting(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("loading %s: %w", name, err)
	}
	if !ok {
		return defaultValue, nil
	}

	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", name, err)
	}

	return value, nil
}
