package msgcache

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/elliotchance/orderedmap/v3"
	"nuclight.org/msglog-tg-bot/pkg/blobstore"
	e "nuclight.org/msglog-tg-bot/pkg/entities"
	"nuclight.org/msglog-tg-bot/pkg/logger"
)

const (
	DefaultMaxEntries = 2000

	blobPrefix = "msglog-cache"
)

// Limits supplies the attachment size budget. It is read on every insert, so
// changes apply immediately.
type Limits interface {
	MaxAttachmentSize() int64
}

// Cache keeps recently seen messages, with local copies of their attachments,
// so edits and deletions can be logged with the previous content. It holds at
// most MaxEntries messages and evicts the oldest inserted first.
//
// Attachments are downloaded before the map lock is taken, so concurrent
// inserts do not wait on each other's network I/O.
type Cache struct {
	log        logger.Logger
	limits     Limits
	blobs      *blobstore.Store
	maxEntries atomic.Int64

	mu        sync.Mutex
	entries   *orderedmap.OrderedMap[e.MessageKey, *Entry]
	closed    bool
	closeOnce sync.Once
}

// New creates an empty cache with a scratch directory inside baseDir (system
// temp dir if empty).
func New(baseDir string, limits Limits, log logger.Logger, httpClient blobstore.HTTPClient) (*Cache, error) {
	blobs, err := blobstore.New(baseDir, blobPrefix, log, httpClient)
	if err != nil {
		return nil, fmt.Errorf("creating blob store: %w", err)
	}

	c := &Cache{
		log:     log,
		limits:  limits,
		blobs:   blobs,
		entries: orderedmap.NewOrderedMap[e.MessageKey, *Entry](),
	}
	c.maxEntries.Store(DefaultMaxEntries)

	return c, nil
}

// Dir is the scratch directory attachments are downloaded to.
func (c *Cache) Dir() string {
	return c.blobs.Dir()
}

func (c *Cache) MaxEntries() int {
	return int(c.maxEntries.Load())
}

// Insert caches msg as the newest entry, evicting the oldest one if the cache
// is full. Attachments within the size limit are downloaded; a failed download
// is logged and the attachment is kept without a local copy.
func (c *Cache) Insert(ctx context.Context, msg e.Message) {
	key := msg.Key()
	log := c.log.With("message", key.String())

	if c.maxEntries.Load() <= 0 {
		return
	}

	// a cached copy of the same message owns the file names the downloads
	// below need, so it goes first
	if old, ok := c.Remove(key); ok {
		log.Warn("message is already cached, replacing")
		old.Close()
	}

	entry := FromMessage(msg)
	c.download(ctx, log, entry)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		log.Warn("cache is closed, message dropped")
		entry.Close()
		return
	}

	limit := int(c.maxEntries.Load())
	if limit <= 0 {
		entry.Close()
		return
	}

	if old, ok := c.entries.Get(key); ok {
		log.Warn("message was cached while downloading, replacing")
		c.entries.Delete(key)
		old.Close()
	}

	for c.entries.Len() >= limit {
		c.evictOldestLocked()
	}

	c.entries.Set(key, entry)
	log.Debug("message cached", "entries", c.entries.Len())
}

// Update replaces the content of a cached message and returns the previous one.
// Attachments are left untouched.
func (c *Cache) Update(key e.MessageKey, content string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries.Get(key)
	if !ok {
		return "", false
	}

	old := entry.content
	entry.content = content

	return old, true
}

// Remove takes the entry out of the cache and hands it to the caller. Its
// attachment files stay on disk until the caller closes the entry.
func (c *Cache) Remove(key e.MessageKey) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	c.entries.Delete(key)

	return entry, true
}

// SetMaxEntries changes the capacity and returns the previous one. Shrinking
// below the current size evicts the oldest entries right away.
func (c *Cache) SetMaxEntries(n int) int {
	if n < 0 {
		n = 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.maxEntries.Swap(int64(n))
	for c.entries.Len() > n {
		c.evictOldestLocked()
	}

	return int(old)
}

// Stats returns the number of entries and the on-disk size of their cached
// attachments.
func (c *Cache) Stats() (int, int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.statsLocked()
}

// Clear empties the cache, deleting every cached attachment, and returns what
// was there as Stats would have reported it.
func (c *Cache) Clear() (int, int64) {
	c.mu.Lock()
	count, size := c.statsLocked()
	removed := c.entries
	c.entries = orderedmap.NewOrderedMap[e.MessageKey, *Entry]()
	c.mu.Unlock()

	for el := removed.Front(); el != nil; el = el.Next() {
		el.Value.Close()
	}

	c.log.Info("cache cleared", "entries", count, "bytes", size)

	return count, size
}

// Close drops all entries and removes the scratch directory. Entries are not
// closed one by one since the directory goes away as a whole. Safe to call
// more than once.
func (c *Cache) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.entries = orderedmap.NewOrderedMap[e.MessageKey, *Entry]()
		c.mu.Unlock()

		c.blobs.Close()
	})
}

func (c *Cache) download(ctx context.Context, log logger.Logger, entry *Entry) {
	if len(entry.attachments) == 0 {
		return
	}

	limit := c.limits.MaxAttachmentSize()

	for _, a := range entry.attachments {
		if a.Size > limit {
			log.Debug("attachment is too large to cache", "attachment_id", a.ID, "size", a.Size, "limit", limit)
			continue
		}

		path, err := c.blobs.Download(ctx, a.URL, a.ID, blobstore.Extension(a.URL))
		if err != nil {
			log.Error("caching attachment", "attachment_id", a.ID, "error", err)
			continue
		}

		a.setCached(c.blobs, path)
	}
}

func (c *Cache) evictOldestLocked() {
	oldest := c.entries.Front()
	if oldest == nil {
		return
	}

	c.entries.Delete(oldest.Key)
	oldest.Value.Close()

	c.log.Debug("message evicted", "message", oldest.Key.String())
}

func (c *Cache) statsLocked() (int, int64) {
	var size int64

	for el := c.entries.Front(); el != nil; el = el.Next() {
		for _, a := range el.Value.attachments {
			path, ok := a.CachedPath()
			if !ok {
				continue
			}

			info, err := os.Stat(path)
			if err != nil {
				c.log.Warn("reading cached attachment size", "path", path, "error", err)
				continue
			}
			size += info.Size()
		}
	}

	return c.entries.Len(), size
}
