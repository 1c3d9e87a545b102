package msgcache

import (
	"runtime"
	"sync"

	"nuclight.org/msglog-tg-bot/pkg/blobstore"
	e "nuclight.org/msglog-tg-bot/pkg/entities"
)

// Attachment is one file of a cached message. When the file was downloaded
// the attachment exclusively owns it and deletes it on Close.
type Attachment struct {
	ID   string
	URL  string
	Size int64

	store    *blobstore.Store
	path     string
	released bool
	cleanup  runtime.Cleanup
	once     sync.Once
}

// Filename is "{id}.{ext}" with ext taken from the url.
func (a *Attachment) Filename() string {
	return a.ID + "." + blobstore.Extension(a.URL)
}

// CachedPath returns the local copy of the file, if there is one.
func (a *Attachment) CachedPath() (string, bool) {
	if a.path == "" || a.released {
		return "", false
	}
	return a.path, true
}

// setCached records a downloaded file. The path can be set only once.
func (a *Attachment) setCached(store *blobstore.Store, path string) bool {
	if a.path != "" {
		return false
	}

	a.store = store
	a.path = path
	// Entries dropped without Close still get their file removed eventually.
	a.cleanup = runtime.AddCleanup(a, store.Remove, path)

	return true
}

// Close deletes the cached file. Safe to call more than once.
func (a *Attachment) Close() {
	a.once.Do(func() {
		if a.path == "" {
			return
		}
		a.cleanup.Stop()
		a.store.Remove(a.path)
		a.released = true
	})
}

// Entry is what the cache keeps of a logged message.
type Entry struct {
	content     string
	authorID    string
	attachments []*Attachment
}

// FromMessage projects a message to a cache entry. Nothing is downloaded yet.
func FromMessage(msg e.Message) *Entry {
	attachments := make([]*Attachment, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		attachments = append(attachments, &Attachment{
			ID:   a.ID,
			URL:  a.URL,
			Size: a.Size,
		})
	}

	return &Entry{
		content:     msg.Text,
		authorID:    msg.Sender.ID,
		attachments: attachments,
	}
}

func (en *Entry) Content() string {
	return en.content
}

func (en *Entry) AuthorID() string {
	return en.authorID
}

func (en *Entry) Attachments() []*Attachment {
	return en.attachments
}

// Close releases every cached attachment file of the entry.
func (en *Entry) Close() {
	for _, a := range en.attachments {
		a.Close()
	}
}
