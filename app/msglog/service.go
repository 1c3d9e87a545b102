package msglog

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"nuclight.org/msglog-tg-bot/app/msgcache"
	e "nuclight.org/msglog-tg-bot/pkg/entities"
	"nuclight.org/msglog-tg-bot/pkg/logger"
	"nuclight.org/msglog-tg-bot/pkg/mutex"
)

// ChatStore knows which chats are logged and where their logs go.
type ChatStore interface {
	GetLogTarget(ctx context.Context, chatID string) (string, bool, error)
	SetLogTarget(ctx context.Context, chatID, title, logChatID string) error
}

// Settings are the runtime limits admins can change.
type Settings interface {
	MaxAttachmentSize() int64
	SetMaxAttachmentSize(ctx context.Context, size int64) error
	SetMaxCacheEntries(ctx context.Context, n int) error
}

// Notifier delivers log messages.
type Notifier interface {
	SendText(ctx context.Context, chatID, text string) error
	SendFile(ctx context.Context, chatID, path, caption string) error
}

// UserResolver turns a user id into something readable. It is only called
// when a log message is rendered.
type UserResolver interface {
	DisplayName(ctx context.Context, chatID, userID string) string
}

// Service caches messages of logged chats and reports their edits and
// deletions to the chat's log target.
type Service struct {
	Log      logger.Logger
	Cache    *msgcache.Cache
	Chats    ChatStore
	Settings Settings
	Notifier Notifier
	Users    UserResolver

	// AdminIDs are the user ids allowed to run commands
	AdminIDs []string

	selfID atomic.Pointer[string]
	locks  mutex.KeyedMutex
}

// SetSelfID tells the service which user is the bot itself, so its own
// messages are never cached.
func (s *Service) SetSelfID(id string) {
	s.selfID.Store(&id)
}

// HandleNew caches a new message if its chat is logged.
func (s *Service) HandleNew(ctx context.Context, msg e.Message) error {
	if self := s.selfID.Load(); self != nil && *self == msg.Sender.ID {
		return nil
	}

	if !msg.HasText() && !msg.HasMedia() {
		return nil
	}

	// held across the lookup too, an edit must not slip in before the insert
	key := msg.Key()
	s.locks.Lock(key.String())
	defer s.locks.Unlock(key.String())

	_, logged, err := s.Chats.GetLogTarget(ctx, msg.Sender.ChatID)
	if err != nil {
		return fmt.Errorf("getting log target: %w", err)
	}
	if !logged {
		return nil
	}

	s.Cache.Insert(ctx, msg)

	return nil
}

// HandleEdited records the new content of a cached message and logs the
// change. Messages that were never cached are ignored.
func (s *Service) HandleEdited(ctx context.Context, msg e.Message) error {
	key := msg.Key()
	s.locks.Lock(key.String())
	defer s.locks.Unlock(key.String())

	old, ok := s.Cache.Update(key, msg.Text)
	if !ok || old == msg.Text {
		return nil
	}

	target, logged, err := s.Chats.GetLogTarget(ctx, key.ChatID)
	if err != nil {
		return fmt.Errorf("getting log target: %w", err)
	}
	if !logged {
		return nil
	}

	text := formatEdited(msg.Sender.ChatTitle, s.displayName(ctx, key.ChatID, msg.Sender.ID), old, msg.Text)
	if err := s.Notifier.SendText(ctx, target, text); err != nil {
		return fmt.Errorf("sending edit log: %w", err)
	}

	return nil
}

// HandleDeleted logs the last known content of a deleted message, re-uploading
// its cached attachments, and then releases them.
func (s *Service) HandleDeleted(ctx context.Context, key e.MessageKey, chatTitle, reason string) error {
	s.locks.Lock(key.String())
	entry, ok := s.Cache.Remove(key)
	s.locks.Unlock(key.String())

	if !ok {
		return nil
	}
	defer entry.Close()

	target, logged, err := s.Chats.GetLogTarget(ctx, key.ChatID)
	if err != nil {
		return fmt.Errorf("getting log target: %w", err)
	}
	if !logged {
		return nil
	}

	text := formatDeleted(chatTitle, s.displayName(ctx, key.ChatID, entry.AuthorID()), reason, entry)
	if err := s.Notifier.SendText(ctx, target, text); err != nil {
		return fmt.Errorf("sending delete log: %w", err)
	}

	for _, a := range entry.Attachments() {
		path, ok := a.CachedPath()
		if !ok {
			continue
		}

		if err := s.Notifier.SendFile(ctx, target, path, a.Filename()); err != nil {
			s.Log.Error("re-uploading attachment", "message", key.String(), "attachment_id", a.ID, "error", err)
		}
	}

	return nil
}

func (s *Service) displayName(ctx context.Context, chatID, userID string) string {
	if s.Users == nil {
		return userID
	}

	name := s.Users.DisplayName(ctx, chatID, userID)
	if name == "" {
		return userID
	}

	return name
}

func formatEdited(chatTitle, author, before, after string) string {
	var sb strings.Builder

	sb.WriteString("Message edited")
	writeChat(&sb, chatTitle)
	sb.WriteString("\nAuthor: ")
	sb.WriteString(author)
	sb.WriteString("\n\nBefore:\n")
	sb.WriteString(orEmpty(before))
	sb.WriteString("\n\nAfter:\n")
	sb.WriteString(orEmpty(after))

	return sb.String()
}

func formatDeleted(chatTitle, author, reason string, entry *msgcache.Entry) string {
	var sb strings.Builder

	sb.WriteString("Message deleted")
	writeChat(&sb, chatTitle)
	sb.WriteString("\nAuthor: ")
	sb.WriteString(author)
	if reason != "" {
		sb.WriteString("\nReason: ")
		sb.WriteString(reason)
	}
	sb.WriteString("\n\n")
	sb.WriteString(orEmpty(entry.Content()))

	var missing int
	for _, a := range entry.Attachments() {
		if _, ok := a.CachedPath(); !ok {
			missing++
		}
	}
	if n := len(entry.Attachments()); n > 0 {
		fmt.Fprintf(&sb, "\n\nAttachments: %d", n)
		if missing > 0 {
			fmt.Fprintf(&sb, " (%d not cached)", missing)
		}
	}

	return sb.String()
}

func writeChat(sb *strings.Builder, chatTitle string) {
	if chatTitle == "" {
		return
	}
	sb.WriteString(" in ")
	sb.WriteString(chatTitle)
}

func orEmpty(s string) string {
	if s == "" {
		return "(no text)"
	}
	return s
}
