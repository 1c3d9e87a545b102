package msglog

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// Command is a bot command addressed to the service.
type Command struct {
	Name      string
	Args      string
	ChatID    string
	ChatTitle string
	UserID    string
}

// HandleCommand runs an admin command and returns the reply. handled is false
// for commands the service does not know.
func (s *Service) HandleCommand(ctx context.Context, cmd Command) (reply string, handled bool, err error) {
	run, ok := s.commands()[cmd.Name]
	if !ok {
		return "", false, nil
	}

	if !slices.Contains(s.AdminIDs, cmd.UserID) {
		s.Log.Warn("command from non admin", "command", cmd.Name, "user_id", cmd.UserID, "chat_id", cmd.ChatID)
		return "This command is for bot admins only", true, nil
	}

	reply, err = run(ctx, cmd)
	if err != nil {
		return "Command failed", true, fmt.Errorf("running /%s: %w", cmd.Name, err)
	}

	return reply, true, nil
}

func (s *Service) commands() map[string]func(context.Context, Command) (string, error) {
	return map[string]func(context.Context, Command) (string, error){
		"log_on":         s.cmdLogOn,
		"log_off":        s.cmdLogOff,
		"cache_stats":    s.cmdCacheStats,
		"cache_clear":    s.cmdCacheClear,
		"cache_size":     s.cmdCacheSize,
		"max_attachment": s.cmdMaxAttachment,
	}
}

func (s *Service) cmdLogOn(ctx context.Context, cmd Command) (string, error) {
	target := strings.TrimSpace(cmd.Args)
	if _, err := strconv.ParseInt(target, 10, 64); err != nil {
		return "Usage: /log_on <log chat id>", nil
	}

	if err := s.Chats.SetLogTarget(ctx, cmd.ChatID, cmd.ChatTitle, target); err != nil {
		return "", fmt.Errorf("setting log target: %w", err)
	}

	s.Log.Info("chat logging enabled", "chat_id", cmd.ChatID, "log_chat_id", target)

	return "Edits and deletions in this chat are now logged to " + target, nil
}

func (s *Service) cmdLogOff(ctx context.Context, cmd Command) (string, error) {
	if err := s.Chats.SetLogTarget(ctx, cmd.ChatID, cmd.ChatTitle, ""); err != nil {
		return "", fmt.Errorf("clearing log target: %w", err)
	}

	s.Log.Info("chat logging disabled", "chat_id", cmd.ChatID)

	return "Logging is off for this chat", nil
}

func (s *Service) cmdCacheStats(context.Context, Command) (string, error) {
	entries, size := s.Cache.Stats()

	return fmt.Sprintf(
		"Cached messages: %d of %d\nCached attachments: %s\nMax attachment size: %s",
		entries, s.Cache.MaxEntries(),
		humanize.IBytes(uint64(size)),
		humanize.IBytes(uint64(s.Settings.MaxAttachmentSize())),
	), nil
}

func (s *Service) cmdCacheClear(context.Context, Command) (string, error) {
	entries, size := s.Cache.Clear()

	return fmt.Sprintf("Cleared %d messages, %s of attachments", entries, humanize.IBytes(uint64(size))), nil
}

func (s *Service) cmdCacheSize(ctx context.Context, cmd Command) (string, error) {
	n, err := strconv.Atoi(strings.TrimSpace(cmd.Args))
	if err != nil || n < 0 {
		return "Usage: /cache_size <number of messages>", nil
	}

	if err := s.Settings.SetMaxCacheEntries(ctx, n); err != nil {
		return "", err
	}
	old := s.Cache.SetMaxEntries(n)

	return fmt.Sprintf("Cache size changed from %d to %d messages", old, n), nil
}

func (s *Service) cmdMaxAttachment(ctx context.Context, cmd Command) (string, error) {
	size, err := humanize.ParseBytes(strings.TrimSpace(cmd.Args))
	if err != nil {
		return "Usage: /max_attachment <size, e.g. 8MB>", nil
	}

	if err := s.Settings.SetMaxAttachmentSize(ctx, int64(size)); err != nil {
		return "", err
	}

	return "Attachments up to " + humanize.IBytes(size) + " are cached now", nil
}
