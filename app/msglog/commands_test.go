package msglog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	e "nuclight.org/msglog-tg-bot/pkg/entities"
)

func TestCommandsRequireAdmin(t *testing.T) {
	f := newFixture(t)

	reply, handled, err := f.svc.HandleCommand(context.Background(), Command{Name: "cache_clear", UserID: "u1"})
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Contains(t, reply, "admins only")
}

func TestUnknownCommand(t *testing.T) {
	f := newFixture(t)

	_, handled, err := f.svc.HandleCommand(context.Background(), Command{Name: "start", UserID: "admin"})
	require.NoError(t, err)
	assert.False(t, handled)
}

func TestLogOnOff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reply, _, err := f.svc.HandleCommand(ctx, Command{Name: "log_on", Args: "abc", ChatID: "g", UserID: "admin"})
	require.NoError(t, err)
	assert.Contains(t, reply, "Usage")

	reply, _, err = f.svc.HandleCommand(ctx, Command{Name: "log_on", Args: " -1001 ", ChatID: "g", UserID: "admin"})
	require.NoError(t, err)
	assert.Contains(t, reply, "-1001")
	assert.Equal(t, "-1001", f.chats.targets["g"])

	_, _, err = f.svc.HandleCommand(ctx, Command{Name: "log_off", ChatID: "g", UserID: "admin"})
	require.NoError(t, err)
	assert.NotContains(t, f.chats.targets, "g")
}

func TestCacheCommands(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, f.svc.HandleNew(ctx, newMsg("chat", id, "t", e.Attachment{ID: "a" + id, URL: f.srv.URL + "/x.png", Size: 1})))
	}

	reply, _, err := f.svc.HandleCommand(ctx, Command{Name: "cache_stats", UserID: "admin"})
	require.NoError(t, err)
	assert.Contains(t, reply, "Cached messages: 3 of 2000")
	assert.Contains(t, reply, "Cached attachments: 30 B") // "data/x.png" three times
	assert.Contains(t, reply, "Max attachment size: 1.0 KiB")

	reply, _, err = f.svc.HandleCommand(ctx, Command{Name: "cache_size", Args: "2", UserID: "admin"})
	require.NoError(t, err)
	assert.Equal(t, "Cache size changed from 2000 to 2 messages", reply)
	assert.Equal(t, int64(2), f.settings.maxEntries.Load())
	assert.Equal(t, 2, f.cache.MaxEntries())

	reply, _, err = f.svc.HandleCommand(ctx, Command{Name: "cache_size", Args: "-1", UserID: "admin"})
	require.NoError(t, err)
	assert.Contains(t, reply, "Usage")

	reply, _, err = f.svc.HandleCommand(ctx, Command{Name: "cache_clear", UserID: "admin"})
	require.NoError(t, err)
	assert.Equal(t, "Cleared 2 messages, 20 B of attachments", reply)

	reply, _, err = f.svc.HandleCommand(ctx, Command{Name: "max_attachment", Args: "8MB", UserID: "admin"})
	require.NoError(t, err)
	assert.Contains(t, reply, "7.6 MiB")
	assert.Equal(t, int64(8_000_000), f.settings.MaxAttachmentSize())

	reply, _, err = f.svc.HandleCommand(ctx, Command{Name: "max_attachment", Args: "lots", UserID: "admin"})
	require.NoError(t, err)
	assert.Contains(t, reply, "Usage")
}
