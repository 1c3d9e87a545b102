package telegram

import (
	"context"
	"fmt"
	"strconv"
	"unicode/utf16"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	maxTextLength    = 4096
	maxCaptionLength = 1024
)

// SendText posts a plain text message, cut to the telegram limit.
func (c *Client) SendText(_ context.Context, chatID, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("parsing chat id: %w", err)
	}

	msg := tgbotapi.NewMessage(id, truncate(text, maxTextLength))
	msg.DisableWebPagePreview = true

	_, err = c.bot.Send(msg)
	return err
}

// SendFile uploads a local file as a document.
func (c *Client) SendFile(_ context.Context, chatID, path, caption string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("parsing chat id: %w", err)
	}

	doc := tgbotapi.NewDocument(id, tgbotapi.FilePath(path))
	doc.Caption = truncate(caption, maxCaptionLength)

	_, err = c.bot.Send(doc)
	return err
}

// DisplayName looks the user up in the chat. An empty name is returned when
// the lookup fails.
func (c *Client) DisplayName(_ context.Context, chatID, userID string) string {
	chat, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return ""
	}

	user, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return ""
	}

	member, err := c.bot.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
			ChatID: chat,
			UserID: user,
		},
	})
	if err != nil || member.User == nil {
		c.Log.Debug("resolving user name", "tg_chat_id", chat, "tg_user_id", user, "error", err)
		return ""
	}

	return takeUserName(member.User)
}

// truncate cuts s to limit UTF-16 code units, the unit telegram counts
// message lengths in. A cut string ends with an ellipsis.
func truncate(s string, limit int) string {
	if utf16Len(s) <= limit {
		return s
	}

	// leave room for the ellipsis, itself one unit
	n := 0
	for i, r := range s {
		n += utf16.RuneLen(r)
		if n > limit-1 {
			return s[:i] + "…"
		}
	}
	return s
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}
