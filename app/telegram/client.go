package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/getsentry/sentry-go"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"nuclight.org/msglog-tg-bot/app/msglog"
	e "nuclight.org/msglog-tg-bot/pkg/entities"
	"nuclight.org/msglog-tg-bot/pkg/logger"
)

type MessageHandler interface {
	HandleMessage(ctx context.Context, msg e.Message) (e.Action, error)
}

// EventHandler receives message lifecycle events and bot commands.
type EventHandler interface {
	SetSelfID(id string)
	HandleNew(ctx context.Context, msg e.Message) error
	HandleEdited(ctx context.Context, msg e.Message) error
	HandleDeleted(ctx context.Context, key e.MessageKey, chatTitle, reason string) error
	HandleCommand(ctx context.Context, cmd msglog.Command) (string, bool, error)
}

type Client struct {
	Log        logger.Logger
	APIToken   string
	WorkersNum int
	Handler    MessageHandler
	Events     EventHandler

	// HTTPClient downloads files, http.DefaultClient if nil
	HTTPClient *http.Client

	bot *tgbotapi.BotAPI
	wg  sync.WaitGroup
}

func (c *Client) Start(ctx context.Context) (err error) {
	if c.WorkersNum == 0 {
		return fmt.Errorf("workers number must be greater than 0")
	}

	log := c.Log

	c.bot, err = tgbotapi.NewBotAPI(c.APIToken)
	if err != nil {
		return fmt.Errorf("creating bot api: %w", err)
	}

	log.Info("bot api created", "username", c.bot.Self.UserName)

	if c.Events != nil {
		c.Events.SetSelfID(takeUserID(&c.bot.Self))
	}

	updatesConf := tgbotapi.NewUpdate(0)
	updatesConf.Timeout = 60
	updatesConf.AllowedUpdates = []string{"message", "edited_message"}

	updatesChan := c.bot.GetUpdatesChan(updatesConf)

	for i := 0; i < c.WorkersNum; i++ {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.handleUpdatesFromChan(ctx, updatesChan)
		}()
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		<-ctx.Done()
		c.bot.StopReceivingUpdates()
	}()

	return nil
}

func (c *Client) Wait() {
	c.wg.Wait()
}

func (c *Client) handleUpdatesFromChan(ctx context.Context, updatesChan tgbotapi.UpdatesChannel) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updatesChan:
			if !ok {
				return
			}
			err := c.handleUpdate(ctx, update)
			if err != nil {
				c.Log.Error("handling update", "tg_update_id", update.UpdateID, "error", err)
				reportError(update.UpdateID, err)
			}
		}
	}
}

func (c *Client) handleUpdate(ctx context.Context, update tgbotapi.Update) error {
	log := c.Log.With("tg_update_id", update.UpdateID)

	defer func() {
		if err := recover(); err != nil {
			log.Error("panic", "error", err)
			sentry.CurrentHub().Recover(err)
		}
	}()

	switch {
	case update.Message != nil:
		return c.handleMessage(ctx, log, update.Message)
	case update.EditedMessage != nil:
		return c.handleEdited(ctx, log, update.EditedMessage)
	default:
		log.Debug("update skipped")
		return nil
	}
}

func (c *Client) handleMessage(ctx context.Context, log logger.Logger, message *tgbotapi.Message) error {
	if message.From == nil {
		log.Warn("message from is nil")
		return nil
	}

	if message.Chat == nil {
		log.Warn("message chat is nil")
		return nil
	}

	log.Info(
		"new message",
		"tg_message_id", message.MessageID,
		"tg_user_id", message.From.ID,
		"tg_user_nick", message.From.UserName,
		"tg_chat_id", message.Chat.ID,
		"tg_chat_title", message.Chat.Title,
		"text", message.Text,
	)

	if message.IsCommand() {
		return c.handleCommand(ctx, log, message)
	}

	if message.Chat.IsPrivate() {
		log.Info("message is private")
		err := c.replyPrivate(ctx, message)
		if err != nil {
			log.Error("replying to private message", "error", err)
		}
		return nil
	}

	msg := toMessage(message)

	if c.Events != nil {
		if err := c.Events.HandleNew(ctx, msg); err != nil {
			log.Error("caching message", "error", err)
		}
	}

	if c.Handler == nil {
		return nil
	}

	act, err := c.Handler.HandleMessage(ctx, msg)
	if err != nil {
		// the action still has to be applied
		log.Error("handling message", "error", err)
		reportError(message.MessageID, err)
	}

	log.Info("message handled", "action", act.Kind, "note", act.Note)
	err = c.applyAction(ctx, log, message, act)
	if err != nil {
		return fmt.Errorf("applying action: %w", err)
	}

	return nil
}

func (c *Client) handleEdited(ctx context.Context, log logger.Logger, message *tgbotapi.Message) error {
	if message.From == nil || message.Chat == nil {
		log.Warn("edited message without sender or chat")
		return nil
	}

	log.Info(
		"message edited",
		"tg_message_id", message.MessageID,
		"tg_chat_id", message.Chat.ID,
	)

	if c.Events == nil {
		return nil
	}

	err := c.Events.HandleEdited(ctx, toMessage(message))
	if err != nil {
		return fmt.Errorf("handling edit: %w", err)
	}

	return nil
}

func (c *Client) handleCommand(ctx context.Context, log logger.Logger, message *tgbotapi.Message) error {
	if c.Events == nil {
		return nil
	}

	cmd := msglog.Command{
		Name:      message.Command(),
		Args:      message.CommandArguments(),
		ChatID:    takeChatID(message.Chat),
		ChatTitle: message.Chat.Title,
		UserID:    takeUserID(message.From),
	}

	log.Info("command received", "command", cmd.Name)

	reply, handled, err := c.Events.HandleCommand(ctx, cmd)
	if !handled {
		return nil
	}
	if err != nil {
		log.Error("running command", "command", cmd.Name, "error", err)
		reportError(message.MessageID, err)
	}

	answer := tgbotapi.NewMessage(message.Chat.ID, reply)
	answer.ReplyToMessageID = message.MessageID
	if _, err := c.bot.Send(answer); err != nil {
		return fmt.Errorf("replying to command: %w", err)
	}

	return nil
}

func (c *Client) applyAction(ctx context.Context, log logger.Logger, message *tgbotapi.Message, act e.Action) error {
	switch act.Kind {
	case e.ActionKindNoop, "":
		return nil
	case e.ActionKindErase, e.ActionKindBan:
		log.Info("erasing message")

		err := c.eraseMessage(ctx, message)
		if err != nil {
			return fmt.Errorf("erasing message: %w", err)
		}

		if act.Kind == e.ActionKindBan {
			log.Info("banning user")
			if err := c.banUser(ctx, message); err != nil {
				log.Error("banning user", "error", err)
			}
		}

		if c.Events != nil {
			key := e.MessageKey{ChatID: takeChatID(message.Chat), MessageID: takeMessageID(message)}
			err = c.Events.HandleDeleted(ctx, key, message.Chat.Title, "moderation: "+act.Note)
			if err != nil {
				return fmt.Errorf("logging deletion: %w", err)
			}
		}

		return nil
	default:
		return fmt.Errorf("unknown action kind: %s", act.Kind)
	}
}

func (c *Client) eraseMessage(_ context.Context, message *tgbotapi.Message) error {
	conf := tgbotapi.NewDeleteMessage(message.Chat.ID, message.MessageID)
	_, err := c.bot.Request(conf)
	return err
}

func (c *Client) banUser(_ context.Context, message *tgbotapi.Message) error {
	conf := tgbotapi.BanChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{
			ChatID: message.Chat.ID,
			UserID: message.From.ID,
		},
	}
	_, err := c.bot.Request(conf)
	return err
}

func (c *Client) replyPrivate(_ context.Context, message *tgbotapi.Message) error {
	msg := tgbotapi.NewMessage(
		message.Chat.ID,
		"Hello, I moderate spam and log edited and deleted messages in your group.\n"+
			"Please add me to your group as admin with ability to delete messages, "+
			"then run /log_on <chat id> there to choose where logs go",
	)

	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	_, err := c.bot.Send(msg)
	return err
}

func reportError(id int, err error) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("tg_id", strconv.Itoa(id))
		sentry.CaptureException(err)
	})
}

func takeMessageID(message *tgbotapi.Message) string {
	return strconv.Itoa(message.MessageID)
}

func takeChatID(chat *tgbotapi.Chat) string {
	return strconv.FormatInt(chat.ID, 10)
}

func takeUserID(user *tgbotapi.User) string {
	return strconv.FormatInt(user.ID, 10)
}

func takeUserName(user *tgbotapi.User) string {
	var sb strings.Builder

	if user.FirstName != "" {
		sb.WriteString(user.FirstName)
	}

	if user.LastName != "" {
		if sb.Len() > 0 {
			sb.WriteRune(' ')
		}
		sb.WriteString(user.LastName)
	}

	if user.UserName != "" {
		if sb.Len() > 0 {
			sb.WriteRune(' ')
			sb.WriteRune('(')
			sb.WriteRune('@')
			sb.WriteString(user.UserName)
			sb.WriteRune(')')
		} else {
			sb.WriteRune('@')
			sb.WriteString(user.UserName)
		}
	}

	if sb.Len() == 0 {
		return takeUserID(user)
	}

	return sb.String()
}
