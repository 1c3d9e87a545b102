package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	e "nuclight.org/msglog-tg-bot/pkg/entities"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(ctx context.Context, filePath string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", filePath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite3 database: %w", err)
	}

	// sqlite serializes writers anyway; one connection also keeps :memory: databases shared
	db.SetMaxOpenConns(1)

	client := &SQLite{
		db: db,
	}

	err = client.init(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing sqlite3 database: %w", err)
	}

	return client, nil
}

func (c *SQLite) Close() error {
	return c.db.Close()
}

func (c *SQLite) GetScore(ctx context.Context, user e.User, defaultValue int) (int, error) {
	var score int
	err := c.db.QueryRowContext(
		ctx,
		"SELECT score FROM scores WHERE chat_id = ? and user_id = ?",
		user.ChatID, user.ID,
	).Scan(&score)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return defaultValue, nil
		}

		return 0, err
	}

	return score, nil
}

func (c *SQLite) SetScore(ctx context.Context, user e.User, score int) error {
	_, err := c.db.ExecContext(
		ctx,
		`INSERT INTO scores (chat_id, user_id, score, updated_at)
			VALUES (?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(chat_id, user_id) DO UPDATE
			    SET score = ?, updated_at = CURRENT_TIMESTAMP`,
		user.ChatID, user.ID, score, score,
	)
	return err
}

func (c *SQLite) SaveMessage(ctx context.Context, msg e.Message) (int64, error) {
	err := c.upsertChat(ctx, msg.Sender.ChatID, msg.Sender.ChatTitle)
	if err != nil {
		return 0, fmt.Errorf("inserting chat: %w", err)
	}

	result, err := c.db.ExecContext(
		ctx,
		`INSERT INTO messages (
			message_id, chat_id, sender_user_id, text, created_at, action, action_note
		) VALUES (
			?, ?, ?, ?, CURRENT_TIMESTAMP, NULL, NULL
		)`,
		msg.ID, msg.Sender.ChatID, msg.Sender.ID, msg.Text,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting last insert id: %w", err)
	}

	return id, nil
}

func (c *SQLite) SaveAction(ctx context.Context, messageID int64, action e.Action) error {
	_, err := c.db.ExecContext(
		ctx,
		`UPDATE messages SET action = ?, action_note = ? WHERE id = ?`,
		string(action.Kind),
		action.Note,
		messageID,
	)
	return err
}

func (c *SQLite) SaveError(ctx context.Context, messageID int64, message string) error {
	_, err := c.db.ExecContext(
		ctx,
		`UPDATE messages SET error = ? WHERE id = ?`,
		message,
		messageID,
	)
	return err
}

// GetLogTarget returns the chat that receives edit/delete logs of chatID.
// ok is false when the chat is not logged.
func (c *SQLite) GetLogTarget(ctx context.Context, chatID string) (target string, ok bool, err error) {
	var logChatID sql.NullString
	err = c.db.QueryRowContext(
		ctx,
		"SELECT log_chat_id FROM chats WHERE chat_id = ?",
		chatID,
	).Scan(&logChatID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}

		return "", false, err
	}

	if !logChatID.Valid || logChatID.String == "" {
		return "", false, nil
	}

	return logChatID.String, true, nil
}

// SetLogTarget enables logging of chatID into logChatID. An empty logChatID
// disables logging.
func (c *SQLite) SetLogTarget(ctx context.Context, chatID, title, logChatID string) error {
	err := c.upsertChat(ctx, chatID, title)
	if err != nil {
		return fmt.Errorf("inserting chat: %w", err)
	}

	target := sql.NullString{String: logChatID, Valid: logChatID != ""}
	_, err = c.db.ExecContext(
		ctx,
		`UPDATE chats SET log_chat_id = ?, updated_at = CURRENT_TIMESTAMP WHERE chat_id = ?`,
		target, chatID,
	)
	return err
}

// GetSetting returns a stored process-wide setting. ok is false if it was
// never set.
func (c *SQLite) GetSetting(ctx context.Context, name string) (value string, ok bool, err error) {
	err = c.db.QueryRowContext(
		ctx,
		"SELECT value FROM settings WHERE name = ?",
		name,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}

		return "", false, err
	}

	return value, true, nil
}

func (c *SQLite) SetSetting(ctx context.Context, name, value string) error {
	_, err := c.db.ExecContext(
		ctx,
		`INSERT INTO settings (name, value, updated_at)
			VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(name) DO UPDATE
			    SET value = ?, updated_at = CURRENT_TIMESTAMP`,
		name, value, value,
	)
	return err
}

func (c *SQLite) upsertChat(ctx context.Context, chatID, title string) error {
	_, err := c.db.ExecContext(
		ctx,
		`INSERT INTO chats (
			chat_id, title, created_at, updated_at
		) VALUES (
			?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP
		) ON CONFLICT(chat_id) DO UPDATE
		    SET title = COALESCE(NULLIF(?, ''), title), updated_at = CURRENT_TIMESTAMP`,
		chatID, title, title,
	)
	return err
}

//go:embed init.sql
var initQuery string

func (c *SQLite) init(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, initQuery)
	return err
}
