package moderator

import (
	"context"
	_ "embed"
	"fmt"

	"nuclight.org/msglog-tg-bot/pkg/ai"
	e "nuclight.org/msglog-tg-bot/pkg/entities"
	"nuclight.org/msglog-tg-bot/pkg/logger"
)

var noop = e.Action{
	Kind: e.ActionKindNoop,
	Note: "",
}

// Handler is a handler of new messages. It decides what to do with a message
// based on the score system for each user. New user receives a default score.
// If score is lower than trusted score, the message is checked for spam. If the
// message is spam, the user receives a penalty score -1 and erase message action is
// returned. If the score reaches ban score, ban action is returned which also erases
// the message. If spam check returns false, score is increased by 1, and noop action
// is returned. When user reaches trusted score, the message is not checked for spam
// anymore.
type Handler struct {
	// Log is a logger
	Log logger.Logger

	// DefaultScore is a default score for a new user
	DefaultScore int

	// TrustedScore is a score for a trusted user
	TrustedScore int

	// BanScore is a score for a banned user
	BanScore int

	// ScoreStore is a store for user scores
	ScoreStore ScoreStore

	// MessagesStore keeps checked messages and the actions taken
	MessagesStore MessagesStore

	// AI is an AI client
	AI AIClient
}

// HandleMessage handles a message, it takes a message, reviews it and returns an action to be taken
// based on the score system. It returns an action and an error if something goes wrong. Returned
// action has to be considered even if error is not nil.
func (h *Handler) HandleMessage(ctx context.Context, msg e.Message) (e.Action, error) {
	if !msg.HasText() {
		return noop, nil
	}

	score, err := h.ScoreStore.GetScore(ctx, msg.Sender, h.DefaultScore)
	if err != nil {
		return noop, fmt.Errorf("getting user score: %w", err)
	}

	if score >= h.TrustedScore {
		return noop, nil
	}

	messageID, err := h.MessagesStore.SaveMessage(ctx, msg)
	if err != nil {
		return noop, fmt.Errorf("saving message: %w", err)
	}

	action, delta, err := h.getAction(ctx, score, msg)
	if err != nil {
		if serr := h.MessagesStore.SaveError(ctx, messageID, err.Error()); serr != nil {
			h.Log.Error("saving check error", "error", serr)
		}
		return action, fmt.Errorf("getting action: %w", err)
	}

	err = h.MessagesStore.SaveAction(ctx, messageID, action)
	if err != nil {
		return action, fmt.Errorf("saving action: %w", err)
	}

	newScore := h.getNewScore(score, delta)
	if newScore != score {
		err = h.ScoreStore.SetScore(ctx, msg.Sender, newScore)
		if err != nil {
			return action, fmt.Errorf("setting user score: %w", err)
		}
	}

	return action, nil
}

func (h *Handler) getAction(ctx context.Context, score int, msg e.Message) (e.Action, int, error) {
	if score <= h.BanScore {
		return e.Action{
			Kind: e.ActionKindBan,
			Note: fmt.Sprintf("user score is %d, while ban score is %d", score, h.BanScore),
		}, -1, nil
	}

	check, err := h.checkSpam(ctx, msg.Text)
	if err != nil {
		return noop, 0, fmt.Errorf("checking spam: %w", err)
	}

	if !check.IsSpam {
		return noop, 1, nil
	}

	note := check.Note
	if note == "" {
		note = "message is a spam"
	}

	if score-1 <= h.BanScore {
		return e.Action{
			Kind: e.ActionKindBan,
			Note: "ban score reached: " + note,
		}, -1, nil
	}

	return e.Action{
		Kind: e.ActionKindErase,
		Note: note,
	}, -1, nil
}

func (h *Handler) checkSpam(ctx context.Context, text string) (ai.SpamCheck, error) {
	var check ai.SpamCheck
	_, err := h.AI.GetJSONCompletion(ctx, prompt, text, ai.SpamCheckFormat, &check)
	if err != nil {
		return check, fmt.Errorf("getting completion: %w", err)
	}

	return check, nil
}

func (h *Handler) getNewScore(score int, delta int) int {
	newScore := score + delta

	if newScore <= h.BanScore {
		return h.BanScore
	}

	if newScore >= h.TrustedScore {
		return h.TrustedScore
	}

	return newScore
}

type ScoreStore interface {
	GetScore(ctx context.Context, sender e.User, defaultValue int) (int, error)
	SetScore(ctx context.Context, sender e.User, score int) error
}

type MessagesStore interface {
	SaveMessage(ctx context.Context, msg e.Message) (int64, error)
	SaveAction(ctx context.Context, messageID int64, action e.Action) error
	SaveError(ctx context.Context, messageID int64, message string) error
}

type AIClient interface {
	GetJSONCompletion(ctx context.Context, system, user string, rf ai.ResponseFormat, result any) (*ai.Usage, error)
}

//go:embed system_prompt.txt
var prompt string
