package entities

type Action struct {
	Kind ActionKind
	Note string
}

type ActionKind string

const (
	// ActionKindNoop is a noop action meaning nothing has to be done with a message
	ActionKindNoop ActionKind = "noop"

	// ActionKindErase indicates that a message should be deleted
	ActionKindErase ActionKind = "erase"

	// ActionKindBan indicates that a user should be banned
	ActionKindBan ActionKind = "ban"
)

// Erases reports whether the action removes the message from the chat.
func (a Action) Erases() bool {
	return a.Kind == ActionKindErase || a.Kind == ActionKindBan
}
