package entities

type User struct {
	ID        string
	Name      string
	ChatID    string
	ChatTitle string
	IsBot     bool
}

// MessageKey identifies a message. Telegram message ids are unique only within a chat.
type MessageKey struct {
	ChatID    string
	MessageID string
}

func (k MessageKey) String() string {
	return k.ChatID + "/" + k.MessageID
}

type Attachment struct {
	ID   string
	URL  string
	Size int64 // Reported size in bytes at send time
}

type Message struct {
	Sender      User
	ID          string
	Text        string
	Attachments []Attachment
}

func (m *Message) Key() MessageKey {
	return MessageKey{ChatID: m.Sender.ChatID, MessageID: m.ID}
}

func (m *Message) HasText() bool {
	return m.Text != ""
}

func (m *Message) HasMedia() bool {
	return len(m.Attachments) > 0
}
