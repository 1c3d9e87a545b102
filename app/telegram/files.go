package telegram

import (
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	e "nuclight.org/msglog-tg-bot/pkg/entities"
)

// Attachment urls point at telegram file ids rather than download links, so
// the getFile call (and the bot token in the link) is only needed when a file
// is actually downloaded. Client.Do resolves them.
const fileScheme = "tgfile"

func fileURL(fileID, name string) string {
	u := url.URL{
		Scheme: fileScheme,
		Host:   "file",
		Path:   "/" + fileID + "/" + name,
	}
	return u.String()
}

func parseFileURL(u *url.URL) (string, error) {
	if u.Scheme != fileScheme {
		return "", fmt.Errorf("not a telegram file url: %s", u.Redacted())
	}

	fileID, _, _ := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
	if fileID == "" {
		return "", fmt.Errorf("telegram file url without file id: %s", u)
	}

	return fileID, nil
}

// Do downloads a request. Telegram file urls are resolved to a direct link first.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if req.URL.Scheme != fileScheme {
		return httpClient.Do(req)
	}

	fileID, err := parseFileURL(req.URL)
	if err != nil {
		return nil, err
	}

	if c.bot == nil {
		return nil, fmt.Errorf("bot is not started")
	}

	link, err := c.bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("getting file link: %w", err)
	}

	direct, err := url.Parse(link)
	if err != nil {
		return nil, fmt.Errorf("parsing file link: %w", err)
	}

	out := req.Clone(req.Context())
	out.URL = direct
	out.Host = ""

	return httpClient.Do(out)
}

func toMessage(message *tgbotapi.Message) e.Message {
	text := message.Text
	if text == "" {
		text = message.Caption
	}

	return e.Message{
		Sender: e.User{
			ID:        takeUserID(message.From),
			Name:      takeUserName(message.From),
			ChatID:    takeChatID(message.Chat),
			ChatTitle: message.Chat.Title,
			IsBot:     message.From.IsBot,
		},
		ID:          takeMessageID(message),
		Text:        text,
		Attachments: takeAttachments(message),
	}
}

func takeAttachments(message *tgbotapi.Message) []e.Attachment {
	var files []e.Attachment

	add := func(fileID, uniqueID string, size int64, name string) {
		files = append(files, e.Attachment{
			// unique per chat, message and file, the same file may be posted twice
			ID:   takeChatID(message.Chat) + "_" + takeMessageID(message) + "_" + uniqueID,
			URL:  fileURL(fileID, name),
			Size: size,
		})
	}

	if n := len(message.Photo); n > 0 {
		// sizes are ordered, the last one is the original
		photo := message.Photo[n-1]
		add(photo.FileID, photo.FileUniqueID, int64(photo.FileSize), "photo.jpg")
	}

	if d := message.Document; d != nil {
		add(d.FileID, d.FileUniqueID, int64(d.FileSize), fileName(d.FileName, "document"))
	}

	if v := message.Video; v != nil {
		add(v.FileID, v.FileUniqueID, int64(v.FileSize), fileName(v.FileName, "video.mp4"))
	}

	if a := message.Animation; a != nil {
		add(a.FileID, a.FileUniqueID, int64(a.FileSize), fileName(a.FileName, "animation.mp4"))
	}

	if a := message.Audio; a != nil {
		add(a.FileID, a.FileUniqueID, int64(a.FileSize), fileName(a.FileName, "audio.mp3"))
	}

	if v := message.Voice; v != nil {
		add(v.FileID, v.FileUniqueID, int64(v.FileSize), "voice.ogg")
	}

	if v := message.VideoNote; v != nil {
		add(v.FileID, v.FileUniqueID, int64(v.FileSize), "video_note.mp4")
	}

	return files
}

func fileName(name, fallback string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "." || name == "/" || name == "" {
		return fallback
	}
	return name
}
