package notifier

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"pdbot/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const telegramMaxMessageLength = 4096

type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Telegram sends messages through the Bot API.
type Telegram struct {
	bot botAPI
}

// NewTelegram wraps an authorised bot.
func NewTelegram(bot *tgbotapi.BotAPI) *Telegram {
	return &Telegram{bot: bot}
}

// SendText sends text to the chat id in to.
func (t *Telegram) SendText(_ context.Context, to, text string) error {
	chatID, err := parseChatID(to)
	if err != nil {
		return sendError("telegram message", err)
	}
	msg := tgbotapi.NewMessage(chatID, truncateTelegramText(sanitizeTelegramText(text)))
	if _, err := t.bot.Send(msg); err != nil {
		return sendError("telegram message", err)
	}
	return nil
}

// SendFile sends media by local path, telegram file id or URL.
func (t *Telegram) SendFile(_ context.Context, to string, file File) error {
	chatID, err := parseChatID(to)
	if err != nil {
		return sendError("telegram file", err)
	}

	var data tgbotapi.RequestFileData
	switch {
	case file.LocalPath != "" && file.Name != "":
		f, err := os.Open(file.LocalPath)
		if err != nil {
			return sendError("telegram file", err)
		}
		defer f.Close()
		data = tgbotapi.FileReader{Name: file.Name, Reader: f}
	case file.LocalPath != "":
		data = tgbotapi.FilePath(file.LocalPath)
	case file.PlatformID != "":
		data = tgbotapi.FileID(file.PlatformID)
	case file.URL != "":
		data = tgbotapi.FileURL(file.URL)
	default:
		return sendError("telegram file", fmt.Errorf("attachment reference is required"))
	}

	caption := truncateTelegramCaption(file.Caption)
	var chattable tgbotapi.Chattable
	switch file.Kind {
	case models.AttachmentPhoto:
		photo := tgbotapi.NewPhoto(chatID, data)
		photo.Caption = caption
		chattable = photo
	case models.AttachmentVideo:
		video := tgbotapi.NewVideo(chatID, data)
		video.Caption = caption
		chattable = video
	case models.AttachmentAudio:
		audio := tgbotapi.NewAudio(chatID, data)
		audio.Caption = caption
		chattable = audio
	default:
		document := tgbotapi.NewDocument(chatID, data)
		document.Caption = caption
		chattable = document
	}
	if _, err := t.bot.Send(chattable); err != nil {
		return sendError("telegram file", err)
	}
	return nil
}

// FileURL resolves a telegram file id to a download URL.
func (t *Telegram) FileURL(_ context.Context, fileID string) (string, error) {
	link, err := t.bot.GetFileDirectURL(fileID)
	if err != nil {
		return "", fmt.Errorf("resolve telegram file: %w", err)
	}
	return link, nil
}

func parseChatID(to string) (int64, error) {
	chatID, err := strconv.ParseInt(strings.TrimSpace(to), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram target must be a chat id: %q", to)
	}
	return chatID, nil
}

func sanitizeTelegramText(text string) string {
	if utf8.ValidString(text) {
		return text
	}
	return strings.ToValidUTF8(text, "")
}

// truncateTelegramText cuts text to the message limit on a rune boundary.
func truncateTelegramText(text string) string {
	return truncateOnRune(text, telegramMaxMessageLength)
}

func truncateTelegramCaption(text string) string {
	return truncateOnRune(text, 1024)
}

func truncateOnRune(text string, max int) string {
	if len(text) <= max {
		return text
	}
	const suffix = "..."
	limit := max - len(suffix)
	for limit > 0 && !utf8.RuneStart(text[limit]) {
		limit--
	}
	return text[:limit] + suffix
}
