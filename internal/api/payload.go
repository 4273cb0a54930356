package api

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"pdbot/internal/models"
)

var errInvalidPayload = errors.New("invalid payload")

type ultraMsgPayload struct {
	EventType string        `json:"event_type"`
	Data      *ultraMsgData `json:"data"`
}

type ultraMsgData struct {
	ID       string      `json:"id"`
	From     string      `json:"from"`
	Body     string      `json:"body"`
	Type     string      `json:"type"`
	FromMe   bool        `json:"fromMe"`
	Media    string      `json:"media"`
	Filename string      `json:"filename"`
	Mimetype string      `json:"mimetype"`
	Size     json.Number `json:"size"`
}

// inbound converts a gateway payload. Media messages may carry the file in
// media with an empty body.
func (p *ultraMsgPayload) inbound() (models.InboundMessage, error) {
	if p.Data == nil {
		return models.InboundMessage{}, errors.New("missing data")
	}
	d := p.Data
	from := strings.TrimSpace(d.From)
	if from == "" {
		return models.InboundMessage{}, errors.New("missing data.from")
	}
	if strings.TrimSpace(d.Body) == "" && d.Media == "" {
		return models.InboundMessage{}, errors.New("missing data.body")
	}

	msg := models.InboundMessage{
		Platform:  models.PlatformWhatsApp,
		SenderID:  from,
		ChatID:    from,
		MessageID: d.ID,
		Text:      d.Body,
		FromMe:    d.FromMe,
	}
	if kind, ok := models.ParseAttachmentKind(d.Type); ok && d.Media != "" {
		size, _ := d.Size.Int64()
		msg.Attachment = &models.Attachment{
			Kind: kind,
			URL:  d.Media,
			Name: d.Filename,
			Mime: d.Mimetype,
			Size: size,
		}
		if msg.Text == d.Media {
			msg.Text = ""
		}
	}
	return msg, nil
}

// telegramInbound converts an update. ok is false for updates without a message.
func telegramInbound(update tgbotapi.Update) (models.InboundMessage, bool) {
	m := update.Message
	if m == nil || m.Chat == nil {
		return models.InboundMessage{}, false
	}
	msg := models.InboundMessage{
		Platform:  models.PlatformTelegram,
		ChatID:    strconv.FormatInt(m.Chat.ID, 10),
		MessageID: strconv.Itoa(m.MessageID),
		Text:      m.Text,
	}
	if m.From != nil {
		msg.SenderID = strconv.FormatInt(m.From.ID, 10)
	} else {
		msg.SenderID = msg.ChatID
	}
	if msg.Text == "" {
		msg.Text = m.Caption
	}
	msg.Attachment = telegramAttachment(m)
	return msg, true
}

func telegramAttachment(m *tgbotapi.Message) *models.Attachment {
	switch {
	case m.Document != nil:
		return &models.Attachment{Kind: models.AttachmentDocument, FileID: m.Document.FileID, Name: m.Document.FileName, Mime: m.Document.MimeType, Size: int64(m.Document.FileSize)}
	case m.Video != nil:
		return &models.Attachment{Kind: models.AttachmentVideo, FileID: m.Video.FileID, Name: m.Video.FileName, Mime: m.Video.MimeType, Size: int64(m.Video.FileSize)}
	case m.Audio != nil:
		return &models.Attachment{Kind: models.AttachmentAudio, FileID: m.Audio.FileID, Name: m.Audio.FileName, Mime: m.Audio.MimeType, Size: int64(m.Audio.FileSize)}
	case m.Voice != nil:
		return &models.Attachment{Kind: models.AttachmentAudio, FileID: m.Voice.FileID, Name: "voice.ogg", Mime: m.Voice.MimeType, Size: int64(m.Voice.FileSize)}
	case len(m.Photo) > 0:
		p := pickTelegramPhoto(m.Photo)
		return &models.Attachment{Kind: models.AttachmentPhoto, FileID: p.FileID, Name: p.FileUniqueID + ".jpg", Mime: "image/jpeg", Size: int64(p.FileSize)}
	default:
		return nil
	}
}

// pickTelegramPhoto returns the largest resolution of a photo.
func pickTelegramPhoto(sizes []tgbotapi.PhotoSize) tgbotapi.PhotoSize {
	best := sizes[0]
	for _, s := range sizes[1:] {
		if s.Width*s.Height > best.Width*best.Height {
			best = s
		}
	}
	return best
}
