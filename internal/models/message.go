package models

import "strings"

// Platform identifies a messaging network.
type Platform string

const (
	PlatformWhatsApp Platform = "whatsapp"
	PlatformTelegram Platform = "telegram"
)

// AttachmentKind classifies inbound media.
type AttachmentKind string

const (
	AttachmentDocument AttachmentKind = "document"
	AttachmentVideo    AttachmentKind = "video"
	AttachmentAudio    AttachmentKind = "audio"
	AttachmentPhoto    AttachmentKind = "photo"
)

// ParseAttachmentKind maps gateway media types onto known kinds.
func ParseAttachmentKind(raw string) (AttachmentKind, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "document", "file":
		return AttachmentDocument, true
	case "video":
		return AttachmentVideo, true
	case "audio", "voice", "ptt":
		return AttachmentAudio, true
	case "image", "photo":
		return AttachmentPhoto, true
	default:
		return "", false
	}
}

// Attachment is media carried by an inbound message. Telegram media has a
// FileID, gateway media has a URL.
type Attachment struct {
	Kind   AttachmentKind `json:"kind"`
	FileID string         `json:"file_id,omitempty"`
	URL    string         `json:"url,omitempty"`
	Name   string         `json:"name,omitempty"`
	Mime   string         `json:"mime,omitempty"`
	Size   int64          `json:"size"`
}

// InboundMessage is the platform-neutral form of a received message.
type InboundMessage struct {
	Platform   Platform    `json:"platform"`
	SenderID   string      `json:"sender_id"`
	ChatID     string      `json:"chat_id"`
	MessageID  string      `json:"message_id"`
	Text       string      `json:"text"`
	FromMe     bool        `json:"from_me"`
	Attachment *Attachment `json:"attachment,omitempty"`
}

// SenderKey scopes sessions, dedup state and work queues to one sender in
// one chat on one platform. Members of a group chat get separate keys.
func (m InboundMessage) SenderKey() string {
	sender := m.SenderID
	if sender == "" {
		sender = m.ChatID
	}
	return string(m.Platform) + ":" + m.ChatID + ":" + sender
}
