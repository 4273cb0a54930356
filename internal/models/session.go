package models

import "time"

// Flow names a multi-turn conversation.
type Flow string

const (
	FlowSendMessage     Flow = "send_message"
	FlowYoutubeDownload Flow = "youtube_download"
	FlowURLDownload     Flow = "url_download"
	FlowUploadFile      Flow = "upload_file"
	FlowGetFile         Flow = "get_file"
	FlowAskAI           Flow = "ask_ai"
)

// Step is the input a session is currently waiting for.
type Step string

const (
	StepAskPhone  Step = "ask_phone"
	StepAskText   Step = "ask_text"
	StepAskURL    Step = "ask_url"
	StepAwaitFile Step = "await_file"
	StepAskCode   Step = "ask_code"
	StepAskQuery  Step = "ask_query"
)

// Session is the in-progress conversation state for one sender.
type Session struct {
	SenderKey string            `json:"sender_key"`
	Platform  Platform          `json:"platform"`
	ChatID    string            `json:"chat_id"`
	Flow      Flow              `json:"flow"`
	Step      Step              `json:"step"`
	Fields    map[string]string `json:"fields,omitempty"`
	StartedAt time.Time         `json:"started_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Field returns a collected value or "".
func (s *Session) Field(name string) string {
	if s == nil || s.Fields == nil {
		return ""
	}
	return s.Fields[name]
}

// SetField records a collected value.
func (s *Session) SetField(name, value string) {
	if s.Fields == nil {
		s.Fields = make(map[string]string)
	}
	s.Fields[name] = value
}
