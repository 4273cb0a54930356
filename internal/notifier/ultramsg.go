package notifier

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"pdbot/internal/models"

	"go.uber.org/zap"
)

const ultraMsgMaxResponse = 64 * 1024

// UltraMsg sends WhatsApp messages through the UltraMsg REST gateway.
type UltraMsg struct {
	baseURL    string
	instanceID string
	token      string
	client     *http.Client
	logger     *zap.Logger
}

// NewUltraMsg builds a gateway client. client must carry a timeout.
func NewUltraMsg(baseURL, instanceID, token string, client *http.Client, logger *zap.Logger) *UltraMsg {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UltraMsg{
		baseURL:    strings.TrimRight(baseURL, "/"),
		instanceID: instanceID,
		token:      token,
		client:     client,
		logger:     logger.Named("ultramsg"),
	}
}

func (u *UltraMsg) endpoint(path string) string {
	return fmt.Sprintf("%s/%s/messages/%s", u.baseURL, u.instanceID, path)
}

// SendText delivers a chat message to the phone number or chat id in to.
func (u *UltraMsg) SendText(ctx context.Context, to, text string) error {
	params := url.Values{}
	params.Set("token", u.token)
	params.Set("to", to)
	params.Set("body", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.endpoint("chat")+"?"+params.Encode(), nil)
	if err != nil {
		return sendError("ultramsg chat", err)
	}
	if err := u.do(req); err != nil {
		return sendError("ultramsg chat", err)
	}
	return nil
}

// SendFile uploads a document, image, video or audio message.
func (u *UltraMsg) SendFile(ctx context.Context, to string, file File) error {
	field, path := "document", "document"
	switch file.Kind {
	case models.AttachmentPhoto:
		field, path = "image", "image"
	case models.AttachmentVideo:
		field, path = "video", "video"
	case models.AttachmentAudio:
		field, path = "audio", "audio"
	}

	source, err := u.fileSource(file)
	if err != nil {
		return sendError("ultramsg "+path, err)
	}

	form := url.Values{}
	form.Set("token", u.token)
	form.Set("to", to)
	form.Set(field, source)
	if path == "document" {
		name := file.Name
		if name == "" {
			name = "file"
		}
		form.Set("filename", name)
	}
	if file.Caption != "" && path != "audio" {
		form.Set("caption", file.Caption)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint(path), strings.NewReader(form.Encode()))
	if err != nil {
		return sendError("ultramsg "+path, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if err := u.do(req); err != nil {
		return sendError("ultramsg "+path, err)
	}
	return nil
}

func (u *UltraMsg) fileSource(file File) (string, error) {
	switch {
	case file.LocalPath != "":
		data, err := os.ReadFile(file.LocalPath)
		if err != nil {
			return "", fmt.Errorf("read local file: %w", err)
		}
		return base64.StdEncoding.EncodeToString(data), nil
	case file.URL != "":
		return file.URL, nil
	default:
		return "", errors.New("file has no local path or url")
	}
}

func (u *UltraMsg) do(req *http.Request) error {
	resp, err := u.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, ultraMsgMaxResponse))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("gateway status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		u.logger.Debug("non-json gateway response", zap.Int("status", resp.StatusCode))
		return nil
	}
	if apiErr, ok := payload["error"]; ok && apiErr != nil && apiErr != "" {
		return fmt.Errorf("gateway error: %v", apiErr)
	}
	return nil
}
