package notifier

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"pdbot/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	method string
	path   string
	query  map[string]string
	form   map[string]string
}

func newGateway(t *testing.T, status int, body string) (*httptest.Server, *[]capturedRequest) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []capturedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		c := capturedRequest{method: r.Method, path: r.URL.Path, query: map[string]string{}, form: map[string]string{}}
		for k := range r.URL.Query() {
			c.query[k] = r.URL.Query().Get(k)
		}
		for k := range r.PostForm {
			c.form[k] = r.PostForm.Get(k)
		}
		mu.Lock()
		reqs = append(reqs, c)
		mu.Unlock()
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &reqs
}

func TestUltraMsgSendText(t *testing.T) {
	srv, reqs := newGateway(t, http.StatusOK, `{"sent":"true","message":"ok"}`)
	u := NewUltraMsg(srv.URL+"/", "instance1", "tok", &http.Client{Timeout: time.Second}, nil)

	require.NoError(t, u.SendText(context.Background(), "94712345678", "hello there"))
	require.Len(t, *reqs, 1)
	got := (*reqs)[0]
	assert.Equal(t, http.MethodGet, got.method)
	assert.Equal(t, "/instance1/messages/chat", got.path)
	assert.Equal(t, "tok", got.query["token"])
	assert.Equal(t, "94712345678", got.query["to"])
	assert.Equal(t, "hello there", got.query["body"])
}

func TestUltraMsgGatewayErrors(t *testing.T) {
	srv, _ := newGateway(t, http.StatusOK, `{"error":"Wrong token"}`)
	u := NewUltraMsg(srv.URL, "i", "bad", &http.Client{Timeout: time.Second}, nil)
	err := u.SendText(context.Background(), "1", "x")
	assert.True(t, errors.Is(err, ErrSendFailed))

	srv2, _ := newGateway(t, http.StatusBadGateway, `upstream`)
	u2 := NewUltraMsg(srv2.URL, "i", "t", &http.Client{Timeout: time.Second}, nil)
	assert.ErrorIs(t, u2.SendText(context.Background(), "1", "x"), ErrSendFailed)

	u3 := NewUltraMsg("http://127.0.0.1:1", "i", "t", &http.Client{Timeout: time.Second}, nil)
	assert.ErrorIs(t, u3.SendText(context.Background(), "1", "x"), ErrSendFailed)
}

func TestUltraMsgSendFile(t *testing.T) {
	srv, reqs := newGateway(t, http.StatusOK, `{"sent":"true"}`)
	u := NewUltraMsg(srv.URL, "inst", "tok", &http.Client{Timeout: time.Second}, nil)

	path := filepath.Join(t.TempDir(), "a.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o600))

	err := u.SendFile(context.Background(), "947", File{LocalPath: path, Name: "report.pdf", Kind: models.AttachmentDocument, Caption: "here"})
	require.NoError(t, err)
	err = u.SendFile(context.Background(), "947", File{URL: "https://cdn/x.jpg", Kind: models.AttachmentPhoto})
	require.NoError(t, err)

	require.Len(t, *reqs, 2)
	doc := (*reqs)[0]
	assert.Equal(t, "/inst/messages/document", doc.path)
	assert.Equal(t, "report.pdf", doc.form["filename"])
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("%PDF-1.4")), doc.form["document"])
	assert.Equal(t, "here", doc.form["caption"])

	img := (*reqs)[1]
	assert.Equal(t, "/inst/messages/image", img.path)
	assert.Equal(t, "https://cdn/x.jpg", img.form["image"])

	assert.ErrorIs(t, u.SendFile(context.Background(), "947", File{}), ErrSendFailed)
}

type fakeBot struct {
	sent    []tgbotapi.Chattable
	sendErr error
	urls    map[string]string
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.sendErr != nil {
		return tgbotapi.Message{}, f.sendErr
	}
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func (f *fakeBot) GetFileDirectURL(fileID string) (string, error) {
	if u, ok := f.urls[fileID]; ok {
		return u, nil
	}
	return "", errors.New("file not found")
}

func TestTelegramSendText(t *testing.T) {
	bot := &fakeBot{}
	tg := &Telegram{bot: bot}

	long := strings.Repeat("é", 3000) // 6000 bytes
	require.NoError(t, tg.SendText(context.Background(), "42", long))
	require.Len(t, bot.sent, 1)
	msg, ok := bot.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, int64(42), msg.ChatID)
	assert.LessOrEqual(t, len(msg.Text), telegramMaxMessageLength)
	assert.True(t, strings.HasSuffix(msg.Text, "..."))

	assert.ErrorIs(t, tg.SendText(context.Background(), "not-a-chat", "x"), ErrSendFailed)
	bot.sendErr = errors.New("Forbidden: bot was blocked")
	assert.ErrorIs(t, tg.SendText(context.Background(), "42", "x"), ErrSendFailed)
}

func TestTelegramSendFileKinds(t *testing.T) {
	bot := &fakeBot{}
	tg := &Telegram{bot: bot}
	ctx := context.Background()

	require.NoError(t, tg.SendFile(ctx, "7", File{PlatformID: "AgAD", Kind: models.AttachmentPhoto}))
	require.NoError(t, tg.SendFile(ctx, "7", File{URL: "https://x/v.mp4", Kind: models.AttachmentVideo}))
	require.NoError(t, tg.SendFile(ctx, "7", File{PlatformID: "BQAD", Kind: models.AttachmentDocument, Caption: "c"}))

	require.Len(t, bot.sent, 3)
	photo, ok := bot.sent[0].(tgbotapi.PhotoConfig)
	require.True(t, ok)
	assert.Equal(t, tgbotapi.FileID("AgAD"), photo.File)
	_, ok = bot.sent[1].(tgbotapi.VideoConfig)
	assert.True(t, ok)
	doc, ok := bot.sent[2].(tgbotapi.DocumentConfig)
	require.True(t, ok)
	assert.Equal(t, "c", doc.Caption)

	assert.ErrorIs(t, tg.SendFile(ctx, "7", File{}), ErrSendFailed)
}

func TestTelegramFileURL(t *testing.T) {
	tg := &Telegram{bot: &fakeBot{urls: map[string]string{"BQAD": "https://api.telegram.org/file/botX/doc.pdf"}}}
	link, err := tg.FileURL(context.Background(), "BQAD")
	require.NoError(t, err)
	assert.Contains(t, link, "doc.pdf")
	_, err = tg.FileURL(context.Background(), "missing")
	assert.Error(t, err)
}

type countingObserver struct {
	mu      sync.Mutex
	results map[string]int
}

func (c *countingObserver) OutboundMessage(platform, result string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[platform+"/"+result]++
}

func TestRegistry(t *testing.T) {
	obs := &countingObserver{results: map[string]int{}}
	reg := NewRegistry(obs)
	bot := &fakeBot{urls: map[string]string{"id": "https://x"}}
	reg.Register(models.PlatformTelegram, &Telegram{bot: bot})

	n, err := reg.Get(models.PlatformTelegram)
	require.NoError(t, err)
	require.NoError(t, n.SendText(context.Background(), "1", "hi"))
	assert.Error(t, n.SendText(context.Background(), "bad", "hi"))
	assert.Equal(t, 1, obs.results["telegram/ok"])
	assert.Equal(t, 1, obs.results["telegram/error"])

	_, err = reg.Get(models.PlatformWhatsApp)
	assert.ErrorIs(t, err, ErrUnknownPlatform)

	res, ok := reg.Resolver(models.PlatformTelegram)
	require.True(t, ok)
	link, err := res.FileURL(context.Background(), "id")
	require.NoError(t, err)
	assert.Equal(t, "https://x", link)
	_, ok = reg.Resolver(models.PlatformWhatsApp)
	assert.False(t, ok)
}
