package bot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pdbot/internal/config"
	"pdbot/internal/dedup"
	"pdbot/internal/models"
	"pdbot/internal/notifier"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (r *recordingNotifier) SendText(_ context.Context, _, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.texts = append(r.texts, text)
	return nil
}

func (r *recordingNotifier) SendFile(context.Context, string, notifier.File) error { return nil }

type stubEngine struct {
	handled bool
	err     error
	calls   int
}

func (s *stubEngine) Handle(context.Context, models.InboundMessage) (bool, error) {
	s.calls++
	return s.handled, s.err
}

type ruleCounter map[string]int

func (c ruleCounter) KeywordReply(rule string) { c[rule]++ }

func newTestService(t *testing.T, engine Engine, opts ...Option) (*Service, *recordingNotifier) {
	t.Helper()
	n := &recordingNotifier{}
	reg := notifier.NewRegistry(nil)
	reg.Register(models.PlatformWhatsApp, n)
	reg.Register(models.PlatformTelegram, n)
	kw := NewKeywords(config.RepliesConfig{Keywords: config.DefaultKeywords(), Default: "default reply"})
	d := dedup.NewMemory(time.Minute, 128, nil)
	return NewService(d, engine, reg, kw, nil, opts...), n
}

func msg(id, text string) models.InboundMessage {
	return models.InboundMessage{Platform: models.PlatformWhatsApp, SenderID: "9471@c.us", ChatID: "9471@c.us", MessageID: id, Text: text}
}

func TestKeywordPriorityAndCase(t *testing.T) {
	kw := NewKeywords(config.RepliesConfig{Keywords: config.DefaultKeywords(), Default: "fallback"})

	reply, rule := kw.Reply("HELLO there, need INFO")
	assert.Equal(t, "Hi! How can I help you? 😊", reply)
	assert.Equal(t, "hello", rule)

	reply, rule = kw.Reply("Contact please")
	assert.Contains(t, reply, "Contact")
	assert.Equal(t, "info", rule)

	reply, rule = kw.Reply("what is this")
	assert.Equal(t, "fallback", reply)
	assert.Equal(t, defaultRule, rule)
}

func TestKeywordsSkipEmptyRules(t *testing.T) {
	kw := NewKeywords(config.RepliesConfig{
		Keywords: []config.KeywordRule{{Match: []string{" ", ""}, Reply: "never"}, {Match: []string{"Bye"}, Reply: "see you"}},
		Default:  "fallback",
	})
	reply, _ := kw.Reply("bye now")
	assert.Equal(t, "see you", reply)
	reply, _ = kw.Reply("")
	assert.Equal(t, "fallback", reply)
}

func TestHandleKeywordFallback(t *testing.T) {
	counter := ruleCounter{}
	svc, n := newTestService(t, &stubEngine{}, WithObserver(counter))

	res, err := svc.Handle(context.Background(), msg("m1", "hi"))
	require.NoError(t, err)
	assert.Equal(t, ResultKeyword, res)
	require.Len(t, n.texts, 1)
	assert.Equal(t, "Hi! How can I help you? 😊", n.texts[0])
	assert.Equal(t, 1, counter["hello"])
}

func TestHandleDuplicateDeliveryRepliesOnce(t *testing.T) {
	svc, n := newTestService(t, &stubEngine{})

	_, err := svc.Handle(context.Background(), msg("same", "hello"))
	require.NoError(t, err)
	res, err := svc.Handle(context.Background(), msg("same", "hello"))
	require.NoError(t, err)
	assert.Equal(t, ResultDuplicate, res)
	assert.Len(t, n.texts, 1)
}

func TestHandleFromMeIgnored(t *testing.T) {
	engine := &stubEngine{}
	svc, n := newTestService(t, engine)
	m := msg("m1", "hello")
	m.FromMe = true

	res, err := svc.Handle(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, ResultIgnored, res)
	assert.Zero(t, engine.calls)
	assert.Empty(t, n.texts)
}

func TestHandleMarkerGate(t *testing.T) {
	engine := &stubEngine{}
	svc, n := newTestService(t, engine, WithMarker(config.MarkerConfig{Enabled: true, Word: "PDBOT"}))

	res, err := svc.Handle(context.Background(), msg("m1", "forwarded by PDBOT"))
	require.NoError(t, err)
	assert.Equal(t, ResultMarked, res)
	assert.Empty(t, n.texts)

	// case-sensitive
	res, err = svc.Handle(context.Background(), msg("m2", "pdbot hello"))
	require.NoError(t, err)
	assert.Equal(t, ResultKeyword, res)
}

func TestHandleMarkerDisabledByDefault(t *testing.T) {
	svc, n := newTestService(t, &stubEngine{})
	_, err := svc.Handle(context.Background(), msg("m1", "PDBOT"))
	require.NoError(t, err)
	assert.Len(t, n.texts, 1)
}

func TestHandleFlowConsumesMessage(t *testing.T) {
	svc, n := newTestService(t, &stubEngine{handled: true})
	res, err := svc.Handle(context.Background(), msg("m1", "/send"))
	require.NoError(t, err)
	assert.Equal(t, ResultFlow, res)
	assert.Empty(t, n.texts)
}

func TestHandleErrors(t *testing.T) {
	svc, _ := newTestService(t, &stubEngine{err: errors.New("session store down")})
	_, err := svc.Handle(context.Background(), msg("m1", "hello"))
	require.Error(t, err)

	svc, _ = newTestService(t, &stubEngine{handled: true, err: notifier.ErrSendFailed})
	res, err := svc.Handle(context.Background(), msg("m2", "hello"))
	require.NoError(t, err)
	assert.Equal(t, ResultFlow, res)
}

func TestHandleRetryAfterStoreFailureIsProcessed(t *testing.T) {
	engine := &stubEngine{err: errors.New("session store down")}
	svc, n := newTestService(t, engine)

	_, err := svc.Handle(context.Background(), msg("m1", "hello"))
	require.Error(t, err)
	assert.Empty(t, n.texts)

	engine.err = nil
	res, err := svc.Handle(context.Background(), msg("m1", "hello"))
	require.NoError(t, err)
	assert.Equal(t, ResultKeyword, res)
	assert.Equal(t, 2, engine.calls)
	assert.Len(t, n.texts, 1)

	res, err = svc.Handle(context.Background(), msg("m1", "hello"))
	require.NoError(t, err)
	assert.Equal(t, ResultDuplicate, res)
	assert.Equal(t, 2, engine.calls)
}

func TestHandleKeywordSendFailureSwallowed(t *testing.T) {
	svc, n := newTestService(t, &stubEngine{})
	n.err = notifier.ErrSendFailed
	res, err := svc.Handle(context.Background(), msg("m1", "hello"))
	require.NoError(t, err)
	assert.Equal(t, ResultKeyword, res)
}
