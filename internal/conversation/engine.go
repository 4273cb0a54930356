package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"pdbot/internal/models"
	"pdbot/internal/notifier"
	"pdbot/internal/service/fetcher"

	"go.uber.org/zap"
)

// Minter assigns an access code to a record and stores it.
type Minter interface {
	Mint(ctx context.Context, rec *models.FileRecord) (string, error)
}

// RecordReader loads records by access code.
type RecordReader interface {
	Get(ctx context.Context, code string) (*models.FileRecord, error)
}

// Downloader fetches a URL into a local temp file.
type Downloader interface {
	Fetch(ctx context.Context, rawURL string, limit int64) (*fetcher.Result, error)
}

// VideoDownloader fetches a video page's media stream.
type VideoDownloader interface {
	Download(ctx context.Context, rawURL string, limit int64) (*fetcher.Result, error)
}

// Completer answers free-form questions.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// FlowObserver records flow outcomes.
type FlowObserver interface {
	FlowOutcome(flow, outcome string)
}

const (
	OutcomeStarted   = "started"
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
	OutcomeTooLarge  = "too_large"
	OutcomeNotFound  = "not_found"
)

// Deps bundles the collaborators of an Engine. Video and AI may be nil.
type Deps struct {
	Store     SessionStore
	Notifiers *notifier.Registry
	Minter    Minter
	Records   RecordReader
	Fetcher   Downloader
	Video     VideoDownloader
	AI        Completer
	Observer  FlowObserver
	Logger    *zap.Logger
}

// Engine drives multi-turn flows for each sender.
type Engine struct {
	store     SessionStore
	notifiers *notifier.Registry
	minter    Minter
	records   RecordReader
	fetcher   Downloader
	video     VideoDownloader
	ai        Completer
	observer  FlowObserver
	files     *fileMaterializer
	maxBytes  int64
	logger    *zap.Logger
	now       func() time.Time
}

type stepHandler func(ctx context.Context, sess *models.Session, msg models.InboundMessage, input string) error

type flowDef struct {
	flow   models.Flow
	first  models.Step
	prompt string
}

var commandFlows = map[string]flowDef{
	"send":     {models.FlowSendMessage, models.StepAskPhone, promptPhone},
	"youtube":  {models.FlowYoutubeDownload, models.StepAskURL, promptYoutubeURL},
	"download": {models.FlowURLDownload, models.StepAskURL, promptDownloadURL},
	"upload":   {models.FlowUploadFile, models.StepAwaitFile, promptUpload},
	"get":      {models.FlowGetFile, models.StepAskCode, promptCode},
	"ask":      {models.FlowAskAI, models.StepAskQuery, promptQuery},
}

// New creates an engine. maxBytes is the size ceiling applied to every flow.
func New(deps Deps, maxBytes int64) (*Engine, error) {
	if deps.Store == nil || deps.Notifiers == nil || deps.Minter == nil || deps.Records == nil || deps.Fetcher == nil {
		return nil, errors.New("conversation: store, notifiers, minter, records and fetcher are required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	e := &Engine{
		store:     deps.Store,
		notifiers: deps.Notifiers,
		minter:    deps.Minter,
		records:   deps.Records,
		fetcher:   deps.Fetcher,
		video:     deps.Video,
		ai:        deps.AI,
		observer:  deps.Observer,
		maxBytes:  maxBytes,
		logger:    deps.Logger.Named("conversation"),
		now:       time.Now,
	}
	e.files = &fileMaterializer{notifiers: deps.Notifiers, fetcher: deps.Fetcher, maxBytes: maxBytes}
	return e, nil
}

// Handle consumes msg if it is a command or belongs to an active session.
// handled is false when the message should fall through to keyword replies.
// The returned error reports a reply that could not be delivered or an
// unusable session store.
func (e *Engine) Handle(ctx context.Context, msg models.InboundMessage) (bool, error) {
	text := strings.TrimSpace(msg.Text)
	key := msg.SenderKey()

	if cmd, args, ok := parseCommand(text); ok {
		switch cmd {
		case "cancel":
			return true, e.cancel(ctx, msg)
		case "help", "start":
			return true, e.reply(ctx, msg, helpText)
		}
		if def, known := commandFlows[cmd]; known {
			return true, e.startFlow(ctx, msg, def, args)
		}
	}

	sess, err := e.store.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("load session %s: %w", key, err)
	}
	if sess == nil {
		return false, nil
	}
	handler := e.handlerFor(sess)
	if handler == nil {
		e.logger.Warn("dropping session in unknown state", zap.String("sender", key), zap.String("flow", string(sess.Flow)), zap.String("step", string(sess.Step)))
		_ = e.store.Delete(ctx, key)
		return false, nil
	}
	return true, handler(ctx, sess, msg, text)
}

func (e *Engine) startFlow(ctx context.Context, msg models.InboundMessage, def flowDef, args string) error {
	now := e.now().UTC()
	sess := &models.Session{
		SenderKey: msg.SenderKey(),
		Platform:  msg.Platform,
		ChatID:    msg.ChatID,
		Flow:      def.flow,
		Step:      def.first,
		StartedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.Save(ctx, sess); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	e.observe(def.flow, OutcomeStarted)
	e.logger.Debug("flow started", zap.String("sender", sess.SenderKey), zap.String("flow", string(def.flow)))

	if args != "" && def.first != models.StepAwaitFile {
		return e.handlerFor(sess)(ctx, sess, msg, args)
	}
	return e.reply(ctx, msg, def.prompt)
}

func (e *Engine) handlerFor(sess *models.Session) stepHandler {
	switch sess.Flow {
	case models.FlowSendMessage:
		switch sess.Step {
		case models.StepAskPhone:
			return e.sendAskPhone
		case models.StepAskText:
			return e.sendAskText
		}
	case models.FlowYoutubeDownload:
		if sess.Step == models.StepAskURL {
			return e.youtubeAskURL
		}
	case models.FlowURLDownload:
		if sess.Step == models.StepAskURL {
			return e.downloadAskURL
		}
	case models.FlowUploadFile:
		if sess.Step == models.StepAwaitFile {
			return e.uploadAwaitFile
		}
	case models.FlowGetFile:
		if sess.Step == models.StepAskCode {
			return e.getFileAskCode
		}
	case models.FlowAskAI:
		if sess.Step == models.StepAskQuery {
			return e.askAIQuery
		}
	}
	return nil
}

func (e *Engine) cancel(ctx context.Context, msg models.InboundMessage) error {
	key := msg.SenderKey()
	sess, err := e.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("load session %s: %w", key, err)
	}
	if sess == nil {
		return e.reply(ctx, msg, replyNothingToCancel)
	}
	if err := e.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete session %s: %w", key, err)
	}
	e.observe(sess.Flow, OutcomeCancelled)
	return e.reply(ctx, msg, replyCancelled)
}

// advance persists a session that moved to its next step.
func (e *Engine) advance(ctx context.Context, sess *models.Session, next models.Step) error {
	sess.Step = next
	sess.UpdatedAt = e.now().UTC()
	return e.store.Save(ctx, sess)
}

// finish ends the session and records its outcome.
func (e *Engine) finish(ctx context.Context, sess *models.Session, outcome string) {
	if err := e.store.Delete(ctx, sess.SenderKey); err != nil {
		e.logger.Warn("delete session failed", zap.String("sender", sess.SenderKey), zap.Error(err))
	}
	e.observe(sess.Flow, outcome)
}

// fail replies with a failure message and drops the session.
func (e *Engine) fail(ctx context.Context, sess *models.Session, msg models.InboundMessage, cause error, text string) error {
	e.logger.Warn("flow step failed",
		zap.String("sender", sess.SenderKey),
		zap.String("flow", string(sess.Flow)),
		zap.String("step", string(sess.Step)),
		zap.Error(cause),
	)
	e.finish(ctx, sess, OutcomeFailed)
	return e.reply(ctx, msg, text)
}

// reprompt keeps the session at its current step and asks again.
func (e *Engine) reprompt(ctx context.Context, sess *models.Session, msg models.InboundMessage, text string) error {
	sess.UpdatedAt = e.now().UTC()
	if err := e.store.Save(ctx, sess); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return e.reply(ctx, msg, text)
}

func (e *Engine) reply(ctx context.Context, msg models.InboundMessage, text string) error {
	n, err := e.notifiers.Get(msg.Platform)
	if err != nil {
		return err
	}
	if err := n.SendText(ctx, msg.ChatID, text); err != nil {
		return fmt.Errorf("reply to %s: %w", msg.SenderKey(), err)
	}
	return nil
}

func (e *Engine) replyFile(ctx context.Context, msg models.InboundMessage, file notifier.File) error {
	n, err := e.notifiers.Get(msg.Platform)
	if err != nil {
		return err
	}
	return n.SendFile(ctx, msg.ChatID, file)
}

func (e *Engine) observe(flow models.Flow, outcome string) {
	if e.observer != nil {
		e.observer.FlowOutcome(string(flow), outcome)
	}
}

// parseCommand splits "/cmd@bot args" into a lower-case command and its arguments.
func parseCommand(text string) (cmd, args string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head, rest := text[1:], ""
	if idx := strings.IndexFunc(head, unicode.IsSpace); idx >= 0 {
		head, rest = head[:idx], head[idx:]
	}
	head, _, _ = strings.Cut(head, "@")
	head = strings.ToLower(strings.TrimSpace(head))
	if head == "" {
		return "", "", false
	}
	return head, strings.TrimSpace(rest), true
}
