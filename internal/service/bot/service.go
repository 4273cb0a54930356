package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pdbot/internal/config"
	"pdbot/internal/dedup"
	"pdbot/internal/models"
	"pdbot/internal/notifier"

	"go.uber.org/zap"
)

// Engine consumes commands and in-flight conversation turns.
type Engine interface {
	Handle(ctx context.Context, msg models.InboundMessage) (bool, error)
}

// ReplyObserver counts keyword replies.
type ReplyObserver interface {
	KeywordReply(rule string)
}

// Result describes what Handle did with a message.
type Result string

const (
	ResultIgnored   Result = "ignored"
	ResultDuplicate Result = "duplicate"
	ResultMarked    Result = "marked"
	ResultFlow      Result = "flow"
	ResultKeyword   Result = "keyword"
)

// Service applies the inbound pipeline: dedup, marker gate, conversation
// engine, keyword reply.
type Service struct {
	dedup     dedup.Deduper
	engine    Engine
	notifiers *notifier.Registry
	keywords  *Keywords
	marker    config.MarkerConfig
	observer  ReplyObserver
	logger    *zap.Logger
}

type Option func(*Service)

func WithObserver(o ReplyObserver) Option {
	return func(s *Service) { s.observer = o }
}

func WithMarker(m config.MarkerConfig) Option {
	return func(s *Service) { s.marker = m }
}

func NewService(d dedup.Deduper, engine Engine, notifiers *notifier.Registry, keywords *Keywords, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		dedup:     d,
		engine:    engine,
		notifiers: notifiers,
		keywords:  keywords,
		logger:    logger.Named("bot"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle processes one inbound message. Delivery failures are logged and
// swallowed; only dedup and session store failures are returned.
func (s *Service) Handle(ctx context.Context, msg models.InboundMessage) (Result, error) {
	if msg.FromMe {
		return ResultIgnored, nil
	}
	key := msg.SenderKey()
	log := s.logger.With(zap.String("sender", key), zap.String("message_id", msg.MessageID))

	if s.dedup != nil && msg.MessageID != "" {
		seen, err := s.dedup.Seen(ctx, key, msg.MessageID)
		if err != nil {
			return "", fmt.Errorf("dedup: %w", err)
		}
		if seen {
			log.Debug("duplicate delivery")
			return ResultDuplicate, nil
		}
	}

	if s.marker.Enabled && s.marker.Word != "" && strings.Contains(msg.Text, s.marker.Word) {
		log.Debug("marker word present, not replying")
		return ResultMarked, nil
	}

	handled, err := s.engine.Handle(ctx, msg)
	if err != nil {
		if errors.Is(err, notifier.ErrSendFailed) || errors.Is(err, notifier.ErrUnknownPlatform) {
			log.Warn("flow reply not delivered", zap.Error(err))
			return ResultFlow, nil
		}
		s.forget(ctx, key, msg.MessageID, log)
		return "", fmt.Errorf("conversation: %w", err)
	}
	if handled {
		return ResultFlow, nil
	}

	reply, rule := s.keywords.Reply(msg.Text)
	if s.observer != nil {
		s.observer.KeywordReply(rule)
	}
	if reply == "" {
		return ResultKeyword, nil
	}
	n, err := s.notifiers.Get(msg.Platform)
	if err != nil {
		log.Error("no notifier for platform", zap.Error(err))
		return ResultKeyword, nil
	}
	if err := n.SendText(ctx, msg.ChatID, reply); err != nil {
		log.Warn("keyword reply not delivered", zap.String("rule", rule), zap.Error(err))
	}
	return ResultKeyword, nil
}

// forget releases a recorded message id so the platform's retry is processed.
func (s *Service) forget(ctx context.Context, key, messageID string, log *zap.Logger) {
	if s.dedup == nil || messageID == "" {
		return
	}
	if err := s.dedup.Forget(context.WithoutCancel(ctx), key, messageID); err != nil {
		log.Warn("could not release message id", zap.Error(err))
	}
}
