package conversation

import (
	"context"
	"errors"

	"pdbot/internal/models"
	"pdbot/internal/service/ai"
)

func (e *Engine) askAIQuery(ctx context.Context, sess *models.Session, msg models.InboundMessage, input string) error {
	if input == "" {
		return e.reprompt(ctx, sess, msg, promptQueryRetry)
	}
	if e.ai == nil {
		return e.fail(ctx, sess, msg, errors.New("ai not configured"), replyAIUnavailable)
	}
	answer, err := e.ai.Complete(ai.WithSender(ctx, sess.SenderKey), input)
	if err != nil {
		return e.fail(ctx, sess, msg, err, replyAIFailed)
	}
	e.finish(ctx, sess, OutcomeCompleted)
	return e.reply(ctx, msg, answer)
}
