package conversation

import (
	"context"
	"fmt"

	"pdbot/internal/models"

	"go.uber.org/zap"
)

const fieldPhone = "phone"

func (e *Engine) sendAskPhone(ctx context.Context, sess *models.Session, msg models.InboundMessage, input string) error {
	phone, ok := normalizePhone(input)
	if !ok {
		return e.reprompt(ctx, sess, msg, promptPhoneRetry)
	}
	sess.SetField(fieldPhone, phone)
	if err := e.advance(ctx, sess, models.StepAskText); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return e.reply(ctx, msg, promptText)
}

// sendAskText delivers the collected text through the WhatsApp gateway
// exactly once and ends the session whatever the result.
func (e *Engine) sendAskText(ctx context.Context, sess *models.Session, msg models.InboundMessage, input string) error {
	if input == "" {
		return e.reprompt(ctx, sess, msg, promptTextRetry)
	}
	phone := sess.Field(fieldPhone)

	gateway, err := e.notifiers.Get(models.PlatformWhatsApp)
	if err == nil {
		err = gateway.SendText(ctx, phone, input)
	}
	if err != nil {
		return e.fail(ctx, sess, msg, err, fmt.Sprintf(fmtMessageFailed, phone))
	}
	e.logger.Info("relayed message", zap.String("sender", sess.SenderKey), zap.String("to", phone))
	e.finish(ctx, sess, OutcomeCompleted)
	return e.reply(ctx, msg, fmt.Sprintf(fmtMessageSent, phone))
}
