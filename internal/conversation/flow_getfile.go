package conversation

import (
	"context"
	"errors"
	"fmt"

	"pdbot/internal/models"
	"pdbot/internal/notifier"
	"pdbot/internal/service/fetcher"
	"pdbot/internal/service/records"

	"go.uber.org/zap"
)

func (e *Engine) getFileAskCode(ctx context.Context, sess *models.Session, msg models.InboundMessage, input string) error {
	code := normalizeCode(input)
	if code == "" {
		return e.reprompt(ctx, sess, msg, promptCodeRetry)
	}

	rec, err := e.records.Get(ctx, code)
	if err != nil {
		if errors.Is(err, records.ErrNotFound) {
			e.finish(ctx, sess, OutcomeNotFound)
			return e.reply(ctx, msg, replyInvalidCode)
		}
		return e.fail(ctx, sess, msg, err, replyLookupFailed)
	}
	if e.maxBytes > 0 && rec.SizeBytes > e.maxBytes {
		e.finish(ctx, sess, OutcomeTooLarge)
		return e.reply(ctx, msg, fmt.Sprintf(fmtTooLarge, humanBytes(rec.SizeBytes), humanBytes(e.maxBytes)))
	}

	file := notifier.File{
		Name:    rec.DisplayName,
		Mime:    rec.ContentType,
		Kind:    rec.Kind,
		Size:    rec.SizeBytes,
		Caption: "📁 " + rec.DisplayName,
	}
	if file.Kind == "" {
		file.Kind = kindFromMime(rec.ContentType)
	}
	if rec.StorageKind == models.StoragePlatformFile && rec.Platform == msg.Platform {
		file.PlatformID = rec.StorageRef
	} else {
		local, err := e.files.materialize(ctx, rec)
		if err != nil {
			var tooLarge *fetcher.TooLargeError
			if errors.As(err, &tooLarge) {
				e.finish(ctx, sess, OutcomeTooLarge)
				return e.reply(ctx, msg, fmt.Sprintf(fmtTooLarge, humanBytes(tooLarge.Size), humanBytes(e.maxBytes)))
			}
			return e.fail(ctx, sess, msg, err, replySendFailed)
		}
		defer local.release(e.logger)
		file.LocalPath = local.Path
	}

	if err := e.replyFile(ctx, msg, file); err != nil {
		return e.fail(ctx, sess, msg, err, replySendFailed)
	}
	e.logger.Info("file delivered", zap.String("sender", sess.SenderKey), zap.String("code", code))
	e.finish(ctx, sess, OutcomeCompleted)
	return nil
}
