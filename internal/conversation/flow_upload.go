package conversation

import (
	"context"
	"fmt"

	"pdbot/internal/models"

	"go.uber.org/zap"
)

func (e *Engine) uploadAwaitFile(ctx context.Context, sess *models.Session, msg models.InboundMessage, _ string) error {
	att := msg.Attachment
	if att == nil || !acceptedKind(att.Kind) || (att.FileID == "" && att.URL == "") {
		return e.reprompt(ctx, sess, msg, promptUploadRetry)
	}
	if e.maxBytes > 0 && att.Size > e.maxBytes {
		return e.reprompt(ctx, sess, msg, fmt.Sprintf(fmtUploadTooBig, humanBytes(att.Size), humanBytes(e.maxBytes)))
	}

	rec := &models.FileRecord{
		Platform:    msg.Platform,
		Kind:        att.Kind,
		DisplayName: att.Name,
		ContentType: att.Mime,
		SizeBytes:   att.Size,
		UploadedBy:  sess.SenderKey,
	}
	if att.FileID != "" {
		rec.StorageKind = models.StoragePlatformFile
		rec.StorageRef = att.FileID
	} else {
		rec.StorageKind = models.StorageURL
		rec.StorageRef = att.URL
	}
	if rec.DisplayName == "" {
		rec.DisplayName = defaultName(att.Kind)
	}

	code, err := e.minter.Mint(ctx, rec)
	if err != nil {
		return e.fail(ctx, sess, msg, err, replyStoreFailed)
	}
	e.logger.Info("file stored", zap.String("sender", sess.SenderKey), zap.String("code", code), zap.String("kind", string(att.Kind)))
	e.finish(ctx, sess, OutcomeCompleted)
	return e.reply(ctx, msg, fmt.Sprintf(fmtCodeMinted, code))
}

func acceptedKind(kind models.AttachmentKind) bool {
	switch kind {
	case models.AttachmentDocument, models.AttachmentVideo, models.AttachmentAudio, models.AttachmentPhoto:
		return true
	}
	return false
}

func defaultName(kind models.AttachmentKind) string {
	switch kind {
	case models.AttachmentPhoto:
		return "photo.jpg"
	case models.AttachmentVideo:
		return "video.mp4"
	case models.AttachmentAudio:
		return "audio.mp3"
	default:
		return "file"
	}
}
