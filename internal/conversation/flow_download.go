package conversation

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"strings"

	"pdbot/internal/models"
	"pdbot/internal/notifier"
	"pdbot/internal/service/fetcher"

	"go.uber.org/zap"
)

func (e *Engine) youtubeAskURL(ctx context.Context, sess *models.Session, msg models.InboundMessage, input string) error {
	if !fetcher.IsYouTubeURL(input) {
		return e.reprompt(ctx, sess, msg, promptYoutubeBad)
	}
	if e.video == nil {
		return e.fail(ctx, sess, msg, errors.New("video downloader not configured"), replyDownloadFailed)
	}
	return e.download(ctx, sess, msg, func() (*fetcher.Result, error) {
		return e.video.Download(ctx, input, e.maxBytes)
	}, models.AttachmentVideo)
}

func (e *Engine) downloadAskURL(ctx context.Context, sess *models.Session, msg models.InboundMessage, input string) error {
	if !validDownloadURL(input) {
		return e.reprompt(ctx, sess, msg, promptDownloadBad)
	}
	return e.download(ctx, sess, msg, func() (*fetcher.Result, error) {
		return e.fetcher.Fetch(ctx, input, e.maxBytes)
	}, models.AttachmentDocument)
}

// download runs fetch, sends the result back to the requester and always
// removes the temp file.
func (e *Engine) download(ctx context.Context, sess *models.Session, msg models.InboundMessage, fetch func() (*fetcher.Result, error), kind models.AttachmentKind) error {
	if err := e.reply(ctx, msg, replyDownloading); err != nil {
		e.logger.Warn("progress reply failed", zap.String("sender", sess.SenderKey), zap.Error(err))
	}

	res, err := fetch()
	if err != nil {
		var tooLarge *fetcher.TooLargeError
		if errors.As(err, &tooLarge) {
			e.finish(ctx, sess, OutcomeTooLarge)
			return e.reply(ctx, msg, fmt.Sprintf(fmtTooLarge, humanBytes(tooLarge.Size), humanBytes(e.maxBytes)))
		}
		return e.fail(ctx, sess, msg, err, replyDownloadFailed)
	}
	defer func() {
		if cerr := res.Cleanup(); cerr != nil {
			e.logger.Warn("remove download failed", zap.String("path", res.Path), zap.Error(cerr))
		}
	}()

	file := notifier.File{
		LocalPath: res.Path,
		Name:      res.Name,
		Mime:      res.ContentType,
		Kind:      kind,
		Size:      res.Size,
		Caption:   "📁 " + res.Name,
	}
	if err := e.replyFile(ctx, msg, file); err != nil {
		return e.fail(ctx, sess, msg, err, replySendFailed)
	}
	e.finish(ctx, sess, OutcomeCompleted)
	return nil
}

// kindFromMime maps a content type onto an attachment kind.
func kindFromMime(contentType string) models.AttachmentKind {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = contentType
	}
	switch {
	case strings.HasPrefix(mediaType, "video/"):
		return models.AttachmentVideo
	case strings.HasPrefix(mediaType, "audio/"):
		return models.AttachmentAudio
	case strings.HasPrefix(mediaType, "image/"):
		return models.AttachmentPhoto
	default:
		return models.AttachmentDocument
	}
}
