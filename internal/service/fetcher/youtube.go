package fetcher

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"strings"

	"github.com/kkdai/youtube/v2"
	"go.uber.org/zap"
)

// ErrNoFormat is returned when a video exposes no downloadable stream with audio.
var ErrNoFormat = errors.New("no downloadable format")

// YouTube resolves video pages to a media stream and downloads it through a Fetcher.
type YouTube struct {
	client  *youtube.Client
	fetcher *Fetcher
	logger  *zap.Logger
}

// NewYouTube returns a resolver that stores downloads with f.
func NewYouTube(f *Fetcher) *YouTube {
	return &YouTube{client: &youtube.Client{}, fetcher: f, logger: f.logger.Named("youtube")}
}

// IsYouTubeURL reports whether raw is an http(s) link to youtube.com or youtu.be.
func IsYouTubeURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimPrefix(host, "m.")
	return host == "youtube.com" || host == "youtu.be" || host == "music.youtube.com"
}

// Download fetches the best stream with audio that fits within limit.
func (y *YouTube) Download(ctx context.Context, rawURL string, limit int64) (*Result, error) {
	video, err := y.client.GetVideoContext(ctx, rawURL)
	if err != nil {
		return nil, classify(rawURL, fmt.Errorf("resolve video: %w", err))
	}
	format, err := pickFormat(video.Formats.WithAudioChannels(), limit)
	if err != nil {
		return nil, err
	}
	if limit > 0 && format.ContentLength > limit {
		return nil, &TooLargeError{Limit: limit, Size: format.ContentLength}
	}

	stream, size, err := y.client.GetStreamContext(ctx, video, format)
	if err != nil {
		return nil, classify(rawURL, fmt.Errorf("open stream: %w", err))
	}
	defer stream.Close()

	contentType := format.MimeType
	if mediaType, _, perr := mime.ParseMediaType(contentType); perr == nil {
		contentType = mediaType
	}
	name := videoFileName(video.Title, contentType)
	y.logger.Info("downloading video",
		zap.String("id", video.ID),
		zap.String("quality", format.QualityLabel),
		zap.Int64("size", size),
	)
	res, err := y.fetcher.FetchStream(ctx, stream, name, contentType, size, limit)
	if err != nil {
		var tooLarge *TooLargeError
		if errors.As(err, &tooLarge) {
			return nil, err
		}
		return nil, classify(rawURL, err)
	}
	return res, nil
}

// pickFormat prefers the highest bitrate format whose size is known and fits,
// falling back to the smallest known format.
func pickFormat(formats youtube.FormatList, limit int64) (*youtube.Format, error) {
	var best, smallest *youtube.Format
	for i := range formats {
		f := &formats[i]
		if f.ContentLength <= 0 {
			continue
		}
		if smallest == nil || f.ContentLength < smallest.ContentLength {
			smallest = f
		}
		if limit > 0 && f.ContentLength > limit {
			continue
		}
		if best == nil || f.Bitrate > best.Bitrate {
			best = f
		}
	}
	if best != nil {
		return best, nil
	}
	if smallest != nil {
		return smallest, nil
	}
	if len(formats) > 0 {
		return &formats[0], nil
	}
	return nil, ErrNoFormat
}

func videoFileName(title, contentType string) string {
	name := sanitize(strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, title))
	if name == "" {
		name = "video"
	}
	ext := ".mp4"
	if _, sub, ok := strings.Cut(contentType, "/"); ok && sub != "" {
		ext = "." + sub
	}
	return name + ext
}
