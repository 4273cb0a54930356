package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	SharedFileChunkSizeDefault = 1000
	SharedFileChunkSizeMin     = 500
	SharedFileChunkSizeMax     = 2000
	SharedFileRateLimit        = 3
	SharedFileRateWindow       = time.Minute
	WebSearchHTTPTimeout       = 10 * time.Second
)

type senderContextKey struct{}

type toolRateLimiter struct {
	limit  int
	window time.Duration
	mu     sync.Mutex
	hits   map[string][]time.Time
}

func newToolRateLimiter(limit int, window time.Duration) *toolRateLimiter {
	return &toolRateLimiter{limit: limit, window: window, hits: make(map[string][]time.Time)}
}

func (l *toolRateLimiter) Allow(key string) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	queue := l.hits[key]
	cutoff := now.Add(-l.window)
	idx := 0
	for _, t := range queue {
		if t.After(cutoff) {
			break
		}
		idx++
	}
	if idx > 0 {
		queue = queue[idx:]
	}
	if len(queue) >= l.limit {
		l.hits[key] = queue
		return false
	}
	queue = append(queue, now)
	l.hits[key] = queue
	return true
}

// WithSender attaches the sender key used to scope tool rate limits.
func WithSender(ctx context.Context, senderKey string) context.Context {
	if senderKey == "" {
		return ctx
	}
	return context.WithValue(ctx, senderContextKey{}, senderKey)
}

// SenderFromContext returns the sender key set by WithSender.
func SenderFromContext(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(senderContextKey{}).(string)
	return key, ok && key != ""
}

func (w *webSearchTool) fetchURL(ctx context.Context, target string) (string, error) {
	if w.httpClient == nil {
		w.httpClient = &http.Client{Timeout: WebSearchHTTPTimeout}
	}

	parsed, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", errors.New("unsupported url scheme")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "PDBOT-WebSearch/1.0")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch url: %s", resp.Status)
	}

	const maxBodySize = 512 * 1024
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", err
	}

	return string(body), nil
}

func looksLikeURL(input string) bool {
	lower := strings.ToLower(input)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// chunkText splits text into rune chunks and returns the requested one,
// clamping index and size into range.
func chunkText(text string, index, size int) (segment string, chunk, total int) {
	if size <= 0 || size > SharedFileChunkSizeMax {
		size = SharedFileChunkSizeDefault
	}
	if size < SharedFileChunkSizeMin {
		size = SharedFileChunkSizeMin
	}
	if index < 0 {
		index = 0
	}
	runes := []rune(text)
	total = (len(runes) + size - 1) / size
	if total == 0 {
		return "", 0, 0
	}
	if index >= total {
		index = total - 1
	}
	start := index * size
	end := start + size
	if end > len(runes) {
		end = len(runes)
	}
	return string(runes[start:end]), index, total
}
