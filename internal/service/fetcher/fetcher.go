package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	ChunkSize       = 32 * 1024
	DefaultFileName = "download.bin"
)

// Result is a downloaded file on local disk.
type Result struct {
	Path        string
	Name        string
	ContentType string
	Size        int64
}

// Cleanup removes the downloaded file.
func (r *Result) Cleanup() error {
	if r == nil || r.Path == "" {
		return nil
	}
	if err := os.Remove(r.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Fetcher streams remote files into a temp directory under a size ceiling.
type Fetcher struct {
	client  *http.Client
	tempDir string
	logger  *zap.Logger
}

// New creates a fetcher. A nil client gets NewPublicClient(timeout), which
// refuses loopback and private destinations.
func New(client *http.Client, tempDir string, timeout time.Duration, logger *zap.Logger) (*Fetcher, error) {
	if client == nil {
		client = NewPublicClient(timeout)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	return &Fetcher{client: client, tempDir: tempDir, logger: logger.Named("fetcher")}, nil
}

// Fetch downloads rawURL, rejecting bodies larger than limit bytes.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, limit int64) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, URL: rawURL, Err: err}
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classify(rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{Kind: KindStatus, URL: rawURL, Status: resp.StatusCode}
	}

	name := fileName(resp.Header.Get("Content-Disposition"), resp.Request.URL)
	res, err := f.FetchStream(ctx, resp.Body, name, resp.Header.Get("Content-Type"), resp.ContentLength, limit)
	if err != nil {
		var tooLarge *TooLargeError
		if errors.As(err, &tooLarge) {
			return nil, err
		}
		return nil, classify(rawURL, err)
	}
	return res, nil
}

// FetchStream copies r into a temp file under the same size policy as Fetch.
// declared is the advertised length, or -1 when unknown.
func (f *Fetcher) FetchStream(ctx context.Context, r io.Reader, name, contentType string, declared, limit int64) (*Result, error) {
	if limit > 0 && declared > limit {
		return nil, &TooLargeError{Limit: limit, Size: declared}
	}
	if name == "" {
		name = DefaultFileName
	}

	tmpPath := filepath.Join(f.tempDir, uuid.NewString()+filepath.Ext(name))
	out, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}

	written, err := copyLimited(ctx, out, r, limit)
	closeErr := out.Close()
	if err == nil && closeErr != nil {
		err = fmt.Errorf("close temp file: %w", closeErr)
	}
	if err != nil {
		if rmErr := os.Remove(tmpPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			f.logger.Warn("remove partial download", zap.String("path", tmpPath), zap.Error(rmErr))
		}
		return nil, err
	}

	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(name))
	}
	if mediaType, _, perr := mime.ParseMediaType(contentType); perr == nil {
		contentType = mediaType
	}
	f.logger.Debug("download complete", zap.String("name", name), zap.Int64("bytes", written))
	return &Result{Path: tmpPath, Name: name, ContentType: contentType, Size: written}, nil
}

func copyLimited(ctx context.Context, dst io.Writer, src io.Reader, limit int64) (int64, error) {
	buf := make([]byte, ChunkSize)
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, rerr := src.Read(buf)
		if n > 0 {
			total += int64(n)
			if limit > 0 && total > limit {
				return total, &TooLargeError{Limit: limit, Size: total}
			}
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return total, fmt.Errorf("write temp file: %w", werr)
			}
		}
		if rerr == io.EOF {
			return total, nil
		}
		if rerr != nil {
			return total, rerr
		}
	}
}

func classify(rawURL string, err error) error {
	var ferr *Error
	if errors.As(err, &ferr) {
		return err
	}
	kind := KindNetwork
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = KindTimeout
	}
	return &Error{Kind: kind, URL: rawURL, Err: err}
}

// fileName prefers Content-Disposition, then the last URL path segment.
func fileName(disposition string, u *url.URL) string {
	if disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil {
			if name := sanitize(params["filename"]); name != "" {
				return name
			}
		}
	}
	if u != nil {
		if name := sanitize(path.Base(u.Path)); name != "" {
			return name
		}
	}
	return DefaultFileName
}

func sanitize(name string) string {
	name = strings.TrimSpace(name)
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	switch name {
	case "", ".", "/", "..":
		return ""
	}
	return name
}
