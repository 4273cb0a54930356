package fetcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultTempFileTTL         = time.Hour
	DefaultTempCleanupInterval = 10 * time.Minute
)

// StartTempCleaner removes temp files older than ttl until ctx ends. Every
// flow removes its own files; this catches files left behind by a crash.
// Only files named by FetchStream are touched, so temp_dir may be shared.
func (f *Fetcher) StartTempCleaner(ctx context.Context, interval, ttl time.Duration) {
	if interval <= 0 {
		interval = DefaultTempCleanupInterval
	}
	if ttl <= 0 {
		ttl = DefaultTempFileTTL
	}
	go f.cleanupLoop(ctx, interval, ttl)
}

func (f *Fetcher) cleanupLoop(ctx context.Context, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := f.cleanupExpiredFiles(time.Now().Add(-ttl)); err != nil {
				f.logger.Warn("cleanup temp files", zap.Error(err))
			} else if n > 0 {
				f.logger.Info("removed stale temp files", zap.Int("count", n))
			}
		}
	}
}

func (f *Fetcher) cleanupExpiredFiles(cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(f.tempDir)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !ownedTempName(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(f.tempDir, entry.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			f.logger.Warn("remove temp file", zap.String("path", path), zap.Error(err))
			continue
		}
		removed++
	}
	return removed, nil
}

// ownedTempName matches the <uuid><ext> names FetchStream creates.
func ownedTempName(name string) bool {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	if len(base) != 36 {
		return false
	}
	_, err := uuid.Parse(base)
	return err == nil
}
