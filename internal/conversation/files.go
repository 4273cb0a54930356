package conversation

import (
	"context"
	"errors"
	"fmt"

	"pdbot/internal/models"
	"pdbot/internal/notifier"
	"pdbot/internal/service/ai"
	"pdbot/internal/service/fetcher"

	"go.uber.org/zap"
)

// localFile is a record's content on local disk. Downloaded copies are
// removed by release; stored local files are left alone.
type localFile struct {
	Path        string
	Name        string
	ContentType string
	download    *fetcher.Result
}

func (l *localFile) release(logger *zap.Logger) {
	if l == nil || l.download == nil {
		return
	}
	if err := l.download.Cleanup(); err != nil {
		logger.Warn("remove download failed", zap.String("path", l.download.Path), zap.Error(err))
	}
}

type fileMaterializer struct {
	notifiers *notifier.Registry
	fetcher   Downloader
	maxBytes  int64
}

// materialize produces a local copy of the record's content, resolving
// platform file ids through the owning platform.
func (m *fileMaterializer) materialize(ctx context.Context, rec *models.FileRecord) (*localFile, error) {
	switch rec.StorageKind {
	case models.StorageLocal:
		return &localFile{Path: rec.StorageRef, Name: rec.DisplayName, ContentType: rec.ContentType}, nil
	case models.StorageURL:
		return m.fetch(ctx, rec.StorageRef, rec)
	case models.StoragePlatformFile:
		resolver, ok := m.notifiers.Resolver(rec.Platform)
		if !ok {
			return nil, fmt.Errorf("no file resolver for platform %s", rec.Platform)
		}
		link, err := resolver.FileURL(ctx, rec.StorageRef)
		if err != nil {
			return nil, err
		}
		return m.fetch(ctx, link, rec)
	default:
		return nil, fmt.Errorf("unknown storage kind %q", rec.StorageKind)
	}
}

func (m *fileMaterializer) fetch(ctx context.Context, link string, rec *models.FileRecord) (*localFile, error) {
	res, err := m.fetcher.Fetch(ctx, link, m.maxBytes)
	if err != nil {
		return nil, err
	}
	name := rec.DisplayName
	if name == "" {
		name = res.Name
	}
	contentType := rec.ContentType
	if contentType == "" {
		contentType = res.ContentType
	}
	return &localFile{Path: res.Path, Name: name, ContentType: contentType, download: res}, nil
}

// SharedFiles exposes stored files to the AI assistant's file reader tool.
type SharedFiles struct {
	records RecordReader
	files   *fileMaterializer
	logger  *zap.Logger
}

// NewSharedFiles builds a file source over the record store.
func NewSharedFiles(records RecordReader, notifiers *notifier.Registry, dl Downloader, maxBytes int64, logger *zap.Logger) *SharedFiles {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SharedFiles{
		records: records,
		files:   &fileMaterializer{notifiers: notifiers, fetcher: dl, maxBytes: maxBytes},
		logger:  logger.Named("shared_files"),
	}
}

// OpenShared implements ai.FileSource.
func (s *SharedFiles) OpenShared(ctx context.Context, code string) (*ai.SharedFile, error) {
	code = normalizeCode(code)
	if code == "" {
		return nil, errors.New("access code required")
	}
	rec, err := s.records.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	local, err := s.files.materialize(ctx, rec)
	if err != nil {
		return nil, err
	}
	return &ai.SharedFile{
		Path:        local.Path,
		Name:        local.Name,
		ContentType: local.ContentType,
		Cleanup:     func() { local.release(s.logger) },
	}, nil
}
