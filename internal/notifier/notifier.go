package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"pdbot/internal/models"
)

var (
	// ErrSendFailed wraps every outbound delivery failure.
	ErrSendFailed = errors.New("send failed")
	// ErrUnknownPlatform is returned for platforms without a registered notifier.
	ErrUnknownPlatform = errors.New("no notifier for platform")
)

// File describes an outbound attachment. Exactly one of LocalPath,
// PlatformID or URL is used, in that order of preference.
type File struct {
	LocalPath  string
	PlatformID string
	URL        string
	Name       string
	Mime       string
	Kind       models.AttachmentKind
	Size       int64
	Caption    string
}

// Notifier delivers messages to one platform.
type Notifier interface {
	SendText(ctx context.Context, to, text string) error
	SendFile(ctx context.Context, to string, file File) error
}

// FileURLResolver turns a platform file id into a downloadable URL.
type FileURLResolver interface {
	FileURL(ctx context.Context, fileID string) (string, error)
}

// Observer records delivery outcomes.
type Observer interface {
	OutboundMessage(platform, result string)
}

func sendError(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrSendFailed, err)
}

// Registry maps platforms to notifiers.
type Registry struct {
	mu        sync.RWMutex
	notifiers map[models.Platform]Notifier
	observer  Observer
}

// NewRegistry creates an empty registry. observer may be nil.
func NewRegistry(observer Observer) *Registry {
	return &Registry{notifiers: make(map[models.Platform]Notifier), observer: observer}
}

// Register binds n to platform, replacing any previous binding.
func (r *Registry) Register(platform models.Platform, n Notifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifiers[platform] = n
}

// Get returns the notifier for platform wrapped with outcome observation.
func (r *Registry) Get(platform models.Platform) (Notifier, error) {
	r.mu.RLock()
	n, ok := r.notifiers[platform]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlatform, platform)
	}
	if r.observer == nil {
		return n, nil
	}
	return &observed{inner: n, platform: string(platform), observer: r.observer}, nil
}

// Resolver returns the file URL resolver for platform if its notifier has one.
func (r *Registry) Resolver(platform models.Platform) (FileURLResolver, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.notifiers[platform].(FileURLResolver)
	return res, ok
}

type observed struct {
	inner    Notifier
	platform string
	observer Observer
}

func (o *observed) SendText(ctx context.Context, to, text string) error {
	err := o.inner.SendText(ctx, to, text)
	o.observer.OutboundMessage(o.platform, result(err))
	return err
}

func (o *observed) SendFile(ctx context.Context, to string, file File) error {
	err := o.inner.SendFile(ctx, to, file)
	o.observer.OutboundMessage(o.platform, result(err))
	return err
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
