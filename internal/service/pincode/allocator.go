package pincode

import (
	"context"
	"errors"
	"fmt"

	"pdbot/internal/models"
	"pdbot/internal/service/records"
)

const DefaultMaxAttempts = 32

// ErrCapacityExhausted is returned when no free code was found within the attempt budget.
var ErrCapacityExhausted = errors.New("no free access code available")

// RecordStore is the subset of the record store the allocator needs.
type RecordStore interface {
	Exists(ctx context.Context, code string) (bool, error)
	Create(ctx context.Context, rec *models.FileRecord) error
}

// Allocator hands out access codes that are not yet assigned.
type Allocator struct {
	store       RecordStore
	gen         *Generator
	length      int
	maxAttempts int
	widenAfter  int
}

// Option tweaks an Allocator.
type Option func(*Allocator)

// WithLength sets the base code length.
func WithLength(n int) Option {
	return func(a *Allocator) {
		if n > 0 {
			a.length = n
		}
	}
}

// WithMaxAttempts caps how many candidates are tried.
func WithMaxAttempts(n int) Option {
	return func(a *Allocator) {
		if n > 0 {
			a.maxAttempts = n
		}
	}
}

// WithWidenAfter makes every attempt past n one character longer. Zero disables widening.
func WithWidenAfter(n int) Option {
	return func(a *Allocator) {
		if n >= 0 {
			a.widenAfter = n
		}
	}
}

// WithGenerator replaces the code generator.
func WithGenerator(g *Generator) Option {
	return func(a *Allocator) {
		if g != nil {
			a.gen = g
		}
	}
}

// NewAllocator builds an allocator over store.
func NewAllocator(store RecordStore, opts ...Option) *Allocator {
	a := &Allocator{
		store:       store,
		gen:         NewGenerator(),
		length:      DefaultLength,
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Allocator) lengthFor(attempt int) int {
	if a.widenAfter > 0 && attempt > a.widenAfter {
		return a.length + (attempt - a.widenAfter)
	}
	return a.length
}

// AllocateUniqueCode returns a code that Exists reported as free.
func (a *Allocator) AllocateUniqueCode(ctx context.Context) (string, error) {
	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		code, taken, err := a.try(ctx, attempt)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", ErrCapacityExhausted
}

func (a *Allocator) try(ctx context.Context, attempt int) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	code, err := a.gen.Generate(a.lengthFor(attempt))
	if err != nil {
		return "", false, err
	}
	taken, err := a.store.Exists(ctx, code)
	if err != nil {
		return "", false, fmt.Errorf("check code: %w", err)
	}
	return code, taken, nil
}

// Mint assigns a fresh code to rec and persists it. A concurrent writer
// claiming the same code costs one attempt.
func (a *Allocator) Mint(ctx context.Context, rec *models.FileRecord) (string, error) {
	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		code, taken, err := a.try(ctx, attempt)
		if err != nil {
			return "", err
		}
		if taken {
			continue
		}
		rec.AccessCode = code
		err = a.store.Create(ctx, rec)
		if err == nil {
			return code, nil
		}
		if !errors.Is(err, records.ErrCodeTaken) {
			rec.AccessCode = ""
			return "", fmt.Errorf("store record: %w", err)
		}
	}
	rec.AccessCode = ""
	return "", ErrCapacityExhausted
}
