package pincode

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"pdbot/internal/models"
	"pdbot/internal/service/records"
)

type stubStore struct {
	mu        sync.Mutex
	taken     map[string]bool
	existsErr error
	// codes reported free by Exists but rejected by Create
	raceLosses int
	checked    []string
	created    []string
}

func newStubStore() *stubStore {
	return &stubStore{taken: make(map[string]bool)}
}

func (s *stubStore) Exists(_ context.Context, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checked = append(s.checked, code)
	if s.existsErr != nil {
		return false, s.existsErr
	}
	return s.taken[code], nil
}

func (s *stubStore) Create(_ context.Context, rec *models.FileRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.raceLosses > 0 {
		s.raceLosses--
		return records.ErrCodeTaken
	}
	if s.taken[rec.AccessCode] {
		return records.ErrCodeTaken
	}
	s.taken[rec.AccessCode] = true
	s.created = append(s.created, rec.AccessCode)
	return nil
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy gone") }

func TestGenerateLengthAndAlphabet(t *testing.T) {
	gen := NewGenerator()
	for i := 0; i < 200; i++ {
		code, err := gen.Generate(6)
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("unexpected length %d (%s)", len(code), code)
		}
		for _, r := range code {
			if !strings.ContainsRune(Alphabet, r) {
				t.Fatalf("character %q outside alphabet in %s", r, code)
			}
		}
	}
	code, err := gen.Generate(0)
	if err != nil || len(code) != DefaultLength {
		t.Fatalf("default length: %q err=%v", code, err)
	}
}

func TestGenerateRejectsBiasedBytes(t *testing.T) {
	// 252..255 are skipped; 0 maps to 'A', 35 maps to '9'
	src := bytes.NewReader([]byte{255, 252, 0, 35, 36, 253, 0, 0, 0, 0})
	code, err := NewGeneratorFrom(src).Generate(3)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if code != "A9A" {
		t.Fatalf("expected A9A, got %s", code)
	}
}

func TestGenerateEntropyFailure(t *testing.T) {
	if _, err := NewGeneratorFrom(failingReader{}).Generate(6); err == nil {
		t.Fatalf("expected entropy error")
	}
}

func TestAllocateSkipsTakenCodes(t *testing.T) {
	store := newStubStore()
	// A deterministic source: first candidate "AAAAAA", second "BBBBBB"
	src := bytes.NewReader(append(bytes.Repeat([]byte{0}, 12), bytes.Repeat([]byte{1}, 12)...))
	store.taken["AAAAAA"] = true

	alloc := NewAllocator(store, WithGenerator(NewGeneratorFrom(src)))
	code, err := alloc.AllocateUniqueCode(context.Background())
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if code != "BBBBBB" {
		t.Fatalf("expected BBBBBB, got %s", code)
	}
	if store.taken[code] {
		t.Fatalf("returned a taken code")
	}
}

func TestAllocateExhausted(t *testing.T) {
	store := newStubStore()
	src := bytes.NewReader(bytes.Repeat([]byte{0}, 1024))
	store.taken["AAAAAA"] = true

	alloc := NewAllocator(store, WithGenerator(NewGeneratorFrom(src)), WithMaxAttempts(4))
	_, err := alloc.AllocateUniqueCode(context.Background())
	if !errors.Is(err, ErrCapacityExhausted) {
		t.Fatalf("expected ErrCapacityExhausted, got %v", err)
	}
	if len(store.checked) != 4 {
		t.Fatalf("expected 4 attempts, got %d", len(store.checked))
	}
}

func TestAllocateWidens(t *testing.T) {
	store := newStubStore()
	src := bytes.NewReader(bytes.Repeat([]byte{0}, 1024))
	store.taken["AAAAAA"] = true

	alloc := NewAllocator(store, WithGenerator(NewGeneratorFrom(src)), WithWidenAfter(2))
	code, err := alloc.AllocateUniqueCode(context.Background())
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if code != "AAAAAAA" {
		t.Fatalf("expected widened code, got %s", code)
	}
}

func TestAllocateStoreError(t *testing.T) {
	store := newStubStore()
	store.existsErr = records.ErrStoreUnavailable
	_, err := NewAllocator(store).AllocateUniqueCode(context.Background())
	if !errors.Is(err, records.ErrStoreUnavailable) {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestMintRetriesOnConflict(t *testing.T) {
	store := newStubStore()
	store.raceLosses = 2
	alloc := NewAllocator(store)
	rec := &models.FileRecord{StorageKind: models.StorageURL, StorageRef: "https://x/y"}

	code, err := alloc.Mint(context.Background(), rec)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if rec.AccessCode != code || len(code) != DefaultLength {
		t.Fatalf("unexpected code %q on record %q", code, rec.AccessCode)
	}
	if len(store.checked) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(store.checked))
	}
}

func TestMintExhausted(t *testing.T) {
	store := newStubStore()
	store.raceLosses = 100
	rec := &models.FileRecord{StorageRef: "ref"}
	_, err := NewAllocator(store, WithMaxAttempts(3)).Mint(context.Background(), rec)
	if !errors.Is(err, ErrCapacityExhausted) {
		t.Fatalf("expected ErrCapacityExhausted, got %v", err)
	}
	if rec.AccessCode != "" {
		t.Fatalf("record should not keep a code")
	}
}
