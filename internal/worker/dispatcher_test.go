package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDispatcherRunsJob(t *testing.T) {
	d := NewDispatcher(1, 2, 10, time.Second, nil)
	defer d.Stop()

	want := errors.New("boom")
	err := d.Submit(context.Background(), "a", func(ctx context.Context) error { return want })
	if !errors.Is(err, want) {
		t.Fatalf("expected job error, got %v", err)
	}
	if err := d.Submit(context.Background(), "a", func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDispatcherSerializesPerKey(t *testing.T) {
	d := NewDispatcher(4, 4, 100, time.Second, nil)
	defer d.Stop()

	var (
		running int32
		overlap int32
		mu      sync.Mutex
		order   []int
		wg      sync.WaitGroup
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		i := i
		go func() {
			defer wg.Done()
			_ = d.Submit(context.Background(), "same", func(ctx context.Context) error {
				if atomic.AddInt32(&running, 1) > 1 {
					atomic.StoreInt32(&overlap, 1)
				}
				time.Sleep(10 * time.Millisecond)
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				atomic.AddInt32(&running, -1)
				return nil
			})
		}()
		time.Sleep(2 * time.Millisecond)
	}
	wg.Wait()

	if overlap != 0 {
		t.Fatalf("jobs for one key overlapped")
	}
	if len(order) != 5 {
		t.Fatalf("expected 5 jobs, got %d", len(order))
	}
}

func TestDispatcherRunsKeysConcurrently(t *testing.T) {
	d := NewDispatcher(2, 2, 10, time.Second, nil)
	defer d.Stop()

	release := make(chan struct{})
	started := make(chan string, 2)
	var wg sync.WaitGroup
	for _, key := range []string{"a", "b"} {
		wg.Add(1)
		key := key
		go func() {
			defer wg.Done()
			_ = d.Submit(context.Background(), key, func(ctx context.Context) error {
				started <- key
				<-release
				return nil
			})
		}()
	}
	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(time.Second):
			t.Fatalf("keys did not run concurrently")
		}
	}
	close(release)
	wg.Wait()
}

func TestDispatcherBusy(t *testing.T) {
	d := NewDispatcher(1, 1, 1, time.Second, nil)
	defer d.Stop()

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = d.Submit(context.Background(), "a", func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	err := d.Submit(context.Background(), "b", func(ctx context.Context) error { return nil })
	if !errors.Is(err, ErrDispatcherBusy) {
		t.Fatalf("expected busy, got %v", err)
	}
	close(release)
}

func TestDispatcherRecoversPanic(t *testing.T) {
	d := NewDispatcher(1, 1, 10, time.Second, nil)
	defer d.Stop()

	err := d.Submit(context.Background(), "a", func(ctx context.Context) error { panic("bad") })
	if err == nil {
		t.Fatalf("expected error from panicking job")
	}
	if err := d.Submit(context.Background(), "a", func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("dispatcher unusable after panic: %v", err)
	}
}

func TestDispatcherCallerCancelKeepsJob(t *testing.T) {
	d := NewDispatcher(1, 1, 10, time.Second, nil)
	defer d.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan error, 1)
	release := make(chan struct{})
	errCh := make(chan error, 1)
	go func() {
		errCh <- d.Submit(ctx, "a", func(jobCtx context.Context) error {
			<-release
			finished <- jobCtx.Err()
			return nil
		})
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected caller cancel, got %v", err)
	}
	close(release)
	select {
	case err := <-finished:
		if err != nil {
			t.Fatalf("job context should not be cancelled: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("job did not finish")
	}
}

func TestDispatcherStopDrainsAndRejects(t *testing.T) {
	d := NewDispatcher(1, 2, 10, 50*time.Millisecond, nil)

	var ran int32
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = d.Submit(context.Background(), "k", func(ctx context.Context) error {
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&ran, 1)
				return nil
			})
		}()
	}
	time.Sleep(5 * time.Millisecond)
	wg.Wait()
	d.Stop()

	if atomic.LoadInt32(&ran) != 3 {
		t.Fatalf("expected all jobs to run, got %d", ran)
	}
	if err := d.Submit(context.Background(), "k", func(ctx context.Context) error { return nil }); !errors.Is(err, ErrDispatcherStopped) {
		t.Fatalf("expected stopped, got %v", err)
	}
	if d.Pending() != 0 {
		t.Fatalf("pending jobs after stop: %d", d.Pending())
	}
}

func TestPoolShrinksToMin(t *testing.T) {
	d := NewDispatcher(1, 3, 10, 20*time.Millisecond, nil)
	defer d.Stop()

	release := make(chan struct{})
	var wg sync.WaitGroup
	for _, key := range []string{"a", "b", "c"} {
		wg.Add(1)
		key := key
		go func() {
			defer wg.Done()
			_ = d.Submit(context.Background(), key, func(ctx context.Context) error {
				<-release
				return nil
			})
		}()
	}
	time.Sleep(20 * time.Millisecond)
	if got := d.pool.size(); got != 3 {
		t.Fatalf("expected pool to grow to 3, got %d", got)
	}
	close(release)
	wg.Wait()

	deadline := time.Now().Add(time.Second)
	for d.pool.size() > 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := d.pool.size(); got != 1 {
		t.Fatalf("expected pool to shrink to 1, got %d", got)
	}
}
