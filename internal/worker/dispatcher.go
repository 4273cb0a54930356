package worker

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrDispatcherBusy is returned when the queue is full.
	ErrDispatcherBusy = errors.New("dispatcher busy")
	// ErrDispatcherStopped is returned after Stop.
	ErrDispatcherStopped = errors.New("dispatcher stopped")
)

// Job is one unit of work for a key.
type Job struct {
	Key    string
	ctx    context.Context
	run    func(ctx context.Context) error
	result chan error
	stop   bool
}

type keyQueue struct {
	jobs     []Job
	enqueued bool // key is in the ready list
	running  bool // a job of this key is on a worker
}

// Dispatcher runs jobs on a bounded worker pool. Jobs sharing a key run one
// at a time in submission order; keys are served round-robin.
type Dispatcher struct {
	pool   *jobChannelPool
	logger *zap.Logger

	mu        sync.Mutex
	wake      *sync.Cond
	queues    map[string]*keyQueue // job queue for each key
	ready     *list.List           // keys with a runnable job, LRU order
	positions map[string]*list.Element
	pending   int // queued plus running jobs
	maxQueue  int
	stopped   bool
	done      chan struct{}
}

// NewDispatcher starts the dispatch loop and warms up minWorkers workers.
func NewDispatcher(minWorkers, maxWorkers, queueSize int, idleTimeout time.Duration, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if minWorkers <= 0 {
		minWorkers = 1
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	d := &Dispatcher{
		queues:    make(map[string]*keyQueue),
		ready:     list.New(),
		positions: make(map[string]*list.Element),
		maxQueue:  queueSize,
		logger:    logger.Named("dispatcher"),
		done:      make(chan struct{}),
	}
	d.wake = sync.NewCond(&d.mu)
	d.pool = newJobChannelPool(minWorkers, maxWorkers, idleTimeout, d)

	// Warm up workers.
	for i := 0; i < minWorkers; i++ {
		d.pool.spawnWorker()
	}

	go d.run()
	return d
}

// Submit queues fn under key and waits for it to finish. The job keeps
// running if ctx ends first; only the wait is abandoned.
func (d *Dispatcher) Submit(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	job := Job{Key: key, ctx: context.WithoutCancel(ctx), run: fn, result: make(chan error, 1)}
	if err := d.enqueueJob(job); err != nil {
		return err
	}
	select {
	case err := <-job.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) enqueueJob(job Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return ErrDispatcherStopped
	}
	if d.pending >= d.maxQueue {
		return ErrDispatcherBusy
	}
	q := d.queues[job.Key]
	if q == nil {
		q = &keyQueue{}
		d.queues[job.Key] = q
	}
	q.jobs = append(q.jobs, job)
	d.pending++
	d.markReadyLocked(job.Key, q)
	d.wake.Broadcast()
	return nil
}

func (d *Dispatcher) markReadyLocked(key string, q *keyQueue) {
	if q.enqueued || q.running || len(q.jobs) == 0 {
		return
	}
	q.enqueued = true
	d.positions[key] = d.ready.PushBack(key)
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		for d.ready.Len() == 0 && !(d.stopped && d.pending == 0) {
			d.wake.Wait()
		}
		if d.ready.Len() == 0 {
			d.mu.Unlock()
			return
		}
		job := d.takeLocked()
		d.mu.Unlock()

		workerChan := d.pool.acquire()
		d.logger.Debug("assign job", zap.String("key", job.Key), zap.Int("worker", d.pool.workerID(workerChan)))
		workerChan <- job
	}
}

// takeLocked pops the first job of the key at the front of the ready list.
func (d *Dispatcher) takeLocked() Job {
	elem := d.ready.Front()
	key := elem.Value.(string)
	d.ready.Remove(elem)
	delete(d.positions, key)

	q := d.queues[key]
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	q.enqueued = false
	q.running = true
	return job
}

// finish is called by a worker after a job completes.
func (d *Dispatcher) finish(job Job, err error) {
	job.result <- err

	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending--
	if q := d.queues[job.Key]; q != nil {
		q.running = false
		if len(q.jobs) == 0 {
			delete(d.queues, job.Key)
		} else {
			// back of the line so other keys get a turn
			d.markReadyLocked(job.Key, q)
		}
	}
	d.wake.Broadcast()
}

func (d *Dispatcher) execute(job Job) {
	var err error
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("job panicked", zap.String("key", job.Key), zap.Any("panic", r))
			err = fmt.Errorf("job %s panicked: %v", job.Key, r)
		}
		d.finish(job, err)
	}()
	err = job.run(job.ctx)
}

// Pending returns the number of queued and running jobs.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Stop rejects new jobs, waits for queued jobs to drain and retires workers.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.stopped = true
	d.wake.Broadcast()
	for d.pending > 0 {
		d.wake.Wait()
	}
	d.wake.Broadcast()
	d.mu.Unlock()

	<-d.done
	d.pool.close()
}
