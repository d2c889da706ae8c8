// Package uploader implements the asynchronous upload worker that archives
// rotated log segments to the object store.
//
// A single dedicated goroutine drains a strictly FIFO queue, so uploads
// reach the store in submission order and at most one upload is in flight
// at any time. The queue is unbounded by default: Submit never blocks the
// rotation path, at the cost of unbounded memory growth if uploads lag
// rotations indefinitely. A positive queue size bounds the queue and makes
// Submit apply backpressure instead.
package uploader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rollarc/rollarc/logger"
	"github.com/rollarc/rollarc/pkg/metrics"
)

// ObjectStore defines the object store operation needed by the worker.
type ObjectStore interface {
	PutFile(ctx context.Context, key, localPath string) error
}

// Request is a single pending upload.
type Request struct {
	LocalPath string
	Key       string
}

// Options configures a Worker.
type Options struct {
	// Folder is an optional object key prefix.
	Folder string
	// QueueSize bounds the queue when positive. Zero keeps it unbounded.
	QueueSize int
}

// Worker owns the upload queue and its single consumer goroutine.
type Worker struct {
	store     ObjectStore
	folder    string
	queueSize int

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []Request
	busy     bool
	draining bool
	exited   bool
	running  bool

	notifyCh chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a Worker uploading through store.
func New(store ObjectStore, opts Options) *Worker {
	w := &Worker{
		store:     store,
		folder:    opts.Folder,
		queueSize: opts.QueueSize,
		notifyCh:  make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
	}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// BuildKey derives the object key for a local file: the configured folder
// prefix joined with the file's base name, or just the base name when no
// folder is configured.
func BuildKey(folder, localPath string) string {
	base := filepath.Base(localPath)
	if folder != "" {
		return folder + "/" + base
	}
	return base
}

// Start launches the consumer goroutine. Calling Start on a running worker
// is a no-op.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	w.wg.Add(1)
	go w.run(ctx)

	logger.Info("Uploader: worker started")
}

// Submit enqueues an upload for the file at localPath. Files that do not
// exist or are empty are skipped silently; this is policy, not an error.
// With an unbounded queue Submit never blocks beyond the enqueue itself.
func (w *Worker) Submit(localPath string) {
	info, err := os.Stat(localPath)
	if err != nil {
		metrics.UploadsSkipped.WithLabelValues("missing").Inc()
		logger.Debug("Uploader: skipping missing file", "path", localPath)
		return
	}
	if info.Size() == 0 {
		metrics.UploadsSkipped.WithLabelValues("empty").Inc()
		logger.Debug("Uploader: skipping empty file", "path", localPath)
		return
	}

	req := Request{
		LocalPath: localPath,
		Key:       BuildKey(w.folder, localPath),
	}

	w.mu.Lock()
	if w.draining || w.exited {
		w.mu.Unlock()
		logger.Warn("Uploader: submission after shutdown dropped", "path", localPath)
		return
	}
	for w.queueSize > 0 && len(w.queue) >= w.queueSize && !w.draining && !w.exited {
		w.cond.Wait()
	}
	if w.draining || w.exited {
		w.mu.Unlock()
		logger.Warn("Uploader: submission after shutdown dropped", "path", localPath)
		return
	}
	w.queue = append(w.queue, req)
	metrics.UploadQueueDepth.Set(float64(len(w.queue)))
	w.mu.Unlock()

	logger.Info("Uploader: upload queued", "path", localPath, "key", req.Key)
	w.notify()
}

// notify wakes the consumer without blocking if a signal is already pending.
func (w *Worker) notify() {
	select {
	case w.notifyCh <- struct{}{}:
	default:
	}
}

func (w *Worker) run(ctx context.Context) {
	defer func() {
		w.mu.Lock()
		w.running = false
		w.exited = true
		w.cond.Broadcast()
		w.mu.Unlock()
		w.wg.Done()
	}()

	for {
		req, ok := w.next()
		if ok {
			w.process(ctx, req)
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-w.notifyCh:
		}
	}
}

// next pops the oldest request. When the queue is empty it marks the
// worker idle and wakes any drain waiter.
func (w *Worker) next() (Request, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.queue) == 0 {
		w.busy = false
		w.cond.Broadcast()
		return Request{}, false
	}

	req := w.queue[0]
	w.queue = w.queue[1:]
	w.busy = true
	metrics.UploadQueueDepth.Set(float64(len(w.queue)))
	w.cond.Broadcast()
	return req, true
}

// process performs one blocking upload. Failures are logged and the
// request is discarded; the worker moves on to the next one.
func (w *Worker) process(ctx context.Context, req Request) {
	logger.Info("Uploader: uploading", "path", req.LocalPath, "key", req.Key)

	start := time.Now()
	err := w.store.PutFile(ctx, req.Key, req.LocalPath)
	metrics.UploadWorkerDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.UploadWorkerJobs.WithLabelValues("failure").Inc()
		logger.Error("Uploader: upload failed - request discarded", "path", req.LocalPath, "key", req.Key, "error", err)
		return
	}

	metrics.UploadWorkerJobs.WithLabelValues("success").Inc()
	logger.Info("Uploader: upload completed", "path", req.LocalPath, "key", req.Key)
}

// Shutdown blocks until the queue drains and the worker is idle, or until
// timeout elapses. On a clean drain the worker is stopped and nil is
// returned. On timeout the remaining requests are abandoned, the worker is
// force-stopped and an error is returned; an upload already handed to the
// store is not interrupted.
func (w *Worker) Shutdown(timeout time.Duration) error {
	w.mu.Lock()
	w.draining = true
	w.cond.Broadcast()
	w.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		w.mu.Lock()
		for (len(w.queue) > 0 || w.busy) && !w.exited {
			w.cond.Wait()
		}
		w.mu.Unlock()
		close(drained)
	}()

	select {
	case <-drained:
		w.mu.Lock()
		abandoned := len(w.queue)
		w.mu.Unlock()
		w.Stop()
		if abandoned > 0 {
			return fmt.Errorf("worker stopped with %d request(s) still queued", abandoned)
		}
		return nil
	case <-time.After(timeout):
		abandoned := w.forceStop()
		return fmt.Errorf("upload queue did not drain within %s, %d request(s) abandoned", timeout, abandoned)
	}
}

// Stop stops the worker and waits for its goroutine to finish. Safe to
// call multiple times.
func (w *Worker) Stop() {
	w.mu.Lock()
	if w.exited {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()

	logger.Info("Uploader: worker stopped")
}

// forceStop drops all queued requests and signals the worker to exit
// without waiting for it, so a hung in-flight upload cannot block the
// caller. Returns the number of dropped requests.
func (w *Worker) forceStop() int {
	w.mu.Lock()
	abandoned := len(w.queue)
	w.queue = nil
	metrics.UploadQueueDepth.Set(0)
	w.cond.Broadcast()
	w.mu.Unlock()

	w.stopOnce.Do(func() { close(w.stopCh) })
	return abandoned
}

// QueueDepth returns the number of requests currently waiting.
func (w *Worker) QueueDepth() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}
