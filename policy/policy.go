// Package policy ties fixed-window rotation to asynchronous S3 archival.
//
// On every successful rollover the archive that just received the rotated
// contents (the min-index slot of the fixed window) is handed to the
// upload worker. On process termination a single terminal archival action
// runs exactly once: either one final rollover plus upload, or a direct
// upload of the still-active file, followed by a bounded wait for the
// upload queue to drain.
package policy

import (
	"sync"
	"time"

	"github.com/rollarc/rollarc/logger"
	"github.com/rollarc/rollarc/pkg/metrics"
)

// DefaultDrainTimeout bounds the shutdown wait for outstanding uploads.
const DefaultDrainTimeout = 10 * time.Minute

// Roller defines the rotation operations needed by the policy.
type Roller interface {
	Rollover() error
	ArchiveFileName(index int) string
	ActiveFileName() string
	MinIndex() int
	ShouldRollover(n int) bool
	Write(p []byte) (int, error)
	Close() error
}

// Submitter defines the upload worker operations needed by the policy.
type Submitter interface {
	Submit(localPath string)
	Shutdown(timeout time.Duration) error
}

// Options configures a Policy.
type Options struct {
	// RollingOnExit selects the terminal action: a final rollover plus
	// upload of the rotated file when true, a direct upload of the
	// active file when false.
	RollingOnExit bool
	// DrainTimeout bounds the shutdown wait. Zero means DefaultDrainTimeout.
	DrainTimeout time.Duration
}

// Policy coordinates a Roller and an upload worker.
type Policy struct {
	roller        Roller
	worker        Submitter
	rollingOnExit bool
	drainTimeout  time.Duration

	mu sync.Mutex
	// shutdownOnce is the Normal -> Terminating transition: it fires at
	// most once, irreversibly.
	shutdownOnce sync.Once
}

// New creates a Policy over roller and worker.
func New(roller Roller, worker Submitter, opts Options) *Policy {
	drainTimeout := opts.DrainTimeout
	if drainTimeout == 0 {
		drainTimeout = DefaultDrainTimeout
	}
	return &Policy{
		roller:        roller,
		worker:        worker,
		rollingOnExit: opts.RollingOnExit,
		drainTimeout:  drainTimeout,
	}
}

// Rollover performs the physical rollover and, on success, queues an
// upload of the archive that now holds the rotated contents. A rollover
// failure propagates to the caller and nothing is queued.
func (p *Policy) Rollover() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.roller.Rollover(); err != nil {
		metrics.RotationsTotal.WithLabelValues("error").Inc()
		return err
	}
	metrics.RotationsTotal.WithLabelValues("success").Inc()

	// In a fixed-window scheme the min-index slot always holds the file
	// that was just rotated out.
	p.worker.Submit(p.roller.ArchiveFileName(p.roller.MinIndex()))
	return nil
}

// Write appends to the active log file, rotating first when the write
// would cross the size threshold. A failed rotation is logged and the
// write proceeds on the current active file.
func (p *Policy) Write(b []byte) (int, error) {
	if p.roller.ShouldRollover(len(b)) {
		if err := p.Rollover(); err != nil {
			logger.Error("Policy: rollover failed - continuing on active file", "error", err)
		}
	}
	return p.roller.Write(b)
}

// Shutdown runs the terminal archival sequence exactly once: the
// rollingOnExit branch, then a bounded drain of the upload queue, then
// closing the active file. Every failure is captured and logged, never
// returned, so nothing can keep the process from exiting. Subsequent
// calls are no-ops.
func (p *Policy) Shutdown() {
	p.shutdownOnce.Do(p.terminate)
}

func (p *Policy) terminate() {
	logger.Info("Policy: terminating", "rolling_on_exit", p.rollingOnExit, "drain_timeout", p.drainTimeout)

	if p.rollingOnExit {
		if err := p.Rollover(); err != nil {
			logger.Error("Policy: final rollover failed", "error", err)
		}
	} else {
		p.mu.Lock()
		p.worker.Submit(p.roller.ActiveFileName())
		p.mu.Unlock()
	}

	if err := p.worker.Shutdown(p.drainTimeout); err != nil {
		logger.Error("Policy: failed to drain uploads before exit", "error", err)
	}

	if err := p.roller.Close(); err != nil {
		logger.Warn("Policy: failed to close active file", "error", err)
	}
}
