// Package rotation implements fixed-window log file rotation.
//
// The active file keeps a stable name; archives occupy a bounded set of
// numbered slots from MinIndex to MaxIndex ("file.1" .. "file.7"). Each
// rollover discards the archive at MaxIndex, shifts every other archive up
// by one and renames the active file into the MinIndex slot, so the
// MinIndex slot always holds the most recently rotated contents.
package rotation

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Options configures a FixedWindowRoller.
type Options struct {
	// File is the active log file path.
	File string
	// MinIndex and MaxIndex bound the archive window. MinIndex must be at
	// least 1 and MaxIndex must not be below MinIndex.
	MinIndex int
	MaxIndex int
	// MaxSize is the size threshold in bytes used by ShouldRollover.
	// Zero disables the size trigger.
	MaxSize int64
}

// FixedWindowRoller owns the active log file and performs fixed-window
// rollovers. All methods are safe for concurrent use.
type FixedWindowRoller struct {
	mu   sync.Mutex
	opts Options
	file *os.File
	size int64
}

// NewFixedWindowRoller creates a roller and opens the active file for
// appending, creating it and its directory if needed.
func NewFixedWindowRoller(opts Options) (*FixedWindowRoller, error) {
	if opts.File == "" {
		return nil, fmt.Errorf("active file path is required")
	}
	if opts.MinIndex < 1 {
		return nil, fmt.Errorf("min index must be at least 1, got %d", opts.MinIndex)
	}
	if opts.MaxIndex < opts.MinIndex {
		return nil, fmt.Errorf("max index %d must not be below min index %d", opts.MaxIndex, opts.MinIndex)
	}

	r := &FixedWindowRoller{opts: opts}
	if err := r.openFile(); err != nil {
		return nil, err
	}
	return r, nil
}

// ActiveFileName returns the path of the active log file.
func (r *FixedWindowRoller) ActiveFileName() string {
	return r.opts.File
}

// ArchiveFileName returns the path of the archive slot at index.
func (r *FixedWindowRoller) ArchiveFileName(index int) string {
	return fmt.Sprintf("%s.%d", r.opts.File, index)
}

// MinIndex returns the lowest archive slot index. After a successful
// rollover this slot holds the most recently rotated contents.
func (r *FixedWindowRoller) MinIndex() int {
	return r.opts.MinIndex
}

// MaxIndex returns the highest archive slot index.
func (r *FixedWindowRoller) MaxIndex() int {
	return r.opts.MaxIndex
}

// Write appends to the active file.
func (r *FixedWindowRoller) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return 0, fmt.Errorf("roller is closed")
	}
	n, err := r.file.Write(p)
	r.size += int64(n)
	return n, err
}

// ShouldRollover reports whether writing n more bytes would cross the size
// threshold. Always false when no threshold is configured.
func (r *FixedWindowRoller) ShouldRollover(n int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.opts.MaxSize <= 0 {
		return false
	}
	return r.size+int64(n) >= r.opts.MaxSize
}

// Rollover closes the active file, shifts the archive window and reopens a
// fresh active file. On failure the roller attempts to reopen the active
// file so logging can continue, and returns the rollover error.
func (r *FixedWindowRoller) Rollover() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		if err := r.file.Close(); err != nil {
			return fmt.Errorf("failed to close active file %s: %w", r.opts.File, err)
		}
		r.file = nil
	}

	if err := r.shiftWindow(); err != nil {
		if reopenErr := r.openFile(); reopenErr != nil {
			return fmt.Errorf("%w (and failed to reopen active file: %v)", err, reopenErr)
		}
		return err
	}

	return r.openFile()
}

// shiftWindow moves every archive up one slot and retires the active file
// into the min index slot. Missing slots are skipped.
func (r *FixedWindowRoller) shiftWindow() error {
	oldest := r.archiveFileName(r.opts.MaxIndex)
	if err := os.Remove(oldest); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove oldest archive %s: %w", oldest, err)
	}

	for i := r.opts.MaxIndex - 1; i >= r.opts.MinIndex; i-- {
		src := r.archiveFileName(i)
		dst := r.archiveFileName(i + 1)
		if err := os.Rename(src, dst); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to shift archive %s to %s: %w", src, dst, err)
		}
	}

	if err := os.Rename(r.opts.File, r.archiveFileName(r.opts.MinIndex)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to archive active file %s: %w", r.opts.File, err)
	}
	return nil
}

func (r *FixedWindowRoller) archiveFileName(index int) string {
	return fmt.Sprintf("%s.%d", r.opts.File, index)
}

// openFile opens the active file for appending and records its size.
func (r *FixedWindowRoller) openFile() error {
	dir := filepath.Dir(r.opts.File)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}

	file, err := os.OpenFile(r.opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open active file %s: %w", r.opts.File, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to stat active file %s: %w", r.opts.File, err)
	}

	r.file = file
	r.size = info.Size()
	return nil
}

// Close closes the active file. The roller cannot be written to afterwards.
func (r *FixedWindowRoller) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}
