package policy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollarc/rollarc/rotation"
	"github.com/rollarc/rollarc/uploader"
)

// --- Mocks & Test Helpers ---

type mockRoller struct {
	RolloverFunc func() error

	mu        sync.Mutex
	rollovers int
	closed    bool
}

func (m *mockRoller) Rollover() error {
	m.mu.Lock()
	m.rollovers++
	m.mu.Unlock()
	if m.RolloverFunc != nil {
		return m.RolloverFunc()
	}
	return nil
}

func (m *mockRoller) ArchiveFileName(index int) string { return fmt.Sprintf("app.log.%d", index) }
func (m *mockRoller) ActiveFileName() string           { return "app.log" }
func (m *mockRoller) MinIndex() int                    { return 1 }
func (m *mockRoller) ShouldRollover(n int) bool        { return false }
func (m *mockRoller) Write(p []byte) (int, error)      { return len(p), nil }

func (m *mockRoller) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockRoller) rolloverCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rollovers
}

type mockSubmitter struct {
	ShutdownFunc func(timeout time.Duration) error

	mu        sync.Mutex
	submitted []string
	shutdowns int
}

func (m *mockSubmitter) Submit(localPath string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitted = append(m.submitted, localPath)
}

func (m *mockSubmitter) Shutdown(timeout time.Duration) error {
	m.mu.Lock()
	m.shutdowns++
	m.mu.Unlock()
	if m.ShutdownFunc != nil {
		return m.ShutdownFunc(timeout)
	}
	return nil
}

func (m *mockSubmitter) submissions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.submitted...)
}

func (m *mockSubmitter) shutdownCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shutdowns
}

// --- Tests ---

func TestRolloverQueuesMinIndexArchive(t *testing.T) {
	roller := &mockRoller{}
	sub := &mockSubmitter{}
	p := New(roller, sub, Options{RollingOnExit: true})

	require.NoError(t, p.Rollover())
	assert.Equal(t, []string{"app.log.1"}, sub.submissions())
}

func TestRolloverFailurePropagatesAndQueuesNothing(t *testing.T) {
	rolloverErr := errors.New("disk full")
	roller := &mockRoller{RolloverFunc: func() error { return rolloverErr }}
	sub := &mockSubmitter{}
	p := New(roller, sub, Options{RollingOnExit: true})

	err := p.Rollover()
	require.ErrorIs(t, err, rolloverErr)
	assert.Empty(t, sub.submissions())
}

func TestShutdownWithRollingOnExit(t *testing.T) {
	roller := &mockRoller{}
	sub := &mockSubmitter{}
	p := New(roller, sub, Options{RollingOnExit: true, DrainTimeout: time.Second})

	p.Shutdown()

	assert.Equal(t, 1, roller.rolloverCount(), "exactly one final rollover")
	assert.Equal(t, []string{"app.log.1"}, sub.submissions())
	assert.Equal(t, 1, sub.shutdownCount())
	assert.True(t, roller.closed)
}

func TestShutdownWithoutRollingOnExit(t *testing.T) {
	roller := &mockRoller{}
	sub := &mockSubmitter{}
	p := New(roller, sub, Options{RollingOnExit: false, DrainTimeout: time.Second})

	p.Shutdown()

	assert.Equal(t, 0, roller.rolloverCount(), "no rollover when rolling_on_exit is false")
	assert.Equal(t, []string{"app.log"}, sub.submissions(), "the active file is uploaded directly")
	assert.Equal(t, 1, sub.shutdownCount())
}

func TestShutdownRunsExactlyOnce(t *testing.T) {
	roller := &mockRoller{}
	sub := &mockSubmitter{}
	p := New(roller, sub, Options{RollingOnExit: true, DrainTimeout: time.Second})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Shutdown()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, roller.rolloverCount())
	assert.Equal(t, 1, sub.shutdownCount())
}

func TestShutdownSwallowsFailures(t *testing.T) {
	roller := &mockRoller{RolloverFunc: func() error { return errors.New("rollover exploded") }}
	sub := &mockSubmitter{ShutdownFunc: func(time.Duration) error { return errors.New("drain timed out") }}
	p := New(roller, sub, Options{RollingOnExit: true, DrainTimeout: time.Second})

	// Must not panic or propagate anything.
	p.Shutdown()

	assert.Equal(t, 1, sub.shutdownCount(), "the drain still runs after a failed final rollover")
}

func TestWriteTriggersRolloverAtThreshold(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "app.log")
	roller, err := rotation.NewFixedWindowRoller(rotation.Options{
		File:     file,
		MinIndex: 1,
		MaxIndex: 3,
		MaxSize:  10,
	})
	require.NoError(t, err)
	defer roller.Close()

	sub := &mockSubmitter{}
	p := New(roller, sub, Options{RollingOnExit: true})

	_, err = p.Write([]byte("123456\n")) // below threshold, no rotation
	require.NoError(t, err)
	assert.Empty(t, sub.submissions())

	_, err = p.Write([]byte("789012\n")) // would cross 10 bytes, rotates first
	require.NoError(t, err)
	assert.Equal(t, []string{file + ".1"}, sub.submissions())

	archived, err := os.ReadFile(file + ".1")
	require.NoError(t, err)
	assert.Equal(t, "123456\n", string(archived))

	active, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, "789012\n", string(active))
}

// End-to-end: three rotations producing archives of 500, 0 and 700 bytes
// must yield exactly two uploads, in rotation order, plus the final
// rollover-triggered upload on shutdown.
func TestEndToEndRotationsAndShutdown(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.log")

	roller, err := rotation.NewFixedWindowRoller(rotation.Options{
		File:     file,
		MinIndex: 1,
		MaxIndex: 5,
	})
	require.NoError(t, err)

	store := &recordingStore{}
	worker := uploader.New(store, uploader.Options{Folder: "app1"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)

	p := New(roller, worker, Options{RollingOnExit: true, DrainTimeout: 30 * time.Second})

	writeAndRoll := func(size, wantUploads int) {
		if size > 0 {
			_, err := p.Write(make([]byte, size))
			require.NoError(t, err)
		}
		require.NoError(t, p.Rollover())
		// The window shifting renames the min-index archive on the next
		// rotation, so wait for the upload to land before rotating again.
		require.Eventually(t, func() bool {
			return len(store.uploadedKeys()) == wantUploads
		}, 5*time.Second, 10*time.Millisecond)
	}

	writeAndRoll(500, 1)
	writeAndRoll(0, 1) // empty archive, must not be uploaded
	writeAndRoll(700, 2)

	// One more write so the final rollover has something to archive.
	_, err = p.Write([]byte("tail"))
	require.NoError(t, err)

	start := time.Now()
	p.Shutdown()
	assert.Less(t, time.Since(start), 30*time.Second)

	// Every upload carries the min-index archive name; overwrites of the
	// same key are the documented fixed-window behavior.
	assert.Equal(t, []string{"app1/a.log.1", "app1/a.log.1", "app1/a.log.1"}, store.uploadedKeys())
	assert.Equal(t, []int64{500, 700, 4}, store.uploadedSizes())
}

type recordingStore struct {
	mu    sync.Mutex
	keys  []string
	sizes []int64
}

func (r *recordingStore) PutFile(ctx context.Context, key, localPath string) error {
	info, err := os.Stat(localPath)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, key)
	r.sizes = append(r.sizes, info.Size())
	return nil
}

func (r *recordingStore) uploadedKeys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.keys...)
}

func (r *recordingStore) uploadedSizes() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.sizes...)
}
