package activation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/armoureye/intake/lib/runtime"
)

type fakeRunner struct {
	calls   atomic.Int64
	lastReq runtime.RunRequest
	err     error
	block   chan struct{} // when set, RunContainer waits until closed
	mu      sync.Mutex
}

func (f *fakeRunner) RunContainer(_ context.Context, req runtime.RunRequest) (*runtime.RunResult, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.lastReq = req
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	return &runtime.RunResult{Name: req.Name, Status: "running"}, nil
}

type fakeResolver struct {
	portMap map[string]int
}

func (f *fakeResolver) Resolve(context.Context, string) map[string]int {
	return f.portMap
}

type fakeChecker struct {
	running bool
}

func (f *fakeChecker) IsRunning(string) bool { return f.running }

type recordingNotifier struct {
	warns     []string
	successes []string
	errors    []string
	mu        sync.Mutex
}

func (n *recordingNotifier) Warn(_, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.warns = append(n.warns, text)
}

func (n *recordingNotifier) FlashSuccess(_, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.successes = append(n.successes, text)
}

func (n *recordingNotifier) FlashError(_, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, text)
}

func newTestActivator(runner *fakeRunner, checker *fakeChecker, notify *recordingNotifier) *Activator {
	a := New(runner, &fakeResolver{portMap: map[string]int{"6379/tcp": 6381}}, checker, notify)
	a.now = func() time.Time { return time.Unix(1719246000, 0) }
	return a
}

func TestActivateSuccess(t *testing.T) {
	runner := &fakeRunner{}
	notify := &recordingNotifier{}
	a := newTestActivator(runner, &fakeChecker{}, notify)

	ok, err := a.Activate(context.Background(), "redis:latest", Options{})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), runner.calls.Load())

	require.Equal(t, "redis:latest", runner.lastReq.Image)
	require.Equal(t, "redis-latest-1719246000", runner.lastReq.Name)
	require.Equal(t, map[string]int{"6379/tcp": 6381}, runner.lastReq.Ports)
	require.Len(t, notify.successes, 1)
	require.Contains(t, notify.successes[0], "6379/tcp->6381")
}

func TestActivateConcurrentDuplicateIsNoOp(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{})}
	a := newTestActivator(runner, &fakeChecker{}, &recordingNotifier{})

	firstDone := make(chan bool, 1)
	go func() {
		ok, _ := a.Activate(context.Background(), "redis:latest", Options{})
		firstDone <- ok
	}()

	// Wait for the first attempt to reach the runtime call.
	require.Eventually(t, func() bool {
		return runner.calls.Load() == 1
	}, time.Second, time.Millisecond)

	// Second attempt while the first is in flight: no-op, no second run call.
	ok, err := a.Activate(context.Background(), "redis:latest", Options{})
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, int64(1), runner.calls.Load())

	close(runner.block)
	require.True(t, <-firstDone)
	require.False(t, a.guard.Held("redis:latest"))
}

func TestActivateAlreadyRunning(t *testing.T) {
	runner := &fakeRunner{}
	notify := &recordingNotifier{}
	a := newTestActivator(runner, &fakeChecker{running: true}, notify)

	ok, err := a.Activate(context.Background(), "nginx:latest", Options{})
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, int64(0), runner.calls.Load())
	require.Len(t, notify.warns, 1)
	require.Contains(t, notify.warns[0], "already running")
}

func TestActivateAlreadyRunningSilent(t *testing.T) {
	runner := &fakeRunner{}
	notify := &recordingNotifier{}
	a := newTestActivator(runner, &fakeChecker{running: true}, notify)

	ok, err := a.Activate(context.Background(), "nginx:latest", Options{Silent: true})
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, int64(0), runner.calls.Load())
	require.Empty(t, notify.warns)
	require.Empty(t, notify.errors)
}

func TestActivateRunFailureReleasesGuard(t *testing.T) {
	runner := &fakeRunner{err: errors.New("image not found")}
	notify := &recordingNotifier{}
	a := newTestActivator(runner, &fakeChecker{}, notify)

	ok, err := a.Activate(context.Background(), "ghost:latest", Options{})
	require.Error(t, err)
	require.False(t, ok)
	require.Len(t, notify.warns, 1)
	require.False(t, a.guard.Held("ghost:latest"))

	// A fresh user-initiated retry reaches the runtime again.
	runner.err = nil
	ok, err = a.Activate(context.Background(), "ghost:latest", Options{})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(2), runner.calls.Load())
}

func TestActivateRunFailureSilentFlashes(t *testing.T) {
	runner := &fakeRunner{err: errors.New("port in use")}
	notify := &recordingNotifier{}
	a := newTestActivator(runner, &fakeChecker{}, notify)

	ok, err := a.Activate(context.Background(), "redis:latest", Options{Silent: true})
	require.Error(t, err)
	require.False(t, ok)
	require.Empty(t, notify.warns)
	require.Len(t, notify.errors, 1)
}

func TestContainerName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"docker.io/library/redis:latest", "redis-latest-1719246000"},
		{"app:latest", "app-latest-1719246000"},
		{"gcr.io/proj/my.app:v1.0", "my-app-v1-0-1719246000"},
		{"///", "container-1719246000"},
	}

	now := time.Unix(1719246000, 0)
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := containerName(tt.input, now)
			require.Equal(t, tt.want, got)
			require.False(t, strings.Contains(got, ":"))
		})
	}
}
