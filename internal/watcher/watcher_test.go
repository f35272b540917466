package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nextEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "event channel closed")
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for watcher event")
	}
	return Event{}
}

func TestStart_RequiresDir(t *testing.T) {
	_, _, err := Start(context.Background(), Config{})
	assert.Error(t, err)
}

func TestStart_DebouncedCreate(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, _, err := Start(ctx, Config{Dir: dir, Debounce: 50 * time.Millisecond})
	require.NoError(t, err)

	path := filepath.Join(dir, "shirt.jpg")
	require.NoError(t, os.WriteFile(path, []byte("one"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte("two"), 0o644))

	ev := nextEvent(t, events)
	assert.Equal(t, path, ev.Path)
	assert.True(t, ev.Has(fsnotify.Create))

	select {
	case extra := <-events:
		t.Fatalf("expected one coalesced event, got another: %+v", extra)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestStart_DebounceIsPerPath(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, _, err := Start(ctx, Config{Dir: dir, Debounce: 50 * time.Millisecond})
	require.NoError(t, err)

	busy := filepath.Join(dir, "busy.jpg")
	quiet := filepath.Join(dir, "quiet.jpg")

	stop := make(chan struct{})
	streamDone := make(chan struct{})
	go func() {
		defer close(streamDone)
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			case <-ticker.C:
				_ = os.WriteFile(busy, []byte(strings.Repeat("x", i+1)), 0o644)
			}
		}
	}()

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, os.WriteFile(quiet, []byte("x"), 0o644))

	// quiet.jpg settles while busy.jpg is still being written.
	ev := nextEvent(t, events)
	assert.Equal(t, quiet, ev.Path)

	close(stop)
	<-streamDone
	ev = nextEvent(t, events)
	assert.Equal(t, busy, ev.Path)
	assert.True(t, ev.Has(fsnotify.Create))
}

func TestStart_FilterAndOps(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, _, err := Start(ctx, Config{
		Dir:    dir,
		Ops:    fsnotify.Create,
		Filter: func(p string) bool { return strings.HasSuffix(p, ".png") },
	})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "skip.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keep.png"), []byte("x"), 0o644))

	ev := nextEvent(t, events)
	assert.Equal(t, filepath.Join(dir, "keep.png"), ev.Path)
	assert.Equal(t, fsnotify.Create, ev.Op)
}

func TestStart_InitialScan(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "already.jpg")
	require.NoError(t, os.WriteFile(existing, []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, _, err := Start(ctx, Config{Dir: dir, InitialScan: true})
	require.NoError(t, err)

	ev := nextEvent(t, events)
	assert.Equal(t, existing, ev.Path)
}

func TestStart_ClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	events, errs, err := Start(ctx, Config{Dir: t.TempDir()})
	require.NoError(t, err)

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-events:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
	_, ok := <-errs
	assert.False(t, ok)
}
