package watch

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

	"github.com/jward/modelsync/internal/reconcile"
)

func TestBatch_Classify(t *testing.T) {
	t.Parallel()
	b := newBatch()
	b.add(".idea/libraries/gson.xml", opWrite)
	b.add(".idea/libraries/junit.xml", opCreate)
	b.add(".idea/libraries/junit.xml", opWrite)
	b.add("core/core.iml", opRemove)
	b.add("tmp.xml", opCreate)
	b.add("tmp.xml", opRemove)
	b.add("app/app.iml", opRemove)
	b.add("app/app.iml", opCreate)

	onDisk := map[string]bool{
		".idea/libraries/gson.xml":  true,
		".idea/libraries/junit.xml": true,
		"app/app.iml":               true,
	}
	c := b.classify(func(rel string) bool { return onDisk[rel] })
	assert.Equal(t, reconcile.Change{
		Added:   []string{".idea/libraries/junit.xml", "app/app.iml"},
		Changed: []string{".idea/libraries/gson.xml"},
		Removed: []string{"core/core.iml", "tmp.xml"},
	}, c)
}

func TestConvertOp(t *testing.T) {
	t.Parallel()
	assert.Equal(t, opCreate|opWrite, convertOp(fsnotify.Create|fsnotify.Write))
	assert.Equal(t, opRemove, convertOp(fsnotify.Rename))
	assert.Equal(t, opMask(0), convertOp(fsnotify.Chmod))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func next(t *testing.T, w *Watcher) reconcile.Change {
	t.Helper()
	select {
	case c := <-w.Changes():
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("no change delivered")
		return reconcile.Change{}
	}
}

func TestWatcher_DeliversRelativeChanges(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".idea", "modules.xml"), "<project />")
	writeFile(t, filepath.Join(root, "core", "core.iml"), "<module />")

	w, err := New(root,
		WithDelay(50*time.Millisecond),
		WithFilter(func(rel string) bool { return !strings.HasSuffix(rel, ".tmp") }),
	)
	require.NoError(t, err)
	defer w.Close()

	writeFile(t, filepath.Join(root, ".idea", "modules.xml"), "<project version=\"4\" />")
	writeFile(t, filepath.Join(root, "scratch.tmp"), "x")
	c := next(t, w)
	assert.Equal(t, []string{".idea/modules.xml"}, c.Changed)
	assert.Empty(t, c.Added)

	require.NoError(t, os.Remove(filepath.Join(root, "core", "core.iml")))
	c = next(t, w)
	assert.Equal(t, []string{"core/core.iml"}, c.Removed)

	// A new directory is watched and its first file is reported.
	writeFile(t, filepath.Join(root, "web", "web.iml"), "<module />")
	c = next(t, w)
	assert.Contains(t, c.Added, "web/web.iml")
}

func TestWatcher_IgnoredDirectories(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "out"), 0o755))

	w, err := New(root, WithDelay(30*time.Millisecond), WithIgnoreDirs("out"))
	require.NoError(t, err)
	defer w.Close()

	writeFile(t, filepath.Join(root, "out", "build.xml"), "x")
	writeFile(t, filepath.Join(root, "a.iml"), "x")
	c := next(t, w)
	assert.Equal(t, []string{"a.iml"}, c.Files())
}

func TestWatcher_RunStopsOnCancel(t *testing.T) {
	t.Parallel()
	w, err := New(t.TempDir())
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = w.Run(ctx, func(context.Context, reconcile.Change) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWatcher_CloseIsIdempotent(t *testing.T) {
	t.Parallel()
	w, err := New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	_, ok := <-w.Changes()
	assert.False(t, ok)
}
