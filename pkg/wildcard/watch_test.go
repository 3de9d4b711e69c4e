package wildcard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestWatcher_ReloadsOnChange(t *testing.T) {
	defer goleak.VerifyNone(t)

	root := t.TempDir()
	writeFile(t, root, "color.txt", "red\n")

	store, err := OpenDir(root)
	require.NoError(t, err)

	w, err := Watch(store, WithDebounce(20*time.Millisecond))
	require.NoError(t, err)

	reloaded := make(chan struct{}, 8)
	w.OnReload(func(s *DirStore) {
		select {
		case reloaded <- struct{}{}:
		default:
		}
	})

	writeFile(t, root, "color.txt", "blue\n")

	select {
	case <-reloaded:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
	assert.Eventually(t, func() bool {
		vals := store.GetAllValues("color")
		return len(vals) == 1 && vals[0] == "blue"
	}, 5*time.Second, 20*time.Millisecond)

	writeFile(t, root, "sub/shape.txt", "square\n")
	require.Eventually(t, func() bool {
		return len(store.GetAllValues("sub/shape")) == 1
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
}

func TestWatcher_CloseWithoutEvents(t *testing.T) {
	defer goleak.VerifyNone(t)

	store, err := OpenDir(t.TempDir())
	require.NoError(t, err)

	w, err := Watch(store)
	require.NoError(t, err)
	require.NoError(t, w.Close())
}
