// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package dataset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeDataset creates n payload files and a manifest listing them.
func writeDataset(t *testing.T, n int) (manifest string, root string) {
	t.Helper()
	root = t.TempDir()
	var lines []string
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("clip%03d.mp4", i)
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(fmt.Sprintf("payload-%d", i)), 0o644))
		lines = append(lines, name+" 0")
	}
	manifest = filepath.Join(root, "manifest.txt")
	require.NoError(t, os.WriteFile(manifest, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return manifest, root
}

func collect(t *testing.T, st *Stream) []Item {
	t.Helper()
	var items []Item
	for st.Scan() {
		items = append(items, st.Item())
	}
	require.NoError(t, st.Err())
	return items
}

func TestIterateDeliversManifestOrder(t *testing.T) {
	manifest, root := writeDataset(t, 20)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Several workers race on I/O; delivery order must not change.
	st, err := Iterate(ctx, manifest, Options{Workers: 4, Root: root})
	require.NoError(t, err)
	assert.Equal(t, 20, st.Total())

	items := collect(t, st)
	require.Len(t, items, 20)
	for i, item := range items {
		assert.Equal(t, fmt.Sprintf("clip%03d.mp4", i), item.Source)
		assert.Equal(t, fmt.Sprintf("payload-%d", i), string(item.Payload))
	}
}

func TestIterateSingleWorker(t *testing.T) {
	manifest, root := writeDataset(t, 3)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := Iterate(ctx, manifest, Options{Root: root})
	require.NoError(t, err)

	items := collect(t, st)
	require.Len(t, items, 3)
}

func TestIterateEmptyManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(path, []byte(""), 0o644))

	st, err := Iterate(context.Background(), path, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, st.Total())
	assert.False(t, st.Scan())
	assert.NoError(t, st.Err())
}

func TestIterateMissingPayloadAborts(t *testing.T) {
	root := t.TempDir()
	manifest := filepath.Join(root, "manifest.txt")
	require.NoError(t, os.WriteFile(manifest, []byte("missing.mp4\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := Iterate(ctx, manifest, Options{Root: root})
	require.NoError(t, err)

	assert.False(t, st.Scan())
	require.Error(t, st.Err())
	assert.Contains(t, st.Err().Error(), "missing.mp4")
}

func TestIterateRejectsShuffle(t *testing.T) {
	manifest, _ := writeDataset(t, 1)
	_, err := Iterate(context.Background(), manifest, Options{Shuffle: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shuffle")
}

func TestIterateRejectsBatchSize(t *testing.T) {
	manifest, _ := writeDataset(t, 1)
	_, err := Iterate(context.Background(), manifest, Options{BatchSize: 8})
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err = Iterate(ctx, manifest, Options{BatchSize: 1})
	require.NoError(t, err, "batch size 1 is the supported value")
}

func TestIterateMissingManifest(t *testing.T) {
	_, err := Iterate(context.Background(), filepath.Join(t.TempDir(), "absent.txt"), Options{})
	require.Error(t, err)
}

func TestIterateAbsolutePathIgnoresRoot(t *testing.T) {
	dir := t.TempDir()
	payload := filepath.Join(dir, "abs.mp4")
	require.NoError(t, os.WriteFile(payload, []byte("abs-payload"), 0o644))

	manifest := filepath.Join(dir, "manifest.txt")
	require.NoError(t, os.WriteFile(manifest, []byte(payload+"\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := Iterate(ctx, manifest, Options{Root: "/nonexistent/root"})
	require.NoError(t, err)

	items := collect(t, st)
	require.Len(t, items, 1)
	assert.Equal(t, "abs-payload", string(items[0].Payload))
}

func TestIterateCancelledContext(t *testing.T) {
	manifest, root := writeDataset(t, 5)

	ctx, cancel := context.WithCancel(context.Background())
	st, err := Iterate(ctx, manifest, Options{Root: root})
	require.NoError(t, err)
	cancel()

	for st.Scan() {
	}
	// Either the stream drained before cancellation landed or it
	// surfaced the context error; both leave the stream stopped.
	if err := st.Err(); err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
}
