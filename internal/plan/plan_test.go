// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package plan

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/feature-engine/internal/keys"
	"github.com/pdiddy/feature-engine/internal/store"
	"github.com/pdiddy/feature-engine/pkg/types"
)

func writeManifest(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func seedStore(t *testing.T, path string, storedKeys ...string) {
	t.Helper()
	s, err := store.Open(path)
	require.NoError(t, err)
	defer s.Close()
	for _, k := range storedKeys {
		require.NoError(t, s.Put(context.Background(), k, types.Feature{Shape: []int{1}, Data: []float32{0}}))
	}
}

func TestPlanFirstRunReturnsOriginalManifest(t *testing.T) {
	manifest := writeManifest(t, "a.mp4", "b/clip1.mp4", "c.mp4")
	storePath := filepath.Join(t.TempDir(), "features.db")

	var buf bytes.Buffer
	res, err := Plan(context.Background(), manifest, keys.Parser("default", nil), storePath, &buf)
	require.NoError(t, err)

	assert.Equal(t, manifest, res.ManifestPath)
	assert.False(t, res.Filtered)
	assert.Equal(t, 3, res.Retained)
	assert.Equal(t, 3, res.Total)
	assert.Empty(t, buf.String(), "no progress line expected on a first run")
}

func TestPlanFiltersCompletedItems(t *testing.T) {
	manifest := writeManifest(t, "a.mp4 12 0", "b/clip1.mp4 34 1", "c.mp4 56 2")
	storePath := filepath.Join(t.TempDir(), "features.db")
	seedStore(t, storePath, "a", "c")

	var buf bytes.Buffer
	res, err := Plan(context.Background(), manifest, keys.Parser("default", nil), storePath, &buf)
	require.NoError(t, err)

	assert.True(t, res.Filtered)
	assert.Equal(t, 1, res.Retained)
	assert.Equal(t, 3, res.Total)
	assert.NotEqual(t, manifest, res.ManifestPath)
	assert.Contains(t, buf.String(), "Remain 1/3")

	data, err := os.ReadFile(res.ManifestPath)
	require.NoError(t, err)
	// Retained lines keep their full text, labels included.
	assert.Equal(t, "b/clip1.mp4 34 1\n", string(data))
}

func TestPlanPreservesOrder(t *testing.T) {
	manifest := writeManifest(t, "z.mp4", "a.mp4", "m.mp4", "b.mp4")
	storePath := filepath.Join(t.TempDir(), "features.db")
	seedStore(t, storePath, "a")

	res, err := Plan(context.Background(), manifest, keys.Parser("default", nil), storePath, &bytes.Buffer{})
	require.NoError(t, err)

	data, err := os.ReadFile(res.ManifestPath)
	require.NoError(t, err)
	assert.Equal(t, "z.mp4\nm.mp4\nb.mp4\n", string(data))
}

func TestPlanAlreadyComplete(t *testing.T) {
	manifest := writeManifest(t, "a.mp4", "b.mp4")
	storePath := filepath.Join(t.TempDir(), "features.db")
	seedStore(t, storePath, "a", "b")

	res, err := Plan(context.Background(), manifest, keys.Parser("default", nil), storePath, &bytes.Buffer{})
	require.NoError(t, err)

	assert.True(t, res.Filtered)
	assert.Equal(t, 0, res.Retained)

	data, err := os.ReadFile(res.ManifestPath)
	require.NoError(t, err)
	assert.Empty(t, string(data), "residual manifest for a complete run must be empty")
}

func TestPlanRespectsConvention(t *testing.T) {
	manifest := writeManifest(t, "data/00123/clip.mp4", "data/00456/clip.mp4")
	storePath := filepath.Join(t.TempDir(), "features.db")
	// Under webvid these are distinct keys even though basenames collide.
	seedStore(t, storePath, "00123/clip")

	res, err := Plan(context.Background(), manifest, keys.Parser("webvid", nil), storePath, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Retained)

	data, err := os.ReadFile(res.ManifestPath)
	require.NoError(t, err)
	assert.Equal(t, "data/00456/clip.mp4\n", string(data))
}

func TestPlanMissingManifest(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "features.db")
	_, err := Plan(context.Background(), filepath.Join(t.TempDir(), "absent.txt"), keys.Parser("default", nil), storePath, &bytes.Buffer{})
	require.Error(t, err)
}

func TestPlanEmptyManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(path, []byte("\n  \n"), 0o644))

	_, err := Plan(context.Background(), path, keys.Parser("default", nil), filepath.Join(t.TempDir(), "f.db"), &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}
