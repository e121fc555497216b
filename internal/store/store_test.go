// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/feature-engine/pkg/types"
)

func testFeature(vals ...float32) types.Feature {
	return types.Feature{Shape: []int{len(vals)}, Data: vals}
}

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "features.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestPutGetRoundtrip(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()

	want := types.Feature{Shape: []int{2, 3}, Data: []float32{1, 2, 3, 4, 5, 6}}
	require.NoError(t, s.Put(ctx, "clip1", want))

	got, err := s.Get(ctx, "clip1")
	require.NoError(t, err)
	assert.True(t, got.Equal(want), "got %+v, want %+v", got, want)
}

func TestContains(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()

	ok, err := s.Contains(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, "a", testFeature(1)))

	ok, err = s.Contains(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPutRefusesDuplicateKey(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "a", testFeature(1, 2)))

	err := s.Put(ctx, "a", testFeature(9, 9))
	require.ErrorIs(t, err, ErrDuplicateKey)

	// The original value must survive the refused write.
	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, got.Equal(testFeature(1, 2)))
}

func TestPutValidatesFeature(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()

	err := s.Put(ctx, "bad", types.Feature{Shape: []int{3}, Data: []float32{1}})
	require.Error(t, err)

	ok, err := s.Contains(ctx, "bad")
	require.NoError(t, err)
	assert.False(t, ok, "invalid feature must not be stored")
}

func TestEntriesSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "features.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "a", testFeature(1)))
	require.NoError(t, s.Put(ctx, "b", testFeature(2)))
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	keys, err := reopened.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)
}

func TestOpenReadOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "features.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "clip1", testFeature(3, 4)))
	require.NoError(t, s.Close())

	ro, err := OpenReadOnly(path)
	require.NoError(t, err)
	defer ro.Close()

	set, err := ro.KeySet(ctx)
	require.NoError(t, err)
	assert.True(t, set["clip1"])

	got, err := ro.Get(ctx, "clip1")
	require.NoError(t, err)
	assert.True(t, got.Equal(testFeature(3, 4)))
}

func TestOpenReadOnlyMissingFile(t *testing.T) {
	_, err := OpenReadOnly(filepath.Join(t.TempDir(), "absent.db"))
	require.Error(t, err)
}

func TestOpenReadOnlyDoesNotCreateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.db")
	_, _ = OpenReadOnly(path)

	_, err := OpenReadOnly(path)
	require.Error(t, err, "read-only open must not create the store file")
}

func TestSecondWriterIsRejected(t *testing.T) {
	s, path := openTemp(t)
	_ = s

	second, err := Open(path)
	if err == nil {
		second.Close()
		t.Fatal("second writer acquired the store lock")
	}
	assert.Contains(t, err.Error(), "locked")
}

func TestDelete(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "a", testFeature(1)))
	require.NoError(t, s.Delete(ctx, "a"))

	ok, err := s.Contains(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.ErrorIs(t, s.Delete(ctx, "a"), ErrKeyNotFound)
}

func TestCount(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.NoError(t, s.Put(ctx, "a", testFeature(1)))
	require.NoError(t, s.Put(ctx, "b", testFeature(2)))

	n, err = s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestGetMissingKey(t *testing.T) {
	s, _ := openTemp(t)
	_, err := s.Get(context.Background(), "nope")
	require.ErrorIs(t, err, ErrKeyNotFound)
}

func TestExportYAML(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "clip1", types.Feature{Shape: []int{2, 2}, Data: []float32{1, 2, 3, 4}}))

	var buf bytes.Buffer
	require.NoError(t, s.ExportYAML(ctx, &buf))

	out := buf.String()
	assert.Contains(t, out, "clip1")
	assert.Contains(t, out, "float32")
	assert.True(t, strings.Contains(out, "elems: 4"), "export output: %s", out)
}

func TestExportJSON(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "a", testFeature(1, 2, 3)))

	var buf bytes.Buffer
	require.NoError(t, s.ExportJSON(ctx, &buf))

	var entries []ExportEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "a", entries[0].Key)
	assert.Equal(t, []int{3}, entries[0].Shape)
	assert.Equal(t, 3, entries[0].Elems)
}

func TestEncodeDecodeData(t *testing.T) {
	vals := []float32{0, 1.5, -2.25, 3e7}
	got := decodeData(encodeData(vals))
	assert.Equal(t, vals, got)
}
