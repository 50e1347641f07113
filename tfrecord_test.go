package lfwrecord

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func writeRecords(t *testing.T, path string, numShards, n int) []*ImageRecord {
	t.Helper()

	w := NewShardWriter(path, numShards, n)
	records := make([]*ImageRecord, n)
	for i := range records {
		r, err := NewImageRecord(fmt.Sprintf("img_%04d.jpg", i), []byte{byte(i)}, "jpeg", 10+i, 20,
			testBoxes()[:i%3])
		require.NoError(t, err)
		require.NoError(t, w.Write(r))
		records[i] = r
	}
	require.NoError(t, w.Close())
	require.Equal(t, n, w.Count())

	return records
}

func TestShardWriterSingleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lfw_train.record")
	want := writeRecords(t, path, 1, 4)

	got, err := ReadShard(path)
	require.NoError(t, err)
	require.Len(t, got, 4)
	for i := range want {
		require.Equal(t, want[i].Filename, got[i].Filename)
		require.Equal(t, want[i].Width, got[i].Width)
		require.Equal(t, want[i].Height, got[i].Height)
		require.Len(t, got[i].Boxes, len(want[i].Boxes))
	}
}

func TestShardWriterMultipleShards(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lfw_train.record")
	writeRecords(t, path, 2, 5)

	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))

	first, err := ReadShard(path + "-00000-of-00002")
	require.NoError(t, err)
	require.Len(t, first, 3)

	second, err := ReadShard(ShardPath(path, 1, 2))
	require.NoError(t, err)
	require.Len(t, second, 2)
	require.Equal(t, "img_0003.jpg", second[0].Filename)
}

func TestShardWriterEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lfw_test.record")
	w := NewShardWriter(path, 3, 0)
	require.NoError(t, w.Close())
	require.Equal(t, []string{ShardPath(path, 0, 3), ShardPath(path, 1, 3), ShardPath(path, 2, 3)},
		w.Paths())

	for _, p := range w.Paths() {
		got, err := ReadShard(p)
		require.NoError(t, err)
		require.Empty(t, got)
	}
}

func TestShardWriterBalancesShards(t *testing.T) {
	tests := []struct {
		numShards, n int
		sizes        []int
	}{
		{numShards: 3, n: 4, sizes: []int{2, 1, 1}},
		{numShards: 4, n: 10, sizes: []int{3, 2, 3, 2}},
		{numShards: 3, n: 2, sizes: []int{1, 1, 0}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d of %d", tt.n, tt.numShards), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "lfw_train.record")
			writeRecords(t, path, tt.numShards, tt.n)

			var sizes []int
			for i := 0; i < tt.numShards; i++ {
				got, err := ReadShard(ShardPath(path, i, tt.numShards))
				require.NoError(t, err)
				sizes = append(sizes, len(got))
			}
			require.Equal(t, tt.sizes, sizes)
		})
	}
}

func TestReadShardMissing(t *testing.T) {
	_, err := ReadShard(filepath.Join(t.TempDir(), "missing.record"))
	require.True(t, errors.Is(err, os.ErrNotExist), "unexpected error: %v", err)
}

func TestLabelMap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "label_map.pbtxt")
	require.NoError(t, SaveLabelMap(path, map[string]int32{"face": 1, "hand": 2}))

	text, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(text), `name: "face"`)

	got, err := LoadLabelMap(path)
	require.NoError(t, err)
	require.Equal(t, map[string]int32{"face": 1, "hand": 2}, got)
}

func TestLoadLabelMapErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadLabelMap(filepath.Join(dir, "missing.pbtxt"))
	require.True(t, errors.Is(err, os.ErrNotExist), "unexpected error: %v", err)

	path := filepath.Join(dir, "bad.pbtxt")
	require.NoError(t, os.WriteFile(path, []byte("item { name: \"face\" id: 0 }\n"), 0644))
	_, err = LoadLabelMap(path)
	require.Error(t, err)
}
