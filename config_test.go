package lfwrecord

import (
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func newFlagSet(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(newFlagSet(t, "--input_path", "/data/lfw", "--output_path", "/data/out"))
	require.NoError(t, err)
	require.Equal(t, Config{
		InputPath:    "/data/lfw",
		OutputPath:   "/data/out",
		Annotations:  FullFrameAnnotations,
		NumShards:    1,
		LabelMapPath: filepath.Join("/data/out", LabelMapName),
		JPEGQuality:  92,
	}, cfg)
}

func TestLoadConfigFlags(t *testing.T) {
	cfg, err := LoadConfig(newFlagSet(t,
		"--input_path=in",
		"--output_path=out",
		"--annotations=list",
		"--eval",
		"--seed=3",
		"--num_shards=4",
		"--max_side=512",
		"--label_map_path=labels.pbtxt",
	))
	require.NoError(t, err)
	require.True(t, cfg.Eval)
	require.Equal(t, ListAnnotations, cfg.Annotations)
	require.Equal(t, "in", cfg.MetadataPath)
	require.Equal(t, int64(3), cfg.Seed)
	require.Equal(t, 4, cfg.NumShards)
	require.Equal(t, 512, cfg.MaxSide)
	require.Equal(t, "labels.pbtxt", cfg.LabelMapPath)
}

func TestLoadConfigEnvironment(t *testing.T) {
	t.Setenv("LFWRECORD_OUTPUT_PATH", "/env/out")
	t.Setenv("LFWRECORD_EVAL", "true")
	t.Setenv("LFWRECORD_INPUT_PATH", "/env/in")

	cfg, err := LoadConfig(newFlagSet(t, "--input_path", "/flag/in"))
	require.NoError(t, err)
	require.Equal(t, "/env/out", cfg.OutputPath)
	require.True(t, cfg.Eval)
	// Explicit flags take precedence over the environment.
	require.Equal(t, "/flag/in", cfg.InputPath)
}

func TestLoadConfigMetadataPathDefault(t *testing.T) {
	for _, format := range []string{"list", "ellipse", "ellipse-list"} {
		cfg, err := LoadConfig(newFlagSet(t, "--input_path=in", "--annotations="+format))
		require.NoError(t, err)
		require.Equal(t, "in", cfg.MetadataPath, format)
	}

	cfg, err := LoadConfig(newFlagSet(t, "--input_path=in", "--metadata_path=meta",
		"--annotations=ellipse"))
	require.NoError(t, err)
	require.Equal(t, "meta", cfg.MetadataPath)

	cfg, err = LoadConfig(newFlagSet(t, "--input_path=in"))
	require.NoError(t, err)
	require.Empty(t, cfg.MetadataPath)
}

func TestLoadConfigUnknownAnnotations(t *testing.T) {
	_, err := LoadConfig(newFlagSet(t, "--annotations", "voc"))
	require.Error(t, err)
}
