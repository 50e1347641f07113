package lfwrecord

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// AnnotationFormat selects the source of the ground truth boxes.
type AnnotationFormat string

// The known annotation formats.
const (
	// FullFrameAnnotations labels every image with a single box covering the whole frame.
	FullFrameAnnotations AnnotationFormat = "fullframe"
	// ListAnnotations reads "<prefix> <flag> x y w h" lines from <image base name>.txt.
	ListAnnotations AnnotationFormat = "list"
	// EllipseAnnotations reads a count line and ellipse lines from <image base name>.txt.
	EllipseAnnotations AnnotationFormat = "ellipse"
	// EllipseListAnnotations reads FDDB fold files (*.txt) with named ellipse blocks. Images are
	// matched by their flattened FDDB name, e.g. 2002_08_11_big_img_591.jpg for the block
	// named 2002/08/11/big/img_591.
	EllipseListAnnotations AnnotationFormat = "ellipse-list"
)

func (f AnnotationFormat) valid() bool {
	switch f {
	case FullFrameAnnotations, ListAnnotations, EllipseAnnotations, EllipseListAnnotations:
		return true
	}
	return false
}

// The shard names of the two splits.
const (
	TrainRecordName = "lfw_train.record"
	TestRecordName  = "lfw_test.record"
	LabelMapName    = "lfw_label_map.pbtxt"
)

// The environment variable prefix for configuration overrides.
const envPrefix = "LFWRECORD"

// Config is the configuration of a conversion run. It is not modified once a run has started.
type Config struct {
	InputPath    string // The image directory.
	OutputPath   string // The directory for the shards and the label map.
	MetadataPath string // The annotation directory (defaults to InputPath for list annotations).
	TrainFile    string // An optional train split list; disables directory enumeration.
	TestFile     string // An optional test split list; disables directory enumeration.
	Eval         bool   // Write the test shard instead of the train shard when enumerating.

	Annotations  AnnotationFormat
	Seed         int64  // The shuffle seed; zero seeds from the clock.
	NumShards    int    // The number of files per split.
	LabelMapPath string // Defaults to OutputPath/lfw_label_map.pbtxt.
	MaxSide      int    // Downscale images with a longer side above this; zero disables it.
	JPEGQuality  int    // Used when images are re-encoded.
}

// Flag names. They double as the configuration keys.
const (
	flagOutputPath   = "output_path"
	flagInputPath    = "input_path"
	flagMetadataPath = "metadata_path"
	flagTrainFile    = "train_file"
	flagTestFile     = "test_file"
	flagEval         = "eval"
	flagAnnotations  = "annotations"
	flagSeed         = "seed"
	flagNumShards    = "num_shards"
	flagLabelMapPath = "label_map_path"
	flagMaxSide      = "max_side"
	flagJPEGQuality  = "jpeg_quality"
)

// RegisterFlags adds the conversion flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String(flagOutputPath, "", "Path to the output directory for the TFRecord shards")
	fs.String(flagInputPath, "", "Path to the input image directory")
	fs.String(flagMetadataPath, "", "Path to the annotation directory (default <input_path>)")
	fs.String(flagTrainFile, "", "Path to the training split list")
	fs.String(flagTestFile, "", "Path to the test split list")
	fs.Bool(flagEval, false, "Write the test shard instead of the train shard")
	fs.String(flagAnnotations, string(FullFrameAnnotations),
		"The annotation `format` {fullframe, list, ellipse, ellipse-list}")
	fs.Int64(flagSeed, 0, "The shuffle seed (0 seeds from the clock)")
	fs.Int(flagNumShards, 1, "The number of shard files per split")
	fs.String(flagLabelMapPath, "", "The label map `path` (default <output_path>/"+LabelMapName+")")
	fs.Int(flagMaxSide, 0, "Downscale images whose longer side exceeds this many `pixels`")
	fs.Int(flagJPEGQuality, 92, "The quality to use when re-encoding JPEGs [1, 100]")
}

// LoadConfig reads the configuration from the flags in fs, which must have been registered with
// RegisterFlags. Every flag can be overridden from the environment, e.g. LFWRECORD_INPUT_PATH.
func LoadConfig(fs *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return Config{}, errors.Wrap(err, "failed to bind flags")
	}

	cfg := Config{
		InputPath:    v.GetString(flagInputPath),
		OutputPath:   v.GetString(flagOutputPath),
		MetadataPath: v.GetString(flagMetadataPath),
		TrainFile:    v.GetString(flagTrainFile),
		TestFile:     v.GetString(flagTestFile),
		Eval:         v.GetBool(flagEval),
		Annotations:  AnnotationFormat(v.GetString(flagAnnotations)),
		Seed:         v.GetInt64(flagSeed),
		NumShards:    v.GetInt(flagNumShards),
		LabelMapPath: v.GetString(flagLabelMapPath),
		MaxSide:      v.GetInt(flagMaxSide),
		JPEGQuality:  v.GetInt(flagJPEGQuality),
	}

	return cfg.withDefaults()
}

// withDefaults fills in derived defaults and rejects unknown enum values.
func (c Config) withDefaults() (Config, error) {
	if c.Annotations == "" {
		c.Annotations = FullFrameAnnotations
	}
	if !c.Annotations.valid() {
		return c, errors.Errorf("unknown annotation format %q", c.Annotations)
	}
	if c.NumShards <= 0 {
		c.NumShards = 1
	}
	if c.JPEGQuality == 0 {
		c.JPEGQuality = 92
	}
	if c.LabelMapPath == "" {
		c.LabelMapPath = filepath.Join(c.OutputPath, LabelMapName)
	}
	if c.MetadataPath == "" && c.Annotations != FullFrameAnnotations {
		c.MetadataPath = c.InputPath
	}
	return c, nil
}
