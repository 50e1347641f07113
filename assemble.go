package lfwrecord

// Dataset assembly: enumeration, per image conversion and shard writing.

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// State is the stage of a conversion run.
type State int

// The run states, in order. A fatal error moves the run to Aborted.
const (
	Idle State = iota
	Enumerating
	Loading
	Parsing
	Normalizing
	Building
	Writing
	Closed
	Aborted
)

var stateNames = [...]string{"Idle", "Enumerating", "Loading", "Parsing", "Normalizing",
	"Building", "Writing", "Closed", "Aborted"}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Split is a named list of images to be written into one dataset.
type Split struct {
	Name   string   // The record file name, e.g. lfw_train.record.
	Images []string // Image paths, in write order.
}

// SplitStats summarises a written split.
type SplitStats struct {
	Name    string
	Shards  []string
	Records int
	Boxes   int
}

// Stats summarises a run.
type Stats struct {
	Splits       []SplitStats
	LabelMapPath string
}

// Records is the total number of records written.
func (s Stats) Records() int {
	n := 0
	for _, sp := range s.Splits {
		n += sp.Records
	}
	return n
}

// ProgressFunc is called after each record is written.
type ProgressFunc func(split string, done, total int)

// Option configures an Assembler.
type Option func(*Assembler)

// WithProgress sets a callback that is invoked after each written record.
func WithProgress(fn ProgressFunc) Option {
	return func(a *Assembler) { a.progress = fn }
}

// Assembler converts an image directory into TFRecord shards. An Assembler performs a single run.
type Assembler struct {
	cfg      Config
	rng      *rand.Rand
	progress ProgressFunc
	state    State

	ellipses map[string][]Shape // Loaded for EllipseListAnnotations.
}

// NewAssembler creates an Assembler for cfg.
func NewAssembler(cfg Config, opts ...Option) (*Assembler, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	a := &Assembler{
		cfg: cfg,
		rng: rand.New(rand.NewSource(seed)),
	}
	for _, opt := range opts {
		opt(a)
	}

	return a, nil
}

// State returns the current state of the run.
func (a *Assembler) State() State {
	return a.state
}

// Run enumerates the images, converts them and writes the shards and the label map. Any error
// aborts the whole run; records written before the error remain in the shard files.
func (a *Assembler) Run(ctx context.Context) (stats Stats, err error) {
	if a.state != Idle {
		return Stats{}, errors.Errorf("assembler already ran (state %v)", a.state)
	}
	defer func() {
		if err != nil {
			a.state = Aborted
		}
	}()

	a.state = Enumerating
	splits, err := a.Splits()
	if err != nil {
		return Stats{}, err
	}
	if a.cfg.Annotations == EllipseListAnnotations {
		if a.ellipses, err = loadEllipseLists(a.cfg.MetadataPath); err != nil {
			return Stats{}, err
		}
	}

	if err := os.MkdirAll(a.cfg.OutputPath, 0755); err != nil {
		return Stats{}, errors.Wrapf(err, "cannot create the output directory %q", a.cfg.OutputPath)
	}

	for _, split := range splits {
		s, err := a.writeSplit(ctx, split)
		stats.Splits = append(stats.Splits, s)
		if err != nil {
			return stats, err
		}
	}

	if err := SaveLabelMap(a.cfg.LabelMapPath, FaceLabelMap()); err != nil {
		return stats, err
	}
	stats.LabelMapPath = a.cfg.LabelMapPath
	a.state = Closed

	return stats, nil
}

// Splits returns the datasets to write. Split lists are used in file order; an enumerated image
// directory is shuffled.
func (a *Assembler) Splits() ([]Split, error) {
	if a.cfg.TrainFile != "" || a.cfg.TestFile != "" {
		var splits []Split
		for _, l := range []struct{ path, name string }{
			{a.cfg.TrainFile, TrainRecordName},
			{a.cfg.TestFile, TestRecordName},
		} {
			if l.path == "" {
				continue
			}
			klog.Infof("Reading split %s from %s", l.name, l.path)
			images, err := readSplitList(l.path, a.cfg.InputPath)
			if err != nil {
				return nil, err
			}
			splits = append(splits, Split{Name: l.name, Images: images})
		}
		return splits, nil
	}

	images, err := filesInDir(a.cfg.InputPath, isImageFile)
	if err != nil {
		return nil, err
	}
	a.rng.Shuffle(len(images), func(i, j int) {
		images[i], images[j] = images[j], images[i]
	})

	name := TrainRecordName
	if a.cfg.Eval {
		name = TestRecordName
	}
	klog.Infof("Found %d images in %s for %s", len(images), a.cfg.InputPath, name)

	return []Split{{Name: name, Images: images}}, nil
}

// writeSplit converts and writes all images of split. The shard files are closed on return.
func (a *Assembler) writeSplit(ctx context.Context, split Split) (stats SplitStats, err error) {
	stats.Name = split.Name
	path := filepath.Join(a.cfg.OutputPath, split.Name)
	w := NewShardWriter(path, a.cfg.NumShards, len(split.Images))
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = errors.Wrapf(cerr, "failed to close %q", path)
		}
		stats.Records = w.Count()
		stats.Shards = w.Paths()
	}()

	for i, imagePath := range split.Images {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		r, err := a.buildRecord(imagePath)
		if err != nil {
			return stats, errors.Wrapf(err, "failed to convert %q", imagePath)
		}

		a.state = Writing
		if err := w.Write(r); err != nil {
			return stats, err
		}
		stats.Boxes += len(r.Boxes)

		if a.progress != nil {
			a.progress(split.Name, i+1, len(split.Images))
		}
	}

	klog.Infof("Wrote %d records with %d boxes to %s", w.Count(), stats.Boxes, path)
	return stats, nil
}

// buildRecord loads the image at imagePath and its annotations and assembles the record.
func (a *Assembler) buildRecord(imagePath string) (*ImageRecord, error) {
	a.state = Loading
	img, err := loadImage(imagePath, imageOptions{
		MaxSide:     a.cfg.MaxSide,
		JPEGQuality: a.cfg.JPEGQuality,
	})
	if err != nil {
		return nil, err
	}

	a.state = Parsing
	shapes, err := a.shapes(imagePath)
	if err != nil {
		return nil, err
	}

	// Annotations are in pixels of the image on disk; the fractions hold for the resized image.
	a.state = Normalizing
	boxes, err := NormalizeAll(shapes, img.SrcWidth, img.SrcHeight)
	if err != nil {
		return nil, withLocation(err, imagePath, 0)
	}

	a.state = Building
	return NewImageRecord(filepath.Base(imagePath), img.Data, img.Format, img.Width, img.Height,
		boxes)
}

// shapes returns the annotated shapes for the image at imagePath.
func (a *Assembler) shapes(imagePath string) ([]Shape, error) {
	base := baseNoExt(imagePath)

	switch a.cfg.Annotations {
	case ListAnnotations:
		path := filepath.Join(a.cfg.MetadataPath, base+".txt")
		lines, err := readLines(path)
		if err != nil {
			return nil, err
		}
		shapes, err := ParseList(lines)
		return shapes, withLocation(err, path, 0)

	case EllipseAnnotations:
		path := filepath.Join(a.cfg.MetadataPath, base+".txt")
		lines, err := readLines(path)
		if err != nil {
			return nil, err
		}
		lines = trimBlankLines(lines)
		shapes, n, err := ParseEllipseBlock(lines)
		if err != nil {
			return nil, withLocation(err, path, 0)
		}
		if n != len(lines) {
			return nil, &Error{Kind: MalformedAnnotation, Path: path, Line: n + 1,
				Err: errors.Errorf("%d lines after the declared %d ellipses", len(lines)-n, n-1)}
		}
		return shapes, nil

	case EllipseListAnnotations:
		shapes, ok := a.ellipses[base]
		if !ok {
			return nil, errors.Wrapf(os.ErrNotExist, "no ellipse block for %q in %q", base,
				a.cfg.MetadataPath)
		}
		return shapes, nil
	}

	return []Shape{FullFrame{}}, nil
}

// trimBlankLines drops trailing empty lines.
func trimBlankLines(lines []string) []string {
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// loadEllipseLists parses all FDDB fold files (*.txt) in dir.
func loadEllipseLists(dir string) (map[string][]Shape, error) {
	files, err := filesInDir(dir, func(name string) bool {
		return strings.EqualFold(filepath.Ext(name), ".txt")
	})
	if err != nil {
		return nil, err
	}

	all := make(map[string][]Shape)
	for _, path := range files {
		lines, err := readLines(path)
		if err != nil {
			return nil, err
		}
		blocks, err := ParseEllipseList(lines)
		if err != nil {
			return nil, withLocation(err, path, 0)
		}
		for name, shapes := range blocks {
			if _, dup := all[name]; dup {
				return nil, &Error{Kind: MalformedAnnotation, Path: path,
					Err: errors.Errorf("duplicate block for %q", name)}
			}
			all[name] = shapes
		}
	}
	klog.Infof("Loaded ellipse annotations for %d images from %d files", len(all), len(files))

	return all, nil
}

// readSplitList reads a split list with "name<TAB>id" lines, naming the image
// imageDir/name_<id>.jpg with the id zero padded to four digits. Lines with fewer than two tokens
// are headers and are skipped.
func readSplitList(path, imageDir string) ([]string, error) {
	lines, err := readLines(path)
	if err != nil {
		return nil, err
	}

	images := make([]string, 0, len(lines))
	for i, line := range lines {
		tokens := strings.Fields(line)
		if len(tokens) < 2 {
			klog.V(1).Infof("Skipping header %q in %s", strings.TrimSpace(line), path)
			continue
		}

		id, err := strconv.Atoi(tokens[1])
		if err != nil {
			return nil, &Error{Kind: MalformedAnnotation, Path: path, Line: i + 1,
				Err: errors.Errorf("invalid image number %q", tokens[1])}
		}
		images = append(images, filepath.Join(imageDir, fmt.Sprintf("%s_%04d.jpg", tokens[0], id)))
	}

	return images, nil
}
