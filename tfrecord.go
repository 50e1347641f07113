package lfwrecord

// TFRecord shard files and the object detection label map.

import (
	"fmt"
	"io"
	"os"

	"github.com/golang/protobuf/proto"
	"github.com/pkg/errors"
	"github.com/ryszard/tfutils/go/tfrecord"
	"k8s.io/klog/v2"

	protos "github.com/sensorable/lfwrecord/protos"
)

// ShardWriter streams records into one or more TFRecord files. It is not safe for concurrent use.
type ShardWriter struct {
	path      string
	numShards int
	total     int

	file     *os.File
	shardIdx int
	count    int
	paths    []string
}

// ShardPath returns the path of shard idx for a dataset written to path with numShards shards.
func ShardPath(path string, idx, numShards int) string {
	if numShards <= 1 {
		return path
	}
	return path + fmt.Sprintf("-%05d-of-%05d", idx, numShards)
}

// NewShardWriter prepares writing total records to path, split into numShards files (with
// suffixes added when numShards>1). Record i goes to shard i*numShards/total, so shard sizes differ
// by at most one. Records beyond total are appended to the last shard. Close creates any shard
// that received no records, so all numShards files exist afterwards.
func NewShardWriter(path string, numShards, total int) *ShardWriter {
	if numShards <= 0 {
		numShards = 1
	}

	return &ShardWriter{
		path:      path,
		numShards: numShards,
		total:     total,
		shardIdx:  -1,
	}
}

// shardFor returns the shard index of the record with the given index.
func (w *ShardWriter) shardFor(idx int) int {
	if idx >= w.total {
		return w.numShards - 1
	}
	return idx * w.numShards / w.total
}

// Write serialises r and appends it to the current shard.
func (w *ShardWriter) Write(r *ImageRecord) error {
	enc, err := MarshalRecord(r)
	if err != nil {
		return errors.Wrapf(err, "failed to encode %q", r.Filename)
	}

	// Open shard files until the one this record belongs to is current.
	for w.shardIdx < w.shardFor(w.count) {
		if err := w.openNext(); err != nil {
			return err
		}
	}

	if err := tfrecord.Write(w.file, enc); err != nil {
		return errors.Wrapf(err, "failed to write %q to %q", r.Filename, w.file.Name())
	}
	w.count++

	return nil
}

func (w *ShardWriter) openNext() error {
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			return errors.Wrapf(err, "failed to close shard %q", w.file.Name())
		}
		w.file = nil
	}

	w.shardIdx++
	shardPath := ShardPath(w.path, w.shardIdx, w.numShards)
	f, err := os.Create(shardPath)
	if err != nil {
		return errors.Wrapf(err, "failed to create shard at %q", shardPath)
	}
	klog.V(1).Infof("Writing shard %s", shardPath)
	w.file = f
	w.paths = append(w.paths, shardPath)

	return nil
}

// Paths returns the paths of the shard files created so far.
func (w *ShardWriter) Paths() []string {
	return append([]string(nil), w.paths...)
}

// Count returns the number of records written.
func (w *ShardWriter) Count() int {
	return w.count
}

// Close closes the current shard, creating empty files for the shards not reached yet.
func (w *ShardWriter) Close() error {
	for w.shardIdx < w.numShards-1 {
		if err := w.openNext(); err != nil {
			return err
		}
	}
	if w.file == nil {
		return nil
	}

	err := w.file.Close()
	w.file = nil
	return err
}

// ReadShard decodes all records in the TFRecord file at path.
func ReadShard(path string) (records []*ImageRecord, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read shard %q", path)
	}
	defer closeWithErrCheck(f, &err)

	for {
		data, err := tfrecord.Read(f)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read record %d from %q", len(records), path)
		}

		r, err := UnmarshalRecord(data)
		if err != nil {
			return nil, errors.Wrapf(err, "record %d in %q", len(records), path)
		}
		records = append(records, r)
	}

	return records, nil
}

// SaveLabelMap converts labelMap to prototxt format and writes it to path.
func SaveLabelMap(path string, labelMap map[string]int32) (err error) {
	// Copy the label map into the protobuf structure, ordered by ID.
	siLabelMap := &protos.StringIntLabelMap{}
	siLabelMap.Item = make([]*protos.StringIntLabelMapItem, 0, len(labelMap))
	for k, v := range labelMap {
		siLabelMap.Item = append(siLabelMap.Item, &protos.StringIntLabelMapItem{
			Name: proto.String(k),
			Id:   proto.Int32(v),
		})
	}
	siLabelMap.SortByID()

	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create the label map file %q", path)
	}
	defer closeWithErrCheck(file, &err)

	if err := proto.MarshalText(file, siLabelMap); err != nil {
		return errors.Wrapf(err, "failed to write the label map %q", path)
	}

	return nil
}

// LoadLabelMap loads the label map from path.
//
// If an error occurs because the file does not exist, then errors.Is(err, os.ErrNotExist) will
// return true for the error.
func LoadLabelMap(path string) (map[string]int32, error) {
	text, err := readFile(path)
	if err != nil {
		return nil, err
	}

	var siLabelMap protos.StringIntLabelMap
	if err := proto.UnmarshalText(string(text), &siLabelMap); err != nil {
		return nil, errors.Wrapf(err, "failed to parse the label map %q", path)
	}

	labelMap := make(map[string]int32, len(siLabelMap.Item))
	for _, item := range siLabelMap.Item {
		k, v := item.GetName(), item.GetId()
		if k == "" || v <= 0 {
			return nil, errors.Errorf("invalid entry: %s: %d", k, v)
		}
		labelMap[k] = v
	}

	return labelMap, nil
}

// FaceLabelMap is the label map of the single class face dataset.
func FaceLabelMap() map[string]int32 {
	return map[string]int32{FaceClassName: FaceClassID}
}
