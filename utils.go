package lfwrecord

import (
	"bufio"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/karrick/godirwalk"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// imageExts are the file extensions (lower case) treated as images during enumeration.
var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

// isImageFile reports whether name has an image file extension.
func isImageFile(name string) bool {
	return imageExts[strings.ToLower(filepath.Ext(name))]
}

// filesInDir returns the sorted paths of all regular files (or symlinks) found directly in dirPath
// for which keep returns true. Hidden files are skipped.
func filesInDir(dirPath string, keep func(name string) bool) ([]string, error) {
	dirents, err := godirwalk.ReadDirents(dirPath, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read directory %q", dirPath)
	}

	files := make([]string, 0, len(dirents))
	for _, de := range dirents {
		name := de.Name()
		if strings.HasPrefix(name, ".") || !(de.IsRegular() || de.IsSymlink()) {
			continue
		}
		if !keep(name) {
			klog.V(2).Infof("Skipping %q", name)
			continue
		}
		files = append(files, filepath.Join(dirPath, name))
	}
	sort.Strings(files)

	return files, nil
}

// baseNoExt returns the base name of path without its file extension.
func baseNoExt(path string) string {
	base := filepath.Base(path)
	return base[0 : len(base)-len(filepath.Ext(base))]
}

// readLines returns a slice of lines read from the file at path.
func readLines(path string) (lines []string, err error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read file %q", path)
	}
	defer closeWithErrCheck(file, &err)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to read %q as lines", path)
	}

	return lines, nil
}

// readFile uses ioutil.ReadAll to read the file at path.
func readFile(path string) (data []byte, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read file %q", path)
	}
	defer closeWithErrCheck(f, &err)

	data, err = ioutil.ReadAll(f)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %q", path)
	}

	return data, nil
}

// closeWithErrCheck calls c.Close(). If it returns an error, and (*e == nil), e is set to that
// error.
func closeWithErrCheck(c io.Closer, e *error) {
	err := c.Close()
	if err != nil && *e == nil {
		*e = err
	}
}
