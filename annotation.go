package lfwrecord

// Ground truth annotation formats.
//
// Three encodings are supported: no annotation at all (a full-frame box), per-line box lists and
// grouped ellipse blocks as used by FDDB.

import (
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Number of tokens in a list format line carrying a box: prefix, flag, x, y, width, height.
const listBoxTokens = 6

// Number of numeric fields in an ellipse line, excluding the trailing tag.
const ellipseFields = 5

// parseFloat parses a numeric annotation field. NaN and infinite values are rejected.
func parseFloat(token string) (float64, error) {
	v, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return 0, malformed("unexpected value %q: %v", token, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, malformed("non-finite value %q", token)
	}
	return v, nil
}

// ParseListLine parses a single list format line of the form "<prefix> <flag> x y width height".
//
// ok is false if the line does not contribute a box, either because it has fewer than two tokens
// (header and footer lines) or because the flag is false.
func ParseListLine(line string) (s Shape, ok bool, err error) {
	tokens := strings.Fields(line)
	if len(tokens) < 2 {
		return nil, false, nil
	}

	hasFace, err := strconv.ParseBool(tokens[1])
	if err != nil {
		return nil, false, malformed("unexpected flag in %q", line)
	}
	if !hasFace {
		return nil, false, nil
	}

	if len(tokens) < listBoxTokens {
		return nil, false, malformed("insufficient tokens in %q", line)
	}
	var v [4]float64
	for i := range v {
		if v[i], err = parseFloat(tokens[2+i]); err != nil {
			return nil, false, err
		}
	}

	return Rect{X: v[0], Y: v[1], W: v[2], H: v[3]}, true, nil
}

// ParseList parses all lines in the list format.
func ParseList(lines []string) ([]Shape, error) {
	shapes := make([]Shape, 0, len(lines))
	for i, line := range lines {
		s, ok, err := ParseListLine(line)
		if err != nil {
			return nil, withLocation(err, "", i+1)
		}
		if ok {
			shapes = append(shapes, s)
		}
	}
	return shapes, nil
}

// parseEllipseLine parses "major minor angle cx cy" followed by a two-field tag.
func parseEllipseLine(line string) (Ellipse, error) {
	tokens := strings.Fields(line)
	if len(tokens) < ellipseFields {
		return Ellipse{}, malformed("insufficient tokens in %q", line)
	}
	if len(tokens) > ellipseFields+2 {
		return Ellipse{}, malformed("too many tokens in %q", line)
	}

	var v [ellipseFields]float64
	var err error
	for i := range v {
		if v[i], err = parseFloat(tokens[i]); err != nil {
			return Ellipse{}, err
		}
	}

	return Ellipse{
		MajorRadius:  v[0],
		MinorRadius:  v[1],
		AngleDegrees: v[2],
		CenterX:      v[3],
		CenterY:      v[4],
	}, nil
}

// ParseEllipseBlock parses one grouped ellipse block: a count line followed by that many ellipse
// lines. It returns the shapes and the number of lines consumed.
func ParseEllipseBlock(lines []string) ([]Shape, int, error) {
	if len(lines) == 0 {
		return nil, 0, malformed("missing count line")
	}

	count, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil || count < 0 {
		return nil, 0, withLocation(malformed("invalid count %q", lines[0]), "", 1)
	}
	if len(lines)-1 < count {
		return nil, 0, malformed("expected %d ellipses, found %d lines", count, len(lines)-1)
	}

	shapes := make([]Shape, count)
	for i := 0; i < count; i++ {
		e, err := parseEllipseLine(lines[1+i])
		if err != nil {
			return nil, 0, withLocation(err, "", 2+i)
		}
		shapes[i] = e
	}

	return shapes, 1 + count, nil
}

// ParseEllipseList parses an FDDB fold file, in which each ellipse block is preceded by the image
// name (without extension). The returned map is keyed by EllipseListKey of the name, so blocks for
// images of the same name in different directories stay apart.
func ParseEllipseList(lines []string) (map[string][]Shape, error) {
	blocks := make(map[string][]Shape)
	for i := 0; i < len(lines); {
		name := strings.TrimSpace(lines[i])
		if name == "" {
			i++
			continue
		}

		shapes, n, err := ParseEllipseBlock(lines[i+1:])
		if err != nil {
			// Shift the block relative line number to the file line number.
			var e *Error
			if errors.As(err, &e) && e.Line > 0 {
				e.Line += i + 1
			}
			return nil, errors.Wrapf(err, "block for %q", name)
		}
		key := EllipseListKey(name)
		if _, dup := blocks[key]; dup {
			return nil, withLocation(malformed("duplicate block for %q", name), "", i+1)
		}

		blocks[key] = shapes
		i += 1 + n
	}

	return blocks, nil
}

// EllipseListKey flattens an FDDB image name such as "2002/08/11/big/img_591" into the base name
// "2002_08_11_big_img_591" that the image is expected to carry in a flat input directory.
func EllipseListKey(name string) string {
	name = strings.TrimPrefix(filepath.ToSlash(strings.TrimSpace(name)), "/")
	name = strings.TrimSuffix(name, filepath.Ext(name))
	return strings.ReplaceAll(name, "/", "_")
}
