package lfwrecord

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies the fatal data errors of a conversion run.
type Kind int

// The error kinds. Both abort the run.
const (
	// MalformedAnnotation is an unparsable token, a wrong field count or a count mismatch.
	MalformedAnnotation Kind = iota + 1
	// NumericIntegrity is a NaN coordinate or a non-positive image dimension.
	NumericIntegrity
)

func (k Kind) String() string {
	switch k {
	case MalformedAnnotation:
		return "malformed annotation"
	case NumericIntegrity:
		return "numeric integrity"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is a fatal data error. Path and Line locate the offending input when known.
type Error struct {
	Kind Kind
	Path string
	Line int // 1-based, 0 if unknown.
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Path != "" && e.Line > 0:
		return fmt.Sprintf("%v: %s:%d: %v", e.Kind, e.Path, e.Line, e.Err)
	case e.Path != "":
		return fmt.Sprintf("%v: %s: %v", e.Kind, e.Path, e.Err)
	}
	return fmt.Sprintf("%v: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err, or any error it wraps, is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

func malformed(format string, args ...interface{}) error {
	return &Error{Kind: MalformedAnnotation, Err: errors.Errorf(format, args...)}
}

func integrity(format string, args ...interface{}) error {
	return &Error{Kind: NumericIntegrity, Err: errors.Errorf(format, args...)}
}

// withLocation sets the path and line of err if it is an *Error without a location.
func withLocation(err error, path string, line int) error {
	var e *Error
	if !errors.As(err, &e) {
		return err
	}
	if e.Path == "" {
		e.Path = path
	}
	if e.Line == 0 {
		e.Line = line
	}
	return err
}
