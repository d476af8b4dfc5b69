package errors

import (
	stderrors "errors"
	"fmt"
)

// error codes
const (
	Err0 = iota
	ErrInput
	ErrLoad
	ErrEnumerate
	ErrLayout
	ErrDuplicate
	ErrRender
	ErrWrite
)

var codeNames = map[uint32]string{
	Err0:         "ok",
	ErrInput:     "input",
	ErrLoad:      "load",
	ErrEnumerate: "enumerate",
	ErrLayout:    "layout",
	ErrDuplicate: "duplicate symbol",
	ErrRender:    "render",
	ErrWrite:     "write",
}

type ProxyError struct {
	Code uint32
	Op   string
	Err  error
}

func (e *ProxyError) Error() string {
	name, ok := codeNames[e.Code]
	if !ok {
		name = fmt.Sprintf("%d", e.Code)
	}
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", name, e.Op, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", name, e.Op)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", name, e.Err)
	}
	return name
}

func (e *ProxyError) Unwrap() error {
	return e.Err
}

// New creates a new ProxyError describing op
func New(code uint32, op string) error {
	return &ProxyError{Code: code, Op: op}
}

// Newf is New with a formatted op
func Newf(code uint32, format string, a ...any) error {
	return &ProxyError{Code: code, Op: fmt.Sprintf(format, a...)}
}

// Wrap attaches a code and op to err. A nil err stays nil.
func Wrap(code uint32, op string, err error) error {
	if err == nil {
		return nil
	}
	return &ProxyError{Code: code, Op: op, Err: err}
}

// IsCode checks if an error chain carries a specific error code
func IsCode(err error, code uint32) bool {
	var pe *ProxyError
	for err != nil {
		if !stderrors.As(err, &pe) {
			return false
		}
		if pe.Code == code {
			return true
		}
		err = pe.Err
	}
	return false
}
