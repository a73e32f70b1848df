package errs

import (
	stderr "errors"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// CodeError is the gateway-wide failure value. Code identifies the
// failure class for metrics, Msg is the machine-readable reason string
// that goes on the wire, Detail is free-form operator context.
type CodeError struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

func NewCodeError(code int, msg string) *CodeError {
	return &CodeError{Code: code, Msg: msg}
}

func (e *CodeError) Error() string {
	parts := make([]string, 0, 3)
	parts = append(parts, strconv.Itoa(e.Code), e.Msg)
	if e.Detail != "" {
		parts = append(parts, e.Detail)
	}
	return strings.Join(parts, " ")
}

// WithDetail returns a copy carrying extra detail; the original stays
// usable as an errors.Is target.
func (e *CodeError) WithDetail(detail string) *CodeError {
	d := detail
	if e.Detail != "" {
		d = e.Detail + ", " + detail
	}
	return &CodeError{Code: e.Code, Msg: e.Msg, Detail: d}
}

// Is matches any CodeError with the same code, so wrapped and
// detail-augmented copies still compare equal to the sentinel.
func (e *CodeError) Is(target error) bool {
	var ce *CodeError
	if !stderr.As(target, &ce) {
		return false
	}
	return e.Code == ce.Code
}

// Wrap attaches a stack to err. Returns nil for nil.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return errors.WithStack(err)
}

// WrapMsg attaches a stack and a message to err.
func WrapMsg(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, msg)
}

// Reason extracts the machine-readable reason from err, falling back to
// the plain error text for non-coded errors.
func Reason(err error) string {
	var ce *CodeError
	if stderr.As(err, &ce) {
		return ce.Msg
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

// CodeOf returns the failure-class code of err, or 0 when err carries none.
func CodeOf(err error) int {
	var ce *CodeError
	if stderr.As(err, &ce) {
		return ce.Code
	}
	return 0
}

func New(msg string) error { return errors.New(msg) }
