// Package apperr provides the structured error type shared by the clip
// pipeline, its adapters and the HTTP surface
package apperr

import (
	stderrs "errors"
	"fmt"
	"net/http"
)

// Code classifies an error for callers; values are stable
type Code uint8

const (
	// CodeUnknown is for unclassified errors
	CodeUnknown Code = iota

	// CodeInput is for caller-correctable input problems (e.g. no transcript)
	CodeInput

	// CodeNotFound is for missing sources or profiles
	CodeNotFound

	// CodeConflict is for illegal state transitions
	CodeConflict

	// CodeQuotaExceeded is for plan limits; maps to an upgrade prompt
	CodeQuotaExceeded

	// CodeResponseParse is for model output that is not JSON
	CodeResponseParse

	// CodeProvider is for network/auth failures calling the language model
	CodeProvider

	// CodePersistence is for store failures
	CodePersistence
)

var codeNames = [...]string{
	CodeUnknown:       "unknown",
	CodeInput:         "input",
	CodeNotFound:      "not_found",
	CodeConflict:      "conflict",
	CodeQuotaExceeded: "quota_exceeded",
	CodeResponseParse: "response_parse",
	CodeProvider:      "provider",
	CodePersistence:   "persistence",
}

func (c Code) String() string {
	if int(c) < len(codeNames) {
		return codeNames[c]
	}
	return "unknown"
}

// HTTPStatusCode turns a Code into an http status code
func HTTPStatusCode(c Code) int {
	switch c {
	case CodeInput:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeQuotaExceeded:
		return http.StatusForbidden
	case CodeResponseParse, CodeProvider:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

var (
	// ErrMissingTranscript is returned when a source has neither transcript form
	ErrMissingTranscript = New(CodeInput, "no transcript available, transcribe first")

	// ErrQuotaExceeded is returned when the plan's monthly clip limit is used up
	ErrQuotaExceeded = New(CodeQuotaExceeded, "plan limit reached, upgrade for more clips")
)

// Error carries a code, a message, an optional operation tag and a cause
type Error struct {
	orig error
	msg  string
	code Code
	op   string
}

// Wire is the JSON form returned by the HTTP surface
type Wire struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.msg
	if e.op != "" {
		msg = e.op + ": " + msg
	}
	if e.orig != nil {
		return fmt.Sprintf("%s: %v", msg, e.orig)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.orig }

// Is matches another *Error by code and message so sentinels survive WithOp
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t == nil || e == nil {
		return false
	}
	return e.code == t.code && e.msg == t.msg
}

func (e *Error) Code() Code { return e.code }

func (e *Error) Op() string { return e.op }

func (e *Error) ToWire() Wire { return Wire{Code: e.code.String(), Message: e.msg} }

// New returns a new *Error with the given code and message
func New(code Code, msg string) error { return &Error{code: code, msg: msg} }

// Newf returns a new *Error with code and formatted message
func Newf(code Code, format string, a ...any) error {
	return &Error{code: code, msg: fmt.Sprintf(format, a...)}
}

// Wrap returns a new *Error that wraps orig with code and message
func Wrap(orig error, code Code, msg string) error {
	return &Error{code: code, msg: msg, orig: orig}
}

// Wrapf returns a new *Error that wraps orig with code and formatted message
func Wrapf(orig error, code Code, format string, a ...any) error {
	return &Error{code: code, msg: fmt.Sprintf(format, a...), orig: orig}
}

// WithOp attaches an operation label (copy-on-write). Foreign errors are
// returned unchanged
func WithOp(err error, op string) error {
	if e, ok := As(err); ok {
		c := *e
		c.op = op
		return &c
	}
	return err
}

// Ensure keeps err's code when it already is an *Error, otherwise wraps it
// with code and msg
func Ensure(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	if _, ok := As(err); ok {
		return err
	}
	return Wrap(err, code, msg)
}

// As unwraps and returns (*Error, true) if err is one of ours
func As(err error) (*Error, bool) {
	var e *Error
	if stderrs.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf extracts a Code from any error, defaulting to Unknown
func CodeOf(err error) Code {
	if e, ok := As(err); ok {
		return e.code
	}
	return CodeUnknown
}

// IsCode reports whether err has the given code
func IsCode(err error, code Code) bool { return CodeOf(err) == code }

// Retryable reports whether re-invoking the operation may succeed
func Retryable(err error) bool {
	switch CodeOf(err) {
	case CodeResponseParse, CodeProvider:
		return true
	default:
		return false
	}
}

// HTTP bundles status + wire in one shot
func HTTP(err error) (int, Wire) {
	if err == nil {
		return http.StatusOK, Wire{}
	}
	if e, ok := As(err); ok {
		return HTTPStatusCode(e.code), e.ToWire()
	}
	return http.StatusInternalServerError, Wire{Code: CodeUnknown.String(), Message: "internal error"}
}
