package webdriver

import (
	"errors"
	"fmt"
)

// W3C error codes the harness distinguishes.
const (
	CodeJavaScript        = "javascript error"
	CodeNoSuchWindow      = "no such window"
	CodeNoSuchFrame       = "no such frame"
	CodeNoSuchElement     = "no such element"
	CodeInvalidSessionID  = "invalid session id"
	CodeSessionNotCreated = "session not created"
	CodeScriptTimeout     = "script timeout"
	CodeInvalidArgument   = "invalid argument"
	CodeUnknownCommand    = "unknown command"
	CodeUnknownError      = "unknown error"
)

// legacyCodes maps JSON Wire Protocol status numbers, still returned by the
// chromedriver builds bundled with older Electron releases.
var legacyCodes = map[int]string{
	6:  CodeInvalidSessionID,
	7:  CodeNoSuchElement,
	8:  CodeNoSuchFrame,
	9:  CodeUnknownCommand,
	13: CodeUnknownError,
	17: CodeJavaScript,
	23: CodeNoSuchWindow,
	28: CodeScriptTimeout,
	33: CodeSessionNotCreated,
	61: CodeInvalidArgument,
}

// Error is a WebDriver error response.
type Error struct {
	Status  int    // HTTP status
	Code    string // W3C error code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("webdriver %s (HTTP %d): %s", e.Code, e.Status, e.Message)
}

// IsCode reports whether err is a WebDriver error with the given code.
func IsCode(err error, code string) bool {
	var wdErr *Error
	return errors.As(err, &wdErr) && wdErr.Code == code
}

// IsJavaScriptError reports a script that threw or was rejected.
func IsJavaScriptError(err error) bool { return IsCode(err, CodeJavaScript) }

// IsNoSuchFrame reports a frame switch to a missing frame.
func IsNoSuchFrame(err error) bool { return IsCode(err, CodeNoSuchFrame) }

// IsNoSuchWindow reports a command against a closed or unknown window.
func IsNoSuchWindow(err error) bool { return IsCode(err, CodeNoSuchWindow) }
