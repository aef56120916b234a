package mcpmgr

import "fmt"

// Kind is the closed set of error discriminators a caller can branch on.
// It is the first-class, wire-stable identity of a failure; never pattern
// match on Error.Error() text.
type Kind string

const (
	KindInvalidConfig        Kind = "InvalidConfig"
	KindConnectionError      Kind = "ConnectionError"
	KindConnectionTimeout    Kind = "ConnectionTimeoutError"
	KindNotFound             Kind = "NotFound"
	KindNotReady             Kind = "NotReady"
	KindDisabled             Kind = "Disabled"
	KindInvalidArgs          Kind = "InvalidArgs"
	KindToolExecutionError   Kind = "ToolExecutionError"
	KindCancelled            Kind = "Cancelled"
)

// Error is the sum type carrying a Kind, the server the failure concerns,
// and an optional wrapped cause. User-visible messages always include the
// server name; Error never embeds secrets (tokens are redacted by callers
// before they reach here).
type Error struct {
	Kind   Kind
	Server string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Server == "" {
		if e.Err != nil {
			return fmt.Sprintf("mcpmgr: %s: %v", e.Kind, e.Err)
		}
		return fmt.Sprintf("mcpmgr: %s: %s", e.Kind, e.Reason)
	}
	if e.Err != nil {
		return fmt.Sprintf("mcpmgr: %s %q: %v", e.Kind, e.Server, e.Err)
	}
	return fmt.Sprintf("mcpmgr: %s %q: %s", e.Kind, e.Server, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// Hint returns a short remediation suggestion for the error's Kind, in the
// spirit of the original implementation's per-exception "Action:" guidance.
// It is advisory text for logs/init summaries, never part of the Kind
// discriminator.
func (e *Error) Hint() string {
	switch e.Kind {
	case KindInvalidConfig:
		return "check the catalog entry for this server: required fields, URL shape, or auth block"
	case KindConnectionError:
		return "verify the command is on PATH (stdio) or the URL is reachable (http)"
	case KindConnectionTimeout:
		return "the upstream did not complete its handshake within timeoutSeconds; consider raising it"
	case KindNotFound:
		return "the server name is not present in the catalog"
	case KindNotReady:
		return "the server session has not reached Ready; call reload or wait for initialize to finish"
	case KindDisabled:
		return "the server is present but enabled=false in the catalog"
	case KindInvalidArgs:
		return "the tool call arguments do not satisfy the tool's inputSchema"
	case KindToolExecutionError:
		return "the upstream tool call failed or the transport dropped mid-call"
	case KindCancelled:
		return "the caller cancelled the operation"
	default:
		return ""
	}
}

func newError(kind Kind, server string, reason string, err error) *Error {
	return &Error{Kind: kind, Server: server, Reason: reason, Err: err}
}

// KindOf extracts the Kind from err when it (or something it wraps) is an
// *Error, returning ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var me *Error
	for err != nil {
		if e, ok := err.(*Error); ok {
			me = e
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if me == nil {
		return "", false
	}
	return me.Kind, true
}
