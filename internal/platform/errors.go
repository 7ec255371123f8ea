// Package platform is the Platform Client boundary (spec §6): session
// connect/disconnect, login, sentry-file challenge/response,
// play-games notification, key redemption, and the web-session HTML/
// JSON helpers used by the Cards Farmer, Trading, and Mobile
// Authenticator. Everything above this package talks to the remote
// service only through the types defined here.
package platform

import "fmt"

// ServerError wraps a non-OK result code returned by the platform for
// an RPC, distinguishing it from a transport-level failure.
type ServerError struct {
	Op   string
	Code string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("platform: %s: server returned %s", e.Op, e.Code)
}

// DisconnectReason classifies why a session ended, driving both the
// watchdog's retry decision and the logged message. Grounded 1:1 on
// the teacher's internal/bot/network.go DisconnectReason enum.
type DisconnectReason int

const (
	DisconnectUnknown DisconnectReason = iota
	DisconnectPingFailed
	DisconnectReadError
	DisconnectKickout
	DisconnectHeartbeatTimeout
	DisconnectLoginFailed
	DisconnectLoginTimeout
	DisconnectClosed
	// DisconnectInvalidPassword is this spec's addition: a sticky
	// failure mode (spec §4.5) that the watchdog must not retry with
	// the same credentials without the 25-minute throttle.
	DisconnectInvalidPassword
	// DisconnectLoggedInElsewhere models spec §7's "platform-busy"
	// error kind: the account is active on another device.
	DisconnectLoggedInElsewhere
)

func (r DisconnectReason) String() string {
	switch r {
	case DisconnectPingFailed:
		return "ping failed"
	case DisconnectReadError:
		return "read error"
	case DisconnectKickout:
		return "kicked out"
	case DisconnectHeartbeatTimeout:
		return "heartbeat timeout"
	case DisconnectLoginFailed:
		return "login failed"
	case DisconnectLoginTimeout:
		return "login timeout"
	case DisconnectClosed:
		return "closed"
	case DisconnectInvalidPassword:
		return "invalid password"
	case DisconnectLoggedInElsewhere:
		return "logged in elsewhere"
	default:
		return "unknown"
	}
}

// Retryable reports whether the watchdog should attempt a fresh
// connect after this disconnect. Invalid-password and a fully closed
// (user-initiated) session are not retried by the watchdog itself —
// the Bot state machine handles those with its own throttle/no-op.
func (r DisconnectReason) Retryable() bool {
	switch r {
	case DisconnectClosed, DisconnectInvalidPassword:
		return false
	default:
		return true
	}
}

// connectError pairs a DisconnectReason with the underlying cause, the
// shape the watchdog's reconnect loop switches on.
type connectError struct {
	reason DisconnectReason
	cause  error
}

func (e *connectError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("platform: %s: %v", e.reason, e.cause)
	}
	return fmt.Sprintf("platform: %s", e.reason)
}

func (e *connectError) Unwrap() error { return e.cause }

func (e *connectError) Reason() DisconnectReason { return e.reason }
