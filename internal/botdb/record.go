// Package botdb persists the mutable per-account state spec §3/§5
// requires every bot to keep across restarts: the remembered session
// key, the sentry file, and the mobile authenticator enrollment.
// Persistence format is explicitly out of scope (spec §1) — only the
// write-through, atomic-replace, thread-safe semantics are contractual.
package botdb

// MobileAuth holds the enrollment data for a bot's mobile
// authenticator, if any (spec §3).
type MobileAuth struct {
	SharedSecret   []byte `json:"shared_secret"`
	IdentitySecret []byte `json:"identity_secret"`
	DeviceID       string `json:"device_id"`
	// WebCookies holds the web session cookies captured at enrollment
	// time, reused to avoid a second login round-trip.
	WebCookies map[string]string `json:"web_cookies,omitempty"`
}

// Enrolled reports whether a mobile authenticator is configured.
func (m *MobileAuth) Enrolled() bool {
	return m != nil && len(m.SharedSecret) > 0 && len(m.IdentitySecret) > 0
}

// Record is the mutable per-account database (spec §3). Every field
// mutation is persisted synchronously via Store.Save before the
// mutating call returns (spec §5's "shared-resource policy").
type Record struct {
	AccountID int64 `json:"account_id"`

	// SessionKey is the remembered session key. Its presence means the
	// account's password can be omitted on the next connect.
	SessionKey []byte `json:"session_key,omitempty"`

	// SentryHash is the SHA-1 over the full sentry file contents,
	// computed on receipt of updateMachineAuth (spec §4.5).
	SentryFile []byte `json:"sentry_file,omitempty"`
	SentryHash []byte `json:"sentry_hash,omitempty"`

	MobileAuth *MobileAuth `json:"mobile_auth,omitempty"`
}

// Clone returns a deep copy so callers can mutate a working copy
// before handing it back to Store.Save without racing a concurrent
// reader.
func (r *Record) Clone() *Record {
	if r == nil {
		return &Record{}
	}
	out := *r
	out.SessionKey = append([]byte(nil), r.SessionKey...)
	out.SentryFile = append([]byte(nil), r.SentryFile...)
	out.SentryHash = append([]byte(nil), r.SentryHash...)
	if r.MobileAuth != nil {
		ma := *r.MobileAuth
		ma.SharedSecret = append([]byte(nil), r.MobileAuth.SharedSecret...)
		ma.IdentitySecret = append([]byte(nil), r.MobileAuth.IdentitySecret...)
		if r.MobileAuth.WebCookies != nil {
			ma.WebCookies = make(map[string]string, len(r.MobileAuth.WebCookies))
			for k, v := range r.MobileAuth.WebCookies {
				ma.WebCookies[k] = v
			}
		}
		out.MobileAuth = &ma
	}
	return &out
}

// GlobalRecord is the cross-bot state shared by every account on this
// daemon (spec §3): a cell-id hint used to pre-seed server selection on
// connect.
type GlobalRecord struct {
	CellID int32 `json:"cell_id"`
}
