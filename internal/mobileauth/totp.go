// Package mobileauth implements the Mobile Authenticator (spec §4.2):
// time-based 2FA code generation and the confirmation fetch/accept/
// deny pipeline, both signed with the account's identity secret.
package mobileauth

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
	"strconv"
	"time"
)

func realNowUnix() int64 { return time.Now().Unix() }

const (
	codeChars   = "23456789BCDFGHJKMNPQRTVWXY"
	codeLength  = 5
	timeStepSec = 30
)

// Authenticator holds one account's enrollment secrets (spec §3's
// mobile-authenticator block) and derives codes and confirmation
// signatures from them. The zero value is not enrolled; callers should
// check Enrolled before use.
type Authenticator struct {
	SharedSecret   []byte
	IdentitySecret []byte
	DeviceID       string

	// nowUnix lets tests substitute a fixed time for wall-clock time
	// without a Clock dependency here; nil means "use real time".
	nowUnix func() int64
}

// New constructs an Authenticator from the base64-or-raw secrets stored
// in botdb.MobileAuth.
func New(sharedSecret, identitySecret []byte, deviceID string) *Authenticator {
	return &Authenticator{SharedSecret: sharedSecret, IdentitySecret: identitySecret, DeviceID: deviceID}
}

func (a *Authenticator) Enrolled() bool {
	return a != nil && len(a.SharedSecret) > 0 && len(a.IdentitySecret) > 0
}

func (a *Authenticator) timeNow() int64 {
	if a.nowUnix != nil {
		return a.nowUnix()
	}
	return realNowUnix()
}

// GenerateToken returns the current 5-character login code and the
// number of seconds remaining until the next 30-second bucket rolls
// over (spec §4.2).
func (a *Authenticator) GenerateToken() (code string, secondsRemaining int) {
	now := a.timeNow()
	bucket := now / timeStepSec
	secondsRemaining = int(timeStepSec - (now % timeStepSec))
	return hotpCode(a.SharedSecret, bucket), secondsRemaining
}

func hotpCode(secret []byte, counter int64) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(counter))

	mac := hmac.New(sha1.New, secret)
	mac.Write(buf[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0F
	value := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7FFFFFFF

	out := make([]byte, codeLength)
	for i := range out {
		out[i] = codeChars[value%uint32(len(codeChars))]
		value /= uint32(len(codeChars))
	}
	return string(out)
}

// confirmationSignature signs a confirmation-fetch or accept/deny
// request with the identity secret, the way the platform requires
// (spec §4.2: "signed via identity-secret + current time").
func (a *Authenticator) confirmationSignature(tag string, now int64) string {
	payload := strconv.FormatInt(now, 10) + tag
	mac := hmac.New(sha1.New, a.IdentitySecret)
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
