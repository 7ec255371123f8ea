package ratelimit

import "time"

// Default post-release delays for the two process-wide gates spec §4.1
// requires: login attempts and gift-accept calls.
const (
	DefaultLoginDelay = 10 * time.Second
	DefaultGiftDelay  = 2 * time.Second
)

// Gates bundles the two process-wide rate limiters every bot shares.
type Gates struct {
	Login *Gate
	Gifts *Gate
}

// NewGates constructs the process-wide login and gift gates with their
// default delays.
func NewGates() *Gates {
	return &Gates{
		Login: NewGate(DefaultLoginDelay),
		Gifts: NewGate(DefaultGiftDelay),
	}
}
