package ledger

import "time"

// Clock supplies wall-clock timestamps for LastScanAt/UpdatedAt. Injected so
// tests can pin time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real clock, truncated to UTC for stable storage.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns the same instant. For tests.
type FixedClock struct {
	Time time.Time
}

func (c FixedClock) Now() time.Time { return c.Time }
