package clock

import "time"

// FakeClock is a Clock pinned to an instant, advanced only by the test. It
// keeps settlement timestamps (paid_at, valid_until, revoked_at) assertable
// to the exact value.
type FakeClock struct {
	now time.Time
}

func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t.UTC()}
}

func (c *FakeClock) Now() time.Time {
	return c.now
}

// Advance moves the clock forward, e.g. to model a refund arriving a day
// after the payment or a renewal near the end of a billing period.
func (c *FakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}
