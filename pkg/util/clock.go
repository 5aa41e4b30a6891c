package util

import "time"

// Clock supplies the current time for order expirations.
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// FixedClock always reports T. Generated orders are reproducible under it.
type FixedClock struct{ T time.Time }

func (c FixedClock) Now() time.Time { return c.T }

// ExpiryMillis is the Unix ms expiration of an order valid for ttl from now.
func ExpiryMillis(c Clock, ttl time.Duration) int64 {
	return c.Now().Add(ttl).UnixMilli()
}
