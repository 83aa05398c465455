package utils

import (
	"math"
	"time"
)

func Value[T any](v *T) T {
	if v == nil {
		return *new(T)
	}
	return *v
}

func Ptr[T any](v T) *T {
	return &v
}

// EpochMillis converts t to milliseconds since the Unix epoch.
func EpochMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// FromEpochMillis is the inverse of EpochMillis.
func FromEpochMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// maxLifetimeSeconds is the longest lifetime a time.Duration can hold.
const maxLifetimeSeconds = int64(math.MaxInt64 / int64(time.Second))

// ExpiresAt returns the absolute expiry for a lifetime given in seconds.
// Lifetimes beyond what a time.Duration can hold saturate instead of
// wrapping into the past.
func ExpiresAt(now time.Time, expiresInSeconds int64) time.Time {
	switch {
	case expiresInSeconds > maxLifetimeSeconds:
		expiresInSeconds = maxLifetimeSeconds
	case expiresInSeconds < -maxLifetimeSeconds:
		expiresInSeconds = -maxLifetimeSeconds
	}
	return now.Add(time.Duration(expiresInSeconds) * time.Second)
}
