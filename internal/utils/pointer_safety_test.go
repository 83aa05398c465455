package utils_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-auth-client/internal/utils"
)

func TestExpiresAt(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	require.Equal(t, now.Add(time.Hour), utils.ExpiresAt(now, 3600))
	require.Equal(t, int64(1740823200000), utils.EpochMillis(utils.ExpiresAt(now, 3600)))
}

func TestExpiresAtSaturates(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	far := utils.ExpiresAt(now, 10_000_000_000)
	require.True(t, far.After(now.Add(200*365*24*time.Hour)))
	require.Positive(t, utils.EpochMillis(far))

	past := utils.ExpiresAt(now, -10_000_000_000)
	require.True(t, past.Before(now))
}

func TestEpochMillisRoundTrip(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 9, 0, 0, 123_000_000, time.UTC)
	require.Equal(t, t0, utils.FromEpochMillis(utils.EpochMillis(t0)))
}

func TestPtrValue(t *testing.T) {
	require.Equal(t, "x", utils.Value(utils.Ptr("x")))
	var missing *string
	require.Equal(t, "", utils.Value(missing))
}
