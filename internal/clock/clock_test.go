package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFakeClock(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.FixedZone("WIB", 7*3600))
	c := NewFakeClock(start)
	require.Equal(t, time.UTC, c.Now().Location())

	require.Equal(t, start.Add(time.Hour).UTC(), c.Advance(time.Hour))
	c.Set(start)
	require.True(t, c.Now().Equal(start))
}

func TestOr(t *testing.T) {
	require.IsType(t, SystemClock{}, Or(nil))

	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.Equal(t, fixed, Or(Func(func() time.Time { return fixed })).Now())
}
