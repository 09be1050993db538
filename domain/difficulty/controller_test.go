package difficulty

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUpdateStaysWithinBoundsAcrossManyCalls(t *testing.T) {
	c := New(DefaultConfig(60))

	for i := 0; i < 200; i++ {
		actual := 600.0
		if i%2 == 0 {
			actual = 1.0
		}
		d := c.Update(actual)
		require.GreaterOrEqual(t, d, DefaultMin)
		require.LessOrEqual(t, d, DefaultMax)
	}
}

func TestUpdateIncreasesDifficultyWhenRoundsFinishTooFast(t *testing.T) {
	c := New(DefaultConfig(60))
	first := c.Update(10)
	require.Greater(t, first, DefaultD)
}

func TestUpdateDecreasesDifficultyWhenRoundsRunTooSlow(t *testing.T) {
	c := New(DefaultConfig(60))
	first := c.Update(600)
	require.Less(t, first, DefaultD)
}

func TestHistoryRingBufferCapsAtTwenty(t *testing.T) {
	c := New(DefaultConfig(60))
	for i := 0; i < 30; i++ {
		c.Update(60)
	}
	require.Len(t, c.History(), 20)
}

func TestDifficultyIsRoundedToFourDecimals(t *testing.T) {
	c := New(DefaultConfig(60))
	d := c.Update(37)
	scaled := d * 10000
	require.InDelta(t, scaled, float64(int64(scaled+0.5)), 0.0001)
}
