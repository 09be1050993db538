package arena

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSeededShuffleIsPureFunctionOfListAndSeed(t *testing.T) {
	list := []string{"a", "b", "c", "d", "e"}

	first := SeededShuffle(list, 42)
	second := SeededShuffle(list, 42)
	require.Equal(t, first, second)

	third := SeededShuffle(list, 7)
	require.ElementsMatch(t, first, third)
}

func TestSeededShuffleDoesNotMutateInput(t *testing.T) {
	list := []string{"a", "b", "c"}
	original := append([]string(nil), list...)

	SeededShuffle(list, 1)
	require.Equal(t, original, list)
}
