package arena

import "math/rand"

// SeededShuffle returns a new slice containing list shuffled by a seeded
// Fisher-Yates pass, a pure function of (list, seed): the same seed always
// produces the same permutation.
func SeededShuffle(list []string, seed int64) []string {
	out := make([]string, len(list))
	copy(out, list)

	r := rand.New(rand.NewSource(seed))
	for i := len(out) - 1; i > 0; i-- {
		j := r.Intn(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}
