package dataset

import (
	"fmt"
	"math"
	"math/rand"
)

// OneHot encodes each label as a vector of length n with a single 1.
func OneHot(labels []int, n int) ([][]float32, error) {
	vectors := make([][]float32, len(labels))
	for i, l := range labels {
		if l < 0 || l >= n {
			return nil, fmt.Errorf("%w: label %d at index %d not in [0, %d)", ErrCategory, l, i, n)
		}
		v := make([]float32, n)
		v[l] = 1
		vectors[i] = v
	}
	return vectors, nil
}

// Argmax returns the index of the largest element of v, the first one on
// ties.
func Argmax(v []float32) int {
	best := 0
	for i := range v {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

// Split permutes 0..n-1 and returns a test partition of ceil(testSize*n)
// indices and a train partition holding the rest.
func Split(n int, testSize float64, rng *rand.Rand) (train, test []int) {
	perm := rng.Perm(n)
	nTest := int(math.Ceil(testSize * float64(n)))
	if nTest > n {
		nTest = n
	}
	return perm[nTest:], perm[:nTest]
}

// Gather picks the images and targets at idx, in that order.
func Gather[T any](images []Image, targets []T, idx []int) ([]Image, []T) {
	xs := make([]Image, len(idx))
	ys := make([]T, len(idx))
	for i, j := range idx {
		xs[i] = images[j]
		ys[i] = targets[j]
	}
	return xs, ys
}
