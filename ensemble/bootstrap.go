// Package ensemble implements bagging, random forest, and voting
// meta-estimators over grove's capability interfaces.
//
// Each ensemble member is trained on its own resample of the data with its
// own deterministic random sub-stream, so training is reproducible for a
// fixed seed and safe to fan out across workers.
package ensemble

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// subStream returns the random source for one ensemble member. Member i
// always draws from seed+i, independent of how many workers run the
// training fan-out or in what order.
func subStream(seed int64, index int) *rand.Rand {
	return rand.New(rand.NewSource(seed + int64(index)))
}

// sampleIndices draws sampleSize row indices from [0, nSamples).
// With bootstrap the draw is uniform with replacement (a multiset); without
// it the indices are a prefix of a random permutation, so sampleSize must
// not exceed nSamples.
func sampleIndices(rng *rand.Rand, nSamples, sampleSize int, bootstrap bool) []int {
	indices := make([]int, sampleSize)
	if bootstrap {
		for i := range indices {
			indices[i] = rng.Intn(nSamples)
		}
		return indices
	}
	copy(indices, rng.Perm(nSamples))
	return indices
}

// oobMask marks the rows a member never saw during training. Row r is
// out-of-bag for the member when mask[r] is true.
func oobMask(indices []int, nSamples int) []bool {
	mask := make([]bool, nSamples)
	for i := range mask {
		mask[i] = true
	}
	for _, idx := range indices {
		mask[idx] = false
	}
	return mask
}

// subsetRows materializes the rows of X and y selected by indices.
// Repeated indices duplicate rows, which is what bootstrap training wants.
func subsetRows(X, y mat.Matrix, indices []int) (*mat.Dense, *mat.Dense) {
	_, nFeatures := X.Dims()
	Xs := mat.NewDense(len(indices), nFeatures, nil)
	ys := mat.NewDense(len(indices), 1, nil)

	for row, idx := range indices {
		for j := 0; j < nFeatures; j++ {
			Xs.Set(row, j, X.At(idx, j))
		}
		ys.Set(row, 0, y.At(idx, 0))
	}
	return Xs, ys
}
