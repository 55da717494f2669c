package dataset

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/grove-ml/grove/pkg/errors"
)

// MakeMoons generates the two interleaving half-circle dataset commonly
// used to exercise non-linear classifiers. Labels are 0 for the upper moon
// and 1 for the lower moon. Gaussian noise with the given standard
// deviation is added to both coordinates.
func MakeMoons(nSamples int, noise float64, seed int64) (*Dataset, error) {
	if nSamples < 2 {
		return nil, errors.NewValueError("MakeMoons", "need at least 2 samples")
	}
	if noise < 0 {
		return nil, errors.NewValueError("MakeMoons", "noise must be >= 0")
	}

	rng := rand.New(rand.NewSource(seed))

	nOuter := nSamples / 2
	nInner := nSamples - nOuter

	X := mat.NewDense(nSamples, 2, nil)
	y := mat.NewVecDense(nSamples, nil)

	for i := 0; i < nOuter; i++ {
		theta := arcTheta(i, nOuter)
		X.Set(i, 0, math.Cos(theta)+rng.NormFloat64()*noise)
		X.Set(i, 1, math.Sin(theta)+rng.NormFloat64()*noise)
		y.SetVec(i, 0)
	}
	for i := 0; i < nInner; i++ {
		theta := arcTheta(i, nInner)
		row := nOuter + i
		X.Set(row, 0, 1-math.Cos(theta)+rng.NormFloat64()*noise)
		X.Set(row, 1, 0.5-math.Sin(theta)+rng.NormFloat64()*noise)
		y.SetVec(row, 1)
	}

	return &Dataset{X: X, Y: y}, nil
}

// arcTheta spreads n points evenly over [0, pi]. A single-point arc sits
// at theta 0 so tiny sample counts never divide by zero.
func arcTheta(i, n int) float64 {
	if n < 2 {
		return 0
	}
	return math.Pi * float64(i) / float64(n-1)
}

// MakeBlobs generates isotropic Gaussian clusters, one per center, with
// the given per-cluster standard deviation. Labels are the center indices.
// Samples are distributed across centers as evenly as possible.
func MakeBlobs(nSamples int, centers [][]float64, clusterStd float64, seed int64) (*Dataset, error) {
	if nSamples < 1 {
		return nil, errors.NewValueError("MakeBlobs", "need at least 1 sample")
	}
	if len(centers) == 0 {
		return nil, errors.NewValueError("MakeBlobs", "need at least 1 center")
	}
	nFeatures := len(centers[0])
	for _, c := range centers {
		if len(c) != nFeatures {
			return nil, errors.NewDimensionError("MakeBlobs", nFeatures, len(c), 1)
		}
	}
	if clusterStd < 0 {
		return nil, errors.NewValueError("MakeBlobs", "clusterStd must be >= 0")
	}

	rng := rand.New(rand.NewSource(seed))

	X := mat.NewDense(nSamples, nFeatures, nil)
	y := mat.NewVecDense(nSamples, nil)

	for i := 0; i < nSamples; i++ {
		c := i % len(centers)
		for j := 0; j < nFeatures; j++ {
			X.Set(i, j, centers[c][j]+rng.NormFloat64()*clusterStd)
		}
		y.SetVec(i, float64(c))
	}

	return &Dataset{X: X, Y: y}, nil
}
