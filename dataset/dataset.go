// Package dataset provides in-memory tabular dataset helpers: seeded
// synthetic generators and train/test splitting. These are collaborators
// of the estimators, not part of the ensemble core.
package dataset

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/grove-ml/grove/pkg/errors"
)

// Dataset pairs a feature matrix with its target column. Rows are aligned:
// row i of X belongs to element i of Y.
type Dataset struct {
	X *mat.Dense
	Y *mat.VecDense
}

// NumSamples returns the number of rows.
func (d *Dataset) NumSamples() int {
	if d.X == nil {
		return 0
	}
	r, _ := d.X.Dims()
	return r
}

// NumFeatures returns the number of feature columns.
func (d *Dataset) NumFeatures() int {
	if d.X == nil {
		return 0
	}
	_, c := d.X.Dims()
	return c
}

// YMatrix returns the target as an (n x 1) matrix for Fit methods.
func (d *Dataset) YMatrix() mat.Matrix {
	n := d.Y.Len()
	m := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		m.Set(i, 0, d.Y.AtVec(i))
	}
	return m
}

// New validates and wraps a feature matrix and target vector.
func New(X *mat.Dense, y *mat.VecDense) (*Dataset, error) {
	if X == nil || y == nil {
		return nil, errors.NewValueError("dataset.New", "nil X or y")
	}
	rows, _ := X.Dims()
	if rows == 0 {
		return nil, errors.WithStack(errors.ErrEmptyData)
	}
	if y.Len() != rows {
		return nil, errors.NewDimensionError("dataset.New", rows, y.Len(), 0)
	}
	return &Dataset{X: X, Y: y}, nil
}

// TrainTestSplit shuffles row indices with the given seed and splits the
// dataset, reserving testFraction of the rows (rounded down, at least one
// row on each side) for the test set.
func TrainTestSplit(d *Dataset, testFraction float64, seed int64) (train, test *Dataset, err error) {
	n := d.NumSamples()
	if n < 2 {
		return nil, nil, errors.NewValueError("TrainTestSplit", "need at least 2 samples")
	}
	if testFraction <= 0 || testFraction >= 1 {
		return nil, nil, errors.NewValueError("TrainTestSplit", "testFraction must be in (0, 1)")
	}

	nTest := int(float64(n) * testFraction)
	if nTest < 1 {
		nTest = 1
	}
	if nTest >= n {
		nTest = n - 1
	}

	rng := rand.New(rand.NewSource(seed))
	perm := rng.Perm(n)

	nFeatures := d.NumFeatures()
	take := func(idx []int) *Dataset {
		X := mat.NewDense(len(idx), nFeatures, nil)
		y := mat.NewVecDense(len(idx), nil)
		for i, src := range idx {
			for j := 0; j < nFeatures; j++ {
				X.Set(i, j, d.X.At(src, j))
			}
			y.SetVec(i, d.Y.AtVec(src))
		}
		return &Dataset{X: X, Y: y}
	}

	test = take(perm[:nTest])
	train = take(perm[nTest:])
	return train, test, nil
}
