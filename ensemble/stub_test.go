package ensemble

import (
	"gonum.org/v1/gonum/mat"

	"github.com/grove-ml/grove/pkg/errors"
)

// constClassifier always predicts the same label. Used to force exact
// vote splits in aggregation tests.
type constClassifier struct {
	label   int
	classes []int
}

func (c *constClassifier) Fit(X, y mat.Matrix) error {
	return nil
}

func (c *constClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	n, _ := X.Dims()
	out := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		out.Set(i, 0, float64(c.label))
	}
	return out, nil
}

func (c *constClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	n, _ := X.Dims()
	out := mat.NewDense(n, len(c.classes), nil)
	for i := 0; i < n; i++ {
		for j, class := range c.classes {
			if class == c.label {
				out.Set(i, j, 1.0)
			}
		}
	}
	return out, nil
}

func (c *constClassifier) Classes() []int {
	return c.classes
}

// constRegressor always predicts the same value.
type constRegressor struct {
	value float64
}

func (c *constRegressor) Fit(X, y mat.Matrix) error {
	return nil
}

func (c *constRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	n, _ := X.Dims()
	out := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		out.Set(i, 0, c.value)
	}
	return out, nil
}

// failingEstimator fails every Fit.
type failingEstimator struct{}

func (f *failingEstimator) Fit(X, y mat.Matrix) error {
	return errors.New("synthetic training failure")
}

func (f *failingEstimator) Predict(X mat.Matrix) (mat.Matrix, error) {
	return nil, errors.New("not trained")
}
