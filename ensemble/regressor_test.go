package ensemble

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/grove-ml/grove/core/model"
	"github.com/grove-ml/grove/pkg/errors"
	"github.com/grove-ml/grove/tree"
)

func regTreeFactory() model.Estimator {
	return tree.NewDecisionTreeRegressor(tree.WithRegressorMaxDepth(4))
}

// sineData builds a noiseless y = sin(x) regression set.
func sineData(n int) (*mat.Dense, *mat.Dense) {
	X := mat.NewDense(n, 1, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		x := float64(i) / float64(n) * 6
		X.Set(i, 0, x)
		y.Set(i, 0, math.Sin(x))
	}
	return X, y
}

func TestBaggingRegressor_PredictIsMeanOfMembers(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{0, 1, 2, 3})
	y := mat.NewDense(4, 1, []float64{0, 0, 0, 0})

	// Members predict 1, 2, 3; the ensemble must predict their mean.
	values := []float64{1, 2, 3}
	ch := make(chan float64, 3)
	for _, v := range values {
		ch <- v
	}
	factory := func() model.Estimator {
		return &constRegressor{value: <-ch}
	}

	br := NewBaggingRegressor(factory,
		WithNEstimators(3),
		WithRandomState(2),
	)
	require.NoError(t, br.Fit(X, y))

	preds, err := br.Predict(X)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		assert.InDelta(t, 2.0, preds.At(i, 0), 1e-9)
	}
}

func TestBaggingRegressor_FitScore(t *testing.T) {
	X, y := sineData(120)

	br := NewBaggingRegressor(regTreeFactory,
		WithNEstimators(30),
		WithRandomState(3),
	)
	require.NoError(t, br.Fit(X, y))

	assert.Equal(t, 30, br.NEstimators())

	score, err := br.Score(X, y)
	require.NoError(t, err)
	assert.Greater(t, score, 0.9, "bagged trees should fit a smooth curve well")
}

func TestBaggingRegressor_SeedDeterminism(t *testing.T) {
	X, y := sineData(80)

	fit := func() *BaggingRegressor {
		br := NewBaggingRegressor(regTreeFactory,
			WithNEstimators(10),
			WithRandomState(5),
		)
		require.NoError(t, br.Fit(X, y))
		return br
	}

	b1 := fit()
	b2 := fit()
	assert.Equal(t, b1.samples_, b2.samples_)

	p1, err := b1.Predict(X)
	require.NoError(t, err)
	p2, err := b2.Predict(X)
	require.NoError(t, err)
	assert.True(t, mat.Equal(p1, p2))
}

func TestBaggingRegressor_OOBScoreMSE(t *testing.T) {
	X, y := sineData(150)

	br := NewBaggingRegressor(regTreeFactory,
		WithNEstimators(40),
		WithOOBScore(true),
		WithRandomState(7),
	)
	require.NoError(t, br.Fit(X, y))

	mse, skipped, err := br.GetOOBScore()
	require.NoError(t, err)
	assert.Equal(t, 0, skipped)
	assert.GreaterOrEqual(t, mse, 0.0)
	assert.Less(t, mse, 0.1, "out-of-bag error should be small on a smooth curve")
}

func TestBaggingRegressor_PastingHasNoOOB(t *testing.T) {
	X, y := sineData(30)

	br := NewBaggingRegressor(regTreeFactory,
		WithNEstimators(2),
		WithBootstrap(false),
		WithRandomState(8),
	)
	require.NoError(t, br.Fit(X, y))

	_, skipped, err := br.OOBScore(X, y)
	require.Error(t, err)
	assert.Equal(t, 30, skipped)

	var insufErr *errors.InsufficientDataError
	assert.True(t, errors.As(err, &insufErr))
}

func TestBaggingRegressor_ConfigurationErrors(t *testing.T) {
	X, y := sineData(20)

	tests := []struct {
		name string
		br   *BaggingRegressor
	}{
		{"nil factory", NewBaggingRegressor(nil)},
		{"zero estimators", NewBaggingRegressor(regTreeFactory, WithNEstimators(0))},
		{"negative max samples", NewBaggingRegressor(regTreeFactory, WithMaxSamples(-3))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.br.Fit(X, y)
			require.Error(t, err)

			var confErr *errors.ConfigurationError
			assert.True(t, errors.As(err, &confErr))
		})
	}
}

func TestBaggingRegressor_NotFitted(t *testing.T) {
	br := NewBaggingRegressor(regTreeFactory)
	X := mat.NewDense(2, 1, []float64{1, 2})

	_, err := br.Predict(X)
	require.Error(t, err)

	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))
}
