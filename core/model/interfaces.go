// Package model provides the capability interfaces and shared state
// management that grove's estimators are built on.
//
// Base learners and ensembles are expressed through small interfaces
// (Fitter, Predictor, Classifier, Regressor) rather than inheritance, so
// any model exposing Fit/Predict can serve as an ensemble member.
package model

import (
	"gonum.org/v1/gonum/mat"
)

// Fitter is the interface for models that can be trained.
type Fitter interface {
	// Fit trains the model on the given feature matrix and target.
	Fit(X, y mat.Matrix) error
}

// Predictor is the interface for models that can make predictions.
type Predictor interface {
	// Predict returns predictions for the given input.
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// Estimator combines training and prediction.
type Estimator interface {
	Fitter
	Predictor
}

// Scorer is the interface for models that can compute a score:
// mean accuracy for classifiers, R^2 for regressors.
type Scorer interface {
	Score(X, y mat.Matrix) (float64, error)
}

// ProbabilityPredictor is the interface for classifiers that expose
// per-class probability estimates. Soft voting requires every ensemble
// member to implement it.
type ProbabilityPredictor interface {
	// PredictProba returns an (nSamples x nClasses) matrix of class
	// probabilities, columns ordered like Classes().
	PredictProba(X mat.Matrix) (mat.Matrix, error)
}

// Classifier combines the interfaces for classification models.
type Classifier interface {
	Estimator
	ProbabilityPredictor

	// Classes returns the sorted unique class labels seen during fitting.
	Classes() []int
}

// Regressor combines the interfaces for regression models.
type Regressor interface {
	Estimator
	Scorer
}

// FeatureImportancer is the interface for models that expose per-feature
// importance scores, normalized to sum to 1.
type FeatureImportancer interface {
	GetFeatureImportances() []float64
}

// Transformer is the interface for stateful data transformations.
type Transformer interface {
	// Fit learns the transformation parameters.
	Fit(X mat.Matrix) error

	// Transform applies the learned transformation.
	Transform(X mat.Matrix) (mat.Matrix, error)

	// FitTransform runs Fit followed by Transform.
	FitTransform(X mat.Matrix) (mat.Matrix, error)
}

// EstimatorFactory constructs a fresh, unfitted base estimator. Ensembles
// call it once per member so no training state is shared between members.
type EstimatorFactory func() Estimator
