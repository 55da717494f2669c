// Package linear_model provides linear classifiers used as ensemble
// members alongside trees.
package linear_model

import (
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/grove-ml/grove/core/model"
	"github.com/grove-ml/grove/metrics"
	"github.com/grove-ml/grove/pkg/errors"
)

// LogisticRegression implements logistic regression trained with batch
// gradient descent. Multiclass problems are handled one-vs-rest.
type LogisticRegression struct {
	state *model.StateManager

	// Hyperparameters
	penalty      string  // "l2" or "none"
	c            float64 // inverse regularization strength
	fitIntercept bool
	maxIter      int
	tol          float64
	randomState  int64

	// Fitted attributes
	coef_      [][]float64 // one weight vector per class, one total for binary
	intercept_ []float64
	classes_   []int
	nClasses_  int
	nFeatures_ int
	nIter_     []int

	rng *rand.Rand
}

// LogisticRegressionOption is a functional option for LogisticRegression.
type LogisticRegressionOption func(*LogisticRegression)

// NewLogisticRegression creates a new LogisticRegression classifier.
func NewLogisticRegression(opts ...LogisticRegressionOption) *LogisticRegression {
	lr := &LogisticRegression{
		state:        model.NewStateManager(),
		penalty:      "l2",
		c:            1.0,
		fitIntercept: true,
		maxIter:      100,
		tol:          1e-4,
		randomState:  -1,
	}

	for _, opt := range opts {
		opt(lr)
	}

	if lr.randomState >= 0 {
		lr.rng = rand.New(rand.NewSource(lr.randomState))
	} else {
		lr.rng = rand.New(rand.NewSource(rand.Int63()))
	}

	return lr
}

// WithPenalty sets the regularization type ("l2" or "none").
func WithPenalty(penalty string) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.penalty = penalty
	}
}

// WithC sets the inverse regularization strength.
func WithC(c float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.c = c
	}
}

// WithFitIntercept sets whether an intercept term is fitted.
func WithFitIntercept(fit bool) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.fitIntercept = fit
	}
}

// WithMaxIter sets the maximum number of gradient descent iterations.
func WithMaxIter(maxIter int) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.maxIter = maxIter
	}
}

// WithTol sets the gradient norm threshold for early stopping.
func WithTol(tol float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.tol = tol
	}
}

// WithRandomState sets the seed for weight initialization.
func WithRandomState(seed int64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.randomState = seed
	}
}

// Fit trains the logistic regression model on X and the label column y.
func (lr *LogisticRegression) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "LogisticRegression.Fit")

	nSamples, nFeatures := X.Dims()
	yRows, yCols := y.Dims()

	if nSamples == 0 {
		return errors.WithStack(errors.ErrEmptyData)
	}
	if nSamples != yRows {
		return errors.NewDimensionError("LogisticRegression.Fit", nSamples, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewValueError("LogisticRegression.Fit", "y must be a column vector")
	}
	if lr.penalty != "l2" && lr.penalty != "none" {
		return errors.NewConfigurationError("LogisticRegression", "penalty", "must be l2 or none", lr.penalty)
	}
	if lr.c <= 0 {
		return errors.NewConfigurationError("LogisticRegression", "C", "must be > 0", lr.c)
	}
	if lr.maxIter < 1 {
		return errors.NewConfigurationError("LogisticRegression", "maxIter", "must be >= 1", lr.maxIter)
	}

	lr.extractClasses(y, yRows)
	if lr.nClasses_ < 2 {
		return errors.NewValueError("LogisticRegression.Fit", "y must contain at least two classes")
	}
	lr.nFeatures_ = nFeatures
	lr.initializeWeights(nFeatures)

	if lr.nClasses_ == 2 {
		if err := lr.fitBinaryForClass(X, lr.binaryTargets(y, nSamples, lr.classes_[1]), 0); err != nil {
			return err
		}
	} else {
		for classIdx, class := range lr.classes_ {
			if err := lr.fitBinaryForClass(X, lr.binaryTargets(y, nSamples, class), classIdx); err != nil {
				return err
			}
		}
	}

	lr.state.SetDimensions(nFeatures, nSamples)
	lr.state.SetFitted()
	return nil
}

// extractClasses records the sorted unique labels.
func (lr *LogisticRegression) extractClasses(y mat.Matrix, rows int) {
	classMap := make(map[int]bool)
	for i := 0; i < rows; i++ {
		classMap[int(y.At(i, 0))] = true
	}

	lr.classes_ = make([]int, 0, len(classMap))
	for class := range classMap {
		lr.classes_ = append(lr.classes_, class)
	}
	sort.Ints(lr.classes_)
	lr.nClasses_ = len(lr.classes_)
}

// binaryTargets builds 0/1 targets marking rows of the positive class.
func (lr *LogisticRegression) binaryTargets(y mat.Matrix, nSamples, positive int) []float64 {
	targets := make([]float64, nSamples)
	for i := 0; i < nSamples; i++ {
		if int(y.At(i, 0)) == positive {
			targets[i] = 1.0
		}
	}
	return targets
}

func (lr *LogisticRegression) initializeWeights(nFeatures int) {
	nModels := 1
	if lr.nClasses_ > 2 {
		nModels = lr.nClasses_
	}

	lr.coef_ = make([][]float64, nModels)
	lr.intercept_ = make([]float64, nModels)
	lr.nIter_ = make([]int, nModels)

	for i := range lr.coef_ {
		lr.coef_[i] = make([]float64, nFeatures)
		for j := range lr.coef_[i] {
			lr.coef_[i][j] = lr.rng.NormFloat64() * 0.01
		}
	}
}

// fitBinaryForClass runs gradient descent for one weight vector.
func (lr *LogisticRegression) fitBinaryForClass(X mat.Matrix, targets []float64, classIdx int) error {
	nSamples, nFeatures := X.Dims()
	weights := lr.coef_[classIdx]
	intercept := &lr.intercept_[classIdx]

	baseLearningRate := 1.0
	converged := false

	for iter := 0; iter < lr.maxIter; iter++ {
		gradWeights := make([]float64, nFeatures)
		gradIntercept := 0.0

		for i := 0; i < nSamples; i++ {
			z := *intercept
			for j := 0; j < nFeatures; j++ {
				z += X.At(i, j) * weights[j]
			}
			residual := sigmoid(z) - targets[i]
			gradIntercept += residual
			for j := 0; j < nFeatures; j++ {
				gradWeights[j] += residual * X.At(i, j)
			}
		}

		for j := range gradWeights {
			gradWeights[j] /= float64(nSamples)
		}
		gradIntercept /= float64(nSamples)

		if err := errors.CheckNumericalStability("LogisticRegression.Fit", gradWeights); err != nil {
			return err
		}
		if err := errors.CheckScalar("LogisticRegression.Fit", gradIntercept); err != nil {
			return err
		}

		if lr.penalty == "l2" {
			lambda := 1.0 / lr.c
			for j := range weights {
				gradWeights[j] += lambda * weights[j] / float64(nSamples)
			}
		}

		learningRate := baseLearningRate / (1.0 + 0.1*float64(iter))

		for j := range weights {
			weights[j] -= learningRate * gradWeights[j]
		}
		if lr.fitIntercept {
			*intercept -= learningRate * gradIntercept
		}

		lr.nIter_[classIdx] = iter + 1

		maxGrad := math.Abs(gradIntercept)
		for _, g := range gradWeights {
			if math.Abs(g) > maxGrad {
				maxGrad = math.Abs(g)
			}
		}
		if maxGrad < lr.tol {
			converged = true
			break
		}
	}

	if !converged {
		errors.Warn(errors.NewConvergenceWarning("LogisticRegression", lr.maxIter, "gradient descent did not converge, consider increasing maxIter"))
	}
	return nil
}

// decision computes the raw score of row i under weight vector classIdx.
func (lr *LogisticRegression) decision(X mat.Matrix, i, classIdx int) float64 {
	z := lr.intercept_[classIdx]
	for j := 0; j < lr.nFeatures_; j++ {
		z += X.At(i, j) * lr.coef_[classIdx][j]
	}
	return z
}

// Predict returns the predicted class labels for X.
func (lr *LogisticRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := lr.state.RequireFitted("LogisticRegression", "Predict"); err != nil {
		return nil, err
	}

	nSamples, nFeatures := X.Dims()
	if nFeatures != lr.nFeatures_ {
		return nil, errors.NewDimensionError("LogisticRegression.Predict", lr.nFeatures_, nFeatures, 1)
	}

	predictions := mat.NewDense(nSamples, 1, nil)

	if lr.nClasses_ == 2 {
		for i := 0; i < nSamples; i++ {
			if sigmoid(lr.decision(X, i, 0)) >= 0.5 {
				predictions.Set(i, 0, float64(lr.classes_[1]))
			} else {
				predictions.Set(i, 0, float64(lr.classes_[0]))
			}
		}
		return predictions, nil
	}

	for i := 0; i < nSamples; i++ {
		best := 0
		bestScore := lr.decision(X, i, 0)
		for classIdx := 1; classIdx < lr.nClasses_; classIdx++ {
			if score := lr.decision(X, i, classIdx); score > bestScore {
				bestScore = score
				best = classIdx
			}
		}
		predictions.Set(i, 0, float64(lr.classes_[best]))
	}
	return predictions, nil
}

// PredictProba returns per-class probability estimates. Columns follow
// Classes() order. Binary uses the sigmoid, multiclass a softmax over the
// one-vs-rest scores.
func (lr *LogisticRegression) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := lr.state.RequireFitted("LogisticRegression", "PredictProba"); err != nil {
		return nil, err
	}

	nSamples, nFeatures := X.Dims()
	if nFeatures != lr.nFeatures_ {
		return nil, errors.NewDimensionError("LogisticRegression.PredictProba", lr.nFeatures_, nFeatures, 1)
	}

	probas := mat.NewDense(nSamples, lr.nClasses_, nil)

	if lr.nClasses_ == 2 {
		for i := 0; i < nSamples; i++ {
			p := sigmoid(lr.decision(X, i, 0))
			probas.Set(i, 0, 1.0-p)
			probas.Set(i, 1, p)
		}
		return probas, nil
	}

	for i := 0; i < nSamples; i++ {
		scores := make([]float64, lr.nClasses_)
		maxScore := math.Inf(-1)
		for classIdx := 0; classIdx < lr.nClasses_; classIdx++ {
			scores[classIdx] = lr.decision(X, i, classIdx)
			if scores[classIdx] > maxScore {
				maxScore = scores[classIdx]
			}
		}

		sum := 0.0
		for classIdx := range scores {
			scores[classIdx] = math.Exp(scores[classIdx] - maxScore)
			sum += scores[classIdx]
		}
		for classIdx := range scores {
			probas.Set(i, classIdx, scores[classIdx]/sum)
		}
	}
	return probas, nil
}

// Score returns the mean accuracy on the given test data and labels.
func (lr *LogisticRegression) Score(X, y mat.Matrix) float64 {
	predictions, err := lr.Predict(X)
	if err != nil {
		return 0.0
	}
	acc, err := metrics.AccuracyScoreMatrix(y, predictions)
	if err != nil {
		return 0.0
	}
	return acc
}

// Classes returns the sorted unique class labels seen during fitting.
func (lr *LogisticRegression) Classes() []int {
	return lr.classes_
}

// GetParams returns the model hyperparameters.
func (lr *LogisticRegression) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"penalty":       lr.penalty,
		"C":             lr.c,
		"fit_intercept": lr.fitIntercept,
		"max_iter":      lr.maxIter,
		"tol":           lr.tol,
		"random_state":  lr.randomState,
	}
}

// SetParams sets the model hyperparameters.
func (lr *LogisticRegression) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		switch key {
		case "penalty":
			v, ok := value.(string)
			if !ok {
				return errors.NewValueError("LogisticRegression.SetParams", "penalty must be a string")
			}
			lr.penalty = v
		case "C":
			v, ok := value.(float64)
			if !ok {
				return errors.NewValueError("LogisticRegression.SetParams", "C must be a float64")
			}
			lr.c = v
		case "fit_intercept":
			v, ok := value.(bool)
			if !ok {
				return errors.NewValueError("LogisticRegression.SetParams", "fit_intercept must be a bool")
			}
			lr.fitIntercept = v
		case "max_iter":
			v, ok := value.(int)
			if !ok {
				return errors.NewValueError("LogisticRegression.SetParams", "max_iter must be an int")
			}
			lr.maxIter = v
		case "tol":
			v, ok := value.(float64)
			if !ok {
				return errors.NewValueError("LogisticRegression.SetParams", "tol must be a float64")
			}
			lr.tol = v
		case "random_state":
			v, ok := value.(int64)
			if !ok {
				return errors.NewValueError("LogisticRegression.SetParams", "random_state must be an int64")
			}
			lr.randomState = v
			if lr.randomState >= 0 {
				lr.rng = rand.New(rand.NewSource(lr.randomState))
			}
		default:
			return errors.Newf("unknown parameter: %s", key)
		}
	}
	return nil
}

// ExportState describes the fitted model for JSON export.
func (lr *LogisticRegression) ExportState() model.ModelState {
	nFeatures, nSamples := lr.state.GetDimensions()
	return model.ModelState{
		ModelType: "LogisticRegression",
		Fitted:    lr.state.IsFitted(),
		NFeatures: nFeatures,
		NSamples:  nSamples,
		Params:    lr.GetParams(),
	}
}

func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}
