package ensemble

import (
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/grove-ml/grove/core/model"
	"github.com/grove-ml/grove/core/parallel"
	"github.com/grove-ml/grove/metrics"
	"github.com/grove-ml/grove/pkg/errors"
	"github.com/grove-ml/grove/pkg/log"
)

// VotingClassifier aggregates heterogeneous base classifiers, each fitted
// on the full training data, by hard or soft voting with optional
// per-estimator weights.
type VotingClassifier struct {
	state      *model.StateManager
	estimators []model.Classifier
	voting     string
	weights    []float64
	logger     log.Logger

	// Fitted attributes
	classes_   []int
	nClasses_  int
	nFeatures_ int
}

// VotingOption is a functional option for VotingClassifier.
type VotingOption func(*VotingClassifier)

// WithVotingStrategy sets the aggregation strategy, VotingHard or
// VotingSoft.
func WithVotingStrategy(voting string) VotingOption {
	return func(vc *VotingClassifier) {
		vc.voting = voting
	}
}

// WithWeights sets per-estimator vote weights. Weights must be
// non-negative with a positive sum and match the number of estimators.
func WithWeights(weights []float64) VotingOption {
	return func(vc *VotingClassifier) {
		vc.weights = weights
	}
}

// NewVotingClassifier creates a voting ensemble over the given base
// classifiers. The estimators are fitted by the ensemble's Fit.
func NewVotingClassifier(estimators []model.Classifier, opts ...VotingOption) *VotingClassifier {
	vc := &VotingClassifier{
		state:      model.NewStateManager(),
		estimators: estimators,
		voting:     VotingHard,
		logger:     log.GetLogger().With(log.ModelNameKey, "VotingClassifier"),
	}

	for _, opt := range opts {
		opt(vc)
	}
	return vc
}

func (vc *VotingClassifier) validate() error {
	if len(vc.estimators) == 0 {
		return errors.NewConfigurationError("VotingClassifier", "estimators", "must not be empty", len(vc.estimators))
	}
	for i, est := range vc.estimators {
		if est == nil {
			return errors.NewConfigurationError("VotingClassifier", "estimators", "contains a nil estimator", i)
		}
	}
	if vc.voting != VotingHard && vc.voting != VotingSoft {
		return errors.NewConfigurationError("VotingClassifier", "voting", "must be hard or soft", vc.voting)
	}
	if vc.weights != nil {
		if len(vc.weights) != len(vc.estimators) {
			return errors.NewConfigurationError("VotingClassifier", "weights",
				"must match the number of estimators", len(vc.weights))
		}
		var sum float64
		for _, w := range vc.weights {
			if w < 0 {
				return errors.NewConfigurationError("VotingClassifier", "weights", "must be non-negative", w)
			}
			sum += w
		}
		if sum == 0 {
			return errors.NewConfigurationError("VotingClassifier", "weights", "must have a positive sum", sum)
		}
	}
	return nil
}

// weight returns the vote weight of estimator i, 1 when unweighted.
func (vc *VotingClassifier) weight(i int) float64 {
	if vc.weights == nil {
		return 1.0
	}
	return vc.weights[i]
}

func (vc *VotingClassifier) totalWeight() float64 {
	if vc.weights == nil {
		return float64(len(vc.estimators))
	}
	var sum float64
	for _, w := range vc.weights {
		sum += w
	}
	return sum
}

// Fit trains every base classifier on the full X and y. Any member
// failure aborts the fit.
func (vc *VotingClassifier) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "VotingClassifier.Fit")
	start := time.Now()

	if err := vc.validate(); err != nil {
		return err
	}

	nSamples, nFeatures := X.Dims()
	yRows, yCols := y.Dims()
	if nSamples == 0 {
		return errors.NewConfigurationError("VotingClassifier", "dataset", "must not be empty", nSamples)
	}
	if nSamples != yRows {
		return errors.NewDimensionError("VotingClassifier.Fit", nSamples, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewValueError("VotingClassifier.Fit", "y must be a column vector")
	}

	trainErrs := parallel.ForEachWithError(len(vc.estimators), func(i int) error {
		if fitErr := vc.estimators[i].Fit(X, y); fitErr != nil {
			return errors.NewEstimatorError("VotingClassifier", i, fitErr)
		}
		return nil
	})
	if _, first := parallel.FirstError(trainErrs); first != nil {
		return first
	}

	vc.classes_ = extractClasses(y)
	vc.nClasses_ = len(vc.classes_)
	vc.nFeatures_ = nFeatures

	vc.state.SetDimensions(nFeatures, nSamples)
	vc.state.SetFitted()

	vc.logger.Info("ensemble trained",
		log.OperationKey, log.OperationFit,
		log.EstimatorsKey, len(vc.estimators),
		log.SamplesKey, nSamples,
		log.FeaturesKey, nFeatures,
		log.ClassesKey, vc.nClasses_,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

func (vc *VotingClassifier) classIndex() map[int]int {
	idx := make(map[int]int, vc.nClasses_)
	for i, c := range vc.classes_ {
		idx[c] = i
	}
	return idx
}

// Predict returns the aggregated class label for every row of X. Ties
// break to the lowest class label.
func (vc *VotingClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := vc.state.RequireFitted("VotingClassifier", "Predict"); err != nil {
		return nil, err
	}

	nSamples, nFeatures := X.Dims()
	if nFeatures != vc.nFeatures_ {
		return nil, errors.NewDimensionError("VotingClassifier.Predict", vc.nFeatures_, nFeatures, 1)
	}

	if vc.voting == VotingSoft {
		probas, err := vc.PredictProba(X)
		if err != nil {
			return nil, err
		}
		predictions := mat.NewDense(nSamples, 1, nil)
		row := make([]float64, vc.nClasses_)
		for i := 0; i < nSamples; i++ {
			mat.Row(row, i, probas)
			predictions.Set(i, 0, float64(vc.classes_[argmaxLowest(row)]))
		}
		return predictions, nil
	}

	preds := make([]mat.Matrix, len(vc.estimators))
	for i, est := range vc.estimators {
		p, err := est.Predict(X)
		if err != nil {
			return nil, errors.NewEstimatorError("VotingClassifier", i, err)
		}
		preds[i] = p
	}

	classIndex := vc.classIndex()
	predictions := mat.NewDense(nSamples, 1, nil)
	votes := make([]float64, vc.nClasses_)
	for i := 0; i < nSamples; i++ {
		for j := range votes {
			votes[j] = 0
		}
		for e := range vc.estimators {
			label := int(preds[e].At(i, 0))
			j, ok := classIndex[label]
			if !ok {
				return nil, errors.Newf("member %d predicted unknown class label %d", e, label)
			}
			votes[j] += vc.weight(e)
		}
		predictions.Set(i, 0, float64(vc.classes_[argmaxLowest(votes)]))
	}
	return predictions, nil
}

// PredictProba returns the weighted average of the members' class
// probabilities, columns ordered like Classes().
func (vc *VotingClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := vc.state.RequireFitted("VotingClassifier", "PredictProba"); err != nil {
		return nil, err
	}

	nSamples, nFeatures := X.Dims()
	if nFeatures != vc.nFeatures_ {
		return nil, errors.NewDimensionError("VotingClassifier.PredictProba", vc.nFeatures_, nFeatures, 1)
	}

	probas := make([]mat.Matrix, len(vc.estimators))
	for i, est := range vc.estimators {
		p, err := est.PredictProba(X)
		if err != nil {
			return nil, errors.NewEstimatorError("VotingClassifier", i, err)
		}
		probas[i] = p
	}

	classIndex := vc.classIndex()
	total := vc.totalWeight()
	out := mat.NewDense(nSamples, vc.nClasses_, nil)
	row := make([]float64, vc.nClasses_)
	for i := 0; i < nSamples; i++ {
		for j := range row {
			row[j] = 0
		}
		for e := range vc.estimators {
			err := accumulateProba(probas[e], vc.estimators[e].Classes(), classIndex, i, vc.weight(e), row)
			if err != nil {
				return nil, err
			}
		}
		for j := 0; j < vc.nClasses_; j++ {
			out.Set(i, j, row[j]/total)
		}
	}
	return out, nil
}

// Score returns the mean accuracy on the given test data and labels.
func (vc *VotingClassifier) Score(X, y mat.Matrix) float64 {
	predictions, err := vc.Predict(X)
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
func (vc *VotingClassifier) Classes() []int {
	return vc.classes_
}

// GetParams returns the model hyperparameters.
func (vc *VotingClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"voting":       vc.voting,
		"weights":      vc.weights,
		"n_estimators": len(vc.estimators),
	}
}

// ExportState describes the fitted model for JSON export.
func (vc *VotingClassifier) ExportState() model.ModelState {
	nFeatures, nSamples := vc.state.GetDimensions()
	return model.ModelState{
		ModelType: "VotingClassifier",
		Fitted:    vc.state.IsFitted(),
		NFeatures: nFeatures,
		NSamples:  nSamples,
		Params:    vc.GetParams(),
	}
}
