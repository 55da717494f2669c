package ensemble

import (
	"math/rand"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/grove-ml/grove/core/model"
	"github.com/grove-ml/grove/core/parallel"
	"github.com/grove-ml/grove/metrics"
	"github.com/grove-ml/grove/pkg/errors"
	"github.com/grove-ml/grove/pkg/log"
)

// BaggingRegressor trains independent copies of a base regressor on
// bootstrap resamples and averages their predictions.
type BaggingRegressor struct {
	state   *model.StateManager
	factory model.EstimatorFactory
	cfg     baggingConfig
	logger  log.Logger

	// Fitted attributes
	estimators_ []model.Estimator
	samples_    [][]int
	oobMasks_   [][]bool
	nFeatures_  int
	nSamples_   int
	dropped_    int
	oobScore_   float64
	oobSkipped_ int
	oobValid_   bool
}

// NewBaggingRegressor creates a bagging ensemble over the base estimator
// built by factory. The voting option is ignored; regression always
// averages.
func NewBaggingRegressor(factory model.EstimatorFactory, opts ...BaggingOption) *BaggingRegressor {
	cfg := defaultBaggingConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &BaggingRegressor{
		state:   model.NewStateManager(),
		factory: factory,
		cfg:     cfg,
		logger:  log.GetLogger().With(log.ModelNameKey, "BaggingRegressor"),
	}
}

func (br *BaggingRegressor) validate(nSamples int) error {
	if br.factory == nil {
		return errors.NewConfigurationError("BaggingRegressor", "factory", "must not be nil", nil)
	}
	if br.cfg.nEstimators < 1 {
		return errors.NewConfigurationError("BaggingRegressor", "nEstimators", "must be >= 1", br.cfg.nEstimators)
	}
	if br.cfg.maxSamples < 0 {
		return errors.NewConfigurationError("BaggingRegressor", "maxSamples", "must be >= 1, or 0 for dataset size", br.cfg.maxSamples)
	}
	if nSamples == 0 {
		return errors.NewConfigurationError("BaggingRegressor", "dataset", "must not be empty", nSamples)
	}
	sampleSize := br.cfg.maxSamples
	if sampleSize == 0 {
		sampleSize = nSamples
	}
	if !br.cfg.bootstrap && sampleSize > nSamples {
		return errors.NewConfigurationError("BaggingRegressor", "maxSamples", "cannot exceed dataset size when bootstrap is false", br.cfg.maxSamples)
	}
	return nil
}

// Fit trains the ensemble on X and the target column y, fanning members
// out across workers under the same fail-fast or lenient policy as
// BaggingClassifier.
func (br *BaggingRegressor) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "BaggingRegressor.Fit")
	start := time.Now()

	nSamples, nFeatures := X.Dims()
	yRows, yCols := y.Dims()

	if err := br.validate(nSamples); err != nil {
		return err
	}
	if nSamples != yRows {
		return errors.NewDimensionError("BaggingRegressor.Fit", nSamples, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewValueError("BaggingRegressor.Fit", "y must be a column vector")
	}

	seed := br.cfg.randomState
	if seed < 0 {
		seed = rand.Int63()
	}
	sampleSize := br.cfg.maxSamples
	if sampleSize == 0 {
		sampleSize = nSamples
	}
	k := br.cfg.nEstimators

	estimators := make([]model.Estimator, k)
	samples := make([][]int, k)

	trainErrs := parallel.ForEachWithError(k, func(i int) error {
		rng := subStream(seed, i)
		indices := sampleIndices(rng, nSamples, sampleSize, br.cfg.bootstrap)

		Xi, yi := subsetRows(X, y, indices)
		est := br.factory()
		if est == nil {
			return errors.NewConfigurationError("BaggingRegressor", "factory", "returned a nil estimator", nil)
		}
		if fitErr := est.Fit(Xi, yi); fitErr != nil {
			return errors.NewEstimatorError("BaggingRegressor", i, fitErr)
		}

		estimators[i] = est
		samples[i] = indices
		return nil
	})

	dropped := 0
	if br.cfg.lenient {
		kept := 0
		for i := 0; i < k; i++ {
			if trainErrs[i] != nil {
				errors.Warn(errors.NewEstimatorDroppedWarning("BaggingRegressor", i, trainErrs[i]))
				dropped++
				continue
			}
			estimators[kept] = estimators[i]
			samples[kept] = samples[i]
			kept++
		}
		if kept == 0 {
			_, first := parallel.FirstError(trainErrs)
			return errors.Wrap(first, "grove: all ensemble members failed to train")
		}
		estimators = estimators[:kept]
		samples = samples[:kept]
	} else if _, first := parallel.FirstError(trainErrs); first != nil {
		return first
	}

	masks := make([][]bool, len(samples))
	for i, indices := range samples {
		masks[i] = oobMask(indices, nSamples)
	}

	br.estimators_ = estimators
	br.samples_ = samples
	br.oobMasks_ = masks
	br.nFeatures_ = nFeatures
	br.nSamples_ = nSamples
	br.dropped_ = dropped
	br.oobValid_ = false

	br.state.SetDimensions(nFeatures, nSamples)
	br.state.SetFitted()

	br.logger.Info("ensemble trained",
		log.OperationKey, log.OperationFit,
		log.EstimatorsKey, len(estimators),
		log.MaxSamplesKey, sampleSize,
		log.BootstrapKey, br.cfg.bootstrap,
		log.SamplesKey, nSamples,
		log.FeaturesKey, nFeatures,
		log.DroppedKey, dropped,
		log.RandomSeedKey, seed,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)

	if br.cfg.oobScore {
		score, skipped, oobErr := br.OOBScore(X, y)
		if oobErr != nil {
			return oobErr
		}
		br.oobScore_ = score
		br.oobSkipped_ = skipped
		br.oobValid_ = true
	}

	return nil
}

// memberPredictions collects every member's predictions for X.
func (br *BaggingRegressor) memberPredictions(X mat.Matrix) ([]mat.Matrix, error) {
	preds := make([]mat.Matrix, len(br.estimators_))
	for i, est := range br.estimators_ {
		p, err := est.Predict(X)
		if err != nil {
			return nil, errors.NewEstimatorError("BaggingRegressor", i, err)
		}
		preds[i] = p
	}
	return preds, nil
}

// Predict returns the mean of the members' predictions for every row.
func (br *BaggingRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := br.state.RequireFitted("BaggingRegressor", "Predict"); err != nil {
		return nil, err
	}

	nSamples, nFeatures := X.Dims()
	if nFeatures != br.nFeatures_ {
		return nil, errors.NewDimensionError("BaggingRegressor.Predict", br.nFeatures_, nFeatures, 1)
	}

	preds, err := br.memberPredictions(X)
	if err != nil {
		return nil, err
	}

	predictions := mat.NewDense(nSamples, 1, nil)
	k := float64(len(preds))
	for i := 0; i < nSamples; i++ {
		var sum float64
		for _, p := range preds {
			sum += p.At(i, 0)
		}
		predictions.Set(i, 0, sum/k)
	}
	return predictions, nil
}

// OOBScore computes the out-of-bag mean squared error on the training
// dataset. X and y must be the exact data passed to Fit. Rows with an
// empty committee are skipped and counted; an InsufficientDataError is
// returned when every row is skipped.
func (br *BaggingRegressor) OOBScore(X, y mat.Matrix) (float64, int, error) {
	if err := br.state.RequireFitted("BaggingRegressor", "OOBScore"); err != nil {
		return 0, 0, err
	}

	nSamples, nFeatures := X.Dims()
	yRows, _ := y.Dims()
	if nSamples != br.nSamples_ || nFeatures != br.nFeatures_ || yRows != nSamples {
		return 0, 0, errors.NewValueError("BaggingRegressor.OOBScore",
			"X and y must be the training dataset the ensemble was fitted on")
	}

	preds, err := br.memberPredictions(X)
	if err != nil {
		return 0, 0, err
	}

	sumSq, evaluated, skipped := 0.0, 0, 0
	for r := 0; r < nSamples; r++ {
		var sum float64
		committee := 0
		for i := range br.estimators_ {
			if br.oobMasks_[i][r] {
				sum += preds[i].At(r, 0)
				committee++
			}
		}
		if committee == 0 {
			skipped++
			continue
		}

		residual := sum/float64(committee) - y.At(r, 0)
		sumSq += residual * residual
		evaluated++
	}

	if evaluated == 0 {
		return 0, skipped, errors.NewInsufficientDataError("BaggingRegressor.OOBScore",
			"every row was in-bag for all estimators", skipped, nSamples)
	}

	mse := sumSq / float64(evaluated)
	br.logger.Info("out-of-bag score computed",
		log.OperationKey, log.OperationOOBScore,
		log.MSEKey, mse,
		log.OOBSkippedKey, skipped,
		log.SamplesKey, nSamples,
	)
	return mse, skipped, nil
}

// GetOOBScore returns the mean squared error computed during Fit when
// WithOOBScore was requested, together with the number of skipped rows.
func (br *BaggingRegressor) GetOOBScore() (float64, int, error) {
	if err := br.state.RequireFitted("BaggingRegressor", "GetOOBScore"); err != nil {
		return 0, 0, err
	}
	if !br.oobValid_ {
		return 0, 0, errors.NewValueError("BaggingRegressor.GetOOBScore",
			"out-of-bag scoring was not requested, construct with WithOOBScore(true)")
	}
	return br.oobScore_, br.oobSkipped_, nil
}

// Score returns the coefficient of determination R^2 on the given data.
func (br *BaggingRegressor) Score(X, y mat.Matrix) (float64, error) {
	predictions, err := br.Predict(X)
	if err != nil {
		return 0, err
	}
	return metrics.R2ScoreMatrix(y, predictions)
}

// NEstimators returns the number of fitted members, after any lenient
// drops.
func (br *BaggingRegressor) NEstimators() int {
	return len(br.estimators_)
}

// GetParams returns the model hyperparameters.
func (br *BaggingRegressor) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators": br.cfg.nEstimators,
		"max_samples":  br.cfg.maxSamples,
		"bootstrap":    br.cfg.bootstrap,
		"lenient":      br.cfg.lenient,
		"oob_score":    br.cfg.oobScore,
		"random_state": br.cfg.randomState,
	}
}

// ExportState describes the fitted model for JSON export.
func (br *BaggingRegressor) ExportState() model.ModelState {
	nFeatures, nSamples := br.state.GetDimensions()
	return model.ModelState{
		ModelType: "BaggingRegressor",
		Fitted:    br.state.IsFitted(),
		NFeatures: nFeatures,
		NSamples:  nSamples,
		Params:    br.GetParams(),
	}
}
