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

// baggingConfig holds the hyperparameters shared by BaggingClassifier and
// BaggingRegressor.
type baggingConfig struct {
	nEstimators int
	maxSamples  int // 0 means dataset size
	bootstrap   bool
	voting      string
	lenient     bool
	oobScore    bool
	randomState int64
}

func defaultBaggingConfig() baggingConfig {
	return baggingConfig{
		nEstimators: 10,
		maxSamples:  0,
		bootstrap:   true,
		voting:      VotingHard,
		lenient:     false,
		oobScore:    false,
		randomState: -1,
	}
}

// BaggingOption is a functional option for bagging ensembles.
type BaggingOption func(*baggingConfig)

// WithNEstimators sets the number of base estimators.
func WithNEstimators(n int) BaggingOption {
	return func(c *baggingConfig) {
		c.nEstimators = n
	}
}

// WithMaxSamples sets the resample size per estimator. 0 means the full
// dataset size.
func WithMaxSamples(n int) BaggingOption {
	return func(c *baggingConfig) {
		c.maxSamples = n
	}
}

// WithBootstrap selects sampling with replacement (true, bagging) or
// without replacement (false, pasting).
func WithBootstrap(bootstrap bool) BaggingOption {
	return func(c *baggingConfig) {
		c.bootstrap = bootstrap
	}
}

// WithVoting sets the aggregation strategy for classification, VotingHard
// or VotingSoft. Ignored by BaggingRegressor, which always averages.
func WithVoting(voting string) BaggingOption {
	return func(c *baggingConfig) {
		c.voting = voting
	}
}

// WithLenient tolerates individual training failures: failed estimators
// are dropped with a warning instead of aborting the whole fit. The
// default is fail-fast.
func WithLenient(lenient bool) BaggingOption {
	return func(c *baggingConfig) {
		c.lenient = lenient
	}
}

// WithOOBScore computes the out-of-bag score during Fit and makes it
// available through GetOOBScore.
func WithOOBScore(compute bool) BaggingOption {
	return func(c *baggingConfig) {
		c.oobScore = compute
	}
}

// WithRandomState sets the base seed. Estimator i draws its resample from
// the sub-stream seeded with randomState+i.
func WithRandomState(seed int64) BaggingOption {
	return func(c *baggingConfig) {
		c.randomState = seed
	}
}

// BaggingClassifier trains independent copies of a base classifier on
// bootstrap resamples and aggregates their predictions by voting.
type BaggingClassifier struct {
	state   *model.StateManager
	factory model.EstimatorFactory
	cfg     baggingConfig
	logger  log.Logger

	// Fitted attributes
	estimators_ []model.Estimator
	samples_    [][]int
	oobMasks_   [][]bool
	classes_    []int
	nClasses_   int
	nFeatures_  int
	nSamples_   int
	dropped_    int
	oobScore_   float64
	oobSkipped_ int
	oobValid_   bool
}

// NewBaggingClassifier creates a bagging ensemble over the base estimator
// built by factory.
func NewBaggingClassifier(factory model.EstimatorFactory, opts ...BaggingOption) *BaggingClassifier {
	cfg := defaultBaggingConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &BaggingClassifier{
		state:   model.NewStateManager(),
		factory: factory,
		cfg:     cfg,
		logger:  log.GetLogger().With(log.ModelNameKey, "BaggingClassifier"),
	}
}

func (bc *BaggingClassifier) validate(nSamples int) error {
	if bc.factory == nil {
		return errors.NewConfigurationError("BaggingClassifier", "factory", "must not be nil", nil)
	}
	if bc.cfg.nEstimators < 1 {
		return errors.NewConfigurationError("BaggingClassifier", "nEstimators", "must be >= 1", bc.cfg.nEstimators)
	}
	if bc.cfg.maxSamples < 0 {
		return errors.NewConfigurationError("BaggingClassifier", "maxSamples", "must be >= 1, or 0 for dataset size", bc.cfg.maxSamples)
	}
	if bc.cfg.voting != VotingHard && bc.cfg.voting != VotingSoft {
		return errors.NewConfigurationError("BaggingClassifier", "voting", "must be hard or soft", bc.cfg.voting)
	}
	if nSamples == 0 {
		return errors.NewConfigurationError("BaggingClassifier", "dataset", "must not be empty", nSamples)
	}
	if !bc.cfg.bootstrap && bc.effectiveSampleSize(nSamples) > nSamples {
		return errors.NewConfigurationError("BaggingClassifier", "maxSamples", "cannot exceed dataset size when bootstrap is false", bc.cfg.maxSamples)
	}
	return nil
}

func (bc *BaggingClassifier) effectiveSampleSize(nSamples int) int {
	if bc.cfg.maxSamples == 0 {
		return nSamples
	}
	return bc.cfg.maxSamples
}

// Fit trains the ensemble on X and the label column y.
//
// Members train independently across workers. Under the default fail-fast
// policy any member error aborts the fit with no partial state; with
// WithLenient the failed members are dropped with a warning.
func (bc *BaggingClassifier) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "BaggingClassifier.Fit")
	start := time.Now()

	nSamples, nFeatures := X.Dims()
	yRows, yCols := y.Dims()

	if err := bc.validate(nSamples); err != nil {
		return err
	}
	if nSamples != yRows {
		return errors.NewDimensionError("BaggingClassifier.Fit", nSamples, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewValueError("BaggingClassifier.Fit", "y must be a column vector")
	}

	seed := bc.cfg.randomState
	if seed < 0 {
		seed = rand.Int63()
	}
	sampleSize := bc.effectiveSampleSize(nSamples)
	k := bc.cfg.nEstimators

	classes := extractClasses(y)

	estimators := make([]model.Estimator, k)
	samples := make([][]int, k)

	trainErrs := parallel.ForEachWithError(k, func(i int) error {
		rng := subStream(seed, i)
		indices := sampleIndices(rng, nSamples, sampleSize, bc.cfg.bootstrap)

		Xi, yi := subsetRows(X, y, indices)
		est := bc.factory()
		if est == nil {
			return errors.NewConfigurationError("BaggingClassifier", "factory", "returned a nil estimator", nil)
		}
		if fitErr := est.Fit(Xi, yi); fitErr != nil {
			return errors.NewEstimatorError("BaggingClassifier", i, fitErr)
		}

		estimators[i] = est
		samples[i] = indices
		return nil
	})

	dropped := 0
	if bc.cfg.lenient {
		kept := 0
		for i := 0; i < k; i++ {
			if trainErrs[i] != nil {
				errors.Warn(errors.NewEstimatorDroppedWarning("BaggingClassifier", i, trainErrs[i]))
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

	bc.estimators_ = estimators
	bc.samples_ = samples
	bc.oobMasks_ = masks
	bc.classes_ = classes
	bc.nClasses_ = len(classes)
	bc.nFeatures_ = nFeatures
	bc.nSamples_ = nSamples
	bc.dropped_ = dropped
	bc.oobValid_ = false

	bc.state.SetDimensions(nFeatures, nSamples)
	bc.state.SetFitted()

	bc.logger.Info("ensemble trained",
		log.OperationKey, log.OperationFit,
		log.EstimatorsKey, len(estimators),
		log.MaxSamplesKey, sampleSize,
		log.BootstrapKey, bc.cfg.bootstrap,
		log.SamplesKey, nSamples,
		log.FeaturesKey, nFeatures,
		log.ClassesKey, bc.nClasses_,
		log.DroppedKey, dropped,
		log.RandomSeedKey, seed,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)

	if bc.cfg.oobScore {
		score, skipped, oobErr := bc.OOBScore(X, y)
		if oobErr != nil {
			return oobErr
		}
		bc.oobScore_ = score
		bc.oobSkipped_ = skipped
		bc.oobValid_ = true
	}

	return nil
}

// memberPredictions collects every member's label predictions for X.
func (bc *BaggingClassifier) memberPredictions(X mat.Matrix) ([]mat.Matrix, error) {
	preds := make([]mat.Matrix, len(bc.estimators_))
	for i, est := range bc.estimators_ {
		p, err := est.Predict(X)
		if err != nil {
			return nil, errors.NewEstimatorError("BaggingClassifier", i, err)
		}
		preds[i] = p
	}
	return preds, nil
}

// memberProbabilities collects every member's class probabilities for X.
// Every member must implement PredictProba.
func (bc *BaggingClassifier) memberProbabilities(X mat.Matrix) ([]mat.Matrix, error) {
	probas := make([]mat.Matrix, len(bc.estimators_))
	for i, est := range bc.estimators_ {
		pp, ok := est.(model.ProbabilityPredictor)
		if !ok {
			return nil, errors.NewValueError("BaggingClassifier.PredictProba",
				"soft voting requires every base estimator to implement PredictProba")
		}
		p, err := pp.PredictProba(X)
		if err != nil {
			return nil, errors.NewEstimatorError("BaggingClassifier", i, err)
		}
		probas[i] = p
	}
	return probas, nil
}

func (bc *BaggingClassifier) classIndex() map[int]int {
	idx := make(map[int]int, bc.nClasses_)
	for i, c := range bc.classes_ {
		idx[c] = i
	}
	return idx
}

// hardVoteRow tallies the committee's labels for one row and returns the
// winning class index. Ties break to the lowest class label.
func (bc *BaggingClassifier) hardVoteRow(preds []mat.Matrix, committee []int, row int, classIndex map[int]int) (int, error) {
	votes := make([]float64, bc.nClasses_)
	for _, i := range committee {
		label := int(preds[i].At(row, 0))
		j, ok := classIndex[label]
		if !ok {
			return 0, errors.Newf("member %d predicted unknown class label %d", i, label)
		}
		votes[j]++
	}
	return argmaxLowest(votes), nil
}

// softVoteRow averages the committee's probabilities for one row, aligned
// to the ensemble class order.
func (bc *BaggingClassifier) softVoteRow(probas []mat.Matrix, committee []int, row int, classIndex map[int]int, out []float64) error {
	for j := range out {
		out[j] = 0
	}
	for _, i := range committee {
		err := accumulateProba(probas[i], memberClasses(bc.estimators_[i]), classIndex, row, 1.0, out)
		if err != nil {
			return err
		}
	}
	for j := range out {
		out[j] /= float64(len(committee))
	}
	return nil
}

// allMembers returns the committee holding every fitted member.
func (bc *BaggingClassifier) allMembers() []int {
	committee := make([]int, len(bc.estimators_))
	for i := range committee {
		committee[i] = i
	}
	return committee
}

// Predict returns the aggregated class label for every row of X: the
// majority vote under hard voting, the argmax of the averaged
// probabilities under soft voting. Ties break to the lowest class label.
func (bc *BaggingClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := bc.state.RequireFitted("BaggingClassifier", "Predict"); err != nil {
		return nil, err
	}

	nSamples, nFeatures := X.Dims()
	if nFeatures != bc.nFeatures_ {
		return nil, errors.NewDimensionError("BaggingClassifier.Predict", bc.nFeatures_, nFeatures, 1)
	}

	if bc.cfg.voting == VotingSoft {
		probas, err := bc.PredictProba(X)
		if err != nil {
			return nil, err
		}
		predictions := mat.NewDense(nSamples, 1, nil)
		row := make([]float64, bc.nClasses_)
		for i := 0; i < nSamples; i++ {
			mat.Row(row, i, probas)
			predictions.Set(i, 0, float64(bc.classes_[argmaxLowest(row)]))
		}
		return predictions, nil
	}

	preds, err := bc.memberPredictions(X)
	if err != nil {
		return nil, err
	}

	classIndex := bc.classIndex()
	committee := bc.allMembers()
	predictions := mat.NewDense(nSamples, 1, nil)
	for i := 0; i < nSamples; i++ {
		best, err := bc.hardVoteRow(preds, committee, i, classIndex)
		if err != nil {
			return nil, err
		}
		predictions.Set(i, 0, float64(bc.classes_[best]))
	}
	return predictions, nil
}

// PredictProba returns the per-class probabilities averaged across all
// members, columns ordered like Classes().
func (bc *BaggingClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := bc.state.RequireFitted("BaggingClassifier", "PredictProba"); err != nil {
		return nil, err
	}

	nSamples, nFeatures := X.Dims()
	if nFeatures != bc.nFeatures_ {
		return nil, errors.NewDimensionError("BaggingClassifier.PredictProba", bc.nFeatures_, nFeatures, 1)
	}

	probas, err := bc.memberProbabilities(X)
	if err != nil {
		return nil, err
	}

	classIndex := bc.classIndex()
	committee := bc.allMembers()
	out := mat.NewDense(nSamples, bc.nClasses_, nil)
	row := make([]float64, bc.nClasses_)
	for i := 0; i < nSamples; i++ {
		if err := bc.softVoteRow(probas, committee, i, classIndex, row); err != nil {
			return nil, err
		}
		for j := 0; j < bc.nClasses_; j++ {
			out.Set(i, j, row[j])
		}
	}
	return out, nil
}

// OOBScore computes the out-of-bag accuracy on the training dataset: each
// row is scored only by the members whose resample missed it.
//
// X and y must be the exact data passed to Fit, since out-of-bag
// membership is positional. Rows with an empty committee are skipped; the
// skipped count is returned alongside the score. When every row is
// skipped an InsufficientDataError is returned.
func (bc *BaggingClassifier) OOBScore(X, y mat.Matrix) (float64, int, error) {
	if err := bc.state.RequireFitted("BaggingClassifier", "OOBScore"); err != nil {
		return 0, 0, err
	}

	nSamples, nFeatures := X.Dims()
	yRows, _ := y.Dims()
	if nSamples != bc.nSamples_ || nFeatures != bc.nFeatures_ || yRows != nSamples {
		return 0, 0, errors.NewValueError("BaggingClassifier.OOBScore",
			"X and y must be the training dataset the ensemble was fitted on")
	}

	soft := bc.cfg.voting == VotingSoft
	var preds, probas []mat.Matrix
	var err error
	if soft {
		probas, err = bc.memberProbabilities(X)
	} else {
		preds, err = bc.memberPredictions(X)
	}
	if err != nil {
		return 0, 0, err
	}

	classIndex := bc.classIndex()
	row := make([]float64, bc.nClasses_)
	correct, evaluated, skipped := 0, 0, 0
	committee := make([]int, 0, len(bc.estimators_))

	for r := 0; r < nSamples; r++ {
		committee = committee[:0]
		for i := range bc.estimators_ {
			if bc.oobMasks_[i][r] {
				committee = append(committee, i)
			}
		}
		if len(committee) == 0 {
			skipped++
			continue
		}

		var best int
		if soft {
			if err := bc.softVoteRow(probas, committee, r, classIndex, row); err != nil {
				return 0, 0, err
			}
			best = argmaxLowest(row)
		} else {
			best, err = bc.hardVoteRow(preds, committee, r, classIndex)
			if err != nil {
				return 0, 0, err
			}
		}

		if bc.classes_[best] == int(y.At(r, 0)) {
			correct++
		}
		evaluated++
	}

	if evaluated == 0 {
		return 0, skipped, errors.NewInsufficientDataError("BaggingClassifier.OOBScore",
			"every row was in-bag for all estimators", skipped, nSamples)
	}

	score := float64(correct) / float64(evaluated)
	bc.logger.Info("out-of-bag score computed",
		log.OperationKey, log.OperationOOBScore,
		log.OOBScoreKey, score,
		log.OOBSkippedKey, skipped,
		log.SamplesKey, nSamples,
	)
	return score, skipped, nil
}

// GetOOBScore returns the score computed during Fit when WithOOBScore was
// requested, together with the number of skipped rows.
func (bc *BaggingClassifier) GetOOBScore() (float64, int, error) {
	if err := bc.state.RequireFitted("BaggingClassifier", "GetOOBScore"); err != nil {
		return 0, 0, err
	}
	if !bc.oobValid_ {
		return 0, 0, errors.NewValueError("BaggingClassifier.GetOOBScore",
			"out-of-bag scoring was not requested, construct with WithOOBScore(true)")
	}
	return bc.oobScore_, bc.oobSkipped_, nil
}

// Score returns the mean accuracy on the given test data and labels.
func (bc *BaggingClassifier) Score(X, y mat.Matrix) float64 {
	predictions, err := bc.Predict(X)
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
func (bc *BaggingClassifier) Classes() []int {
	return bc.classes_
}

// NEstimators returns the number of fitted members, after any lenient
// drops.
func (bc *BaggingClassifier) NEstimators() int {
	return len(bc.estimators_)
}

// NDropped returns how many members were dropped under the lenient
// policy during the last Fit.
func (bc *BaggingClassifier) NDropped() int {
	return bc.dropped_
}

// GetParams returns the model hyperparameters.
func (bc *BaggingClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators": bc.cfg.nEstimators,
		"max_samples":  bc.cfg.maxSamples,
		"bootstrap":    bc.cfg.bootstrap,
		"voting":       bc.cfg.voting,
		"lenient":      bc.cfg.lenient,
		"oob_score":    bc.cfg.oobScore,
		"random_state": bc.cfg.randomState,
	}
}

// ExportState describes the fitted model for JSON export.
func (bc *BaggingClassifier) ExportState() model.ModelState {
	nFeatures, nSamples := bc.state.GetDimensions()
	return model.ModelState{
		ModelType: "BaggingClassifier",
		Fitted:    bc.state.IsFitted(),
		NFeatures: nFeatures,
		NSamples:  nSamples,
		Params:    bc.GetParams(),
	}
}
