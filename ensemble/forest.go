package ensemble

import (
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/grove-ml/grove/core/model"
	"github.com/grove-ml/grove/core/parallel"
	"github.com/grove-ml/grove/metrics"
	"github.com/grove-ml/grove/pkg/errors"
	"github.com/grove-ml/grove/pkg/log"
	"github.com/grove-ml/grove/tree"
)

// RandomForestClassifier is a bagging ensemble of decision trees with
// per-split random feature subsampling. Predictions average the trees'
// class probabilities; feature importances average the trees' mean
// decrease in impurity.
type RandomForestClassifier struct {
	state  *model.StateManager
	logger log.Logger

	// Hyperparameters
	nEstimators     int
	criterion       string
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     int // 0 means floor(sqrt(nFeatures))
	oobScore        bool
	randomState     int64

	// Fitted attributes
	trees_       []*tree.DecisionTreeClassifier
	oobMasks_    [][]bool
	classes_     []int
	nClasses_    int
	nFeatures_   int
	nSamples_    int
	importances_ []float64
	oobScore_    float64
	oobSkipped_  int
	oobValid_    bool
}

// ForestOption is a functional option for RandomForestClassifier.
type ForestOption func(*RandomForestClassifier)

// WithNTrees sets the number of trees in the forest.
func WithNTrees(n int) ForestOption {
	return func(rf *RandomForestClassifier) {
		rf.nEstimators = n
	}
}

// WithForestCriterion sets the split criterion ("gini" or "entropy").
func WithForestCriterion(criterion string) ForestOption {
	return func(rf *RandomForestClassifier) {
		rf.criterion = criterion
	}
}

// WithForestMaxDepth sets the maximum depth per tree. 0 means unlimited.
func WithForestMaxDepth(depth int) ForestOption {
	return func(rf *RandomForestClassifier) {
		rf.maxDepth = depth
	}
}

// WithForestMinSamplesSplit sets the minimum samples to split a node.
func WithForestMinSamplesSplit(n int) ForestOption {
	return func(rf *RandomForestClassifier) {
		rf.minSamplesSplit = n
	}
}

// WithForestMinSamplesLeaf sets the minimum samples at a leaf.
func WithForestMinSamplesLeaf(n int) ForestOption {
	return func(rf *RandomForestClassifier) {
		rf.minSamplesLeaf = n
	}
}

// WithForestMaxFeatures sets how many features each split considers.
// 0 means floor(sqrt(nFeatures)), the usual forest default.
func WithForestMaxFeatures(n int) ForestOption {
	return func(rf *RandomForestClassifier) {
		rf.maxFeatures = n
	}
}

// WithForestOOBScore computes the out-of-bag score during Fit.
func WithForestOOBScore(compute bool) ForestOption {
	return func(rf *RandomForestClassifier) {
		rf.oobScore = compute
	}
}

// WithForestRandomState sets the base seed. Tree i draws its bootstrap
// sample and feature subsets from the sub-stream seeded with
// randomState+i.
func WithForestRandomState(seed int64) ForestOption {
	return func(rf *RandomForestClassifier) {
		rf.randomState = seed
	}
}

// NewRandomForestClassifier creates a new RandomForestClassifier.
func NewRandomForestClassifier(opts ...ForestOption) *RandomForestClassifier {
	rf := &RandomForestClassifier{
		state:           model.NewStateManager(),
		logger:          log.GetLogger().With(log.ModelNameKey, "RandomForestClassifier"),
		nEstimators:     100,
		criterion:       "gini",
		maxDepth:        0,
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
		maxFeatures:     0,
		randomState:     -1,
	}

	for _, opt := range opts {
		opt(rf)
	}
	return rf
}

// Fit trains the forest on X and the label column y. Trees train in
// parallel; any tree failure aborts the fit.
func (rf *RandomForestClassifier) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "RandomForestClassifier.Fit")
	start := time.Now()

	nSamples, nFeatures := X.Dims()
	yRows, yCols := y.Dims()

	if rf.nEstimators < 1 {
		return errors.NewConfigurationError("RandomForestClassifier", "nEstimators", "must be >= 1", rf.nEstimators)
	}
	if rf.maxFeatures < 0 || rf.maxFeatures > nFeatures {
		return errors.NewConfigurationError("RandomForestClassifier", "maxFeatures", "must be in [0, nFeatures]", rf.maxFeatures)
	}
	if nSamples == 0 {
		return errors.NewConfigurationError("RandomForestClassifier", "dataset", "must not be empty", nSamples)
	}
	if nSamples != yRows {
		return errors.NewDimensionError("RandomForestClassifier.Fit", nSamples, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewValueError("RandomForestClassifier.Fit", "y must be a column vector")
	}

	seed := rf.randomState
	if seed < 0 {
		seed = rand.Int63()
	}
	maxFeatures := rf.maxFeatures
	if maxFeatures == 0 {
		maxFeatures = int(math.Sqrt(float64(nFeatures)))
		if maxFeatures < 1 {
			maxFeatures = 1
		}
	}
	k := rf.nEstimators

	trees := make([]*tree.DecisionTreeClassifier, k)
	masks := make([][]bool, k)

	trainErrs := parallel.ForEachWithError(k, func(i int) error {
		rng := subStream(seed, i)
		indices := sampleIndices(rng, nSamples, nSamples, true)

		Xi, yi := subsetRows(X, y, indices)
		t := tree.NewDecisionTreeClassifier(
			tree.WithCriterion(rf.criterion),
			tree.WithMaxDepth(rf.maxDepth),
			tree.WithMinSamplesSplit(rf.minSamplesSplit),
			tree.WithMinSamplesLeaf(rf.minSamplesLeaf),
			tree.WithMaxFeatures(maxFeatures),
			tree.WithRandomState(seed+int64(i)),
		)
		if fitErr := t.Fit(Xi, yi); fitErr != nil {
			return errors.NewEstimatorError("RandomForestClassifier", i, fitErr)
		}

		trees[i] = t
		masks[i] = oobMask(indices, nSamples)
		return nil
	})
	if _, first := parallel.FirstError(trainErrs); first != nil {
		return first
	}

	rf.trees_ = trees
	rf.oobMasks_ = masks
	rf.classes_ = extractClasses(y)
	rf.nClasses_ = len(rf.classes_)
	rf.nFeatures_ = nFeatures
	rf.nSamples_ = nSamples
	rf.oobValid_ = false
	rf.computeImportances(nFeatures)

	rf.state.SetDimensions(nFeatures, nSamples)
	rf.state.SetFitted()

	rf.logger.Info("forest trained",
		log.OperationKey, log.OperationFit,
		log.EstimatorsKey, k,
		log.SamplesKey, nSamples,
		log.FeaturesKey, nFeatures,
		log.ClassesKey, rf.nClasses_,
		log.RandomSeedKey, seed,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)

	if rf.oobScore {
		score, skipped, oobErr := rf.OOBScore(X, y)
		if oobErr != nil {
			return oobErr
		}
		rf.oobScore_ = score
		rf.oobSkipped_ = skipped
		rf.oobValid_ = true
	}

	return nil
}

// computeImportances averages the trees' normalized importances and
// renormalizes to sum to 1.
func (rf *RandomForestClassifier) computeImportances(nFeatures int) {
	rf.importances_ = make([]float64, nFeatures)
	for _, t := range rf.trees_ {
		for j, imp := range t.GetFeatureImportances() {
			rf.importances_[j] += imp
		}
	}

	var sum float64
	for _, v := range rf.importances_ {
		sum += v
	}
	if sum > 0 {
		for j := range rf.importances_ {
			rf.importances_[j] /= sum
		}
	}
}

// treeProbabilities collects every tree's class probabilities for X.
func (rf *RandomForestClassifier) treeProbabilities(X mat.Matrix) ([]mat.Matrix, error) {
	probas := make([]mat.Matrix, len(rf.trees_))
	for i, t := range rf.trees_ {
		p, err := t.PredictProba(X)
		if err != nil {
			return nil, errors.NewEstimatorError("RandomForestClassifier", i, err)
		}
		probas[i] = p
	}
	return probas, nil
}

func (rf *RandomForestClassifier) classIndex() map[int]int {
	idx := make(map[int]int, rf.nClasses_)
	for i, c := range rf.classes_ {
		idx[c] = i
	}
	return idx
}

// Predict returns the class with the highest averaged probability across
// trees for every row of X. Ties break to the lowest class label.
func (rf *RandomForestClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := rf.state.RequireFitted("RandomForestClassifier", "Predict"); err != nil {
		return nil, err
	}

	probas, err := rf.PredictProba(X)
	if err != nil {
		return nil, err
	}

	nSamples, _ := X.Dims()
	predictions := mat.NewDense(nSamples, 1, nil)
	row := make([]float64, rf.nClasses_)
	for i := 0; i < nSamples; i++ {
		mat.Row(row, i, probas)
		predictions.Set(i, 0, float64(rf.classes_[argmaxLowest(row)]))
	}
	return predictions, nil
}

// PredictProba returns the per-class probabilities averaged across all
// trees, columns ordered like Classes().
func (rf *RandomForestClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := rf.state.RequireFitted("RandomForestClassifier", "PredictProba"); err != nil {
		return nil, err
	}

	nSamples, nFeatures := X.Dims()
	if nFeatures != rf.nFeatures_ {
		return nil, errors.NewDimensionError("RandomForestClassifier.PredictProba", rf.nFeatures_, nFeatures, 1)
	}

	probas, err := rf.treeProbabilities(X)
	if err != nil {
		return nil, err
	}

	classIndex := rf.classIndex()
	out := mat.NewDense(nSamples, rf.nClasses_, nil)
	row := make([]float64, rf.nClasses_)
	k := float64(len(rf.trees_))
	for i := 0; i < nSamples; i++ {
		for j := range row {
			row[j] = 0
		}
		for e := range rf.trees_ {
			err := accumulateProba(probas[e], rf.trees_[e].Classes(), classIndex, i, 1.0, row)
			if err != nil {
				return nil, err
			}
		}
		for j := 0; j < rf.nClasses_; j++ {
			out.Set(i, j, row[j]/k)
		}
	}
	return out, nil
}

// OOBScore computes the out-of-bag accuracy on the training dataset.
// X and y must be the exact data passed to Fit. Rows every tree saw are
// skipped and counted; an InsufficientDataError is returned when every
// row is skipped.
func (rf *RandomForestClassifier) OOBScore(X, y mat.Matrix) (float64, int, error) {
	if err := rf.state.RequireFitted("RandomForestClassifier", "OOBScore"); err != nil {
		return 0, 0, err
	}

	nSamples, nFeatures := X.Dims()
	yRows, _ := y.Dims()
	if nSamples != rf.nSamples_ || nFeatures != rf.nFeatures_ || yRows != nSamples {
		return 0, 0, errors.NewValueError("RandomForestClassifier.OOBScore",
			"X and y must be the training dataset the forest was fitted on")
	}

	probas, err := rf.treeProbabilities(X)
	if err != nil {
		return 0, 0, err
	}

	classIndex := rf.classIndex()
	row := make([]float64, rf.nClasses_)
	correct, evaluated, skipped := 0, 0, 0

	for r := 0; r < nSamples; r++ {
		for j := range row {
			row[j] = 0
		}
		committee := 0
		for i := range rf.trees_ {
			if !rf.oobMasks_[i][r] {
				continue
			}
			err := accumulateProba(probas[i], rf.trees_[i].Classes(), classIndex, r, 1.0, row)
			if err != nil {
				return 0, 0, err
			}
			committee++
		}
		if committee == 0 {
			skipped++
			continue
		}

		if rf.classes_[argmaxLowest(row)] == int(y.At(r, 0)) {
			correct++
		}
		evaluated++
	}

	if evaluated == 0 {
		return 0, skipped, errors.NewInsufficientDataError("RandomForestClassifier.OOBScore",
			"every row was in-bag for all trees", skipped, nSamples)
	}

	score := float64(correct) / float64(evaluated)
	rf.logger.Info("out-of-bag score computed",
		log.OperationKey, log.OperationOOBScore,
		log.OOBScoreKey, score,
		log.OOBSkippedKey, skipped,
		log.SamplesKey, nSamples,
	)
	return score, skipped, nil
}

// GetOOBScore returns the score computed during Fit when
// WithForestOOBScore was requested, together with the skipped row count.
func (rf *RandomForestClassifier) GetOOBScore() (float64, int, error) {
	if err := rf.state.RequireFitted("RandomForestClassifier", "GetOOBScore"); err != nil {
		return 0, 0, err
	}
	if !rf.oobValid_ {
		return 0, 0, errors.NewValueError("RandomForestClassifier.GetOOBScore",
			"out-of-bag scoring was not requested, construct with WithForestOOBScore(true)")
	}
	return rf.oobScore_, rf.oobSkipped_, nil
}

// Score returns the mean accuracy on the given test data and labels.
func (rf *RandomForestClassifier) Score(X, y mat.Matrix) float64 {
	predictions, err := rf.Predict(X)
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
func (rf *RandomForestClassifier) Classes() []int {
	return rf.classes_
}

// GetFeatureImportances returns the mean decrease in impurity per feature
// averaged over the trees, normalized to sum to 1.
func (rf *RandomForestClassifier) GetFeatureImportances() []float64 {
	return rf.importances_
}

// NEstimators returns the number of fitted trees.
func (rf *RandomForestClassifier) NEstimators() int {
	return len(rf.trees_)
}

// GetParams returns the model hyperparameters.
func (rf *RandomForestClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":      rf.nEstimators,
		"criterion":         rf.criterion,
		"max_depth":         rf.maxDepth,
		"min_samples_split": rf.minSamplesSplit,
		"min_samples_leaf":  rf.minSamplesLeaf,
		"max_features":      rf.maxFeatures,
		"oob_score":         rf.oobScore,
		"random_state":      rf.randomState,
	}
}

// ExportState describes the fitted model for JSON export.
func (rf *RandomForestClassifier) ExportState() model.ModelState {
	nFeatures, nSamples := rf.state.GetDimensions()
	return model.ModelState{
		ModelType: "RandomForestClassifier",
		Fitted:    rf.state.IsFitted(),
		NFeatures: nFeatures,
		NSamples:  nSamples,
		Params:    rf.GetParams(),
	}
}
