package tree

import (
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/grove-ml/grove/core/model"
	"github.com/grove-ml/grove/metrics"
	"github.com/grove-ml/grove/pkg/errors"
)

// DecisionTreeRegressor implements a CART regression tree minimizing the
// within-node variance (MSE criterion).
type DecisionTreeRegressor struct {
	state *model.StateManager

	// Hyperparameters
	maxDepth        int // 0 means unlimited
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     int // features considered per split, 0 means all
	randomState     int64

	// Fitted attributes
	root         *treeNode
	nFeatures_   int
	importances_ []float64
	depth_       int
	nLeaves_     int

	rng *rand.Rand
}

// RegressorOption is a functional option for DecisionTreeRegressor.
type RegressorOption func(*DecisionTreeRegressor)

// NewDecisionTreeRegressor creates a new DecisionTreeRegressor.
func NewDecisionTreeRegressor(opts ...RegressorOption) *DecisionTreeRegressor {
	dt := &DecisionTreeRegressor{
		state:           model.NewStateManager(),
		maxDepth:        0,
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
		maxFeatures:     0,
		randomState:     -1,
	}

	for _, opt := range opts {
		opt(dt)
	}

	if dt.randomState >= 0 {
		dt.rng = rand.New(rand.NewSource(dt.randomState))
	} else {
		dt.rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return dt
}

// WithRegressorMaxDepth sets the maximum tree depth. 0 means unlimited.
func WithRegressorMaxDepth(depth int) RegressorOption {
	return func(dt *DecisionTreeRegressor) {
		dt.maxDepth = depth
	}
}

// WithRegressorMinSamplesSplit sets the minimum samples to split a node.
func WithRegressorMinSamplesSplit(n int) RegressorOption {
	return func(dt *DecisionTreeRegressor) {
		dt.minSamplesSplit = n
	}
}

// WithRegressorMinSamplesLeaf sets the minimum samples at a leaf.
func WithRegressorMinSamplesLeaf(n int) RegressorOption {
	return func(dt *DecisionTreeRegressor) {
		dt.minSamplesLeaf = n
	}
}

// WithRegressorMaxFeatures sets how many randomly chosen features are
// considered at each split. 0 means all features.
func WithRegressorMaxFeatures(n int) RegressorOption {
	return func(dt *DecisionTreeRegressor) {
		dt.maxFeatures = n
	}
}

// WithRegressorRandomState sets the random seed for feature subsampling.
func WithRegressorRandomState(seed int64) RegressorOption {
	return func(dt *DecisionTreeRegressor) {
		dt.randomState = seed
	}
}

// Fit trains the regression tree on X and the target column y.
func (dt *DecisionTreeRegressor) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "DecisionTreeRegressor.Fit")

	nSamples, nFeatures := X.Dims()
	yRows, yCols := y.Dims()

	if nSamples == 0 {
		return errors.WithStack(errors.ErrEmptyData)
	}
	if nSamples != yRows {
		return errors.NewDimensionError("DecisionTreeRegressor.Fit", nSamples, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewValueError("DecisionTreeRegressor.Fit", "y must be a column vector")
	}
	if dt.minSamplesSplit < 2 {
		return errors.NewConfigurationError("DecisionTreeRegressor", "minSamplesSplit", "must be >= 2", dt.minSamplesSplit)
	}
	if dt.maxFeatures < 0 || dt.maxFeatures > nFeatures {
		return errors.NewConfigurationError("DecisionTreeRegressor", "maxFeatures", "must be in [0, nFeatures]", dt.maxFeatures)
	}

	dt.nFeatures_ = nFeatures
	dt.importances_ = make([]float64, nFeatures)
	dt.depth_ = 0
	dt.nLeaves_ = 0

	features := make([][]float64, nSamples)
	targets := make([]float64, nSamples)
	for i := 0; i < nSamples; i++ {
		row := make([]float64, nFeatures)
		for j := 0; j < nFeatures; j++ {
			row[j] = X.At(i, j)
		}
		features[i] = row
		targets[i] = y.At(i, 0)
	}

	indices := make([]int, nSamples)
	for i := range indices {
		indices[i] = i
	}

	b := &regressorBuilder{tree: dt, X: features, y: targets, nTotal: nSamples}
	dt.root = b.build(indices, 1)

	var sum float64
	for _, v := range dt.importances_ {
		sum += v
	}
	if sum > 0 {
		for i := range dt.importances_ {
			dt.importances_[i] /= sum
		}
	}

	dt.state.SetDimensions(nFeatures, nSamples)
	dt.state.SetFitted()
	return nil
}

type regressorBuilder struct {
	tree   *DecisionTreeRegressor
	X      [][]float64
	y      []float64
	nTotal int
}

// nodeStats returns the mean and the summed squared deviation of the
// node's targets.
func (b *regressorBuilder) nodeStats(indices []int) (mean, sse float64) {
	for _, i := range indices {
		mean += b.y[i]
	}
	mean /= float64(len(indices))
	for _, i := range indices {
		d := b.y[i] - mean
		sse += d * d
	}
	return mean, sse
}

func (b *regressorBuilder) build(indices []int, depth int) *treeNode {
	dt := b.tree

	mean, sse := b.nodeStats(indices)

	if sse == 0 ||
		len(indices) < dt.minSamplesSplit ||
		(dt.maxDepth > 0 && depth > dt.maxDepth) {
		return b.leaf(mean, depth)
	}

	feature, threshold, gain, leftIdx, rightIdx := b.bestSplit(indices, sse)
	if gain <= 1e-12 {
		return b.leaf(mean, depth)
	}

	dt.importances_[feature] += gain / float64(b.nTotal)

	return &treeNode{
		Feature:   feature,
		Threshold: threshold,
		Left:      b.build(leftIdx, depth+1),
		Right:     b.build(rightIdx, depth+1),
	}
}

func (b *regressorBuilder) leaf(mean float64, depth int) *treeNode {
	dt := b.tree
	if depth-1 > dt.depth_ {
		dt.depth_ = depth - 1
	}
	dt.nLeaves_++
	return &treeNode{IsLeaf: true, Value: mean}
}

// bestSplit sweeps sorted thresholds per feature, tracking left/right sums
// incrementally so each candidate costs O(1). Gain is the reduction in
// summed squared error.
func (b *regressorBuilder) bestSplit(indices []int, parentSSE float64) (feature int, threshold, gain float64, leftIdx, rightIdx []int) {
	dt := b.tree
	feature = -1
	gain = 0

	var totalSum, totalSq float64
	for _, i := range indices {
		totalSum += b.y[i]
		totalSq += b.y[i] * b.y[i]
	}

	for _, f := range b.candidateFeatures() {
		order := make([]int, len(indices))
		copy(order, indices)
		sort.Slice(order, func(a, c int) bool {
			return b.X[order[a]][f] < b.X[order[c]][f]
		})

		var leftSum, leftSq float64
		for pos := 1; pos < len(order); pos++ {
			v := b.y[order[pos-1]]
			leftSum += v
			leftSq += v * v

			prev := b.X[order[pos-1]][f]
			cur := b.X[order[pos]][f]
			if cur == prev {
				continue
			}
			if pos < dt.minSamplesLeaf || len(order)-pos < dt.minSamplesLeaf {
				continue
			}

			nL := float64(pos)
			nR := float64(len(order) - pos)
			rightSum := totalSum - leftSum
			rightSq := totalSq - leftSq

			// SSE = Σy² - (Σy)²/n per side.
			sseL := leftSq - leftSum*leftSum/nL
			sseR := rightSq - rightSum*rightSum/nR

			if g := parentSSE - sseL - sseR; g > gain {
				gain = g
				feature = f
				threshold = (prev + cur) / 2
			}
		}
	}

	if feature < 0 {
		return -1, 0, 0, nil, nil
	}

	for _, i := range indices {
		if b.X[i][feature] <= threshold {
			leftIdx = append(leftIdx, i)
		} else {
			rightIdx = append(rightIdx, i)
		}
	}
	return feature, threshold, gain, leftIdx, rightIdx
}

func (b *regressorBuilder) candidateFeatures() []int {
	dt := b.tree
	if dt.maxFeatures == 0 || dt.maxFeatures >= dt.nFeatures_ {
		all := make([]int, dt.nFeatures_)
		for i := range all {
			all[i] = i
		}
		return all
	}
	perm := dt.rng.Perm(dt.nFeatures_)
	return perm[:dt.maxFeatures]
}

// Predict returns the predicted target values for X.
func (dt *DecisionTreeRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := dt.state.RequireFitted("DecisionTreeRegressor", "Predict"); err != nil {
		return nil, err
	}

	nSamples, nFeatures := X.Dims()
	if nFeatures != dt.nFeatures_ {
		return nil, errors.NewDimensionError("DecisionTreeRegressor.Predict", dt.nFeatures_, nFeatures, 1)
	}

	predictions := mat.NewDense(nSamples, 1, nil)
	for i := 0; i < nSamples; i++ {
		node := dt.root
		for !node.IsLeaf {
			if X.At(i, node.Feature) <= node.Threshold {
				node = node.Left
			} else {
				node = node.Right
			}
		}
		predictions.Set(i, 0, node.Value)
	}
	return predictions, nil
}

// Score returns the coefficient of determination R² of the prediction.
func (dt *DecisionTreeRegressor) Score(X, y mat.Matrix) (float64, error) {
	predictions, err := dt.Predict(X)
	if err != nil {
		return 0, err
	}

	n, _ := y.Dims()
	yVec := mat.NewVecDense(n, nil)
	pVec := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		yVec.SetVec(i, y.At(i, 0))
		pVec.SetVec(i, predictions.At(i, 0))
	}
	return metrics.R2Score(yVec, pVec)
}

// GetFeatureImportances returns the normalized importance per feature.
func (dt *DecisionTreeRegressor) GetFeatureImportances() []float64 {
	return dt.importances_
}

// GetDepth returns the depth of the fitted tree.
func (dt *DecisionTreeRegressor) GetDepth() int {
	return dt.depth_
}

// GetNLeaves returns the number of leaves in the fitted tree.
func (dt *DecisionTreeRegressor) GetNLeaves() int {
	return dt.nLeaves_
}

// GetParams returns the model hyperparameters.
func (dt *DecisionTreeRegressor) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"max_depth":         dt.maxDepth,
		"min_samples_split": dt.minSamplesSplit,
		"min_samples_leaf":  dt.minSamplesLeaf,
		"max_features":      dt.maxFeatures,
		"random_state":      dt.randomState,
	}
}

// ExportState describes the fitted model for JSON export.
func (dt *DecisionTreeRegressor) ExportState() model.ModelState {
	nFeatures, nSamples := dt.state.GetDimensions()
	return model.ModelState{
		ModelType: "DecisionTreeRegressor",
		Fitted:    dt.state.IsFitted(),
		NFeatures: nFeatures,
		NSamples:  nSamples,
		Params:    dt.GetParams(),
	}
}
