// Package tree implements CART decision trees, the default base learners
// for grove's bagging and random forest ensembles.
package tree

import (
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/grove-ml/grove/core/model"
	"github.com/grove-ml/grove/metrics"
	"github.com/grove-ml/grove/pkg/errors"
)

// treeNode is a node of a fitted tree. Internal nodes carry a split,
// leaves carry the training distribution (classifier) or mean (regressor).
type treeNode struct {
	Feature   int
	Threshold float64
	Left      *treeNode
	Right     *treeNode
	IsLeaf    bool
	Counts    []float64 // per-class sample counts, classifier leaves
	Value     float64   // mean target, regressor leaves
}

// DecisionTreeClassifier implements a CART classification tree with gini
// or entropy impurity.
type DecisionTreeClassifier struct {
	state *model.StateManager

	// Hyperparameters
	criterion       string // "gini" or "entropy"
	maxDepth        int    // 0 means unlimited
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     int // features considered per split, 0 means all
	randomState     int64

	// Fitted attributes
	root         *treeNode
	classes_     []int
	nClasses_    int
	nFeatures_   int
	importances_ []float64
	depth_       int
	nLeaves_     int

	rng *rand.Rand
}

// DecisionTreeOption is a functional option for DecisionTreeClassifier.
type DecisionTreeOption func(*DecisionTreeClassifier)

// NewDecisionTreeClassifier creates a new DecisionTreeClassifier.
func NewDecisionTreeClassifier(opts ...DecisionTreeOption) *DecisionTreeClassifier {
	dt := &DecisionTreeClassifier{
		state:           model.NewStateManager(),
		criterion:       "gini",
		maxDepth:        0,
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
		maxFeatures:     0,
		randomState:     -1,
	}

	for _, opt := range opts {
		opt(dt)
	}

	dt.seedRNG()
	return dt
}

func (dt *DecisionTreeClassifier) seedRNG() {
	if dt.randomState >= 0 {
		dt.rng = rand.New(rand.NewSource(dt.randomState))
	} else {
		dt.rng = rand.New(rand.NewSource(rand.Int63()))
	}
}

// WithCriterion sets the impurity criterion ("gini" or "entropy").
func WithCriterion(criterion string) DecisionTreeOption {
	return func(dt *DecisionTreeClassifier) {
		dt.criterion = criterion
	}
}

// WithMaxDepth sets the maximum tree depth. 0 means unlimited.
func WithMaxDepth(depth int) DecisionTreeOption {
	return func(dt *DecisionTreeClassifier) {
		dt.maxDepth = depth
	}
}

// WithMinSamplesSplit sets the minimum samples required to split a node.
func WithMinSamplesSplit(n int) DecisionTreeOption {
	return func(dt *DecisionTreeClassifier) {
		dt.minSamplesSplit = n
	}
}

// WithMinSamplesLeaf sets the minimum samples required at a leaf.
func WithMinSamplesLeaf(n int) DecisionTreeOption {
	return func(dt *DecisionTreeClassifier) {
		dt.minSamplesLeaf = n
	}
}

// WithMaxFeatures sets how many randomly chosen features are considered at
// each split. 0 means all features. Random forests use this for feature
// subsampling.
func WithMaxFeatures(n int) DecisionTreeOption {
	return func(dt *DecisionTreeClassifier) {
		dt.maxFeatures = n
	}
}

// WithRandomState sets the random seed used for feature subsampling.
func WithRandomState(seed int64) DecisionTreeOption {
	return func(dt *DecisionTreeClassifier) {
		dt.randomState = seed
	}
}

// Fit trains the decision tree on X and the label column y.
func (dt *DecisionTreeClassifier) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "DecisionTreeClassifier.Fit")

	nSamples, nFeatures := X.Dims()
	yRows, yCols := y.Dims()

	if nSamples == 0 {
		return errors.WithStack(errors.ErrEmptyData)
	}
	if nSamples != yRows {
		return errors.NewDimensionError("DecisionTreeClassifier.Fit", nSamples, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewValueError("DecisionTreeClassifier.Fit", "y must be a column vector")
	}
	if dt.criterion != "gini" && dt.criterion != "entropy" {
		return errors.NewConfigurationError("DecisionTreeClassifier", "criterion", "must be gini or entropy", dt.criterion)
	}
	if dt.minSamplesSplit < 2 {
		return errors.NewConfigurationError("DecisionTreeClassifier", "minSamplesSplit", "must be >= 2", dt.minSamplesSplit)
	}
	if dt.minSamplesLeaf < 1 {
		return errors.NewConfigurationError("DecisionTreeClassifier", "minSamplesLeaf", "must be >= 1", dt.minSamplesLeaf)
	}
	if dt.maxFeatures < 0 || dt.maxFeatures > nFeatures {
		return errors.NewConfigurationError("DecisionTreeClassifier", "maxFeatures", "must be in [0, nFeatures]", dt.maxFeatures)
	}

	dt.extractClasses(y, yRows)
	dt.nFeatures_ = nFeatures
	dt.importances_ = make([]float64, nFeatures)
	dt.depth_ = 0
	dt.nLeaves_ = 0

	// Copy into slices once; induction touches rows many times.
	features := make([][]float64, nSamples)
	labels := make([]int, nSamples)
	classIndex := make(map[int]int, dt.nClasses_)
	for i, c := range dt.classes_ {
		classIndex[c] = i
	}
	for i := 0; i < nSamples; i++ {
		row := make([]float64, nFeatures)
		for j := 0; j < nFeatures; j++ {
			row[j] = X.At(i, j)
		}
		features[i] = row
		labels[i] = classIndex[int(y.At(i, 0))]
	}

	indices := make([]int, nSamples)
	for i := range indices {
		indices[i] = i
	}

	b := &classifierBuilder{tree: dt, X: features, y: labels, nTotal: nSamples}
	dt.root = b.build(indices, 1)

	// Normalize importances to sum to 1.
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

// extractClasses records the sorted unique labels.
func (dt *DecisionTreeClassifier) extractClasses(y mat.Matrix, rows int) {
	classMap := make(map[int]bool)
	for i := 0; i < rows; i++ {
		classMap[int(y.At(i, 0))] = true
	}

	dt.classes_ = make([]int, 0, len(classMap))
	for class := range classMap {
		dt.classes_ = append(dt.classes_, class)
	}
	sort.Ints(dt.classes_)
	dt.nClasses_ = len(dt.classes_)
}

// classifierBuilder carries the training data through recursive induction.
type classifierBuilder struct {
	tree   *DecisionTreeClassifier
	X      [][]float64
	y      []int
	nTotal int
}

func (b *classifierBuilder) build(indices []int, depth int) *treeNode {
	dt := b.tree

	counts := make([]float64, dt.nClasses_)
	for _, i := range indices {
		counts[b.y[i]]++
	}
	imp := impurity(dt.criterion, counts, float64(len(indices)))

	if imp == 0 ||
		len(indices) < dt.minSamplesSplit ||
		(dt.maxDepth > 0 && depth > dt.maxDepth) {
		return b.leaf(counts, depth)
	}

	feature, threshold, gain, leftIdx, rightIdx := b.bestSplit(indices, counts, imp)
	if gain <= 1e-12 {
		return b.leaf(counts, depth)
	}

	// Mean decrease in impurity, weighted by the node population.
	nNode := float64(len(indices))
	nL := float64(len(leftIdx))
	nR := float64(len(rightIdx))
	leftCounts := make([]float64, dt.nClasses_)
	for _, i := range leftIdx {
		leftCounts[b.y[i]]++
	}
	rightCounts := make([]float64, dt.nClasses_)
	for _, i := range rightIdx {
		rightCounts[b.y[i]]++
	}
	impL := impurity(dt.criterion, leftCounts, nL)
	impR := impurity(dt.criterion, rightCounts, nR)
	dt.importances_[feature] += (nNode*imp - nL*impL - nR*impR) / float64(b.nTotal)

	return &treeNode{
		Feature:   feature,
		Threshold: threshold,
		Left:      b.build(leftIdx, depth+1),
		Right:     b.build(rightIdx, depth+1),
	}
}

func (b *classifierBuilder) leaf(counts []float64, depth int) *treeNode {
	dt := b.tree
	if depth-1 > dt.depth_ {
		dt.depth_ = depth - 1
	}
	dt.nLeaves_++
	return &treeNode{IsLeaf: true, Counts: counts}
}

// bestSplit scans candidate thresholds on the considered features and
// returns the split with the largest impurity decrease.
func (b *classifierBuilder) bestSplit(indices []int, counts []float64, parentImp float64) (feature int, threshold, gain float64, leftIdx, rightIdx []int) {
	dt := b.tree
	nNode := float64(len(indices))
	feature = -1
	gain = 0

	for _, f := range b.candidateFeatures() {
		// Sort node rows by this feature once, then sweep thresholds
		// with incremental class counts.
		order := make([]int, len(indices))
		copy(order, indices)
		sort.Slice(order, func(a, c int) bool {
			return b.X[order[a]][f] < b.X[order[c]][f]
		})

		leftCounts := make([]float64, dt.nClasses_)
		rightCounts := make([]float64, dt.nClasses_)
		copy(rightCounts, counts)

		for pos := 1; pos < len(order); pos++ {
			cls := b.y[order[pos-1]]
			leftCounts[cls]++
			rightCounts[cls]--

			prev := b.X[order[pos-1]][f]
			cur := b.X[order[pos]][f]
			if cur == prev {
				continue
			}
			if pos < dt.minSamplesLeaf || len(order)-pos < dt.minSamplesLeaf {
				continue
			}

			nL := float64(pos)
			nR := nNode - nL
			weighted := (nL*impurity(dt.criterion, leftCounts, nL) +
				nR*impurity(dt.criterion, rightCounts, nR)) / nNode

			if g := parentImp - weighted; g > gain {
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

// candidateFeatures returns the feature indices considered for one split:
// all of them, or a random subset of size maxFeatures.
func (b *classifierBuilder) candidateFeatures() []int {
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

// impurity computes gini or entropy impurity from class counts.
func impurity(criterion string, counts []float64, n float64) float64 {
	if n == 0 {
		return 0
	}
	switch criterion {
	case "entropy":
		var h float64
		for _, c := range counts {
			if c > 0 {
				p := c / n
				h -= p * math.Log2(p)
			}
		}
		return h
	default: // gini
		g := 1.0
		for _, c := range counts {
			p := c / n
			g -= p * p
		}
		return g
	}
}

// Predict returns the predicted class labels for X.
func (dt *DecisionTreeClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := dt.state.RequireFitted("DecisionTreeClassifier", "Predict"); err != nil {
		return nil, err
	}

	nSamples, nFeatures := X.Dims()
	if nFeatures != dt.nFeatures_ {
		return nil, errors.NewDimensionError("DecisionTreeClassifier.Predict", dt.nFeatures_, nFeatures, 1)
	}

	predictions := mat.NewDense(nSamples, 1, nil)
	for i := 0; i < nSamples; i++ {
		counts := dt.leafCounts(X, i)
		best := 0
		for j := 1; j < dt.nClasses_; j++ {
			if counts[j] > counts[best] {
				best = j
			}
		}
		predictions.Set(i, 0, float64(dt.classes_[best]))
	}
	return predictions, nil
}

// PredictProba returns per-class probability estimates derived from leaf
// class frequencies. Columns follow Classes() order.
func (dt *DecisionTreeClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := dt.state.RequireFitted("DecisionTreeClassifier", "PredictProba"); err != nil {
		return nil, err
	}

	nSamples, nFeatures := X.Dims()
	if nFeatures != dt.nFeatures_ {
		return nil, errors.NewDimensionError("DecisionTreeClassifier.PredictProba", dt.nFeatures_, nFeatures, 1)
	}

	probas := mat.NewDense(nSamples, dt.nClasses_, nil)
	for i := 0; i < nSamples; i++ {
		counts := dt.leafCounts(X, i)
		var total float64
		for _, c := range counts {
			total += c
		}
		for j := 0; j < dt.nClasses_; j++ {
			probas.Set(i, j, errors.SafeDivide(counts[j], total))
		}
	}
	return probas, nil
}

// leafCounts walks row i of X down to its leaf and returns the class
// counts stored there.
func (dt *DecisionTreeClassifier) leafCounts(X mat.Matrix, i int) []float64 {
	node := dt.root
	for !node.IsLeaf {
		if X.At(i, node.Feature) <= node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	return node.Counts
}

// Score returns the mean accuracy on the given test data and labels.
func (dt *DecisionTreeClassifier) Score(X, y mat.Matrix) float64 {
	predictions, err := dt.Predict(X)
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
func (dt *DecisionTreeClassifier) Classes() []int {
	return dt.classes_
}

// GetFeatureImportances returns the normalized mean decrease in impurity
// per feature.
func (dt *DecisionTreeClassifier) GetFeatureImportances() []float64 {
	return dt.importances_
}

// GetDepth returns the depth of the fitted tree.
func (dt *DecisionTreeClassifier) GetDepth() int {
	return dt.depth_
}

// GetNLeaves returns the number of leaves in the fitted tree.
func (dt *DecisionTreeClassifier) GetNLeaves() int {
	return dt.nLeaves_
}

// GetParams returns the model hyperparameters.
func (dt *DecisionTreeClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"criterion":         dt.criterion,
		"max_depth":         dt.maxDepth,
		"min_samples_split": dt.minSamplesSplit,
		"min_samples_leaf":  dt.minSamplesLeaf,
		"max_features":      dt.maxFeatures,
		"random_state":      dt.randomState,
	}
}

// SetParams sets the model hyperparameters.
func (dt *DecisionTreeClassifier) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		switch key {
		case "criterion":
			v, ok := value.(string)
			if !ok {
				return errors.NewValueError("DecisionTreeClassifier.SetParams", "criterion must be a string")
			}
			dt.criterion = v
		case "max_depth":
			v, ok := value.(int)
			if !ok {
				return errors.NewValueError("DecisionTreeClassifier.SetParams", "max_depth must be an int")
			}
			dt.maxDepth = v
		case "min_samples_split":
			v, ok := value.(int)
			if !ok {
				return errors.NewValueError("DecisionTreeClassifier.SetParams", "min_samples_split must be an int")
			}
			dt.minSamplesSplit = v
		case "min_samples_leaf":
			v, ok := value.(int)
			if !ok {
				return errors.NewValueError("DecisionTreeClassifier.SetParams", "min_samples_leaf must be an int")
			}
			dt.minSamplesLeaf = v
		case "max_features":
			v, ok := value.(int)
			if !ok {
				return errors.NewValueError("DecisionTreeClassifier.SetParams", "max_features must be an int")
			}
			dt.maxFeatures = v
		case "random_state":
			v, ok := value.(int64)
			if !ok {
				return errors.NewValueError("DecisionTreeClassifier.SetParams", "random_state must be an int64")
			}
			dt.randomState = v
			dt.seedRNG()
		default:
			return errors.Newf("unknown parameter: %s", key)
		}
	}
	return nil
}

// ExportState describes the fitted model for JSON export.
func (dt *DecisionTreeClassifier) ExportState() model.ModelState {
	nFeatures, nSamples := dt.state.GetDimensions()
	return model.ModelState{
		ModelType: "DecisionTreeClassifier",
		Fitted:    dt.state.IsFitted(),
		NFeatures: nFeatures,
		NSamples:  nSamples,
		Params:    dt.GetParams(),
	}
}
