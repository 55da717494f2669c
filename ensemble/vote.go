package ensemble

import (
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/grove-ml/grove/core/model"
	"github.com/grove-ml/grove/pkg/errors"
)

// Voting strategies for classification ensembles.
const (
	// VotingHard aggregates by majority vote over predicted labels.
	VotingHard = "hard"
	// VotingSoft aggregates by averaging per-class probabilities.
	VotingSoft = "soft"
)

// extractClasses returns the sorted unique labels of the column vector y.
func extractClasses(y mat.Matrix) []int {
	rows, _ := y.Dims()
	classMap := make(map[int]bool)
	for i := 0; i < rows; i++ {
		classMap[int(y.At(i, 0))] = true
	}

	classes := make([]int, 0, len(classMap))
	for class := range classMap {
		classes = append(classes, class)
	}
	sort.Ints(classes)
	return classes
}

// argmaxLowest returns the index of the largest score. Ties resolve to the
// lowest index, which with ascending class order means the lowest label.
func argmaxLowest(scores []float64) int {
	best := 0
	for i := 1; i < len(scores); i++ {
		if scores[i] > scores[best] {
			best = i
		}
	}
	return best
}

// accumulateProba adds weight times the member's row probabilities into
// out, whose columns follow the ensemble class order classIndex.
//
// A member trained on a resample may have seen only a subset of the
// ensemble's classes, so its probability columns are remapped through its
// own Classes() when it exposes them. Members without Classes() must
// already be column-aligned with the ensemble.
func accumulateProba(proba mat.Matrix, memberClasses []int, classIndex map[int]int, row int, weight float64, out []float64) error {
	_, cols := proba.Dims()

	if memberClasses == nil {
		if cols != len(out) {
			return errors.Newf("probability columns mismatch: member returned %d, ensemble has %d classes", cols, len(out))
		}
		for j := 0; j < cols; j++ {
			out[j] += weight * proba.At(row, j)
		}
		return nil
	}

	if cols != len(memberClasses) {
		return errors.Newf("probability columns mismatch: member returned %d for %d classes", cols, len(memberClasses))
	}
	for j, class := range memberClasses {
		k, ok := classIndex[class]
		if !ok {
			return errors.Newf("member predicts unknown class label %d", class)
		}
		out[k] += weight * proba.At(row, j)
	}
	return nil
}

// memberClasses returns the member's class labels when it exposes them.
func memberClasses(est model.Estimator) []int {
	if c, ok := est.(interface{ Classes() []int }); ok {
		return c.Classes()
	}
	return nil
}
