package metrics

import (
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/grove-ml/grove/pkg/errors"
)

// AccuracyScore computes the fraction of exactly matching predictions.
func AccuracyScore(yTrue, yPred *mat.VecDense) (float64, error) {
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError("AccuracyScore", "empty vector")
	}
	if yPred.Len() != n {
		return 0, errors.NewDimensionError("AccuracyScore", n, yPred.Len(), 0)
	}

	correct := 0
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == yPred.AtVec(i) {
			correct++
		}
	}

	return float64(correct) / float64(n), nil
}

// AccuracyScoreMatrix computes accuracy for column-vector matrix inputs.
func AccuracyScoreMatrix(yTrue, yPred mat.Matrix) (float64, error) {
	yTrueVec, err := columnVec("AccuracyScoreMatrix", yTrue)
	if err != nil {
		return 0, err
	}
	yPredVec, err := columnVec("AccuracyScoreMatrix", yPred)
	if err != nil {
		return 0, err
	}
	return AccuracyScore(yTrueVec, yPredVec)
}

// AUC computes the area under the ROC curve for binary labels (0/1) and
// probability scores, using the rank statistic formulation. When only one
// class is present the metric is undefined and 0.5 is returned.
func AUC(yTrue, yPred *mat.VecDense) (float64, error) {
	if yTrue == nil || yPred == nil {
		return 0, errors.NewValueError("AUC", "nil vector")
	}
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError("AUC", "empty vector")
	}
	if yPred.Len() != n {
		return 0, errors.NewDimensionError("AUC", n, yPred.Len(), 0)
	}

	nPos, nNeg := 0, 0
	for i := 0; i < n; i++ {
		switch yTrue.AtVec(i) {
		case 1:
			nPos++
		case 0:
			nNeg++
		default:
			return 0, errors.NewValueError("AUC", "labels must be binary (0 or 1)")
		}
	}
	if nPos == 0 || nNeg == 0 {
		return 0.5, nil
	}

	// Rank the scores ascending; tied scores share their average rank.
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		return yPred.AtVec(idx[a]) < yPred.AtVec(idx[b])
	})

	ranks := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j+1 < n && yPred.AtVec(idx[j+1]) == yPred.AtVec(idx[i]) {
			j++
		}
		avgRank := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[idx[k]] = avgRank
		}
		i = j + 1
	}

	var posRankSum float64
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == 1 {
			posRankSum += ranks[i]
		}
	}

	auc := (posRankSum - float64(nPos)*float64(nPos+1)/2) / (float64(nPos) * float64(nNeg))
	return auc, nil
}

// AUCMatrix computes AUC from the first column of matrix inputs.
func AUCMatrix(yTrue, yPred mat.Matrix) (float64, error) {
	if yTrue == nil || yPred == nil {
		return 0, errors.NewValueError("AUCMatrix", "nil matrix")
	}
	rTrue, _ := yTrue.Dims()
	rPred, _ := yPred.Dims()
	if rTrue == 0 || rPred == 0 {
		return 0, errors.NewValueError("AUCMatrix", "empty matrix")
	}
	if rTrue != rPred {
		return 0, errors.NewDimensionError("AUCMatrix", rTrue, rPred, 0)
	}

	yTrueVec := mat.NewVecDense(rTrue, nil)
	yPredVec := mat.NewVecDense(rPred, nil)
	for i := 0; i < rTrue; i++ {
		yTrueVec.SetVec(i, yTrue.At(i, 0))
		yPredVec.SetVec(i, yPred.At(i, 0))
	}
	return AUC(yTrueVec, yPredVec)
}

// ConfusionMatrix computes the confusion matrix for integer labels.
// The returned matrix is indexed [trueClass][predictedClass] following the
// order of the returned sorted label set.
func ConfusionMatrix(yTrue, yPred *mat.VecDense) ([][]int, []int, error) {
	n := yTrue.Len()
	if n == 0 {
		return nil, nil, errors.NewValueError("ConfusionMatrix", "empty vector")
	}
	if yPred.Len() != n {
		return nil, nil, errors.NewDimensionError("ConfusionMatrix", n, yPred.Len(), 0)
	}

	labelSet := map[int]bool{}
	for i := 0; i < n; i++ {
		labelSet[int(yTrue.AtVec(i))] = true
		labelSet[int(yPred.AtVec(i))] = true
	}
	labels := make([]int, 0, len(labelSet))
	for l := range labelSet {
		labels = append(labels, l)
	}
	sort.Ints(labels)

	index := make(map[int]int, len(labels))
	for i, l := range labels {
		index[l] = i
	}

	cm := make([][]int, len(labels))
	for i := range cm {
		cm[i] = make([]int, len(labels))
	}
	for i := 0; i < n; i++ {
		cm[index[int(yTrue.AtVec(i))]][index[int(yPred.AtVec(i))]]++
	}

	return cm, labels, nil
}
