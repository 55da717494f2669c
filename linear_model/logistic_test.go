package linear_model

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/grove-ml/grove/pkg/errors"
)

// TestLogisticRegression_FitPredict_Binary tests binary classification
func TestLogisticRegression_FitPredict_Binary(t *testing.T) {
	X := mat.NewDense(8, 2, []float64{
		0, 0,
		0, 1,
		1, 0,
		1, 1,
		5, 5,
		5, 6,
		6, 5,
		6, 6,
	})

	y := mat.NewDense(8, 1, []float64{
		0, 0, 0, 0,
		1, 1, 1, 1,
	})

	lr := NewLogisticRegression(
		WithMaxIter(500),
		WithRandomState(42),
	)

	if err := lr.Fit(X, y); err != nil {
		t.Fatalf("Failed to fit model: %v", err)
	}

	predictions, err := lr.Predict(X)
	if err != nil {
		t.Fatalf("Failed to predict: %v", err)
	}

	for i := 0; i < 8; i++ {
		if predictions.At(i, 0) != y.At(i, 0) {
			t.Errorf("Sample %d: expected %v, got %v", i, y.At(i, 0), predictions.At(i, 0))
		}
	}

	if score := lr.Score(X, y); score != 1.0 {
		t.Errorf("Expected perfect accuracy on separable data, got %v", score)
	}
}

// TestLogisticRegression_PredictProba tests probability estimates
func TestLogisticRegression_PredictProba(t *testing.T) {
	X := mat.NewDense(6, 2, []float64{
		0, 0,
		0, 1,
		1, 0,
		5, 5,
		5, 6,
		6, 5,
	})

	y := mat.NewDense(6, 1, []float64{
		0, 0, 0,
		1, 1, 1,
	})

	lr := NewLogisticRegression(
		WithMaxIter(500),
		WithRandomState(7),
	)

	if err := lr.Fit(X, y); err != nil {
		t.Fatalf("Failed to fit model: %v", err)
	}

	probas, err := lr.PredictProba(X)
	if err != nil {
		t.Fatalf("Failed to predict probabilities: %v", err)
	}

	rows, cols := probas.Dims()
	if rows != 6 || cols != 2 {
		t.Errorf("Expected probas shape (6, 2), got (%d, %d)", rows, cols)
	}

	for i := 0; i < rows; i++ {
		sum := 0.0
		for j := 0; j < cols; j++ {
			p := probas.At(i, j)
			if p < 0 || p > 1 {
				t.Errorf("Invalid probability at (%d, %d): %v", i, j, p)
			}
			sum += p
		}
		if math.Abs(sum-1.0) > 1e-6 {
			t.Errorf("Probabilities for sample %d don't sum to 1: %v", i, sum)
		}
	}

	// Class 1 rows should lean towards class 1
	if probas.At(3, 1) <= 0.5 {
		t.Errorf("Sample 3 should favor class 1, got p=%v", probas.At(3, 1))
	}
}

// TestLogisticRegression_Multiclass tests one-vs-rest classification
func TestLogisticRegression_Multiclass(t *testing.T) {
	X := mat.NewDense(9, 2, []float64{
		0, 0,
		0, 1,
		1, 0,
		5, 5,
		5, 6,
		6, 5,
		10, 0,
		10, 1,
		11, 0,
	})

	y := mat.NewDense(9, 1, []float64{
		0, 0, 0,
		1, 1, 1,
		2, 2, 2,
	})

	lr := NewLogisticRegression(
		WithMaxIter(800),
		WithRandomState(1),
	)

	if err := lr.Fit(X, y); err != nil {
		t.Fatalf("Failed to fit multiclass model: %v", err)
	}

	if lr.nClasses_ != 3 {
		t.Errorf("Expected 3 classes, got %d", lr.nClasses_)
	}

	classes := lr.Classes()
	if len(classes) != 3 || classes[0] != 0 || classes[2] != 2 {
		t.Errorf("Classes() = %v, want [0 1 2]", classes)
	}

	if score := lr.Score(X, y); score < 0.8 {
		t.Errorf("Expected high accuracy on well separated clusters, got %v", score)
	}

	probas, err := lr.PredictProba(X)
	if err != nil {
		t.Fatalf("Failed to predict probabilities: %v", err)
	}

	rows, cols := probas.Dims()
	if cols != 3 {
		t.Errorf("Expected 3 probability columns, got %d", cols)
	}
	for i := 0; i < rows; i++ {
		sum := 0.0
		for j := 0; j < cols; j++ {
			sum += probas.At(i, j)
		}
		if math.Abs(sum-1.0) > 1e-6 {
			t.Errorf("Probabilities for sample %d don't sum to 1: %v", i, sum)
		}
	}
}

// TestLogisticRegression_Validation tests input and parameter validation
func TestLogisticRegression_Validation(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{
		0, 0,
		0, 1,
		1, 0,
		1, 1,
	})
	y := mat.NewDense(4, 1, []float64{0, 0, 1, 1})

	tests := []struct {
		name string
		lr   *LogisticRegression
	}{
		{"invalid penalty", NewLogisticRegression(WithPenalty("l7"))},
		{"non-positive C", NewLogisticRegression(WithC(0))},
		{"zero max_iter", NewLogisticRegression(WithMaxIter(0))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.lr.Fit(X, y); err == nil {
				t.Error("Expected configuration error, got nil")
			}
		})
	}

	// Single class
	ySingle := mat.NewDense(4, 1, []float64{1, 1, 1, 1})
	if err := NewLogisticRegression().Fit(X, ySingle); err == nil {
		t.Error("Expected error for single-class y")
	}
}

// TestLogisticRegression_NonFiniteInput tests numerical stability checks
func TestLogisticRegression_NonFiniteInput(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{
		0, 0,
		0, 1,
		math.NaN(), 0,
		1, 1,
	})
	y := mat.NewDense(4, 1, []float64{0, 0, 1, 1})

	lr := NewLogisticRegression(WithRandomState(1))
	err := lr.Fit(X, y)
	if err == nil {
		t.Fatal("Expected error for NaN feature values")
	}

	var valErr *errors.ValueError
	if !errors.As(err, &valErr) {
		t.Errorf("Error should be castable to *ValueError, got %T", err)
	}
	if lr.state.IsFitted() {
		t.Error("Model should not be fitted after a failed Fit")
	}
}

// TestLogisticRegression_NotFitted tests error before fitting
func TestLogisticRegression_NotFitted(t *testing.T) {
	lr := NewLogisticRegression()
	X := mat.NewDense(2, 2, []float64{1, 2, 3, 4})

	if _, err := lr.Predict(X); err == nil {
		t.Error("Expected error when predicting without fitting")
	}
	if _, err := lr.PredictProba(X); err == nil {
		t.Error("Expected error when predicting probabilities without fitting")
	}
}

// TestLogisticRegression_GetSetParams tests parameter management
func TestLogisticRegression_GetSetParams(t *testing.T) {
	lr := NewLogisticRegression()

	params := lr.GetParams()
	if params["penalty"].(string) != "l2" {
		t.Errorf("Default penalty should be 'l2', got %v", params["penalty"])
	}
	if params["max_iter"].(int) != 100 {
		t.Errorf("Default max_iter should be 100, got %v", params["max_iter"])
	}

	err := lr.SetParams(map[string]interface{}{
		"penalty":  "none",
		"C":        0.5,
		"max_iter": 300,
	})
	if err != nil {
		t.Fatalf("Failed to set params: %v", err)
	}

	if lr.penalty != "none" || lr.c != 0.5 || lr.maxIter != 300 {
		t.Errorf("Params not updated: penalty=%v C=%v maxIter=%v", lr.penalty, lr.c, lr.maxIter)
	}

	if err := lr.SetParams(map[string]interface{}{"bogus": 1}); err == nil {
		t.Error("Expected error for unknown parameter")
	}
}
