package model_test

import (
	"bytes"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/grove-ml/grove/core/model"
	"github.com/grove-ml/grove/preprocessing"
)

func TestSaveLoadModelFile(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{
		1, 10,
		2, 20,
		3, 30,
		4, 40,
	})

	scaler := preprocessing.NewStandardScalerDefault()
	if err := scaler.Fit(X); err != nil {
		t.Fatalf("Failed to fit scaler: %v", err)
	}

	path := filepath.Join(t.TempDir(), "scaler.gob")
	if err := model.SaveModel(scaler, path); err != nil {
		t.Fatalf("SaveModel: %v", err)
	}

	loaded := preprocessing.NewStandardScalerDefault()
	if err := model.LoadModel(loaded, path); err != nil {
		t.Fatalf("LoadModel: %v", err)
	}

	if loaded.NFeatures != scaler.NFeatures {
		t.Errorf("NFeatures = %d, want %d", loaded.NFeatures, scaler.NFeatures)
	}
	for j := range scaler.Mean {
		if loaded.Mean[j] != scaler.Mean[j] {
			t.Errorf("Mean[%d] = %v, want %v", j, loaded.Mean[j], scaler.Mean[j])
		}
		if loaded.Scale[j] != scaler.Scale[j] {
			t.Errorf("Scale[%d] = %v, want %v", j, loaded.Scale[j], scaler.Scale[j])
		}
	}
}

func TestSaveLoadModelWriter(t *testing.T) {
	state := model.ModelState{
		ModelType: "BaggingClassifier",
		Fitted:    true,
		NFeatures: 2,
		NSamples:  500,
		Params: map[string]interface{}{
			"n_estimators": 100,
			"voting":       "soft",
			"bootstrap":    true,
		},
	}

	var buf bytes.Buffer
	if err := model.SaveModelToWriter(state, &buf); err != nil {
		t.Fatalf("SaveModelToWriter: %v", err)
	}

	var loaded model.ModelState
	if err := model.LoadModelFromReader(&loaded, &buf); err != nil {
		t.Fatalf("LoadModelFromReader: %v", err)
	}

	if loaded.ModelType != state.ModelType || !loaded.Fitted {
		t.Errorf("Loaded state = %+v, want %+v", loaded, state)
	}
	if loaded.Params["n_estimators"] != 100 || loaded.Params["voting"] != "soft" {
		t.Errorf("Params = %v, want %v", loaded.Params, state.Params)
	}
}

func TestLoadModelMissingFile(t *testing.T) {
	var state model.ModelState
	if err := model.LoadModel(&state, filepath.Join(t.TempDir(), "missing.gob")); err == nil {
		t.Error("Expected error for missing file")
	}
}
