package model

import (
	"sync"
	"testing"

	groveerrors "github.com/grove-ml/grove/pkg/errors"
)

func TestStateManagerLifecycle(t *testing.T) {
	sm := NewStateManager()

	if sm.IsFitted() {
		t.Error("New StateManager should not be fitted")
	}

	if err := sm.RequireFitted("BaggingClassifier", "Predict"); err == nil {
		t.Error("RequireFitted should fail before SetFitted")
	} else {
		var notFitted *groveerrors.NotFittedError
		if !groveerrors.As(err, &notFitted) {
			t.Errorf("Expected NotFittedError, got %T", err)
		}
	}

	sm.SetDimensions(4, 100)
	sm.SetFitted()

	if !sm.IsFitted() {
		t.Error("StateManager should be fitted after SetFitted")
	}
	if err := sm.RequireFitted("BaggingClassifier", "Predict"); err != nil {
		t.Errorf("RequireFitted after SetFitted: %v", err)
	}

	nFeatures, nSamples := sm.GetDimensions()
	if nFeatures != 4 || nSamples != 100 {
		t.Errorf("GetDimensions() = (%d, %d), want (4, 100)", nFeatures, nSamples)
	}

	sm.Reset()
	if sm.IsFitted() {
		t.Error("StateManager should not be fitted after Reset")
	}
	nFeatures, nSamples = sm.GetDimensions()
	if nFeatures != 0 || nSamples != 0 {
		t.Errorf("GetDimensions() after Reset = (%d, %d), want (0, 0)", nFeatures, nSamples)
	}
}

func TestStateManagerConcurrentAccess(t *testing.T) {
	sm := NewStateManager()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			sm.SetFitted()
		}()
		go func() {
			defer wg.Done()
			_ = sm.IsFitted()
		}()
	}
	wg.Wait()

	if !sm.IsFitted() {
		t.Error("StateManager should be fitted")
	}
}

type fakeExporter struct{}

func (fakeExporter) ExportState() ModelState {
	return ModelState{
		ModelType: "RandomForestClassifier",
		Fitted:    true,
		NFeatures: 2,
		NSamples:  500,
		Params:    map[string]interface{}{"n_estimators": 100},
	}
}

func TestExportImportStateJSON(t *testing.T) {
	data, err := ExportStateJSON(fakeExporter{})
	if err != nil {
		t.Fatalf("ExportStateJSON: %v", err)
	}

	state, err := ImportStateJSON(data)
	if err != nil {
		t.Fatalf("ImportStateJSON: %v", err)
	}

	if state.ModelType != "RandomForestClassifier" {
		t.Errorf("ModelType = %v, want RandomForestClassifier", state.ModelType)
	}
	if !state.Fitted || state.NFeatures != 2 || state.NSamples != 500 {
		t.Errorf("Unexpected state: %+v", state)
	}
}
