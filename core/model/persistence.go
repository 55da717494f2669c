package model

import (
	"encoding/gob"
	"io"
	"os"

	"github.com/goccy/go-json"

	"github.com/grove-ml/grove/pkg/errors"
)

// ModelState captures the serializable state of a fitted model for
// inspection and JSON export.
type ModelState struct {
	ModelType string                 `json:"model_type"`
	Fitted    bool                   `json:"fitted"`
	NFeatures int                    `json:"n_features,omitempty"`
	NSamples  int                    `json:"n_samples,omitempty"`
	Params    map[string]interface{} `json:"params,omitempty"`
}

// StateExporter is implemented by models that can describe their state as
// a ModelState.
type StateExporter interface {
	ExportState() ModelState
}

// SaveModel saves a model to a file using gob encoding.
//
// Example:
//
//	forest := ensemble.NewRandomForestClassifier()
//	// ... fit ...
//	err := model.SaveModel(forest, "forest.gob")
func SaveModel(m interface{}, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrap(err, "failed to create file")
	}
	defer file.Close()

	return SaveModelToWriter(m, file)
}

// LoadModel loads a model from a file written by SaveModel.
func LoadModel(m interface{}, filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return errors.Wrap(err, "failed to open file")
	}
	defer file.Close()

	return LoadModelFromReader(m, file)
}

// SaveModelToWriter saves a model to an io.Writer using gob encoding.
func SaveModelToWriter(m interface{}, w io.Writer) error {
	encoder := gob.NewEncoder(w)
	if err := encoder.Encode(m); err != nil {
		return errors.Wrap(err, "failed to encode model")
	}
	return nil
}

// LoadModelFromReader loads a model from an io.Reader.
func LoadModelFromReader(m interface{}, r io.Reader) error {
	decoder := gob.NewDecoder(r)
	if err := decoder.Decode(m); err != nil {
		return errors.Wrap(err, "failed to decode model")
	}
	return nil
}

// ExportStateJSON marshals the model's state description to JSON.
func ExportStateJSON(m StateExporter) ([]byte, error) {
	data, err := json.Marshal(m.ExportState())
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal model state")
	}
	return data, nil
}

// ImportStateJSON unmarshals a JSON state description produced by
// ExportStateJSON.
func ImportStateJSON(data []byte) (ModelState, error) {
	var state ModelState
	if err := json.Unmarshal(data, &state); err != nil {
		return ModelState{}, errors.Wrap(err, "failed to unmarshal model state")
	}
	return state, nil
}
