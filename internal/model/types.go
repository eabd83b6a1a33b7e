package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

var (
	// ErrNotLoaded is returned by calls that need a loaded model.
	ErrNotLoaded = errors.New("model not loaded")
	// ErrModelNotFound is returned by Load when the model file is missing.
	ErrModelNotFound = errors.New("model file not found")
)

// Tensor layouts accepted in the metadata file.
const (
	LayoutNHWC = "nhwc"
	LayoutNCHW = "nchw"
)

// Labels returned by the classifier.
const (
	LabelReal = "REAL"
	LabelFake = "FAKE"
)

// Metadata describes the exported network. It is stored as JSON next to the
// .onnx file.
type Metadata struct {
	Name          string  `json:"name"`
	Framework     string  `json:"framework"`
	InputName     string  `json:"input_name"`
	OutputName    string  `json:"output_name"`
	InputShape    []int64 `json:"input_shape"`
	OutputShape   []int64 `json:"output_shape"`
	ImageSize     int     `json:"image_size"`
	Layout        string  `json:"layout"`
	Scale         float32 `json:"scale"`
	PositiveClass string  `json:"positive_class"`
}

// LoadMetadata reads and validates a metadata file, filling defaults for
// optional fields.
func LoadMetadata(path string) (Metadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}

	var md Metadata
	if err := json.Unmarshal(raw, &md); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}
	md.applyDefaults()

	if err := md.Validate(); err != nil {
		return Metadata{}, err
	}
	return md, nil
}

func (m *Metadata) applyDefaults() {
	if m.Name == "" {
		m.Name = "EfficientNetB0 (Transfer Learning)"
	}
	if m.Framework == "" {
		m.Framework = "ONNX Runtime"
	}
	if m.InputName == "" {
		m.InputName = "input"
	}
	if m.OutputName == "" {
		m.OutputName = "output"
	}
	if m.ImageSize == 0 {
		m.ImageSize = 224
	}
	m.Layout = strings.ToLower(m.Layout)
	if m.Layout == "" {
		m.Layout = LayoutNHWC
	}
	if m.Scale == 0 {
		m.Scale = 1
	}
	m.PositiveClass = strings.ToLower(m.PositiveClass)
	if m.PositiveClass == "" {
		m.PositiveClass = "fake"
	}
	if len(m.InputShape) == 0 {
		if m.Layout == LayoutNCHW {
			m.InputShape = []int64{1, 3, int64(m.ImageSize), int64(m.ImageSize)}
		} else {
			m.InputShape = []int64{1, int64(m.ImageSize), int64(m.ImageSize), 3}
		}
	}
	if len(m.OutputShape) == 0 {
		m.OutputShape = []int64{1, 1}
	}
}

// Validate checks the shapes agree with a single RGB image of ImageSize.
func (m Metadata) Validate() error {
	if m.Layout != LayoutNHWC && m.Layout != LayoutNCHW {
		return fmt.Errorf("unsupported layout %q", m.Layout)
	}
	if m.PositiveClass != "fake" && m.PositiveClass != "real" {
		return fmt.Errorf("positive_class must be fake or real, got %q", m.PositiveClass)
	}
	if want, got := 3*m.ImageSize*m.ImageSize, elements(m.InputShape); int64(want) != got {
		return fmt.Errorf("input_shape %v holds %d values, expected %d for one %dx%d RGB image",
			m.InputShape, got, want, m.ImageSize, m.ImageSize)
	}
	if elements(m.OutputShape) < 1 {
		return fmt.Errorf("output_shape %v is empty", m.OutputShape)
	}
	return nil
}

// ImageShape is the per-image input shape without the batch dimension.
func (m Metadata) ImageShape() []int64 {
	if len(m.InputShape) > 1 {
		return m.InputShape[1:]
	}
	return m.InputShape
}

func elements(shape []int64) int64 {
	if len(shape) == 0 {
		return 0
	}
	n := int64(1)
	for _, d := range shape {
		n *= d
	}
	return n
}

// Prediction is the classifier's verdict for one image.
type Prediction struct {
	Label         string  `json:"label"`
	Confidence    float64 `json:"confidence"`
	FakeProb      float64 `json:"fake_prob"`
	RealProb      float64 `json:"real_prob"`
	RawPrediction float64 `json:"raw_prediction"`
}

// NewPrediction turns the network's single sigmoid output into a verdict.
// positiveClass says which class the raw value is the probability of.
func NewPrediction(raw float32, positiveClass string, threshold float32) Prediction {
	fake := float64(raw)
	if positiveClass == "real" {
		fake = 1 - fake
	}
	realProb := 1 - fake

	label := LabelReal
	if fake > float64(threshold) {
		label = LabelFake
	}
	return Prediction{
		Label:         label,
		Confidence:    max(fake, realProb),
		FakeProb:      fake,
		RealProb:      realProb,
		RawPrediction: float64(raw),
	}
}

// Status is the liveness view of the classifier.
type Status struct {
	ModelPath   string `json:"model_path"`
	ModelExists bool   `json:"model_exists"`
	ModelLoaded bool   `json:"model_loaded"`
}

// Info is the static description served by /info.
type Info struct {
	ModelName  string  `json:"model_name"`
	InputShape []int64 `json:"input_shape"`
	Output     string  `json:"output"`
	Framework  string  `json:"framework"`
	ModelPath  string  `json:"model_path"`
}
