// Package model wraps the exported real-vs-fake face classifier behind an
// explicitly loaded service object.
package model

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

// State is the lifecycle of a Classifier.
type State int

const (
	NotLoaded State = iota
	Loaded
)

func (s State) String() string {
	if s == Loaded {
		return "loaded"
	}
	return "not loaded"
}

// Options locate the model and tune the decision.
type Options struct {
	ModelPath    string
	MetadataPath string
	// SharedLibraryPath points at libonnxruntime. Empty uses the runtime's
	// default lookup.
	SharedLibraryPath string
	Threshold         float32
}

// Classifier runs the ONNX model. It starts NotLoaded; Load moves it to
// Loaded and Close back. Predict calls are serialized because the session
// reuses one pair of tensors.
type Classifier struct {
	opts Options
	log  *zap.Logger

	mu           sync.Mutex
	state        State
	metadata     Metadata
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

// NewClassifier returns a classifier in the NotLoaded state. Nothing is read
// from disk until Load.
func NewClassifier(opts Options, log *zap.Logger) *Classifier {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Threshold == 0 {
		opts.Threshold = 0.5
	}
	return &Classifier{opts: opts, log: log}
}

// Load initialises ONNX Runtime and creates the session. On failure the
// classifier stays NotLoaded and Load may be retried.
func (c *Classifier) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Loaded {
		return nil
	}

	if _, err := os.Stat(c.opts.ModelPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrModelNotFound, c.opts.ModelPath)
		}
		return fmt.Errorf("failed to stat model: %w", err)
	}

	metadata, err := LoadMetadata(c.opts.MetadataPath)
	if err != nil {
		return err
	}

	if c.opts.SharedLibraryPath != "" {
		ort.SetSharedLibraryPath(c.opts.SharedLibraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.InputShape...))
	if err != nil {
		ort.DestroyEnvironment()
		return fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		ort.DestroyEnvironment()
		return fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(c.opts.ModelPath,
		[]string{metadata.InputName}, []string{metadata.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		ort.DestroyEnvironment()
		return fmt.Errorf("failed to create ONNX session: %w", err)
	}

	c.metadata = metadata
	c.session = session
	c.inputTensor = inputTensor
	c.outputTensor = outputTensor
	c.state = Loaded

	c.log.Info("model loaded",
		zap.String("path", c.opts.ModelPath),
		zap.String("name", metadata.Name),
		zap.Int64s("input_shape", metadata.InputShape),
		zap.String("positive_class", metadata.PositiveClass))
	return nil
}

// State reports whether the model is loaded.
func (c *Classifier) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status reports the model path, whether the file exists and whether it is
// loaded.
func (c *Classifier) Status() Status {
	_, err := os.Stat(c.opts.ModelPath)
	return Status{
		ModelPath:   c.opts.ModelPath,
		ModelExists: err == nil,
		ModelLoaded: c.State() == Loaded,
	}
}

// Info describes the loaded model.
func (c *Classifier) Info() (*Info, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Loaded {
		return nil, ErrNotLoaded
	}
	return &Info{
		ModelName:  c.metadata.Name,
		InputShape: c.metadata.ImageShape(),
		Output:     "Binary classification (Real vs. Fake)",
		Framework:  c.metadata.Framework,
		ModelPath:  c.opts.ModelPath,
	}, nil
}

// Predict classifies one decoded image.
func (c *Classifier) Predict(ctx context.Context, img image.Image) (*Prediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Loaded {
		return nil, ErrNotLoaded
	}

	input := Preprocess(img, c.metadata.ImageSize, c.metadata.Layout, c.metadata.Scale)
	copy(c.inputTensor.GetData(), input)

	if err := c.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	out := c.outputTensor.GetData()
	if len(out) == 0 {
		return nil, errors.New("inference failed: empty output")
	}

	p := NewPrediction(out[0], c.metadata.PositiveClass, c.opts.Threshold)
	return &p, nil
}

// Close releases the session and the runtime and returns to NotLoaded.
func (c *Classifier) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Loaded {
		return
	}
	if c.inputTensor != nil {
		c.inputTensor.Destroy()
	}
	if c.outputTensor != nil {
		c.outputTensor.Destroy()
	}
	if c.session != nil {
		c.session.Destroy()
	}
	ort.DestroyEnvironment()

	c.session, c.inputTensor, c.outputTensor = nil, nil, nil
	c.state = NotLoaded
}
