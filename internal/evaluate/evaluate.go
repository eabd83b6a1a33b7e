// Package evaluate scores the classifier against a labeled validation tree.
package evaluate

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Brownie44l1/deepfake-detector/internal/dataset"
	"github.com/Brownie44l1/deepfake-detector/internal/model"
)

// Classes in matrix order. Index 0 is the negative class.
var Classes = []dataset.Label{dataset.Fake, dataset.Real}

// ErrNoSamples is returned when the validation tree holds no images.
var ErrNoSamples = errors.New("no validation images found")

// Predictor is the part of the classifier evaluation needs.
type Predictor interface {
	Predict(ctx context.Context, img image.Image) (*model.Prediction, error)
}

// Sample is one labeled validation image.
type Sample struct {
	Path  string
	Truth int
}

// Collect lists <dir>/fake and <dir>/real in sorted order. A missing class
// directory contributes nothing.
func Collect(dir string) ([]Sample, error) {
	var samples []Sample
	for idx, label := range Classes {
		classDir := filepath.Join(dir, string(label))
		if _, err := os.Stat(classDir); errors.Is(err, os.ErrNotExist) {
			continue
		}
		records, err := dataset.ListImages(classDir, label, dataset.CountExtensions)
		if err != nil {
			return nil, err
		}
		for _, r := range records {
			samples = append(samples, Sample{Path: r.Path, Truth: idx})
		}
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoSamples, dir)
	}
	return samples, nil
}

// Evaluator decodes images on a bounded pool of goroutines and feeds them
// to the predictor.
type Evaluator struct {
	predictor Predictor
	workers   int
	log       *zap.Logger
}

func New(p Predictor, workers int, log *zap.Logger) *Evaluator {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Evaluator{predictor: p, workers: workers, log: log}
}

// Run predicts every sample and builds the report. Images that fail to
// decode are skipped and listed in the report; a prediction error aborts
// the run.
func (e *Evaluator) Run(ctx context.Context, samples []Sample) (*Report, error) {
	preds := make([]int, len(samples))
	skipped := make([]bool, len(samples))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, s := range samples {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			img, err := dataset.DecodeFile(s.Path)
			if err != nil {
				e.log.Warn("skipping undecodable image", zap.String("path", s.Path), zap.Error(err))
				skipped[i] = true
				return nil
			}
			p, err := e.predictor.Predict(ctx, img)
			if err != nil {
				return fmt.Errorf("predict %s: %w", s.Path, err)
			}
			preds[i] = classIndex(p.Label)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var truth, pred []int
	var skippedPaths []string
	for i, s := range samples {
		if skipped[i] {
			skippedPaths = append(skippedPaths, s.Path)
			continue
		}
		truth = append(truth, s.Truth)
		pred = append(pred, preds[i])
	}

	r := NewReport(truth, pred)
	r.Skipped = skippedPaths
	return r, nil
}

func classIndex(label string) int {
	if label == model.LabelReal {
		return 1
	}
	return 0
}
