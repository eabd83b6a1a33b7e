// Package split partitions a two-class image corpus into seed, validation
// and pool sets. Synthetic images are stratified over sequential filename
// bands so every generation era is represented in the small sets.
package split

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Brownie44l1/deepfake-detector/internal/dataset"
)

// Splitter runs one split. Runs are sequential and not idempotent: a run into
// a populated output directory adds to or overwrites what is there unless
// Options.Staged is set.
type Splitter struct {
	opts     Options
	log      *zap.Logger
	now      func() time.Time
	copyFile func(src, dstDir string) error
}

// New returns a splitter for opts.
func New(opts Options, log *zap.Logger) *Splitter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Splitter{opts: opts, log: log, now: time.Now, copyFile: dataset.CopyFile}
}

// Run scans the sources, plans the split, copies the files, verifies the
// result and writes the metadata record. Source files are never modified.
//
// Precondition failures return ErrConfiguration before anything is copied.
// A copy error or cancellation aborts the run without writing metadata;
// without Options.Staged the output tree is left partially populated, with it
// the staging directory is removed and the destinations are left untouched.
func (s *Splitter) Run(ctx context.Context) (*Metadata, error) {
	o := s.opts
	s.log.Info("starting stratified split",
		zap.Int64("random_seed", o.RandomSeed),
		zap.String("real_dir", o.RealDir),
		zap.String("fake_dir", o.FakeDir),
		zap.String("output_dir", o.OutputDir))

	reals, fakes, err := s.scan()
	if err != nil {
		return nil, err
	}

	plan, err := BuildPlan(reals, fakes, o, NewRand(o.RandomSeed))
	if err != nil {
		return nil, err
	}
	for _, w := range plan.Warnings {
		s.log.Warn(w)
	}
	s.logPlan(plan)

	root := o.OutputDir
	if o.Staged {
		if err := checkEmptyDestinations(o.OutputDir); err != nil {
			return nil, err
		}
		root = filepath.Join(o.OutputDir, ".split-staging-"+uuid.NewString())
	}

	if err := setupDirectories(root); err != nil {
		return nil, err
	}

	if err := s.copyAll(ctx, plan, root); err != nil {
		if o.Staged {
			s.discardStaging(root)
		}
		return nil, err
	}

	if o.Staged {
		err := commitStaging(root, o.OutputDir)
		s.discardStaging(root)
		if err != nil {
			return nil, err
		}
		s.log.Info("staged split committed", zap.String("output_dir", o.OutputDir))
	}

	output, err := CountSplits(o.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to verify split: %w", err)
	}
	s.logOutput(output, plan.Total())

	strat, err := CheckStratification(plan, o.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to verify stratification: %w", err)
	}
	s.logStratification(strat)

	md := &Metadata{
		Timestamp:  s.now().Format(time.RFC3339),
		RandomSeed: o.RandomSeed,
		Configuration: Configuration{
			SeedSize:           o.SeedSize,
			ValidationSize:     o.ValidationSize,
			NumQuartiles:       o.NumQuartiles,
			ExpectedFakeImages: o.ExpectedFakeImages,
		},
		Input: Input{
			FakeImages: plan.FakeTotal,
			RealImages: plan.RealTotal,
			Total:      plan.Total(),
		},
		Quartiles:         plan.Stats,
		QuartilesAdjusted: plan.Adjusted,
		Output:            output,
		Stratification:    strat,
		Paths: Paths{
			FakeDir:   o.FakeDir,
			RealDir:   o.RealDir,
			OutputDir: o.OutputDir,
		},
	}

	path, err := WriteMetadata(o.OutputDir, md)
	if err != nil {
		return nil, err
	}
	s.log.Info("saved split metadata", zap.String("path", path))
	return md, nil
}

func (s *Splitter) scan() (reals, fakes []dataset.ImageRecord, err error) {
	fakes, err = dataset.ListImages(s.opts.FakeDir, dataset.Fake, dataset.SplitExtensions)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	reals, err = dataset.ListImages(s.opts.RealDir, dataset.Real, dataset.SplitExtensions)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	s.log.Info("dataset overview",
		zap.Int("fake", len(fakes)),
		zap.Int("real", len(reals)),
		zap.Int("total", len(fakes)+len(reals)))
	return reals, fakes, nil
}

func (s *Splitter) copyAll(ctx context.Context, p *Plan, root string) error {
	for _, sp := range Splits {
		a := p.Assignment(sp)
		if err := s.copyGroup(ctx, a.Real, classDir(root, sp, dataset.Real), sp, dataset.Real); err != nil {
			return err
		}
		if err := s.copyGroup(ctx, a.Fake, classDir(root, sp, dataset.Fake), sp, dataset.Fake); err != nil {
			return err
		}
	}
	return nil
}

func (s *Splitter) copyGroup(ctx context.Context, recs []dataset.ImageRecord, dir string, sp Split, l dataset.Label) error {
	log := s.log.With(zap.String("split", string(sp)), zap.String("label", string(l)))
	log.Info("copying", zap.Int("files", len(recs)))

	for i, rec := range recs {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("copy of %s/%s interrupted after %d files: %w", sp, l, i, err)
		}
		if err := s.copyFile(rec.Path, dir); err != nil {
			return err
		}
		if every := s.opts.ProgressEvery; every > 0 && (i+1)%every == 0 {
			log.Debug("copy progress", zap.Int("done", i+1), zap.Int("total", len(recs)))
		}
	}
	return nil
}

func (s *Splitter) discardStaging(root string) {
	if err := os.RemoveAll(root); err != nil {
		s.log.Warn("failed to remove staging directory", zap.String("path", root), zap.Error(err))
		return
	}
	s.log.Info("staging directory removed", zap.String("path", root))
}

func (s *Splitter) logPlan(p *Plan) {
	s.log.Info("split sizes",
		zap.Int("seed_real", p.SeedReal),
		zap.Int("seed_fake", p.SeedFake),
		zap.Int("validation_real", p.ValidationReal),
		zap.Int("validation_fake", p.ValidationFake),
		zap.Int("pool", p.Total()-p.Assignment(Seed).Len()-p.Assignment(Validation).Len()))
	for _, st := range p.Stats {
		s.log.Info(st.Name,
			zap.Int("total", st.Total),
			zap.Int("seed", st.Seed),
			zap.Int("validation", st.Validation),
			zap.Int("pool", st.Pool))
	}
}

func (s *Splitter) logOutput(out Output, expected int) {
	for _, sp := range Splits {
		c := out.Get(sp)
		s.log.Info("split distribution",
			zap.String("split", string(sp)),
			zap.Int("real", c.Real),
			zap.Int("fake", c.Fake),
			zap.Int("total", c.Total),
			zap.String("balance", c.Balance))
	}
	if got := out.GrandTotal(); got != expected {
		s.log.Warn("output total does not match input total",
			zap.Int("expected", expected),
			zap.Int("found", got),
			zap.Int("missing", expected-got))
		return
	}
	s.log.Info("all images accounted for", zap.Int("total", expected))
}

func (s *Splitter) logStratification(st Stratification) {
	for _, qc := range st.Seed {
		s.log.Info("seed quartile representation", zap.String("quartile", qc.Name), zap.Int("images", qc.Count))
	}
	for _, qc := range st.Validation {
		s.log.Info("validation quartile representation", zap.String("quartile", qc.Name), zap.Int("images", qc.Count))
	}
}

func setupDirectories(root string) error {
	for _, sp := range Splits {
		for _, l := range dataset.Labels {
			if err := os.MkdirAll(classDir(root, sp, l), 0o755); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}
	}
	return nil
}

// checkEmptyDestinations fails unless every split directory is missing or
// holds nothing but empty class directories.
func checkEmptyDestinations(outDir string) error {
	for _, sp := range Splits {
		dest := filepath.Join(outDir, string(sp))
		entries, err := os.ReadDir(dest)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrConfiguration, err)
		}
		for _, e := range entries {
			if !e.IsDir() || !isLabel(e.Name()) {
				return fmt.Errorf("%w: %s is not empty (found %s)", ErrConfiguration, dest, e.Name())
			}
			dir := filepath.Join(dest, e.Name())
			inner, err := os.ReadDir(dir)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrConfiguration, err)
			}
			if len(inner) > 0 {
				return fmt.Errorf("%w: %s already contains %d entries", ErrConfiguration, dir, len(inner))
			}
		}
	}
	return nil
}

func isLabel(name string) bool {
	return slices.Contains(dataset.Labels, dataset.Label(name))
}

// commitStaging moves each staged split directory into outDir. Every
// destination is cleared before the first rename; empty directories are
// removed with os.Remove so nothing with content is ever deleted. When a
// rename fails the splits already moved are returned to staging.
func commitStaging(staging, outDir string) (err error) {
	for _, sp := range Splits {
		dest := filepath.Join(outDir, string(sp))
		for _, l := range dataset.Labels {
			if err := os.Remove(classDir(outDir, sp, l)); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to clear %s: %w", dest, err)
			}
		}
		if err := os.Remove(dest); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to clear %s: %w", dest, err)
		}
	}

	var moved []Split
	defer func() {
		if err == nil {
			return
		}
		for _, sp := range moved {
			if rbErr := os.Rename(filepath.Join(outDir, string(sp)), filepath.Join(staging, string(sp))); rbErr != nil {
				err = errors.Join(err, fmt.Errorf("failed to roll back %s: %w", sp, rbErr))
			}
		}
	}()

	for _, sp := range Splits {
		if err := os.Rename(filepath.Join(staging, string(sp)), filepath.Join(outDir, string(sp))); err != nil {
			return fmt.Errorf("failed to commit %s: %w", sp, err)
		}
		moved = append(moved, sp)
	}
	return nil
}
