package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Brownie44l1/deepfake-detector/internal/config"
	"github.com/Brownie44l1/deepfake-detector/internal/split"
)

func newSplitCmd(a *app) *cobra.Command {
	var (
		realDir, fakeDir, outDir string
		seedSize, valSize        int
		quartiles                int
		randomSeed               int64
		strict, staged           bool
	)

	cmd := &cobra.Command{
		Use:   "split",
		Short: "Split raw real/fake images into seed, validation and pool sets",
		Long: `Copies data/raw/{real,fake} into data/{seed,validation,pool}/{real,fake}.

Synthetic images are sorted by filename, cut into sequential bands and sampled
evenly from every band for the seed and validation sets. Real images are
sampled at random. The run is reproducible for a given --random-seed and
writes split_metadata.json next to the split directories.

Sources are only read. Without --staged an interrupted run leaves partial
output behind.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := a.cfg
			f := cmd.Flags()
			if f.Changed("real-dir") {
				c.Dataset.RealDir = realDir
			}
			if f.Changed("fake-dir") {
				c.Dataset.FakeDir = fakeDir
			}
			if f.Changed("output-dir") {
				c.Dataset.OutputDir = outDir
			}
			if f.Changed("seed-size") {
				c.Split.SeedSize = seedSize
			}
			if f.Changed("validation-size") {
				c.Split.ValidationSize = valSize
			}
			if f.Changed("quartiles") {
				c.Split.NumQuartiles = quartiles
			}
			if f.Changed("random-seed") {
				c.Split.RandomSeed = randomSeed
			}
			if f.Changed("strict-quartiles") {
				c.Split.StrictQuartiles = strict
			}
			if f.Changed("staged") {
				c.Split.Staged = staged
			}

			opts := split.Options{
				RealDir:            c.Dataset.RealDir,
				FakeDir:            c.Dataset.FakeDir,
				OutputDir:          c.Dataset.OutputDir,
				SeedSize:           c.Split.SeedSize,
				ValidationSize:     c.Split.ValidationSize,
				NumQuartiles:       c.Split.NumQuartiles,
				RandomSeed:         c.Split.RandomSeed,
				ExpectedFakeImages: c.Split.ExpectedFakeImages,
				StrictQuartiles:    c.Split.StrictQuartiles,
				Staged:             c.Split.Staged,
				ProgressEvery:      c.Split.ProgressEvery,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			md, err := split.New(opts, a.logger.Named("split")).Run(ctx)
			if errors.Is(err, context.Canceled) {
				if opts.Staged {
					fmt.Fprintln(cmd.ErrOrStderr(), "Interrupted. Staged output was discarded.")
				} else {
					fmt.Fprintf(cmd.ErrOrStderr(), "Interrupted. Partial output may exist in %s\n", opts.OutputDir)
				}
				return err
			}
			if err != nil {
				return err
			}

			printDistribution(cmd.OutOrStdout(), md)
			return nil
		},
	}

	d := config.Default()
	f := cmd.Flags()
	f.StringVar(&realDir, "real-dir", d.Dataset.RealDir, "directory of real images")
	f.StringVar(&fakeDir, "fake-dir", d.Dataset.FakeDir, "directory of synthetic images")
	f.StringVar(&outDir, "output-dir", d.Dataset.OutputDir, "root of the split directories")
	f.IntVar(&seedSize, "seed-size", d.Split.SeedSize, "total images in the seed split")
	f.IntVar(&valSize, "validation-size", d.Split.ValidationSize, "total images in the validation split")
	f.IntVar(&quartiles, "quartiles", d.Split.NumQuartiles, "number of filename bands for synthetic images")
	f.Int64Var(&randomSeed, "random-seed", d.Split.RandomSeed, "seed for the shuffles")
	f.BoolVar(&strict, "strict-quartiles", d.Split.StrictQuartiles, "fail when the synthetic count differs from the expected count")
	f.BoolVar(&staged, "staged", d.Split.Staged, "copy into a staging directory and move it into place on success")
	return cmd
}

func printDistribution(w io.Writer, md *split.Metadata) {
	fmt.Fprintln(w, "Final dataset distribution:")
	for _, s := range split.Splits {
		c := md.Output.Get(s)
		fmt.Fprintf(w, "  %-10s real %6d  fake %6d  total %6d  (%s)\n", s, c.Real, c.Fake, c.Total, c.Balance)
	}
	fmt.Fprintf(w, "  %-10s real %6d  fake %6d  total %6d\n", "all", md.Output.RealTotal(), md.Output.FakeTotal(), md.Output.GrandTotal())
}
