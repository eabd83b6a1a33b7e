package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Brownie44l1/deepfake-detector/internal/config"
	"github.com/Brownie44l1/deepfake-detector/internal/dataset"
	"github.com/Brownie44l1/deepfake-detector/internal/download"
	"github.com/Brownie44l1/deepfake-detector/internal/split"
)

func newDownloadCmd(a *app) *cobra.Command {
	var (
		train, val int
		seedDir    string
		valDir     string
		clean      bool
	)

	cmd := &cobra.Command{
		Use:   "download-fake",
		Short: "Download synthetic faces into the seed and validation fake directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := a.cfg.Download
			log := a.logger.Named("download")

			f := cmd.Flags()
			if !f.Changed("seed-dir") {
				seedDir = filepath.Join(a.cfg.Dataset.OutputDir, string(split.Seed), string(dataset.Fake))
			}
			if !f.Changed("val-dir") {
				valDir = filepath.Join(a.cfg.Dataset.OutputDir, string(split.Validation), string(dataset.Fake))
			}

			d := download.New(download.Options{
				URL:         c.URL,
				UserAgent:   c.UserAgent,
				Timeout:     config.Duration(c.Timeout, 10*time.Second),
				MaxAttempts: c.MaxAttempts,
				Backoff:     config.Duration(c.Backoff, time.Second),
				RateDelay:   config.Duration(c.RateDelay, 150*time.Millisecond),
			}, log)
			defer d.Close()

			if clean {
				for _, dir := range []string{seedDir, valDir} {
					n, err := dataset.RemoveImages(dir, dataset.SplitExtensions)
					if err != nil {
						return err
					}
					log.Info("removed existing images", zap.String("dir", dir), zap.Int("count", n))
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var gaveUp error
			savedTrain, err := d.Download(ctx, train, seedDir, 0)
			switch {
			case errors.Is(err, download.ErrGaveUp):
				gaveUp = err
			case err != nil:
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Finished training images: saved %d/%d\n", savedTrain, train)

			savedVal, err := d.Download(ctx, val, valDir, savedTrain)
			switch {
			case errors.Is(err, download.ErrGaveUp):
				gaveUp = errors.Join(gaveUp, err)
			case err != nil:
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Finished validation images: saved %d/%d\n", savedVal, val)
			fmt.Fprintf(cmd.OutOrStdout(), "Verify images in:\n  %s\n  %s\n", seedDir, valDir)
			return gaveUp
		},
	}

	f := cmd.Flags()
	f.IntVar(&train, "train", 200, "number of training fakes to download")
	f.IntVar(&val, "val", 50, "number of validation fakes to download")
	f.StringVar(&seedDir, "seed-dir", "", "output directory for training fakes (default <dataset.output_dir>/seed/fake)")
	f.StringVar(&valDir, "val-dir", "", "output directory for validation fakes (default <dataset.output_dir>/validation/fake)")
	f.BoolVar(&clean, "clean", false, "remove existing images from both directories first")
	return cmd
}
