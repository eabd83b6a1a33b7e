package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Brownie44l1/deepfake-detector/internal/evaluate"
	"github.com/Brownie44l1/deepfake-detector/internal/model"
	"github.com/Brownie44l1/deepfake-detector/internal/split"
)

func newEvaluateCmd(a *app) *cobra.Command {
	var (
		valDir  string
		workers int
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score the classifier on the validation split",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := a.logger.Named("evaluate")
			if !cmd.Flags().Changed("val-dir") {
				valDir = filepath.Join(a.cfg.Dataset.OutputDir, string(split.Validation))
			}

			samples, err := evaluate.Collect(valDir)
			if err != nil {
				return err
			}

			m := a.cfg.Model
			classifier := model.NewClassifier(model.Options{
				ModelPath:         m.Path,
				MetadataPath:      m.MetadataPath,
				SharedLibraryPath: m.SharedLibraryPath,
				Threshold:         m.Threshold,
			}, a.logger.Named("model"))
			if err := classifier.Load(); err != nil {
				return err
			}
			defer classifier.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log.Info("running predictions", zap.Int("images", len(samples)), zap.String("dir", valDir))
			report, err := evaluate.New(classifier, workers, log).Run(ctx, samples)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			return evaluate.Format(cmd.OutOrStdout(), report)
		},
	}

	f := cmd.Flags()
	f.StringVar(&valDir, "val-dir", "", "validation root holding fake/ and real/ (default <dataset.output_dir>/validation)")
	f.IntVar(&workers, "workers", 0, "parallel image decoders (0 uses every CPU)")
	f.BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}
