package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Brownie44l1/deepfake-detector/internal/dataset"
)

func newCountCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "count [dir...]",
		Short: "Count images per extension (default: the raw real directory)",
		RunE: func(cmd *cobra.Command, args []string) error {
			dirs := args
			if len(dirs) == 0 {
				dirs = []string{a.cfg.Dataset.RealDir}
			}

			w := cmd.OutOrStdout()
			for _, dir := range dirs {
				if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("directory not found: %s", dir)
				}
				total, rows, err := dataset.CountByExtension(dir, dataset.CountExtensions)
				if err != nil {
					return err
				}

				fmt.Fprintf(w, "Image count in %s:\n", dir)
				fmt.Fprintf(w, "  Total images: %d\n", total)
				if total == 0 {
					fmt.Fprintln(w, "  No images found!")
					continue
				}
				fmt.Fprintln(w, "  Breakdown by extension:")
				for _, r := range rows {
					fmt.Fprintf(w, "    %s: %d\n", r.Extension, r.Count)
				}
			}
			return nil
		},
	}
}
