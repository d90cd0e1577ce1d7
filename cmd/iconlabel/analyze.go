package main

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ironsheep/icon-autolabel/internal/imaging"
	"github.com/ironsheep/icon-autolabel/internal/pipeline"
)

var (
	analyzeOut     string
	analyzeSummary bool
)

// batchReport is the output of a multi-image analyze run.
type batchReport struct {
	RunID   string                    `json:"run_id"`
	Results []pipeline.AnalysisResult `json:"results"`
	Stats   *pipeline.Stats           `json:"stats,omitempty"`
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <image-or-dir>...",
	Short: "Detect and label icons in one or more diagrams",
	Long: `Analyze diagram images and print the detections.

A single image prints one result. Several images, or a directory (searched
recursively for supported images), run as a batch: every input gets exactly
one result in input order, and an image that fails carries an error instead
of stopping the run.

Examples:
  iconlabel analyze diagram.png --icons ./icons
  iconlabel analyze ./diagrams --summary -o yaml
  iconlabel analyze a.png b.png --out results.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkOutputFormat(); err != nil {
			return err
		}
		paths, err := expandInputs(args)
		if err != nil {
			return err
		}
		if len(paths) == 0 {
			return fmt.Errorf("no supported images found in %v", args)
		}

		ctx := cmd.Context()
		deps, err := buildLabeler(ctx, cfg)
		if err != nil {
			return err
		}
		defer deps.close()

		out := io.Writer(os.Stdout)
		if analyzeOut != "" {
			f, err := os.Create(analyzeOut)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			defer f.Close()
			out = f
		}

		if len(paths) == 1 && !analyzeSummary {
			res, err := deps.labeler.AnalyzeImage(ctx, paths[0])
			if err != nil {
				return err
			}
			logger.Info("image analyzed", "path", paths[0], "detections", len(res.Detections), "seconds", res.ProcessingTime)
			return writeOutput(out, outputFormat, res)
		}

		runID := uuid.NewString()
		log := logger.With("run_id", runID)
		log.Info("batch started", "images", len(paths))

		results := deps.labeler.AnalyzeBatch(ctx, paths)
		for _, r := range results {
			if r.Failed() {
				log.Warn("image failed", "path", r.ImagePath, "error", r.Error)
			}
		}
		stats := pipeline.Summarize(results)
		log.Info("batch finished", "images", stats.Images, "failed", stats.Failed, "detections", stats.Detections)

		report := batchReport{RunID: runID, Results: results}
		if analyzeSummary {
			report.Stats = &stats
		}
		if err := writeOutput(out, outputFormat, report); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		return nil
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeOut, "out", "", "write results to this file instead of stdout")
	analyzeCmd.Flags().BoolVar(&analyzeSummary, "summary", false, "include batch statistics")
}

// expandInputs replaces directories with the supported images under them,
// sorted by path. Files are kept as given, even if unsupported, so they
// show up as failed results.
func expandInputs(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil || !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		var found []string
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && imaging.IsSupported(path) {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", arg, err)
		}
		sort.Strings(found)
		paths = append(paths, found...)
	}
	return paths, nil
}
