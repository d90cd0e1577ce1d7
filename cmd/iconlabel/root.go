package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ironsheep/icon-autolabel/internal/config"
)

var (
	cfgFile      string
	logLevel     string
	outputFormat string
	iconsDir     string
	taxonomyCSV  string
	rulesDir     string

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "iconlabel",
	Short: "Detect and label cloud service icons in architecture diagrams",
	Long: `iconlabel finds the service icons drawn in architecture diagrams and
names them by matching each candidate region against a folder of vendor
reference icons.

The pipeline:
  - Region proposals from edge contours, stable blobs and a sliding grid
  - Embedding similarity against the reference index
  - Optional keypoint structural check and OCR caption hint
  - Non-maximum suppression and taxonomy normalization`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger = newLogger(os.Getenv("ICONLABEL_LOG_LEVEL"), logLevel)
		slog.SetDefault(logger)

		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if iconsDir != "" {
			loaded.Retrieval.IconsDir = iconsDir
		}
		if taxonomyCSV != "" {
			loaded.Taxonomy.CSV = taxonomyCSV
		}
		if rulesDir != "" {
			loaded.Taxonomy.RulesDir = rulesDir
		}
		if err := loaded.Validate(); err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./iconlabel.yaml or ~/.iconlabel/iconlabel.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "", "log level: debug, info, warn or error (default: $ICONLABEL_LOG_LEVEL or info)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "json", "output format: json or yaml",
	)
	rootCmd.PersistentFlags().StringVar(
		&iconsDir, "icons", "", "reference icon directory (overrides retrieval.icons_dir)",
	)
	rootCmd.PersistentFlags().StringVar(
		&taxonomyCSV, "taxonomy", "", "taxonomy CSV (overrides taxonomy.csv)",
	)
	rootCmd.PersistentFlags().StringVar(
		&rulesDir, "rules", "", "taxonomy rules directory (overrides taxonomy.rules_dir)",
	)

	rootCmd.Version = Version
	rootCmd.AddCommand(versionCmd, indexCmd, analyzeCmd, normalizeCmd, serveCmd, configCmd)
}

// newLogger builds the stderr logger. The flag wins over the environment.
// stdout is reserved for results and the MCP protocol.
func newLogger(envLevel, flagLevel string) *slog.Logger {
	level := envLevel
	if flagLevel != "" {
		level = flagLevel
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(level),
	}))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func checkOutputFormat() error {
	switch outputFormat {
	case "json", "yaml":
		return nil
	default:
		return fmt.Errorf("unknown output format %q: use json or yaml", outputFormat)
	}
}
