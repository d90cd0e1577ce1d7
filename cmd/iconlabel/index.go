package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
)

// indexSummary is the output of the index command.
type indexSummary struct {
	IconsDir   string         `json:"icons_dir"`
	Items      int            `json:"items"`
	Dim        int            `json:"dim"`
	ModelID    string         `json:"model_id"`
	CacheDir   string         `json:"cache_dir,omitempty"`
	Categories map[string]int `json:"categories"`
	Seconds    float64        `json:"seconds"`
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build the reference index and report what was indexed",
	Long: `Scan the reference icon directory, embed every icon and report the
index size per category.

Embeddings are written to retrieval.cache_dir, so running this once warms
the cache for later analyze and serve runs.

Examples:
  iconlabel index --icons ./Architecture-Service-Icons
  iconlabel index -o yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkOutputFormat(); err != nil {
			return err
		}
		start := time.Now()
		deps, err := buildLabeler(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer deps.close()

		ix := deps.labeler.Index()
		sum := indexSummary{
			IconsDir:   cfg.Retrieval.IconsDir,
			Items:      ix.Len(),
			Dim:        ix.Dim(),
			ModelID:    ix.ModelID(),
			CacheDir:   cfg.Retrieval.CacheDir,
			Categories: map[string]int{},
			Seconds:    time.Since(start).Seconds(),
		}
		for _, it := range ix.Items() {
			cat := it.Category
			if cat == "" {
				cat = "(none)"
			}
			sum.Categories[cat]++
		}
		return writeOutput(os.Stdout, outputFormat, sum)
	},
}
