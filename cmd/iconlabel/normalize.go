package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ironsheep/icon-autolabel/internal/apperr"
	"github.com/ironsheep/icon-autolabel/internal/imaging"
	"github.com/ironsheep/icon-autolabel/internal/index"
	"github.com/ironsheep/icon-autolabel/internal/taxonomy"
)

// normalized is one line of normalize output.
type normalized struct {
	Input       string  `json:"input"`
	Canonical   string  `json:"canonical"`
	ServiceCode string  `json:"service_code,omitempty"`
	Confidence  float64 `json:"confidence"`
	Dropped     bool    `json:"dropped,omitempty"`
}

var listNames bool

var normalizeCmd = &cobra.Command{
	Use:   "normalize [label...]",
	Short: "Resolve raw service names through the taxonomy",
	Long: `Print the canonical name and confidence for each raw label.

Icon file names are accepted too; their vendor prefix and size suffix are
stripped first. A dropped label matched the blacklist. With --list the
canonical names of the taxonomy are printed instead.

Examples:
  iconlabel normalize ec2 "Simple Storage Service" --taxonomy services.csv
  iconlabel normalize Arch_Amazon-EC2_48.png --rules ./rules
  iconlabel normalize --list --taxonomy services.csv`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkOutputFormat(); err != nil {
			return err
		}
		tax, err := loadTaxonomy(cfg)
		if err != nil {
			return err
		}
		if tax == nil {
			return apperr.Configf("no taxonomy: set --taxonomy, --rules or the taxonomy section")
		}

		if listNames {
			return writeOutput(os.Stdout, outputFormat, tax.Names())
		}
		if len(args) == 0 {
			return fmt.Errorf("%w: give at least one label or --list", apperr.ErrValidation)
		}
		out := normalizeLabels(tax, args)
		return writeOutput(os.Stdout, outputFormat, out)
	},
}

func init() {
	normalizeCmd.Flags().BoolVar(&listNames, "list", false, "print the taxonomy's canonical names")
}

// normalizeLabels resolves each raw label or icon file name through tax.
func normalizeLabels(tax *taxonomy.Taxonomy, labels []string) []normalized {
	out := make([]normalized, 0, len(labels))
	for _, arg := range labels {
		raw := arg
		if imaging.IsSupported(raw) {
			raw, _ = index.ParseIconName(raw)
		}
		name, conf := tax.Resolve(raw)
		out = append(out, normalized{
			Input:       arg,
			Canonical:   name,
			ServiceCode: tax.Code(name),
			Confidence:  conf,
			Dropped:     name == "",
		})
	}
	return out
}
