package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/urbanytics/urbanytics/internal/cleaning"
	"github.com/urbanytics/urbanytics/internal/dataset"
)

var (
	loadEncoding string
	loadRules    string
)

var loadCmd = &cobra.Command{
	Use:   "load <file>",
	Short: "Clean a raw sales extract and load it into the database",
	Long:  "Reads a CSV or XLSX sales extract, runs the cleaning pipeline, normalizes the survivors, and replaces the properties relation with the result.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		encoding := loadEncoding
		if encoding == "" {
			encoding = cfg.Ingest.Encoding
		}
		tbl, err := dataset.ReadFile(args[0], dataset.Options{Encoding: encoding})
		if err != nil {
			return err
		}

		rules, err := buildRules()
		if err != nil {
			return err
		}

		cleaned, report := cleaning.Run(tbl, cleaning.Stages(rules))
		records, err := cleaning.Normalize(cleaned)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return err
		}
		persisted, err := st.ReplaceProperties(ctx, records)
		if err != nil {
			return err
		}

		zap.L().Info("load complete",
			zap.String("file", args[0]),
			zap.Int("raw_rows", report.InitialRows),
			zap.Int("removed", report.TotalRemoved()),
			zap.Int("normalized", len(records)),
			zap.Int64("persisted", persisted),
			zap.Duration("clean_elapsed", report.Elapsed),
		)
		return nil
	},
}

// buildRules resolves the cleaning rules: compiled defaults, then the
// optional rules file, then any explicit config overrides.
func buildRules() (cleaning.Rules, error) {
	rulesPath := loadRules
	if rulesPath == "" {
		rulesPath = cfg.Ingest.RulesPath
	}

	rules := cleaning.DefaultRules()
	if rulesPath != "" {
		loaded, err := cleaning.LoadRules(rulesPath)
		if err != nil {
			return cleaning.Rules{}, err
		}
		rules = loaded
	}

	if cfg.Clean.MinListYear > 0 {
		rules.MinListYear = cfg.Clean.MinListYear
	}
	if cfg.Clean.MaxListYear > 0 {
		rules.MaxListYear = cfg.Clean.MaxListYear
	}
	if cfg.Clean.MaxYearsUntilSold > 0 {
		rules.MaxYearsUntilSold = cfg.Clean.MaxYearsUntilSold
	}
	if cfg.Clean.RatioFloor > 0 {
		rules.RatioFloor = cfg.Clean.RatioFloor
	}
	return rules, nil
}

func init() {
	loadCmd.Flags().StringVar(&loadEncoding, "encoding", "", "source charset (default from config)")
	loadCmd.Flags().StringVar(&loadRules, "rules", "", "cleaning rules YAML file")
	rootCmd.AddCommand(loadCmd)
}
