package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/urbanytics/urbanytics/internal/ml"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the price-prediction model from the loaded data",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		trainer := ml.NewTrainer(st, ml.TrainerConfig{
			ArtifactsDir: cfg.Model.ArtifactsDir,
			Estimators:   cfg.Model.Estimators,
			MaxDepth:     cfg.Model.MaxDepth,
			Seed:         cfg.Model.Seed,
			TestFraction: cfg.Model.TestFraction,
		})
		bundle, run, err := trainer.Train(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("run:   %s\n", run.ID)
		fmt.Printf("rows:  %d\n", run.RowCount)
		fmt.Printf("mae:   %.2f\n", bundle.Metrics.MAE)
		fmt.Printf("rmse:  %.2f\n", bundle.Metrics.RMSE)
		fmt.Printf("r2:    %.4f\n", bundle.Metrics.R2)
		fmt.Printf("saved: %s\n", cfg.Model.ArtifactsDir)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(trainCmd)
}
