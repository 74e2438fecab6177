package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/urbanytics/urbanytics/internal/api"
	"github.com/urbanytics/urbanytics/internal/ml"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the prediction and analytics HTTP service",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

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
		models := api.NewModelService(trainer, cfg.Model.ArtifactsDir)
		if err := models.EnsureReady(ctx); err != nil {
			zap.L().Warn("model not ready at startup", zap.Error(err))
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		srv := api.NewServer(st, models, api.Options{
			Port:      port,
			RateLimit: cfg.Server.RateLimit,
			RateBurst: cfg.Server.RateBurst,
		})
		return srv.Run(ctx)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
