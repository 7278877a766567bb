package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/wolfman30/booking-platform/internal/app/bootstrap"
	appconfig "github.com/wolfman30/booking-platform/internal/config"
	"github.com/wolfman30/booking-platform/pkg/logging"
)

func newRootCmd() *cobra.Command {
	var envFile string
	root := &cobra.Command{
		Use:           "bookingctl",
		Short:         "Operate the booking engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return appconfig.LoadDotEnv(envFile)
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")

	root.AddCommand(newTokenCmd())
	root.AddCommand(newSeedCmd())
	root.AddCommand(newSlotsCmd())
	root.AddCommand(newCompleteCmd())
	root.AddCommand(newNoShowCmd())
	root.AddCommand(newExpirePendingCmd())
	root.AddCommand(newSendRemindersCmd())
	root.AddCommand(newRunCronCmd())
	return root
}

// openEngine connects to the configured database and wires the engine.
// Operator commands act on shared state, so the in-memory stores are refused.
func openEngine(ctx context.Context) (*bootstrap.Engine, func(), error) {
	cfg := appconfig.Load()
	if cfg.UseMemoryStores() {
		return nil, nil, errors.New("DATABASE_URL is required")
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, nil, err
	}
	logger := logging.New(cfg.LogLevel)
	pool, err := bootstrap.ConnectPostgres(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, nil, err
	}
	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	engine, err := bootstrap.BuildEngine(bootstrap.EngineDeps{
		Config: cfg,
		Stores: bootstrap.NewPostgresStores(pool, loc),
		Redis:  redisClient,
		Email:  bootstrap.BuildEmailSender(cfg, nil, logger),
		Logger: logger,
	})
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	closeFn := func() {
		if redisClient != nil {
			_ = redisClient.Close()
		}
		pool.Close()
	}
	return engine, closeFn, nil
}
