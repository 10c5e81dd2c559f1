package main

import (
	"context"
	"database/sql"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	auth "github.com/wordnest/go-auth"
)

const shutdownGrace = 10 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the authentication HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := auth.LoadConfig(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	addConfigFlags(cmd)

	return cmd
}

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := auth.LoadConfig(configFile, cmd.Flags())
			if err != nil {
				return err
			}

			db, err := openDatabase(cfg.GetDatabaseDSN())
			if err != nil {
				return err
			}
			defer db.Close()

			return migrate(cmd.Context(), db)
		},
	}

	addConfigFlags(cmd)

	return cmd
}

// flag defaults mirror auth.DefaultConfig so an unchanged flag never
// downgrades a value loaded from the config file
func addConfigFlags(cmd *cobra.Command) {
	def := auth.DefaultConfig()
	cmd.Flags().String("listen-addr", def.ListenAddr, "address to serve HTTP on")
	cmd.Flags().String("database-dsn", def.DatabaseDSN, "database connection string")
	cmd.Flags().String("signing-key", "", "HMAC token signing secret")
	cmd.Flags().String("token-expiration", def.TokenExpiration, "token lifetime, e.g. 7d, 12h, 30m")
	cmd.Flags().Int("bcrypt-cost", def.BcryptCost, "bcrypt cost factor")
}

func runServe(ctx context.Context, cfg *auth.AppConfig) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(cfg.GetDatabaseDSN())
	if err != nil {
		return err
	}
	defer db.Close()

	if err := migrate(ctx, db); err != nil {
		return err
	}

	container := auth.NewContainer(cfg, db)
	if err := container.Init(); err != nil {
		return err
	}

	app := fiber.New(fiber.Config{
		AppName:               "authd",
		DisableStartupMessage: true,
	})

	ctrl := auth.NewAuthController(container.Auther()).
		WithLogger(container.Logger())
	auth.RegisterAuthRoutes(app, ctrl)
	auth.RegisterAdminRoutes(app, ctrl)

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(cfg.GetListenAddr())
	}()

	container.Logger().Info("listening on %s", cfg.GetListenAddr())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	return app.ShutdownWithContext(shutdownCtx)
}

func openDatabase(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, err
	}

	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

func migrate(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().
		Model((*auth.User)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}
