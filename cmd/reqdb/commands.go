package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/golly-go/reqdb"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           appName,
		Short:         "Notes API with one database handle per request",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(newServeCommand())
	return root
}

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := initConfig()
			if err != nil {
				return err
			}

			for _, name := range []string{"bind", "driver", "dsn"} {
				if err := v.BindPFlag(name, cmd.Flags().Lookup(name)); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return serve(ctx, v)
		},
	}

	cmd.Flags().String("bind", ":9999", "address to listen on")
	cmd.Flags().String("driver", driverGormSQLite, "database driver: gorm-postgres, gorm-sqlite, sqlx-sqlite, sqlx-postgres, pgx")
	cmd.Flags().String("dsn", appName+".sqlite", "data source name, DATABASE_URL takes precedence")

	return cmd
}

func serve(ctx context.Context, v *viper.Viper) error {
	logger := reqdb.NewLogger().WithField("app", appName)

	srv, err := newServer(ctx, v, logger)
	if err != nil {
		return err
	}
	defer srv.Close()

	httpServer := &http.Server{
		Addr:              v.GetString("bind"),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("bind", httpServer.Addr).Info("listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	logger.Info("shutting down")
	return httpServer.Shutdown(shutdownCtx)
}
