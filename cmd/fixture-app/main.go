// Fixture Login App
//
// Serves a minimal single-page login application with the same form
// selectors as the benchmarked front ends. Point VUE_APP_URL (or any other
// application URL) at it to dry-run loginbench without the real apps.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/thesyncim/loginbench/cmd/fixture-app/server"
	"github.com/thesyncim/loginbench/internal/logging"
)

func main() {
	cmd := &cli.Command{
		Name:  "fixture-app",
		Usage: "serve a fixture login application",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Value: ":8080", Usage: "listen address"},
			&cli.StringFlag{Name: "flavor", Value: "fixture", Usage: "name shown in the page title"},
			&cli.StringFlag{Name: "username", Value: "doctor@example.com", Sources: cli.EnvVars("DOCTOR_USERNAME")},
			&cli.StringFlag{Name: "password", Value: "secret", Sources: cli.EnvVars("PASSWORD")},
			&cli.DurationFlag{Name: "login-delay", Usage: "delay added to every login request"},
			&cli.StringFlag{Name: "log-level", Value: "info"},
		},
		Action: serve,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, cmd *cli.Command) error {
	logger, err := logging.New(cmd.String("log-level"), true)
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg := server.DefaultConfig()
	cfg.Addr = cmd.String("addr")
	cfg.Flavor = cmd.String("flavor")
	cfg.Username = cmd.String("username")
	cfg.Password = cmd.String("password")
	cfg.LoginDelay = cmd.Duration("login-delay")
	cfg.Logger = logger

	srv, err := server.NewServer(cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	if _, err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	logger.Info("open the login page", zap.String("url", srv.URL()+"login"))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
	case <-srv.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
