// loginbench drives a headless browser through the login flow of each
// front-end variant under every configured network and CPU condition and
// records the telemetry as JSON artifacts.
//
// Usage:
//
//	loginbench run                 # full matrix, settings from .env and environment
//	loginbench run --app react     # one application
//	loginbench summarize -o out.csv
//	loginbench conditions
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/thesyncim/loginbench/internal/config"
	"github.com/thesyncim/loginbench/internal/logging"
)

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "loginbench:", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "loginbench",
		Usage: "collect login performance telemetry across applications and network/CPU conditions",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "optional YAML config file", Value: "loginbench.yaml"},
			&cli.StringSliceFlag{Name: "env-file", Usage: ".env files to load", Value: []string{".env"}},
		},
		Commands: []*cli.Command{
			runCommand(),
			summarizeCommand(),
			conditionsCommand(),
		},
	}
}

// loadConfig reads .env files and the configuration named by the global
// flags.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	if err := config.LoadDotEnv(cmd.StringSlice("env-file")...); err != nil {
		return nil, err
	}
	return config.Load(cmd.String("config"))
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.Log.Level, cfg.Log.Development)
}

func stdout(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}
