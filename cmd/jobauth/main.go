// Command jobauth issues, verifies and serves bearer tokens for the pyjobs API.
//
// Configuration is read from an optional YAML file, then JOBAUTH_* environment variables,
// which may come from a .env file.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pyjobs/jobauth"
	"github.com/pyjobs/jobauth/internal/logger"
)

type app struct {
	configPath string
	envFile    string
	logLevel   string
	logEnv     string

	cfg    jobauth.Config
	logger *zap.Logger
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "jobauth",
		Short:         "Issue and verify pyjobs bearer tokens",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "YAML config file")
	flags.StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before reading JOBAUTH_* variables")
	flags.StringVar(&a.logLevel, "log-level", envOr("LOG_LEVEL", "info"), "debug|info|warn|error")
	flags.StringVar(&a.logEnv, "log-env", envOr("APP_ENV", "dev"), "dev (console) or prod (json)")

	root.AddCommand(
		newKeygenCommand(a),
		newIssueCommand(a),
		newVerifyCommand(a),
		newJWKSCommand(a),
		newServeCommand(a),
		newBenchCommand(a),
	)
	return root
}

func (a *app) init() error {
	if a.envFile != "" {
		if err := godotenv.Load(a.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", a.envFile, err)
		}
	}

	l, err := logger.New(logger.Config{Env: a.logEnv, Level: a.logLevel, Service: "jobauth"})
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	a.logger = l

	cfg := jobauth.DefaultConfig()
	if a.configPath != "" {
		cfg, err = jobauth.LoadConfigFile(a.configPath)
		if err != nil {
			return err
		}
	}
	a.cfg, err = jobauth.LoadConfigFromEnv(cfg)
	return err
}

// engine builds an Engine from the loaded configuration.
func (a *app) engine(ctx context.Context, opts ...func(*jobauth.Builder)) (*jobauth.Engine, error) {
	b := jobauth.New().WithConfig(a.cfg).WithLogger(a.logger)
	for _, opt := range opts {
		opt(b)
	}
	return b.Build(ctx)
}

func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}
