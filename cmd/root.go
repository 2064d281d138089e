package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luma/anidb/cmd/gen"
	"github.com/luma/anidb/internal/env"
)

var errMissingCredentials = errors.New("Set ANIDB_USER and ANIDB_PASS, or user and pass in the config file")

var (
	// configPath is an optional TOML file layered between defaults and env
	configPath string

	// logLevel overrides the configured log level when set
	logLevel string
)

var RootCmd = &cobra.Command{
	Use:   "anidb",
	Short: "Look up files in the AniDB catalog",
	Long: `Look up files in the AniDB catalog over its UDP API.

Credentials and connection settings are read from an optional TOML file
(--config), .env.local and ANIDB_* environment variables.`,
	SilenceUsage: true,
}

func init() {
	flags := RootCmd.PersistentFlags()

	flags.StringVarP(&configPath, "config", "c", "", "TOML config file")
	flags.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	RootCmd.AddCommand(PingCmd, LookupCmd, HashCmd, ServeCmd, VersionCmd, gen.RootCmd)
}

// Execute runs the CLI until it finishes or the process is interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := RootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func loadEnv(ctx context.Context) (*env.Config, *zap.Logger, error) {
	conf, err := env.LoadConfig(ctx, configPath)
	if err != nil {
		return nil, nil, err
	}

	if logLevel != "" {
		conf.LogLevel = logLevel
	}

	log, err := env.MakeLogger(conf.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	return conf, log, nil
}

func requireCredentials(conf *env.Config) error {
	if conf.User == "" || conf.Pass == "" {
		return errMissingCredentials
	}

	return nil
}

// teardownTimeout bounds the LOGOUT sent on the way out. The command context
// may already be cancelled by then.
const teardownTimeout = 5 * time.Second

func teardownContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), teardownTimeout)
}
