// Command ricorrenti finds recurring payments in a ledger of transactions.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ricorrenti/internal/cli"
	"ricorrenti/internal/config"
	"ricorrenti/internal/log"
)

// Set at build time with -ldflags "-X main.Version=... -X main.BuildDate=...".
var (
	Version   = "dev"
	BuildDate = "unknown"
)

// rootOptions are the flags shared by every subcommand.
type rootOptions struct {
	configPath string
	envFile    string
	logLevel   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "ricorrenti",
		Short: "Find recurring payments in a transaction ledger",
		Long: `ricorrenti groups outgoing transactions by similar vendor description and
similar amount, keeps the groups that occur often enough and labels their
cadence (Weekly, Bi-Weekly, Monthly, Yearly or Irregular).

Configuration is layered: defaults, then the YAML file given with --config,
then environment variables (a .env file is loaded when present), then flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a YAML configuration file")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	root.AddCommand(
		newAnalyzeCmd(opts),
		newImportCmd(opts),
		newRunsCmd(opts),
		newRequestCmd(opts),
		newVersionCmd(),
	)
	return root
}

// load reads the layered configuration; override applies command flags
// before validation.
func (o *rootOptions) load(override func(*config.Config) error) (*config.Config, *log.Logger, error) {
	return o.loadConfig(override, true)
}

// loadLenient skips validation, for commands that only touch the database or
// the broker and so do not care whether a ledger source is configured.
func (o *rootOptions) loadLenient() (*config.Config, *log.Logger, error) {
	return o.loadConfig(nil, false)
}

func (o *rootOptions) loadConfig(override func(*config.Config) error, validate bool) (*config.Config, *log.Logger, error) {
	cli.LoadEnvFile(slog.Default(), o.envFile)

	cfg, err := config.LoadFile(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if override != nil {
		if err := override(cfg); err != nil {
			return nil, nil, err
		}
	}
	if validate {
		if err := cfg.Validate(); err != nil {
			return nil, nil, err
		}
	}

	logger := cli.SetupLogger(cfg.LogLevel, cfg.LogFormat, log.ComponentCLI)
	return cfg, logger, nil
}
