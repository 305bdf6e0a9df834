package cmd

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/telhawk-systems/edr-telemetry/internal/config"
	"github.com/telhawk-systems/edr-telemetry/internal/logging"
	natsclient "github.com/telhawk-systems/edr-telemetry/internal/messaging/nats"
	"github.com/telhawk-systems/edr-telemetry/internal/metrics"
	"github.com/telhawk-systems/edr-telemetry/internal/service"
	"github.com/telhawk-systems/edr-telemetry/internal/store/backend"
	"github.com/telhawk-systems/edr-telemetry/pkg/output"
)

// app is the state shared by the commands of one invocation.
type app struct {
	cfgFile string
	format  string
	cfg     *config.Config
	logger  *logging.Logger
}

// NewRootCmd builds the edr command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "edr",
		Short: "Vehicle event data recorder toolkit",
		Long: `edr generates synthetic vehicle telemetry and radar readings into a
record store and runs analyses over the stored data.

Configuration cascade (priority order):
  1. Command-line flags
  2. EDR_* environment variables (EDR_STORE_BACKEND, EDR_GENERATOR_SEED, ...)
  3. --config, ./edr.yaml or ~/.edr/edr.yaml
  4. Built-in defaults`,
		Version:           "0.1.0",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.load,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default: ./edr.yaml or ~/.edr/edr.yaml)")
	flags.StringVarP(&a.format, "output", "o", output.FormatTable, "output format: table, json")
	flags.String("backend", "", "record store: dynamodb, redis, postgres, sqlite, opensearch, memory")
	flags.Int("batch-size", 0, "records per store write")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("log-format", "", "log format: text, json")

	rootCmd.AddCommand(
		newGenerateCmd(a),
		newDeleteCmd(a),
		newFilterCmd(a),
		newDetectCmd(a),
		newConfigCmd(a),
	)

	return rootCmd
}

// Execute runs the edr command line and reports a failure on stderr.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		output.SetOutput(rootCmd.OutOrStdout(), rootCmd.ErrOrStderr())
		output.Error("%v", err)
		return err
	}
	return nil
}

// load reads the configuration and sets up the logger before any command runs.
func (a *app) load(cmd *cobra.Command, _ []string) error {
	output.SetOutput(cmd.OutOrStdout(), cmd.ErrOrStderr())

	if !output.ValidFormat(a.format) {
		return fmt.Errorf("invalid output format %q (must be one of: table, json)", a.format)
	}

	cfg, err := config.Load(a.cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	a.cfg = cfg

	runID := uuid.NewString()
	a.logger = logging.NewWithWriter(cmd.ErrOrStderr(), logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
	logging.SetDefault(a.logger)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(logging.ContextWithRunID(ctx, runID))

	a.logger.DebugContext(cmd.Context(), "Loaded configuration",
		logging.Backend(cfg.Store.Backend),
		"config_file", cfg.File,
	)
	return nil
}

// withService opens the configured store (and the NATS publisher when
// publish is set and enabled), runs fn and releases everything afterwards.
// The metrics textfile is written even when fn fails.
func (a *app) withService(ctx context.Context, publish bool, fn func(*service.Service) error) error {
	st, err := backend.Open(ctx, a.cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			a.logger.WarnContext(ctx, "Failed to close store", logging.Error(closeErr))
		}
	}()

	defer func() {
		if a.cfg.Metrics.Textfile == "" {
			return
		}
		if metricsErr := metrics.WriteTextfile(a.cfg.Metrics.Textfile); metricsErr != nil {
			a.logger.WarnContext(ctx, "Failed to write metrics", logging.Error(metricsErr))
		}
	}()

	opts := []service.Option{service.WithLogger(a.logger)}
	if publish && a.cfg.NATS.Enabled {
		natsCfg := natsclient.DefaultConfig()
		natsCfg.URL = a.cfg.NATS.URL
		client, err := natsclient.NewClient(natsCfg)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer func() {
			if closeErr := client.Close(); closeErr != nil {
				a.logger.WarnContext(ctx, "Failed to close NATS connection", logging.Error(closeErr))
			}
		}()
		opts = append(opts, service.WithPublisher(client))
	}

	svc := service.New(st, a.serviceConfig(), opts...)
	return fn(svc)
}

func (a *app) serviceConfig() service.Config {
	return service.Config{
		BatchSize: a.cfg.Store.BatchSize,
		Subject:   a.cfg.NATS.Subject,
		Generator: generatorOptions(a.cfg.Generator),
	}
}

func (a *app) jsonOutput() bool {
	return a.format == output.FormatJSON
}
