package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/telhawk-systems/edr-telemetry/pkg/output"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration commands",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		Long:  "Load the configuration through the full cascade and report whether it is valid, without touching the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// loading already validated the configuration
			source := a.cfg.File
			if source == "" {
				source = "defaults and environment"
			}

			if a.jsonOutput() {
				return output.JSON(map[string]interface{}{
					"valid":   true,
					"file":    a.cfg.File,
					"backend": a.cfg.Store.Backend,
				})
			}

			output.Success("Configuration is valid")
			output.Info("  Source:  %s", source)
			output.Info("  Backend: %s", a.cfg.Store.Backend)
			output.Info("  Vehicles: %d, incidents per vehicle: %d, readings per incident: %d",
				a.cfg.Generator.Vehicles, a.cfg.Generator.IncidentsPerVehicle, a.cfg.Generator.ReadingsPerIncident)
			if a.cfg.NATS.Enabled {
				output.Info("  Accidents published to %s.<vehicle_id> at %s", a.cfg.NATS.Subject, a.cfg.NATS.URL)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long:  "Print the effective configuration as YAML (or JSON with --output json). Secrets are masked.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := a.cfg.YAML()
			if err != nil {
				return fmt.Errorf("failed to render config: %w", err)
			}

			if a.jsonOutput() {
				// decode the masked YAML so JSON gets the same keys
				var doc map[string]interface{}
				if err := yaml.Unmarshal(data, &doc); err != nil {
					return fmt.Errorf("failed to render config: %w", err)
				}
				return output.JSON(doc)
			}

			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	})

	return cmd
}
