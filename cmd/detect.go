package cmd

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/edr-telemetry/internal/models"
	"github.com/telhawk-systems/edr-telemetry/internal/service"
	"github.com/telhawk-systems/edr-telemetry/pkg/output"
)

func newDetectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "detect <vehicle>",
		Short: "Detect potential accidents of a vehicle",
		Long: `Detect potential accidents: an event with speed 0 reported at most 2s after
an event with a speed of at least 30. With nats.enabled every candidate is also
published to <nats.subject>.<vehicle_id>.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := models.ParseVehicleNumber(args[0])
			if err != nil {
				return err
			}

			return a.withService(cmd.Context(), true, func(svc *service.Service) error {
				accidents, err := svc.DetectAccidents(cmd.Context(), n)
				if err != nil {
					return err
				}
				return a.printAccidents(models.VehicleID(n), accidents)
			})
		},
	}
}

func (a *app) printAccidents(vehicleID string, accidents []models.VehicleEvent) error {
	if a.jsonOutput() {
		return output.JSON(accidents)
	}
	table := output.NewTable("EVENT_ID", "TIMESTAMP", "EVENT_TYPE", "BRAKE", "AIRBAG", "LATITUDE", "LONGITUDE")
	for _, e := range accidents {
		table.AddRow(
			e.EventID,
			e.Timestamp,
			e.EventType,
			e.BrakeStatus,
			strconv.FormatBool(e.AirbagDeployed),
			strconv.FormatFloat(e.Location.Latitude, 'f', -1, 64),
			strconv.FormatFloat(e.Location.Longitude, 'f', -1, 64),
		)
	}
	if table.Len() == 0 {
		output.Info("No potential accidents found for %s", vehicleID)
		return nil
	}

	output.Warn("%d potential accidents found for %s", table.Len(), vehicleID)
	table.Render()
	return nil
}
