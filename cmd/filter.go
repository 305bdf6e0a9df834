package cmd

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/edr-telemetry/internal/models"
	"github.com/telhawk-systems/edr-telemetry/internal/service"
	"github.com/telhawk-systems/edr-telemetry/pkg/output"
)

func newFilterCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "filter <vehicle>",
		Short: "List the relevant radar incidents of a vehicle",
		Long: `List the radar incidents of the vehicle that detected a vehicle, pedestrian
or cyclist with a confidence level above 0.80.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := models.ParseVehicleNumber(args[0])
			if err != nil {
				return err
			}

			return a.withService(cmd.Context(), false, func(svc *service.Service) error {
				incidents, err := svc.FilterIncidents(cmd.Context(), n)
				if err != nil {
					return err
				}
				return a.printIncidents(models.VehicleID(n), incidents)
			})
		},
	}
}

func (a *app) printIncidents(vehicleID string, incidents []models.RadarIncident) error {
	if a.jsonOutput() {
		return output.JSON(incidents)
	}
	table := output.NewTable("EVENT_ID", "RADAR_ID", "TIMESTAMP", "OBJECT", "CLASS", "CONFIDENCE", "DISTANCE")
	for _, r := range incidents {
		table.AddRow(
			r.EventID,
			r.RadarID,
			r.Timestamp,
			r.ObjectType,
			r.ObjectClass,
			strconv.FormatFloat(r.ConfidenceLevel, 'f', 2, 64),
			strconv.FormatFloat(r.Distance, 'f', 2, 64),
		)
	}
	if table.Len() == 0 {
		output.Info("No relevant radar incidents found for %s", vehicleID)
		return nil
	}
	table.Render()
	return nil
}
