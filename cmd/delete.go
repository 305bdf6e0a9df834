package cmd

import (
	"github.com/spf13/cobra"

	"github.com/telhawk-systems/edr-telemetry/internal/models"
	"github.com/telhawk-systems/edr-telemetry/internal/service"
	"github.com/telhawk-systems/edr-telemetry/pkg/output"
)

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <vehicle>",
		Short: "Delete all events and radar incidents of a vehicle",
		Long: `Delete every vehicle event of the vehicle and every radar incident whose
event id belongs to it. <vehicle> is a number (5) or a vehicle id (vehicle_5).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := models.ParseVehicleNumber(args[0])
			if err != nil {
				return err
			}

			return a.withService(cmd.Context(), false, func(svc *service.Service) error {
				result, err := svc.DeleteVehicle(cmd.Context(), n)
				if err != nil {
					return err
				}

				if a.jsonOutput() {
					return output.JSON(result)
				}
				if result.Events == 0 && result.Incidents == 0 {
					output.Info("No records found for %s", result.VehicleID)
					return nil
				}
				output.Success("Deleted %d events and %d radar incidents of %s",
					result.Events, result.Incidents, result.VehicleID)
				return nil
			})
		},
	}
}
