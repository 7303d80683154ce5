package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"blood-alert-engine/internal/models"
)

func matchCmd() *cobra.Command {
	var (
		radius float64
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "match <hospital_id> <blood_type>",
		Short: "Rank nearby donors for a hospital and blood type",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			hospitalID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid hospital id %q", args[0])
			}

			req := models.AlertRequest{
				HospitalID: hospitalID,
				BloodType:  models.BloodType(args[1]),
				Limit:      limit,
			}
			if cmd.Flags().Changed("radius") {
				req.RadiusKm = &radius
			}

			result, err := svc.Alerts.CreateAlert(cmd.Context(), req)
			if err != nil {
				return err
			}

			fmt.Printf("\n%s needs %s within %.1f km: %d donors matched\n\n",
				result.Hospital.Name, result.BloodTypeNeeded, result.RadiusKm, result.TotalMatched)
			if result.Excluded > 0 {
				fmt.Printf("%d donors excluded by the donation interval\n\n", result.Excluded)
			}

			fmt.Printf("%-4s %-8s %-24s %-28s %-12s %8s %6s\n", "#", "ID", "NAME", "EMAIL", "LAST", "KM", "SCORE")
			for i, d := range result.Donors {
				last := d.Donor.LastDonation
				if last == "" {
					last = "never"
				}
				fmt.Printf("%-4d %-8d %-24s %-28s %-12s %8.2f %6.3f\n",
					i+1, d.Donor.ID, d.Donor.Name, d.Donor.Email, last, d.DistanceKm, d.Score)
			}
			return nil
		},
	}

	cmd.Flags().Float64VarP(&radius, "radius", "r", 0, "Search radius in km (defaults to DEFAULT_RADIUS_KM)")
	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "Maximum donors to list (defaults to MAX_RESULTS)")

	return cmd
}
