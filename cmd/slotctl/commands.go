package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/zatekoja/clinicscheduler/internal/adapters/database"
	"github.com/zatekoja/clinicscheduler/internal/application/services"
	"github.com/zatekoja/clinicscheduler/internal/domain/entities"
	"github.com/zatekoja/clinicscheduler/internal/domain/providers"
	"github.com/zatekoja/clinicscheduler/internal/infrastructure/notifications"
)

func seedCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Upsert clinics from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("failed to open seed file: %w", err)
			}
			defer f.Close()

			clinics, err := loadClinics(f)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			client, err := a.connect(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			repo := database.NewClinicAdapter(client)
			for _, c := range clinics {
				if err := repo.Upsert(ctx, c); err != nil {
					return fmt.Errorf("clinic %s: %w", c.ID, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "upserted %s (%s)\n", c.ID, c.Name)
			}
			return nil
		},
	}
	cmd.Flags().String("file", "clinics.json", "Path to a JSON array of clinics")
	return cmd
}

func slotsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Print a clinic day's availability",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := services.AvailabilityQuery{}
			q.ClinicID, _ = cmd.Flags().GetString("clinic")
			q.Date, _ = cmd.Flags().GetString("date")
			q.DurationMinutes, _ = cmd.Flags().GetInt("duration")
			q.BufferMinutes, _ = cmd.Flags().GetInt("buffer")
			q.IncludeUnavailable, _ = cmd.Flags().GetBool("all")
			q.PatientID, _ = cmd.Flags().GetString("patient")

			ctx := cmd.Context()
			client, err := a.connect(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			clock := providers.SystemClock
			reserve := a.cfg.Scheduling.ReserveDuringNegotiation
			svc := services.NewAvailabilityService(
				database.NewClinicAdapter(client),
				database.NewAppointmentAdapter(client, clock),
				database.NewHoldAdapter(client, clock),
				services.SlotPolicyFromConfig(a.cfg.Scheduling),
				clock,
				reserve,
			)

			day, err := svc.GetDayAvailability(ctx, q)
			if err != nil {
				return err
			}
			return printDay(cmd.OutOrStdout(), day)
		},
	}
	cmd.Flags().String("clinic", "", "Clinic id")
	cmd.Flags().String("date", "", "Clinic-local date, YYYY-MM-DD")
	cmd.Flags().Int("duration", 30, "Slot length in minutes")
	cmd.Flags().Int("buffer", 0, "Gap after each slot in minutes")
	cmd.Flags().Bool("all", false, "Include booked and blocked slots")
	cmd.Flags().String("patient", "", "Treat this patient's holds as their own")
	_ = cmd.MarkFlagRequired("clinic")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func notificationsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "List the notification log for an appointment",
		RunE: func(cmd *cobra.Command, args []string) error {
			appointmentID, _ := cmd.Flags().GetString("appointment")

			ctx := cmd.Context()
			client, err := a.connect(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			svc := services.NewNotificationService(client.SQLX(), notifications.NewLogSender(a.logger), providers.SystemClock, a.logger)
			rows, err := svc.ListForAppointment(ctx, appointmentID)
			if err != nil {
				return err
			}
			return printNotifications(cmd.OutOrStdout(), rows)
		},
	}
	cmd.Flags().String("appointment", "", "Appointment id")
	_ = cmd.MarkFlagRequired("appointment")
	return cmd
}

// loadClinics decodes and validates a JSON array of clinics
func loadClinics(r io.Reader) ([]*entities.Clinic, error) {
	var clinics []*entities.Clinic
	if err := json.NewDecoder(r).Decode(&clinics); err != nil {
		return nil, fmt.Errorf("failed to decode clinics: %w", err)
	}
	seen := make(map[string]bool, len(clinics))
	for i, c := range clinics {
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("clinic #%d: %w", i, err)
		}
		if seen[c.ID] {
			return nil, fmt.Errorf("clinic %s appears twice", c.ID)
		}
		seen[c.ID] = true
	}
	return clinics, nil
}

func printDay(w io.Writer, day *entities.DayAvailability) error {
	if !day.IsOpen {
		_, err := fmt.Fprintf(w, "%s: closed\n", day.Date)
		return err
	}

	fmt.Fprintf(w, "%s: %d slots, %d available, %d booked, %d blocked\n",
		day.Date, day.TotalSlots, day.AvailableSlots, day.BookedSlots, day.BlockedSlots)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tMIN\tSTATUS\tBY")
	for _, s := range day.TimeSlots {
		by := s.AppointmentID
		if by == "" {
			by = s.HoldID
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", s.Time, s.DurationMinutes, s.Status, by)
	}
	return tw.Flush()
}

func printNotifications(w io.Writer, rows []entities.AppointmentNotification) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "no notifications")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tTO\tCHANNEL\tSTATUS\tCREATED")
	for _, n := range rows {
		fmt.Fprintf(tw, "%s\t%s:%s\t%s\t%s\t%s\n",
			n.NotificationType, n.RecipientRole, n.Recipient, n.Channel, n.Status, n.CreatedAt.Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}
