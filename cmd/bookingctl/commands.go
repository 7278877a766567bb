package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/wolfman30/booking-platform/internal/bookings"
	"github.com/wolfman30/booking-platform/internal/tenancy"
)

func parseUUID(name, v string) (uuid.UUID, error) {
	id, err := uuid.Parse(v)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("invalid %s %q", name, v)
	}
	return id, nil
}

func newSeedCmd() *cobra.Command {
	var tenant string
	c := &cobra.Command{
		Use:   "seed",
		Short: "Create a demo provider, service and weekday schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID := uuid.Nil
			if tenant != "" {
				var err error
				if tenantID, err = parseUUID("tenant", tenant); err != nil {
					return err
				}
			}
			ctx := cmd.Context()
			engine, closeFn, err := openEngine(ctx)
			if err != nil {
				return err
			}
			defer closeFn()
			res, err := engine.Stores.Seed(ctx, tenantID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "tenant_id   %s\n", res.TenantID)
			fmt.Fprintf(out, "provider_id %s\n", res.ProviderID)
			fmt.Fprintf(out, "service_id  %s\n", res.ServiceID)
			return nil
		},
	}
	c.Flags().StringVar(&tenant, "tenant", "", "tenant id (generated when empty)")
	return c
}

func newSlotsCmd() *cobra.Command {
	var provider, service, date string
	c := &cobra.Command{
		Use:   "slots",
		Short: "List free start times for a provider and service on a date",
		RunE: func(cmd *cobra.Command, args []string) error {
			providerID, err := parseUUID("provider", provider)
			if err != nil {
				return err
			}
			serviceID, err := parseUUID("service", service)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			engine, closeFn, err := openEngine(ctx)
			if err != nil {
				return err
			}
			defer closeFn()
			day, err := time.ParseInLocation("2006-01-02", date, engine.Location())
			if err != nil {
				return fmt.Errorf("invalid --date (want YYYY-MM-DD)")
			}
			slots, err := engine.Service.GetAvailableSlots(ctx, providerID, day, serviceID)
			if err != nil {
				return err
			}
			for _, s := range slots {
				fmt.Fprintln(cmd.OutOrStdout(), s.In(engine.Location()).Format(time.RFC3339))
			}
			return nil
		},
	}
	c.Flags().StringVar(&provider, "provider", "", "provider id")
	c.Flags().StringVar(&service, "service", "", "service id")
	c.Flags().StringVar(&date, "date", "", "calendar date, YYYY-MM-DD")
	_ = c.MarkFlagRequired("provider")
	_ = c.MarkFlagRequired("service")
	_ = c.MarkFlagRequired("date")
	return c
}

type attendanceFunc func(s *bookings.Service, ctx context.Context, id uuid.UUID, caller tenancy.Caller) (*bookings.Booking, error)

func newAttendanceCmd(use, short string, apply attendanceFunc) *cobra.Command {
	var tenant string
	c := &cobra.Command{
		Use:   use + " <booking-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUUID("booking id", args[0])
			if err != nil {
				return err
			}
			tenantID, err := parseUUID("tenant", tenant)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			engine, closeFn, err := openEngine(ctx)
			if err != nil {
				return err
			}
			defer closeFn()
			caller := tenancy.Caller{TenantID: tenantID, Role: tenancy.RoleOwner}
			b, err := apply(engine.Service, tenancy.WithCaller(ctx, caller), id, caller)
			if err != nil {
				return err
			}
			engine.DrainEvents(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", b.ID, b.Status)
			return nil
		},
	}
	c.Flags().StringVar(&tenant, "tenant", "", "tenant that owns the booking")
	_ = c.MarkFlagRequired("tenant")
	return c
}

func newCompleteCmd() *cobra.Command {
	return newAttendanceCmd("complete", "Mark a confirmed booking completed", (*bookings.Service).CompleteBooking)
}

func newNoShowCmd() *cobra.Command {
	return newAttendanceCmd("no-show", "Mark a confirmed booking as a no-show", (*bookings.Service).MarkNoShow)
}

func newExpirePendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "expire-pending",
		Short: "Cancel pending bookings that were never confirmed",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			engine, closeFn, err := openEngine(ctx)
			if err != nil {
				return err
			}
			defer closeFn()
			n, err := engine.Jobs.ExpirePending(ctx)
			if err != nil {
				return err
			}
			engine.DrainEvents(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "expired %d pending bookings\n", n)
			return nil
		},
	}
}

func newSendRemindersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send-reminders",
		Short: "Publish reminders for upcoming confirmed bookings",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			engine, closeFn, err := openEngine(ctx)
			if err != nil {
				return err
			}
			defer closeFn()
			n, err := engine.Jobs.SendReminders(ctx)
			if err != nil {
				return err
			}
			engine.DrainEvents(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "sent %d reminders\n", n)
			return nil
		},
	}
}

func newRunCronCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run-cron",
		Short: "Run the lifecycle scheduler and outbox delivery until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			engine, closeFn, err := openEngine(ctx)
			if err != nil {
				return err
			}
			defer closeFn()
			engine.StartBackground(ctx, true)
			<-ctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			engine.Shutdown(shutdownCtx)
			return nil
		},
	}
}
