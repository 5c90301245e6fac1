// Command medctl is the medminder operations CLI.
//
// Usage:
//
//	medctl migrate
//	medctl user create --username alice --password secret --name Alice
//	medctl stock list --user alice
//	medctl stock check --user alice --days 7
//	medctl reminders scan
//	medctl email test --user alice --to me@example.com
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/albapepper/medminder/internal/auth"
	"github.com/albapepper/medminder/internal/config"
	"github.com/albapepper/medminder/internal/email"
	"github.com/albapepper/medminder/internal/logging"
	"github.com/albapepper/medminder/internal/model"
	"github.com/albapepper/medminder/internal/notifications"
	"github.com/albapepper/medminder/internal/reminder"
	"github.com/albapepper/medminder/internal/stock"
	"github.com/albapepper/medminder/internal/store"
	"github.com/albapepper/medminder/internal/store/backend"
)

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "medctl",
		Short:        "medminder operations CLI",
		SilenceUsage: true,
	}

	root.AddCommand(migrateCmd())
	root.AddCommand(userCmd())
	root.AddCommand(stockCmd())
	root.AddCommand(remindersCmd())
	root.AddCommand(emailCmd())
	return root
}

// env bundles what every command needs.
type env struct {
	cfg    *config.Config
	store  store.Store
	logger *slog.Logger
}

func run(fn func(ctx context.Context, e *env) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, closer := logging.New(cfg)
	defer closer.Close()

	st, err := backend.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	return fn(ctx, &env{cfg: cfg, store: st, logger: logger})
}

// resolveUser accepts a numeric id or a username.
func resolveUser(ctx context.Context, st store.Users, ref string) (*model.User, error) {
	if ref == "" {
		return nil, errors.New("--user is required")
	}
	var u *model.User
	var err error
	if id, perr := strconv.ParseInt(ref, 10, 64); perr == nil {
		u, err = st.GetUser(ctx, id)
	} else {
		u, err = st.GetUserByUsername(ctx, ref)
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("user %q not found", ref)
	}
	return u, err
}

// --------------------------------------------------------------------------
// migrate command
// --------------------------------------------------------------------------

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, e *env) error {
				if err := e.store.Migrate(ctx); err != nil {
					return err
				}
				e.logger.Info("Schema is up to date", "driver", e.cfg.StoreDriver)
				return nil
			})
		},
	}
}

// --------------------------------------------------------------------------
// user command
// --------------------------------------------------------------------------

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts",
	}
	cmd.AddCommand(userCreateCmd())
	return cmd
}

func userCreateCmd() *cobra.Command {
	var username, password, name, address string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" || password == "" {
				return errors.New("--username and --password are required")
			}
			return run(func(ctx context.Context, e *env) error {
				hash, err := auth.HashPassword(password)
				if err != nil {
					return err
				}
				id, err := e.store.CreateUser(ctx, &model.User{
					Username:     username,
					PasswordHash: hash,
					Name:         name,
					Email:        address,
				})
				if errors.Is(err, store.ErrDuplicate) {
					return fmt.Errorf("username %q is taken", username)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created user %d (%s)\n", id, username)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "Login name")
	cmd.Flags().StringVar(&password, "password", "", "Password")
	cmd.Flags().StringVar(&name, "name", "", "Display name used in notifications")
	cmd.Flags().StringVar(&address, "email", "", "Account email")
	return cmd
}

// --------------------------------------------------------------------------
// stock command
// --------------------------------------------------------------------------

func stockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stock",
		Short: "Inspect medication supply",
	}
	cmd.AddCommand(stockListCmd())
	cmd.AddCommand(stockCheckCmd())
	return cmd
}

func stockListCmd() *cobra.Command {
	var userRef string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's medications with supply forecasts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, e *env) error {
				u, err := resolveUser(ctx, e.store, userRef)
				if err != nil {
					return err
				}
				meds, err := e.store.ListMedications(ctx, u.ID)
				if err != nil {
					return err
				}
				now := e.cfg.Now()
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tREMAINING\tPER DAY\tDAYS LEFT\tRUNS OUT\tLOW")
				for _, f := range stock.Forecasts(meds, now) {
					runsOut := "-"
					if f.PredictedExhaustDate != nil {
						runsOut = f.PredictedExhaustDate.In(e.cfg.Location).Format("2006-01-02")
					}
					low := ""
					if stock.IsLow(f.Medication, e.cfg.LowStockDays) {
						low = "yes"
					}
					fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\t%s\t%s\n",
						f.ID, f.Name, f.RemainingQuantity, f.DailyUsage, f.DaysRemaining, runsOut, low)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&userRef, "user", "", "User id or username")
	return cmd
}

func stockCheckCmd() *cobra.Command {
	var userRef string
	var days int
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run the low-stock notification fan-out for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, e *env) error {
				u, err := resolveUser(ctx, e.store, userRef)
				if err != nil {
					return err
				}
				threshold := e.cfg.LowStockDays
				if cmd.Flags().Changed("days") {
					threshold = days
				}
				checker := notifications.NewChecker(e.store, email.NewSMTPSender(), threshold, e.cfg.Location, e.logger)
				start := time.Now()
				res, err := checker.CheckAndNotify(ctx, u)
				if err != nil {
					return err
				}
				e.logger.Info("Low-stock check finished",
					"user_id", u.ID,
					"threshold_days", threshold,
					"duration", time.Since(start).Round(time.Millisecond))
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			})
		},
	}
	cmd.Flags().StringVar(&userRef, "user", "", "User id or username")
	cmd.Flags().IntVar(&days, "days", stock.DefaultThresholdDays, "Low-stock horizon in days (default LOW_STOCK_DAYS)")
	return cmd
}

// --------------------------------------------------------------------------
// reminders command
// --------------------------------------------------------------------------

func remindersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reminders",
		Short: "Dose reminders",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "scan",
		Short: "Run one reminder pass and record in-app notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, e *env) error {
				w := reminder.NewWorker(e.store, e.cfg.ReminderWindow, e.cfg.Location, e.logger)
				sent, err := w.RunOnce(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d reminder notification(s) recorded\n", sent)
				return nil
			})
		},
	})
	return cmd
}

// --------------------------------------------------------------------------
// email command
// --------------------------------------------------------------------------

func emailCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "email",
		Short: "SMTP settings",
	}
	cmd.AddCommand(emailTestCmd())
	return cmd
}

func emailTestCmd() *cobra.Command {
	var userRef, to string
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Send a test email with a user's saved SMTP settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := model.ValidateEmail("to", to); err != nil {
				return err
			}
			return run(func(ctx context.Context, e *env) error {
				u, err := resolveUser(ctx, e.store, userRef)
				if err != nil {
					return err
				}
				settings, err := e.store.GetEmailSettings(ctx, u.ID)
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("user %d has no SMTP settings", u.ID)
				}
				if err != nil {
					return err
				}
				if err := email.NewSMTPSender().Send(ctx, settings, email.ConfigTestMessage(to)); err != nil {
					return fmt.Errorf("send test email: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "test email sent to %s via %s\n", to, settings.SMTPHost)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userRef, "user", "", "User id or username")
	cmd.Flags().StringVar(&to, "to", "", "Recipient address")
	return cmd
}
