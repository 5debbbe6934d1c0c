package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"kaiden-app/config"
	"kaiden-app/database"
	routes "kaiden-app/internal/app/http"
	"kaiden-app/internal/scheduler"
)

const shutdownTimeout = 15 * time.Second

func main() {
	rootCmd := &cobra.Command{
		Use:           "kaiden",
		Short:         "Kaiden SaaS API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), true)
		},
	}
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(syncPlansCmd())
	rootCmd.AddCommand(expireCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			noJobs, _ := cmd.Flags().GetBool("no-jobs")
			return serve(cmd.Context(), !noJobs)
		},
	}
	cmd.Flags().Bool("no-jobs", false, "Do not start the cron scheduler")
	return cmd
}

func serve(ctx context.Context, withJobs bool) error {
	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := database.Migrate(a.db); err != nil {
		return err
	}

	if config.APP_ENV == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              ":" + config.PORT,
		Handler:           routes.NewRouter(a.routerDeps()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var sched *scheduler.Scheduler
	if withJobs {
		sched = scheduler.New(a.jobs, scheduler.Specs{
			ExpirePurchases: config.CRON_EXPIRE_PURCHASES,
			ExpireGrants:    config.CRON_EXPIRE_GRANTS,
			TrialReminders:  config.CRON_TRIAL_REMINDERS,
		}, a.log.Named("scheduler"))
		if err := sched.Start(); err != nil {
			return err
		}
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		a.log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// sockets are hijacked, Shutdown does not wait for them
	a.hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Warn("http shutdown", zap.Error(err))
	}
	if sched != nil {
		select {
		case <-sched.Stop().Done():
		case <-shutdownCtx.Done():
			a.log.Warn("jobs still running at shutdown")
		}
	}
	return nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			if err := database.Migrate(a.db); err != nil {
				return err
			}
			a.log.Info("database migrated", zap.String("driver", config.DB_DRIVER))
			return nil
		},
	}
}

func syncPlansCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync-plans",
		Short: "Mirror recurring Stripe prices into the plans table",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			res, err := a.plans.Sync(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "synced %d plans (%d created, %d updated, %d skipped)\n",
				res.Synced, res.Created, res.Updated, res.Skipped)
			return nil
		},
	}
}

func expireCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expire",
		Short: "Run the expiry jobs once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			reminders, _ := cmd.Flags().GetBool("trial-reminders")
			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			jobs := []string{scheduler.JobExpirePurchases, scheduler.JobExpireGrants}
			if reminders {
				jobs = append(jobs, scheduler.JobTrialReminders)
			}
			for _, name := range jobs {
				n, err := a.jobs.Run(cmd.Context(), name)
				if err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d\n", name, n)
			}
			return nil
		},
	}
	cmd.Flags().Bool("trial-reminders", false, "Also send trial ending reminders")
	return cmd
}
