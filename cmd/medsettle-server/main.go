package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/medsettle/medsettle/internal/config"
	"github.com/medsettle/medsettle/internal/domain/billing"
	"github.com/medsettle/medsettle/internal/domain/identity"
	"github.com/medsettle/medsettle/internal/domain/invoicing"
	"github.com/medsettle/medsettle/internal/domain/organization"
	"github.com/medsettle/medsettle/internal/domain/procedure"
	"github.com/medsettle/medsettle/internal/domain/reconciliation"
	"github.com/medsettle/medsettle/internal/platform/auth"
	"github.com/medsettle/medsettle/internal/platform/db"
	"github.com/medsettle/medsettle/internal/platform/gateway"
	"github.com/medsettle/medsettle/internal/platform/metrics"
	"github.com/medsettle/medsettle/internal/platform/middleware"
	"github.com/medsettle/medsettle/internal/platform/validate"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SettingsProviderAdapter exposes the invoicing settings repository through
// the narrow interface the billing policies consume.
type SettingsProviderAdapter struct {
	repo invoicing.SettingsRepository
}

func NewSettingsProviderAdapter(repo invoicing.SettingsRepository) *SettingsProviderAdapter {
	return &SettingsProviderAdapter{repo: repo}
}

func (a *SettingsProviderAdapter) InvoicingSettingsFor(ctx context.Context, orgID uuid.UUID) (*billing.InvoicingSettings, error) {
	s, err := a.repo.GetByOrganization(ctx, orgID)
	if err != nil {
		if err == invoicing.ErrSettingsNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &billing.InvoicingSettings{
		DelayDays: s.DelayDays,
	}, nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "medsettle-server",
		Short: "Medical bill settlement engine",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(sweepCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// app holds the wired object graph shared by serve and the sweep commands.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	pool    *pgxpool.Pool
	metrics *metrics.Registry

	bills        billing.Repository
	billSvc      *billing.Service
	gate         *billing.EmployerGate
	memberSweep  *billing.MemberBillSweep
	empSweep     *billing.EmployerBillSweep
	invoicingSvc *invoicing.Service
	generator    *invoicing.Generator
	reconciler   *reconciliation.Generator
}

func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg.Env)

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	pilotOrgs, err := cfg.PilotDelayOrgs()
	if err != nil {
		pool.Close()
		return nil, err
	}

	reg := metrics.NewRegistry()
	gw := gateway.NewClient(cfg.GatewayBaseURL, cfg.GatewayAPIKey,
		time.Duration(cfg.GatewayTimeoutSeconds)*time.Second)

	billRepo := billing.NewRepoPG(pool)
	procRepo := procedure.NewRepoPG(pool)
	patientRepo := identity.NewRepoPG(pool)
	clinicRepo := organization.NewClinicRepoPG(pool)
	settingsRepo := invoicing.NewSettingsRepoPG(pool)
	invoiceRepo := invoicing.NewInvoiceRepoPG(pool)

	settings := NewSettingsProviderAdapter(settingsRepo)
	gate := billing.NewEmployerGate(settings, pilotOrgs, reg, logger)
	billSvc := billing.NewService(billRepo, procRepo, settings, gw,
		cfg.MemberBillingOffsetDays, reg, logger)

	txRunner := func(ctx context.Context, fn func(ctx context.Context) error) error {
		return db.WithTx(ctx, pool, fn)
	}

	return &app{
		cfg:          cfg,
		logger:       logger,
		pool:         pool,
		metrics:      reg,
		bills:        billRepo,
		billSvc:      billSvc,
		gate:         gate,
		memberSweep:  billing.NewMemberBillSweep(billRepo, billSvc, reg, logger),
		empSweep:     billing.NewEmployerBillSweep(billRepo, billSvc, gate, reg, logger),
		invoicingSvc: invoicing.NewService(settingsRepo, invoiceRepo, logger),
		generator: invoicing.NewGenerator(txRunner, settingsRepo, invoiceRepo,
			billRepo, billSvc, gate, reg, logger),
		reconciler: reconciliation.NewGenerator(clinicRepo, billRepo, procRepo,
			patientRepo, gw, reg, logger),
	}, nil
}

func (a *app) close() { a.pool.Close() }

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the settlement API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	ctx := context.Background()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	e := echo.New()
	e.HideBanner = true
	e.Validator = validate.New()

	e.Use(echomw.RequestID())
	e.Use(middleware.Logger(a.logger))
	e.Use(middleware.Recovery(a.logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: a.cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
	}))

	e.GET("/health", db.HealthHandler(a.pool))

	api := e.Group("/api/v1", auth.JWTMiddleware(a.cfg.AuthJWTSecret))
	api.GET("/metrics/usage", metrics.Handler(a.metrics), auth.RequireRole("admin"))

	billing.NewHandler(a.billSvc).RegisterRoutes(api)
	invoicing.NewHandler(a.invoicingSvc).RegisterRoutes(api)

	// Graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		a.logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			a.logger.Error().Err(err).Msg("shutdown error")
		}
	}()

	a.logger.Info().Str("port", a.cfg.Port).Msg("starting server")
	if err := e.Start(":" + a.cfg.Port); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, dir).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s).\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, dir).Status(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func sweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run a scheduled settlement job once",
	}
	cmd.AddCommand(memberBillsCmd())
	cmd.AddCommand(employerBillsCmd())
	cmd.AddCommand(invoicesCmd())
	cmd.AddCommand(reconcileCmd())
	return cmd
}

func printOutcomes(outcomes map[uuid.UUID]billing.Outcome) {
	failures := 0
	for id, out := range outcomes {
		if !out.Success {
			failures++
		}
		fmt.Printf("%s  success=%v  %s\n", id, out.Success, out.Message)
	}
	fmt.Printf("%d bill(s) swept, %d failure(s)\n", len(outcomes), failures)
}

func memberBillsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "member-bills",
		Short: "Submit due member and clinic bills",
		RunE: func(cmd *cobra.Command, args []string) error {
			dryRun, _ := cmd.Flags().GetBool("dry-run")

			ctx := context.Background()
			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			outcomes, err := a.memberSweep.Run(ctx, dryRun)
			if err != nil {
				return err
			}
			printOutcomes(outcomes)
			return nil
		},
	}
	cmd.Flags().Bool("dry-run", false, "Report which bills would be processed without submitting")
	return cmd
}

func employerBillsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "employer-bills",
		Short: "Submit due employer bills that pass the processing gate",
		RunE: func(cmd *cobra.Command, args []string) error {
			dryRun, _ := cmd.Flags().GetBool("dry-run")

			ctx := context.Background()
			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			outcomes, err := a.empSweep.Run(ctx, dryRun)
			if err != nil {
				return err
			}
			printOutcomes(outcomes)
			return nil
		},
	}
	cmd.Flags().Bool("dry-run", false, "Report which bills would be processed without submitting")
	return cmd
}

func invoicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "invoices",
		Short: "Generate invoices for organizations whose cadence fires today",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			results, err := a.generator.Run(ctx, time.Now())
			if err != nil {
				return err
			}
			for org, res := range results {
				if res.InvoiceUUID != nil {
					fmt.Printf("%s  invoice=%s  bills=%d  submitted=%d\n",
						org, res.InvoiceUUID, res.BillCount, res.Submitted)
					continue
				}
				fmt.Printf("%s  %s\n", org, res.Message)
			}
			fmt.Printf("%d organization(s) considered\n", len(results))
			return nil
		},
	}
}

func reconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Build a reconciliation report for a clinic group",
		RunE: func(cmd *cobra.Command, args []string) error {
			group, _ := cmd.Flags().GetString("group")
			clinics, _ := cmd.Flags().GetString("clinics")
			startStr, _ := cmd.Flags().GetString("start")
			endStr, _ := cmd.Flags().GetString("end")
			out, _ := cmd.Flags().GetString("out")

			if group == "" || clinics == "" {
				return fmt.Errorf("--group and --clinics are required")
			}
			start, err := time.Parse("2006-01-02", startStr)
			if err != nil {
				return fmt.Errorf("invalid --start: %w", err)
			}
			end, err := time.Parse("2006-01-02", endStr)
			if err != nil {
				return fmt.Errorf("invalid --end: %w", err)
			}

			ctx := context.Background()
			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			rows, ok := a.reconciler.Generate(ctx, group, strings.Split(clinics, ","), start, end)
			if err := reconciliation.WriteExcel(rows, out); err != nil {
				return err
			}
			fmt.Printf("%d row(s) written to %s\n", len(rows), out)
			if !ok {
				return fmt.Errorf("report incomplete: at least one transfer window could not be fetched")
			}
			return nil
		},
	}
	cmd.Flags().String("group", "", "Clinic group name")
	cmd.Flags().String("clinics", "", "Comma-separated clinic names")
	cmd.Flags().String("start", time.Now().AddDate(0, -1, 0).Format("2006-01-02"), "Window start (YYYY-MM-DD)")
	cmd.Flags().String("end", time.Now().Format("2006-01-02"), "Window end (YYYY-MM-DD)")
	cmd.Flags().String("out", "reconciliation.xlsx", "Output XLSX path")
	return cmd
}
