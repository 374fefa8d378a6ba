package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/alecgard/tally/internal/account"
	"github.com/alecgard/tally/internal/api"
	"github.com/alecgard/tally/internal/catalog"
	"github.com/alecgard/tally/internal/config"
	"github.com/alecgard/tally/internal/history"
	"github.com/alecgard/tally/internal/identity"
	"github.com/alecgard/tally/internal/metrics"
	"github.com/alecgard/tally/internal/purchase"
	"github.com/alecgard/tally/internal/ratelimit"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Tally API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if cfg.Identity.CompanyID == "" {
		return fmt.Errorf("identity.company_id must be configured")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return err
	}
	slog.Info("connected to database")

	accountStore := account.NewStore(pool)
	planStore := catalog.NewStore(pool)
	historyStore := history.NewStore(pool)

	workflow := purchase.NewWorkflow(accountStore, planStore, historyStore, purchase.Options{
		RequireApproval: cfg.Purchase.RequireApproval,
		WindowDays:      cfg.Purchase.DefaultWindowDays,
	}, logger)

	verifier, err := buildVerifier(cfg)
	if err != nil {
		return err
	}

	limiter := ratelimit.New(cfg.RateLimit.Default, cfg.RateLimit.Window)

	m := metrics.New()
	m.RegisterDBPoolCollector(func() (total, idle, acquired int32) {
		stat := pool.Stat()
		return stat.TotalConns(), stat.IdleConns(), stat.AcquiredConns()
	})

	router := api.NewRouter(api.RouterDeps{
		Accounts:       accountStore,
		Plans:          planStore,
		Workflow:       workflow,
		History:        historyStore,
		Verifier:       verifier,
		Limiter:        limiter,
		Metrics:        m,
		CompanyID:      cfg.Identity.CompanyID,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		DBPing:         pool.Ping,
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", cfg.Addr(), "company_id", cfg.Identity.CompanyID)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-sigCh
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	return srv.Shutdown(shutdownCtx)
}

// buildVerifier picks the identity verification backend from config.
func buildVerifier(cfg *config.Config) (identity.Verifier, error) {
	switch cfg.Identity.Mode {
	case "static":
		return identity.NewStaticVerifier(cfg.Identity.StaticTokens), nil
	case "remote":
		if cfg.Identity.VerifyURL == "" {
			return nil, fmt.Errorf("identity.verify_url must be set in remote mode")
		}
		return identity.NewRemoteVerifier(cfg.Identity.VerifyURL, cfg.Identity.APIKey, cfg.Identity.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown identity mode %q", cfg.Identity.Mode)
	}
}
