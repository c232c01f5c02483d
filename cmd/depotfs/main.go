package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/marmos91/depotfs/internal/logger"
	"github.com/marmos91/depotfs/pkg/auth"
	"github.com/marmos91/depotfs/pkg/authority"
	"github.com/marmos91/depotfs/pkg/config"
	"github.com/marmos91/depotfs/pkg/depot"
	"github.com/marmos91/depotfs/pkg/engine"
	"github.com/marmos91/depotfs/pkg/gc"
	"github.com/marmos91/depotfs/pkg/metrics"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (default: "+config.GetDefaultConfigPath()+")")
	bootstrapRealm := flag.String("bootstrap-realm", "", "Realm to bootstrap at startup (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.SetLevel(cfg.Logging.Level)
	logger.SetFormat(cfg.Logging.Format)
	if err := logger.SetOutput(cfg.Logging.Output); err != nil {
		log.Fatalf("Failed to configure log output: %v", err)
	}

	fmt.Println("depotfs - content-addressed depot service")
	logger.Info("Log level set to: %s", cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, err := config.BuildStores(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to build stores: %v", err)
	}
	defer func() {
		if err := stores.Close(); err != nil {
			logger.Error("Error closing stores: %v", err)
		}
	}()

	tokenAuthority := authority.NewAuthority(stores.Tokens, stores.Dag)
	depots := depot.NewService(stores.Depots)

	authenticator := auth.NewAuthenticator(tokenAuthority, stores.Roles, stores.PubKeys, auth.AuthenticatorConfig{
		IssuerURL:    cfg.Auth.IssuerURL,
		AdminUsers:   cfg.Auth.AdminUsers,
		MaxClockSkew: cfg.Auth.MaxClockSkew,
		RateLimit:    cfg.Auth.RateLimit,
		RateBurst:    cfg.Auth.RateBurst,
	})
	if cfg.Auth.IssuerURL != "" {
		logger.Info("JWT access tokens accepted from issuer %s", cfg.Auth.IssuerURL)
	} else {
		logger.Info("JWT path disabled; opaque tokens and signed requests only")
	}

	// Seed allow-listed admins so they hold the role before their first
	// request.
	for _, userID := range cfg.Auth.AdminUsers {
		if _, err := authenticator.SetRole(ctx, userID, auth.RoleAdmin); err != nil {
			log.Fatalf("Failed to seed admin role for %s: %v", userID, err)
		}
		logger.Debug("Seeded admin role for %s", userID)
	}

	metrics.InitRegistry()

	eng := engine.NewEngine(engine.Config{
		Blobs:     stores.Blobs,
		Dag:       stores.Dag,
		Ledger:    stores.Ledger,
		Authority: tokenAuthority,
		Depots:    depots,
		Metrics:   metrics.NewEngineMetrics(),
	})

	if *bootstrapRealm != "" {
		d, err := eng.BootstrapRealm(ctx, *bootstrapRealm)
		if err != nil {
			log.Fatalf("Failed to bootstrap realm %q: %v", *bootstrapRealm, err)
		}
		logger.Info("Realm %s ready with depot %s", *bootstrapRealm, d.ID)

		accountant := gc.NewAccountant(stores.Dag, stores.Ledger, depots)
		report, err := accountant.AccountRealm(ctx, *bootstrapRealm)
		if err != nil {
			logger.Warn("Startup accounting for %s failed: %v", *bootstrapRealm, err)
		} else {
			logger.Info("Startup accounting: %s", report.Summary())
		}
	}

	logger.Info("depotfs is running. Press Ctrl+C to stop.")
	<-ctx.Done()

	logger.Info("Shutting down (timeout %s)...", cfg.Server.ShutdownTimeout)
}
