// Command psp-server is the PSP Engine's process entrypoint: it loads
// configuration, wires the graph, gateway, engine, persistence, and cache
// layers together, and serves the HTTP surface until a shutdown signal
// arrives.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/psp-engine/psp/internal/audit"
	"github.com/psp-engine/psp/internal/config"
	"github.com/psp-engine/psp/internal/domain"
	"github.com/psp-engine/psp/internal/engine"
	"github.com/psp-engine/psp/internal/gateway"
	"github.com/psp-engine/psp/internal/graph"
	"github.com/psp-engine/psp/internal/platform/cache"
	"github.com/psp-engine/psp/internal/platform/httpapi"
	"github.com/psp-engine/psp/internal/platform/logging"
	"github.com/psp-engine/psp/internal/platform/persistence"
	"github.com/psp-engine/psp/internal/router"
)

func main() {
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if err := configManager.Validate(); err != nil {
		log.Fatalf("configuration validation failed: %v", err)
	}
	cfg := configManager.GetConfig()

	logger := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	logger.WithFields(logrus.Fields{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("starting PSP Engine")

	kg := graph.New()
	gw := gateway.New(nil, logger)
	for modelID, ep := range cfg.Models {
		gw.RegisterEndpoint(gateway.Endpoint{
			Model:     modelID,
			URL:       ep.BaseURL,
			APIKeyEnv: ep.APIKeyEnv,
			RPM:       ep.RateLimit,
			TPM:       ep.TokenLimit,
			MaxTokens: ep.MaxTokens,
		})
	}

	responseCache, err := cache.NewResponseCache(cfg.Cache.RedisURL, cfg.Cache.DefaultTTL)
	if err != nil {
		logger.WithError(err).Warn("response cache unavailable, continuing without it")
	} else {
		gw.SetResponseCache(responseCache)
		defer responseCache.Close()
	}

	sessionCache := cache.NewSessionResultCache(redisAddr(cfg.Cache.RedisURL), cfg.Cache.DefaultTTL)
	defer sessionCache.Close()

	eng := engine.New(kg, gw, nil, logger, engine.Options{
		RouterOptions: router.Options{},
	})
	for modelID, ep := range cfg.Models {
		eng.RegisterModel(router.ModelCapability{
			Model:    modelID,
			Provider: ep.Provider,
			Healthy:  true,
		})
	}

	closeStore := wireAuditStorage(context.Background(), cfg, eng, logger)
	if closeStore != nil {
		defer closeStore()
	}

	eng.Initialize(true, nil)

	srv := httpapi.NewServer(cfg.Server, eng, sessionCache, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received, draining connections")
		cancel()
	}()

	if err := srv.Start(ctx); err != nil {
		logger.WithError(err).Fatal("httpapi server exited with error")
	}
	logger.Info("PSP Engine stopped")
}

// wireAuditStorage connects the durable audit archive and registers a
// Trail archiver that persists records dropped from memory once the
// in-process trail exceeds its retention limit. It prefers Postgres
// (running migrations first); if Postgres cannot be reached it falls
// back to a local SQLite store under the lite data directory, so the
// engine still starts for local development without a database.
func wireAuditStorage(ctx context.Context, cfg *domain.Config, eng *engine.Engine, logger *logrus.Logger) func() {
	if cfg.Database.Host != "" {
		db, err := persistence.Connect(ctx, cfg.Database, logger)
		if err == nil {
			runner, merr := persistence.NewMigrationRunner(persistence.ConnectionString(cfg.Database), "internal/platform/persistence/migrations", logger)
			if merr != nil {
				logger.WithError(merr).Warn("could not build migration runner, skipping migrations")
			} else {
				if uerr := runner.Up(ctx); uerr != nil {
					logger.WithError(uerr).Warn("audit schema migration failed")
				}
				runner.Close()
			}

			repo := persistence.NewAuditRepository(db, logger)
			eng.AuditTrail().SetArchiver(func(rec audit.Record) {
				if aerr := repo.Archive(context.Background(), rec); aerr != nil {
					logger.WithError(aerr).Warn("failed to archive audit record to postgres")
				}
			})
			logger.Info("audit trail archiving to postgres")
			return db.Close
		}
		logger.WithError(err).Warn("postgres unreachable, falling back to local sqlite audit store")
	}

	lite := config.DefaultLiteConfig()
	if derr := lite.EnsureDataDir(); derr != nil {
		logger.WithError(derr).Warn("could not create local data directory, audit trail will not be archived")
		return nil
	}

	store, err := persistence.OpenLiteStore(filepath.Clean(lite.AuditArchivePath()), logger)
	if err != nil {
		logger.WithError(err).Warn("could not open local sqlite audit store, audit trail will not be archived")
		return nil
	}

	eng.AuditTrail().SetArchiver(func(rec audit.Record) {
		if aerr := store.Archive(context.Background(), rec); aerr != nil {
			logger.WithError(aerr).Warn("failed to archive audit record to sqlite")
		}
	})
	logger.WithField("path", lite.AuditArchivePath()).Info("audit trail archiving to local sqlite")
	return func() { store.Close() }
}

func redisAddr(redisURL string) string {
	addr := strings.TrimPrefix(redisURL, "redis://")
	addr = strings.TrimPrefix(addr, "rediss://")
	if i := strings.Index(addr, "/"); i >= 0 {
		addr = addr[:i]
	}
	return addr
}
