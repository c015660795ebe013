package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MertBaran/QA-API-sub001/pkg/cache"
	"github.com/MertBaran/QA-API-sub001/pkg/config"
	"github.com/MertBaran/QA-API-sub001/pkg/datasource"
	_ "github.com/MertBaran/QA-API-sub001/pkg/datasource/mongo"
	_ "github.com/MertBaran/QA-API-sub001/pkg/datasource/postgres"
	"github.com/MertBaran/QA-API-sub001/pkg/httputil"
	"github.com/MertBaran/QA-API-sub001/pkg/observability"
	"github.com/MertBaran/QA-API-sub001/pkg/rbac"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

// AdminPermission guards the RBAC administration API.
const AdminPermission = "roles:manage"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "qa-api: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).
		WithField("service", cfg.Observability.OTelServiceName)

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("qa-api exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)
	defer func() {
		if err := shutdown.Shutdown(context.Background()); err != nil {
			logger.WithError(err).Warn("shutdown finished with errors")
		}
	}()

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		return err
	}
	shutdown.Register("otel", providers.Shutdown)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	backend, err := datasource.Open(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	shutdown.Register("storage", backend.Close)
	if err := backend.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate %s backend: %w", backend.Kind(), err)
	}
	if cfg.Observability.MetricsEnabled {
		backend = datasource.Instrument(backend, metrics)
	}
	logger.WithField("backend", string(backend.Kind())).Info("storage ready")

	opts := []rbac.Option{rbac.WithLogger(logger), rbac.WithMetrics(metrics)}

	health := observability.NewHealthChecker(version).Require("storage", backend)

	c, err := cache.New(ctx, cfg.Cache)
	switch {
	case errors.Is(err, cache.ErrDisabled):
		logger.Info("cache disabled")
	case err != nil:
		return fmt.Errorf("open cache: %w", err)
	default:
		shutdown.Register("cache", func(context.Context) error { return c.Close() })
		health.Optional("cache", c)
		opts = append(opts, rbac.WithCache(c, cfg.Cache.TTL))
		logger.WithField("cache", cfg.Cache.Backend).Info("cache ready")
	}

	permissions := rbac.NewPermissionStore(backend.Permissions(), opts...)
	roles := rbac.NewRoleStore(backend.Roles(), backend.Permissions(), opts...)
	resolver := rbac.NewResolver(backend.Assignments(), backend.Roles(), backend.Permissions(), opts...)
	users := rbac.NewUserRoleStore(backend.Assignments(), roles, resolver, backend.IDs(), opts...)

	if cfg.RBAC.SeedFile != "" {
		seed, err := rbac.LoadSeedFile(cfg.RBAC.SeedFile)
		if err != nil {
			return err
		}
		result, err := rbac.NewSeeder(permissions, roles, opts...).Apply(ctx, seed)
		if err != nil {
			return fmt.Errorf("apply seed: %w", err)
		}
		logger.WithFields(map[string]interface{}{
			"permissions_created": result.PermissionsCreated,
			"roles_created":       result.RolesCreated,
			"memberships_added":   result.MembershipsAdded,
		}).Info("seed applied")
	}

	if cfg.RBAC.SweepEnabled {
		sweeper := rbac.NewSweeper(users, cfg.RBAC.SweepTimeout, opts...)
		if err := sweeper.Start(cfg.RBAC.SweepSchedule); err != nil {
			return err
		}
		shutdown.Register("sweeper", sweeper.Stop)
	}

	guard := rbac.NewMiddleware(resolver, users, backend.IDs())
	router := mux.NewRouter()
	router.Use(observability.HTTPMetricsMiddleware(metrics))
	rbac.NewHandlers(permissions, roles, users, opts...).
		RegisterRoutes(router, guard.RequirePermission(AdminPermission))

	apiHandler := httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(logger),
		httputil.RecoveryMiddleware(logger),
		httputil.MaxBytesMiddleware(cfg.Server.MaxBodyBytes),
		httputil.IdentityMiddleware,
	)(router)

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      otelhttp.NewHandler(apiHandler, "qa-api"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	opsRouter := mux.NewRouter()
	observability.RegisterHealthRoutes(opsRouter, health)
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(opsRouter, registry)
	}
	opsServer := &http.Server{
		Addr:        net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:     opsRouter,
		ReadTimeout: cfg.Server.ReadTimeout,
	}
	shutdown.Register("http", func(ctx context.Context) error {
		return errors.Join(apiServer.Shutdown(ctx), opsServer.Shutdown(ctx))
	})

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range []*http.Server{apiServer, opsServer} {
		srv := srv
		g.Go(func() error {
			logger.WithField("addr", srv.Addr).Info("listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve %s: %w", srv.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		return shutdown.Shutdown(context.Background())
	})

	return g.Wait()
}
