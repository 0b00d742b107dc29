package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/viper"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"

	"billing-mcp/internal/api"
	"billing-mcp/internal/app"
	"billing-mcp/internal/auth"
	"billing-mcp/internal/config"
	"billing-mcp/internal/mcp"
	"billing-mcp/internal/report"
	"billing-mcp/internal/repository"
	"billing-mcp/internal/services"
	"billing-mcp/internal/tls"
)

func main() {
	ctx := context.Background()

	// Parse command line flags
	envFile := flag.String("env", "", "Path to .env file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*envFile)
	if err != nil {
		log.Fatalf("Configuration loading failed: %v", err)
	}

	logger, err := app.NewLogger(cfg, os.Stdout)
	if err != nil {
		log.Fatalf("Logger initialization failed: %v", err)
	}
	logger.Info("Configuration loaded",
		"environment", cfg.Environment,
		"okta_domain", cfg.Auth.OktaDomain,
		"gateway_transport", cfg.Gateway.Transport,
		"report_bucket", cfg.Report.BucketURL,
		"config_file", viper.ConfigFileUsed(),
	)

	logger.Info("Starting Billing Orchestrator Service")

	// Optional run history
	var store repository.RunStore
	checks := map[string]api.Pinger{}
	if cfg.DB.Enable {
		dbPool, err := app.OpenDatabase(ctx, cfg, logger)
		if err != nil {
			log.Fatalf("Database initialization failed: %v", err)
		}
		defer dbPool.Close()

		runStore := repository.NewPostgresRunStore(dbPool)
		if err := runStore.EnsureSchema(ctx); err != nil {
			log.Fatalf("Schema initialization failed: %v", err)
		}
		store = runStore
		checks["database"] = runStore
		logger.Info("Database connected")
	}

	reports, err := report.Open(ctx, cfg.Report.BucketURL, cfg.Report.Key)
	if err != nil {
		log.Fatalf("Report bucket initialization failed: %v", err)
	}
	defer func() { _ = reports.Close() }()

	// The tool server is exposed over SSE and, for the in-process
	// transport, also backs the orchestrator's own gateway session.
	tools := app.NewToolServer(cfg)
	gw, err := app.ConnectGateway(ctx, cfg, tools, logger)
	if err != nil {
		log.Fatalf("Gateway initialization failed: %v", err)
	}
	defer func() { _ = gw.Close() }()

	runService := services.NewRunService(gw, store, reports, logger)
	logger.Info("Service layer initialized", "history", runService.HistoryEnabled())

	// Create Echo server
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = api.ProblemErrorHandler

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(otelecho.Middleware("billing-mcp"))

	authz, err := auth.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("auth initialization failed: %v", err)
	}

	e.GET("/health", api.NewHandler(checks).HandleHealth)

	// Mount REST API handlers
	apiGroup := e.Group("/api/v1")
	apiGroup.Use(echo.WrapMiddleware(authz.RequireAuth))
	api.RegisterHandlers(apiGroup, api.NewServer(runService))

	logger.Info("REST API handlers mounted")

	// Mount MCP protocol handlers
	mcpHandlers := http.NewServeMux()
	mcp.MountHTTPHandlers(mcpHandlers, tools.GetMCPServer())
	e.Any("/mcp/*", echo.WrapHandler(authz.RequireAuth(mcpHandlers)))

	logger.Info("MCP protocol handlers mounted")

	// expose OpenAPI spec (with runtime substitution) and Swagger UI
	e.GET("/openapi.yaml", echo.WrapHandler(api.SpecHandler(cfg.Auth.OktaDomain)))
	e.GET("/docs", echo.WrapHandler(api.DocsHandler(cfg.Auth.ClientID)))
	e.GET("/docs/oauth2-redirect.html", echo.WrapHandler(http.HandlerFunc(api.OAuth2RedirectHandler)))

	addr := cfg.Server.Addr
	server := &http.Server{
		Addr:        addr,
		Handler:     e,
		ReadTimeout: 15 * time.Second,
		// runs execute synchronously and may take several tool calls
		WriteTimeout: 3*cfg.Gateway.CallTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown handling
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "address", addr, "tls", cfg.TLS.Enable)
		if !cfg.TLS.Enable {
			serverErrors <- server.ListenAndServe()
			return
		}
		if cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "" {
			serverErrors <- errors.New("TLS enabled but cert/key file not provided")
			return
		}
		if len(cfg.TLS.Hostnames) > 0 {
			created, err := tls.EnsureCertificate(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.Hostnames)
			if err != nil {
				logger.Error("failed to generate self-signed cert", "error", err)
			} else if created {
				logger.Warn("generated self-signed certificate", "cert", cfg.TLS.CertFile, "hosts", cfg.TLS.Hostnames)
			}
		}
		serverErrors <- server.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
	}()

	// Wait for shutdown signal
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "error", err)
			os.Exit(1)
		}
	case sig := <-shutdown:
		logger.Info("Shutdown signal received", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
			if err := server.Close(); err != nil {
				logger.Error("Server close error", "error", err)
			}
		}

		logger.Info("Server stopped gracefully")
	}
}
