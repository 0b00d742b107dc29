// Package app wires configuration into the runtime components shared by
// the command binaries.
package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"billing-mcp/internal/apim"
	"billing-mcp/internal/config"
	"billing-mcp/internal/gateway"
	"billing-mcp/internal/logging"
	"billing-mcp/internal/mcp"
)

// NewLogger builds the application logger from the log section, writing
// entries to out.
func NewLogger(cfg *config.Config, out io.Writer) (*logging.Logger, error) {
	return logging.New(logging.Options{
		Output:     out,
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
}

// NewToolServer builds the MCP tool server backed by the REST catalog.
func NewToolServer(cfg *config.Config) *mcp.Server {
	return mcp.NewServer(apim.NewClient(cfg.APIM, cfg.Catalog), cfg.Catalog)
}

// ConnectGateway opens the MCP session the orchestrator calls tools
// through. The in-process transport serves tools from tools, which may be
// nil for the other transports.
func ConnectGateway(ctx context.Context, cfg *config.Config, tools *mcp.Server, logger *logging.Logger) (*gateway.Client, error) {
	opts := gateway.Options{
		Transport:   cfg.Gateway.Transport,
		Command:     cfg.Gateway.Command,
		Env:         os.Environ(),
		Args:        cfg.Gateway.Args,
		SSEURL:      cfg.Gateway.SSEURL,
		CallTimeout: cfg.Gateway.CallTimeout,
	}
	if tools != nil {
		opts.Server = tools.GetMCPServer()
	}

	logger.Debug("connecting gateway", "transport", opts.Transport, "command", opts.Command, "sse_url", opts.SSEURL)
	gw, err := gateway.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	logger.Info("gateway connected", "transport", opts.Transport)
	return gw, nil
}

// OpenDatabase connects to PostgreSQL and checks the connection.
func OpenDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*pgxpool.Pool, error) {
	logger.Debug("Initializing database connection")

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}
