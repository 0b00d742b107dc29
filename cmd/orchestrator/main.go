package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"

	"billing-mcp/internal/app"
	"billing-mcp/internal/config"
	"billing-mcp/internal/orchestrator"
	"billing-mcp/internal/report"
)

var (
	envFile    string
	customerID int64
	msisidn    string
	documentID string
)

var rootCmd = &cobra.Command{
	Use:           "billing-orchestrator",
	Short:         "Billing workflow orchestrator over the billing MCP tools",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the billing workflow for one customer and save the report",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWorkflow(cmd)
	},
}

var serveMCPCmd = &cobra.Command{
	Use:   "serve-mcp",
	Short: "Serve the billing tools over MCP stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(envFile)
		if err != nil {
			return err
		}
		// stdout carries the protocol; diagnostics go to stderr or the log file
		return app.NewToolServer(cfg).ServeStdio()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "Path to .env file")
	runCmd.Flags().Int64Var(&customerID, "customer-id", 0, "Customer account id (defaults to workflow.customer_id)")
	runCmd.Flags().StringVar(&msisidn, "msisidn", "", "Phone number of the line (defaults to workflow.msisidn)")
	runCmd.Flags().StringVar(&documentID, "document-id", "", "Document for the payment details lookup (defaults to the customer id)")
	rootCmd.AddCommand(runCmd, serveMCPCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runWorkflow(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig(envFile)
	if err != nil {
		return err
	}
	// stdout carries the progress lines and summary
	logger, err := app.NewLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	in := orchestrator.Input{
		CustomerID: cfg.Workflow.CustomerID,
		MSISIDN:    cfg.Workflow.MSISIDN,
		DocumentID: cfg.Workflow.DocumentID,
	}
	if cmd.Flags().Changed("customer-id") {
		in.CustomerID = customerID
	}
	if cmd.Flags().Changed("msisidn") {
		in.MSISIDN = msisidn
	}
	if cmd.Flags().Changed("document-id") {
		in.DocumentID = documentID
	}
	if in.CustomerID <= 0 || in.MSISIDN == "" {
		return errors.New("customer id and msisidn are required (flags or workflow.* config)")
	}

	store, err := report.Open(ctx, cfg.Report.BucketURL, cfg.Report.Key)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	gw, err := app.ConnectGateway(ctx, cfg, app.NewToolServer(cfg), logger)
	if err != nil {
		return err
	}
	defer func() { _ = gw.Close() }()

	o := orchestrator.New(gw,
		orchestrator.WithOutput(cmd.OutOrStdout()),
		orchestrator.WithLogger(logger.With("customer_id", in.CustomerID)),
		orchestrator.WithSink(store),
	)
	return o.Execute(ctx, in)
}
