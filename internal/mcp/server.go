package mcp

import (
	"context"
	"fmt"
	"math"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"billing-mcp/internal/config"
)

// Tool names exposed by the billing server.
const (
	ToolListInvoices   = "listado_de_boletas_fija"
	ToolInvoiceLink    = "retrieve_invoice_link"
	ToolPaymentDetails = "deuda_fija"
)

// Backend performs the REST calls behind each tool.
type Backend interface {
	ListInvoices(ctx context.Context, customerID int64, msisidn string) ([]byte, error)
	RetrieveInvoiceLink(ctx context.Context, billingInvoiceNumber string, isCyclicInvoice bool) ([]byte, error)
	DocumentsToPay(ctx context.Context, customerIdentification, idType, document string) ([]byte, error)
}

type Server struct {
	mcpServer *server.MCPServer
	backend   Backend
}

// NewServer registers one tool per active catalog endpoint.
func NewServer(backend Backend, catalog config.Catalog) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"billing-api-mcp",
			"1.0.0",
			server.WithToolCapabilities(true),
		),
		backend: backend,
	}

	s.registerTools(catalog)
	return s
}

func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools(catalog config.Catalog) {
	if catalog.ListInvoices.Active {
		s.mcpServer.AddTool(
			mcp.NewTool(
				ToolListInvoices,
				mcp.WithDescription("Retrieves a list of invoices for a customer."),
				mcp.WithNumber("customerId", mcp.Required(), mcp.Description("Customer account ID")),
				mcp.WithString("msisidn", mcp.Required(), mcp.Description("Customer phone number")),
			),
			s.handleListInvoices,
		)
	}

	if catalog.InvoiceLink.Active {
		s.mcpServer.AddTool(
			mcp.NewTool(
				ToolInvoiceLink,
				mcp.WithDescription("Retrieves the download link of an invoice."),
				mcp.WithString("billingInvoiceNumber", mcp.Required(), mcp.Description("Billing invoice number")),
				mcp.WithBoolean("isCyclicInvoice", mcp.Required(), mcp.Description("Whether the invoice is a cyclic (CY) document")),
			),
			s.handleInvoiceLink,
		)
	}

	if catalog.PaymentDetails.Active {
		s.mcpServer.AddTool(
			mcp.NewTool(
				ToolPaymentDetails,
				mcp.WithDescription("Retrieves documents to pay for a customer."),
				mcp.WithString("customerIdentification", mcp.Required(), mcp.Description("Customer identification, e.g. RUT")),
				mcp.WithString("type", mcp.Required(), mcp.Description("Identification type")),
				mcp.WithString("document", mcp.Required(), mcp.Description("Document number")),
			),
			s.handlePaymentDetails,
		)
	}
}

func (s *Server) handleListInvoices(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	customerID, err := request.RequireFloat("customerId")
	if err != nil {
		return mcp.NewToolResultError("Missing required parameter: customerId"), nil
	}
	if customerID != math.Trunc(customerID) {
		return mcp.NewToolResultError("Invalid parameter: customerId must be an integer"), nil
	}

	msisidn, err := request.RequireString("msisidn")
	if err != nil || msisidn == "" {
		return mcp.NewToolResultError("Missing required parameter: msisidn"), nil
	}

	data, err := s.backend.ListInvoices(ctx, int64(customerID), msisidn)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list invoices: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleInvoiceLink(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	number, err := request.RequireString("billingInvoiceNumber")
	if err != nil || number == "" {
		return mcp.NewToolResultError("Missing required parameter: billingInvoiceNumber"), nil
	}

	cyclic, err := request.RequireBool("isCyclicInvoice")
	if err != nil {
		return mcp.NewToolResultError("Missing required parameter: isCyclicInvoice"), nil
	}

	data, err := s.backend.RetrieveInvoiceLink(ctx, number, cyclic)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to retrieve invoice link: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handlePaymentDetails(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := make([]string, 0, 3)
	for _, name := range []string{"customerIdentification", "type", "document"} {
		value, err := request.RequireString(name)
		if err != nil || value == "" {
			return mcp.NewToolResultError("Missing required parameter: " + name), nil
		}
		args = append(args, value)
	}

	data, err := s.backend.DocumentsToPay(ctx, args[0], args[1], args[2])
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to retrieve payment details: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ServeStdio serves the tools over stdin/stdout until the input closes.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

func MountHTTPHandlers(mux *http.ServeMux, mcpServer *server.MCPServer) {
	// Use SSE server for /mcp/sse and /mcp/message endpoints
	sseServer := server.NewSSEServer(mcpServer, server.WithStaticBasePath("/mcp"))

	mux.HandleFunc("/mcp/sse", sseServer.ServeHTTP)
	mux.HandleFunc("/mcp/message", sseServer.ServeHTTP)
}
