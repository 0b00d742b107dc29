// Package gateway is the remote call gateway used by the orchestrator. It
// invokes the billing tools over MCP and returns their payloads as raw JSON.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"billing-mcp/internal/envelope"
	tools "billing-mcp/internal/mcp"
)

const defaultCallTimeout = 60 * time.Second

var (
	// ErrEmptyResult is returned when a tool produced no text content.
	ErrEmptyResult = errors.New("tool returned no content")
	// ErrUnknownTransport is returned for an unsupported transport name.
	ErrUnknownTransport = errors.New("unknown gateway transport")
)

// ToolError reports a tool that ran but signalled failure.
type ToolError struct {
	Tool    string
	Message string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s failed: %s", e.Tool, e.Message)
}

// Options selects how to reach the MCP server.
type Options struct {
	Transport   string
	Server      *server.MCPServer
	Command     string
	Env         []string
	Args        []string
	SSEURL      string
	CallTimeout time.Duration
}

// Client calls billing tools through an MCP client session.
type Client struct {
	mcp         *client.Client
	callTimeout time.Duration
}

// Connect opens and initializes an MCP session using the configured
// transport.
func Connect(ctx context.Context, opts Options) (*Client, error) {
	var (
		c   *client.Client
		err error
	)
	switch opts.Transport {
	case "inprocess", "":
		if opts.Server == nil {
			return nil, errors.New("in-process transport requires a server")
		}
		c, err = client.NewInProcessClient(opts.Server)
		if err == nil {
			err = c.Start(ctx)
		}
	case "stdio":
		// the stdio client spawns the subprocess on creation
		c, err = client.NewStdioMCPClient(opts.Command, opts.Env, opts.Args...)
	case "sse":
		c, err = client.NewSSEMCPClient(opts.SSEURL)
		if err == nil {
			err = c.Start(ctx)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTransport, opts.Transport)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to start MCP client (%s): %w", opts.Transport, err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.Capabilities = mcp.ClientCapabilities{}
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "billing-orchestrator",
		Version: "1.0.0",
	}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to initialize MCP client: %w", err)
	}

	return New(c, opts.CallTimeout), nil
}

// New wraps an initialized MCP client.
func New(c *client.Client, callTimeout time.Duration) *Client {
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}
	return &Client{mcp: c, callTimeout: callTimeout}
}

// Close ends the MCP session.
func (c *Client) Close() error {
	return c.mcp.Close()
}

// ListInvoices calls the invoice list tool.
func (c *Client) ListInvoices(ctx context.Context, customerID int64, msisidn string) (json.RawMessage, error) {
	return c.call(ctx, tools.ToolListInvoices, map[string]any{
		"customerId": customerID,
		"msisidn":    msisidn,
	})
}

// GetInvoiceLink calls the invoice link tool.
func (c *Client) GetInvoiceLink(ctx context.Context, billingInvoiceNumber string, isCyclicInvoice bool) (json.RawMessage, error) {
	return c.call(ctx, tools.ToolInvoiceLink, map[string]any{
		"billingInvoiceNumber": billingInvoiceNumber,
		"isCyclicInvoice":      isCyclicInvoice,
	})
}

// GetPaymentDetails calls the payment details tool.
func (c *Client) GetPaymentDetails(ctx context.Context, customerIdentification, idType, document string) (json.RawMessage, error) {
	return c.call(ctx, tools.ToolPaymentDetails, map[string]any{
		"customerIdentification": customerIdentification,
		"type":                   idType,
		"document":               document,
	})
}

func (c *Client) call(ctx context.Context, name string, args map[string]any) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	result, err := c.mcp.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("tool %s: %w", name, err)
	}

	text := resultText(result)
	if result.IsError {
		return nil, &ToolError{Tool: name, Message: text}
	}
	return toPayload(text)
}

func resultText(result *mcp.CallToolResult) string {
	var parts []string
	for _, content := range result.Content {
		if tc, ok := mcp.AsTextContent(content); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// toPayload returns JSON text as-is and wraps anything else in a
// raw_response envelope.
func toPayload(text string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, ErrEmptyResult
	}
	if json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed), nil
	}
	return json.Marshal(map[string]string{envelope.RawField: text})
}
