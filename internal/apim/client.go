// Package apim calls the upstream billing REST APIs described by the
// endpoint catalog, either through the APIM gateway or directly.
package apim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"billing-mcp/internal/config"
)

const subscriptionKeyHeader = "Ocp-Apim-Subscription-Key"

var (
	// ErrEndpointInactive is returned when a catalog endpoint is disabled.
	ErrEndpointInactive = errors.New("endpoint is not active")
	// ErrGatewayNotConfigured is returned when a gateway-routed endpoint is
	// called without an APIM base URL.
	ErrGatewayNotConfigured = errors.New("APIM base URL not configured")
)

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status code %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// Client is an HTTP client for the billing catalog endpoints.
type Client struct {
	cfg     config.APIM
	catalog config.Catalog
	apim    *http.Client
	direct  *http.Client
}

// NewClient creates a Client. Direct endpoints authenticate with OAuth2
// client credentials when a token URL is configured, otherwise with the
// static bearer token.
func NewClient(cfg config.APIM, catalog config.Catalog) *Client {
	return &Client{
		cfg:     cfg,
		catalog: catalog,
		apim:    &http.Client{Timeout: cfg.Timeout},
		direct:  &http.Client{Timeout: cfg.Timeout, Transport: bearerTransport(cfg)},
	}
}

func bearerTransport(cfg config.APIM) http.RoundTripper {
	var src oauth2.TokenSource
	switch {
	case cfg.OAuth.TokenURL != "":
		cc := &clientcredentials.Config{
			ClientID:     cfg.OAuth.ClientID,
			ClientSecret: cfg.OAuth.ClientSecret,
			TokenURL:     cfg.OAuth.TokenURL,
			Scopes:       cfg.OAuth.Scopes,
		}
		src = cc.TokenSource(context.Background())
	case cfg.BearerToken != "":
		src = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.BearerToken, TokenType: "Bearer"})
	default:
		return http.DefaultTransport
	}
	return &oauth2.Transport{Source: oauth2.ReuseTokenSource(nil, src), Base: http.DefaultTransport}
}

// ListInvoices retrieves the invoice list for a customer line.
func (c *Client) ListInvoices(ctx context.Context, customerID int64, msisidn string) ([]byte, error) {
	return c.do(ctx, "list_invoices", c.catalog.ListInvoices, url.Values{
		"customerId": {strconv.FormatInt(customerID, 10)},
		"msisidn":    {msisidn},
	})
}

// RetrieveInvoiceLink retrieves the download link for an invoice.
func (c *Client) RetrieveInvoiceLink(ctx context.Context, billingInvoiceNumber string, isCyclicInvoice bool) ([]byte, error) {
	return c.do(ctx, "invoice_link", c.catalog.InvoiceLink, url.Values{
		"billingInvoiceNumber": {billingInvoiceNumber},
		"isCyclicInvoice":      {strconv.FormatBool(isCyclicInvoice)},
	})
}

// DocumentsToPay retrieves the outstanding payment documents for a customer.
func (c *Client) DocumentsToPay(ctx context.Context, customerIdentification, idType, document string) ([]byte, error) {
	return c.do(ctx, "payment_details", c.catalog.PaymentDetails, url.Values{
		"customerIdentification": {customerIdentification},
		"type":                   {idType},
		"document":               {document},
	})
}

// do sends one catalog request. Parameters named by a {placeholder} in the
// endpoint path are substituted there; the rest go to the query string, or
// the form body for POST endpoints.
func (c *Client) do(ctx context.Context, name string, ep config.Endpoint, params url.Values) ([]byte, error) {
	if !ep.Active {
		return nil, fmt.Errorf("%s: %w", name, ErrEndpointInactive)
	}

	target, params, err := c.resolve(ep, params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	var body io.Reader
	method := ep.Method
	if method == "" {
		method = http.MethodGet
	}
	if method == http.MethodPost {
		body = strings.NewReader(params.Encode())
	} else if len(params) > 0 {
		target += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	httpClient := c.direct
	if ep.UseGateway {
		httpClient = c.apim
		req.Header.Set(subscriptionKeyHeader, c.cfg.SubscriptionKey)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to make request: %w", name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read response body: %w", name, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Endpoint: name, StatusCode: resp.StatusCode, Body: string(data)}
	}
	return data, nil
}

func (c *Client) resolve(ep config.Endpoint, params url.Values) (string, url.Values, error) {
	var target string
	if ep.UseGateway {
		if c.cfg.BaseURL == "" {
			return "", nil, ErrGatewayNotConfigured
		}
		target = c.cfg.BaseURL + ep.Path
	} else {
		target = ep.URL
	}

	query := url.Values{}
	for k, v := range params {
		placeholder := "{" + k + "}"
		if strings.Contains(target, placeholder) {
			target = strings.ReplaceAll(target, placeholder, url.PathEscape(v[0]))
			continue
		}
		query[k] = v
	}
	return target, query, nil
}
