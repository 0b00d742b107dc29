package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the configuration for the application.
type Config struct {
	Environment   string `mapstructure:"environment"`
	DevModeBypass bool   `mapstructure:"dev_mode_bypass"`

	Log struct {
		Level      string `mapstructure:"level" validate:"oneof=debug info warn error"`
		Format     string `mapstructure:"format" validate:"oneof=text json"`
		File       string `mapstructure:"file"`
		MaxSizeMB  int    `mapstructure:"max_size_mb"`
		MaxBackups int    `mapstructure:"max_backups"`
	} `mapstructure:"log"`

	APIM    APIM    `mapstructure:"apim"`
	Catalog Catalog `mapstructure:"catalog"`

	Gateway struct {
		Transport   string        `mapstructure:"transport" validate:"oneof=inprocess stdio sse"`
		Command     string        `mapstructure:"command" validate:"required_if=Transport stdio"`
		Args        []string      `mapstructure:"args"`
		SSEURL      string        `mapstructure:"sse_url" validate:"required_if=Transport sse"`
		CallTimeout time.Duration `mapstructure:"call_timeout" validate:"gt=0"`
	} `mapstructure:"gateway"`

	Report struct {
		BucketURL string `mapstructure:"bucket_url" validate:"required"`
		Key       string `mapstructure:"key" validate:"required"`
	} `mapstructure:"report"`

	Workflow struct {
		CustomerID int64  `mapstructure:"customer_id"`
		MSISIDN    string `mapstructure:"msisidn"`
		DocumentID string `mapstructure:"document_id"`
	} `mapstructure:"workflow"`

	DB struct {
		Enable   bool   `mapstructure:"enable"`
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"db"`

	Auth struct {
		OktaDomain string `mapstructure:"okta_domain"`
		ClientID   string `mapstructure:"client_id"`
	} `mapstructure:"auth"`

	Server struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"server"`

	TLS struct {
		Enable    bool     `mapstructure:"enable"`
		CertFile  string   `mapstructure:"cert_file"`
		KeyFile   string   `mapstructure:"key_file"`
		Hostnames []string `mapstructure:"hostnames"`
	} `mapstructure:"tls"`
}

// APIM configures access to the upstream REST APIs, either through the
// APIM gateway (subscription key) or directly (bearer token).
type APIM struct {
	BaseURL         string        `mapstructure:"base_url"`
	SubscriptionKey string        `mapstructure:"subscription_key"`
	BearerToken     string        `mapstructure:"bearer_token"`
	Timeout         time.Duration `mapstructure:"timeout" validate:"gt=0"`
	OAuth           struct {
		TokenURL     string   `mapstructure:"token_url"`
		ClientID     string   `mapstructure:"client_id"`
		ClientSecret string   `mapstructure:"client_secret"`
		Scopes       []string `mapstructure:"scopes"`
	} `mapstructure:"oauth"`
}

// Endpoint is a single entry in the REST catalog. Endpoints routed through
// the gateway use a path relative to APIM.BaseURL; direct endpoints carry an
// absolute URL.
type Endpoint struct {
	Method     string `mapstructure:"method" validate:"oneof=GET POST"`
	Path       string `mapstructure:"path"`
	URL        string `mapstructure:"url"`
	UseGateway bool   `mapstructure:"use_gateway"`
	Active     bool   `mapstructure:"active"`
}

// Catalog lists the REST endpoints exposed as gateway tools.
type Catalog struct {
	ListInvoices   Endpoint `mapstructure:"list_invoices"`
	InvoiceLink    Endpoint `mapstructure:"invoice_link"`
	PaymentDetails Endpoint `mapstructure:"payment_details"`
}

var defaults = map[string]any{
	"environment":     "DEV",
	"dev_mode_bypass": false,

	"log.level":       "info",
	"log.format":      "text",
	"log.file":        "",
	"log.max_size_mb": 50,
	"log.max_backups": 3,

	"apim.base_url":            "",
	"apim.subscription_key":    "",
	"apim.bearer_token":        "",
	"apim.timeout":             15 * time.Second,
	"apim.oauth.token_url":     "",
	"apim.oauth.client_id":     "",
	"apim.oauth.client_secret": "",
	"apim.oauth.scopes":        []string{},

	"catalog.list_invoices.method":      "GET",
	"catalog.list_invoices.path":        "/bill/V2/retriveInvoice/{customerId}",
	"catalog.list_invoices.url":         "",
	"catalog.list_invoices.use_gateway": true,
	"catalog.list_invoices.active":      true,

	"catalog.invoice_link.method":      "GET",
	"catalog.invoice_link.path":        "/bill/V2/retrieveInvoiceLink/{billingInvoiceNumber}",
	"catalog.invoice_link.url":         "",
	"catalog.invoice_link.use_gateway": true,
	"catalog.invoice_link.active":      true,

	"catalog.payment_details.method":      "GET",
	"catalog.payment_details.path":        "",
	"catalog.payment_details.url":         "https://apix.movistar.cl/paymentManagement/V3/documentsToPay",
	"catalog.payment_details.use_gateway": false,
	"catalog.payment_details.active":      true,

	"gateway.transport":    "inprocess",
	"gateway.command":      "",
	"gateway.args":         []string{"serve-mcp"},
	"gateway.sse_url":      "",
	"gateway.call_timeout": 60 * time.Second,

	"report.bucket_url": "file://./reports?create_dir=true",
	"report.key":        "orchestrator_results.json",

	"workflow.customer_id": 0,
	"workflow.msisidn":     "",
	"workflow.document_id": "",

	"db.enable":   false,
	"db.host":     "localhost",
	"db.port":     5432,
	"db.user":     "",
	"db.password": "",
	"db.name":     "",
	"db.sslmode":  "disable",

	"auth.okta_domain": "",
	"auth.client_id":   "",

	"server.addr": ":8080",

	"tls.enable":    false,
	"tls.cert_file": "",
	"tls.key_file":  "",
	"tls.hostnames": []string{},
}

// LoadConfig loads the configuration from an optional .env file, a config
// file and the environment, in increasing order of precedence.
func LoadConfig(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	// normalize issuer and gateway urls (strip trailing slash if any)
	config.Auth.OktaDomain = trimURL(config.Auth.OktaDomain)
	config.APIM.BaseURL = trimURL(config.APIM.BaseURL)
	config.APIM.BearerToken = strings.TrimSpace(config.APIM.BearerToken)
	config.APIM.SubscriptionKey = strings.TrimSpace(config.APIM.SubscriptionKey)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks field-level constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func trimURL(input string) string {
	return strings.TrimRight(strings.TrimSpace(input), "/")
}
