package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/shopspring/decimal"
)

// DefaultPath is where Load looks for the YAML file.
const DefaultPath = "config.yaml"

// Config holds all configuration for far-audit.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3480"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// TLS configuration (optional - if both provided, server uses HTTPS)
	TLSCertPath string `yaml:"tls_cert_path" env:"TLS_CERT_PATH" env-default:""`
	TLSKeyPath  string `yaml:"tls_key_path" env:"TLS_KEY_PATH" env-default:""`

	Database DatabaseConfig `yaml:"database"`
	LLM      LLMConfig      `yaml:"llm"`
	OCR      OCRConfig      `yaml:"ocr"`
	Rules    RulesConfig    `yaml:"rules"`
	Policy   PolicyConfig   `yaml:"policy"`
	Matching MatchingConfig `yaml:"matching"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"far_audit"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"far_audit"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"10"`
	MaxIdleConns   int32  `yaml:"max_idle_conns" env:"PGMAX_IDLE_CONNS" env-default:"2"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// LLMConfig selects the chat provider used for approval re-evaluation.
type LLMConfig struct {
	Provider    string        `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"`
	BaseURL     string        `yaml:"base_url" env:"LLM_BASE_URL" env-default:"https://api.openai.com/v1"`
	Model       string        `yaml:"model" env:"LLM_MODEL" env-default:"gpt-4o-mini"`
	APIKey      string        `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML
	Temperature float64       `yaml:"temperature" env:"LLM_TEMPERATURE" env-default:"0.1"`
	MaxTokens   int           `yaml:"max_tokens" env:"LLM_MAX_TOKENS" env-default:"800"`
	Timeout     time.Duration `yaml:"timeout" env:"LLM_TIMEOUT" env-default:"60s"`

	// Circuit breaker: open after this many consecutive failures, probe again after reset.
	BreakerThreshold int           `yaml:"breaker_threshold" env:"LLM_BREAKER_THRESHOLD" env-default:"5"`
	BreakerReset     time.Duration `yaml:"breaker_reset" env:"LLM_BREAKER_RESET" env-default:"30s"`
}

// OCRConfig bounds reads of OCR output from the document store.
type OCRConfig struct {
	FetchTimeout time.Duration `yaml:"fetch_timeout" env:"OCR_FETCH_TIMEOUT" env-default:"5s"`
}

// RulesConfig points at an optional FAR rule overlay (JSON or YAML).
type RulesConfig struct {
	OverlayPath string `yaml:"overlay_path" env:"FAR_RULES_OVERLAY" env-default:""`
}

// PolicyConfig holds documentation policy knobs.
type PolicyConfig struct {
	// ReceiptThreshold, when set, requires a receipt for any row whose amount
	// is at or above it, regardless of status. Decimal string.
	ReceiptThreshold string `yaml:"receipt_threshold" env:"POLICY_RECEIPT_THRESHOLD" env-default:""`
}

// MatchingConfig tunes document-to-GL matching.
type MatchingConfig struct {
	AutoLinkThreshold float64 `yaml:"auto_link_threshold" env:"MATCH_AUTO_LINK_THRESHOLD" env-default:"6.0"`
	CacheSize         int     `yaml:"cache_size" env:"MATCH_CACHE_SIZE" env-default:"512"`
}

// Load reads configuration from path with environment variable overrides.
// A missing file is not an error; defaults and the environment apply.
// The version parameter is injected at build time and set on the returned Config.
func Load(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if errors.Is(err, fs.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints cleanenv cannot express.
func (c *Config) Validate() error {
	if err := c.validateTLS(); err != nil {
		return fmt.Errorf("invalid TLS configuration: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(c.LLM.Provider)) {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("invalid llm.provider %q: want openai or anthropic", c.LLM.Provider)
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("llm.timeout must be positive, got %s", c.LLM.Timeout)
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("llm.max_tokens must be positive, got %d", c.LLM.MaxTokens)
	}
	if c.LLM.BreakerThreshold <= 0 || c.LLM.BreakerReset <= 0 {
		return fmt.Errorf("llm breaker threshold and reset must be positive")
	}
	if c.OCR.FetchTimeout <= 0 {
		return fmt.Errorf("ocr.fetch_timeout must be positive, got %s", c.OCR.FetchTimeout)
	}
	if _, err := c.Policy.Threshold(); err != nil {
		return err
	}
	if c.Matching.AutoLinkThreshold <= 0 {
		return fmt.Errorf("matching.auto_link_threshold must be positive, got %v", c.Matching.AutoLinkThreshold)
	}
	if c.Matching.CacheSize <= 0 {
		return fmt.Errorf("matching.cache_size must be positive, got %d", c.Matching.CacheSize)
	}
	return nil
}

// validateTLS ensures TLS configuration is valid if provided.
// Both cert and key must be provided together, and files must exist.
func (c *Config) validateTLS() error {
	certSet := c.TLSCertPath != ""
	keySet := c.TLSKeyPath != ""

	if certSet != keySet {
		return fmt.Errorf("both tls_cert_path and tls_key_path must be provided together")
	}

	if certSet {
		if _, err := os.Stat(c.TLSCertPath); err != nil {
			return fmt.Errorf("TLS cert file does not exist: %w", err)
		}
		if _, err := os.Stat(c.TLSKeyPath); err != nil {
			return fmt.Errorf("TLS key file does not exist: %w", err)
		}
	}

	return nil
}

// Threshold parses ReceiptThreshold. Nil means no amount-based requirement.
func (p PolicyConfig) Threshold() (*decimal.Decimal, error) {
	raw := strings.TrimSpace(p.ReceiptThreshold)
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid policy.receipt_threshold %q: %w", p.ReceiptThreshold, err)
	}
	return &d, nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// IsLocal reports whether the server runs in the local environment.
func (c *Config) IsLocal() bool {
	return c.Env == "local"
}
