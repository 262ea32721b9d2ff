package config

import (
	"errors"
	"fmt"
	"net"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store backends
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

type Config struct {
	Host               string
	Port               string
	RequestTimeout     time.Duration
	PageFetchTimeout   time.Duration
	BatchTimeout       time.Duration
	MaxRequestBodySize int64
	FetchAttempts      int

	Workers int

	StoreType string
	StorePath string

	AnswerKeyDir string
	RosterFile   string
	PageRoot     string

	AzureAccount          string
	AzureAccountKey       string
	AzureConnectionString string

	OCREnabled       bool
	OCRLanguage      string
	IdentifyTimeout  time.Duration
	MinOCRConfidence float64
	LowConfidence    float64
}

func (c *Config) ServerAddress() string {
	// Trim any whitespace from host and port
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

// AzureEnabled reports whether blob page URLs can be served
func (c *Config) AzureEnabled() bool {
	return c.AzureConnectionString != "" || (c.AzureAccount != "" && c.AzureAccountKey != "")
}

// SetDefaults registers every key with its default so env lookups and
// config files resolve through the same names
func SetDefaults(v *viper.Viper) {
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", "8080")
	v.SetDefault("request-timeout", 5*time.Minute)
	v.SetDefault("page-fetch-timeout", 15*time.Second)
	v.SetDefault("batch-timeout", 10*time.Minute)
	v.SetDefault("max-request-body-size", 10*1024*1024) // 10MB
	v.SetDefault("fetch-attempts", 3)
	v.SetDefault("workers", runtime.NumCPU())
	v.SetDefault("store", StoreMemory)
	v.SetDefault("db", "scantron.db")
	v.SetDefault("answer-keys", "answer_keys")
	v.SetDefault("roster", "")
	v.SetDefault("page-root", "")
	v.SetDefault("azure-account", "")
	v.SetDefault("azure-account-key", "")
	v.SetDefault("azure-connection-string", "")
	v.SetDefault("ocr", true)
	v.SetDefault("ocr-language", "eng")
	v.SetDefault("identify-timeout", 10*time.Second)
	v.SetDefault("min-ocr-confidence", 50.0)
	v.SetDefault("low-confidence", 0.60)
}

// NewViper returns a viper instance reading SCANTRON_* variables and an
// optional scantron.yaml
func NewViper() (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix("SCANTRON")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("scantron")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/scantron")
	v.AddConfigPath("/etc/scantron")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return v, nil
}

func LoadFromEnv() (*Config, error) {
	v, err := NewViper()
	if err != nil {
		return nil, err
	}
	return Load(v)
}

// Load builds and validates the configuration from a prepared viper instance
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Host:                  v.GetString("host"),
		Port:                  v.GetString("port"),
		RequestTimeout:        v.GetDuration("request-timeout"),
		PageFetchTimeout:      v.GetDuration("page-fetch-timeout"),
		BatchTimeout:          v.GetDuration("batch-timeout"),
		MaxRequestBodySize:    v.GetInt64("max-request-body-size"),
		FetchAttempts:         v.GetInt("fetch-attempts"),
		Workers:               v.GetInt("workers"),
		StoreType:             strings.ToLower(strings.TrimSpace(v.GetString("store"))),
		StorePath:             v.GetString("db"),
		AnswerKeyDir:          v.GetString("answer-keys"),
		RosterFile:            v.GetString("roster"),
		PageRoot:              v.GetString("page-root"),
		AzureAccount:          v.GetString("azure-account"),
		AzureAccountKey:       v.GetString("azure-account-key"),
		AzureConnectionString: v.GetString("azure-connection-string"),
		OCREnabled:            v.GetBool("ocr"),
		OCRLanguage:           v.GetString("ocr-language"),
		IdentifyTimeout:       v.GetDuration("identify-timeout"),
		MinOCRConfidence:      v.GetFloat64("min-ocr-confidence"),
		LowConfidence:         v.GetFloat64("low-confidence"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and enumerations
func (c *Config) Validate() error {
	// Validate port is numeric and in range
	p, err := strconv.Atoi(strings.TrimSpace(c.Port))
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid port: %q", c.Port)
	}
	if c.MaxRequestBodySize <= 0 {
		return fmt.Errorf("max-request-body-size must be > 0 (got %d)", c.MaxRequestBodySize)
	}
	if c.RequestTimeout <= 0 || c.PageFetchTimeout <= 0 || c.BatchTimeout <= 0 || c.IdentifyTimeout <= 0 {
		return fmt.Errorf("timeouts must be > 0 (got request=%s, fetch=%s, batch=%s, identify=%s)",
			c.RequestTimeout, c.PageFetchTimeout, c.BatchTimeout, c.IdentifyTimeout)
	}
	if c.FetchAttempts < 1 {
		return fmt.Errorf("fetch-attempts must be >= 1 (got %d)", c.FetchAttempts)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be >= 1 (got %d)", c.Workers)
	}
	switch c.StoreType {
	case StoreMemory:
	case StoreSQLite:
		if strings.TrimSpace(c.StorePath) == "" {
			return fmt.Errorf("db path is required for the sqlite store")
		}
	default:
		return fmt.Errorf("unknown store %q (want %s or %s)", c.StoreType, StoreMemory, StoreSQLite)
	}
	if c.MinOCRConfidence < 0 || c.MinOCRConfidence > 100 {
		return fmt.Errorf("min-ocr-confidence must be within 0-100 (got %.1f)", c.MinOCRConfidence)
	}
	if c.LowConfidence <= 0 || c.LowConfidence > 1 {
		return fmt.Errorf("low-confidence must be within (0, 1] (got %.2f)", c.LowConfidence)
	}
	return nil
}
