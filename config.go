package quotron

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/starwalkn/quotron/internal/endpoint"
)

type Config struct {
	Debug    bool           `json:"debug" yaml:"debug"`
	Server   ServerConfig   `json:"server" yaml:"server"`
	Upstream UpstreamConfig `json:"upstream" yaml:"upstream"`
	Cache    CacheConfig    `json:"cache" yaml:"cache"`
}

type ServerConfig struct {
	Port        int               `json:"port" yaml:"port" default:"8080" validate:"min=1,max=65535"`
	Timeout     time.Duration     `json:"timeout" yaml:"timeout" default:"15s" validate:"gt=0"`
	Metrics     MetricsConfig     `json:"metrics" yaml:"metrics"`
	Tracing     TracingConfig     `json:"tracing" yaml:"tracing"`
	Auth        AuthConfig        `json:"auth" yaml:"auth"`
	RateLimiter RateLimiterConfig `json:"rate_limiter" yaml:"rate_limiter"`
}

type MetricsConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Provider string `json:"provider" yaml:"provider" default:"prometheus" validate:"oneof=prometheus otel"`
	// Exporter applies to the otel provider only.
	Exporter string        `json:"exporter" yaml:"exporter" default:"prometheus" validate:"oneof=prometheus otlp"`
	Endpoint string        `json:"endpoint" yaml:"endpoint" validate:"required_if=Exporter otlp"`
	Insecure bool          `json:"insecure" yaml:"insecure"`
	Interval time.Duration `json:"interval" yaml:"interval" default:"30s"`
}

type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Endpoint    string  `json:"endpoint" yaml:"endpoint" validate:"required_if=Enabled true"`
	Insecure    bool    `json:"insecure" yaml:"insecure"`
	SampleRatio float64 `json:"sample_ratio" yaml:"sample_ratio" default:"1" validate:"gte=0,lte=1"`
}

// AuthConfig enables bearer token verification on the API. Tokens are issued elsewhere.
type AuthConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Secret  string `json:"secret" yaml:"secret" validate:"required_if=Enabled true"`
	Issuer  string `json:"issuer" yaml:"issuer"`
}

type RateLimiterConfig struct {
	Enabled bool          `json:"enabled" yaml:"enabled"`
	Limit   int           `json:"limit" yaml:"limit" default:"60" validate:"min=1"`
	Window  time.Duration `json:"window" yaml:"window" default:"1m" validate:"gt=0"`
}

type UpstreamConfig struct {
	Hosts               HostsConfig          `json:"hosts" yaml:"hosts"`
	Timeout             time.Duration        `json:"timeout" yaml:"timeout" default:"10s" validate:"gt=0"`
	MaxResponseBodySize int64                `json:"max_response_body_size" yaml:"max_response_body_size" default:"16777216" validate:"gte=0"`
	UserAgents          []string             `json:"user_agents" yaml:"user_agents"`
	Admission           AdmissionConfig      `json:"admission" yaml:"admission"`
	Retry               RetryConfig          `json:"retry" yaml:"retry"`
	CircuitBreaker      CircuitBreakerConfig `json:"circuit_breaker" yaml:"circuit_breaker"`
}

type HostsConfig struct {
	Primary   string `json:"primary" yaml:"primary" default:"https://query1.finance.yahoo.com" validate:"required,url"`
	Secondary string `json:"secondary" yaml:"secondary" default:"https://query2.finance.yahoo.com" validate:"required,url"`
}

type AdmissionConfig struct {
	MaxConcurrent int64 `json:"max_concurrent" yaml:"max_concurrent" default:"50" validate:"min=1"`
}

type RetryConfig struct {
	MaxRetries int           `json:"max_retries" yaml:"max_retries" default:"3" validate:"min=0,max=10"`
	BaseDelay  time.Duration `json:"base_delay" yaml:"base_delay" default:"200ms" validate:"gt=0"`
	MaxJitter  time.Duration `json:"max_jitter" yaml:"max_jitter" default:"100ms" validate:"gte=0"`
	MaxDelay   time.Duration `json:"max_delay" yaml:"max_delay" default:"10s" validate:"gt=0"`
}

type CircuitBreakerConfig struct {
	MaxFailures   int           `json:"max_failures" yaml:"max_failures" default:"5" validate:"min=1"`
	BreakDuration time.Duration `json:"break_duration" yaml:"break_duration" default:"30s" validate:"gt=0"`
}

type CacheConfig struct {
	CleanupInterval time.Duration `json:"cleanup_interval" yaml:"cleanup_interval" default:"1m" validate:"gt=0"`
	MaxEntries      int           `json:"max_entries" yaml:"max_entries" default:"10000" validate:"gte=0"`
	Redis           RedisConfig   `json:"redis" yaml:"redis"`
	TTL             TTLConfig     `json:"ttl" yaml:"ttl"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Addr     string `json:"addr" yaml:"addr" default:"localhost:6379" validate:"required_if=Enabled true"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db" validate:"gte=0"`
	Prefix   string `json:"prefix" yaml:"prefix" default:"quotron:"`
}

// TTLConfig holds the cache lifetime of each endpoint kind.
type TTLConfig struct {
	Price           time.Duration `json:"price" yaml:"price" default:"15s" validate:"gt=0"`
	Chart           time.Duration `json:"chart" yaml:"chart" default:"10m" validate:"gt=0"`
	History         time.Duration `json:"history" yaml:"history" default:"1h" validate:"gt=0"`
	Fundamentals    time.Duration `json:"fundamentals" yaml:"fundamentals" default:"6h" validate:"gt=0"`
	Insights        time.Duration `json:"insights" yaml:"insights" default:"1h" validate:"gt=0"`
	Options         time.Duration `json:"options" yaml:"options" default:"1m" validate:"gt=0"`
	Quote           time.Duration `json:"quote" yaml:"quote" default:"15s" validate:"gt=0"`
	QuoteSummary    time.Duration `json:"quote_summary" yaml:"quote_summary" default:"1h" validate:"gt=0"`
	Recommendations time.Duration `json:"recommendations" yaml:"recommendations" default:"6h" validate:"gt=0"`
	Screener        time.Duration `json:"screener" yaml:"screener" default:"5m" validate:"gt=0"`
	Search          time.Duration `json:"search" yaml:"search" default:"1h" validate:"gt=0"`
	Trending        time.Duration `json:"trending" yaml:"trending" default:"5m" validate:"gt=0"`
}

// For returns the TTL of kind, zero for unknown kinds.
func (c TTLConfig) For(kind endpoint.Kind) time.Duration {
	switch kind {
	case endpoint.KindPrice:
		return c.Price
	case endpoint.KindChart:
		return c.Chart
	case endpoint.KindHistory:
		return c.History
	case endpoint.KindFundamentals:
		return c.Fundamentals
	case endpoint.KindInsights:
		return c.Insights
	case endpoint.KindOptions:
		return c.Options
	case endpoint.KindQuote:
		return c.Quote
	case endpoint.KindQuoteSummary:
		return c.QuoteSummary
	case endpoint.KindRecommendations:
		return c.Recommendations
	case endpoint.KindScreener:
		return c.Screener
	case endpoint.KindSearch:
		return c.Search
	case endpoint.KindTrending:
		return c.Trending
	default:
		return 0
	}
}

// DefaultConfig returns a configuration holding only default values.
func DefaultConfig() Config {
	var cfg Config

	if err := defaults.Set(&cfg); err != nil {
		panic(fmt.Sprintf("invalid default tags: %v", err))
	}

	return cfg
}

// LoadConfig reads a YAML or JSON configuration. Defaults are applied before
// decoding, so explicit zero values in the file are kept.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("cannot read configuration file: %w", err)
	}

	cfg := DefaultConfig()

	switch filepath.Ext(path) {
	case ".json":
		if err = json.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("cannot parse configuration file: %w", err)
		}
	case ".yaml", ".yml":
		if err = yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("cannot parse configuration file: %w", err)
		}
	default:
		return Config{}, fmt.Errorf("unknown configuration file extension: %s", filepath.Ext(path))
	}

	tag := "yaml"
	if filepath.Ext(path) == ".json" {
		tag = "json"
	}

	if err = validateConfig(&cfg, tag); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func validateConfig(cfg *Config, tag string) error {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := fld.Tag.Get(tag)
		if name == "" || name == "-" {
			return strings.ToLower(fld.Name)
		}

		return strings.ToLower(strings.Split(name, ",")[0])
	})

	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", formatValidationError(err))
	}

	return nil
}

func formatValidationError(err error) error {
	var ves validator.ValidationErrors

	if ok := errors.As(err, &ves); !ok {
		return err
	}

	var messages []string

	for _, fe := range ves {
		path := strings.TrimPrefix(fe.Namespace(), "Config.")

		messages = append(messages, fmt.Sprintf(
			"%s: %s",
			path,
			humanMessage(fe),
		))
	}

	return errors.New(strings.Join(messages, "\n"))
}

func humanMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "field is required"

	case "min", "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())

	case "max", "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())

	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())

	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())

	case "url":
		return "must be a valid URL"

	default:
		return fmt.Sprintf("validation failed on '%s'", fe.Tag())
	}
}
