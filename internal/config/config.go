// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/parcel-report-pdf/internal/logging"
	"github.com/JakeFAU/parcel-report-pdf/internal/report"
	"github.com/JakeFAU/parcel-report-pdf/internal/renderer/wkhtmltopdf"
)

// EnvPrefix namespaces environment overrides, e.g. REPORTPDF_RENDERER_KIND.
const EnvPrefix = "REPORTPDF"

// Renderer kinds.
const (
	RendererWkhtmltopdf = "wkhtmltopdf"
	RendererChromedp    = "chromedp"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Renderer RendererConfig `mapstructure:"renderer"`
	Logging  logging.Config `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                     int `mapstructure:"port"`
	ReadHeaderTimeoutSeconds int `mapstructure:"read_header_timeout_seconds"`
	ShutdownTimeoutSeconds   int `mapstructure:"shutdown_timeout_seconds"`
}

// UpstreamConfig describes the report API.
type UpstreamConfig struct {
	URLTemplate    string  `mapstructure:"url_template"`
	UserAgent      string  `mapstructure:"user_agent"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	RatePerSecond  float64 `mapstructure:"rate_per_second"`
	MaxBodyBytes   int     `mapstructure:"max_body_bytes"`
}

// RendererConfig selects and tunes the HTML-to-PDF renderer.
type RendererConfig struct {
	Kind           string       `mapstructure:"kind"`
	BinaryPath     string       `mapstructure:"binary_path"`
	ExtraArgs      []string     `mapstructure:"extra_args"`
	TimeoutSeconds int          `mapstructure:"timeout_seconds"`
	TempDir        string       `mapstructure:"temp_dir"`
	Chrome         ChromeConfig `mapstructure:"chrome"`
}

// ChromeConfig applies when Kind is chromedp.
type ChromeConfig struct {
	ExecPath    string `mapstructure:"exec_path"`
	MaxParallel int    `mapstructure:"max_parallel"`
}

// Load builds a Config from disk/environment. An empty path skips the config file.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// PORT is the conventional knob on container platforms; the prefixed name wins when both are set.
	if err := v.BindEnv("server.port", EnvPrefix+"_SERVER_PORT", "PORT"); err != nil {
		return Config{}, fmt.Errorf("bind port env: %w", err)
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_header_timeout_seconds", 5)
	v.SetDefault("server.shutdown_timeout_seconds", 10)
	v.SetDefault("upstream.url_template", report.DefaultURLTemplate)
	v.SetDefault("upstream.user_agent", "parcel-report-pdf/1.0")
	v.SetDefault("upstream.timeout_seconds", 0)
	v.SetDefault("upstream.rate_per_second", 0)
	v.SetDefault("upstream.max_body_bytes", 0)
	v.SetDefault("renderer.kind", RendererWkhtmltopdf)
	v.SetDefault("renderer.binary_path", wkhtmltopdf.DefaultBinaryPath)
	v.SetDefault("renderer.extra_args", []string{})
	v.SetDefault("renderer.timeout_seconds", 0)
	v.SetDefault("renderer.temp_dir", "")
	v.SetDefault("renderer.chrome.exec_path", "")
	v.SetDefault("renderer.chrome.max_parallel", 2)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be within 1..65535")
	}
	if c.Server.ReadHeaderTimeoutSeconds < 0 {
		return fmt.Errorf("server.read_header_timeout_seconds must be >= 0")
	}
	if c.Server.ShutdownTimeoutSeconds < 0 {
		return fmt.Errorf("server.shutdown_timeout_seconds must be >= 0")
	}
	if !strings.Contains(c.Upstream.URLTemplate, report.RefPlaceholder) {
		return fmt.Errorf("upstream.url_template must contain %s", report.RefPlaceholder)
	}
	if c.Upstream.TimeoutSeconds < 0 {
		return fmt.Errorf("upstream.timeout_seconds must be >= 0")
	}
	if c.Upstream.RatePerSecond < 0 {
		return fmt.Errorf("upstream.rate_per_second must be >= 0")
	}
	if c.Upstream.MaxBodyBytes < 0 {
		return fmt.Errorf("upstream.max_body_bytes must be >= 0")
	}
	switch c.Renderer.Kind {
	case RendererWkhtmltopdf:
		if strings.TrimSpace(c.Renderer.BinaryPath) == "" {
			return fmt.Errorf("renderer.binary_path is required for %s", RendererWkhtmltopdf)
		}
	case RendererChromedp:
		if c.Renderer.Chrome.MaxParallel < 0 {
			return fmt.Errorf("renderer.chrome.max_parallel must be >= 0")
		}
	default:
		return fmt.Errorf("renderer.kind must be %q or %q, got %q", RendererWkhtmltopdf, RendererChromedp, c.Renderer.Kind)
	}
	if c.Renderer.TimeoutSeconds < 0 {
		return fmt.Errorf("renderer.timeout_seconds must be >= 0")
	}
	return nil
}

// UpstreamTimeout converts the upstream timeout to a duration. Zero means none.
func (c Config) UpstreamTimeout() time.Duration {
	return time.Duration(c.Upstream.TimeoutSeconds) * time.Second
}

// RenderTimeout converts the renderer timeout to a duration. Zero means none.
func (c Config) RenderTimeout() time.Duration {
	return time.Duration(c.Renderer.TimeoutSeconds) * time.Second
}

// ShutdownTimeout is how long in-flight requests get to drain on SIGTERM.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}

// ReadHeaderTimeout guards the server against slow clients.
func (c Config) ReadHeaderTimeout() time.Duration {
	return time.Duration(c.Server.ReadHeaderTimeoutSeconds) * time.Second
}
