package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds all sensim configuration.
type Config struct {
	SDF      SDFConfig      `yaml:"sdf"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Solver   SolverConfig   `yaml:"solver"`
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// SDFConfig names the descriptive fields of a parsed profile and the reaction groupings used downstream.
type SDFConfig struct {
	// Record field names, in profile order: nuclide, reaction, zaid, mt, zone, volume,
	// integrated sensitivity, absolute sum, opposite-sign sum, groupwise sensitivities
	FieldNames []string `yaml:"field_names" validate:"len=10,dive,required"`

	// Reactions that are sums of other reactions and double count in contribution plots
	RedundantReactions []string `yaml:"redundant_reactions" validate:"dive,required"`

	// Reaction selection per similarity index type for the comparison harness
	IndexReactions map[string]string `yaml:"index_reactions" validate:"required,min=1,dive,keys,required,endkeys,required"`
}

// AnalysisConfig configures the similarity engine defaults.
type AnalysisConfig struct {
	Mode        string `yaml:"mode" validate:"oneof=correlated manual automatic"`
	Parallelism int    `yaml:"parallelism" validate:"gte=1,lte=256"`
	CacheFiles  bool   `yaml:"cache_files"`
}

// SolverConfig configures the external transport solver invocation.
type SolverConfig struct {
	Binary       string `yaml:"binary" validate:"required"`
	TemplatePath string `yaml:"template_path"`
	WorkDir      string `yaml:"work_dir"`
	Timeout      string `yaml:"timeout"`

	// Consecutive failed runs before launches are refused for BreakerCooldown
	BreakerFailures int    `yaml:"breaker_failures" validate:"gte=0"`
	BreakerCooldown string `yaml:"breaker_cooldown"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Port           int      `yaml:"port" validate:"gte=1,lte=65535"`
	RateLimit      float64  `yaml:"rate_limit" validate:"gt=0"`
	RateBurst      int      `yaml:"rate_burst" validate:"gte=1"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	CacheTTL       string   `yaml:"cache_ttl"`
	RequestTimeout string   `yaml:"request_timeout"`
	MaxBodyBytes   int64    `yaml:"max_body_bytes" validate:"gte=1024"`

	// Profiling mounts net/http/pprof under /debug/pprof
	Profiling bool `yaml:"profiling"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	File  string `yaml:"file"`
}

// DefaultFieldNames are the record names of a sensitivity profile.
var DefaultFieldNames = []string{
	"isotope",
	"reaction_type",
	"zaid",
	"reaction_mt",
	"zone_number",
	"zone_volume",
	"energy_integrated_sensitivity",
	"abs_sum_groupwise_sensitivities",
	"sum_opposite_sign_groupwise_sensitivities",
	"sensitivities",
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		SDF: SDFConfig{
			FieldNames:         append([]string(nil), DefaultFieldNames...),
			RedundantReactions: []string{"chi", "capture", "nubar", "total"},
			IndexReactions: map[string]string{
				"total":   "all",
				"fission": "fission",
				"capture": "capture",
				"scatter": "elastic",
			},
		},

		Analysis: AnalysisConfig{
			Mode:        "correlated",
			Parallelism: 4,
			CacheFiles:  true,
		},

		Solver: SolverConfig{
			Binary:          "scalerte",
			Timeout:         "30m",
			BreakerFailures: 5,
			BreakerCooldown: "1m",
		},

		Server: ServerConfig{
			Port:           8080,
			RateLimit:      10,
			RateBurst:      20,
			AllowedOrigins: []string{"http://localhost:3000"},
			CacheTTL:       "15m",
			RequestTimeout: "5m",
			MaxBodyBytes:   1 << 20,
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if origins := os.Getenv("SENSIM_ALLOWED_ORIGINS"); origins != "" {
		c.Server.AllowedOrigins = strings.Split(origins, ",")
	}
	if mode := os.Getenv("SENSIM_MODE"); mode != "" {
		c.Analysis.Mode = mode
	}
	if binary := os.Getenv("SENSIM_SOLVER"); binary != "" {
		c.Solver.Binary = binary
	}
	if path := os.Getenv("SENSIM_SOLVER_TEMPLATE"); path != "" {
		c.Solver.TemplatePath = path
	}
	if os.Getenv("ENABLE_PROFILING") == "true" {
		c.Server.Profiling = true
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Logging.Level = strings.ToLower(level)
	}
	if file := os.Getenv("LOG_FILE"); file != "" {
		c.Logging.File = file
	}
}

var validate = validator.New()

// Validate checks the struct tags and the duration strings.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	for name, value := range map[string]string{
		"solver.timeout":          c.Solver.Timeout,
		"solver.breaker_cooldown": c.Solver.BreakerCooldown,
		"server.cache_ttl":        c.Server.CacheTTL,
		"server.request_timeout":  c.Server.RequestTimeout,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid config: %s: %w", name, err)
		}
	}
	return nil
}

// GetSolverTimeout returns the solver timeout as a duration.
func (c *Config) GetSolverTimeout() time.Duration {
	d, err := time.ParseDuration(c.Solver.Timeout)
	if err != nil {
		return 30 * time.Minute
	}
	return d
}

// GetBreakerCooldown returns how long a tripped solver breaker refuses runs.
func (c *Config) GetBreakerCooldown() time.Duration {
	d, err := time.ParseDuration(c.Solver.BreakerCooldown)
	if err != nil {
		return time.Minute
	}
	return d
}

// GetCacheTTL returns the response cache TTL as a duration.
func (c *Config) GetCacheTTL() time.Duration {
	d, err := time.ParseDuration(c.Server.CacheTTL)
	if err != nil {
		return 15 * time.Minute
	}
	return d
}

// GetRequestTimeout returns the per-request timeout as a duration.
func (c *Config) GetRequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.Server.RequestTimeout)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}
