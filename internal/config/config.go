// Package config loads the acceptance harness configuration.
//
// Values are layered: built-in defaults, then YAML files, then environment
// variables. The same schema drives both the usercheck CLI and the ReqRes stub.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultBaseURL         = "https://reqres.in/"
	defaultUsersPath       = "/api/users?page=2"
	defaultUserAgent       = "cucumber-rest-api-testing/usercheck"
	defaultTimeout         = 30 * time.Second
	defaultFeatureFormat   = "pretty"
	defaultStubPort        = 8085
	defaultShutdownTimeout = 10 * time.Second
	defaultRateLimitWindow = 60 * time.Second
	defaultRateLimitMax    = 120
	defaultConfigEnvVar    = "USERCHECK_CONFIG"
	envBaseURL             = "API_BASE_URL"
	envUsersPath           = "API_USERS_PATH"
	envAPIKey              = "API_KEY"
	envUserAgent           = "API_USER_AGENT"
	envTimeout             = "API_TIMEOUT_MS"
	envFixturePath         = "FIXTURE_PATH"
	envFixtureIgnoreKeys   = "FIXTURE_IGNORE_KEYS"
	envFeaturesPath        = "FEATURES_PATH"
	envFeaturesFormat      = "FEATURES_FORMAT"
	envFeaturesTags        = "FEATURES_TAGS"
	envContractEnabled     = "CONTRACT_ENABLED"
	envContractPath        = "CONTRACT_PATH"
	envMetricsTextfile     = "METRICS_TEXTFILE"
	envLogLevel            = "LOG_LEVEL"
	envStubPort            = "STUB_PORT"
	envStubShutdownTimeout = "STUB_SHUTDOWN_TIMEOUT_MS"
	envStubAllowedOrigins  = "STUB_CORS_ALLOWED_ORIGINS"
	envStubRateLimitWindow = "STUB_RATE_LIMIT_WINDOW_MS"
	envStubRateLimitMax    = "STUB_RATE_LIMIT_MAX"
)

// Config captures runtime configuration for the harness.
type Config struct {
	API      APIConfig      `yaml:"api"`
	Fixture  FixtureConfig  `yaml:"fixture"`
	Features FeaturesConfig `yaml:"features"`
	Contract ContractConfig `yaml:"contract"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
	Stub     StubConfig     `yaml:"stub"`
}

// APIConfig describes the API under test.
type APIConfig struct {
	BaseURL   string   `yaml:"baseURL"`
	UsersPath string   `yaml:"usersPath"`
	APIKey    string   `yaml:"apiKey"`
	UserAgent string   `yaml:"userAgent"`
	Timeout   Duration `yaml:"timeout"`
}

// FixtureConfig points at an expected payload overriding the pinned one.
// IgnoreKeys are dropped from both payloads before the deep comparison.
type FixtureConfig struct {
	Path       string   `yaml:"path"`
	IgnoreKeys []string `yaml:"ignoreKeys"`
}

// FeaturesConfig selects the Gherkin features to run. An empty Path runs the
// bundled users feature.
type FeaturesConfig struct {
	Path   string `yaml:"path"`
	Format string `yaml:"format"`
	Tags   string `yaml:"tags"`
}

// ContractConfig toggles OpenAPI response validation.
type ContractConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// MetricsConfig controls where run metrics are written.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// LogConfig sets the logger level.
type LogConfig struct {
	Level string `yaml:"level"`
}

// StubConfig configures the local ReqRes stand-in.
type StubConfig struct {
	Port            int             `yaml:"port"`
	ShutdownTimeout Duration        `yaml:"shutdownTimeout"`
	AllowedOrigins  []string        `yaml:"allowedOrigins"`
	RateLimit       RateLimitConfig `yaml:"rateLimit"`
}

// RateLimitConfig captures per-client throttling on the stub.
type RateLimitConfig struct {
	Window Duration `yaml:"window"`
	Max    int      `yaml:"max"`
}

// Duration is a YAML-friendly wrapper over time.Duration supporting numeric millisecond inputs.
type Duration time.Duration

// AsDuration returns the underlying time.Duration.
func (d Duration) AsDuration() time.Duration {
	return time.Duration(d)
}

// MarshalYAML encodes the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.AsDuration().String(), nil
}

// UnmarshalYAML decodes scalar duration values from either Go duration strings or millisecond integers.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("unsupported duration node kind: %v", value.Kind)
	}

	txt := strings.TrimSpace(value.Value)
	if txt == "" {
		*d = Duration(0)
		return nil
	}
	if ms, err := strconv.Atoi(txt); err == nil {
		if ms < 0 {
			return fmt.Errorf("duration must be non-negative, got %d", ms)
		}
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	parsed, err := time.ParseDuration(txt)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", txt, err)
	}
	if parsed < 0 {
		return fmt.Errorf("duration must be non-negative, got %s", parsed)
	}
	*d = Duration(parsed)
	return nil
}

// DurationFrom constructs a Duration from a time.Duration.
func DurationFrom(d time.Duration) Duration {
	return Duration(d)
}

// Default returns baseline configuration values.
func Default() Config {
	return Config{
		API: APIConfig{
			BaseURL:   defaultBaseURL,
			UsersPath: defaultUsersPath,
			UserAgent: defaultUserAgent,
			Timeout:   DurationFrom(defaultTimeout),
		},
		Features: FeaturesConfig{
			Format: defaultFeatureFormat,
		},
		Stub: StubConfig{
			Port:            defaultStubPort,
			ShutdownTimeout: DurationFrom(defaultShutdownTimeout),
			RateLimit: RateLimitConfig{
				Window: DurationFrom(defaultRateLimitWindow),
				Max:    defaultRateLimitMax,
			},
		},
	}
}

// Option customises the load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	paths     []string
	lookupEnv func(string) (string, bool)
}

// WithPath adds a YAML config path to attempt loading.
func WithPath(path string) Option {
	return func(o *loaderOptions) {
		if strings.TrimSpace(path) != "" {
			o.paths = append(o.paths, path)
		}
	}
}

// WithLookupEnv overrides the environment lookup function (useful for tests).
func WithLookupEnv(fn func(string) (string, bool)) Option {
	return func(o *loaderOptions) {
		o.lookupEnv = fn
	}
}

// Load builds a Config from defaults, YAML files, and environment overrides (in that order).
// Missing files are skipped.
func Load(opts ...Option) (Config, error) {
	options := loaderOptions{
		lookupEnv: os.LookupEnv,
	}
	if envPath := strings.TrimSpace(os.Getenv(defaultConfigEnvVar)); envPath != "" {
		options.paths = append(options.paths, envPath)
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	cfg := Default()

	for _, path := range options.paths {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			continue
		case err != nil:
			return cfg, fmt.Errorf("read config %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("decode config %q: %w", path, err)
		}
	}

	if err := applyEnvOverrides(&cfg, options.lookupEnv); err != nil {
		return cfg, err
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config, lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(key string) (string, bool) {
		val, ok := lookup(key)
		val = strings.TrimSpace(val)
		return val, ok && val != ""
	}

	if val, ok := get(envBaseURL); ok {
		cfg.API.BaseURL = val
	}
	if val, ok := get(envUsersPath); ok {
		cfg.API.UsersPath = val
	}
	if val, ok := get(envAPIKey); ok {
		cfg.API.APIKey = val
	}
	if val, ok := get(envUserAgent); ok {
		cfg.API.UserAgent = val
	}
	if val, ok := get(envTimeout); ok {
		timeout, err := parsePositiveDurationMillis(val)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", envTimeout, err)
		}
		cfg.API.Timeout = DurationFrom(timeout)
	}

	if val, ok := get(envFixturePath); ok {
		cfg.Fixture.Path = val
	}
	if val, ok := get(envFixtureIgnoreKeys); ok {
		cfg.Fixture.IgnoreKeys = splitAndTrim(val)
	}

	if val, ok := get(envFeaturesPath); ok {
		cfg.Features.Path = val
	}
	if val, ok := get(envFeaturesFormat); ok {
		cfg.Features.Format = val
	}
	if val, ok := get(envFeaturesTags); ok {
		cfg.Features.Tags = val
	}

	if val, ok := get(envContractEnabled); ok {
		enabled, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("invalid %s value: %s", envContractEnabled, val)
		}
		cfg.Contract.Enabled = enabled
	}
	if val, ok := get(envContractPath); ok {
		cfg.Contract.Path = val
	}

	if val, ok := get(envMetricsTextfile); ok {
		cfg.Metrics.Textfile = val
	}
	if val, ok := get(envLogLevel); ok {
		cfg.Log.Level = val
	}

	if val, ok := get(envStubPort); ok {
		port, err := strconv.Atoi(val)
		if err != nil || port <= 0 {
			return fmt.Errorf("invalid %s value: %s", envStubPort, val)
		}
		cfg.Stub.Port = port
	}
	if val, ok := get(envStubShutdownTimeout); ok {
		timeout, err := parsePositiveDurationMillis(val)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", envStubShutdownTimeout, err)
		}
		cfg.Stub.ShutdownTimeout = DurationFrom(timeout)
	}
	if val, ok := get(envStubAllowedOrigins); ok {
		cfg.Stub.AllowedOrigins = splitAndTrim(val)
	}
	if val, ok := get(envStubRateLimitWindow); ok {
		window, err := parsePositiveDurationMillis(val)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", envStubRateLimitWindow, err)
		}
		cfg.Stub.RateLimit.Window = DurationFrom(window)
	}
	if val, ok := get(envStubRateLimitMax); ok {
		max, err := strconv.Atoi(val)
		if err != nil || max <= 0 {
			return fmt.Errorf("invalid %s value: %s", envStubRateLimitMax, val)
		}
		cfg.Stub.RateLimit.Max = max
	}

	return nil
}

// normalize fills in defaults that may be missing after YAML/env overrides.
func (cfg *Config) normalize() {
	if strings.TrimSpace(cfg.API.BaseURL) == "" {
		cfg.API.BaseURL = defaultBaseURL
	}
	if strings.TrimSpace(cfg.API.UsersPath) == "" {
		cfg.API.UsersPath = defaultUsersPath
	} else {
		cfg.API.UsersPath = ensureLeadingSlash(cfg.API.UsersPath)
	}
	if strings.TrimSpace(cfg.API.UserAgent) == "" {
		cfg.API.UserAgent = defaultUserAgent
	}
	if cfg.API.Timeout.AsDuration() <= 0 {
		cfg.API.Timeout = DurationFrom(defaultTimeout)
	}
	if strings.TrimSpace(cfg.Features.Format) == "" {
		cfg.Features.Format = defaultFeatureFormat
	}
	if cfg.Stub.Port == 0 {
		cfg.Stub.Port = defaultStubPort
	}
	if cfg.Stub.ShutdownTimeout.AsDuration() <= 0 {
		cfg.Stub.ShutdownTimeout = DurationFrom(defaultShutdownTimeout)
	}
	if cfg.Stub.RateLimit.Window.AsDuration() <= 0 {
		cfg.Stub.RateLimit.Window = DurationFrom(defaultRateLimitWindow)
	}
	if cfg.Stub.RateLimit.Max <= 0 {
		cfg.Stub.RateLimit.Max = defaultRateLimitMax
	}
}

// Validate performs semantic validation on the configuration.
func (cfg Config) Validate() error {
	var errs []error

	if cfg.API.BaseURL == "" {
		errs = append(errs, fmt.Errorf("api.baseURL is required"))
	} else if u, err := url.ParseRequestURI(cfg.API.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("api.baseURL invalid: %w", err))
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errs = append(errs, fmt.Errorf("api.baseURL must use http or https, got %q", u.Scheme))
	}
	if _, err := url.Parse(cfg.API.UsersPath); err != nil {
		errs = append(errs, fmt.Errorf("api.usersPath invalid: %w", err))
	}
	if cfg.API.Timeout.AsDuration() <= 0 {
		errs = append(errs, fmt.Errorf("api.timeout must be positive"))
	}
	if cfg.Stub.Port <= 0 || cfg.Stub.Port > 65535 {
		errs = append(errs, fmt.Errorf("stub.port must be between 1 and 65535"))
	}
	if cfg.Stub.RateLimit.Max <= 0 {
		errs = append(errs, fmt.Errorf("stub.rateLimit.max must be positive"))
	}
	if cfg.Stub.RateLimit.Window.AsDuration() <= 0 {
		errs = append(errs, fmt.Errorf("stub.rateLimit.window must be positive"))
	}

	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

func parsePositiveDurationMillis(value string) (time.Duration, error) {
	ms, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, err
	}
	if ms <= 0 {
		return 0, fmt.Errorf("value must be positive: %d", ms)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func splitAndTrim(value string) []string {
	parts := strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == ' ' || r == ';'
	})
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func ensureLeadingSlash(path string) string {
	if strings.HasPrefix(path, "/") || strings.Contains(path, "://") {
		return path
	}
	return "/" + path
}
