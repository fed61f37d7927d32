package config

import (
	"encoding/json"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"

	"github.com/storefront-dev/storefront/pkg/apperr"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "storefront.json"

	// EnvPrefix prefixes every environment override (STOREFRONT_API_BASE_URL, ...).
	EnvPrefix = "storefront"

	// DefaultAPIBaseURL is the REST root used when none is configured.
	DefaultAPIBaseURL = "http://localhost:8080/api"

	// DefaultPushURL is the push socket used when none is configured.
	DefaultPushURL = "ws://localhost:8080/ws"

	// DefaultRequestTimeout bounds a REST call without its own deadline.
	DefaultRequestTimeout = "15s"

	// DefaultMaxRetries is how many times a failed push dial is retried.
	DefaultMaxRetries = 5

	// DefaultRetryDelay is the fixed delay between push dials.
	DefaultRetryDelay = "1s"

	// DefaultSessionPath is where the file backend keeps the session,
	// relative to the config directory.
	DefaultSessionPath = ".storefront/session.json"

	// DefaultValkeyPrefix namespaces session keys in Valkey.
	DefaultValkeyPrefix = "storefront:session:"

	// DefaultNamespace is the Prometheus namespace.
	DefaultNamespace = "storefront"

	// DefaultLogLevel is the slog level name.
	DefaultLogLevel = "info"
)

// Session backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendValkey = "valkey"
)

// ErrNotFound is wrapped by Load when no storefront.json exists.
var ErrNotFound = errors.New("config: " + ConfigFileName + " not found")

// Config represents storefront.json. Every field can be overridden from the
// environment, see ApplyEnv.
type Config struct {
	// APIBaseURL is the REST root, e.g. "https://api.example.com/api".
	APIBaseURL string `json:"apiBaseURL,omitempty" envconfig:"API_BASE_URL"`

	// PushURL is the push socket URL.
	PushURL string `json:"pushURL,omitempty" envconfig:"PUSH_URL"`

	// RequestTimeout bounds each REST call (e.g. "15s").
	RequestTimeout string `json:"requestTimeout,omitempty" envconfig:"REQUEST_TIMEOUT"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"logLevel,omitempty" envconfig:"LOG_LEVEL"`

	// Realtime contains push connection settings.
	Realtime RealtimeConfig `json:"realtime,omitempty"`

	// Session contains session persistence settings.
	Session SessionConfig `json:"session,omitempty"`

	// Metrics contains Prometheus settings.
	Metrics MetricsConfig `json:"metrics,omitempty"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// RealtimeConfig contains push connection settings.
type RealtimeConfig struct {
	// MaxRetries is how many times a failed dial is retried. Zero uses the default.
	MaxRetries int `json:"maxRetries,omitempty" envconfig:"MAX_RETRIES"`

	// RetryDelay is the fixed delay between dials (e.g. "1s").
	RetryDelay string `json:"retryDelay,omitempty" envconfig:"RETRY_DELAY"`
}

// SessionConfig contains session persistence settings.
type SessionConfig struct {
	// Backend is memory, file or valkey.
	Backend string `json:"backend,omitempty" envconfig:"BACKEND"`

	// Path is the session file for the file backend.
	Path string `json:"path,omitempty" envconfig:"PATH"`

	// ValkeyURL is the server for the valkey backend (redis://, rediss://,
	// valkey:// or valkeys://).
	ValkeyURL string `json:"valkeyURL,omitempty" envconfig:"VALKEY_URL"`

	// Prefix namespaces the session keys in Valkey.
	Prefix string `json:"prefix,omitempty" envconfig:"PREFIX"`
}

// MetricsConfig contains Prometheus settings.
type MetricsConfig struct {
	// Namespace prefixes every metric name.
	Namespace string `json:"namespace,omitempty" envconfig:"NAMESPACE"`
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		APIBaseURL:     DefaultAPIBaseURL,
		PushURL:        DefaultPushURL,
		RequestTimeout: DefaultRequestTimeout,
		LogLevel:       DefaultLogLevel,
		Realtime: RealtimeConfig{
			MaxRetries: DefaultMaxRetries,
			RetryDelay: DefaultRetryDelay,
		},
		Session: SessionConfig{
			Backend: BackendFile,
			Path:    DefaultSessionPath,
			Prefix:  DefaultValkeyPrefix,
		},
		Metrics: MetricsConfig{
			Namespace: DefaultNamespace,
		},
	}
}

// Load reads configuration from the specified directory.
// It looks for storefront.json in the directory.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads configuration from the specified file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrNotFound, "no %s in %s", ConfigFileName, filepath.Dir(path))
		}
		return nil, errors.Wrap(err, "config: read")
	}

	cfg := New()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, apperr.Newf(apperr.KindValidation, "failed to parse %s: %v", ConfigFileName, err).
			WithOp("config.load").
			Wrap(err)
	}

	cfg.configPath = path
	cfg.applyDefaults()

	return cfg, nil
}

// Resolve builds the effective configuration for dir: storefront.json when
// present (defaults otherwise), then environment overrides, then validation.
func Resolve(dir string) (*Config, error) {
	cfg, err := Load(dir)
	if errors.Is(err, ErrNotFound) {
		cfg, err = New(), nil
		cfg.configPath = filepath.Join(dir, ConfigFileName)
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from STOREFRONT_* environment variables, for
// example STOREFRONT_API_BASE_URL or STOREFRONT_REALTIME_MAX_RETRIES.
func (c *Config) ApplyEnv() error {
	if err := envconfig.Process(EnvPrefix, c); err != nil {
		return apperr.Newf(apperr.KindValidation, "invalid environment override: %v", err).
			WithOp("config.env").
			Wrap(err)
	}
	c.applyDefaults()
	return nil
}

// Save writes the configuration to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.New("config: no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to the specified path.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.Wrap(err, "config: encode")
	}

	// Add newline at end of file
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrap(err, "config: write")
	}

	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return ""
	}
	return filepath.Dir(c.configPath)
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	if c.APIBaseURL == "" {
		c.APIBaseURL = DefaultAPIBaseURL
	}
	c.APIBaseURL = strings.TrimRight(c.APIBaseURL, "/")
	if c.PushURL == "" {
		c.PushURL = DefaultPushURL
	}
	if c.RequestTimeout == "" {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}

	// Realtime
	if c.Realtime.MaxRetries == 0 {
		c.Realtime.MaxRetries = DefaultMaxRetries
	}
	if c.Realtime.RetryDelay == "" {
		c.Realtime.RetryDelay = DefaultRetryDelay
	}

	// Session
	if c.Session.Backend == "" {
		c.Session.Backend = BackendFile
	}
	c.Session.Backend = strings.ToLower(c.Session.Backend)
	if c.Session.Path == "" {
		c.Session.Path = DefaultSessionPath
	}
	if c.Session.Prefix == "" {
		c.Session.Prefix = DefaultValkeyPrefix
	}

	// Metrics
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = DefaultNamespace
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	details := map[string][]string{}
	add := func(field, msg string) {
		details[field] = append(details[field], msg)
	}

	if u, err := url.Parse(c.APIBaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		add("apiBaseURL", "must be an http or https URL")
	}
	if u, err := url.Parse(c.PushURL); err != nil || u.Host == "" ||
		(u.Scheme != "ws" && u.Scheme != "wss" && u.Scheme != "http" && u.Scheme != "https") {
		add("pushURL", "must be a ws, wss, http or https URL")
	}
	if d, err := time.ParseDuration(c.RequestTimeout); err != nil || d <= 0 {
		add("requestTimeout", "must be a positive duration such as \"15s\"")
	}
	if c.Realtime.MaxRetries < 0 {
		add("realtime.maxRetries", "must not be negative")
	}
	if d, err := time.ParseDuration(c.Realtime.RetryDelay); err != nil || d < 0 {
		add("realtime.retryDelay", "must be a duration such as \"1s\"")
	}
	switch c.Session.Backend {
	case BackendMemory, BackendFile:
	case BackendValkey:
		if c.Session.ValkeyURL == "" {
			add("session.valkeyURL", "is required for the valkey backend")
		}
	default:
		add("session.backend", "must be memory, file or valkey")
	}
	if _, ok := logLevels[strings.ToLower(c.LogLevel)]; !ok {
		add("logLevel", "must be debug, info, warn or error")
	}

	if len(details) > 0 {
		return apperr.Newf(apperr.KindValidation, "invalid %s", ConfigFileName).
			WithOp("config.validate").
			WithDetails(details)
	}
	return nil
}

// Timeout returns RequestTimeout as a duration, or the default when unparsable.
func (c *Config) Timeout() time.Duration {
	if d, err := time.ParseDuration(c.RequestTimeout); err == nil && d > 0 {
		return d
	}
	d, _ := time.ParseDuration(DefaultRequestTimeout)
	return d
}

// RetryDelay returns the push dial delay as a duration.
func (c *Config) RetryDelay() time.Duration {
	if d, err := time.ParseDuration(c.Realtime.RetryDelay); err == nil && d >= 0 {
		return d
	}
	d, _ := time.ParseDuration(DefaultRetryDelay)
	return d
}

// SessionPath returns the absolute path of the session file.
func (c *Config) SessionPath() string {
	path := c.Session.Path
	if path == "" {
		path = DefaultSessionPath
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.Dir(), path)
}

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// SlogLevel returns LogLevel as a slog.Level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	if l, ok := logLevels[strings.ToLower(c.LogLevel)]; ok {
		return l
	}
	return slog.LevelInfo
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	path := filepath.Join(dir, ConfigFileName)
	_, err := os.Stat(path)
	return err == nil
}

// FindProjectRoot walks up directories to find the project root.
// Returns the directory containing storefront.json, or an error if not found.
func FindProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		if Exists(dir) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.Wrapf(ErrNotFound, "searched %s and its parents", startDir)
		}
		dir = parent
	}
}
