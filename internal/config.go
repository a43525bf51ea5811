package internal

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Provider names accepted in configuration and on the command line
const (
	ProviderRealDebrid = "realdebrid"
	ProviderAllDebrid  = "alldebrid"
	ProviderPremiumize = "premiumize"
	ProviderTorBox     = "torbox"
)

// KnownProviders lists every provider in default ranking order
var KnownProviders = []string{ProviderRealDebrid, ProviderAllDebrid, ProviderPremiumize, ProviderTorBox}

// ProvidersConfig holds one API token per provider. An empty token means
// the provider is not configured.
type ProvidersConfig struct {
	RealDebrid string `mapstructure:"realdebrid" yaml:"realdebrid"`
	AllDebrid  string `mapstructure:"alldebrid" yaml:"alldebrid"`
	Premiumize string `mapstructure:"premiumize" yaml:"premiumize"`
	TorBox     string `mapstructure:"torbox" yaml:"torbox"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level     string `mapstructure:"level" yaml:"level"`
	Format    string `mapstructure:"format" yaml:"format"`
	File      string `mapstructure:"file" yaml:"file"`
	MaxSizeMB int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	Debug     bool   `mapstructure:"debug" yaml:"debug"`
	Quiet     bool   `mapstructure:"quiet" yaml:"quiet"`
}

// Config is built once at startup and passed explicitly; nothing mutates
// it afterwards.
type Config struct {
	Providers            ProvidersConfig `mapstructure:"providers" yaml:"providers"`
	ProviderOrder        []string        `mapstructure:"provider_order" yaml:"provider_order"`
	PollInterval         time.Duration   `mapstructure:"poll_interval" yaml:"poll_interval"`
	Timeout              int             `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries           int             `mapstructure:"max_retries" yaml:"max_retries"`
	APIRequestsPerMinute int             `mapstructure:"api_requests_per_minute" yaml:"api_requests_per_minute"`
	UserAgent            string          `mapstructure:"user_agent" yaml:"user_agent"`
	Proxy                string          `mapstructure:"proxy" yaml:"proxy"`
	OutputDir            string          `mapstructure:"output_dir" yaml:"output_dir"`
	RateLimit            string          `mapstructure:"rate_limit" yaml:"rate_limit"`
	ProbeConcurrency     int             `mapstructure:"probe_concurrency" yaml:"probe_concurrency"`
	Log                  LogConfig       `mapstructure:"log" yaml:"log"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		ProviderOrder:        append([]string(nil), KnownProviders...),
		PollInterval:         3 * time.Second,
		Timeout:              30,
		MaxRetries:           3,
		APIRequestsPerMinute: 250,
		UserAgent:            "onedl/1.0",
		OutputDir:            ".",
		ProbeConcurrency:     1,
		Log: LogConfig{
			Level:     "info",
			Format:    "console",
			MaxSizeMB: 10,
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	for _, name := range KnownProviders {
		v.SetDefault("providers."+name, "")
	}
	v.SetDefault("provider_order", d.ProviderOrder)
	v.SetDefault("poll_interval", d.PollInterval)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("max_retries", d.MaxRetries)
	v.SetDefault("api_requests_per_minute", d.APIRequestsPerMinute)
	v.SetDefault("user_agent", d.UserAgent)
	v.SetDefault("proxy", "")
	v.SetDefault("output_dir", d.OutputDir)
	v.SetDefault("rate_limit", "")
	v.SetDefault("probe_concurrency", d.ProbeConcurrency)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.debug", false)
	v.SetDefault("log.quiet", false)
}

// Load reads configuration from the OS filesystem.
// Priority: environment variables > config file > defaults
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env file: %w", err)
	}
	return LoadFrom(afero.NewOsFs(), configPath)
}

// LoadFrom reads configuration through fsys. An empty configPath searches
// ./onedl.yaml and $HOME/.config/onedl/onedl.yaml; a missing file there is
// not an error.
func LoadFrom(fsys afero.Fs, configPath string) (*Config, error) {
	v := viper.New()
	v.SetFs(fsys)

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("onedl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/onedl")
	}

	v.SetEnvPrefix("ONEDL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// short names used by older setups
	for _, name := range KnownProviders {
		key := "providers." + name
		if err := v.BindEnv(key, "ONEDL_PROVIDERS_"+strings.ToUpper(name), strings.ToUpper(name)+"_TOKEN"); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.ValidateConfig(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ValidateConfig validates the configuration values
func (c *Config) ValidateConfig() error {
	if c.PollInterval <= 0 {
		return NewValidationErrorWithValue("poll_interval", "must be positive", c.PollInterval.String()).
			WithSuggestion("Use a duration such as 3s")
	}

	if c.Timeout < 1 {
		return fmt.Errorf("invalid timeout: %d (must be > 0)", c.Timeout)
	}

	if c.MaxRetries < 0 {
		return fmt.Errorf("invalid max retries: %d (must be >= 0)", c.MaxRetries)
	}

	if c.APIRequestsPerMinute < 0 {
		return fmt.Errorf("invalid api_requests_per_minute: %d (must be >= 0)", c.APIRequestsPerMinute)
	}

	if c.ProbeConcurrency < 1 || c.ProbeConcurrency > 16 {
		return NewValidationErrorWithValue("probe_concurrency", "must be between 1 and 16", c.ProbeConcurrency).
			WithContext("max_allowed", 16)
	}

	for _, name := range c.ProviderOrder {
		if !isKnownProvider(name) {
			return NewValidationErrorWithValue("provider_order", "unknown provider", name).
				WithSuggestion("Known providers: " + strings.Join(KnownProviders, ", "))
		}
	}

	if c.Proxy != "" {
		if !strings.HasPrefix(c.Proxy, "http://") &&
			!strings.HasPrefix(c.Proxy, "https://") &&
			!strings.HasPrefix(c.Proxy, "socks5://") {
			return NewValidationErrorWithValue("proxy", "unsupported proxy scheme", c.Proxy).
				WithSuggestion("Use http://, https://, or socks5://")
		}
	}

	if _, err := ParseByteSize(c.RateLimit); err != nil {
		return NewValidationErrorWithValue("rate_limit", err.Error(), c.RateLimit).
			WithSuggestion("Use a size such as 500K, 2M or 1.5MB")
	}

	switch c.Log.Format {
	case "console", "json":
	default:
		return NewValidationErrorWithValue("log.format", "must be console or json", c.Log.Format)
	}

	return nil
}

func isKnownProvider(name string) bool {
	for _, known := range KnownProviders {
		if known == name {
			return true
		}
	}
	return false
}

// TokenFor returns the configured token for a provider name
func (c *Config) TokenFor(name string) string {
	switch name {
	case ProviderRealDebrid:
		return c.Providers.RealDebrid
	case ProviderAllDebrid:
		return c.Providers.AllDebrid
	case ProviderPremiumize:
		return c.Providers.Premiumize
	case ProviderTorBox:
		return c.Providers.TorBox
	}
	return ""
}

// Credentials returns configured providers following provider_order; known
// providers missing from the order are appended. Providers without a token
// are left out.
func (c *Config) Credentials() []ProviderCredential {
	seen := make(map[string]bool)
	var creds []ProviderCredential

	add := func(name string) {
		if seen[name] {
			return
		}
		seen[name] = true
		if token := strings.TrimSpace(c.TokenFor(name)); token != "" {
			creds = append(creds, ProviderCredential{Name: name, Token: token})
		}
	}

	for _, name := range c.ProviderOrder {
		add(name)
	}
	for _, name := range KnownProviders {
		add(name)
	}
	return creds
}

// binary multiples: "1K" and "1KB" both mean 1024 bytes
var binaryUnits = strings.NewReplacer(
	"KB", "KiB", "MB", "MiB", "GB", "GiB", "TB", "TiB",
)

// ParseByteSize parses sizes such as "512", "100B", "1.5K" or "2MB" using
// binary multiples. An empty string is zero.
func ParseByteSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0, nil
	}
	if strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("size cannot be negative: %s", s)
	}

	switch last := s[len(s)-1]; last {
	case 'K', 'M', 'G', 'T':
		s += "B"
	}
	s = binaryUnits.Replace(s)

	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if n > uint64(1<<62) {
		return 0, fmt.Errorf("size too large: %s", s)
	}
	return int64(n), nil
}

// MaskToken keeps the last four characters of a token for display
func MaskToken(token string) string {
	if len(token) <= 4 {
		return strings.Repeat("*", len(token))
	}
	return strings.Repeat("*", len(token)-4) + token[len(token)-4:]
}

// WriteDefaultConfig writes a YAML template with default values to path
func WriteDefaultConfig(fsys afero.Fs, path string) error {
	if exists, err := afero.Exists(fsys, path); err != nil {
		return err
	} else if exists {
		return fmt.Errorf("config file already exists: %s", path)
	}

	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := fsys.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	return afero.WriteFile(fsys, path, data, 0600)
}
