package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/systmms/credcache/internal/cache"
	dserrors "github.com/systmms/credcache/internal/errors"
	"github.com/systmms/credcache/internal/keystore"
	"github.com/systmms/credcache/internal/logging"
	"github.com/systmms/credcache/internal/metrics"
)

// Defaults.
const (
	DefaultPath    = "credcache.yaml"
	DefaultEnvFile = ".env"
	DefaultVault   = "API Keys"
	DefaultSource  = "onepassword"
)

// Environment variables that override the configuration file.
const (
	EnvOPCache      = "OP_CACHE"
	EnvVault        = "CREDCACHE_VAULT"
	EnvAccount      = "CREDCACHE_ACCOUNT"
	EnvSource       = "CREDCACHE_SOURCE"
	EnvCacheFile    = "CREDCACHE_CACHE_FILE"
	EnvTTLSeconds   = "CREDCACHE_TTL_SECONDS"
	EnvKeyFile      = "CREDCACHE_KEY_FILE"
	EnvKeyBackend   = "CREDCACHE_KEY_BACKEND"
	EnvFetchTimeout = "CREDCACHE_FETCH_TIMEOUT_MS"
)

// Config holds the runtime configuration
type Config struct {
	Path     string
	EnvFile  string
	Logger   *logging.Logger
	Metrics  *metrics.Recorder
	Settings Settings

	// lookupEnv reads the process environment. Tests replace it.
	lookupEnv func(string) (string, bool)
}

// Settings is the credcache.yaml structure.
type Settings struct {
	Version        int                          `yaml:"version"`
	Source         string                       `yaml:"source"`
	Vault          string                       `yaml:"vault"`
	Account        string                       `yaml:"account,omitempty"`
	OPCache        bool                         `yaml:"op_cache"`
	CacheFile      string                       `yaml:"cache_file"`
	TTLSeconds     int                          `yaml:"ttl_seconds"`
	KeyFile        string                       `yaml:"key_file,omitempty"`
	KeyBackend     string                       `yaml:"key_backend"`
	FetchTimeoutMs int                          `yaml:"fetch_timeout_ms,omitempty"`
	Literal        map[string]map[string]string `yaml:"literal,omitempty"`
}

// Defaults returns the settings used when nothing is configured.
func Defaults() Settings {
	return Settings{
		Version:    1,
		Source:     DefaultSource,
		Vault:      DefaultVault,
		OPCache:    true,
		CacheFile:  cache.DefaultPath,
		TTLSeconds: int(cache.DefaultTTL / time.Second),
		KeyBackend: keystore.BackendFile,
	}
}

// New returns a Config reading path and envFile. Either may be empty.
func New(path, envFile string, logger *logging.Logger) *Config {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Config{
		Path:      path,
		EnvFile:   envFile,
		Logger:    logger,
		Settings:  Defaults(),
		lookupEnv: os.LookupEnv,
	}
}

// Load builds Settings from defaults, the YAML file, the .env file and the
// process environment, in increasing order of precedence. Missing files are
// not errors.
func (c *Config) Load() error {
	settings := Defaults()

	if c.Path != "" {
		if err := c.loadFile(&settings); err != nil {
			return err
		}
	}

	dotenv, err := c.readEnvFile()
	if err != nil {
		return err
	}

	if err := applyEnv(&settings, c.lookup(dotenv)); err != nil {
		return err
	}

	if err := settings.Validate(); err != nil {
		return err
	}

	c.Settings = settings
	return nil
}

func (c *Config) loadFile(settings *Settings) error {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.Logger.Debug("No configuration file at %s, using defaults", c.Path)
			return nil
		}
		return dserrors.UserError{
			Message:    "Failed to read configuration file",
			Details:    err.Error(),
			Suggestion: "Check file permissions and path",
			Err:        err,
		}
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(settings); err != nil && !errors.Is(err, io.EOF) {
		return dserrors.ConfigError{
			Field:      "path",
			Value:      c.Path,
			Message:    "invalid configuration file: " + err.Error(),
			Suggestion: "Check for indentation errors, misspelled keys, or invalid characters. Use a YAML validator",
		}
	}

	if settings.Version != 1 {
		return dserrors.ConfigError{
			Field:      "version",
			Value:      settings.Version,
			Message:    "unsupported configuration version",
			Suggestion: "Set 'version: 1' at the top of your credcache.yaml file",
		}
	}

	c.Logger.Debug("Loaded configuration from %s", c.Path)
	return nil
}

func (c *Config) readEnvFile() (map[string]string, error) {
	if c.EnvFile == "" {
		return nil, nil
	}

	values, err := godotenv.Read(c.EnvFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, dserrors.ConfigError{
			Field:      "env_file",
			Value:      c.EnvFile,
			Message:    "could not parse env file: " + err.Error(),
			Suggestion: "Use KEY=value lines; quote values containing spaces or '#'",
		}
	}

	c.Logger.Debug("Loaded %d variable(s) from %s", len(values), c.EnvFile)
	return values, nil
}

// lookup resolves a variable from the process environment first, then the
// .env values.
func (c *Config) lookup(dotenv map[string]string) func(string) (string, bool) {
	lookupEnv := c.lookupEnv
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}
	return func(key string) (string, bool) {
		if v, ok := lookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
}

func applyEnv(s *Settings, lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvOPCache); ok {
		s.OPCache = strings.EqualFold(strings.TrimSpace(v), "true")
	}

	strs := []struct {
		name string
		dst  *string
	}{
		{EnvVault, &s.Vault},
		{EnvAccount, &s.Account},
		{EnvSource, &s.Source},
		{EnvCacheFile, &s.CacheFile},
		{EnvKeyFile, &s.KeyFile},
		{EnvKeyBackend, &s.KeyBackend},
	}
	for _, e := range strs {
		if v, ok := lookup(e.name); ok {
			*e.dst = v
		}
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{EnvTTLSeconds, &s.TTLSeconds},
		{EnvFetchTimeout, &s.FetchTimeoutMs},
	}
	for _, e := range ints {
		v, ok := lookup(e.name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return dserrors.ConfigError{
				Field:      e.name,
				Value:      v,
				Message:    "must be a whole number",
				Suggestion: fmt.Sprintf("Set %s to an integer such as 86400", e.name),
			}
		}
		*e.dst = n
	}
	return nil
}

// Validate checks value ranges and enumerations.
func (s Settings) Validate() error {
	if s.TTLSeconds < 0 {
		return dserrors.ConfigError{
			Field:      "ttl_seconds",
			Value:      s.TTLSeconds,
			Message:    "must not be negative",
			Suggestion: "Use 0 to disable cache hits, or a number of seconds such as 86400",
		}
	}
	if s.FetchTimeoutMs < 0 {
		return dserrors.ConfigError{
			Field:      "fetch_timeout_ms",
			Value:      s.FetchTimeoutMs,
			Message:    "must not be negative",
			Suggestion: "Use 0 for no timeout",
		}
	}
	switch s.KeyBackend {
	case "", keystore.BackendFile, keystore.BackendKeyring:
	default:
		return dserrors.ConfigError{
			Field:      "key_backend",
			Value:      s.KeyBackend,
			Message:    "unknown key backend",
			Suggestion: "Use 'file' or 'keyring'",
		}
	}
	if s.Source == "" {
		return dserrors.ConfigError{
			Field:      "source",
			Message:    "credential source is required",
			Suggestion: "Set 'source: onepassword' in credcache.yaml",
		}
	}
	if s.CacheFile == "" {
		return dserrors.ConfigError{
			Field:      "cache_file",
			Message:    "cache file path is required",
			Suggestion: "Remove the empty 'cache_file' entry to use " + cache.DefaultPath,
		}
	}
	return nil
}

// TTL returns the cache time-to-live.
func (s Settings) TTL() time.Duration {
	return time.Duration(s.TTLSeconds) * time.Second
}

// FetchTimeout returns the per-field fetch timeout, zero for none.
func (s Settings) FetchTimeout() time.Duration {
	return time.Duration(s.FetchTimeoutMs) * time.Millisecond
}
