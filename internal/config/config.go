// Package config handles application configuration and environment loading.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"dclake/internal/blob"
)

// EnvPrefix prefixes every environment override, e.g. DCLAKE_STORE_URI.
const EnvPrefix = "DCLAKE"

// DefaultConfigName is the config file looked up in the working directory
// when no explicit path is given.
const DefaultConfigName = "dclake"

// Config holds the configuration of the ingestion and join tools.
type Config struct {
	ProjectPath  string // project YAML with workflows, collections and joins
	RegistryPath string // SQLite registry of raw files and table locations
	StoreURI     string // root of the canonical table store (local path or object-store URI)
	ScratchDir   string // staging directory; a temporary directory when empty
	Threads      int    // DuckDB worker threads; zero keeps the DuckDB default
	MemoryLimit  string // DuckDB memory limit such as "4GB"
	Retain       int    // snapshot files kept per canonical table
	LogLevel     string // log level: debug, info, warn, error (default "info")

	// Storage credentials for s3://, gs:// and az:// locations.
	Storage blob.Config

	// ConfigFile is the file the configuration was read from, empty when
	// only defaults and environment were used.
	ConfigFile string

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	var errs []error
	if c.ProjectPath == "" {
		errs = append(errs, fmt.Errorf("project path is required"))
	}
	if c.StoreURI == "" {
		errs = append(errs, fmt.Errorf("store URI is required"))
	} else if _, err := blob.ParseURI(c.StoreURI); err != nil {
		errs = append(errs, fmt.Errorf("store URI: %w", err))
	}
	if c.Threads < 0 {
		errs = append(errs, fmt.Errorf("threads must not be negative"))
	}
	if c.Retain < 0 {
		errs = append(errs, fmt.Errorf("retain must not be negative"))
	}
	switch c.Storage.S3.URLStyle {
	case "", "path", "vhost":
	default:
		errs = append(errs, fmt.Errorf("s3 url_style must be path or vhost, got %q", c.Storage.S3.URLStyle))
	}
	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("project", "dclake.project.yaml")
	v.SetDefault("registry", filepath.Join(".dclake", "registry.sqlite"))
	v.SetDefault("store_uri", filepath.Join(".dclake", "tables"))
	v.SetDefault("scratch_dir", "")
	v.SetDefault("threads", 0)
	v.SetDefault("memory_limit", "")
	v.SetDefault("retain", 3)
	v.SetDefault("log_level", "info")
	v.SetDefault("s3.key_id", "")
	v.SetDefault("s3.secret", "")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.region", "")
	v.SetDefault("s3.url_style", "")
	v.SetDefault("gcs.key_file", "")
	v.SetDefault("azure.account_name", "")
	v.SetDefault("azure.account_key", "")
	v.SetDefault("azure.endpoint", "")
}

// Load reads configuration from an optional YAML file, then applies
// DCLAKE_* environment overrides (nested keys use underscores, e.g.
// DCLAKE_S3_KEY_ID). An empty path looks for dclake.yaml in the working
// directory; a missing default file is not an error, a missing explicit file is.
func Load(path string) (*Config, error) {
	return LoadWithFlags(path, nil)
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"project":      "project",
	"registry":     "registry",
	"store-uri":    "store_uri",
	"log-level":    "log_level",
	"memory-limit": "memory_limit",
	"threads":      "threads",
}

// LoadWithFlags is Load with explicitly set flags from fs taking precedence
// over the file and the environment. Flags absent from fs are ignored.
func LoadWithFlags(path string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	cfg := &Config{}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		cfg.ConfigFile = v.ConfigFileUsed()
	}

	cfg.ProjectPath = v.GetString("project")
	cfg.RegistryPath = v.GetString("registry")
	cfg.StoreURI = v.GetString("store_uri")
	cfg.ScratchDir = v.GetString("scratch_dir")
	cfg.Threads = v.GetInt("threads")
	cfg.MemoryLimit = v.GetString("memory_limit")
	cfg.Retain = v.GetInt("retain")
	cfg.LogLevel = v.GetString("log_level")
	cfg.Storage = blob.Config{
		S3: blob.S3Config{
			KeyID:    v.GetString("s3.key_id"),
			Secret:   v.GetString("s3.secret"),
			Endpoint: v.GetString("s3.endpoint"),
			Region:   v.GetString("s3.region"),
			URLStyle: v.GetString("s3.url_style"),
		},
		GCS: blob.GCSConfig{KeyFile: v.GetString("gcs.key_file")},
		Azure: blob.AzureConfig{
			AccountName: v.GetString("azure.account_name"),
			AccountKey:  v.GetString("azure.account_key"),
			Endpoint:    v.GetString("azure.endpoint"),
		},
	}

	switch strings.ToLower(cfg.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("unknown log level %q, using info", cfg.LogLevel))
		cfg.LogLevel = "info"
	}
	if (cfg.Storage.S3.KeyID == "") != (cfg.Storage.S3.Secret == "") {
		cfg.Warnings = append(cfg.Warnings, "only one of s3.key_id and s3.secret is set; S3 locations will be unreadable")
	}
	if loc, err := blob.ParseURI(cfg.StoreURI); err == nil && loc.Scheme == blob.SchemeS3 && cfg.Storage.S3.KeyID == "" {
		cfg.Warnings = append(cfg.Warnings, "store is on S3 but no S3 credentials are configured")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv reads a .env file and sets any variables not already in the environment.
// Lines must be in KEY=VALUE format. Comments (#) and blank lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(strings.TrimPrefix(line, "export "), "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = stripQuotes(strings.TrimSpace(value))
		// Environment variables take precedence.
		if _, set := os.LookupEnv(key); !set {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
