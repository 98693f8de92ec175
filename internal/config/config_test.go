package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir switches to an empty directory so no stray dclake.yaml is picked up.
func chdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "dclake.project.yaml", cfg.ProjectPath)
	assert.Equal(t, filepath.Join(".dclake", "registry.sqlite"), cfg.RegistryPath)
	assert.Equal(t, filepath.Join(".dclake", "tables"), cfg.StoreURI)
	assert.Equal(t, 3, cfg.Retain)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.ConfigFile)
	assert.Empty(t, cfg.Warnings)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := chdir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dclake.yaml"), []byte(`
project: projects/main.yaml
store_uri: s3://lake/tables
threads: 4
log_level: debug
s3:
  key_id: AKIA
  secret: from-file
  region: eu-west-1
`), 0o600))
	t.Setenv("DCLAKE_S3_SECRET", "from-env")
	t.Setenv("DCLAKE_RETAIN", "5")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "projects/main.yaml", cfg.ProjectPath)
	assert.Equal(t, "s3://lake/tables", cfg.StoreURI)
	assert.Equal(t, 4, cfg.Threads)
	assert.Equal(t, 5, cfg.Retain)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	assert.Equal(t, "AKIA", cfg.Storage.S3.KeyID)
	assert.Equal(t, "from-env", cfg.Storage.S3.Secret)
	assert.Equal(t, "eu-west-1", cfg.Storage.S3.Region)
	assert.NotEmpty(t, cfg.ConfigFile)
	assert.Empty(t, cfg.Warnings)
}

func TestLoadWithFlags_ChangedFlagsWin(t *testing.T) {
	dir := chdir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dclake.yaml"), []byte("project: from-file.yaml\nthreads: 2\n"), 0o600))
	t.Setenv("DCLAKE_LOG_LEVEL", "warn")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("project", "", "")
	fs.String("log-level", "", "")
	fs.Int("threads", 0, "")
	require.NoError(t, fs.Parse([]string{"--project", "from-flag.yaml", "--log-level", "debug"}))

	cfg, err := LoadWithFlags("", fs)
	require.NoError(t, err)
	assert.Equal(t, "from-flag.yaml", cfg.ProjectPath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 2, cfg.Threads, "unset flags leave the file value")
}

func TestLoad_ExplicitFileMustExist(t *testing.T) {
	dir := chdir(t)
	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_Warnings(t *testing.T) {
	chdir(t)
	t.Setenv("DCLAKE_LOG_LEVEL", "chatty")
	t.Setenv("DCLAKE_STORE_URI", "s3://lake/tables")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Len(t, cfg.Warnings, 2)
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{ProjectPath: "p.yaml", StoreURI: "/tmp/tables"}
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "no project", mutate: func(c *Config) { c.ProjectPath = "" }, wantErr: "project path"},
		{name: "no store", mutate: func(c *Config) { c.StoreURI = "" }, wantErr: "store URI"},
		{name: "bucketless store", mutate: func(c *Config) { c.StoreURI = "s3:///tables" }, wantErr: "store URI"},
		{name: "negative threads", mutate: func(c *Config) { c.Threads = -1 }, wantErr: "threads"},
		{name: "negative retain", mutate: func(c *Config) { c.Retain = -2 }, wantErr: "retain"},
		{name: "bad url style", mutate: func(c *Config) { c.Storage.S3.URLStyle = "virtual" }, wantErr: "url_style"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		c := Config{LogLevel: tt.level}
		assert.Equal(t, tt.want, c.SlogLevel(), tt.level)
	}
}

func TestLoadDotEnv_FileNotFound(t *testing.T) {
	assert.NoError(t, LoadDotEnv("/nonexistent/.env"))
}

func TestLoadDotEnv(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(`# comment
DCLAKE_TEST_PLAIN=plain
export DCLAKE_TEST_EXPORTED='quoted value'
DCLAKE_TEST_PRECEDENCE=from_file
not a pair
`), 0o600))
	t.Setenv("DCLAKE_TEST_PRECEDENCE", "from_env")
	t.Cleanup(func() {
		_ = os.Unsetenv("DCLAKE_TEST_PLAIN")
		_ = os.Unsetenv("DCLAKE_TEST_EXPORTED")
	})

	require.NoError(t, LoadDotEnv(envFile))
	assert.Equal(t, "plain", os.Getenv("DCLAKE_TEST_PLAIN"))
	assert.Equal(t, "quoted value", os.Getenv("DCLAKE_TEST_EXPORTED"))
	assert.Equal(t, "from_env", os.Getenv("DCLAKE_TEST_PRECEDENCE"))
}
