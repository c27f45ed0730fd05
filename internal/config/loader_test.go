package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goran-ethernal/GovIndexor/pkg/config"
	"github.com/stretchr/testify/require"
)

func TestLoadFromYAML(t *testing.T) {
	cfg, err := LoadFromYAML("../../config.example.yaml")
	if err != nil {
		t.Fatalf("failed to load YAML config: %v", err)
	}

	validateConfig(t, cfg, "YAML")
}

func TestLoadFromJSON(t *testing.T) {
	cfg, err := LoadFromJSON("../../config.example.json")
	if err != nil {
		t.Fatalf("failed to load JSON config: %v", err)
	}

	validateConfig(t, cfg, "JSON")
}

func TestLoadFromTOML(t *testing.T) {
	cfg, err := LoadFromTOML("../../config.example.toml")
	if err != nil {
		t.Fatalf("failed to load TOML config: %v", err)
	}

	validateConfig(t, cfg, "TOML")
}

func TestLoadFromFile_AutoDetect(t *testing.T) {
	for _, path := range []string{
		"../../config.example.yaml",
		"../../config.example.json",
		"../../config.example.toml",
	} {
		cfg, err := LoadFromFile(path)
		require.NoError(t, err, path)
		validateConfig(t, cfg, filepath.Ext(path))
	}
}

func TestLoadFromFile_UnsupportedFormat(t *testing.T) {
	_, err := LoadFromFile("config.txt")
	require.ErrorContains(t, err, "unsupported config file format")
}

// validateConfig checks that the loaded config has expected values
func validateConfig(t *testing.T, cfg *config.Config, format string) {
	t.Helper()

	require.Equal(t, config.StorageDriverSQLite, cfg.Storage.Driver, "[%s] storage.driver", format)
	require.NotEmpty(t, cfg.Storage.SQLite.Path, "[%s] storage.sqlite.path should not be empty", format)
	require.Equal(t, 5000, cfg.Storage.SQLite.BusyTimeout, "[%s] busy_timeout default should be applied", format)

	require.Len(t, cfg.Networks, 1, "[%s] one network expected", format)
	network := cfg.Networks[0]
	require.Equal(t, "mainnet", network.Namespace, "[%s]", format)
	require.Equal(t, 12*time.Second, network.RetryDelay.Duration, "[%s] retry_delay", format)
	require.Equal(t, time.Minute, network.StartupDelay.Duration, "[%s] startup_delay", format)
	require.True(t, network.IsAtomic(), "[%s] atomic_blocks", format)
	require.NotNil(t, network.Retry, "[%s] retry", format)
	require.Equal(t, 5, network.Retry.MaxAttempts, "[%s] retry.max_attempts", format)

	require.Len(t, network.Protocols, 1, "[%s] one protocol expected", format)
	proto := network.Protocols[0]
	require.Equal(t, "governor", proto.Type, "[%s]", format)
	require.Equal(t, "gov", proto.Prefix, "[%s]", format)
	require.Len(t, proto.Sources, 1, "[%s]", format)
	require.Equal(t, uint64(18000000), proto.Sources[0].Start, "[%s]", format)
	require.Equal(t, "handleGovernorCreated", proto.Sources[0].Events[0].Fn, "[%s]", format)

	require.NotNil(t, cfg.Logging, "[%s] logging", format)
	require.Equal(t, "debug", cfg.Logging.GetComponentLevel("dispatcher"), "[%s]", format)
	require.Equal(t, "info", cfg.Logging.GetComponentLevel("indexer"), "[%s]", format)

	require.NotNil(t, cfg.API, "[%s] api", format)
	require.Equal(t, 15*time.Second, cfg.API.ReadTimeout.Duration, "[%s] api read_timeout default", format)
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

const minimalYAML = `
storage:
  sqlite:
    path: ${GOVINDEXOR_TEST_DB}
networks:
  - namespace: sepolia
    rpc_url: ${GOVINDEXOR_TEST_RPC}
    protocols:
      - type: governor
`

func TestLoadFromFile_EnvInterpolation(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("GOVINDEXOR_TEST_DB", filepath.Join(dir, "gov.db"))
	writeFile(t, dir, ".env", "GOVINDEXOR_TEST_RPC=https://sepolia.example.org\n")
	path := writeFile(t, dir, "config.yaml", minimalYAML)
	t.Cleanup(func() { os.Unsetenv("GOVINDEXOR_TEST_RPC") })

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	require.Equal(t, filepath.Join(dir, "gov.db"), cfg.Storage.SQLite.Path)
	require.Equal(t, "https://sepolia.example.org", cfg.Networks[0].RPCURL)

	// defaults
	require.Equal(t, config.DefaultRetryDelay, cfg.Networks[0].RetryDelay.Duration)
	require.Equal(t, "finalized", cfg.Networks[0].Finality)
	require.Zero(t, cfg.Networks[0].StartupDelay.Duration)
	require.True(t, cfg.Networks[0].IsAtomic())
}

func TestLoadFromFile_MissingEnv(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", minimalYAML)

	_, err := LoadFromFile(path)
	require.ErrorContains(t, err, "missing environment variables: GOVINDEXOR_TEST_DB, GOVINDEXOR_TEST_RPC")
}

func TestConfigValidate(t *testing.T) {
	valid := func() *config.Config {
		cfg := &config.Config{
			Storage: config.StorageConfig{SQLite: config.DatabaseConfig{Path: "./test.db"}},
			Networks: []config.NetworkConfig{{
				Namespace: "mainnet",
				RPCURL:    "https://test.com",
				Protocols: []config.ProtocolConfig{{Type: "governor"}},
			}},
		}
		cfg.ApplyDefaults()
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(cfg *config.Config)
		errMsg string
	}{
		{name: "valid", mutate: func(*config.Config) {}},
		{
			name:   "no networks",
			mutate: func(cfg *config.Config) { cfg.Networks = nil },
			errMsg: "at least one network",
		},
		{
			name: "duplicate namespace",
			mutate: func(cfg *config.Config) {
				cfg.Networks = append(cfg.Networks, cfg.Networks[0])
			},
			errMsg: "duplicate namespace 'mainnet'",
		},
		{
			name:   "missing rpc",
			mutate: func(cfg *config.Config) { cfg.Networks[0].RPCURL = "" },
			errMsg: "rpc_url is required",
		},
		{
			name:   "bad finality",
			mutate: func(cfg *config.Config) { cfg.Networks[0].Finality = "pending" },
			errMsg: "invalid block finality",
		},
		{
			name:   "no protocols",
			mutate: func(cfg *config.Config) { cfg.Networks[0].Protocols = nil },
			errMsg: "at least one protocol",
		},
		{
			name: "duplicate prefix",
			mutate: func(cfg *config.Config) {
				cfg.Networks[0].Protocols = []config.ProtocolConfig{{Type: "a", Prefix: "x"}, {Type: "b", Prefix: "x"}}
			},
			errMsg: `prefix "x" already used`,
		},
		{
			name:   "end before start",
			mutate: func(cfg *config.Config) { cfg.Networks[0].StartBlock, cfg.Networks[0].EndBlock = 10, 5 },
			errMsg: "end_block 5 is below start_block 10",
		},
		{
			name:   "postgres without url",
			mutate: func(cfg *config.Config) { cfg.Storage.Driver = config.StorageDriverPostgres },
			errMsg: "postgres.url is required",
		},
		{
			name:   "unknown driver",
			mutate: func(cfg *config.Config) { cfg.Storage.Driver = "mysql" },
			errMsg: "driver must be one of",
		},
		{
			name: "unknown log component",
			mutate: func(cfg *config.Config) {
				cfg.Logging = &config.LoggingConfig{ComponentLevels: map[string]string{"downloader": "info"}}
			},
			errMsg: "unknown component 'downloader'",
		},
		{
			name: "notifier without redis",
			mutate: func(cfg *config.Config) {
				cfg.Notifier = &config.NotifierConfig{Enabled: true}
			},
			errMsg: "redis_url is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.errMsg == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.errMsg)
		})
	}
}
