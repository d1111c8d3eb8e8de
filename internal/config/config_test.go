package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dyluth/rota/internal/topology"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalTopology = `
topology:
  sections:
    - id: "1"
      positions:
        - {id: "1.1", label: "Tower A", next: "1.2", entry: true, min_age: 16}
        - {id: "1.2", label: "Tower B", next: "1.1"}
        - {id: "1.3", label: "Rest Chair", rest: true}
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rota.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func validConfig() *RotaConfig {
	return &RotaConfig{
		Version: "1.0",
		Topology: TopologyConfig{Sections: []topology.SectionSpec{
			{ID: "A", Positions: []topology.PositionSpec{{ID: "A.1", Rest: true}}},
		}},
	}
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `version: "1.0"
redis_url: "redis://cache:6380/2"
timezone: "Europe/London"
policy:
  restricted_from_minute: 50
  enforce_restricted: false
storage:
  timeout: 5s
  max_retries: 1
  retry_interval: 250ms
sandbox:
  ttl: 30m
directory:
  kind: sqlite
  path: roster.db
repair:
  id_prefixes: ["id:", "#"]
`+minimalTopology)

	config, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "redis://cache:6380/2", config.RedisURL)
	assert.Equal(t, "Europe/London", config.Location().String())
	assert.Equal(t, 50, *config.Policy.RestrictedFromMinute)
	assert.False(t, *config.Policy.EnforceRestricted)
	assert.Equal(t, 5*time.Second, config.Storage.Timeout)
	assert.Equal(t, 1, *config.Storage.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, config.Storage.RetryInterval)
	assert.Equal(t, 30*time.Minute, config.Sandbox.TTL)
	assert.Equal(t, "sqlite", config.Directory.Kind)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "roster.db"), config.Directory.Path)
	assert.Equal(t, []string{"id:", "#"}, config.Repair.IDPrefixes)

	policy := config.EnginePolicy()
	assert.Equal(t, 50, policy.RestrictedFromMinute)
	assert.False(t, policy.EnforceRestricted)

	opts, err := config.RedisOptions()
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)

	topo, err := config.BuildTopology()
	require.NoError(t, err)
	assert.Equal(t, []string{"1.1", "1.2", "1.3"}, topo.AllPositions())
	assert.True(t, topo.IsRestPosition("1.3"))
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `version: "1.0"`+minimalTopology)

	config, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultRedisURL, config.RedisURL)
	assert.Equal(t, time.UTC.String(), config.Location().String())
	assert.Equal(t, 45, *config.Policy.RestrictedFromMinute)
	assert.True(t, *config.Policy.EnforceRestricted)
	assert.Equal(t, DefaultTimeout, config.Storage.Timeout)
	assert.Equal(t, DefaultMaxRetries, *config.Storage.MaxRetries)
	assert.Equal(t, DefaultRetryInterval, config.Storage.RetryInterval)
	assert.Equal(t, DefaultSandboxTTL, config.Sandbox.TTL)
	assert.Equal(t, "yaml", config.Directory.Kind)
	assert.Equal(t, filepath.Join(filepath.Dir(path), DefaultRosterPath), config.Directory.Path)
	assert.Empty(t, config.Repair.IDPrefixes)
}

func TestLoad_RedisURLEnvOverride(t *testing.T) {
	t.Setenv(RedisURLEnv, "redis://override:6379")
	config, err := Load(writeConfig(t, `version: "1.0"
redis_url: "redis://file:6379"`+minimalTopology))
	require.NoError(t, err)
	assert.Equal(t, "redis://override:6379", config.RedisURL)
}

func TestLoad_FileNotFound(t *testing.T) {
	config, err := Load("/nonexistent/rota.yml")
	assert.Error(t, err)
	assert.Nil(t, config)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestLoad_InvalidYAML(t *testing.T) {
	config, err := Load(writeConfig(t, `version: "1.0"
topology:
  - this is invalid
    yaml syntax
`))
	assert.Error(t, err)
	assert.Nil(t, config)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoad_InvalidConfiguration(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"unsupported version", `version: "2.0"` + minimalTopology, "unsupported version: 2.0"},
		{"bad timezone", "version: \"1.0\"\ntimezone: Mars/Olympus" + minimalTopology, "invalid timezone"},
		{"bad redis url", "version: \"1.0\"\nredis_url: \"ftp://x\"" + minimalTopology, "invalid redis_url"},
		{"minute out of range", "version: \"1.0\"\npolicy:\n  restricted_from_minute: 61" + minimalTopology, "restricted_from_minute"},
		{"negative retries", "version: \"1.0\"\nstorage:\n  max_retries: -1" + minimalTopology, "max_retries"},
		{"negative timeout", "version: \"1.0\"\nstorage:\n  timeout: -1s" + minimalTopology, "storage.timeout"},
		{"negative ttl", "version: \"1.0\"\nsandbox:\n  ttl: -5m" + minimalTopology, "sandbox.ttl"},
		{"unknown directory", "version: \"1.0\"\ndirectory:\n  kind: ldap" + minimalTopology, "invalid directory.kind"},
		{"no sections", `version: "1.0"`, "invalid topology"},
		{"broken edge", `version: "1.0"
topology:
  sections:
    - id: "1"
      positions:
        - {id: "1.1", next: "1.9"}
`, "invalid topology"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Nil(t, config)
			assert.Contains(t, err.Error(), "invalid configuration")
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_AppliesDefaultsInPlace(t *testing.T) {
	config := validConfig()
	require.NoError(t, config.Validate())

	require.NotNil(t, config.Policy)
	assert.Equal(t, 45, *config.Policy.RestrictedFromMinute)
	require.NotNil(t, config.Storage)
	assert.Equal(t, DefaultTimeout, config.Storage.Timeout)
	require.NotNil(t, config.Directory)
	assert.Equal(t, DefaultRosterPath, config.Directory.Path, "Validate leaves paths relative")

	// Explicit zero minute means the whole hour is restricted
	zero := 0
	config = validConfig()
	config.Policy = &PolicyConfig{RestrictedFromMinute: &zero}
	require.NoError(t, config.Validate())
	assert.Equal(t, 0, config.EnginePolicy().RestrictedFromMinute)
	assert.True(t, config.EnginePolicy().EnforceRestricted)
}
