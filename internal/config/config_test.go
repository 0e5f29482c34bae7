package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/replwatch/internal/cluster"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

// TestParse covers the accepted YAML layouts.
func TestParse(t *testing.T) {
	t.Run("under section key", func(t *testing.T) {
		cfg, err := Parse([]byte(`
replicatedServersConfig:
  nodeAddresses:
    - "redis://10.0.0.1:6379"
    - "redis://10.0.0.2:6379"
  scanInterval: 2000
  readMode: master_slave
  database: 3
`))
		require.NoError(t, err)
		assert.Equal(t, []string{"redis://10.0.0.1:6379", "redis://10.0.0.2:6379"}, cfg.NodeAddresses)
		assert.Equal(t, 2000, cfg.ScanInterval)
		assert.Equal(t, ReadModeMasterSlave, cfg.ReadMode)
		assert.Equal(t, 3, cfg.Database)
		// Untouched keys keep defaults.
		assert.Equal(t, SubscriptionModeMaster, cfg.SubscriptionMode)
		assert.Equal(t, 3000, cfg.Timeout)
		require.NoError(t, cfg.Validate())
	})

	t.Run("bare block", func(t *testing.T) {
		cfg, err := Parse([]byte("nodeAddresses: [\"10.0.0.1:6379\"]\nreadMode: MASTER\n"))
		require.NoError(t, err)
		assert.Equal(t, []string{"10.0.0.1:6379"}, cfg.NodeAddresses)
		assert.Equal(t, ReadModeMaster, cfg.ReadMode)
	})

	t.Run("empty document", func(t *testing.T) {
		cfg, err := Parse(nil)
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := Parse([]byte("nodeAddresses: [unterminated"))
		assert.Error(t, err)
	})

	t.Run("wrong type", func(t *testing.T) {
		_, err := Parse([]byte("scanInterval: soon"))
		assert.Error(t, err)
	})
}

// TestLoad verifies reading from disk.
func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replwatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("replicatedServersConfig:\n  nodeAddresses: [\"localhost:7000\"]\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"localhost:7000"}, cfg.NodeAddresses)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

// TestApplyEnv verifies environment overrides.
func TestApplyEnv(t *testing.T) {
	cfg := Default()
	cfg.NodeAddresses = []string{"from-file:6379"}

	err := cfg.ApplyEnv(envMap(map[string]string{
		"REPLWATCH_NODES":         " a:1 , b:2,, c:3 ",
		"REPLWATCH_SCAN_INTERVAL": "250",
		"REPLWATCH_READ_MODE":     "master",
		"REPLWATCH_PASSWORD":      "pw",
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"a:1", "b:2", "c:3"}, cfg.NodeAddresses)
	assert.Equal(t, 250, cfg.ScanInterval)
	assert.Equal(t, ReadModeMaster, cfg.ReadMode)
	assert.Equal(t, "pw", cfg.Password)

	// Nothing set leaves the config alone.
	before := cfg
	require.NoError(t, cfg.ApplyEnv(envMap(nil)))
	assert.Equal(t, before, cfg)

	err = cfg.ApplyEnv(envMap(map[string]string{"REPLWATCH_SCAN_INTERVAL": "fast"}))
	assert.Error(t, err)
}

// TestValidate covers every rejection path.
func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Default()
		cfg.NodeAddresses = []string{"10.0.0.1:6379", "10.0.0.2:6379"}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "no nodes", mutate: func(c *Config) { c.NodeAddresses = nil }, wantErr: true},
		{name: "bad address", mutate: func(c *Config) { c.NodeAddresses = []string{"host:notaport"} }, wantErr: true},
		{name: "duplicate address", mutate: func(c *Config) { c.NodeAddresses = []string{"redis://h:1", "h:1"} }, wantErr: true},
		{name: "zero interval", mutate: func(c *Config) { c.ScanInterval = 0 }, wantErr: true},
		{name: "negative timeout", mutate: func(c *Config) { c.Timeout = -1 }, wantErr: true},
		{name: "negative database", mutate: func(c *Config) { c.Database = -1 }, wantErr: true},
		{name: "unknown read mode", mutate: func(c *Config) { c.ReadMode = "NEAREST" }, wantErr: true},
		{name: "unknown subscription mode", mutate: func(c *Config) { c.SubscriptionMode = "ANY" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	cfg := valid()
	cfg.NodeAddresses = nil
	assert.ErrorIs(t, cfg.Validate(), ErrNoNodes)
}

// TestNodes verifies address parsing order.
func TestNodes(t *testing.T) {
	cfg := Default()
	cfg.NodeAddresses = []string{"redis://10.0.0.2:6380", "10.0.0.1"}
	nodes, err := cfg.Nodes()
	require.NoError(t, err)
	assert.Equal(t, []cluster.NodeAddress{
		{Host: "10.0.0.2", Port: 6380},
		{Host: "10.0.0.1", Port: 6379},
	}, nodes)
}

// TestDerivedSettings verifies skip-slave-init and conversions.
func TestDerivedSettings(t *testing.T) {
	cfg := Default()
	assert.False(t, cfg.SkipSlavesInit())

	cfg.ReadMode = ReadModeMaster
	assert.True(t, cfg.SkipSlavesInit())

	cfg.SubscriptionMode = SubscriptionModeSlave
	assert.False(t, cfg.SkipSlavesInit())

	assert.Equal(t, time.Second, cfg.ScanIntervalDuration())

	cfg.Password = "pw"
	cfg.Database = 1
	opts := cfg.TransportOptions()
	assert.Equal(t, 10*time.Second, opts.ConnectTimeout)
	assert.Equal(t, 3*time.Second, opts.Timeout)
	assert.Equal(t, "pw", opts.Password)
	assert.Equal(t, 1, opts.Database)
}
