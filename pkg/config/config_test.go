package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := Default()
	cfg.ClusterName = "test-cluster"
	cfg.Monitors = []string{"10.0.0.1:6789"}
	return cfg
}

func TestDefaultThenApplyDefaultsIsStable(t *testing.T) {
	cfg := Default()
	before := *cfg
	ApplyDefaults(cfg)
	assert.Equal(t, before.OsdTimeout, cfg.OsdTimeout)
	assert.Equal(t, before.Wsize, cfg.Wsize)
}

func TestValidateRejectsMissingClusterName(t *testing.T) {
	cfg := validConfig()
	cfg.ClusterName = ""
	assert.Error(t, Validate(cfg))
}

func TestValidateRejectsNoMonitors(t *testing.T) {
	cfg := validConfig()
	cfg.Monitors = nil
	assert.Error(t, Validate(cfg))
}

func TestValidateRejectsBadMonitorAddress(t *testing.T) {
	cfg := validConfig()
	cfg.Monitors = []string{"not-a-hostport"}
	assert.Error(t, Validate(cfg))
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, Validate(cfg))
}

func TestValidateRejectsBadLogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Level = "VERBOSE"
	assert.Error(t, Validate(cfg))
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	cfg := validConfig()
	cfg.OsdTimeout = 45 * time.Second

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.ClusterName, loaded.ClusterName)
	assert.Equal(t, cfg.Monitors, loaded.Monitors)
	assert.Equal(t, cfg.OsdTimeout, loaded.OsdTimeout)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.yaml")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.ClusterName)
	assert.Equal(t, Default().OsdTimeout, cfg.OsdTimeout)
}

func TestApplyDefaultsUppercasesLogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Level = "debug"
	ApplyDefaults(cfg)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
}

func TestParseFsidEmptyMeansUnset(t *testing.T) {
	cfg := validConfig()
	fsid, ok, err := ParseFsid(cfg)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, fsid)
}

func TestParseFsidDecodesHex(t *testing.T) {
	cfg := validConfig()
	cfg.Fsid = "0102030405060708090a0b0c0d0e0f10"
	fsid, ok, err := ParseFsid(cfg)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, byte(0x01), fsid[0])
	assert.Equal(t, byte(0x10), fsid[15])
}

func TestParseFsidRejectsWrongLength(t *testing.T) {
	cfg := validConfig()
	cfg.Fsid = "0102"
	_, _, err := ParseFsid(cfg)
	assert.Error(t, err)
}

func TestValidateRejectsNonHexFsid(t *testing.T) {
	cfg := validConfig()
	cfg.Fsid = "zz" + "0000000000000000000000000000"
	assert.Error(t, Validate(cfg))
}
