package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bridge-server.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  name: drone-bridge
  version: 1.0.0
api:
  host: 0.0.0.0
  port: 8080
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sim", cfg.Vehicle.Driver)
	assert.Equal(t, time.Second, cfg.Bridge.SupervisorTick)
	assert.Equal(t, 2*time.Second, cfg.Bridge.LivenessThreshold)
	assert.Equal(t, 3*time.Second, cfg.Vehicle.HeartbeatTimeout)
	assert.Equal(t, 16, cfg.Bridge.SaltBytes)
	assert.Equal(t, 64, cfg.Bridge.SendQueueSize)
	assert.Equal(t, 15*time.Minute, cfg.JWT.AccessTokenTTL)
}

func TestLoadRejectsBadLiveness(t *testing.T) {
	path := writeConfig(t, `
vehicle:
  heartbeat_timeout: 2s
bridge:
  liveness_threshold: 2s
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "liveness_threshold")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env-override/bridge")
	t.Setenv("VEHICLE_ADDR", "udpout:127.0.0.1:14560")
	t.Setenv("LOG_LEVEL", "debug")

	path := writeConfig(t, `
database:
  dsn: postgres://file/bridge
log:
  level: info
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://env-override/bridge", cfg.Database.DSN)
	assert.Equal(t, "udpout:127.0.0.1:14560", cfg.Vehicle.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	require.Error(t, err)
}
