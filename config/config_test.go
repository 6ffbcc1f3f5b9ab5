package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/eljojo/civic/runtime"
	"github.com/eljojo/civic/services/room"
	"github.com/eljojo/civic/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const roomKey = "@AQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQE=.ed25519"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "./data", cfg.DBPath)
	assert.Equal(t, room.DefaultLanguage, cfg.Language)
	assert.Equal(t, 5, cfg.MaxParallel)
	assert.False(t, cfg.Room.Enabled())
	assert.Equal(t, 10*time.Minute, cfg.RefreshRate)
	assert.Equal(t, runtime.EnvProduction, cfg.Environment)
	assert.Equal(t, filepath.Join("data", "secret"), cfg.SecretPath())
	assert.Equal(t, filepath.Join("data", "ledger.db"), cfg.LedgerPath())
}

// TestLoadPrecedence verifies flags beat CIVIC_* environment variables,
// which beat the built-in defaults.
func TestLoadPrecedence(t *testing.T) {
	t.Setenv("CIVIC_HTTP_ADDR", ":9000")
	t.Setenv("CIVIC_LANGUAGE", "es-ES")
	t.Setenv("CIVIC_ROOM_HOST", "room.example")
	t.Setenv("CIVIC_ROOM_KEY", roomKey)
	t.Setenv("CIVIC_ROOM_MQTT_BROKER", "tcp://broker:1883")
	t.Setenv("CIVIC_ENV", "development")

	cfg, err := Load([]string{"--language", "mi-NZ", "--room.refresh-interval", "1m"})
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.HTTPAddr)
	assert.Equal(t, "mi-NZ", cfg.Language)
	assert.True(t, cfg.Room.Enabled())
	assert.Equal(t, time.Minute, cfg.Room.RefreshInterval)
	assert.Equal(t, "https://room.example", cfg.Room.URL, "url defaults to the room host")
	assert.Equal(t, "tcp://broker:1883", cfg.Room.MQTTBroker)
	assert.Equal(t, runtime.EnvDevelopment, cfg.Environment)

	addr, err := cfg.Room.Address()
	require.NoError(t, err)
	assert.Equal(t, types.DefaultRoomPort, addr.Port)
	assert.Equal(t, types.FeedID(roomKey), addr.FeedID())
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "civic.yaml")
	require.NoError(t, os.WriteFile(path, []byte("db-path: /var/lib/civic\nmax-parallel: 8\n"), 0o600))

	cfg, err := Load([]string{"--config", path})
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/civic", cfg.DBPath)
	assert.Equal(t, 8, cfg.MaxParallel)
}

func TestLoadRejectsBadRooms(t *testing.T) {
	for name, args := range map[string][]string{
		"bad key":        {"--room.host", "room.example", "--room.key", "nope", "--room.mqtt-broker", "tcp://b:1883"},
		"missing broker": {"--room.host", "room.example", "--room.key", roomKey},
		"missing host":   {"--room.key", roomKey, "--room.mqtt-broker", "tcp://b:1883"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load(args)
			assert.Error(t, err)
		})
	}

	_, err := Load([]string{"--db-path", ""})
	assert.Error(t, err)

	_, err = Load([]string{"--env", "staging"})
	assert.Error(t, err)
}
