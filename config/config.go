// Package config loads civic's settings from flags, CIVIC_* environment
// variables, an optional config file and a .env file, in that order of
// precedence.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/eljojo/civic/runtime"
	"github.com/eljojo/civic/services/room"
	"github.com/eljojo/civic/types"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "civic"

// Config is the resolved configuration.
type Config struct {
	HTTPAddr    string
	DBPath      string
	Language    string
	MaxParallel int

	Room RoomConfig

	Verbose     bool
	Trace       bool
	ShowRoom    bool
	RefreshRate time.Duration

	BugsnagAPIKey string

	// Environment picks how strictly failures are handled.
	Environment runtime.Environment
}

// RoomConfig is the room this server is attached to.
type RoomConfig struct {
	Host            string
	Port            int
	Key             string
	URL             string
	RefreshInterval time.Duration
	MQTTBroker      string
	MQTTUser        string
	MQTTPass        string
	InvitesPerMin   float64
}

// Enabled reports whether a room is configured at all.
func (r RoomConfig) Enabled() bool {
	return r.Host != "" || r.Key != ""
}

// Address is the room's multiserver address.
func (r RoomConfig) Address() (types.Address, error) {
	return types.NewAddress(r.Host, r.Port, r.Key)
}

// SecretPath is where the server keyring lives.
func (c Config) SecretPath() string {
	return filepath.Join(c.DBPath, "secret")
}

// LedgerPath is the bbolt file holding the local ledger.
func (c Config) LedgerPath() string {
	return filepath.Join(c.DBPath, "ledger.db")
}

// Flags declares every setting on fs.
func Flags(fs *pflag.FlagSet) {
	fs.String("config", "", "config file (yaml, toml or json)")
	fs.String("http-addr", ":8080", "http server address")
	fs.String("db-path", "./data", "directory holding the ledger and the server secret")
	fs.String("language", room.DefaultLanguage, "default language for room notices")
	fs.Int("max-parallel", 5, "fan-out width for batch lookups")

	fs.String("room.host", "", "room hostname")
	fs.Int("room.port", types.DefaultRoomPort, "room port")
	fs.String("room.key", "", "room public key (@…=.ed25519)")
	fs.String("room.url", "", "room web url (defaults to https://<room.host>)")
	fs.Duration("room.refresh-interval", 5*time.Minute, "how often to refresh room state")
	fs.String("room.mqtt-broker", "", "MQTT broker carrying room RPC")
	fs.String("room.mqtt-user", "", "MQTT username")
	fs.String("room.mqtt-pass", "", "MQTT password")
	fs.Float64("invite-rate", 6, "room invites allowed per minute (0 = unlimited)")

	fs.Bool("verbose", false, "log debug stuff")
	fs.Bool("trace", false, "log trace stuff, including RPC payloads")
	fs.Bool("show-room", false, "print a table with room members")
	fs.Duration("refresh-rate", 10*time.Minute, "how often the room table is printed")
	fs.String("bugsnag-api-key", "", "report panics and errors to bugsnag")
	fs.String("env", "production", "production, development or test (strict)")
}

// Load parses args and resolves the configuration.
func Load(args []string) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(); err == nil {
		logrus.Debug("loaded .env")
	}

	fs := pflag.NewFlagSet("civic", pflag.ContinueOnError)
	Flags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	// use environment variables
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}

	if cfgfile := v.GetString("config"); cfgfile != "" {
		v.SetConfigFile(cfgfile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s", err)
		}
	}

	return FromViper(v)
}

// FromViper builds a Config out of an already populated viper.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		HTTPAddr:    v.GetString("http-addr"),
		DBPath:      v.GetString("db-path"),
		Language:    v.GetString("language"),
		MaxParallel: v.GetInt("max-parallel"),
		Room: RoomConfig{
			Host:            v.GetString("room.host"),
			Port:            v.GetInt("room.port"),
			Key:             v.GetString("room.key"),
			URL:             v.GetString("room.url"),
			RefreshInterval: v.GetDuration("room.refresh-interval"),
			MQTTBroker:      v.GetString("room.mqtt-broker"),
			MQTTUser:        v.GetString("room.mqtt-user"),
			MQTTPass:        v.GetString("room.mqtt-pass"),
			InvitesPerMin:   v.GetFloat64("invite-rate"),
		},
		Verbose:       v.GetBool("verbose"),
		Trace:         v.GetBool("trace"),
		ShowRoom:      v.GetBool("show-room"),
		RefreshRate:   v.GetDuration("refresh-rate"),
		BugsnagAPIKey: v.GetString("bugsnag-api-key"),
	}

	env, err := runtime.ParseEnvironment(v.GetString("env"))
	if err != nil {
		return nil, err
	}
	cfg.Environment = env

	if cfg.DBPath == "" {
		return nil, fmt.Errorf("db-path is required")
	}
	if cfg.Room.Enabled() {
		if _, err := cfg.Room.Address(); err != nil {
			return nil, err
		}
		if cfg.Room.URL == "" {
			cfg.Room.URL = "https://" + cfg.Room.Host
		}
		if cfg.Room.MQTTBroker == "" {
			return nil, fmt.Errorf("room.mqtt-broker is required when a room is configured")
		}
	}
	return cfg, nil
}
