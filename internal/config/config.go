// Package config loads caster configuration from a YAML file (hot-reloaded
// via fsnotify, as the teacher's cmd/caster/config.go does) with environment
// variable overrides layered on top via koanf's env provider.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/viper"
)

// Keys recognized per the caster's external configuration surface.
const (
	KeyHost                       = "host"
	KeyNTRIPPort                  = "ntrip_port"
	KeyWebPort                    = "web_port"
	KeyBufferSize                 = "buffer_size"
	KeyMaxConnections             = "max_connections"
	KeyMaxUserConnsPerMount       = "max_user_connections_per_mount"
	KeyBroadcastInterval          = "broadcast_interval"
	KeyDataSendTimeout            = "data_send_timeout"
	KeyMountTimeout               = "mount_timeout"
	KeyClientTimeout              = "client_timeout"
	KeyRingBufferSize             = "ring_buffer_size"
	KeyKeepaliveEnabled           = "tcp_keepalive.enabled"
	KeyKeepaliveIdle              = "tcp_keepalive.idle"
	KeyKeepaliveInterval          = "tcp_keepalive.interval"
	KeyKeepaliveCount             = "tcp_keepalive.count"
	KeyCasterCountry              = "caster.country"
	KeyCasterLatitude             = "caster.latitude"
	KeyCasterLongitude            = "caster.longitude"
	KeyAppName                    = "app.name"
	KeyAppVersion                 = "app.version"
	KeyAppContact                 = "app.contact"
	KeyAppWebsite                 = "app.website"
	KeyDefaultAdminUsername       = "default_admin.username"
	KeyDefaultAdminPassword       = "default_admin.password"
	KeyLogDir                     = "log.dir"
	KeyLogLevel                   = "log.level"
	KeyLogMaxSize                 = "log.max_size"
	KeyLogBackupCount             = "log.backup_count"
	KeyChunked20                  = "chunked_2_0"
	KeyAdminAPIKey                = "admin_api_key"
)

// EnvPrefix is prepended to every environment variable override, e.g.
// NTRIPCASTER_NTRIP_PORT overrides ntrip_port.
const EnvPrefix = "NTRIPCASTER_"

// Config is a thin, typed accessor over a *viper.Viper populated from a YAML
// file and environment overrides. Kept as a wrapper (rather than a plain
// struct) so OnConfigChange hot-reload callers can keep reading through it,
// matching the teacher's pattern of handing callers the live *viper.Viper.
type Config struct {
	v *viper.Viper
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		KeyHost:                 "0.0.0.0",
		KeyNTRIPPort:            2101,
		KeyWebPort:              2102,
		KeyBufferSize:           4096,
		KeyMaxConnections:       1000,
		KeyMaxUserConnsPerMount: 3,
		KeyBroadcastInterval:    "10ms",
		KeyDataSendTimeout:      "5s",
		KeyMountTimeout:         "180s",
		KeyClientTimeout:        "180s",
		KeyRingBufferSize:       2000,
		KeyKeepaliveEnabled:     true,
		KeyKeepaliveIdle:        "60s",
		KeyKeepaliveInterval:    "10s",
		KeyKeepaliveCount:       3,
		KeyCasterCountry:        "USA",
		KeyCasterLatitude:       0.0,
		KeyCasterLongitude:      0.0,
		KeyAppName:              "ntripcaster",
		KeyAppVersion:           "1.0",
		KeyAppContact:           "admin@example.com",
		KeyAppWebsite:           "http://example.com",
		KeyDefaultAdminUsername: "admin",
		KeyDefaultAdminPassword: "admin",
		KeyLogDir:               "./logs",
		KeyLogLevel:             "info",
		KeyLogMaxSize:           100,
		KeyLogBackupCount:       5,
		KeyChunked20:            true,
		KeyAdminAPIKey:          "",
	}
}

// Load reads configPath (a YAML file), applies defaults, layers environment
// variable overrides (NTRIPCASTER_*) via koanf, and watches configPath for
// subsequent changes, invoking onChange (if non-nil) after each reload -
// mirroring cmd/caster/config.go's fsnotify.WatchConfig + OnConfigChange.
func Load(configPath string, onChange func(*Config)) (*Config, error) {
	v := viper.New()
	for key, val := range defaults() {
		v.SetDefault(key, val)
	}

	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", configPath, err)
	}

	cfg := &Config{v: v}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	v.OnConfigChange(func(_ fsnotify.Event) {
		if err := v.ReadInConfig(); err != nil {
			return
		}
		_ = applyEnvOverrides(cfg)
		if onChange != nil {
			onChange(cfg)
		}
	})
	v.WatchConfig()

	return cfg, nil
}

// applyEnvOverrides layers NTRIPCASTER_* environment variables over the
// file-backed values using koanf's env provider, then writes any matches
// back into the viper instance so every other accessor sees the override.
func applyEnvOverrides(cfg *Config) error {
	k := koanf.New(".")
	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", func(key, value string) (string, interface{}) {
		transformed := strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
		transformed = strings.ReplaceAll(transformed, "__", ".")
		return transformed, value
	}), nil); err != nil {
		return err
	}

	for _, key := range k.Keys() {
		cfg.v.Set(key, k.Get(key))
	}
	return nil
}

func (c *Config) Host() string            { return c.v.GetString(KeyHost) }
func (c *Config) NTRIPPort() int          { return c.v.GetInt(KeyNTRIPPort) }
func (c *Config) WebPort() int            { return c.v.GetInt(KeyWebPort) }
func (c *Config) BufferSize() int         { return c.v.GetInt(KeyBufferSize) }
func (c *Config) MaxConnections() int     { return c.v.GetInt(KeyMaxConnections) }
func (c *Config) MaxUserConnsPerMount() int {
	return c.v.GetInt(KeyMaxUserConnsPerMount)
}
func (c *Config) BroadcastInterval() time.Duration { return c.v.GetDuration(KeyBroadcastInterval) }
func (c *Config) DataSendTimeout() time.Duration   { return c.v.GetDuration(KeyDataSendTimeout) }
func (c *Config) MountTimeout() time.Duration      { return c.v.GetDuration(KeyMountTimeout) }
func (c *Config) ClientTimeout() time.Duration     { return c.v.GetDuration(KeyClientTimeout) }
func (c *Config) RingBufferSize() int              { return c.v.GetInt(KeyRingBufferSize) }
func (c *Config) KeepaliveEnabled() bool           { return c.v.GetBool(KeyKeepaliveEnabled) }
func (c *Config) KeepaliveIdle() time.Duration     { return c.v.GetDuration(KeyKeepaliveIdle) }
func (c *Config) KeepaliveInterval() time.Duration { return c.v.GetDuration(KeyKeepaliveInterval) }
func (c *Config) KeepaliveCount() int              { return c.v.GetInt(KeyKeepaliveCount) }
func (c *Config) CasterCountry() string            { return c.v.GetString(KeyCasterCountry) }
func (c *Config) CasterLatitude() float64          { return c.v.GetFloat64(KeyCasterLatitude) }
func (c *Config) CasterLongitude() float64         { return c.v.GetFloat64(KeyCasterLongitude) }
func (c *Config) AppName() string                  { return c.v.GetString(KeyAppName) }
func (c *Config) AppVersion() string                { return c.v.GetString(KeyAppVersion) }
func (c *Config) AppContact() string               { return c.v.GetString(KeyAppContact) }
func (c *Config) AppWebsite() string                { return c.v.GetString(KeyAppWebsite) }
func (c *Config) DefaultAdminUsername() string      { return c.v.GetString(KeyDefaultAdminUsername) }
func (c *Config) DefaultAdminPassword() string      { return c.v.GetString(KeyDefaultAdminPassword) }
func (c *Config) LogDir() string                    { return c.v.GetString(KeyLogDir) }
func (c *Config) LogLevel() string                  { return c.v.GetString(KeyLogLevel) }
func (c *Config) LogMaxSize() int                   { return c.v.GetInt(KeyLogMaxSize) }
func (c *Config) LogBackupCount() int                { return c.v.GetInt(KeyLogBackupCount) }
func (c *Config) Chunked20() bool                   { return c.v.GetBool(KeyChunked20) }
func (c *Config) AdminAPIKey() string               { return c.v.GetString(KeyAdminAPIKey) }

// Raw exposes the underlying viper instance for callers (e.g. tests) that
// need to override a key directly.
func (c *Config) Raw() *viper.Viper { return c.v }
