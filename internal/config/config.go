// Package config loads DragonSync's configuration via viper, applying
// DRAGONSYNC_* environment variable overrides on top of a config file, and
// exposes a redacted view for the /config API endpoint.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// Config is the full, unredacted runtime configuration.
type Config struct {
	ZMQ      ZMQConfig      `mapstructure:"zmq"`
	TAK      TAKConfig      `mapstructure:"tak"`
	Multicast MulticastConfig `mapstructure:"multicast"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	ADSB     ADSBConfig     `mapstructure:"adsb"`
	UAT      UATConfig      `mapstructure:"uat"`
	Kismet   KismetConfig   `mapstructure:"kismet"`
	FPV      FPVConfig      `mapstructure:"fpv"`
	API      APIConfig      `mapstructure:"api"`
	Enrichment EnrichmentConfig `mapstructure:"enrichment"`
	ThirdParty ThirdPartyConfig `mapstructure:"third_party"`

	MaxDrones          int           `mapstructure:"max_drones"`
	RateLimit          time.Duration `mapstructure:"rate_limit"`
	KeepAliveInterval  time.Duration `mapstructure:"keep_alive_interval"`
	InactivityTimeout  time.Duration `mapstructure:"inactivity_timeout"`
	TickInterval       time.Duration `mapstructure:"tick_interval"`
	KitSerial          string        `mapstructure:"kit_serial"`
}

type ZMQConfig struct {
	RemoteIDEndpoint string `mapstructure:"remote_id_endpoint"`
	StatusEndpoint   string `mapstructure:"status_endpoint"`
	FPVEndpoint      string `mapstructure:"fpv_endpoint"`
}

type TAKConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Protocol string `mapstructure:"protocol"` // "tcp" | "udp"
	PKCS12Path     string `mapstructure:"pkcs12_path"`
	PKCS12Password string `mapstructure:"pkcs12_password"`
	SkipVerify     bool   `mapstructure:"skip_verify"`
}

type MulticastConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Address   string `mapstructure:"address"`
	Port      int    `mapstructure:"port"`
	Interface string `mapstructure:"interface"`
	TTL       int    `mapstructure:"ttl"`
	Receive   bool   `mapstructure:"receive"`
}

type MQTTConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	TLS            bool   `mapstructure:"tls"`
	Topic          string `mapstructure:"topic"`
	Retain         bool   `mapstructure:"retain"`
	PerDroneTopics bool   `mapstructure:"per_drone_topics"`
	HADiscovery    bool   `mapstructure:"ha_discovery"`
}

type ADSBConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	JSONURL    string        `mapstructure:"json_url"`
	MinAltM    float64       `mapstructure:"min_alt_m"`
	MaxAltM    float64       `mapstructure:"max_alt_m"`
	UIDPrefix  string        `mapstructure:"uid_prefix"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl"`
}

type UATConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	JSONURL string `mapstructure:"json_url"`
}

type KismetConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Host           string        `mapstructure:"host"`
	APIKey         string        `mapstructure:"api_key"`
	AllowedPHYs    []string      `mapstructure:"allowed_phys"`
	MinSendInterval time.Duration `mapstructure:"min_send_interval"`
}

type FPVConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	StaleAfter    time.Duration `mapstructure:"stale_after"`
	RadiusM       float64       `mapstructure:"radius_m"`
	MinSendInterval time.Duration `mapstructure:"min_send_interval"`
	ConfirmOnly   bool          `mapstructure:"confirm_only"`
}

type APIConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

type EnrichmentConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	LocalDBPath   string        `mapstructure:"local_db_path"`
	UseAPIFallback bool         `mapstructure:"use_api_fallback"`
	RateLimit     time.Duration `mapstructure:"rate_limit"`
	QueueMax      int           `mapstructure:"queue_max"`
	MissCacheCap  int           `mapstructure:"miss_cache_cap"`
}

type ThirdPartyConfig struct {
	Enabled  bool    `mapstructure:"enabled"`
	AMQPURL  string  `mapstructure:"amqp_url"`
	Exchange string  `mapstructure:"exchange"`
	DroneHz  float64 `mapstructure:"drone_hz"`
	WardragonHz float64 `mapstructure:"wardragon_hz"`
	TokenEnvVar string `mapstructure:"token_env_var"`
}

// Defaults mirrors the literal defaults named in spec §6/§4.
func Defaults() Config {
	return Config{
		MaxDrones:         30,
		RateLimit:         2 * time.Second,
		KeepAliveInterval: 10 * time.Second,
		InactivityTimeout: 60 * time.Second,
		TickInterval:      time.Second,
		ZMQ: ZMQConfig{
			RemoteIDEndpoint: "tcp://127.0.0.1:4224",
			StatusEndpoint:   "tcp://127.0.0.1:4225",
			FPVEndpoint:      "tcp://127.0.0.1:4226",
		},
		Multicast: MulticastConfig{TTL: 1},
		ADSB: ADSBConfig{
			PollInterval: time.Second,
			CacheTTL:     120 * time.Second,
			UIDPrefix:    "adsb-",
		},
		Kismet: KismetConfig{
			AllowedPHYs:     []string{"IEEE802.11", "Bluetooth"},
			MinSendInterval: 5 * time.Second,
		},
		FPV: FPVConfig{
			StaleAfter:      60 * time.Second,
			RadiusM:         500,
			MinSendInterval: time.Second,
			ConfirmOnly:     true,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
		},
		Enrichment: EnrichmentConfig{
			Enabled:        true,
			UseAPIFallback: true,
			RateLimit:      time.Second,
			QueueMax:       100,
			MissCacheCap:   1000,
		},
	}
}

// Load reads a config file (if path is non-empty and exists) over the
// defaults. viper's automatic env binding (DRAGONSYNC_ prefix) overrides only
// keys that appear in that file; with no file, no viper env override is
// applied. DRAGONSYNC_API_HOST and DRAGONSYNC_API_PORT are always applied
// last, matching the teacher's env-var-first posture in main.go.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	v := viper.New()
	v.SetEnvPrefix("DRAGONSYNC")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, statErr := os.Stat(path); statErr == nil {
				return nil, fmt.Errorf("dragonsync: reading config %s: %w", path, err)
			}
		} else if err := v.Unmarshal(&cfg); err != nil {
			return nil, fmt.Errorf("dragonsync: parsing config %s: %w", path, err)
		}
	}

	cfg.API.Host = LookupEnvOrString("DRAGONSYNC_API_HOST", cfg.API.Host)
	cfg.API.Port = LookupEnvOrInt("DRAGONSYNC_API_PORT", cfg.API.Port)

	return &cfg, nil
}

// LookupEnvOrString returns the named environment variable's value, or def
// if it is unset. Matches the teacher's LookupEnvOrString helper.
func LookupEnvOrString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

// LookupEnvOrInt returns the named environment variable parsed as an int, or
// def if it is unset or unparsable.
func LookupEnvOrInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// LookupEnvOrDur returns the named environment variable parsed as a
// time.Duration, or def if it is unset or unparsable. Matches the teacher's
// LookupEnvOrDur helper.
func LookupEnvOrDur(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// Redacted returns a copy of cfg with secrets removed, for the /config API
// endpoint (spec §4.7).
func (c Config) Redacted() Config {
	cp := c
	cp.TAK.PKCS12Password = ""
	cp.MQTT.Password = ""
	cp.Kismet.APIKey = ""
	cp.ThirdParty.AMQPURL = redactURL(cp.ThirdParty.AMQPURL)
	return cp
}

func redactURL(u string) string {
	if u == "" {
		return u
	}
	return "[redacted]"
}
