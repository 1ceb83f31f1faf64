// Package conf loads and holds the edge worker configuration.
package conf

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Settings is the full application configuration.
type Settings struct {
	App     AppSettings     `mapstructure:"app" yaml:"app"`
	Cache   CacheSettings   `mapstructure:"cache" yaml:"cache"`
	Push    PushSettings    `mapstructure:"push" yaml:"push"`
	Windows WindowsSettings `mapstructure:"windows" yaml:"windows"`
}

// AppSettings covers process-level options.
type AppSettings struct {
	Name       string `mapstructure:"name" yaml:"name"`
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
	// OriginURL is the upstream application origin all same-origin
	// requests are fetched from (and compared against for cross-origin
	// classification).
	OriginURL string `mapstructure:"origin_url" yaml:"origin_url"`
	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
}

// CacheSettings covers cache namespaces, the precache manifest and
// request classification.
type CacheSettings struct {
	// Prefix qualifies every namespace owned by this application
	// (e.g. "prochepro" yields "prochepro-static-v4").
	Prefix string `mapstructure:"prefix" yaml:"prefix"`
	// Version is bumped to invalidate all previously cached content on
	// the next activation.
	Version int `mapstructure:"version" yaml:"version"`
	// PrecacheAssets are root-relative paths fetched and stored into the
	// static namespace during install.
	PrecacheAssets []string `mapstructure:"precache_assets" yaml:"precache_assets"`
	// OfflinePage is served when a page fetch fails and no cached copy
	// exists. It must be part of PrecacheAssets.
	OfflinePage string `mapstructure:"offline_page" yaml:"offline_page"`
	// APIPrefix marks paths that must always hit the live origin.
	APIPrefix string `mapstructure:"api_prefix" yaml:"api_prefix"`
	// StaticExtensions are file suffixes classified as static assets.
	StaticExtensions []string `mapstructure:"static_extensions" yaml:"static_extensions"`
	FetchTimeout     Duration `mapstructure:"fetch_timeout" yaml:"fetch_timeout"`
}

// PushSettings covers push payload defaults and notification delivery.
type PushSettings struct {
	DefaultTitle string `mapstructure:"default_title" yaml:"default_title"`
	DefaultBody  string `mapstructure:"default_body" yaml:"default_body"`
	DefaultIcon  string `mapstructure:"default_icon" yaml:"default_icon"`
	DefaultBadge string `mapstructure:"default_badge" yaml:"default_badge"`
	// NotifierURLs are shoutrrr service URLs the platform notifier
	// delivers to. Empty means log-only delivery.
	NotifierURLs []string `mapstructure:"notifier_urls" yaml:"notifier_urls"`
	// HistoryPath is the sqlite file recording push deliveries.
	HistoryPath string `mapstructure:"history_path" yaml:"history_path"`
	// HistoryRetentionDays bounds how long delivery records are kept.
	// Zero disables cleanup.
	HistoryRetentionDays int `mapstructure:"history_retention_days" yaml:"history_retention_days"`
}

// WindowsSettings covers the SSE window stream.
type WindowsSettings struct {
	HeartbeatInterval Duration `mapstructure:"heartbeat_interval" yaml:"heartbeat_interval"`
	MaxStreamDuration Duration `mapstructure:"max_stream_duration" yaml:"max_stream_duration"`
	ChannelBuffer     int      `mapstructure:"channel_buffer" yaml:"channel_buffer"`
}

// Origin parses the configured origin URL.
func (s *AppSettings) Origin() (*url.URL, error) {
	u, err := url.Parse(s.OriginURL)
	if err != nil {
		return nil, fmt.Errorf("invalid origin URL %q: %w", s.OriginURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("origin URL %q must be http or https", s.OriginURL)
	}
	return u, nil
}

// Package-level settings singleton, set by Load.
var (
	settings   *Settings
	settingsMu sync.RWMutex
)

// GetSettings returns the loaded settings, or nil before Load.
func GetSettings() *Settings {
	settingsMu.RLock()
	defer settingsMu.RUnlock()
	return settings
}

// setSettings stores the singleton. Exposed to tests via SetSettingsForTesting.
func setSettings(s *Settings) {
	settingsMu.Lock()
	defer settingsMu.Unlock()
	settings = s
}

// SetSettingsForTesting replaces the settings singleton and returns a
// restore function.
func SetSettingsForTesting(s *Settings) func() {
	settingsMu.Lock()
	prev := settings
	settings = s
	settingsMu.Unlock()
	return func() { setSettings(prev) }
}

// Load reads configuration from the given file (optional), the standard
// search paths and EDGEWORKER_* environment variables, applies defaults
// and stores the result as the package singleton.
func Load(configFile string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("EDGEWORKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("edgeworker")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/edgeworker")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// No config file: defaults plus environment are enough.
	}

	var s Settings
	if err := v.Unmarshal(&s, viper.DecodeHook(DurationDecodeHook())); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := validate(&s); err != nil {
		return nil, err
	}

	setSettings(&s)
	return &s, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "ProchePro")
	v.SetDefault("app.listen_addr", ":8090")
	v.SetDefault("app.origin_url", "http://localhost:3000")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("cache.prefix", "prochepro")
	v.SetDefault("cache.version", 4)
	v.SetDefault("cache.precache_assets", []string{
		"/",
		"/offline.html",
		"/manifest.json",
		"/icons/icon-192x192.png",
		"/icons/icon-512x512.png",
	})
	v.SetDefault("cache.offline_page", "/offline.html")
	v.SetDefault("cache.api_prefix", "/api/")
	v.SetDefault("cache.static_extensions", []string{
		".png", ".jpg", ".jpeg", ".gif", ".webp", ".svg", ".ico",
		".woff", ".woff2", ".ttf", ".otf", ".eot",
		".mp3", ".wav", ".ogg",
	})
	v.SetDefault("cache.fetch_timeout", "30s")

	v.SetDefault("push.default_title", "ProchePro")
	v.SetDefault("push.default_body", "Nouvelle notification")
	v.SetDefault("push.default_icon", "/icons/icon-192x192.png")
	v.SetDefault("push.default_badge", "/icons/icon-192x192.png")
	v.SetDefault("push.notifier_urls", []string{})
	v.SetDefault("push.history_path", "edgeworker.db")
	v.SetDefault("push.history_retention_days", 30)

	v.SetDefault("windows.heartbeat_interval", "30s")
	v.SetDefault("windows.max_stream_duration", "30m")
	v.SetDefault("windows.channel_buffer", 10)
}

func validate(s *Settings) error {
	if s.Cache.Prefix == "" {
		return fmt.Errorf("cache.prefix must not be empty")
	}
	if s.Cache.Version < 1 {
		return fmt.Errorf("cache.version must be >= 1, got %d", s.Cache.Version)
	}
	if _, err := s.App.Origin(); err != nil {
		return err
	}
	if s.Cache.FetchTimeout.Std() <= 0 {
		s.Cache.FetchTimeout = Duration(30 * time.Second)
	}
	return nil
}
