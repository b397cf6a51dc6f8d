package adapter

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mmcdole/kinocast/internal/cast"
	"github.com/mmcdole/kinocast/internal/playback"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Device   DeviceConfig   `mapstructure:"device"`
	Player   PlayerConfig   `mapstructure:"player"`
	Playback PlaybackConfig `mapstructure:"playback"`
	Cast     CastConfig     `mapstructure:"cast"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Store    StoreConfig    `mapstructure:"store"`
}

// ServerConfig holds media server configuration
type ServerConfig struct {
	URL      string `mapstructure:"url"`
	Token    string `mapstructure:"token"`
	UserID   string `mapstructure:"user_id"`
	Username string `mapstructure:"username"` // display only
}

// DeviceConfig describes this playback device to the server
type DeviceConfig struct {
	HardwareID string `mapstructure:"hardware_id"`
	Name       string `mapstructure:"name"`
	MaxBitrate int    `mapstructure:"max_bitrate"` // 0 uses the tier default
}

// PlayerConfig holds media player configuration
type PlayerConfig struct {
	Command string   `mapstructure:"command"` // empty picks the first engine found on PATH
	Args    []string `mapstructure:"args"`
}

// PlaybackConfig tunes the playback controller
type PlaybackConfig struct {
	HeartbeatInterval         time.Duration `mapstructure:"heartbeat_interval"`
	StallSampleInterval       time.Duration `mapstructure:"stall_sample_interval"`
	StallThreshold            int           `mapstructure:"stall_threshold"`
	InactivityTimeout         time.Duration `mapstructure:"inactivity_timeout"`
	JumpForward               time.Duration `mapstructure:"jump_forward"`
	JumpBackward              time.Duration `mapstructure:"jump_backward"`
	PreferredSubtitleLanguage string        `mapstructure:"preferred_subtitle_language"`
}

// CastConfig holds receiver discovery settings
type CastConfig struct {
	DiscoveryTimeout time.Duration `mapstructure:"discovery_timeout"`
	AppID            string        `mapstructure:"app_id"`
	ReceiverTTL      time.Duration `mapstructure:"receiver_ttl"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Listen string `mapstructure:"listen"` // empty disables the endpoint
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

// StoreConfig holds local state configuration
type StoreConfig struct {
	Path string `mapstructure:"path"` // empty keeps state in memory
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			HardwareID: "generic-h264",
			Name:       defaultDeviceName(),
		},
		Player: PlayerConfig{
			Args: []string{},
		},
		Playback: PlaybackConfig{
			HeartbeatInterval:   playback.DefaultHeartbeatInterval,
			StallSampleInterval: playback.DefaultStallSampleInterval,
			StallThreshold:      playback.DefaultStallThreshold,
			InactivityTimeout:   playback.DefaultInactivityTimeout,
			JumpForward:         playback.DefaultJumpForward,
			JumpBackward:        playback.DefaultJumpBackward,
		},
		Cast: CastConfig{
			DiscoveryTimeout: cast.DefaultDiscoveryTimeout,
			AppID:            cast.DefaultAppID,
			ReceiverTTL:      24 * time.Hour,
		},
		Logging: LoggingConfig{
			File:  defaultLogPath(),
			Level: "INFO",
		},
		Store: StoreConfig{
			Path: defaultDataPath(),
		},
	}
}

// ControllerOptions converts the playback section into controller options.
func (c *Config) ControllerOptions() playback.Options {
	return playback.Options{
		MaxBitrate:          c.Device.MaxBitrate,
		HeartbeatInterval:   c.Playback.HeartbeatInterval,
		StallSampleInterval: c.Playback.StallSampleInterval,
		StallThreshold:      c.Playback.StallThreshold,
		InactivityTimeout:   c.Playback.InactivityTimeout,
		JumpForward:         c.Playback.JumpForward,
		JumpBackward:        c.Playback.JumpBackward,
	}
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.URL != "" {
		u, err := url.Parse(c.Server.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("server.url %q is not an absolute URL", c.Server.URL))
		}
	}
	if c.Device.MaxBitrate < 0 {
		errs = append(errs, fmt.Errorf("device.max_bitrate must not be negative"))
	}
	for name, d := range map[string]time.Duration{
		"playback.heartbeat_interval":    c.Playback.HeartbeatInterval,
		"playback.stall_sample_interval": c.Playback.StallSampleInterval,
		"playback.inactivity_timeout":    c.Playback.InactivityTimeout,
		"playback.jump_forward":          c.Playback.JumpForward,
		"playback.jump_backward":         c.Playback.JumpBackward,
		"cast.discovery_timeout":         c.Cast.DiscoveryTimeout,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", name))
		}
	}
	if c.Playback.StallThreshold < 0 {
		errs = append(errs, fmt.Errorf("playback.stall_threshold must not be negative"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// defaultLogPath returns the default log file path for the current OS
func defaultLogPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "kinocast", "kinocast.log")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "kinocast", "kinocast.log")
	}
}

// defaultConfigPath returns the default config file path for the current OS
func defaultConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "kinocast")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "kinocast")
	}
}

// defaultDataPath returns the default state directory for the current OS
func defaultDataPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "kinocast")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "kinocast")
	}
}

func defaultDeviceName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "kinocast"
	}
	return host
}

// LoadConfig loads configuration from file and environment
func LoadConfig() (*Config, error) {
	return loadConfig(viper.GetViper(), defaultConfigPath())
}

func loadConfig(v *viper.Viper, dir string) (*Config, error) {
	cfg := DefaultConfig()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	v.AddConfigPath(".")

	// Environment variable overrides
	v.SetEnvPrefix("KINOCAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// bindEnv makes nested keys reachable as KINOCAST_SECTION_KEY. AutomaticEnv
// alone only covers keys viper already knows about.
func bindEnv(v *viper.Viper) {
	for _, key := range []string{
		"server.url", "server.token", "server.user_id",
		"device.hardware_id", "device.name", "device.max_bitrate",
		"player.command",
		"cast.app_id", "cast.discovery_timeout",
		"metrics.listen",
		"logging.file", "logging.level",
		"store.path",
	} {
		_ = v.BindEnv(key)
	}
}

// SaveCredentials stores the server login in the config file
func SaveCredentials(server ServerConfig) error {
	viper.Set("server.url", server.URL)
	viper.Set("server.token", server.Token)
	viper.Set("server.user_id", server.UserID)
	viper.Set("server.username", server.Username)

	configPath := defaultConfigPath()
	if err := os.MkdirAll(configPath, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configFile := filepath.Join(configPath, "config.yaml")
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// IsConfigured returns true if the server URL and token are set
func (c *Config) IsConfigured() bool {
	return c.Server.URL != "" && c.Server.Token != ""
}
