package npd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/mikey-austin/np_relay/internal/adapters/config"
	"github.com/mikey-austin/np_relay/pkg/np"
)

// Config is the top-level configuration shared by npd and np.
type Config struct {
	Server     ServerConfig      `toml:"server"`
	HTTP       HTTPConfig        `toml:"http"`
	Relay      RelayConfig       `toml:"relay"`
	Upstream   UpstreamConfig    `toml:"upstream"`
	Supervisor SupervisorConfig  `toml:"supervisor"`
	MQTT       MQTTConfig        `toml:"mqtt"`
	Modules    ModulesConfig     `toml:"modules"`
	Defaults   DefaultsConfig    `toml:"defaults"`
	Aliases    map[string]string `toml:"aliases"`

	// StationsFile is loaded after the inline stations, relative to the
	// config file when not absolute.
	StationsFile string               `toml:"stations_file"`
	Stations     []np.StationEndpoint `toml:"stations"`
}

// ServerConfig defines process-wide settings.
type ServerConfig struct {
	Environment string `toml:"environment"`
	LogLevel    string `toml:"log_level"`
	LogFormat   string `toml:"log_format"`
	LogOutput   string `toml:"log_output"`
	LogFile     string `toml:"log_file"`
}

// HTTPConfig configures the shared status page client.
type HTTPConfig struct {
	TimeoutMS int    `toml:"timeout_ms"`
	CAFile    string `toml:"ca_file"`
	UserAgent string `toml:"user_agent"`
}

// RelayConfig configures the poll scheduler.
type RelayConfig struct {
	Enabled        bool `toml:"enabled"`
	IntervalMS     int  `toml:"interval_ms"`
	Concurrency    int  `toml:"concurrency"`
	SinkIntervalMS int  `toml:"sink_interval_ms"`
}

// UpstreamConfig configures the central AzuraCast API.
type UpstreamConfig struct {
	Enabled      bool   `toml:"enabled"`
	BaseURL      string `toml:"base_url"`
	APIKey       string `toml:"api_key"`
	RelayName    string `toml:"relay_name"`
	RelayBaseURL string `toml:"relay_base_url"`
	RelayHost    string `toml:"relay_host"`
	Visible      bool   `toml:"visible"`
	RetryMax     int    `toml:"retry_max"`
	TimeoutMS    int    `toml:"timeout_ms"`
}

// SupervisorConfig configures the supervisord liveness check.
type SupervisorConfig struct {
	Enabled  bool   `toml:"enabled"`
	URL      string `toml:"url"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	Process  string `toml:"process"`
}

// MQTTConfig configures the MQTT result sink.
type MQTTConfig struct {
	Enabled   bool   `toml:"enabled"`
	Broker    string `toml:"broker"`
	ClientID  string `toml:"client_id"`
	TopicBase string `toml:"topic_base"`
	QoS       int    `toml:"qos"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
	TLSCA     string `toml:"tls_ca"`
	TLSCert   string `toml:"tls_cert"`
	TLSKey    string `toml:"tls_key"`
}

// ModulesConfig holds optional module configurations.
type ModulesConfig struct {
	EmbeddedMQTT EmbeddedMQTTConfig `toml:"embedded_mqtt"`
}

// EmbeddedMQTTConfig configures the embedded MQTT broker.
type EmbeddedMQTTConfig struct {
	Enabled        bool   `toml:"enabled"`
	Listen         string `toml:"listen"`
	AllowAnonymous bool   `toml:"allow_anonymous"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	TLSCA          string `toml:"tls_ca"`
	TLSCert        string `toml:"tls_cert"`
	TLSKey         string `toml:"tls_key"`
}

// DefaultsConfig defines default selector values for np.
type DefaultsConfig struct {
	Station string `toml:"station"`
}

// LoadConfig loads a config file from path.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path required")
	}
	info, err := os.Stat(path)
	if err != nil {
		return Config{}, err
	}
	if info.IsDir() {
		return Config{}, errors.New("config path is a directory")
	}

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, err
	}
	if cfg.StationsFile != "" {
		stationsPath := cfg.StationsFile
		if !filepath.IsAbs(stationsPath) {
			stationsPath = filepath.Join(filepath.Dir(path), stationsPath)
		}
		extra, err := config.LoadStations(stationsPath)
		if err != nil {
			return Config{}, fmt.Errorf("stations_file: %w", err)
		}
		cfg.Stations = append(cfg.Stations, extra...)
	}
	return finish(cfg)
}

// LoadOptionalConfig is LoadConfig, except a missing file yields the
// defaults.
func LoadOptionalConfig(path string) (Config, error) {
	cfg, err := LoadConfig(path)
	if errors.Is(err, os.ErrNotExist) {
		return finish(Config{})
	}
	return cfg, err
}

func finish(cfg Config) (Config, error) {
	ApplyEnv(&cfg)
	if cfg.Aliases == nil {
		cfg.Aliases = map[string]string{}
	}
	if cfg.MQTT.TopicBase == "" {
		cfg.MQTT.TopicBase = np.BaseTopic
	}
	if cfg.MQTT.QoS < 0 || cfg.MQTT.QoS > 2 {
		return Config{}, fmt.Errorf("mqtt qos %d out of range", cfg.MQTT.QoS)
	}
	if err := config.CheckStations(cfg.Stations); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides upstream credentials from the environment.
func ApplyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("AZURACAST_BASE_URL")); v != "" {
		cfg.Upstream.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("AZURACAST_API_KEY")); v != "" {
		cfg.Upstream.APIKey = v
	}
}

// DefaultConfigPath returns the default config location.
func DefaultConfigPath() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "np", "npd.toml"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "np", "npd.toml"), nil
}
