package core

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults for the sync core.
const (
	DefaultPageSize         = 16
	DefaultJumpPageSize     = 30
	DefaultBottomThreshold  = 3
	DefaultReadStateBackend = "sqlite"
)

// ReadStateConfig selects where read watermarks and unread counters live.
type ReadStateConfig struct {
	Backend       string `yaml:"backend"`
	Path          string `yaml:"path"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

// Config is the resolved client configuration.
type Config struct {
	ServerURL       string          `yaml:"server_url"`
	SocketURL       string          `yaml:"socket_url"`
	Token           string          `yaml:"token"`
	UserID          string          `yaml:"user_id"`
	UserName        string          `yaml:"user_name"`
	PageSize        int             `yaml:"page_size"`
	JumpPageSize    int             `yaml:"jump_page_size"`
	BottomThreshold int             `yaml:"bottom_threshold"`
	ReadState       ReadStateConfig `yaml:"read_state"`
	LogLevel        string          `yaml:"log_level"`
	LogSink         string          `yaml:"log_sink"`
	MetricsAddr     string          `yaml:"metrics_addr"`
	Notify          bool            `yaml:"notify"`
}

// ConfigDir returns the directory holding the config file and local state.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "streamsync"), nil
}

func defaultConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// DefaultConfig returns a config with every default applied.
func DefaultConfig() Config {
	cfg := Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.JumpPageSize <= 0 {
		c.JumpPageSize = DefaultJumpPageSize
	}
	if c.BottomThreshold <= 0 {
		c.BottomThreshold = DefaultBottomThreshold
	}
	if c.ReadState.Backend == "" {
		c.ReadState.Backend = DefaultReadStateBackend
	}
	if c.ReadState.Path == "" && (c.ReadState.Backend == "sqlite" || c.ReadState.Backend == "pebble") {
		if dir, err := ConfigDir(); err == nil {
			name := "readstate.db"
			if c.ReadState.Backend == "pebble" {
				name = "readstate.pebble"
			}
			c.ReadState.Path = filepath.Join(dir, name)
		}
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogSink == "" {
		c.LogSink = "stderr"
	}
}

// LoadConfig reads the YAML config at path (or the default location when path
// is empty), loads a .env file from the working directory if one exists, and
// overlays STREAMSYNC_* environment variables. A missing config file is not an error.
func LoadConfig(path string) (Config, error) {
	var cfg Config

	explicit := path != ""
	if !explicit {
		p, err := defaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = p
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return Config{}, err
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	setString := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) error {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %q", key, v)
		}
		*dst = n
		return nil
	}

	setString("STREAMSYNC_SERVER_URL", &c.ServerURL)
	setString("STREAMSYNC_SOCKET_URL", &c.SocketURL)
	setString("STREAMSYNC_TOKEN", &c.Token)
	setString("STREAMSYNC_USER_ID", &c.UserID)
	setString("STREAMSYNC_USER_NAME", &c.UserName)
	setString("STREAMSYNC_READSTATE_BACKEND", &c.ReadState.Backend)
	setString("STREAMSYNC_READSTATE_PATH", &c.ReadState.Path)
	setString("STREAMSYNC_REDIS_ADDR", &c.ReadState.RedisAddr)
	setString("STREAMSYNC_REDIS_PASSWORD", &c.ReadState.RedisPassword)
	setString("STREAMSYNC_LOG_LEVEL", &c.LogLevel)
	setString("STREAMSYNC_LOG_SINK", &c.LogSink)
	setString("STREAMSYNC_METRICS_ADDR", &c.MetricsAddr)
	if err := setInt("STREAMSYNC_REDIS_DB", &c.ReadState.RedisDB); err != nil {
		return err
	}
	if err := setInt("STREAMSYNC_PAGE_SIZE", &c.PageSize); err != nil {
		return err
	}
	return nil
}

// Validate checks the fields required to open a conversation.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ServerURL) == "" {
		return fmt.Errorf("server url is required (set server_url or STREAMSYNC_SERVER_URL)")
	}
	parsed, err := url.Parse(c.ServerURL)
	if err != nil {
		return fmt.Errorf("invalid server url: %w", err)
	}
	if parsed.Scheme == "" {
		return fmt.Errorf("server url must include scheme (https://)")
	}
	if strings.TrimSpace(c.UserID) == "" {
		return fmt.Errorf("user id is required (set user_id or STREAMSYNC_USER_ID)")
	}
	switch c.ReadState.Backend {
	case "memory", "sqlite", "pebble", "redis":
	default:
		return fmt.Errorf("unknown read state backend %q", c.ReadState.Backend)
	}
	if c.ReadState.Backend == "redis" && c.ReadState.RedisAddr == "" {
		return fmt.Errorf("redis read state backend requires redis_addr")
	}
	return nil
}

// ResolvedSocketURL returns the websocket endpoint, deriving it from the server
// URL when not configured explicitly.
func (c Config) ResolvedSocketURL() (string, error) {
	if c.SocketURL != "" {
		return c.SocketURL, nil
	}
	parsed, err := url.Parse(c.ServerURL)
	if err != nil {
		return "", err
	}
	switch parsed.Scheme {
	case "https":
		parsed.Scheme = "wss"
	default:
		parsed.Scheme = "ws"
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/") + "/ws"
	return parsed.String(), nil
}
