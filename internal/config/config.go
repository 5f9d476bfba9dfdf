package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrMissingToken is returned when the config has no Slack token.
var ErrMissingToken = errors.New("config: need an authorization token")

type Config struct {
	Token           string   `yaml:"token"`
	Username        string   `yaml:"username"`
	Icon            string   `yaml:"icon_emoji"`
	PollingInterval float64  `yaml:"polling_interval"` // seconds
	CommandPrefix   string   `yaml:"command_prefix"`
	DebugMode       bool     `yaml:"debug_mode"`
	WorkerPoolSize  int      `yaml:"worker_pool_size"`
	QueueSize       int      `yaml:"queue_size"`
	PluginTimeout   *float64 `yaml:"plugin_timeout"` // seconds, 0 disables
	ShutdownGrace   float64  `yaml:"shutdown_grace"` // seconds
	PluginDirectory string   `yaml:"plugin_directory"`
	Builtins        []string `yaml:"builtins"`

	// Plugins holds per-plugin configuration keyed by plugin name.
	Plugins map[string]map[string]any `yaml:"plugins"`

	Logging struct {
		Level string `yaml:"level"`
		JSON  bool   `yaml:"json"`
	} `yaml:"logging"`
	Slack struct {
		APIURL   string `yaml:"api_url"`
		Fake     bool   `yaml:"fake"`
		Insecure bool   `yaml:"insecure"`
	} `yaml:"slack"`
	HTTP struct {
		Enabled bool   `yaml:"enabled"`
		Bind    string `yaml:"bind"`
		Port    int    `yaml:"port"`
	} `yaml:"http"`
	Auth struct {
		JWTPublicKeys []string `yaml:"jwt_public_keys"` // PEM certificate paths
		Issuer        string   `yaml:"issuer"`
		Audience      string   `yaml:"audience"`
	} `yaml:"auth"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("couldn't open configuration file: %w", err)
	}
	return Parse(b)
}

func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if c.Token == "" {
		return nil, ErrMissingToken
	}
	if c.Username == "" {
		c.Username = "nimbus"
	}
	if c.Icon == "" {
		c.Icon = "cloud"
	}
	if c.PollingInterval <= 0 {
		c.PollingInterval = 1
	}
	if c.CommandPrefix == "" {
		c.CommandPrefix = "!"
	}
	if c.WorkerPoolSize <= 0 {
		c.WorkerPoolSize = 15
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 100
	}
	if c.PluginTimeout == nil {
		d := 30.0
		c.PluginTimeout = &d
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 10
	}
	if c.PluginDirectory == "" {
		c.PluginDirectory = "plugins"
	}
	if c.Builtins == nil {
		c.Builtins = []string{"help", "uptime"}
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Slack.APIURL == "" {
		c.Slack.APIURL = "https://slack.com/api"
	}
	if c.HTTP.Bind == "" {
		c.HTTP.Bind = "127.0.0.1"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	return &c, nil
}

// IconEmoji returns the icon in :name: form.
func (c *Config) IconEmoji() string {
	return ":" + strings.Trim(c.Icon, ":") + ":"
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollingInterval * float64(time.Second))
}

func (c *Config) InvocationTimeout() time.Duration {
	if c.PluginTimeout == nil || *c.PluginTimeout <= 0 {
		return 0
	}
	return time.Duration(*c.PluginTimeout * float64(time.Second))
}

func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownGrace * float64(time.Second))
}

// PluginConfig returns the config block for the named plugin, never nil.
func (c *Config) PluginConfig(name string) map[string]any {
	if m, ok := c.Plugins[name]; ok && m != nil {
		return m
	}
	return map[string]any{}
}
