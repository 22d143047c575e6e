package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"zbx-nginx-probe/internal/logger"
	"zbx-nginx-probe/internal/parser"
)

// Config represents the probe configuration
type Config struct {
	Host       string           `yaml:"host"`
	KeyPrefix  string           `yaml:"key_prefix"`
	Lookback   time.Duration    `yaml:"lookback"`
	Timezone   string           `yaml:"timezone"`
	Zabbix     ZabbixConfig     `yaml:"zabbix"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	LogFormat  LogFormatConfig  `yaml:"log_format"`
	StubStatus StubStatusConfig `yaml:"stub_status"`
	Metrics    MetricsConfig    `yaml:"self_metrics"`
	Logging    logger.Config    `yaml:"logging"`
}

// ZabbixConfig describes the trapper endpoint
type ZabbixConfig struct {
	Server   string        `yaml:"server"`
	Port     int           `yaml:"port"`
	Timeout  time.Duration `yaml:"timeout"`
	Compress bool          `yaml:"compress"`
}

// CheckpointConfig controls where read offsets are stored
type CheckpointConfig struct {
	Pattern string `yaml:"pattern"`
}

// LogFormatConfig selects the access log layout
type LogFormatConfig struct {
	Type    string `yaml:"type"`
	Pattern string `yaml:"pattern,omitempty"`
}

// StubStatusConfig enables scraping of the nginx stub_status page
type StubStatusConfig struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MetricsConfig enables the node_exporter textfile with run statistics
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// Predefined log format presets
var logFormatPresets = map[string]string{
	"nginx_timed": parser.DefaultPattern,
}

var placeholderRe = regexp.MustCompile(`\{(name|hash)\}`)

// Default returns the configuration used when no file is given. The values
// match the historical hardcoded settings of the probe.
func Default() *Config {
	c := baseConfig()
	c.LogFormat.Type = "nginx_timed"
	c.LogFormat.Pattern = logFormatPresets["nginx_timed"]
	return c
}

// baseConfig holds every default except the log format, which is resolved
// after the file has been read.
func baseConfig() *Config {
	return &Config{
		Host:      "Zabbix Agent",
		KeyPrefix: "nginx",
		Lookback:  time.Minute,
		Zabbix: ZabbixConfig{
			Server:  "127.0.0.1",
			Port:    10051,
			Timeout: 10 * time.Second,
		},
		Checkpoint: CheckpointConfig{
			Pattern: "/tmp/seek_{name}",
		},
	}
}

// LoadConfig loads configuration from a YAML file on top of the defaults.
// Files ending in .json or .jsonc may carry comments and trailing commas.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json", ".jsonc":
		data = jsonc.ToJSON(data)
	}

	config := baseConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", filename, err)
	}

	if err := config.applyLogFormatDefaults(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyLogFormatDefaults resolves a preset name into its pattern. A pattern
// given without a type is a custom format.
func (c *Config) applyLogFormatDefaults() error {
	if c.LogFormat.Type == "" {
		c.LogFormat.Type = "nginx_timed"
		if c.LogFormat.Pattern != "" {
			c.LogFormat.Type = "custom"
		}
	}

	if pattern, exists := logFormatPresets[c.LogFormat.Type]; exists {
		if c.LogFormat.Pattern != "" {
			return fmt.Errorf("log format %s does not take a 'pattern', use type custom", c.LogFormat.Type)
		}
		c.LogFormat.Pattern = pattern
		return nil
	}

	if c.LogFormat.Type == "custom" {
		if c.LogFormat.Pattern == "" {
			return fmt.Errorf("custom log format requires 'pattern' to be defined")
		}
		return nil
	}

	return fmt.Errorf("unknown log format type: %s (valid: nginx_timed, custom)", c.LogFormat.Type)
}

// Validate checks that the configuration can drive a run
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host must not be empty")
	}
	if c.KeyPrefix == "" {
		return fmt.Errorf("key_prefix must not be empty")
	}
	if c.Lookback < 0 {
		return fmt.Errorf("lookback must not be negative, got %s", c.Lookback)
	}
	if c.Zabbix.Server == "" {
		return fmt.Errorf("zabbix.server must not be empty")
	}
	if c.Zabbix.Port < 1 || c.Zabbix.Port > 65535 {
		return fmt.Errorf("zabbix.port out of range: %d", c.Zabbix.Port)
	}
	if c.Zabbix.Timeout <= 0 {
		return fmt.Errorf("zabbix.timeout must be positive, got %s", c.Zabbix.Timeout)
	}
	if !placeholderRe.MatchString(c.Checkpoint.Pattern) {
		return fmt.Errorf("checkpoint.pattern %q must contain {name} or {hash}", c.Checkpoint.Pattern)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := parser.New(c.LogFormat.Pattern); err != nil {
		return fmt.Errorf("log_format: %w", err)
	}

	return nil
}

// Location resolves the time zone the access log timestamps are written in.
// An empty timezone means the local zone of the host.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}

	return loc, nil
}

// CollectorAddress returns host:port of the Zabbix server or proxy
func (c *Config) CollectorAddress() string {
	return net.JoinHostPort(c.Zabbix.Server, strconv.Itoa(c.Zabbix.Port))
}
