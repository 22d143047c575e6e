package config

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zbx-nginx-probe/internal/parser"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "127.0.0.1:10051", cfg.CollectorAddress())
	assert.Equal(t, time.Minute, cfg.Lookback)
	assert.Equal(t, "/tmp/seek_{name}", cfg.Checkpoint.Pattern)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "probe.yaml", `
host: web01
lookback: 2m
timezone: UTC
zabbix:
  server: zabbix.example.org
  port: 10052
  timeout: 3s
  compress: true
checkpoint:
  pattern: /var/lib/zbx-nginx-probe/{name}.{hash}
stub_status:
  url: http://localhost/nginx_stat
  username: user
  password: pass
self_metrics:
  textfile: /var/lib/node_exporter/zbx_nginx_probe.prom
logging:
  level: warn
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "web01", cfg.Host)
	assert.Equal(t, "nginx", cfg.KeyPrefix)
	assert.Equal(t, 2*time.Minute, cfg.Lookback)
	assert.Equal(t, "zabbix.example.org:10052", cfg.CollectorAddress())
	assert.Equal(t, 3*time.Second, cfg.Zabbix.Timeout)
	assert.True(t, cfg.Zabbix.Compress)
	assert.Equal(t, "http://localhost/nginx_stat", cfg.StubStatus.URL)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, parser.DefaultPattern, cfg.LogFormat.Pattern)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())
}

func TestLoadJSONC(t *testing.T) {
	path := writeFile(t, "probe.jsonc", `{
  // reported host
  "host": "web02",
  "zabbix": {
    "server": "10.0.0.5", /* proxy */
    "port": 10051,
  },
}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "web02", cfg.Host)
	assert.Equal(t, "10.0.0.5", cfg.Zabbix.Server)
	assert.Equal(t, 10*time.Second, cfg.Zabbix.Timeout)
}

func TestLoadCustomLogFormat(t *testing.T) {
	path := writeFile(t, "probe.yaml", `
log_format:
  type: custom
  pattern: '\[(?P<time>[^:]+:\d+:\d+):(?P<second>\d+)\] (?P<method>\w+) (?P<status>\d+) (?P<request_time>[\d.]+) (?P<upstream_time>[\d.]+|-)'
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "custom", cfg.LogFormat.Type)
}

func TestLoadErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadConfig(writeFile(t, "bad.yaml", "host: [unterminated"))
	assert.Error(t, err)

	_, err = LoadConfig(writeFile(t, "fmt.yaml", "log_format:\n  type: apache\n"))
	assert.Error(t, err)

	_, err = LoadConfig(writeFile(t, "custom.yaml", "log_format:\n  type: custom\n"))
	assert.Error(t, err)

	_, err = LoadConfig(writeFile(t, "preset.yaml", "log_format:\n  type: nginx_timed\n  pattern: '(?P<time>.*)'\n"))
	assert.Error(t, err)
}

func TestLoadPatternWithoutType(t *testing.T) {
	pattern := `\[(?P<time>[^:]+:\d+:\d+):(?P<second>\d+)\] (?P<method>\w+) (?P<status>\d+) (?P<request_time>[\d.]+) (?P<upstream_time>[\d.]+|-)`
	path := writeFile(t, "probe.yaml", "log_format:\n  pattern: '"+pattern+"'\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "custom", cfg.LogFormat.Type)
	assert.Equal(t, pattern, cfg.LogFormat.Pattern)
}

func TestCollectorAddress(t *testing.T) {
	tests := []struct {
		server string
		port   int
		want   string
	}{
		{"127.0.0.1", 10051, "127.0.0.1:10051"},
		{"zabbix.example.org", 10052, "zabbix.example.org:10052"},
		{"::1", 10051, "[::1]:10051"},
		{"2001:db8::5", 10051, "[2001:db8::5]:10051"},
	}

	for _, tt := range tests {
		t.Run(tt.server, func(t *testing.T) {
			cfg := Default()
			cfg.Zabbix.Server = tt.server
			cfg.Zabbix.Port = tt.port
			assert.Equal(t, tt.want, cfg.CollectorAddress())

			host, _, err := net.SplitHostPort(cfg.CollectorAddress())
			require.NoError(t, err)
			assert.Equal(t, tt.server, host)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty host", func(c *Config) { c.Host = "" }},
		{"empty prefix", func(c *Config) { c.KeyPrefix = "" }},
		{"negative lookback", func(c *Config) { c.Lookback = -time.Minute }},
		{"empty server", func(c *Config) { c.Zabbix.Server = "" }},
		{"port zero", func(c *Config) { c.Zabbix.Port = 0 }},
		{"port too high", func(c *Config) { c.Zabbix.Port = 70000 }},
		{"no timeout", func(c *Config) { c.Zabbix.Timeout = 0 }},
		{"fixed checkpoint", func(c *Config) { c.Checkpoint.Pattern = "/tmp/seek" }},
		{"bad timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }},
		{"pattern without groups", func(c *Config) { c.LogFormat.Pattern = `(?P<time>.*)` }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestOverrides(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	o := AddFlags(fs)
	require.NoError(t, fs.Parse([]string{"--zabbix-port=10099", "--host=edge", "--compress"}))

	cfg := Default()
	cfg.Zabbix.Server = "from-file"
	o.Apply(cfg)

	assert.Equal(t, 10099, cfg.Zabbix.Port)
	assert.Equal(t, "edge", cfg.Host)
	assert.True(t, cfg.Zabbix.Compress)
	// Unset flags leave file values alone
	assert.Equal(t, "from-file", cfg.Zabbix.Server)
	assert.Equal(t, time.Minute, cfg.Lookback)
}
