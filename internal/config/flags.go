package config

import (
	"time"

	"github.com/spf13/pflag"
)

// Overrides holds command line values that win over the config file when set
type Overrides struct {
	fs *pflag.FlagSet

	host       string
	server     string
	port       int
	timeout    time.Duration
	compress   bool
	lookback   time.Duration
	checkpoint string
	textfile   string
}

// AddFlags registers the override flags on fs
func AddFlags(fs *pflag.FlagSet) *Overrides {
	o := &Overrides{fs: fs}
	d := Default()

	fs.StringVar(&o.host, "host", d.Host, "Host name as configured in the Zabbix frontend")
	fs.StringVar(&o.server, "zabbix-server", d.Zabbix.Server, "Zabbix server or proxy address")
	fs.IntVar(&o.port, "zabbix-port", d.Zabbix.Port, "Zabbix trapper port")
	fs.DurationVar(&o.timeout, "timeout", d.Zabbix.Timeout, "Network timeout for the trapper and stub_status requests")
	fs.BoolVar(&o.compress, "compress", d.Zabbix.Compress, "Send zlib compressed trapper frames")
	fs.DurationVar(&o.lookback, "lookback", d.Lookback, "How far behind now the aggregated minute lies")
	fs.StringVar(&o.checkpoint, "checkpoint", d.Checkpoint.Pattern, "Checkpoint file pattern ({name}, {hash})")
	fs.StringVar(&o.textfile, "metrics-textfile", "", "Write run statistics to this node_exporter textfile")

	return o
}

// Apply copies every explicitly set flag into c
func (o *Overrides) Apply(c *Config) {
	if o.fs.Changed("host") {
		c.Host = o.host
	}
	if o.fs.Changed("zabbix-server") {
		c.Zabbix.Server = o.server
	}
	if o.fs.Changed("zabbix-port") {
		c.Zabbix.Port = o.port
	}
	if o.fs.Changed("timeout") {
		c.Zabbix.Timeout = o.timeout
	}
	if o.fs.Changed("compress") {
		c.Zabbix.Compress = o.compress
	}
	if o.fs.Changed("lookback") {
		c.Lookback = o.lookback
	}
	if o.fs.Changed("checkpoint") {
		c.Checkpoint.Pattern = o.checkpoint
	}
	if o.fs.Changed("metrics-textfile") {
		c.Metrics.Textfile = o.textfile
	}
}
