package config

import (
	"flag"
)

// Flags binds command-line options. Only flags the user actually set
// override values from the config file.
type Flags struct {
	fs *flag.FlagSet

	ConfigPath string
	Version    bool

	port      int
	host      string
	directory string
	secure    bool
	telnet    bool
	encoding  string
	engine    string
	metrics   string
	status    string
	logFile   string
	debug     bool
}

// NewFlags registers options on fs. Defaults shown in -help come from def.
func NewFlags(fs *flag.FlagSet, def Config) *Flags {
	f := &Flags{fs: fs}

	fs.StringVar(&f.ConfigPath, "config", "", "path to a YAML or JSON config file")
	fs.BoolVar(&f.Version, "version", false, "print version and exit")

	fs.IntVar(&f.port, "port", def.Port, "port to use")
	fs.IntVar(&f.port, "p", def.Port, "port to use (shorthand)")
	fs.StringVar(&f.host, "host", def.Host, "address to bind")
	fs.StringVar(&f.directory, "directory", def.Directory, "directory to serve")
	fs.StringVar(&f.directory, "d", def.Directory, "directory to serve (shorthand)")
	fs.BoolVar(&f.secure, "secure", def.Secure, "secure mode: don't allow user to change directories")
	fs.BoolVar(&f.secure, "s", def.Secure, "secure mode (shorthand)")
	fs.BoolVar(&f.telnet, "telnet", def.Telnet, "negotiate telnet options on connect")
	fs.StringVar(&f.encoding, "encoding", def.Encoding, "text encoding: utf8, cp437, ascii")
	fs.StringVar(&f.engine, "engine", def.Engine, "transfer engine: builtin or exec")
	fs.StringVar(&f.metrics, "metrics", def.MetricsAddr, "address for the Prometheus /metrics endpoint (empty disables)")
	fs.StringVar(&f.status, "status-schedule", def.StatusSchedule, "cron spec for active session reports (empty disables)")
	fs.StringVar(&f.logFile, "log-file", def.LogFile, "also write logs to this file")
	fs.BoolVar(&f.debug, "debug", def.Debug, "enable debug logging")

	return f
}

// Apply overlays explicitly set flags onto c.
func (f *Flags) Apply(c Config) Config {
	f.fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "port", "p":
			c.Port = f.port
		case "host":
			c.Host = f.host
		case "directory", "d":
			c.Directory = f.directory
		case "secure", "s":
			c.Secure = f.secure
		case "telnet":
			c.Telnet = f.telnet
		case "encoding":
			c.Encoding = f.encoding
		case "engine":
			c.Engine = f.engine
		case "metrics":
			c.MetricsAddr = f.metrics
		case "status-schedule":
			c.StatusSchedule = f.status
		case "log-file":
			c.LogFile = f.logFile
		case "debug":
			c.Debug = f.debug
		}
	})
	return c
}
