package meshnode

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML configs can use "10s" / "5m" forms.
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration back as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds the full node configuration.
type Config struct {
	// DataDir is the root for everything the node persists: identity, peer
	// snapshot, memory tiers.
	DataDir string `yaml:"data_dir"`

	// Listen is the bind address for the HTTP server, e.g. ":7777".
	Listen string `yaml:"listen"`

	// Advertise is the host:port other nodes should dial. Derived from the
	// primary outbound interface when empty.
	Advertise string `yaml:"advertise"`

	// Seeds are bootstrap addresses used when no alive peer is known.
	Seeds []string `yaml:"seeds"`

	// APISecret signs local-API tokens. A development default is used when
	// empty.
	APISecret string `yaml:"api_secret"`

	// NoAuth disables local-API authentication for development.
	NoAuth bool `yaml:"no_auth"`

	HeartbeatInterval    Duration `yaml:"heartbeat_interval"`
	HeartbeatTimeout     Duration `yaml:"heartbeat_timeout"`
	HeartbeatConcurrency int      `yaml:"heartbeat_concurrency"`

	GossipInterval Duration `yaml:"gossip_interval"`
	GossipTimeout  Duration `yaml:"gossip_timeout"`
	GossipFanout   int      `yaml:"gossip_fanout"`

	SyncInterval    Duration `yaml:"sync_interval"`
	SyncFileTimeout Duration `yaml:"sync_file_timeout"`
	SyncBatchLimit  int      `yaml:"sync_batch_limit"`

	// DeadRetention is how long a dead peer stays in the registry before
	// being pruned.
	DeadRetention Duration `yaml:"dead_retention"`

	// ArchiveThreshold is the age at which active files move to the archive
	// tier; ArchiveSweepInterval is how often the sweep runs.
	ArchiveThreshold     Duration `yaml:"archive_threshold"`
	ArchiveSweepInterval Duration `yaml:"archive_sweep_interval"`
}

// LoadConfigFile reads a YAML config file. Unknown keys are rejected so
// typos surface at startup instead of silently using defaults.
func LoadConfigFile(path string) (Config, error) {
	var config Config
	data, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("failed to parse config file: %w", err)
	}
	return config, nil
}

// SetDefaults sets reasonable default values for the config.
func (c *Config) SetDefaults() {
	if c.DataDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.DataDir = filepath.Join(home, ".brainmesh")
		} else {
			c.DataDir = ".brainmesh"
		}
	}
	if c.Listen == "" {
		c.Listen = ":7777"
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = Duration(10 * time.Second)
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = Duration(2 * time.Second)
	}
	if c.HeartbeatConcurrency <= 0 {
		c.HeartbeatConcurrency = 8
	}
	if c.GossipInterval <= 0 {
		c.GossipInterval = Duration(60 * time.Second)
	}
	if c.GossipTimeout <= 0 {
		c.GossipTimeout = Duration(5 * time.Second)
	}
	if c.GossipFanout <= 0 {
		c.GossipFanout = 3
	}
	if c.SyncInterval <= 0 {
		c.SyncInterval = Duration(300 * time.Second)
	}
	if c.SyncFileTimeout <= 0 {
		c.SyncFileTimeout = Duration(10 * time.Second)
	}
	if c.SyncBatchLimit <= 0 {
		c.SyncBatchLimit = 64
	}
	if c.DeadRetention <= 0 {
		c.DeadRetention = Duration(time.Hour)
	}
	if c.ArchiveThreshold <= 0 {
		c.ArchiveThreshold = Duration(7 * 24 * time.Hour)
	}
	if c.ArchiveSweepInterval <= 0 {
		c.ArchiveSweepInterval = Duration(time.Hour)
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address is required")
	}
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		return fmt.Errorf("invalid listen address %q: %w", c.Listen, err)
	}
	if c.Advertise != "" {
		host, _, err := net.SplitHostPort(c.Advertise)
		if err != nil {
			return fmt.Errorf("invalid advertise address %q: %w", c.Advertise, err)
		}
		if host == "" {
			return fmt.Errorf("advertise address %q needs a host", c.Advertise)
		}
	}
	for _, seed := range c.Seeds {
		if _, _, err := net.SplitHostPort(seed); err != nil {
			return fmt.Errorf("invalid seed address %q: %w", seed, err)
		}
	}
	if c.HeartbeatTimeout.Std() >= c.HeartbeatInterval.Std() {
		return fmt.Errorf("heartbeat_timeout must be shorter than heartbeat_interval")
	}
	return nil
}

// AdvertiseAddress resolves the address other nodes should dial: the
// configured one, or the listen address with an unspecified host replaced by
// the primary outbound IP.
func (c *Config) AdvertiseAddress() (string, error) {
	if c.Advertise != "" {
		return c.Advertise, nil
	}
	host, port, err := net.SplitHostPort(c.Listen)
	if err != nil {
		return "", fmt.Errorf("invalid listen address %q: %w", c.Listen, err)
	}
	if host != "" && host != "0.0.0.0" && host != "::" {
		return net.JoinHostPort(host, port), nil
	}
	return net.JoinHostPort(outboundIP(), port), nil
}

// outboundIP finds the local address of the primary outbound interface. The
// UDP dial never sends a packet; it only makes the kernel pick a source
// address.
func outboundIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return "127.0.0.1"
}
