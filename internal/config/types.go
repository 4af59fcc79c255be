package config

import "time"

// Config represents the complete netmon.yaml configuration file.
type Config struct {
	SSH        SSHConfig        `yaml:"ssh" mapstructure:"ssh"`
	Network    NetworkConfig    `yaml:"network" mapstructure:"network"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Index      IndexConfig      `yaml:"index" mapstructure:"index"`
	Redis      RedisConfig      `yaml:"redis" mapstructure:"redis"`
	NATS       NATSConfig       `yaml:"nats" mapstructure:"nats"`
	Status     StatusConfig     `yaml:"status" mapstructure:"status"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Supervisor SupervisorConfig `yaml:"supervisor" mapstructure:"supervisor"`
}

// Host key policies accepted by ssh.host_key_policy.
const (
	HostKeyAccept     = "accept"
	HostKeyKnownHosts = "known_hosts"
	HostKeyTOFU       = "tofu"
)

// SSHConfig controls how netmon authenticates to devices.
type SSHConfig struct {
	// KeyPrivate is the service's private key, used once a device is bootstrapped.
	KeyPrivate string `yaml:"key_private" mapstructure:"key_private"`

	// KeyPublic is installed into each device's authorized_keys during bootstrap.
	KeyPublic string `yaml:"key_public" mapstructure:"key_public"`

	// KeyPassword decrypts KeyPrivate when it is passphrase protected.
	KeyPassword string `yaml:"key_password" mapstructure:"key_password"`

	// Timeout bounds the TCP dial and SSH handshake.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`

	// HostKeyPolicy is accept, known_hosts or tofu.
	HostKeyPolicy string `yaml:"host_key_policy" mapstructure:"host_key_policy"`

	// KnownHosts is the file used by the known_hosts and tofu policies.
	KnownHosts string `yaml:"known_hosts" mapstructure:"known_hosts"`

	// ConfigFile is the ssh_config consulted for host aliases. Empty means
	// ~/.ssh/config.
	ConfigFile string `yaml:"config_file" mapstructure:"config_file"`

	// UseAgent adds keys from SSH_AUTH_SOCK as a fallback.
	UseAgent bool `yaml:"use_agent" mapstructure:"use_agent"`
}

// NetworkConfig holds fleet-wide monitoring defaults.
type NetworkConfig struct {
	// StatInterval is the default polling interval in seconds for new devices.
	StatInterval int `yaml:"stat_interval" mapstructure:"stat_interval"`
}

// StoreConfig selects where device endpoints are kept.
type StoreConfig struct {
	// Driver is yaml or sqlite.
	Driver string `yaml:"driver" mapstructure:"driver"`
	Path   string `yaml:"path" mapstructure:"path"`
}

// IndexConfig selects the durable time-series sink.
type IndexConfig struct {
	// Driver is sqlite or none.
	Driver string `yaml:"driver" mapstructure:"driver"`
	Path   string `yaml:"path" mapstructure:"path"`
}

// RedisConfig configures the Redis pub/sub publisher.
type RedisConfig struct {
	Enabled       bool   `yaml:"enabled" mapstructure:"enabled"`
	Address       string `yaml:"address" mapstructure:"address"`
	Password      string `yaml:"password" mapstructure:"password"`
	DB            int    `yaml:"db" mapstructure:"db"`
	ChannelPrefix string `yaml:"channel_prefix" mapstructure:"channel_prefix"`
}

// NATSConfig configures the NATS publisher.
type NATSConfig struct {
	Enabled       bool          `yaml:"enabled" mapstructure:"enabled"`
	URL           string        `yaml:"url" mapstructure:"url"`
	Username      string        `yaml:"username" mapstructure:"username"`
	Password      string        `yaml:"password" mapstructure:"password"`
	Token         string        `yaml:"token" mapstructure:"token"`
	SubjectPrefix string        `yaml:"subject_prefix" mapstructure:"subject_prefix"`
	MaxReconnect  int           `yaml:"max_reconnect" mapstructure:"max_reconnect"`
	ReconnectWait time.Duration `yaml:"reconnect_wait" mapstructure:"reconnect_wait"`
}

// StatusConfig configures the HTTP status endpoint. Empty Listen disables it.
type StatusConfig struct {
	Listen string `yaml:"listen" mapstructure:"listen"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
	File  string `yaml:"file" mapstructure:"file"`
}

// SupervisorConfig controls task restarts.
type SupervisorConfig struct {
	// RestartFailed restarts failed monitor tasks with backoff.
	RestartFailed  bool          `yaml:"restart_failed" mapstructure:"restart_failed"`
	BackoffInitial time.Duration `yaml:"backoff_initial" mapstructure:"backoff_initial"`
	BackoffMax     time.Duration `yaml:"backoff_max" mapstructure:"backoff_max"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SSH: SSHConfig{
			KeyPrivate:    "~/.ssh/netmon_ed25519",
			KeyPublic:     "~/.ssh/netmon_ed25519.pub",
			Timeout:       10 * time.Second,
			HostKeyPolicy: HostKeyAccept,
			KnownHosts:    "~/.ssh/known_hosts",
		},
		Network: NetworkConfig{
			StatInterval: 10,
		},
		Store: StoreConfig{
			Driver: "yaml",
			Path:   "devices.yaml",
		},
		Index: IndexConfig{
			Driver: "sqlite",
			Path:   "netmon.db",
		},
		Redis: RedisConfig{
			Address:       "localhost:6379",
			ChannelPrefix: "netmon",
		},
		NATS: NATSConfig{
			URL:           "nats://127.0.0.1:4222",
			SubjectPrefix: "netmon",
			MaxReconnect:  60,
			ReconnectWait: 2 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
		Supervisor: SupervisorConfig{
			RestartFailed:  true,
			BackoffInitial: 5 * time.Second,
			BackoffMax:     5 * time.Minute,
		},
	}
}
