package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/oxyio/netmon/internal/errors"
	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the default config file name.
	ConfigFileName = "netmon.yaml"
	// GlobalConfigDir is the directory for global config.
	GlobalConfigDir = ".config/netmon"
	// GlobalConfigFile is the global config file name.
	GlobalConfigFile = "config.yaml"
	// EnvPrefix prefixes environment overrides, e.g. NETMON_SSH_TIMEOUT.
	EnvPrefix = "NETMON"
)

// Load reads config from the specified path. An empty path loads defaults
// plus environment overrides.
func Load(path string) (*Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if os.IsNotExist(err) {
				return nil, errors.WrapWithCode(err, errors.ErrConfig,
					"Config file not found",
					"Create "+ConfigFileName+" or specify one with --config")
			}
			return nil, errors.WrapWithCode(err, errors.ErrConfig,
				"Failed to read config file",
				"Check the file exists and is valid YAML")
		}
	}

	return parseConfig(v, path)
}

// Find locates the config file using the search order:
// 1. Explicit path (from --config flag)
// 2. netmon.yaml in current directory
// 3. ~/.config/netmon/config.yaml (global defaults)
//
// Returns the path to the config file, or empty string if not found.
func Find(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			if os.IsNotExist(err) {
				return "", errors.WrapWithCode(err, errors.ErrConfig,
					"Specified config file not found: "+explicit,
					"Check the path is correct")
			}
			return "", errors.WrapWithCode(err, errors.ErrConfig,
				"Cannot access config file: "+explicit,
				"Check file permissions")
		}
		return explicit, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrConfig,
			"Cannot determine current directory",
			"Check directory permissions")
	}

	localConfig := filepath.Join(cwd, ConfigFileName)
	if _, err := os.Stat(localConfig); err == nil {
		return localConfig, nil
	}

	if home, _ := os.UserHomeDir(); home != "" {
		globalConfig := filepath.Join(home, GlobalConfigDir, GlobalConfigFile)
		if _, err := os.Stat(globalConfig); err == nil {
			return globalConfig, nil
		}
	}

	return "", nil
}

// LoadOrDefault finds and loads the config, falling back to defaults when
// no file exists. The result is validated.
func LoadOrDefault(explicit string) (*Config, error) {
	path, err := Find(explicit)
	if err != nil {
		return nil, err
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// parseConfig converts viper config to our Config struct with defaults merged in.
func parseConfig(v *viper.Viper, path string) (*Config, error) {
	cfg := DefaultConfig()

	if err := v.Unmarshal(cfg); err != nil {
		where := "your config"
		if path != "" {
			where = path
		}
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid config format",
			"Check the YAML syntax in "+where)
	}

	expandPaths(cfg, configDir(path))
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it during Unmarshal.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("ssh.key_private", d.SSH.KeyPrivate)
	v.SetDefault("ssh.key_public", d.SSH.KeyPublic)
	v.SetDefault("ssh.key_password", d.SSH.KeyPassword)
	v.SetDefault("ssh.timeout", d.SSH.Timeout)
	v.SetDefault("ssh.host_key_policy", d.SSH.HostKeyPolicy)
	v.SetDefault("ssh.known_hosts", d.SSH.KnownHosts)
	v.SetDefault("ssh.config_file", d.SSH.ConfigFile)
	v.SetDefault("ssh.use_agent", d.SSH.UseAgent)
	v.SetDefault("network.stat_interval", d.Network.StatInterval)
	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("index.driver", d.Index.Driver)
	v.SetDefault("index.path", d.Index.Path)
	v.SetDefault("redis.enabled", d.Redis.Enabled)
	v.SetDefault("redis.address", d.Redis.Address)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.channel_prefix", d.Redis.ChannelPrefix)
	v.SetDefault("nats.enabled", d.NATS.Enabled)
	v.SetDefault("nats.url", d.NATS.URL)
	v.SetDefault("nats.username", d.NATS.Username)
	v.SetDefault("nats.password", d.NATS.Password)
	v.SetDefault("nats.token", d.NATS.Token)
	v.SetDefault("nats.subject_prefix", d.NATS.SubjectPrefix)
	v.SetDefault("nats.max_reconnect", d.NATS.MaxReconnect)
	v.SetDefault("nats.reconnect_wait", d.NATS.ReconnectWait)
	v.SetDefault("status.listen", d.Status.Listen)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("supervisor.restart_failed", d.Supervisor.RestartFailed)
	v.SetDefault("supervisor.backoff_initial", d.Supervisor.BackoffInitial)
	v.SetDefault("supervisor.backoff_max", d.Supervisor.BackoffMax)
}
