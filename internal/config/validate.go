package config

import (
	"fmt"

	"github.com/oxyio/netmon/internal/errors"
	"github.com/oxyio/netmon/internal/logger"
)

// Validate checks the config for errors and returns structured error messages.
func Validate(cfg *Config) error {
	if err := validateSSH(cfg.SSH); err != nil {
		return err
	}

	if cfg.Network.StatInterval <= 0 {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("network.stat_interval must be positive, got %d", cfg.Network.StatInterval),
			"Set it to the polling interval in seconds, e.g. 10.")
	}

	switch cfg.Store.Driver {
	case "yaml", "sqlite":
	default:
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Unknown store.driver %q", cfg.Store.Driver),
			"Use 'yaml' or 'sqlite'.")
	}
	if cfg.Store.Path == "" {
		return errors.New(errors.ErrConfig,
			"store.path is empty",
			"Point it at the device file or database.")
	}

	switch cfg.Index.Driver {
	case "sqlite":
		if cfg.Index.Path == "" {
			return errors.New(errors.ErrConfig,
				"index.path is empty",
				"Point it at a sqlite database file, or set index.driver to 'none'.")
		}
	case "none", "":
	default:
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Unknown index.driver %q", cfg.Index.Driver),
			"Use 'sqlite' or 'none'.")
	}

	if cfg.Redis.Enabled && cfg.Redis.Address == "" {
		return errors.New(errors.ErrConfig,
			"redis.enabled is set but redis.address is empty",
			"Set redis.address, e.g. localhost:6379.")
	}

	if cfg.NATS.Enabled && cfg.NATS.URL == "" {
		return errors.New(errors.ErrConfig,
			"nats.enabled is set but nats.url is empty",
			"Set nats.url, e.g. nats://127.0.0.1:4222.")
	}

	if _, err := logger.ParseLevel(cfg.Log.Level); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid log.level",
			"Use debug, info, warn or error.")
	}

	if cfg.Supervisor.RestartFailed {
		if cfg.Supervisor.BackoffInitial <= 0 {
			return errors.New(errors.ErrConfig,
				"supervisor.backoff_initial must be positive",
				"Use a duration like 5s.")
		}
		if cfg.Supervisor.BackoffMax < cfg.Supervisor.BackoffInitial {
			return errors.New(errors.ErrConfig,
				"supervisor.backoff_max is shorter than supervisor.backoff_initial",
				"Raise backoff_max or lower backoff_initial.")
		}
	}

	return nil
}

func validateSSH(s SSHConfig) error {
	if s.Timeout <= 0 {
		return errors.New(errors.ErrConfig,
			"ssh.timeout must be positive",
			"Use a duration like 10s.")
	}

	switch s.HostKeyPolicy {
	case HostKeyAccept:
	case HostKeyKnownHosts, HostKeyTOFU:
		if s.KnownHosts == "" {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("ssh.host_key_policy is %q but ssh.known_hosts is empty", s.HostKeyPolicy),
				"Set ssh.known_hosts, e.g. ~/.ssh/known_hosts.")
		}
	default:
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Unknown ssh.host_key_policy %q", s.HostKeyPolicy),
			"Use accept, known_hosts or tofu.")
	}

	if s.KeyPrivate == "" || s.KeyPublic == "" {
		return errors.New(errors.ErrConfig,
			"ssh.key_private and ssh.key_public are required",
			"Generate a key pair with: ssh-keygen -t ed25519 -f ~/.ssh/netmon_ed25519")
	}

	return nil
}
