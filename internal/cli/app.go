package cli

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/oxyio/netmon/internal/config"
	"github.com/oxyio/netmon/internal/db"
	"github.com/oxyio/netmon/internal/device"
	"github.com/oxyio/netmon/internal/errors"
	"github.com/oxyio/netmon/internal/logger"
	"github.com/oxyio/netmon/internal/sink"
	"github.com/oxyio/netmon/internal/tasks"
	"github.com/oxyio/netmon/pkg/sshutil"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// newDialFunc builds the SSH dialer. Tests replace it with a mock.
var newDialFunc = func(cfg *config.Config) sshutil.DialFunc {
	return sshutil.NewDialFunc(sshutil.Options{
		Timeout:       cfg.SSH.Timeout,
		HostKeyPolicy: cfg.SSH.HostKeyPolicy,
		KnownHosts:    cfg.SSH.KnownHosts,
		SSHConfigPath: cfg.SSH.ConfigFile,
		UseAgent:      cfg.SSH.UseAgent,
	})
}

// app holds the collaborators every command builds from config.
type app struct {
	cfg   *config.Config
	log   logger.Logger
	store device.Store
	dial  sshutil.DialFunc

	zap     *zap.Logger
	dbs     map[string]*gorm.DB
	closers []func() error
}

// newApp loads config, builds the logger and opens the device store.
func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return newAppFromConfig(cfg)
}

func newAppFromConfig(cfg *config.Config) (*app, error) {
	z, err := logger.Build(logger.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Couldn't set up logging",
			"Check log.level and log.file in your config")
	}

	a := &app{
		cfg:  cfg,
		log:  logger.NewZap(z, ""),
		dial: newDialFunc(cfg),
		zap:  z,
		dbs:  make(map[string]*gorm.DB),
	}
	logger.SetDefault(a.log)

	a.store, err = a.openStore()
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) keys() tasks.Keys {
	return tasks.Keys{
		Private:    a.cfg.SSH.KeyPrivate,
		Public:     a.cfg.SSH.KeyPublic,
		Passphrase: a.cfg.SSH.KeyPassword,
	}
}

// database opens path once and shares it between the store and the index.
func (a *app) database(path string) (*gorm.DB, error) {
	if gdb, ok := a.dbs[path]; ok {
		return gdb, nil
	}
	gdb, err := db.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	a.dbs[path] = gdb
	a.closers = append(a.closers, func() error { return db.Close(gdb) })
	return gdb, nil
}

func (a *app) openStore() (device.Store, error) {
	switch a.cfg.Store.Driver {
	case "yaml", "":
		return device.NewFileStore(a.cfg.Store.Path), nil
	case "sqlite":
		gdb, err := a.database(a.cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		return device.NewSQLStore(gdb)
	default:
		return nil, errors.New(errors.ErrConfig,
			fmt.Sprintf("Unknown store driver %q", a.cfg.Store.Driver),
			"Set store.driver to yaml or sqlite")
	}
}

// openSinks builds every configured sink. A publisher that can't connect
// fails the command; an empty result is the no-op sink.
func (a *app) openSinks(ctx context.Context) (sink.Sink, error) {
	var sinks sink.Multi

	switch a.cfg.Index.Driver {
	case "sqlite":
		gdb, err := a.database(a.cfg.Index.Path)
		if err != nil {
			return nil, err
		}
		index, err := sink.NewSQLIndex(gdb)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, index)
	case "none", "":
	default:
		return nil, errors.New(errors.ErrConfig,
			fmt.Sprintf("Unknown index driver %q", a.cfg.Index.Driver),
			"Set index.driver to sqlite or none")
	}

	if a.cfg.Redis.Enabled {
		r, err := sink.NewRedis(ctx, a.cfg.Redis, a.log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, r.Close)
		sinks = append(sinks, r)
	}

	if a.cfg.NATS.Enabled {
		n, err := sink.NewNATS(a.cfg.NATS, a.log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, n.Close)
		sinks = append(sinks, n)
	}

	if len(sinks) == 0 {
		return sink.Nop{}, nil
	}
	return sinks, nil
}

// Close releases sinks and databases in reverse order and flushes the log.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if a.zap != nil {
		_ = a.zap.Sync()
	}
	return stderrors.Join(errs...)
}
