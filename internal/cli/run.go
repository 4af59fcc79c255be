package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oxyio/netmon/internal/bootstrap"
	"github.com/oxyio/netmon/internal/errors"
	"github.com/oxyio/netmon/internal/status"
	"github.com/oxyio/netmon/internal/supervisor"
	"github.com/oxyio/netmon/internal/tasks"
	"github.com/spf13/cobra"
)

var runSyncInterval time.Duration

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Collect stats from every device until interrupted",
	Long: `Load every device from the store and give each the task it needs:
devices whose key isn't installed yet are bootstrapped, verified active
devices are polled. The store is re-read periodically so added, edited and
removed devices are picked up without a restart.

Examples:
  netmon run
  netmon run --config /etc/netmon/netmon.yaml
  netmon run --sync-interval 1m`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCommand(cmd.Context(), runSyncInterval)
	},
}

func init() {
	runCmd.Flags().DurationVar(&runSyncInterval, "sync-interval", 30*time.Second, "how often to re-read the device store")
	rootCmd.AddCommand(runCmd)
}

func runCommand(ctx context.Context, syncEvery time.Duration) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := bootstrap.ReadPublicKey(a.cfg.SSH.KeyPublic); err != nil {
		a.log.Warn("New devices can't be bootstrapped: %s (run 'netmon keygen')", errors.Reason(err))
	}

	sinks, err := a.openSinks(ctx)
	if err != nil {
		return err
	}

	sup := supervisor.New(supervisor.Options{
		RestartFailed:  a.cfg.Supervisor.RestartFailed,
		BackoffInitial: a.cfg.Supervisor.BackoffInitial,
		BackoffMax:     a.cfg.Supervisor.BackoffMax,
		Log:            a.log,
	})
	factory := &tasks.Factory{
		Store:      a.store,
		Supervisor: sup,
		Dial:       a.dial,
		Keys:       a.keys(),
		Sink:       sinks,
		Log:        a.log,
	}
	return serve(ctx, a, factory, syncEvery)
}

// serve reconciles the store, keeps it in sync and runs the status endpoint
// until ctx is done, then stops every task.
func serve(ctx context.Context, a *app, f *tasks.Factory, syncEvery time.Duration) error {
	log := a.log
	reconciler := tasks.NewReconciler(f)

	sync := func() {
		decisions, err := reconciler.Sync(ctx)
		if err != nil {
			log.Warn("[run] Sync finished with errors: %s", errors.Reason(err))
		}
		log.Debug("[run] Synced %d devices", len(decisions))
	}
	sync()

	statusErr := make(chan error, 1)
	if listen := a.cfg.Status.Listen; listen != "" {
		srv := status.NewServer(listen, status.NewHandler(f.Supervisor, a.store), log)
		go func() { statusErr <- srv.Run(ctx) }()
	}

	if syncEvery <= 0 {
		syncEvery = 30 * time.Second
	}
	ticker := time.NewTicker(syncEvery)
	defer ticker.Stop()

	log.Info("[run] Collecting; press Ctrl+C to stop")
	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			sync()
		case err := <-statusErr:
			if err != nil {
				runErr = err
				break loop
			}
		}
	}

	log.Info("[run] Stopping tasks")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := f.Supervisor.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
