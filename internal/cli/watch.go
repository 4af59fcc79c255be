package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/oxyio/netmon/internal/device"
	"github.com/oxyio/netmon/internal/errors"
	"github.com/oxyio/netmon/internal/logger"
	"github.com/oxyio/netmon/internal/monitor"
	"github.com/oxyio/netmon/internal/sink"
	"github.com/oxyio/netmon/internal/stats"
	"github.com/oxyio/netmon/internal/ui"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	watchInterval int
	watchPlain    bool
	watchPublish  bool
)

var watchCmd = &cobra.Command{
	Use:   "watch <id>",
	Short: "Poll one device in a live terminal view",
	Long: `Poll one verified device and show every category as it is collected,
with a sparkline per series.

Keys:
  1-5, tab    switch category
  c           clear history
  ?           help
  q           quit

By default nothing is forwarded to the sinks; --publish sends samples to
the configured sinks as 'netmon run' would. When stdout isn't a terminal,
or with --plain, readings are printed as lines instead.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		plain := watchPlain || !term.IsTerminal(int(os.Stdout.Fd()))
		return withApp(func(a *app) error {
			interval := 0
			if cmd.Flags().Changed("interval") {
				interval = watchInterval
			}
			return watchDevice(cmd.Context(), a, cmd.OutOrStdout(), args[0], interval, plain, watchPublish)
		})
	},
}

func init() {
	watchCmd.Flags().IntVar(&watchInterval, "interval", 0, "polling interval in seconds (default: the device's)")
	watchCmd.Flags().BoolVar(&watchPlain, "plain", false, "print readings as lines instead of the live view")
	watchCmd.Flags().BoolVar(&watchPublish, "publish", false, "forward samples to the configured sinks")
	rootCmd.AddCommand(watchCmd)
}

func watchDevice(ctx context.Context, a *app, w io.Writer, id string, interval int, plain, publish bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := a.store.Load(ctx, id)
	if err != nil {
		return err
	}
	if !d.Verified() {
		return errors.New(errors.ErrConnection,
			fmt.Sprintf("Device '%s' hasn't been verified", d.ID),
			fmt.Sprintf("Run: netmon connect %s", d.ID))
	}
	if interval > 0 {
		d = d.Clone()
		d.StatInterval = interval
	}

	var out sink.Sink = sink.Nop{}
	if publish {
		if out, err = a.openSinks(ctx); err != nil {
			return err
		}
	}

	ticks := make(chan monitor.Tick, 16)
	log := a.log
	if !plain {
		// Log lines would tear the alternate screen.
		log = logger.Noop()
	}
	loop := monitor.New(d, monitor.Options{
		Dial:           a.dial,
		PrivateKeyPath: a.cfg.SSH.KeyPrivate,
		KeyPassphrase:  a.cfg.SSH.KeyPassword,
		Sink:           out,
		Log:            log,
		Observer: func(t monitor.Tick) {
			select {
			case ticks <- t:
			default:
			}
		},
	})

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	loopErr := make(chan error, 1)
	go func() {
		loopErr <- loop.Run(loopCtx)
		close(ticks)
	}()

	if plain {
		for t := range ticks {
			printTick(w, d, t)
		}
		return <-loopErr
	}

	p := tea.NewProgram(ui.NewWatch(d.ID, ticks), tea.WithAltScreen(), tea.WithContext(ctx))
	_, runErr := p.Run()
	cancel()
	err = <-loopErr
	if runErr != nil && ctx.Err() == nil {
		return runErr
	}
	return err
}

// printTick writes one tick as plain lines.
func printTick(w io.Writer, d *device.Device, t monitor.Tick) {
	fmt.Fprintf(w, "%s %s took %s\n", t.At.Format("15:04:05"), d.ID, t.Duration.Round(time.Millisecond))
	for _, category := range stats.Categories() {
		res, ok := t.Result(category)
		if !ok {
			continue
		}
		switch {
		case res.Err != nil:
			fmt.Fprintf(w, "  %-8s %s %s\n", category, ui.SymbolFail, errors.Reason(res.Err))
		case res.Baseline:
			fmt.Fprintf(w, "  %-8s baseline\n", category)
		default:
			for _, s := range res.Samples {
				name := s.Key
				if s.Detail != "" {
					name += " " + s.Detail
				}
				fmt.Fprintf(w, "  %-8s %-32s %s\n", category, name, ui.FormatValue(s))
			}
		}
	}
}
