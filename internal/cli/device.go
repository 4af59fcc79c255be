package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/oxyio/netmon/internal/device"
	"github.com/oxyio/netmon/internal/errors"
	"github.com/oxyio/netmon/internal/tasks"
	"github.com/oxyio/netmon/internal/ui"
	"github.com/spf13/cobra"
)

// deviceFlags are the settings accepted by `device add` and `device set`.
type deviceFlags struct {
	id        string
	host      string
	port      int
	user      string
	sudo      bool
	password  string
	keyPath   string
	interval  int
	location  string
	suspended bool
}

var (
	deviceListJSON bool
	addFlags       deviceFlags
	setFlags       deviceFlags
)

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Manage monitored devices",
	Long: `List, add and edit the devices in the store.

Changes are picked up by a running 'netmon run' on its next sync. Editing
the host, port, user, password or key clears the device's connection state
so it is bootstrapped again.`,
}

var deviceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List devices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			return listDevices(cmd.Context(), a.store, cmd.OutOrStdout(), deviceListJSON)
		})
	},
}

var deviceAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a device",
	Long: `Add a device to the store. It is bootstrapped by 'netmon connect' or
by a running 'netmon run'.

Examples:
  netmon device add --host 10.0.0.1 --user admin --password secret
  netmon device add --id core-sw --host sw1.lan --user ops --sudo --interval 30`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			if !cmd.Flags().Changed("interval") {
				addFlags.interval = a.cfg.Network.StatInterval
			}
			_, err := addDevice(cmd.Context(), a.store, cmd.OutOrStdout(), addFlags)
			return err
		})
	},
}

var deviceSetCmd = &cobra.Command{
	Use:   "set <id>",
	Short: "Edit a device",
	Long: `Change the given settings of a device. Unset flags keep their value.

Examples:
  netmon device set core-sw --interval 60
  netmon device set core-sw --host 10.0.0.2 --password new-secret`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			changed := func(name string) bool { return cmd.Flags().Changed(name) }
			return setDevice(cmd.Context(), a.store, cmd.OutOrStdout(), args[0], setFlags, changed)
		})
	},
}

var deviceSuspendCmd = &cobra.Command{
	Use:   "suspend <id>",
	Short: "Stop collecting stats from a device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			return setStatus(cmd.Context(), a.store, cmd.OutOrStdout(), args[0], device.StatusSuspended)
		})
	},
}

var deviceResumeCmd = &cobra.Command{
	Use:   "resume <id>",
	Short: "Resume collecting stats from a device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			return setStatus(cmd.Context(), a.store, cmd.OutOrStdout(), args[0], device.StatusActive)
		})
	},
}

func init() {
	deviceListCmd.Flags().BoolVar(&deviceListJSON, "json", false, "output as JSON")

	bindDeviceFlags(deviceAddCmd, &addFlags)
	deviceAddCmd.Flags().StringVar(&addFlags.id, "id", "", "device id (default: a new UUID)")
	deviceAddCmd.Flags().BoolVar(&addFlags.suspended, "suspended", false, "add the device without collecting from it")
	_ = deviceAddCmd.MarkFlagRequired("host")
	_ = deviceAddCmd.MarkFlagRequired("user")

	bindDeviceFlags(deviceSetCmd, &setFlags)

	deviceCmd.AddCommand(deviceListCmd, deviceAddCmd, deviceSetCmd, deviceSuspendCmd, deviceResumeCmd)
	rootCmd.AddCommand(deviceCmd)
}

func bindDeviceFlags(cmd *cobra.Command, f *deviceFlags) {
	flags := cmd.Flags()
	flags.StringVar(&f.host, "host", "", "host name or address")
	flags.IntVar(&f.port, "port", 22, "SSH port")
	flags.StringVar(&f.user, "user", "", "SSH user")
	flags.BoolVar(&f.sudo, "sudo", false, "run stat commands through sudo")
	flags.StringVar(&f.password, "password", "", "password for the first connection")
	flags.StringVar(&f.keyPath, "key", "", "private key for this device instead of the service key")
	flags.IntVar(&f.interval, "interval", device.DefaultStatInterval, "polling interval in seconds")
	flags.StringVar(&f.location, "location", "", "free-form location label")
}

// withApp builds the app, runs fn and releases it.
func withApp(fn func(a *app) error) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func listDevices(ctx context.Context, store device.Store, w io.Writer, asJSON bool) error {
	devices, err := store.List(ctx)
	if err != nil {
		if asJSON {
			_ = WriteJSONFromError(w, err)
		}
		return err
	}
	if asJSON {
		views := make([]map[string]any, 0, len(devices))
		for _, d := range devices {
			views = append(views, map[string]any{
				"id":            d.ID,
				"host":          d.Host,
				"port":          d.Port,
				"user":          d.User,
				"sudo":          d.Sudo,
				"stat_interval": d.StatInterval,
				"status":        d.Status,
				"location":      d.Location,
				"connected":     d.Connected,
			})
		}
		return WriteJSONSuccess(w, views)
	}
	_, err = fmt.Fprintln(w, ui.RenderDeviceTable(devices))
	return err
}

func addDevice(ctx context.Context, store device.Store, w io.Writer, f deviceFlags) (*device.Device, error) {
	d := device.New(f.host, f.user)
	if f.id != "" {
		d.ID = f.id
	}
	d.Port = f.port
	d.Sudo = f.sudo
	d.Password = f.password
	d.KeyPath = f.keyPath
	d.StatInterval = f.interval
	d.Location = f.location
	if f.suspended {
		d.Status = device.StatusSuspended
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}
	if _, err := store.Load(ctx, d.ID); err == nil {
		return nil, errors.New(errors.ErrConfig,
			fmt.Sprintf("Device '%s' already exists", d.ID),
			fmt.Sprintf("Edit it with: netmon device set %s", d.ID))
	} else if !device.IsNotFound(err) {
		return nil, err
	}

	if err := store.Save(ctx, d); err != nil {
		return nil, err
	}
	fmt.Fprintf(w, "%s Added %s\n", ui.SymbolSuccess, d)
	fmt.Fprintf(w, "  Install the service key with: netmon connect %s\n", d.ID)
	return d, nil
}

func setDevice(ctx context.Context, store device.Store, w io.Writer, id string, f deviceFlags, changed func(string) bool) error {
	prev, err := store.Load(ctx, id)
	if err != nil {
		return err
	}

	next := prev.Clone()
	if changed("host") {
		next.Host = f.host
	}
	if changed("port") {
		next.Port = f.port
	}
	if changed("user") {
		next.User = f.user
	}
	if changed("sudo") {
		next.Sudo = f.sudo
	}
	if changed("password") {
		next.Password = f.password
		if f.password != "" {
			next.KeyPath = ""
		}
	}
	if changed("key") {
		next.KeyPath = f.keyPath
		if f.keyPath != "" {
			next.Password = ""
		}
	}
	if changed("interval") {
		next.StatInterval = f.interval
	}
	if changed("location") {
		next.Location = f.location
	}

	change := tasks.ApplyEdit(prev, next)
	if err := store.Save(ctx, next); err != nil {
		return err
	}

	switch {
	case change.Reconnect:
		fmt.Fprintf(w, "%s Updated %s; connection settings changed\n", ui.SymbolSuccess, next)
		fmt.Fprintf(w, "  Reinstall the service key with: netmon connect %s\n", next.ID)
	case change.Reload:
		fmt.Fprintf(w, "%s Updated %s; the monitor reloads on the next sync\n", ui.SymbolSuccess, next)
	default:
		fmt.Fprintf(w, "%s Updated %s\n", ui.SymbolSuccess, next)
	}
	return nil
}

func setStatus(ctx context.Context, store device.Store, w io.Writer, id string, status device.Status) error {
	d, err := store.Load(ctx, id)
	if err != nil {
		return err
	}
	if d.Status == status {
		fmt.Fprintf(w, "%s %s is already %s\n", ui.SymbolPending, d.ID, status)
		return nil
	}
	d.Status = status
	if err := store.Save(ctx, d); err != nil {
		return err
	}
	fmt.Fprintf(w, "%s %s is now %s\n", ui.SymbolSuccess, d.ID, status)
	return nil
}
