package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/oxyio/netmon/internal/bootstrap"
	"github.com/oxyio/netmon/internal/errors"
	"github.com/oxyio/netmon/internal/tasks"
	"github.com/oxyio/netmon/internal/ui"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	connectPassword string
	connectPrompt   bool
)

// promptPassword asks for the device password. Tests replace it.
var promptPassword = func(deviceID string) (string, error) {
	var password string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title(fmt.Sprintf("Password for %s", deviceID)).
				EchoMode(huh.EchoModePassword).
				Value(&password),
		),
	)
	if err := form.Run(); err != nil {
		return "", err
	}
	return password, nil
}

var connectCmd = &cobra.Command{
	Use:   "connect <id>",
	Short: "Install the service key on a device",
	Long: `Connect to a device with its password, append the service public key to
~/.ssh/authorized_keys and record the device as verified. Later sessions
authenticate with the key.

Without --password or --prompt the password stored with the device is used,
and failing that the service key itself.

Examples:
  netmon connect core-sw --prompt
  netmon connect core-sw --password secret`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password := connectPassword
		if connectPrompt {
			if !term.IsTerminal(int(os.Stdin.Fd())) {
				return errors.New(errors.ErrConfig,
					"--prompt needs an interactive terminal",
					"Pass the password with --password instead")
			}
			pw, err := promptPassword(args[0])
			if err != nil {
				return err
			}
			password = pw
		}
		return withApp(func(a *app) error {
			_, err := connectDevice(cmd.Context(), a, cmd.OutOrStdout(), args[0], password)
			return err
		})
	},
}

func init() {
	connectCmd.Flags().StringVar(&connectPassword, "password", "", "password for this connection")
	connectCmd.Flags().BoolVar(&connectPrompt, "prompt", false, "ask for the password")
	connectCmd.MarkFlagsMutuallyExclusive("password", "prompt")
	rootCmd.AddCommand(connectCmd)
}

// connectDevice bootstraps one device in the foreground. No monitor is
// started; a running `netmon run` picks the device up on its next sync.
func connectDevice(ctx context.Context, a *app, w io.Writer, id, password string) (bootstrap.Result, error) {
	f := &tasks.Factory{
		Store: a.store,
		Dial:  a.dial,
		Keys:  a.keys(),
		Log:   a.log,
	}

	spinner := ui.NewSpinner(w, fmt.Sprintf("Connecting to %s", id))
	spinner.Start()
	res, err := f.Connect(id, password).Bootstrap(ctx)
	if err != nil {
		spinner.Fail(res.Reason)
		return res, err
	}
	spinner.Success(res.Reason)
	return res, nil
}
