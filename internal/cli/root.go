package cli

import (
	stderrors "errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/oxyio/netmon/internal/config"
	"github.com/oxyio/netmon/internal/errors"
	"github.com/oxyio/netmon/internal/ui"
	"github.com/spf13/cobra"
)

// Global flags.
var (
	cfgFile   string
	debugFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "netmon",
	Short: "Collect resource stats from remote devices over SSH",
	Long: `netmon connects to each configured device over SSH, installs its own
key on first contact, and then polls CPU, memory, disk, disk I/O and
network I/O on the device's interval, forwarding every sample to the
configured sinks.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./netmon.yaml or ~/.config/netmon/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "log at debug level")
	rootCmd.AddCommand(completionCmd)
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		printError(err)
		os.Exit(1)
	}
}

func printError(err error) {
	if isUnknownCommandError(err) {
		msg := err.Error()
		if name := extractUnknownCommand(err); name != "" {
			msg = fmt.Sprintf("'%s' isn't a netmon command", name)
		}
		fmt.Fprintln(os.Stderr, lipgloss.NewStyle().Foreground(ui.ColorError).Render(ui.SymbolFail+" "+msg))
		fmt.Fprintln(os.Stderr, lipgloss.NewStyle().Foreground(ui.ColorMuted).Render("\n  Run 'netmon --help' to see the available commands."))
		return
	}

	var nmErr *errors.Error
	if stderrors.As(err, &nmErr) {
		fmt.Fprint(os.Stderr, nmErr.Error())
		return
	}
	fmt.Fprintln(os.Stderr, ui.SymbolFail+" "+err.Error())
}

func isUnknownCommandError(err error) bool {
	msg := err.Error()
	return strings.HasPrefix(msg, "unknown command") || strings.HasPrefix(msg, "unknown flag")
}

// extractUnknownCommand pulls foo out of `unknown command "foo" for "netmon"`.
func extractUnknownCommand(err error) string {
	msg := err.Error()
	start := strings.Index(msg, `"`)
	if start < 0 {
		return ""
	}
	end := strings.Index(msg[start+1:], `"`)
	if end < 0 {
		return ""
	}
	return msg[start+1 : start+1+end]
}

// loadConfig loads the config named by --config or found on the search path.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(cfgFile)
	if err != nil {
		return nil, err
	}
	if debugFlag {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion script",
	Long: `Generate shell completion scripts for netmon.

Examples:
  netmon completion bash > /etc/bash_completion.d/netmon
  netmon completion zsh > "${fpath[1]}/_netmon"
  netmon completion fish > ~/.config/fish/completions/netmon.fish`,
	ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletion(out)
		case "zsh":
			return rootCmd.GenZshCompletion(out)
		case "fish":
			return rootCmd.GenFishCompletion(out, true)
		default:
			return rootCmd.GenPowerShellCompletion(out)
		}
	},
}
