package cli

import (
	"fmt"
	"io"

	"github.com/oxyio/netmon/internal/bootstrap"
	"github.com/oxyio/netmon/internal/config"
	"github.com/oxyio/netmon/internal/ui"
	"github.com/spf13/cobra"
)

var keygenComment string

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Create the service SSH key pair",
	Long: `Create the ed25519 key pair named by ssh.key_private and ssh.key_public.
The public key is what bootstrap installs on every device. An existing key
is never overwritten.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return keygen(cfg, cmd.OutOrStdout(), keygenComment)
	},
}

func init() {
	keygenCmd.Flags().StringVar(&keygenComment, "comment", "netmon", "comment stored with the public key")
	rootCmd.AddCommand(keygenCmd)
}

func keygen(cfg *config.Config, w io.Writer, comment string) error {
	pub, err := bootstrap.GenerateKey(cfg.SSH.KeyPrivate, comment)
	if err != nil {
		return err
	}
	priv := config.ExpandTilde(cfg.SSH.KeyPrivate)
	fmt.Fprintf(w, "%s Wrote %s and %s.pub\n", ui.SymbolSuccess, priv, priv)
	if config.ExpandTilde(cfg.SSH.KeyPublic) != priv+".pub" {
		fmt.Fprintf(w, "  Note: ssh.key_public is %s; point it at %s.pub\n", cfg.SSH.KeyPublic, priv)
	}
	fmt.Fprintln(w, pub)
	return nil
}
