package cli

import (
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
)

// Overridden from main, which gets them from -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	versionShort bool
	versionJSON  bool
)

// buildInfo is what `netmon version` reports.
type buildInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Built   string `json:"built"`
	Go      string `json:"go"`
	OSArch  string `json:"os_arch"`
}

func currentBuild() buildInfo {
	return buildInfo{
		Version: formatVersion(version),
		Commit:  commit,
		Built:   date,
		Go:      runtime.Version(),
		OSArch:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func (b buildInfo) write(w io.Writer) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "netmon %s\n", b.Version)
	for _, kv := range [][2]string{
		{"commit", b.Commit},
		{"built", b.Built},
		{"go", b.Go},
		{"os/arch", b.OSArch},
	} {
		fmt.Fprintf(&sb, "%s: %s\n", kv[0], kv[1])
	}
	_, _ = io.WriteString(w, sb.String())
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, _ []string) error {
		out := cmd.OutOrStdout()
		switch {
		case versionJSON:
			return WriteJSONSuccess(out, currentBuild())
		case versionShort:
			fmt.Fprintln(out, version)
		default:
			currentBuild().write(out)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Print only the version number")
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "Print build information as JSON")
}

// formatVersion prefixes release versions with v. dev builds are left alone.
func formatVersion(v string) string {
	if v == "" || v == "dev" || strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}

// SetVersionInfo records the build stamp.
func SetVersionInfo(v, c, d string) {
	version, commit, date = v, c, d
}
