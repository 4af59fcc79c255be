package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/oxyio/netmon/internal/errors"
	"github.com/oxyio/netmon/internal/status"
	"github.com/oxyio/netmon/internal/supervisor"
	"github.com/oxyio/netmon/internal/ui"
	"github.com/spf13/cobra"
)

var (
	statusAddr string
	statusJSON bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the tasks of a running 'netmon run'",
	Long: `Query the status endpoint of a running 'netmon run' and list its tasks.
The address defaults to status.listen from the config.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := statusAddr
		if addr == "" {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			addr = cfg.Status.Listen
		}
		return showStatus(cmd.Context(), cmd.OutOrStdout(), addr, statusJSON)
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusAddr, "addr", "", "status endpoint address, e.g. 127.0.0.1:8080")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(statusCmd)
}

// statusURL turns a listen address such as ":8080" into a URL to query.
func statusURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return strings.TrimRight(addr, "/")
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func fetchTasks(ctx context.Context, addr string) ([]supervisor.Info, error) {
	if addr == "" {
		return nil, errors.New(errors.ErrConfig,
			"No status address configured",
			"Set status.listen in netmon.yaml or pass --addr")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	url := statusURL(addr) + "/tasks"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConnection,
			fmt.Sprintf("Couldn't reach %s", url),
			"Is 'netmon run' running with status.listen set?")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.New(errors.ErrConnection,
			fmt.Sprintf("%s answered %s", url, resp.Status), "")
	}

	var views map[string]status.TaskView
	if err := json.NewDecoder(resp.Body).Decode(&views); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrParse,
			fmt.Sprintf("Unexpected response from %s", url), "")
	}

	infos := make([]supervisor.Info, 0, len(views))
	for id, v := range views {
		infos = append(infos, supervisor.Info{
			ID:        id,
			Name:      v.Name,
			State:     v.State,
			LastError: v.LastError,
			Restarts:  v.Restarts,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos, nil
}

func showStatus(ctx context.Context, w io.Writer, addr string, asJSON bool) error {
	infos, err := fetchTasks(ctx, addr)
	if err != nil {
		if asJSON {
			_ = WriteJSONFromError(w, err)
		}
		return err
	}
	if asJSON {
		return WriteJSONSuccess(w, infos)
	}
	_, err = fmt.Fprintln(w, ui.RenderTaskTable(infos))
	return err
}
