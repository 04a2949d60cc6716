package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/usefultools/toolbox/internal/adapters/ipc"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the plugin server is running",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var statusSocket string

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVar(&statusSocket, "socket", "", "Unix socket path (default: same as serve)")
}

// serverStatus is the machine-readable form of the status command.
type serverStatus struct {
	Running bool   `json:"running" yaml:"running"`
	PID     int    `json:"pid,omitempty" yaml:"pid,omitempty"`
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
	Socket  string `json:"socket" yaml:"socket"`
	Plugins string `json:"plugins" yaml:"plugins"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}

	st := serverStatus{
		Socket:  socketPath(statusSocket, rt),
		Plugins: rt.manager.Root(),
	}
	client := ipc.NewClient(ipc.ClientConfig{SocketPath: st.Socket, Timeout: 5 * time.Second})
	if client.IsServerRunning() {
		resp, err := client.Status(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to get server status: %w", err)
		}
		st.Running = true
		st.PID = resp.PID
		st.Version = resp.Version
	}

	return render(cmd.OutOrStdout(), st, func(tw *tabwriter.Writer) {
		if st.Running {
			_, _ = fmt.Fprintf(tw, "Running:\tyes (PID %d)\n", st.PID)
			_, _ = fmt.Fprintf(tw, "Version:\t%s\n", st.Version)
		} else {
			_, _ = fmt.Fprintln(tw, "Running:\tno")
		}
		_, _ = fmt.Fprintf(tw, "Socket:\t%s\n", st.Socket)
		_, _ = fmt.Fprintf(tw, "Plugins:\t%s\n", st.Plugins)
	})
}
