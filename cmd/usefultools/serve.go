package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/usefultools/toolbox/internal/adapters/ipc"
	"github.com/usefultools/toolbox/internal/ports"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve plugin operations to the usefultools shell",
	Long: `Serve the plugin operations over a Unix socket in the foreground.

The shell connects to the socket and sends one JSON request per connection.
A lock file next to the socket holds the server PID.

Examples:
  usefultools serve
  usefultools serve --socket /tmp/usefultools.sock
  usefultools serve --metrics-addr 127.0.0.1:9464`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	serveSocket      string
	serveMetricsAddr string
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveSocket, "socket", "", "Unix socket path (default: <data-dir>/usefultools.sock, or USEFULTOOLS_SOCKET_PATH)")
	serveCmd.Flags().StringVar(&serveMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (or USEFULTOOLS_METRICS_ADDR)")
}

// socketPath resolves the socket from the flag, the environment and the
// data directory, in that order.
func socketPath(flag string, rt *runtime) string {
	if flag != "" {
		return flag
	}
	if rt.env.SocketPath != "" {
		return rt.env.SocketPath
	}
	return ipc.DefaultSocketPath(rt.dataDir)
}

func runServe(cmd *cobra.Command, _ []string) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	server := ipc.NewServer(ipc.ServerConfig{
		SocketPath: socketPath(serveSocket, rt),
		Version:    version,
		Logger:     rt.logger,
	}, rt.manager)
	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	defer func() { _ = server.Stop() }()

	rt.logger.Info(ctx, "serving plugin operations",
		ports.F("socket", server.SocketPath()),
		ports.F("plugins", rt.manager.Root()))

	addr := serveMetricsAddr
	if addr == "" {
		addr = rt.env.MetricsAddr
	}
	if addr != "" {
		stop := serveMetrics(ctx, rt, addr)
		defer stop()
	}

	<-ctx.Done()
	rt.logger.Info(context.Background(), "shutting down")
	return nil
}

// serveMetrics exposes /metrics on addr until the returned func is called.
func serveMetrics(ctx context.Context, rt *runtime, addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", rt.metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.logger.Error(ctx, "metrics server failed", ports.F("addr", addr), ports.Err(err))
		}
	}()
	rt.logger.Info(ctx, "serving metrics", ports.F("addr", addr))

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
}
