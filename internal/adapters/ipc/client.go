package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/usefultools/toolbox/internal/domain/config"
	"github.com/usefultools/toolbox/internal/domain/plugin"
	"github.com/usefultools/toolbox/internal/domain/registry"
)

// ErrServerNotRunning indicates no server is listening on the socket.
var ErrServerNotRunning = errors.New("usefultools server is not running")

// Client sends requests to a Server.
type Client struct {
	socketPath string
	lockPath   string
	timeout    time.Duration
}

// ClientConfig contains configuration for the IPC client.
type ClientConfig struct {
	SocketPath string
	LockPath   string
	Timeout    time.Duration
}

// NewClient creates a new IPC client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.LockPath == "" {
		cfg.LockPath = DefaultLockPath(cfg.SocketPath)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultRequestTimeout
	}

	return &Client{
		socketPath: cfg.SocketPath,
		lockPath:   cfg.LockPath,
		timeout:    cfg.Timeout,
	}
}

// IsServerRunning checks if a server is listening on the socket.
func (c *Client) IsServerRunning() bool {
	if _, err := os.Stat(c.lockPath); err != nil {
		return false
	}
	if _, err := os.Stat(c.socketPath); err != nil {
		return false
	}

	conn, err := net.DialTimeout("unix", c.socketPath, 500*time.Millisecond)
	if err != nil {
		return false
	}
	_ = conn.Close()

	return true
}

// ServerPID returns the PID recorded in the lock file, or 0.
func (c *Client) ServerPID() int {
	data, err := os.ReadFile(c.lockPath)
	if err != nil {
		return 0
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}

	return pid
}

// Status returns the server version and PID.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.call(ctx, MessageTypeStatusRequest, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FetchRegistry returns the registry catalog.
func (c *Client) FetchRegistry(ctx context.Context, forceRefresh bool) ([]registry.Descriptor, error) {
	var resp DescriptorsResponse
	if err := c.call(ctx, MessageTypeFetchRegistryRequest, FetchRegistryRequest{ForceRefresh: forceRefresh}, &resp); err != nil {
		return nil, err
	}
	return resp.Plugins, nil
}

// FetchPackage resolves one registry package.
func (c *Client) FetchPackage(ctx context.Context, name string) ([]registry.Descriptor, error) {
	var resp DescriptorsResponse
	if err := c.call(ctx, MessageTypeFetchPackageRequest, PackageRequest{Name: name}, &resp); err != nil {
		return nil, err
	}
	return resp.Plugins, nil
}

// Install installs desc.
func (c *Client) Install(ctx context.Context, desc registry.Descriptor) (*plugin.Installed, error) {
	var resp InstallResponse
	if err := c.call(ctx, MessageTypeInstallRequest, InstallRequest{Descriptor: desc}, &resp); err != nil {
		return nil, err
	}
	return &resp.Plugin, nil
}

// Uninstall removes the plugin id.
func (c *Client) Uninstall(ctx context.Context, id string) error {
	return c.call(ctx, MessageTypeUninstallRequest, IDRequest{ID: id}, nil)
}

// ListInstalled returns the installed plugins.
func (c *Client) ListInstalled(ctx context.Context) ([]plugin.Installed, error) {
	var resp InstalledResponse
	if err := c.call(ctx, MessageTypeListInstalledRequest, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Plugins, nil
}

// BundlePath returns the bundle path of an installed plugin.
func (c *Client) BundlePath(ctx context.Context, id string) (string, error) {
	var resp PathResponse
	if err := c.call(ctx, MessageTypeBundlePathRequest, IDRequest{ID: id}, &resp); err != nil {
		return "", err
	}
	return resp.Path, nil
}

// ReadBundle returns the bundle source of an installed plugin.
func (c *Client) ReadBundle(ctx context.Context, id string) (string, error) {
	var resp SourceResponse
	if err := c.call(ctx, MessageTypeReadBundleRequest, IDRequest{ID: id}, &resp); err != nil {
		return "", err
	}
	return resp.Source, nil
}

// CheckUpdates returns catalog entries whose version differs from the
// installed one.
func (c *Client) CheckUpdates(ctx context.Context) ([]registry.Descriptor, error) {
	var resp DescriptorsResponse
	if err := c.call(ctx, MessageTypeCheckUpdatesRequest, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Plugins, nil
}

// GetConfig returns the stored configuration.
func (c *Client) GetConfig(ctx context.Context) (config.Config, error) {
	var resp ConfigPayload
	if err := c.call(ctx, MessageTypeGetConfigRequest, nil, &resp); err != nil {
		return config.Config{}, err
	}
	return resp.Config, nil
}

// SetConfig stores cfg and returns the configuration as saved.
func (c *Client) SetConfig(ctx context.Context, cfg config.Config) (config.Config, error) {
	var resp ConfigPayload
	if err := c.call(ctx, MessageTypeSetConfigRequest, ConfigPayload{Config: cfg}, &resp); err != nil {
		return config.Config{}, err
	}
	return resp.Config, nil
}

// ReadLocalBundle reads a bundle file on the server's file system.
func (c *Client) ReadLocalBundle(ctx context.Context, path string) (string, error) {
	var resp SourceResponse
	if err := c.call(ctx, MessageTypeReadLocalBundleRequest, PathRequest{Path: path}, &resp); err != nil {
		return "", err
	}
	return resp.Source, nil
}

// ReadLocalManifest reads plugin.json from a directory on the server's file
// system.
func (c *Client) ReadLocalManifest(ctx context.Context, dir string) ([]registry.Descriptor, error) {
	var resp DescriptorsResponse
	if err := c.call(ctx, MessageTypeReadLocalManifestRequest, PathRequest{Path: dir}, &resp); err != nil {
		return nil, err
	}
	return resp.Plugins, nil
}

// Prune removes leftovers of interrupted installs.
func (c *Client) Prune(ctx context.Context) ([]string, error) {
	var resp PruneResponse
	if err := c.call(ctx, MessageTypePruneRequest, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Removed, nil
}

// ClearCache deletes the catalog snapshot.
func (c *Client) ClearCache(ctx context.Context) error {
	return c.call(ctx, MessageTypeClearCacheRequest, nil, nil)
}

// call sends a request and decodes the response payload into out. Error
// responses are returned as *RemoteError.
func (c *Client) call(ctx context.Context, msgType MessageType, payload, out interface{}) error {
	if !c.IsServerRunning() {
		return ErrServerNotRunning
	}

	resp, err := c.sendRequest(ctx, msgType, payload)
	if err != nil {
		return err
	}

	if resp.Type == MessageTypeErrorResponse {
		var errResp ErrorResponse
		if err := json.Unmarshal(resp.Payload, &errResp); err != nil {
			return fmt.Errorf("failed to parse error response: %w", err)
		}
		return &RemoteError{
			Code:    errResp.Code,
			Message: errResp.Message,
			Package: errResp.Package,
			Step:    errResp.Step,
		}
	}
	if want := msgType.Response(); resp.Type != want {
		return fmt.Errorf("unexpected response type %q, want %q", resp.Type, want)
	}

	if out == nil || len(resp.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Payload, out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", resp.Type, err)
	}
	return nil
}

// sendRequest sends a request and waits for a response.
func (c *Client) sendRequest(ctx context.Context, msgType MessageType, payload interface{}) (*Message, error) {
	dialer := net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	defer func() { _ = conn.Close() }()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	// Unblock reads when ctx is cancelled.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	msg, err := NewMessage(msgType, uuid.New().String(), payload)
	if err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}

	if err := json.NewEncoder(conn).Encode(msg); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	var resp Message
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.RequestID != msg.RequestID {
		return nil, fmt.Errorf("response id %q does not match request %q", resp.RequestID, msg.RequestID)
	}

	return &resp, nil
}
