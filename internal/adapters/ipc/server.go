package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/usefultools/toolbox/internal/adapters/logging"
	"github.com/usefultools/toolbox/internal/app"
	"github.com/usefultools/toolbox/internal/ports"
)

// DefaultRequestTimeout bounds a single request. Installs download whole
// tarballs, so it is generous.
const DefaultRequestTimeout = 5 * time.Minute

type handlerFunc func(ctx context.Context, payload json.RawMessage) (interface{}, error)

// Server handles IPC communication via Unix socket.
type Server struct {
	socketPath     string
	lockPath       string
	version        string
	requestTimeout time.Duration
	svc            app.Service
	logger         ports.Logger
	handlers       map[MessageType]handlerFunc

	listener net.Listener
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.RWMutex
	closed   bool
	wg       sync.WaitGroup
}

// ServerConfig contains configuration for the IPC server.
type ServerConfig struct {
	SocketPath     string
	LockPath       string
	Version        string
	RequestTimeout time.Duration
	Logger         ports.Logger
}

// DefaultSocketPath returns the socket path inside the data directory.
func DefaultSocketPath(dataDir string) string {
	return filepath.Join(dataDir, "usefultools.sock")
}

// DefaultLockPath returns the lock file path belonging to a socket path.
func DefaultLockPath(socketPath string) string {
	return strings.TrimSuffix(socketPath, ".sock") + ".lock"
}

// NewServer creates a new IPC server for svc.
func NewServer(cfg ServerConfig, svc app.Service) *Server {
	if cfg.LockPath == "" {
		cfg.LockPath = DefaultLockPath(cfg.SocketPath)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNopLogger()
	}

	s := &Server{
		socketPath:     cfg.SocketPath,
		lockPath:       cfg.LockPath,
		version:        cfg.Version,
		requestTimeout: cfg.RequestTimeout,
		svc:            svc,
		logger:         cfg.Logger,
	}
	s.handlers = s.routes()
	return s
}

// Start begins listening for connections.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("server is closed")
	}
	if s.socketPath == "" {
		return errors.New("socket path is required")
	}

	dir := filepath.Dir(s.socketPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	// Remove stale socket file
	if err := os.RemoveAll(s.socketPath); err != nil {
		return fmt.Errorf("failed to remove stale socket: %w", err)
	}

	if err := s.createLockFile(); err != nil {
		return fmt.Errorf("failed to create lock file: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		s.removeLockFile()
		return fmt.Errorf("failed to listen on socket: %w", err)
	}

	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		_ = listener.Close()
		s.removeLockFile()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.listener = listener
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.wg.Add(1)
	go s.acceptLoop()

	s.logger.Info(s.ctx, "ipc server listening", ports.F("socket", s.socketPath))
	return nil
}

// Stop stops the server. Requests in flight are cancelled and awaited.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}

	s.closed = true

	if s.listener != nil {
		_ = s.listener.Close()
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	// Wait outside the lock; acceptLoop takes the read lock.
	s.wg.Wait()

	_ = os.RemoveAll(s.socketPath)
	s.removeLockFile()

	return nil
}

// SocketPath returns the socket path.
func (s *Server) SocketPath() string {
	return s.socketPath
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.RLock()
			closed := s.closed
			s.mu.RUnlock()

			if closed {
				return
			}
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer func() { _ = conn.Close() }()

	_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))

	var msg Message
	if err := json.NewDecoder(conn).Decode(&msg); err != nil {
		if err != io.EOF {
			s.sendError(conn, msg.RequestID, &requestError{msg: "failed to decode message"})
		}
		return
	}

	s.handleMessage(conn, &msg)
}

func (s *Server) handleMessage(conn net.Conn, msg *Message) {
	handler, ok := s.handlers[msg.Type]
	if !ok {
		s.sendError(conn, msg.RequestID, &requestError{msg: fmt.Sprintf("unknown message type %q", msg.Type)})
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.requestTimeout)
	defer cancel()

	start := time.Now()
	result, err := handler(ctx, msg.Payload)
	if err != nil {
		s.logger.Warn(ctx, "ipc request failed",
			ports.F("type", string(msg.Type)),
			ports.F("request_id", msg.RequestID),
			ports.Err(err))
		s.sendError(conn, msg.RequestID, err)
		return
	}
	s.logger.Debug(ctx, "ipc request",
		ports.F("type", string(msg.Type)),
		ports.F("request_id", msg.RequestID),
		ports.F("duration", time.Since(start).String()))

	s.sendResponse(conn, msg.RequestID, msg.Type.Response(), result)
}

func (s *Server) routes() map[MessageType]handlerFunc {
	return map[MessageType]handlerFunc{
		MessageTypeStatusRequest: func(context.Context, json.RawMessage) (interface{}, error) {
			return StatusResponse{Version: s.version, PID: os.Getpid()}, nil
		},
		MessageTypeFetchRegistryRequest: func(ctx context.Context, p json.RawMessage) (interface{}, error) {
			req, err := decode[FetchRegistryRequest](p)
			if err != nil {
				return nil, err
			}
			plugins, err := s.svc.FetchRegistry(ctx, req.ForceRefresh)
			if err != nil {
				return nil, err
			}
			return DescriptorsResponse{Plugins: plugins}, nil
		},
		MessageTypeFetchPackageRequest: func(ctx context.Context, p json.RawMessage) (interface{}, error) {
			req, err := decode[PackageRequest](p)
			if err != nil {
				return nil, err
			}
			plugins, err := s.svc.FetchPackage(ctx, req.Name)
			if err != nil {
				return nil, err
			}
			return DescriptorsResponse{Plugins: plugins}, nil
		},
		MessageTypeInstallRequest: func(ctx context.Context, p json.RawMessage) (interface{}, error) {
			req, err := decode[InstallRequest](p)
			if err != nil {
				return nil, err
			}
			inst, err := s.svc.Install(ctx, req.Descriptor)
			if err != nil {
				return nil, err
			}
			return InstallResponse{Plugin: *inst}, nil
		},
		MessageTypeUninstallRequest: func(ctx context.Context, p json.RawMessage) (interface{}, error) {
			req, err := decode[IDRequest](p)
			if err != nil {
				return nil, err
			}
			return nil, s.svc.Uninstall(ctx, req.ID)
		},
		MessageTypeListInstalledRequest: func(ctx context.Context, _ json.RawMessage) (interface{}, error) {
			plugins, err := s.svc.ListInstalled(ctx)
			if err != nil {
				return nil, err
			}
			return InstalledResponse{Plugins: plugins}, nil
		},
		MessageTypeBundlePathRequest: func(ctx context.Context, p json.RawMessage) (interface{}, error) {
			req, err := decode[IDRequest](p)
			if err != nil {
				return nil, err
			}
			path, err := s.svc.BundlePath(ctx, req.ID)
			if err != nil {
				return nil, err
			}
			return PathResponse{Path: path}, nil
		},
		MessageTypeReadBundleRequest: func(ctx context.Context, p json.RawMessage) (interface{}, error) {
			req, err := decode[IDRequest](p)
			if err != nil {
				return nil, err
			}
			src, err := s.svc.ReadBundle(ctx, req.ID)
			if err != nil {
				return nil, err
			}
			return SourceResponse{Source: src}, nil
		},
		MessageTypeCheckUpdatesRequest: func(ctx context.Context, _ json.RawMessage) (interface{}, error) {
			plugins, err := s.svc.CheckUpdates(ctx)
			if err != nil {
				return nil, err
			}
			return DescriptorsResponse{Plugins: plugins}, nil
		},
		MessageTypeGetConfigRequest: func(ctx context.Context, _ json.RawMessage) (interface{}, error) {
			return ConfigPayload{Config: s.svc.GetConfig(ctx)}, nil
		},
		MessageTypeSetConfigRequest: func(ctx context.Context, p json.RawMessage) (interface{}, error) {
			req, err := decode[ConfigPayload](p)
			if err != nil {
				return nil, err
			}
			if err := s.svc.SetConfig(ctx, req.Config); err != nil {
				return nil, err
			}
			return ConfigPayload{Config: s.svc.GetConfig(ctx)}, nil
		},
		MessageTypeReadLocalBundleRequest: func(ctx context.Context, p json.RawMessage) (interface{}, error) {
			req, err := decode[PathRequest](p)
			if err != nil {
				return nil, err
			}
			src, err := s.svc.ReadLocalBundle(ctx, req.Path)
			if err != nil {
				return nil, err
			}
			return SourceResponse{Source: src}, nil
		},
		MessageTypeReadLocalManifestRequest: func(ctx context.Context, p json.RawMessage) (interface{}, error) {
			req, err := decode[PathRequest](p)
			if err != nil {
				return nil, err
			}
			plugins, err := s.svc.ReadLocalManifest(ctx, req.Path)
			if err != nil {
				return nil, err
			}
			return DescriptorsResponse{Plugins: plugins}, nil
		},
		MessageTypePruneRequest: func(ctx context.Context, _ json.RawMessage) (interface{}, error) {
			removed, err := s.svc.Prune(ctx)
			if err != nil {
				return nil, err
			}
			return PruneResponse{Removed: removed}, nil
		},
		MessageTypeClearCacheRequest: func(ctx context.Context, _ json.RawMessage) (interface{}, error) {
			return nil, s.svc.ClearCache(ctx)
		},
	}
}

// decode unmarshals a request payload. An absent payload decodes to the
// zero value.
func decode[T any](payload json.RawMessage) (T, error) {
	var v T
	if len(payload) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, &requestError{msg: fmt.Sprintf("invalid payload: %v", err)}
	}
	return v, nil
}

func (s *Server) sendResponse(conn net.Conn, requestID string, msgType MessageType, payload interface{}) {
	msg, err := NewMessage(msgType, requestID, payload)
	if err != nil {
		s.logger.Error(context.Background(), "cannot encode ipc response", ports.Err(err))
		msg, _ = NewMessage(MessageTypeErrorResponse, requestID, ErrorResponse{
			Code:    ErrorCodeInternalError,
			Message: "cannot encode response",
		})
	}

	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	_ = json.NewEncoder(conn).Encode(msg) // Best effort, connection may be closed
}

func (s *Server) sendError(conn net.Conn, requestID string, err error) {
	s.sendResponse(conn, requestID, MessageTypeErrorResponse, newErrorResponse(err))
}

// createLockFile creates the lock file with the current PID.
func (s *Server) createLockFile() error {
	dir := filepath.Dir(s.lockPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data := fmt.Sprintf("%d\n", os.Getpid())
	return os.WriteFile(s.lockPath, []byte(data), 0o600)
}

func (s *Server) removeLockFile() {
	_ = os.RemoveAll(s.lockPath)
}
