// Package ipc serves the plugin operations to the host shell over a Unix
// socket, one JSON request and response per connection.
package ipc

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/usefultools/toolbox/internal/domain/config"
	"github.com/usefultools/toolbox/internal/domain/fault"
	"github.com/usefultools/toolbox/internal/domain/plugin"
	"github.com/usefultools/toolbox/internal/domain/registry"
)

// MessageType identifies the type of IPC message.
type MessageType string

// Request types. Each has a matching response type, see MessageType.Response.
const (
	MessageTypeStatusRequest            MessageType = "status_request"
	MessageTypeFetchRegistryRequest     MessageType = "fetch_registry_request"
	MessageTypeFetchPackageRequest      MessageType = "fetch_package_request"
	MessageTypeInstallRequest           MessageType = "install_request"
	MessageTypeUninstallRequest         MessageType = "uninstall_request"
	MessageTypeListInstalledRequest     MessageType = "list_installed_request"
	MessageTypeBundlePathRequest        MessageType = "bundle_path_request"
	MessageTypeReadBundleRequest        MessageType = "read_bundle_request"
	MessageTypeCheckUpdatesRequest      MessageType = "check_updates_request"
	MessageTypeGetConfigRequest         MessageType = "get_config_request"
	MessageTypeSetConfigRequest         MessageType = "set_config_request"
	MessageTypeReadLocalBundleRequest   MessageType = "read_local_bundle_request"
	MessageTypeReadLocalManifestRequest MessageType = "read_local_manifest_request"
	MessageTypePruneRequest             MessageType = "prune_request"
	MessageTypeClearCacheRequest        MessageType = "clear_cache_request"

	// MessageTypeErrorResponse contains error details.
	MessageTypeErrorResponse MessageType = "error_response"
)

// Response returns the response type answering a request type.
func (t MessageType) Response() MessageType {
	return MessageType(strings.TrimSuffix(string(t), "_request") + "_response")
}

// Message is the envelope for all IPC messages.
type Message struct {
	Type      MessageType     `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewMessage creates a new message with the given type and payload.
func NewMessage(msgType MessageType, requestID string, payload interface{}) (*Message, error) {
	var payloadBytes json.RawMessage
	if payload != nil {
		var err error
		payloadBytes, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}

	return &Message{
		Type:      msgType,
		RequestID: requestID,
		Timestamp: time.Now(),
		Payload:   payloadBytes,
	}, nil
}

// StatusResponse is the payload for a status response.
type StatusResponse struct {
	Version string `json:"version,omitempty"`
	PID     int    `json:"pid"`
}

// FetchRegistryRequest is the payload for a fetch_registry request.
type FetchRegistryRequest struct {
	ForceRefresh bool `json:"force_refresh,omitempty"`
}

// PackageRequest names a registry package.
type PackageRequest struct {
	Name string `json:"name"`
}

// DescriptorsResponse carries plugin descriptors.
type DescriptorsResponse struct {
	Plugins []registry.Descriptor `json:"plugins"`
}

// InstallRequest is the payload for an install request.
type InstallRequest struct {
	Descriptor registry.Descriptor `json:"descriptor"`
}

// InstallResponse describes the plugin that was installed.
type InstallResponse struct {
	Plugin plugin.Installed `json:"plugin"`
}

// IDRequest names an installed plugin.
type IDRequest struct {
	ID string `json:"id"`
}

// InstalledResponse lists installed plugins.
type InstalledResponse struct {
	Plugins []plugin.Installed `json:"plugins"`
}

// PathRequest names a file or directory on the local file system.
type PathRequest struct {
	Path string `json:"path"`
}

// PathResponse carries a file path.
type PathResponse struct {
	Path string `json:"path"`
}

// SourceResponse carries bundle source text.
type SourceResponse struct {
	Source string `json:"source"`
}

// ConfigPayload carries the user configuration in both directions.
type ConfigPayload struct {
	Config config.Config `json:"config"`
}

// PruneResponse lists the directories removed by a prune.
type PruneResponse struct {
	Removed []string `json:"removed"`
}

// ErrorResponse is the payload for an error response. Code is a fault kind
// or one of the protocol error codes.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Package string `json:"package,omitempty"`
	Step    string `json:"step,omitempty"`
}

// Protocol error codes, used when a failure carries no fault kind.
const (
	ErrorCodeInvalidRequest = "invalid_request"
	ErrorCodeInternalError  = "internal_error"
)

// newErrorResponse renders err for the wire.
func newErrorResponse(err error) ErrorResponse {
	resp := ErrorResponse{Code: ErrorCodeInternalError, Message: err.Error()}
	var re *requestError
	if errors.As(err, &re) {
		resp.Code = ErrorCodeInvalidRequest
		return resp
	}
	var fe *fault.Error
	if errors.As(err, &fe) {
		resp.Code = string(fe.Kind)
		resp.Package = fe.Package
		resp.Step = fault.StepOf(err)
	}
	return resp
}

// requestError reports a request the server could not decode.
type requestError struct {
	msg string
}

func (e *requestError) Error() string {
	return e.msg
}

// RemoteError is an error reported by the server.
type RemoteError struct {
	Code    string
	Message string
	Package string
	Step    string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// Unwrap exposes the fault kind so fault.KindOf and errors.Is work on
// remote errors.
func (e *RemoteError) Unwrap() error {
	for _, k := range fault.Kinds {
		if string(k) == e.Code {
			return &fault.Error{Kind: k, Package: e.Package, Step: e.Step}
		}
	}
	return nil
}
