package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usefultools/toolbox/internal/domain/fault"
)

func TestNewMessage(t *testing.T) {
	t.Parallel()

	t.Run("creates message with payload", func(t *testing.T) {
		t.Parallel()

		msg, err := NewMessage(MessageTypeFetchRegistryRequest, "req-123", FetchRegistryRequest{ForceRefresh: true})

		require.NoError(t, err)
		assert.Equal(t, MessageTypeFetchRegistryRequest, msg.Type)
		assert.Equal(t, "req-123", msg.RequestID)
		assert.False(t, msg.Timestamp.IsZero())
		assert.JSONEq(t, `{"force_refresh":true}`, string(msg.Payload))
	})

	t.Run("creates message without payload", func(t *testing.T) {
		t.Parallel()

		msg, err := NewMessage(MessageTypeListInstalledRequest, "req-456", nil)

		require.NoError(t, err)
		assert.Nil(t, msg.Payload)

		data, err := json.Marshal(msg)
		require.NoError(t, err)
		assert.NotContains(t, string(data), "payload")
	})
}

func TestMessageType_Response(t *testing.T) {
	t.Parallel()

	assert.Equal(t, MessageType("install_response"), MessageTypeInstallRequest.Response())
	assert.Equal(t, MessageType("read_local_manifest_response"), MessageTypeReadLocalManifestRequest.Response())
}

func TestNewErrorResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want ErrorResponse
	}{
		{
			name: "fault with package and step",
			err:  fault.New(fault.KindNotFound, "no latest version").WithPackage("usefultools-plugin-x").WithStep("latest-tag"),
			want: ErrorResponse{
				Code:    "not_found",
				Message: "usefultools-plugin-x: no latest version (step latest-tag)",
				Package: "usefultools-plugin-x",
				Step:    "latest-tag",
			},
		},
		{
			name: "wrapped fault",
			err:  fmt.Errorf("install: %w", fault.New(fault.KindIO, "disk full")),
			want: ErrorResponse{Code: "io", Message: "install: disk full"},
		},
		{
			name: "foreign error",
			err:  errors.New("boom"),
			want: ErrorResponse{Code: ErrorCodeInternalError, Message: "boom"},
		},
		{
			name: "bad request",
			err:  &requestError{msg: "invalid payload"},
			want: ErrorResponse{Code: ErrorCodeInvalidRequest, Message: "invalid payload"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, newErrorResponse(tt.err))
		})
	}
}

func TestRemoteError_CarriesKind(t *testing.T) {
	t.Parallel()

	err := error(&RemoteError{Code: "validation", Message: "bad id"})
	assert.Equal(t, "bad id", err.Error())
	assert.Equal(t, fault.KindValidation, fault.KindOf(err))
	assert.True(t, errors.Is(err, fault.ErrValidation))

	other := error(&RemoteError{Code: ErrorCodeInternalError, Message: "boom"})
	assert.Equal(t, fault.Kind(""), fault.KindOf(other))
}

func TestDecode(t *testing.T) {
	t.Parallel()

	req, err := decode[IDRequest](json.RawMessage(`{"id":"json"}`))
	require.NoError(t, err)
	assert.Equal(t, "json", req.ID)

	empty, err := decode[FetchRegistryRequest](nil)
	require.NoError(t, err)
	assert.False(t, empty.ForceRefresh)

	_, err = decode[IDRequest](json.RawMessage(`{"id":`))
	var re *requestError
	assert.ErrorAs(t, err, &re)
}
