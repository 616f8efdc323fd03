// ABOUTME: Tests for JSON-RPC message classification and handler dispatch.
// ABOUTME: Covers responses, notifications, unknown methods, and error passthrough.

package protocol

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageClassification(t *testing.T) {
	tests := []struct {
		name         string
		raw          string
		request      bool
		notification bool
		response     bool
	}{
		{
			name:    "request",
			raw:     `{"jsonrpc": "2.0", "id": "1", "method": "tools/list"}`,
			request: true,
		},
		{
			name:         "notification",
			raw:          `{"jsonrpc": "2.0", "method": "notifications/heartbeat"}`,
			notification: true,
		},
		{
			name:     "result response",
			raw:      `{"jsonrpc": "2.0", "id": "1", "result": {}}`,
			response: true,
		},
		{
			name:     "error response",
			raw:      `{"jsonrpc": "2.0", "id": "1", "error": {"code": -32601, "message": "nope"}}`,
			response: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var msg Message
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &msg))
			assert.Equal(t, tt.request, msg.IsRequest())
			assert.Equal(t, tt.notification, msg.IsNotification())
			assert.Equal(t, tt.response, msg.IsResponse())
		})
	}
}

func TestIDString(t *testing.T) {
	t.Run("string id", func(t *testing.T) {
		// String IDs keep their raw JSON text, quotes included; the key
		// only needs to match what routeResponse sees on the wire.
		msg, err := NewRequest("abc", MethodToolsList, nil)
		require.NoError(t, err)
		assert.Equal(t, `"abc"`, msg.IDString())

		var echo Message
		require.NoError(t, json.Unmarshal([]byte(`{"jsonrpc": "2.0", "id": "abc", "result": {}}`), &echo))
		assert.Equal(t, msg.IDString(), echo.IDString())
	})

	t.Run("numeric id", func(t *testing.T) {
		var msg Message
		require.NoError(t, json.Unmarshal([]byte(`{"jsonrpc": "2.0", "id": 7, "method": "x"}`), &msg))
		assert.Equal(t, "7", msg.IDString())
	})
}

func TestDispatch(t *testing.T) {
	handler := NewHandler(slog.Default())
	handler.Register("echo", func(ctx context.Context, raw json.RawMessage) (any, error) {
		return map[string]string{"echo": string(raw)}, nil
	})
	handler.Register("boom", func(ctx context.Context, raw json.RawMessage) (any, error) {
		return nil, errors.New("kaboom")
	})
	handler.Register("denied", func(ctx context.Context, raw json.RawMessage) (any, error) {
		return nil, &Error{Code: CodeAccessDenied, Message: "not yours"}
	})

	t.Run("routes to the registered handler", func(t *testing.T) {
		req, err := NewRequest("1", "echo", map[string]string{"hi": "there"})
		require.NoError(t, err)
		resp := handler.Dispatch(context.Background(), req)
		require.NotNil(t, resp)
		assert.Nil(t, resp.Error)
		assert.JSONEq(t, string(req.ID), string(resp.ID))
	})

	t.Run("unknown method", func(t *testing.T) {
		req, err := NewRequest("2", "no/such/method", nil)
		require.NoError(t, err)
		resp := handler.Dispatch(context.Background(), req)
		require.NotNil(t, resp)
		require.NotNil(t, resp.Error)
		assert.Equal(t, CodeMethodNotFound, resp.Error.Code)
	})

	t.Run("handler error becomes internal error", func(t *testing.T) {
		req, err := NewRequest("3", "boom", nil)
		require.NoError(t, err)
		resp := handler.Dispatch(context.Background(), req)
		require.NotNil(t, resp.Error)
		assert.Equal(t, CodeInternalError, resp.Error.Code)
	})

	t.Run("protocol errors pass through untouched", func(t *testing.T) {
		req, err := NewRequest("4", "denied", nil)
		require.NoError(t, err)
		resp := handler.Dispatch(context.Background(), req)
		require.NotNil(t, resp.Error)
		assert.Equal(t, CodeAccessDenied, resp.Error.Code)
		assert.Equal(t, "not yours", resp.Error.Message)
	})

	t.Run("notifications return nothing", func(t *testing.T) {
		note, err := NewNotification("echo", nil)
		require.NoError(t, err)
		assert.Nil(t, handler.Dispatch(context.Background(), note))
	})

	t.Run("unknown notification is dropped silently", func(t *testing.T) {
		note, err := NewNotification("no/such/method", nil)
		require.NoError(t, err)
		assert.Nil(t, handler.Dispatch(context.Background(), note))
	})
}
