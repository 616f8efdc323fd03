// ABOUTME: Per-connection JSON-RPC method dispatch table.
// ABOUTME: Routes inbound requests to registered handlers; unknown methods get -32601.

package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// HandlerFunc processes the params of one method and returns its result.
// Returning a *Error produces a structured protocol error response; any
// other error is reported as an internal error without details leaking.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

// Handler maps method names to handler functions for one connection.
type Handler struct {
	methods map[string]HandlerFunc
	logger  *slog.Logger
}

// NewHandler creates an empty dispatch table.
func NewHandler(logger *slog.Logger) *Handler {
	return &Handler{
		methods: make(map[string]HandlerFunc),
		logger:  logger,
	}
}

// Register binds a method name to a handler. Later registrations replace
// earlier ones for the same method.
func (h *Handler) Register(method string, fn HandlerFunc) {
	h.methods[method] = fn
}

// Methods returns the registered method names.
func (h *Handler) Methods() []string {
	names := make([]string, 0, len(h.methods))
	for name := range h.methods {
		names = append(names, name)
	}
	return names
}

// Dispatch routes a request or notification to its handler and returns the
// response message. Notifications return nil: there is nothing to send back.
// Unknown methods produce a method-not-found error response, never a dropped
// connection.
func (h *Handler) Dispatch(ctx context.Context, msg *Message) *Message {
	fn, ok := h.methods[msg.Method]
	if !ok {
		h.logger.Warn("unknown method", "method", msg.Method)
		if msg.IsNotification() {
			return nil
		}
		return NewErrorResponse(msg.ID, CodeMethodNotFound, fmt.Sprintf("method not found: %s", msg.Method))
	}

	result, err := fn(ctx, msg.Params)
	if msg.IsNotification() {
		if err != nil {
			h.logger.Warn("notification handler failed", "method", msg.Method, "error", err)
		}
		return nil
	}

	if err != nil {
		if protoErr, ok := err.(*Error); ok {
			return &Message{JSONRPC: JSONRPCVersion, ID: msg.ID, Error: protoErr}
		}
		h.logger.Error("handler failed", "method", msg.Method, "error", err)
		return NewErrorResponse(msg.ID, CodeInternalError, err.Error())
	}

	resp, err := NewResponse(msg.ID, result)
	if err != nil {
		h.logger.Error("marshaling response failed", "method", msg.Method, "error", err)
		return NewErrorResponse(msg.ID, CodeInternalError, "internal error")
	}
	return resp
}
