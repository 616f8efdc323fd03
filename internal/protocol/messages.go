// ABOUTME: JSON-RPC 2.0 message types and MCP method/capability definitions.
// ABOUTME: Shared wire vocabulary for connections, transports, and dispatch.

package protocol

import (
	"encoding/json"
	"fmt"
)

// Version is the MCP protocol version advertised during initialize.
const Version = "2024-11-05"

// JSONRPCVersion is the fixed jsonrpc field value on every message.
const JSONRPCVersion = "2.0"

// MCP method names.
const (
	MethodInitialize         = "initialize"
	MethodResourcesList      = "resources/list"
	MethodResourcesRead      = "resources/read"
	MethodResourcesSubscribe = "resources/subscribe"
	MethodToolsList          = "tools/list"
	MethodToolsCall          = "tools/call"
	MethodHeartbeat          = "notifications/heartbeat"
)

// Standard JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Implementation-defined error codes (server error range).
const (
	CodeRateLimited  = -32000
	CodeAccessDenied = -32001
)

// Message is a JSON-RPC 2.0 message. A request has Method and ID, a
// notification has Method and no ID, and a response has ID plus either
// Result or Error.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// IsRequest reports whether the message is a request expecting a response.
func (m *Message) IsRequest() bool {
	return m.Method != "" && len(m.ID) > 0
}

// IsNotification reports whether the message is a fire-and-forget notification.
func (m *Message) IsNotification() bool {
	return m.Method != "" && len(m.ID) == 0
}

// IsResponse reports whether the message is a response to an earlier request.
func (m *Message) IsResponse() bool {
	return m.Method == "" && len(m.ID) > 0
}

// IDString returns the request ID as a comparable string key.
// Numeric and string IDs both reduce to their raw JSON text.
func (m *Message) IDString() string {
	return string(m.ID)
}

// NewRequest builds a request message, marshaling params if non-nil.
func NewRequest(id string, method string, params any) (*Message, error) {
	msg := &Message{
		JSONRPC: JSONRPCVersion,
		ID:      encodeID(id),
		Method:  method,
	}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshaling params for %s: %w", method, err)
		}
		msg.Params = raw
	}
	return msg, nil
}

// NewNotification builds a notification message (no ID, no response expected).
func NewNotification(method string, params any) (*Message, error) {
	msg := &Message{
		JSONRPC: JSONRPCVersion,
		Method:  method,
	}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshaling params for %s: %w", method, err)
		}
		msg.Params = raw
	}
	return msg, nil
}

// NewResponse builds a success response carrying the marshaled result.
func NewResponse(id json.RawMessage, result any) (*Message, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshaling result: %w", err)
	}
	return &Message{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Result:  raw,
	}, nil
}

// NewErrorResponse builds an error response for the given request ID.
func NewErrorResponse(id json.RawMessage, code int, message string) *Message {
	return &Message{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Error:   &Error{Code: code, Message: message},
	}
}

func encodeID(id string) json.RawMessage {
	raw, _ := json.Marshal(id)
	return raw
}

// Capability flag structs negotiated during initialize.

// ResourceCapabilities describes resource-related capabilities.
type ResourceCapabilities struct {
	Subscribe   bool `json:"subscribe"`
	ListChanged bool `json:"listChanged"`
}

// ToolCapabilities describes tool-related capabilities.
type ToolCapabilities struct {
	ListChanged bool `json:"listChanged"`
}

// PromptCapabilities describes prompt-related capabilities.
type PromptCapabilities struct {
	ListChanged bool `json:"listChanged"`
}

// Capabilities is the full capability set declared by either side.
type Capabilities struct {
	Resources *ResourceCapabilities `json:"resources,omitempty"`
	Tools     *ToolCapabilities     `json:"tools,omitempty"`
	Prompts   *PromptCapabilities   `json:"prompts,omitempty"`
	Logging   map[string]any        `json:"logging,omitempty"`
}

// DefaultCapabilities returns the capability set the gateway declares when
// initiating a handshake: resource subscribe/listChanged, tool and prompt
// listChanged, and logging.
func DefaultCapabilities() Capabilities {
	return Capabilities{
		Resources: &ResourceCapabilities{Subscribe: true, ListChanged: true},
		Tools:     &ToolCapabilities{ListChanged: true},
		Prompts:   &PromptCapabilities{ListChanged: true},
		Logging:   map[string]any{},
	}
}

// Implementation identifies a protocol participant.
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeParams are the params for the initialize request.
type InitializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    Capabilities   `json:"capabilities"`
	ClientInfo      Implementation `json:"clientInfo"`
}

// InitializeResult is the result of a successful initialize exchange.
type InitializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    Capabilities   `json:"capabilities"`
	ServerInfo      Implementation `json:"serverInfo"`
}

// ResourceInfo describes one addressable resource in a catalog.
type ResourceInfo struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ListResourcesResult is the result for resources/list.
type ListResourcesResult struct {
	Resources []ResourceInfo `json:"resources"`
}

// ReadResourceParams are the params for resources/read.
type ReadResourceParams struct {
	URI string `json:"uri"`
}

// ResourceContents is one content block returned by resources/read.
type ResourceContents struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
}

// ReadResourceResult is the result for resources/read.
type ReadResourceResult struct {
	Contents []ResourceContents `json:"contents"`
}

// SubscribeParams are the params for resources/subscribe.
type SubscribeParams struct {
	URI string `json:"uri"`
}

// ToolInfo describes one invocable tool in a catalog.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// ListToolsResult is the result for tools/list.
type ListToolsResult struct {
	Tools []ToolInfo `json:"tools"`
}

// CallToolParams are the params for tools/call.
type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Content is one content block in a tool result.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// CallToolResult is the result for tools/call.
type CallToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// HeartbeatParams are the params for the recurring heartbeat notification.
type HeartbeatParams struct {
	ConnectionID string `json:"connectionId"`
	Timestamp    int64  `json:"timestamp"`
}
