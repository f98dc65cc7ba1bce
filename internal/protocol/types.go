package protocol

import (
	"encoding/json"
	"strconv"
	"time"
)

// Core methods spoken between the orchestrator and a worker process.
const (
	MethodInitialize = "initialize"
	MethodToolsCall  = "tools/call"
	MethodPing       = "ping"
)

// Version is the protocol revision sent during the initialize handshake.
const Version = "2024-11-05"

// Message is the JSON-RPC 2.0 envelope exchanged with workers, one JSON
// object per newline-terminated line. Calls and replies carry an id;
// notifications omit it. A reply carries exactly one of Result or Error.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"` // string or number per JSON-RPC 2.0
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is the JSON-RPC 2.0 error object.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// IsReply reports whether the message is a response to an earlier call.
func (m *Message) IsReply() bool {
	return m.ID != nil && m.Method == "" && (m.Result != nil || m.Error != nil)
}

// IDString normalizes the message id to a string key for correlation.
// JSON numbers decode as float64; workers are expected to echo ids verbatim.
func (m *Message) IDString() string {
	switch v := m.ID.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// NewCall builds a request message for the given method and params.
func NewCall(id string, method string, params any) (*Message, error) {
	msg := &Message{JSONRPC: "2.0", ID: id, Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		msg.Params = raw
	}
	return msg, nil
}

// InitializeParams is the payload of the initialize handshake call.
type InitializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ClientInfo      ClientInfo     `json:"clientInfo"`
}

// ClientInfo identifies the orchestrator to the worker.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Capabilities is the tool/resource summary a worker declares in its
// initialize reply.
type Capabilities struct {
	Tools     []Tool     `json:"tools,omitempty"`
	Resources []Resource `json:"resources,omitempty"`
}

// Tool describes one callable tool exposed by a worker.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

// Resource describes one resource exposed by a worker.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// InitializeResult is the reply payload of the initialize handshake.
type InitializeResult struct {
	ProtocolVersion string       `json:"protocolVersion,omitempty"`
	Capabilities    Capabilities `json:"capabilities"`
}

// ToolCallParams is the payload of a tools/call request.
type ToolCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ProgressUpdate is the task_progress payload broadcast to subscribers.
type ProgressUpdate struct {
	TaskID         string   `json:"taskId"`
	Progress       int      `json:"progress"`
	CurrentStep    string   `json:"currentStep"`
	TotalSteps     int      `json:"totalSteps"`
	CompletedSteps int      `json:"completedSteps"`
	Logs           []string `json:"logs"`
}

// TaskCompleted is the task_completed payload broadcast to subscribers.
type TaskCompleted struct {
	TaskID    string          `json:"taskId"`
	Result    json.RawMessage `json:"result"`
	Timestamp time.Time       `json:"timestamp"`
}

// ServiceStatus is the service_status payload broadcast to subscribers.
// Status is one of: installed, running, error, stopped, removed.
type ServiceStatus struct {
	ServiceID string    `json:"serviceId"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}
