// Package mcp implements the Model Context Protocol (MCP) server for
// Threadline. It dispatches JSON-RPC 2.0 requests to registered agent
// operations and renders their results, keeping session continuity visible
// on every path.
package mcp

import "encoding/json"

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"` // Must be "2.0"
	Method  string          `json:"method"`  // Method name
	Params  json.RawMessage `json:"params"`  // Method parameters
	ID      interface{}     `json:"id"`      // Request ID (string, number, or null)
}

// IsNotification reports whether the request expects no response.
func (r *JSONRPCRequest) IsNotification() bool { return r.ID == nil }

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	Result  interface{}   `json:"result,omitempty"`
	Error   *JSONRPCError `json:"error,omitempty"`
	ID      interface{}   `json:"id"`
}

// JSONRPCError represents a JSON-RPC 2.0 error. Only envelope faults (
// malformed requests, unknown methods, structurally missing fields) are
// ever surfaced this way; business failures travel inside normal results.
type JSONRPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// JSON-RPC error codes
const (
	ErrCodeParseError     = -32700 // Invalid JSON
	ErrCodeInvalidRequest = -32600 // Invalid request object
	ErrCodeMethodNotFound = -32601 // Method not found
	ErrCodeInvalidParams  = -32602 // Invalid method parameters
	ErrCodeInternalError  = -32603 // Internal JSON-RPC error
	ErrCodeServerError    = -32000 // Server error
)

// ---------------------------------------------------------------------------
// Standard MCP protocol types
// ---------------------------------------------------------------------------

// MCPInitializeParams holds the parameters sent by an MCP client in the
// initialize request.
type MCPInitializeParams struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	Capabilities    map[string]interface{} `json:"capabilities,omitempty"`
	ClientInfo      MCPClientInfo          `json:"clientInfo"`
}

// MCPClientInfo identifies the connecting MCP client.
type MCPClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// MCPServerInfo identifies this MCP server.
type MCPServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// MCPServerCapabilities describes what this server supports.
type MCPServerCapabilities struct {
	Tools     *MCPToolsCapability     `json:"tools,omitempty"`
	Resources *MCPResourcesCapability `json:"resources,omitempty"`
	Prompts   *MCPPromptsCapability   `json:"prompts,omitempty"`
}

// MCPToolsCapability signals that the server exposes tools.
type MCPToolsCapability struct{}

// MCPResourcesCapability signals that the server exposes resources.
type MCPResourcesCapability struct{}

// MCPPromptsCapability signals that the server exposes prompts.
type MCPPromptsCapability struct{}

// MCPInitializeResult is the response to the initialize request.
type MCPInitializeResult struct {
	ProtocolVersion string                `json:"protocolVersion"`
	Capabilities    MCPServerCapabilities `json:"capabilities"`
	ServerInfo      MCPServerInfo         `json:"serverInfo"`
}

// MCPTool describes a single tool exposed via the MCP tools/list endpoint.
type MCPTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// MCPToolsListResult is the response to the tools/list request.
type MCPToolsListResult struct {
	Tools []MCPTool `json:"tools"`
}

// MCPToolCallParams holds the parameters sent in a tools/call request. The
// tool name is `<agent>_<suffix>`; the arguments bag must carry a `mode`
// field selecting the operation, and may carry a `context` object threading
// session and workspace continuity.
type MCPToolCallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// MCPToolCallContent is a single content block in a tool call response.
type MCPToolCallContent struct {
	Type string `json:"type"` // always "text" for now
	Text string `json:"text"`
}

// MCPToolCallResult is the response to a tools/call request. IsError marks a
// business failure; it is still a normal JSON-RPC result, never a fault.
type MCPToolCallResult struct {
	Content []MCPToolCallContent `json:"content"`
	IsError bool                 `json:"isError,omitempty"`
}

// ---------------------------------------------------------------------------
// Resources
// ---------------------------------------------------------------------------

// MCPResource describes one readable resource (a workspace or a session).
type MCPResource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// MCPResourcesListResult is the response to resources/list.
type MCPResourcesListResult struct {
	Resources []MCPResource `json:"resources"`
}

// MCPResourceReadParams holds the parameters of a resources/read request.
type MCPResourceReadParams struct {
	URI string `json:"uri"`
}

// MCPResourceContents is one rendered resource payload.
type MCPResourceContents struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType"`
	Text     string `json:"text"`
}

// MCPResourceReadResult is the response to resources/read.
type MCPResourceReadResult struct {
	Contents []MCPResourceContents `json:"contents"`
}

// ---------------------------------------------------------------------------
// Prompts
// ---------------------------------------------------------------------------

// MCPPromptArgument describes one argument a prompt template accepts.
type MCPPromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// MCPPrompt describes one prompt template.
type MCPPrompt struct {
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Arguments   []MCPPromptArgument `json:"arguments,omitempty"`
}

// MCPPromptsListResult is the response to prompts/list.
type MCPPromptsListResult struct {
	Prompts []MCPPrompt `json:"prompts"`
}

// MCPPromptGetParams holds the parameters of a prompts/get request.
type MCPPromptGetParams struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments,omitempty"`
}

// MCPPromptMessage is one message of a rendered prompt.
type MCPPromptMessage struct {
	Role    string             `json:"role"`
	Content MCPToolCallContent `json:"content"`
}

// MCPPromptGetResult is the response to prompts/get.
type MCPPromptGetResult struct {
	Description string             `json:"description,omitempty"`
	Messages    []MCPPromptMessage `json:"messages"`
}

// ---------------------------------------------------------------------------
// Help
// ---------------------------------------------------------------------------

// HelpAgent summarises one registered agent for the help method.
type HelpAgent struct {
	Agent string   `json:"agent"`
	Modes []string `json:"modes"`
}

// HelpResult is the response to the help method.
type HelpResult struct {
	Server MCPServerInfo `json:"server"`
	Usage  string        `json:"usage"`
	Agents []HelpAgent   `json:"agents"`
}
