package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/threadline-dev/threadline/internal/executor"
	"github.com/threadline-dev/threadline/internal/memory"
	"github.com/threadline-dev/threadline/internal/registry"
	"github.com/threadline-dev/threadline/internal/session"
)

// ProtocolVersion is the MCP protocol revision this server speaks.
const ProtocolVersion = "2024-11-05"

// strategy is one dispatch arm of the router. Strategies are tried in
// registration order; the first whose predicate matches handles the request.
type strategy struct {
	name    string
	matches func(method string) bool
	handle  func(ctx context.Context, req *JSONRPCRequest) (interface{}, *JSONRPCError)
}

// Server routes JSON-RPC requests to agent operations. It owns the strategy
// set, the session resolvers, and the response formatter; transports feed it
// raw request bytes and write back whatever it returns.
type Server struct {
	registry  *registry.Registry
	exec      *executor.Executor
	mem       *memory.Service
	resolver  session.Resolver
	fallback  session.Resolver
	formatter *Formatter
	logger    *log.Logger
	info      MCPServerInfo

	strategies []strategy
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger directs server logging to the given logger. Transports must keep
// this off stdout.
func WithLogger(logger *log.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// WithServerInfo overrides the advertised server identity.
func WithServerInfo(info MCPServerInfo) ServerOption {
	return func(s *Server) { s.info = info }
}

// WithSessionResolver overrides the primary session resolver.
func WithSessionResolver(r session.Resolver) ServerOption {
	return func(s *Server) { s.resolver = r }
}

// NewServer assembles a Server over the given registry, executor, and memory
// service.
func NewServer(reg *registry.Registry, exec *executor.Executor, mem *memory.Service, opts ...ServerOption) *Server {
	s := &Server{
		registry: reg,
		exec:     exec,
		mem:      mem,
		resolver: session.NewStoreResolver(mem.Store().Sessions()),
		fallback: session.StatelessResolver{},
		logger:   log.New(os.Stderr, "threadline-mcp: ", log.LstdFlags),
		info:     MCPServerInfo{Name: "threadline", Version: "1.0.0"},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.formatter = NewFormatter(s.logger)

	// Registration order is dispatch order.
	s.strategies = []strategy{
		{"initialize", methodIs("initialize"), s.handleInitialize},
		{"notifications", func(m string) bool { return strings.HasPrefix(m, "notifications/") }, s.handleNotification},
		{"tools/list", methodIs("tools/list"), s.handleToolsList},
		{"tools/call", methodIs("tools/call"), s.handleToolsCall},
		{"resources/list", methodIs("resources/list"), s.handleResourcesList},
		{"resources/read", methodIs("resources/read"), s.handleResourcesRead},
		{"prompts/list", methodIs("prompts/list"), s.handlePromptsList},
		{"prompts/get", methodIs("prompts/get"), s.handlePromptsGet},
		{"ping", methodIs("ping"), s.handlePing},
		{"help", methodIs("help"), s.handleHelp},
	}
	return s
}

func methodIs(want string) func(string) bool {
	return func(m string) bool { return m == want }
}

// HandleRequest processes one raw JSON-RPC request and returns the encoded
// response frame. A nil, nil return means the request was a notification and
// no frame should be written.
func (s *Server) HandleRequest(ctx context.Context, raw []byte) ([]byte, error) {
	var req JSONRPCRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return s.encodeError(nil, ErrCodeParseError, fmt.Sprintf("parse error: %v", err), nil)
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		return s.encodeError(req.ID, ErrCodeInvalidRequest, "invalid request: jsonrpc must be \"2.0\" and method must be set", nil)
	}

	for _, st := range s.strategies {
		if !st.matches(req.Method) {
			continue
		}
		result, rpcErr := st.handle(ctx, &req)
		if req.IsNotification() {
			return nil, nil
		}
		if rpcErr != nil {
			return s.encode(JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Error: rpcErr})
		}
		return s.encode(JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: result})
	}

	if req.IsNotification() {
		s.logger.Printf("ignoring unknown notification %q", req.Method)
		return nil, nil
	}
	return s.encodeError(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("method not found: %q", req.Method), nil)
}

func (s *Server) encode(resp JSONRPCResponse) ([]byte, error) {
	data, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return data, nil
}

func (s *Server) encodeError(id interface{}, code int, message string, data interface{}) ([]byte, error) {
	return s.encode(JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &JSONRPCError{Code: code, Message: message, Data: data},
	})
}
