package mcp

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"time"

	"golang.org/x/time/rate"
	"nhooyr.io/websocket"
)

// WSTransport serves the MCP protocol over WebSocket connections: one
// JSON-RPC 2.0 message per text frame, the same Server behind it as stdio.
// Each connection gets its own rate limiter so one noisy client cannot
// starve the rest.
type WSTransport struct {
	server   *Server
	logger   *log.Logger
	perConn  rate.Limit
	burst    int
	patterns []string
}

// WSOption configures a WSTransport.
type WSOption func(*WSTransport)

// WithConnRate sets the per-connection request rate and burst.
func WithConnRate(perSecond float64, burst int) WSOption {
	return func(t *WSTransport) {
		if perSecond > 0 {
			t.perConn = rate.Limit(perSecond)
		}
		if burst > 0 {
			t.burst = burst
		}
	}
}

// WithOriginPatterns sets the host patterns accepted during the WebSocket
// handshake. Default accepts only same-origin.
func WithOriginPatterns(patterns ...string) WSOption {
	return func(t *WSTransport) { t.patterns = patterns }
}

// NewWSTransport constructs a WSTransport over the given server.
func NewWSTransport(srv *Server, opts ...WSOption) *WSTransport {
	t := &WSTransport{
		server:  srv,
		logger:  log.New(os.Stderr, "threadline-ws: ", log.LstdFlags),
		perConn: rate.Limit(20),
		burst:   10,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ServeHTTP upgrades the request and pumps JSON-RPC messages until the client
// disconnects or the request context ends.
func (t *WSTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: t.patterns,
	})
	if err != nil {
		t.logger.Printf("accept: %v", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "unexpected shutdown")

	t.logger.Printf("connection from %s", r.RemoteAddr)
	if err := t.pump(r.Context(), conn); err != nil {
		t.logger.Printf("connection %s closed: %v", r.RemoteAddr, err)
		return
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

// pump reads request frames, dispatches them, and writes response frames.
func (t *WSTransport) pump(ctx context.Context, conn *websocket.Conn) error {
	limiter := rate.NewLimiter(t.perConn, t.burst)

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if msgType != websocket.MessageText {
			continue
		}

		if err := limiter.Wait(ctx); err != nil {
			return err
		}

		resp, err := t.server.HandleRequest(ctx, data)
		if err != nil {
			resp = internalErrorResponse(data, err)
		}
		if resp == nil {
			continue
		}

		writeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err = conn.Write(writeCtx, websocket.MessageText, resp)
		cancel()
		if err != nil {
			return err
		}
	}
}
