package gate

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"golang.org/x/net/websocket"

	"github.com/clanhall/authcore/internal/metrics"
	"github.com/clanhall/authcore/internal/token"
)

// STOMP frame commands handled by the gate.
const (
	stompConnect     = "CONNECT"
	stompStomp       = "STOMP"
	stompConnected   = "CONNECTED"
	stompSend        = "SEND"
	stompSubscribe   = "SUBSCRIBE"
	stompUnsubscribe = "UNSUBSCRIBE"
	stompDisconnect  = "DISCONNECT"
	stompReceipt     = "RECEIPT"
	stompError       = "ERROR"
)

// MessageHandler consumes application SEND frames from authenticated
// connections. The user id is the identity resolved at CONNECT time.
type MessageHandler func(ctx context.Context, userID int64, destination, body string)

// STOMPGate authenticates STOMP-over-WebSocket connections. Authentication
// happens exactly once, on the CONNECT frame; the resolved identity is
// stored on the connection session and every later frame is checked against
// that stored flag only. There is no re-validation or revocation check for
// the life of the socket.
type STOMPGate struct {
	validator  *token.Validator
	cookieName string
	onMessage  MessageHandler
	logger     *slog.Logger
}

// STOMPGateOption configures the STOMPGate.
type STOMPGateOption func(*STOMPGate)

// WithSTOMPGateLogger sets the logger for the gate.
func WithSTOMPGateLogger(logger *slog.Logger) STOMPGateOption {
	return func(g *STOMPGate) { g.logger = logger }
}

// WithMessageHandler sets the sink for application SEND frames.
func WithMessageHandler(h MessageHandler) STOMPGateOption {
	return func(g *STOMPGate) { g.onMessage = h }
}

// NewSTOMPGate creates a STOMPGate.
func NewSTOMPGate(validator *token.Validator, cookieName string, opts ...STOMPGateOption) *STOMPGate {
	g := &STOMPGate{
		validator:  validator,
		cookieName: cookieName,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Handler returns the WebSocket endpoint handler.
func (g *STOMPGate) Handler() http.Handler {
	return websocket.Handler(g.handleConn)
}

// stompSession is the per-connection auth state. It is written once at
// CONNECT and read on every later frame.
type stompSession struct {
	userID        int64
	authenticated bool
	subscriptions map[string]string // id -> destination
}

func (g *STOMPGate) handleConn(ws *websocket.Conn) {
	defer func() { _ = ws.Close() }()

	ctx := context.Background()
	if req := ws.Request(); req != nil {
		ctx = req.Context()
	}

	sess := &stompSession{subscriptions: make(map[string]string)}
	defer func() {
		if sess.authenticated {
			metrics.WebSocketDisconnected()
		}
	}()

	for {
		var raw string
		if err := websocket.Message.Receive(ws, &raw); err != nil {
			return
		}

		// Lone newlines are STOMP heartbeats.
		if strings.Trim(raw, "\n\r") == "" {
			continue
		}

		frame, err := ParseFrame(raw)
		if err != nil {
			g.sendError(ws, fmt.Sprintf("malformed frame: %v", err))
			return
		}

		switch frame.Command {
		case stompConnect, stompStomp:
			if !g.handleConnect(ctx, ws, sess, frame) {
				return
			}
		case stompDisconnect:
			g.sendReceipt(ws, frame)
			return
		default:
			if !sess.authenticated {
				metrics.RecordGateRejection("stomp")
				g.logger.Info("rejected frame on unauthenticated connection", "command", frame.Command)
				g.sendError(ws, "not authenticated")
				return
			}
			g.handleFrame(ctx, ws, sess, frame)
		}
	}
}

// handleConnect evaluates the candidate token carried by the CONNECT frame
// (or its upgrade request) and either accepts or closes the connection.
func (g *STOMPGate) handleConnect(ctx context.Context, ws *websocket.Conn, sess *stompSession, frame *Frame) bool {
	outcome := Evaluate(ctx, g.validator, g.connectToken(frame, ws.Request()))
	if !outcome.Authenticated {
		metrics.RecordGateRejection("stomp")
		g.logger.Info("websocket connect rejected", "reason", outcome.Reason)
		g.sendError(ws, "authentication required")
		return false
	}

	sess.userID = outcome.UserID
	sess.authenticated = true
	metrics.WebSocketConnected()

	g.logger.Info("websocket connected", "user_id", sess.userID)
	g.send(ws, &Frame{
		Command: stompConnected,
		Headers: map[string]string{"version": "1.2"},
	})
	return true
}

// connectToken extracts the candidate token: CONNECT frame Bearer header
// first, then the upgrade request's session cookie, then a token query
// parameter.
func (g *STOMPGate) connectToken(frame *Frame, req *http.Request) string {
	if auth := frame.Headers["Authorization"]; strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(auth[len("Bearer "):])
	}
	if req != nil {
		if g.cookieName != "" {
			if cookie, err := req.Cookie(g.cookieName); err == nil && cookie.Value != "" {
				return cookie.Value
			}
		}
		if tok := req.URL.Query().Get("token"); tok != "" {
			return tok
		}
	}
	return ""
}

func (g *STOMPGate) handleFrame(ctx context.Context, ws *websocket.Conn, sess *stompSession, frame *Frame) {
	switch frame.Command {
	case stompSend:
		if g.onMessage != nil {
			g.onMessage(ctx, sess.userID, frame.Headers["destination"], frame.Body)
		}
	case stompSubscribe:
		if id := frame.Headers["id"]; id != "" {
			sess.subscriptions[id] = frame.Headers["destination"]
		}
	case stompUnsubscribe:
		delete(sess.subscriptions, frame.Headers["id"])
	default:
		g.sendError(ws, fmt.Sprintf("unsupported command %s", frame.Command))
		return
	}
	g.sendReceipt(ws, frame)
}

func (g *STOMPGate) sendReceipt(ws *websocket.Conn, frame *Frame) {
	receipt := frame.Headers["receipt"]
	if receipt == "" {
		return
	}
	g.send(ws, &Frame{
		Command: stompReceipt,
		Headers: map[string]string{"receipt-id": receipt},
	})
}

func (g *STOMPGate) sendError(ws *websocket.Conn, message string) {
	g.send(ws, &Frame{
		Command: stompError,
		Headers: map[string]string{"message": message},
	})
}

func (g *STOMPGate) send(ws *websocket.Conn, frame *Frame) {
	if err := websocket.Message.Send(ws, frame.Encode()); err != nil {
		g.logger.Warn("failed to write STOMP frame", "error", err)
	}
}

// Frame is a parsed STOMP frame.
type Frame struct {
	Command string
	Headers map[string]string
	Body    string
}

// ParseFrame decodes a single STOMP frame from a WebSocket text message.
func ParseFrame(raw string) (*Frame, error) {
	raw = strings.TrimSuffix(raw, "\x00")

	head, body, _ := strings.Cut(raw, "\n\n")
	lines := strings.Split(head, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return nil, fmt.Errorf("missing command")
	}

	frame := &Frame{
		Command: strings.TrimRight(lines[0], "\r"),
		Headers: make(map[string]string, len(lines)-1),
		Body:    body,
	}

	for _, line := range lines[1:] {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("malformed header %q", line)
		}
		// First occurrence wins, per the STOMP spec.
		if _, exists := frame.Headers[key]; !exists {
			frame.Headers[key] = value
		}
	}

	return frame, nil
}

// Encode renders the frame in wire format.
func (f *Frame) Encode() string {
	var b strings.Builder
	b.WriteString(f.Command)
	b.WriteByte('\n')

	// Deterministic header order keeps frames stable for tests and logs.
	keys := make([]string, 0, len(f.Headers))
	for k := range f.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(f.Headers[k])
		b.WriteByte('\n')
	}

	b.WriteByte('\n')
	b.WriteString(f.Body)
	b.WriteByte(0)
	return b.String()
}
