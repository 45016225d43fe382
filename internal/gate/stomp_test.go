package gate

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/websocket"
)

func TestFrameCodec(t *testing.T) {
	frame := &Frame{
		Command: "SEND",
		Headers: map[string]string{"destination": "/queue/chat", "receipt": "r1"},
		Body:    "hello",
	}

	parsed, err := ParseFrame(frame.Encode())
	if err != nil {
		t.Fatalf("ParseFrame failed: %v", err)
	}
	if parsed.Command != "SEND" {
		t.Errorf("Unexpected command: %s", parsed.Command)
	}
	if parsed.Headers["destination"] != "/queue/chat" {
		t.Errorf("Unexpected destination: %s", parsed.Headers["destination"])
	}
	if parsed.Body != "hello" {
		t.Errorf("Unexpected body: %q", parsed.Body)
	}
}

func TestParseFrameMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"blank command", "\nheader:value\n\n\x00"},
		{"header without colon", "SEND\nbroken header\n\n\x00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseFrame(tt.raw); err == nil {
				t.Fatal("ParseFrame should fail")
			}
		})
	}
}

func TestParseFrameFirstHeaderWins(t *testing.T) {
	frame, err := ParseFrame("SEND\ndestination:/a\ndestination:/b\n\n\x00")
	if err != nil {
		t.Fatalf("ParseFrame failed: %v", err)
	}
	if frame.Headers["destination"] != "/a" {
		t.Errorf("First header occurrence should win, got %s", frame.Headers["destination"])
	}
}

type stompTestConn struct {
	ws *websocket.Conn
}

func (c *stompTestConn) send(t *testing.T, frame *Frame) {
	t.Helper()
	if err := websocket.Message.Send(c.ws, frame.Encode()); err != nil {
		t.Fatalf("send frame: %v", err)
	}
}

func (c *stompTestConn) receive(t *testing.T) *Frame {
	t.Helper()
	_ = c.ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var raw string
	if err := websocket.Message.Receive(c.ws, &raw); err != nil {
		t.Fatalf("receive frame: %v", err)
	}
	frame, err := ParseFrame(raw)
	if err != nil {
		t.Fatalf("parse received frame: %v", err)
	}
	return frame
}

// receiveErr returns the next frame or nil if the connection is closed.
func (c *stompTestConn) receiveOrClosed(t *testing.T) *Frame {
	t.Helper()
	_ = c.ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var raw string
	if err := websocket.Message.Receive(c.ws, &raw); err != nil {
		return nil
	}
	frame, err := ParseFrame(raw)
	if err != nil {
		t.Fatalf("parse received frame: %v", err)
	}
	return frame
}

type receivedMessage struct {
	userID      int64
	destination string
	body        string
}

func newStompServer(t *testing.T, g *STOMPGate) (string, chan receivedMessage) {
	t.Helper()
	messages := make(chan receivedMessage, 8)
	g.onMessage = func(ctx context.Context, userID int64, destination, body string) {
		messages <- receivedMessage{userID: userID, destination: destination, body: body}
	}

	srv := httptest.NewServer(g.Handler())
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http"), messages
}

func dial(t *testing.T, url string) *stompTestConn {
	t.Helper()
	ws, err := websocket.Dial(url, "", "http://localhost/")
	if err != nil {
		t.Fatalf("websocket dial: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return &stompTestConn{ws: ws}
}

func TestStompConnectWithoutTokenRejected(t *testing.T) {
	validator, _ := newTestValidator(t)
	g := NewSTOMPGate(validator, "session")
	url, messages := newStompServer(t, g)

	conn := dial(t, url)
	conn.send(t, &Frame{Command: "CONNECT", Headers: map[string]string{"accept-version": "1.2"}})

	frame := conn.receive(t)
	if frame.Command != "ERROR" {
		t.Fatalf("Expected ERROR frame, got %s", frame.Command)
	}

	// The connection is closed; a SEND written afterwards never reaches the
	// application.
	_ = websocket.Message.Send(conn.ws, (&Frame{
		Command: "SEND",
		Headers: map[string]string{"destination": "/queue/chat"},
		Body:    "should not arrive",
	}).Encode())

	select {
	case msg := <-messages:
		t.Fatalf("SEND on a rejected connection reached the application: %+v", msg)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestStompSendBeforeConnectRejected(t *testing.T) {
	validator, _ := newTestValidator(t)
	g := NewSTOMPGate(validator, "session")
	url, messages := newStompServer(t, g)

	conn := dial(t, url)
	conn.send(t, &Frame{Command: "SEND", Headers: map[string]string{"destination": "/queue/chat"}, Body: "early"})

	frame := conn.receive(t)
	if frame.Command != "ERROR" {
		t.Fatalf("Expected ERROR frame, got %s", frame.Command)
	}

	select {
	case msg := <-messages:
		t.Fatalf("SEND before CONNECT reached the application: %+v", msg)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestStompConnectWithBearerThenSend(t *testing.T) {
	validator, sign := newTestValidator(t)
	g := NewSTOMPGate(validator, "session")
	url, messages := newStompServer(t, g)

	conn := dial(t, url)
	conn.send(t, &Frame{Command: "CONNECT", Headers: map[string]string{
		"accept-version": "1.2",
		"Authorization":  "Bearer " + sign(42),
	}})

	frame := conn.receive(t)
	if frame.Command != "CONNECTED" {
		t.Fatalf("Expected CONNECTED frame, got %s (%v)", frame.Command, frame.Headers)
	}

	// SEND without re-presenting credentials relies on the connection-level
	// authenticated flag.
	conn.send(t, &Frame{
		Command: "SEND",
		Headers: map[string]string{"destination": "/queue/chat", "receipt": "r1"},
		Body:    "hello",
	})

	receipt := conn.receive(t)
	if receipt.Command != "RECEIPT" || receipt.Headers["receipt-id"] != "r1" {
		t.Fatalf("Expected RECEIPT for r1, got %s (%v)", receipt.Command, receipt.Headers)
	}

	select {
	case msg := <-messages:
		if msg.userID != 42 || msg.destination != "/queue/chat" || msg.body != "hello" {
			t.Errorf("Unexpected message: %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("SEND never reached the application")
	}
}

func TestStompConnectWithQueryToken(t *testing.T) {
	validator, sign := newTestValidator(t)
	g := NewSTOMPGate(validator, "session")
	url, _ := newStompServer(t, g)

	conn := dial(t, url+"/?token="+sign(7))
	conn.send(t, &Frame{Command: "CONNECT", Headers: map[string]string{"accept-version": "1.2"}})

	frame := conn.receive(t)
	if frame.Command != "CONNECTED" {
		t.Fatalf("Expected CONNECTED frame, got %s", frame.Command)
	}
}

func TestStompInvalidTokenRejected(t *testing.T) {
	validator, _ := newTestValidator(t)
	g := NewSTOMPGate(validator, "session")
	url, _ := newStompServer(t, g)

	conn := dial(t, url)
	conn.send(t, &Frame{Command: "CONNECT", Headers: map[string]string{
		"Authorization": "Bearer not.a.token",
	}})

	frame := conn.receive(t)
	if frame.Command != "ERROR" {
		t.Fatalf("Expected ERROR frame, got %s", frame.Command)
	}
	if conn.receiveOrClosed(t) != nil {
		t.Error("Connection should be closed after a rejected CONNECT")
	}
}
