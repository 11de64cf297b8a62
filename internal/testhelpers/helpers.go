// Package testhelpers provides common utilities for tests that talk to a
// running GoChat server over HTTP and WebSocket.
package testhelpers

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/gochat-rooms/internal/chat"
)

// TestOrigin is the Origin header sent by ConnectWebSocket.
const TestOrigin = "http://localhost:8080"

// WebSocketURL builds the ws:// address of room on an httptest server URL.
// An empty username leaves the query string out.
func WebSocketURL(serverURL, room, username string) string {
	u := "ws" + strings.TrimPrefix(serverURL, "http") + "/ws/" + url.PathEscape(room)
	if username != "" {
		u += "?username=" + url.QueryEscape(username)
	}
	return u
}

// Dial opens a WebSocket connection with the given Origin header and
// returns the handshake response alongside any error.
func Dial(wsURL, origin string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(wsURL, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

// ConnectWebSocket joins room as username and closes the connection when
// the test ends.
func ConnectWebSocket(t *testing.T, serverURL, room, username string) *websocket.Conn {
	t.Helper()
	conn, _, err := Dial(WebSocketURL(serverURL, room, username), TestOrigin)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// SendMessage posts content as username.
func SendMessage(t *testing.T, conn *websocket.Conn, content, username string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]string{"message": content, "username": username}))
}

// SendLoadMore asks for the page older than oldestID.
func SendLoadMore(t *testing.T, conn *websocket.Conn, oldestID uint64) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]any{"type": chat.TypeLoadMore, "oldest_id": oldestID}))
}

// ReceiveRaw reads one frame, failing the test after two seconds.
func ReceiveRaw(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return data
}

// ReceiveMessage reads one live or initial-batch frame.
func ReceiveMessage(t *testing.T, conn *websocket.Conn) chat.MessagePayload {
	t.Helper()
	var payload chat.MessagePayload
	require.NoError(t, json.Unmarshal(ReceiveRaw(t, conn), &payload))
	return payload
}

// ReceiveMessages reads n message frames.
func ReceiveMessages(t *testing.T, conn *websocket.Conn, n int) []chat.MessagePayload {
	t.Helper()
	messages := make([]chat.MessagePayload, 0, n)
	for i := 0; i < n; i++ {
		messages = append(messages, ReceiveMessage(t, conn))
	}
	return messages
}

// ReceiveHistory reads one load_more answer.
func ReceiveHistory(t *testing.T, conn *websocket.Conn) chat.HistoryPayload {
	t.Helper()
	var payload chat.HistoryPayload
	require.NoError(t, json.Unmarshal(ReceiveRaw(t, conn), &payload))
	require.Equal(t, chat.TypeHistory, payload.Type)
	return payload
}

// ReceiveError reads one error frame.
func ReceiveError(t *testing.T, conn *websocket.Conn) chat.ErrorPayload {
	t.Helper()
	var payload chat.ErrorPayload
	require.NoError(t, json.Unmarshal(ReceiveRaw(t, conn), &payload))
	require.Equal(t, chat.TypeError, payload.Type)
	return payload
}

// ExpectNoFrame fails the test if a frame arrives within wait. A timed out
// gorilla connection cannot be read again, so call it last.
func ExpectNoFrame(t *testing.T, conn *websocket.Conn, wait time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(wait)))
	_, data, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("unexpected frame %s", data)
	}
	var netErr net.Error
	require.True(t, errors.As(err, &netErr) && netErr.Timeout(), "expected a read timeout, got %v", err)
}

// ExpectClosed waits for the server to close the connection.
func ExpectClosed(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			var netErr net.Error
			require.False(t, errors.As(err, &netErr) && netErr.Timeout(), "connection was not closed")
			return
		}
	}
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}

// MakeRequest executes an HTTP request without following redirects.
func MakeRequest(t *testing.T, method, target string, body url.Values, cookies ...*http.Cookie) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequest(method, target, strings.NewReader(body.Encode()))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req, err = http.NewRequest(method, target, http.NoBody)
		require.NoError(t, err)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// Eventually polls cond until it holds or two seconds pass.
func Eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 10*time.Millisecond, msg)
}
