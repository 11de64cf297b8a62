package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/gochat-rooms/internal/chat"
	"github.com/Tyrowin/gochat-rooms/internal/testhelpers"
)

func TestHealthHandler_Reports_Active_Rooms(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, testConfig())
	env.registry.GetOrCreate("r1")

	resp := testhelpers.MakeRequest(t, http.MethodGet, env.url+"/health", nil)

	req.Equal(http.StatusOK, resp.StatusCode)
	req.Equal("text/plain", resp.Header.Get("Content-Type"))
	body, err := io.ReadAll(resp.Body)
	req.NoError(err)
	req.Equal("GoChat server is running! Active rooms: 1", string(body))
}

func TestRoomsHandler_Lists_Rooms(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, testConfig())
	testhelpers.ConnectWebSocket(t, env.url, "general", "alice")
	testhelpers.Eventually(t, func() bool { return env.registry.Len() == 1 }, "room was not created")

	resp := testhelpers.MakeRequest(t, http.MethodGet, env.url+"/api/rooms", nil)

	req.Equal(http.StatusOK, resp.StatusCode)
	var rooms []chat.RoomInfo
	req.NoError(json.NewDecoder(resp.Body).Decode(&rooms))
	req.Equal([]chat.RoomInfo{{Name: "general", Members: 1}}, rooms)
}

func TestLobbyHandler_Renders_Form(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, testConfig())

	resp := testhelpers.MakeRequest(t, http.MethodGet, env.url+"/", nil)

	req.Equal(http.StatusOK, resp.StatusCode)
	req.Equal("text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	body, err := io.ReadAll(resp.Body)
	req.NoError(err)
	req.Contains(string(body), `name="username"`)
	req.Contains(string(body), `name="room"`)
}

func TestJoinHandler_Sets_Cookie_And_Redirects(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, testConfig())

	resp := testhelpers.MakeRequest(t, http.MethodPost, env.url+"/", url.Values{
		"username": {"Ada Lovelace"},
		"room":     {"team a"},
	})

	req.Equal(http.StatusSeeOther, resp.StatusCode)
	req.Equal("/rooms/team%20a", resp.Header.Get("Location"))
	cookies := resp.Cookies()
	req.Len(cookies, 1)
	req.Equal(usernameCookie, cookies[0].Name)

	// The cookie identifies the user on the room page
	page := testhelpers.MakeRequest(t, http.MethodGet, env.url+"/rooms/team%20a", nil, cookies[0])
	req.Equal(http.StatusOK, page.StatusCode)
	body, err := io.ReadAll(page.Body)
	req.NoError(err)
	req.Contains(string(body), "Ada Lovelace")
}

func TestJoinHandler_Requires_Username_And_Room(t *testing.T) {
	env := newTestEnv(t, testConfig())

	tests := []struct {
		name string
		form url.Values
	}{
		{name: "no username", form: url.Values{"room": {"r1"}}},
		{name: "blank username", form: url.Values{"username": {"   "}, "room": {"r1"}}},
		{name: "no room", form: url.Values{"username": {"alice"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := testhelpers.MakeRequest(t, http.MethodPost, env.url+"/", tt.form)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			require.Empty(t, resp.Cookies())
		})
	}
}

func TestRoomPageHandler_Without_Username_Redirects_To_Lobby(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, testConfig())

	resp := testhelpers.MakeRequest(t, http.MethodGet, env.url+"/rooms/r1", nil)

	req.Equal(http.StatusSeeOther, resp.StatusCode)
	req.Equal("/", resp.Header.Get("Location"))
}

func TestWebSocketHandler_Without_Username_Redirects_To_Lobby(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, testConfig())

	resp := testhelpers.MakeRequest(t, http.MethodGet, env.url+"/ws/r1", nil)

	req.Equal(http.StatusSeeOther, resp.StatusCode)
	req.Equal("/", resp.Header.Get("Location"))
	req.Equal(0, env.registry.Len())
}

func TestWebSocketHandler_Rejects_Non_GET(t *testing.T) {
	env := newTestEnv(t, testConfig())

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
		t.Run(method, func(t *testing.T) {
			resp := testhelpers.MakeRequest(t, method, env.url+"/ws/r1?username=alice", nil)
			require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
		})
	}
}

func TestWebSocketHandler_Rejects_Overlong_Username(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, testConfig())
	long := make([]rune, chat.MaxNameLength+1)
	for i := range long {
		long[i] = 'x'
	}

	resp := testhelpers.MakeRequest(t, http.MethodGet, env.url+"/ws/r1?username="+url.QueryEscape(string(long)), nil)

	req.Equal(http.StatusBadRequest, resp.StatusCode)
	req.Equal(0, env.registry.Len())
}
