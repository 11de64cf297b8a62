// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, the lobby and the room page.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/gochat-rooms/internal/chat"
)

// Server holds the dependencies shared by every handler.
type Server struct {
	cfg      Config
	chat     *chat.Service
	log      *slog.Logger
	upgrader websocket.Upgrader
	conns    sync.WaitGroup
}

// New builds the HTTP layer on top of a chat service.
func New(cfg Config, svc *chat.Service, log *slog.Logger) *Server {
	cfg = sanitizeConfig(cfg)
	origins := newOriginPolicy(cfg.Origins(), log)
	return &Server{
		cfg:  cfg,
		chat: svc,
		log:  log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.check,
		},
	}
}

// WebSocketHandler upgrades GET /ws/{room} and runs the connection until it
// closes. The display name comes from the username query parameter or the
// lobby cookie; without one the request is sent back to the lobby.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	username := requestUsername(r)
	if username == "" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	roomName := r.PathValue("room")

	client := NewClient(username, r.RemoteAddr, s.cfg, s.log)
	session, err := s.chat.NewSession(roomName, username, client)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	client.attach(conn)

	s.conns.Add(1)
	defer s.conns.Done()

	go client.writePump()

	if err := session.Join(r.Context()); err != nil {
		s.log.Warn("Join failed", "room", roomName, "error", err)
		session.Close()
		client.shutdown()
		return
	}
	s.log.Info("Client joined", "room", roomName, "username", username, "remote", r.RemoteAddr)

	client.readPump(r.Context(), session)
	s.log.Info("Client left", "room", roomName, "username", username, "remote", r.RemoteAddr)
}

// Wait blocks until every WebSocket connection has finished or ctx is done.
func (s *Server) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for connections: %w", ctx.Err())
	}
}

// HealthHandler responds with a plain text status line.
func (s *Server) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "GoChat server is running! Active rooms: %d", s.chat.Registry().Len())
}

// RoomsHandler lists the live rooms and their member counts as JSON.
func (s *Server) RoomsHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.chat.Registry().Rooms()); err != nil {
		s.log.Warn("Error writing rooms response", "error", err)
	}
}

// LobbyHandler renders the form asking for a display name and a room.
func (s *Server) LobbyHandler(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, lobbyPage, lobbyData{
		Username: requestUsername(r),
		Rooms:    s.chat.Registry().Rooms(),
	})
}

// JoinHandler stores the chosen display name in a cookie and redirects to
// the room page.
func (s *Server) JoinHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	username := strings.TrimSpace(r.PostFormValue("username"))
	roomName := strings.TrimSpace(r.PostFormValue("room"))
	if username == "" || roomName == "" {
		s.render(w, http.StatusBadRequest, lobbyPage, lobbyData{
			Username: username,
			Rooms:    s.chat.Registry().Rooms(),
			Error:    "Both a username and a room are required.",
		})
		return
	}
	if len([]rune(username)) > chat.MaxNameLength || len([]rune(roomName)) > chat.MaxNameLength {
		http.Error(w, "username and room must be at most 100 characters", http.StatusBadRequest)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     usernameCookie,
		Value:    url.QueryEscape(username),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/rooms/"+url.PathEscape(roomName), http.StatusSeeOther)
}

// RoomPageHandler renders the chat page for one room.
func (s *Server) RoomPageHandler(w http.ResponseWriter, r *http.Request) {
	username := requestUsername(r)
	if username == "" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	roomName := r.PathValue("room")
	s.render(w, http.StatusOK, roomPage, roomData{
		Room:     roomName,
		Username: username,
		Socket:   "/ws/" + url.PathEscape(roomName) + "?username=" + url.QueryEscape(username),
	})
}

func (s *Server) render(w http.ResponseWriter, status int, page *template.Template, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := page.Execute(w, data); err != nil {
		s.log.Error("Error writing HTML response", "page", page.Name(), "error", err)
	}
}

// requestUsername reads the display name from the query string, falling back
// to the lobby cookie.
func requestUsername(r *http.Request) string {
	if name := strings.TrimSpace(r.URL.Query().Get("username")); name != "" {
		return name
	}
	cookie, err := r.Cookie(usernameCookie)
	if errors.Is(err, http.ErrNoCookie) || cookie == nil {
		return ""
	}
	name, err := url.QueryUnescape(cookie.Value)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(name)
}
