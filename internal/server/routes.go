// Package server wires HTTP handlers into a ServeMux for the GoChat
// application via routing helpers.
package server

import "net/http"

// SetupRoutes configures and returns an HTTP ServeMux with all application routes.
func (s *Server) SetupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.LobbyHandler)
	mux.HandleFunc("POST /{$}", s.JoinHandler)
	mux.HandleFunc("GET /rooms/{room}", s.RoomPageHandler)
	mux.HandleFunc("/ws/{room}", s.WebSocketHandler)
	mux.HandleFunc("GET /health", s.HealthHandler)
	mux.HandleFunc("GET /api/rooms", s.RoomsHandler)
	return mux
}
