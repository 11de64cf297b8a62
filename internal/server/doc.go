// Package server is the HTTP and WebSocket transport of GoChat.
//
// Each WebSocket connection becomes a Client, the chat.Member its room
// delivers to, paired with a chat.Session that handles inbound events.
// The package also serves the lobby where a display name is chosen, the
// room page, and a health endpoint.
package server
