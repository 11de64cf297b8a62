package chat

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// RegistryConfig tunes the rooms a Registry creates.
type RegistryConfig struct {
	// BroadcastBuffer is the capacity of each room's broadcast queue.
	BroadcastBuffer int
	// EvictEmptyRooms removes a room once its last session releases it.
	// When false rooms live until Close.
	EvictEmptyRooms bool
	// Location renders display timestamps. Defaults to time.Local.
	Location *time.Location
}

// Registry maps room names to live rooms.
//
// GetOrCreate and Release serialize on one lock, so a room is never evicted
// between the moment a session obtains it and the moment it releases it.
type Registry struct {
	cfg RegistryConfig
	log *slog.Logger

	mu      sync.Mutex
	rooms   map[string]*Room
	created uint64
	closed  bool
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg RegistryConfig, log *slog.Logger) *Registry {
	if cfg.BroadcastBuffer <= 0 {
		cfg.BroadcastBuffer = 256
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Registry{
		cfg:   cfg,
		log:   log,
		rooms: make(map[string]*Room),
	}
}

// GetOrCreate returns the room called name, creating and starting it on first
// use. Every call takes a reference that must be given back with Release.
// After Close it returns a stopped room that evicts anyone who joins.
func (g *Registry) GetOrCreate(name string) *Room {
	g.mu.Lock()
	defer g.mu.Unlock()

	if room, ok := g.rooms[name]; ok {
		room.refs++
		return room
	}

	room := newRoom(name, g.cfg.BroadcastBuffer, g.cfg.Location, g.log)
	room.start()
	if g.closed {
		room.stop(ErrRoomClosed)
		return room
	}

	room.refs = 1
	g.rooms[name] = room
	g.created++
	g.log.Info("Room created", "room", name, "rooms", len(g.rooms))
	return room
}

// Release gives back a reference taken by GetOrCreate.
func (g *Registry) Release(room *Room) {
	if room == nil {
		return
	}

	g.mu.Lock()
	current, ok := g.rooms[room.name]
	if !ok || current != room {
		g.mu.Unlock()
		return
	}
	room.refs--
	if room.refs > 0 || !g.cfg.EvictEmptyRooms {
		g.mu.Unlock()
		return
	}
	delete(g.rooms, room.name)
	remaining := len(g.rooms)
	g.mu.Unlock()

	room.stop(ErrRoomClosed)
	g.log.Info("Room evicted", "room", room.name, "rooms", remaining)
}

// Len returns the number of live rooms.
func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}

// Created returns how many rooms were ever created.
func (g *Registry) Created() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.created
}

// RoomInfo summarizes a live room.
type RoomInfo struct {
	Name    string `json:"name"`
	Members int    `json:"members"`
}

// Rooms lists live rooms sorted by name.
func (g *Registry) Rooms() []RoomInfo {
	g.mu.Lock()
	rooms := make([]*Room, 0, len(g.rooms))
	for _, room := range g.rooms {
		rooms = append(rooms, room)
	}
	g.mu.Unlock()

	infos := make([]RoomInfo, 0, len(rooms))
	for _, room := range rooms {
		infos = append(infos, RoomInfo{Name: room.name, Members: room.Len()})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Close stops every room and evicts their members.
func (g *Registry) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	rooms := make([]*Room, 0, len(g.rooms))
	for _, room := range g.rooms {
		rooms = append(rooms, room)
	}
	g.rooms = make(map[string]*Room)
	g.mu.Unlock()

	for _, room := range rooms {
		room.stop(ErrRoomClosed)
	}
	g.log.Info("Registry closed", "rooms", len(rooms))
}
