package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Tyrowin/gochat-rooms/internal/store"
)

// Room holds the members connected to one named room and fans posted
// messages out to them.
//
// A single goroutine drains the broadcast queue, so every member observes
// messages in the order Broadcast was called. Delivery happens outside the
// member lock and never blocks on a member.
type Room struct {
	name     string
	log      *slog.Logger
	location *time.Location

	mu      sync.RWMutex
	members map[string]Member
	stopped bool

	queue  chan store.Message
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// guarded by the owning Registry's lock
	refs int
}

func newRoom(name string, queueSize int, location *time.Location, log *slog.Logger) *Room {
	ctx, cancel := context.WithCancel(context.Background())
	return &Room{
		name:     name,
		log:      log.With("room", name),
		location: location,
		members:  make(map[string]Member),
		queue:    make(chan store.Message, queueSize),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Name returns the room name.
func (r *Room) Name() string {
	return r.name
}

// Location returns the time zone used for display timestamps.
func (r *Room) Location() *time.Location {
	return r.location
}

// Join adds member to the room. Joining a stopped room evicts the member.
func (r *Room) Join(member Member) {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		member.Evict(ErrRoomClosed)
		return
	}
	r.members[member.ID()] = member
	count := len(r.members)
	r.mu.Unlock()

	r.log.Info("Member joined", "member", member.ID(), "name", member.DisplayName(), "members", count)
}

// Leave removes member. Leaving twice, or without joining, is a no-op.
func (r *Room) Leave(member Member) {
	r.mu.Lock()
	current, ok := r.members[member.ID()]
	if !ok || current != member {
		r.mu.Unlock()
		return
	}
	delete(r.members, member.ID())
	count := len(r.members)
	r.mu.Unlock()

	r.log.Info("Member left", "member", member.ID(), "members", count)
}

// Len returns the number of joined members.
func (r *Room) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Broadcast queues msg for every member, the sender included. It returns
// without waiting for delivery; messages posted to a stopped room are dropped.
func (r *Room) Broadcast(msg store.Message) {
	select {
	case r.queue <- msg:
	case <-r.ctx.Done():
		r.log.Warn("Dropping message for stopped room", "id", msg.ID)
	}
}

func (r *Room) run() {
	defer close(r.done)

	for {
		select {
		case <-r.ctx.Done():
			return
		case msg := <-r.queue:
			r.fanout(msg)
		}
	}
}

func (r *Room) fanout(msg store.Message) {
	payload, err := EncodeLive(msg, r.location)
	if err != nil {
		r.log.Error("Failed to encode broadcast", "id", msg.ID, "error", err)
		return
	}

	members := r.snapshot()
	r.log.Debug("Broadcasting message", "id", msg.ID, "members", len(members))

	for _, member := range members {
		if err := member.Deliver(payload); err != nil {
			r.drop(member, err)
		}
	}
}

// snapshot copies the member set so delivery runs without the lock.
func (r *Room) snapshot() []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make([]Member, 0, len(r.members))
	for _, member := range r.members {
		members = append(members, member)
	}
	return members
}

// drop removes a member that failed a delivery and evicts it.
func (r *Room) drop(member Member, err error) {
	if !errors.Is(err, ErrDelivery) {
		err = errors.Join(ErrDelivery, err)
	}

	r.mu.Lock()
	current, ok := r.members[member.ID()]
	if ok && current == member {
		delete(r.members, member.ID())
	}
	r.mu.Unlock()

	if ok {
		r.log.Warn("Member removed after failed delivery", "member", member.ID(), "error", err)
		member.Evict(err)
	}
}

func (r *Room) start() {
	go r.run()
}

// stop ends the sequencer and evicts remaining members with reason.
func (r *Room) stop(reason error) {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	members := make([]Member, 0, len(r.members))
	for _, member := range r.members {
		members = append(members, member)
	}
	r.members = make(map[string]Member)
	r.mu.Unlock()

	r.cancel()
	<-r.done

	for _, member := range members {
		member.Evict(reason)
	}
	r.log.Debug("Room stopped", "evicted", len(members))
}
