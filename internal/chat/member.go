package chat

// Member is one connection's presence in a room.
//
// Deliver must not block: implementations queue the frame and return
// ErrDelivery when they cannot. Evict asks the member to drop its connection;
// it may be called more than once.
type Member interface {
	ID() string
	DisplayName() string
	Deliver(payload []byte) error
	Evict(reason error)
}
