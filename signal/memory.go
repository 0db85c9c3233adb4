package signal

import "sync"

// memberBuffer bounds each member's undelivered signal backlog. The
// medium is best-effort, so overflow drops rather than blocks.
const memberBuffer = 256

// MemoryNetwork is an in-process signaling scope for tests. Every medium
// joined to the same network receives every other member's signals,
// bypassing sockets entirely. Mirrors the fan-out semantics of the UDP
// and hub media minus self-loopback.
type MemoryNetwork struct {
	mu      sync.Mutex
	members map[*MemoryMedium]bool
}

// NewMemoryNetwork creates an empty in-process signaling scope.
func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{
		members: make(map[*MemoryMedium]bool),
	}
}

// Join attaches a new medium to the network.
func (n *MemoryNetwork) Join() *MemoryMedium {
	medium := &MemoryMedium{
		network: n,
		signals: make(chan Signal, memberBuffer),
	}

	n.mu.Lock()
	n.members[medium] = true
	n.mu.Unlock()

	return medium
}

func (n *MemoryNetwork) broadcast(from *MemoryMedium, sig Signal) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for member := range n.members {
		if member == from {
			continue
		}
		select {
		case member.signals <- sig:
		default:
			// Member backlog full; best-effort medium drops.
		}
	}
}

func (n *MemoryNetwork) leave(medium *MemoryMedium) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.members[medium] {
		delete(n.members, medium)
		close(medium.signals)
	}
}

// MemoryMedium is one member's handle on a MemoryNetwork.
type MemoryMedium struct {
	network *MemoryNetwork
	signals chan Signal

	mu     sync.Mutex
	closed bool
}

// Publish fans the signal out to every other member. Signals round-trip
// through the wire encoding so that marshaling behavior matches the real
// media.
func (m *MemoryMedium) Publish(sig Signal) error {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return ErrMediumClosed
	}

	payload, err := Encode(sig)
	if err != nil {
		return err
	}
	decoded, err := Decode(payload)
	if err != nil {
		return err
	}

	m.network.broadcast(m, decoded)
	return nil
}

// Signals returns the channel of received signals.
func (m *MemoryMedium) Signals() <-chan Signal {
	return m.signals
}

// Close detaches from the network and closes the signal channel.
func (m *MemoryMedium) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.network.leave(m)
	return nil
}
