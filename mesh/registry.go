package mesh

import (
	"errors"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"canvasmesh/identity"
)

// ErrPeerExists indicates an insert for an identity that already has a
// record.
var ErrPeerExists = errors.New("mesh: peer record already exists")

// Role marks which side of the negotiation this peer record plays.
type Role string

const (
	RoleInitiator Role = "initiator"
	RoleResponder Role = "responder"
)

// NegotiationState is the lifecycle state of one peer record. Transitions
// are monotonic within a connection attempt: negotiating may become
// connected, and a connected record only ever leaves the registry; it
// never returns to negotiating.
type NegotiationState string

const (
	StateNegotiating NegotiationState = "negotiating"
	StateConnected   NegotiationState = "connected"
)

// PeerRecord tracks one remote peer's connection lifecycle. Records are
// owned exclusively by the Registry: other components act on them only
// through registry operations keyed by peer ID and never hold a record
// past a single call, so nothing can act on a stale, removed peer.
type PeerRecord struct {
	Identity identity.Identity
	Role     Role
	State    NegotiationState

	pc      *webrtc.PeerConnection
	channel *webrtc.DataChannel

	// remoteDescribed flips once the remote session description has been
	// applied; ICE candidates that arrive before that are parked in
	// pending and flushed afterward, so candidate/answer arrival order
	// does not matter.
	remoteDescribed bool
	pending         []webrtc.ICECandidateInit
}

// PeerSnapshot is an immutable view of one record, taken under the
// registry lock. Broadcast operations iterate snapshots so that a
// registry mutated by a concurrent transport callback can never tear
// mid-iteration.
type PeerSnapshot struct {
	Identity identity.Identity
	Role     Role
	State    NegotiationState

	channel *webrtc.DataChannel
}

// RemotePresence is the UI-facing projection of one live peer: display
// identity plus last-known pointer state. It is distinct from PeerRecord
// because presence data arrives asynchronously and must survive a brief
// renegotiation; the record is connection lifecycle, the presence is
// application state.
type RemotePresence struct {
	PeerID   string
	Name     string
	Color    string
	X, Y     float64
	Active   bool
	LastSeen time.Time
}

// Registry is the authoritative set of known peers and their negotiation
// state, plus the RemotePresence projection. It is the single mutable
// shared structure of the collaboration layer; every mutation funnels
// through its methods and every iteration uses a copy-on-read snapshot.
type Registry struct {
	mu        sync.RWMutex
	peers     map[string]*PeerRecord
	presences map[string]*RemotePresence
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		peers:     make(map[string]*PeerRecord),
		presences: make(map[string]*RemotePresence),
	}
}

// insert adds a record for a new peer identity. At most one record may
// exist per identity; a second insert reports ErrPeerExists so the two
// racing paths (presence-triggered initiate, inbound offer) cannot
// produce duplicate connections.
func (r *Registry) insert(record *PeerRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.peers[record.Identity.ID]; exists {
		return ErrPeerExists
	}
	r.peers[record.Identity.ID] = record
	return nil
}

// contains reports whether a record exists for the peer.
func (r *Registry) contains(peerID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.peers[peerID]
	return exists
}

// remove detaches the peer's record and presence and returns the record
// for teardown. The caller closes the record's transport immediately
// after; from any other caller's point of view removal and teardown are
// one operation, because the record is unreachable the moment this
// returns. Closing outside the lock keeps transport close callbacks
// (which reenter the registry) from deadlocking.
func (r *Registry) remove(peerID string) (*PeerRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, exists := r.peers[peerID]
	if !exists {
		return nil, false
	}
	delete(r.peers, peerID)
	delete(r.presences, peerID)
	return record, true
}

// removeAll detaches every record for session teardown.
func (r *Registry) removeAll() []*PeerRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	records := make([]*PeerRecord, 0, len(r.peers))
	for id, record := range r.peers {
		records = append(records, record)
		delete(r.peers, id)
		delete(r.presences, id)
	}
	return records
}

// setChannel attaches the data channel to the peer's record.
func (r *Registry) setChannel(peerID string, channel *webrtc.DataChannel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if record, exists := r.peers[peerID]; exists {
		record.channel = channel
	}
}

// markConnected transitions negotiating → connected. It reports false if
// the record is gone or already connected, keeping the state monotonic.
func (r *Registry) markConnected(peerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, exists := r.peers[peerID]
	if !exists || record.State != StateNegotiating {
		return false
	}
	record.State = StateConnected
	return true
}

// peerConnection returns the peer's transport endpoint.
func (r *Registry) peerConnection(peerID string) (*webrtc.PeerConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, exists := r.peers[peerID]
	if !exists {
		return nil, false
	}
	return record.pc, true
}

// deliverCandidate routes one remote ICE candidate. If the remote
// description is not applied yet the candidate is parked on the record
// and a nil connection is returned; otherwise the caller feeds it to the
// returned connection. The second result is false when no record exists.
func (r *Registry) deliverCandidate(peerID string, candidate webrtc.ICECandidateInit) (*webrtc.PeerConnection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, exists := r.peers[peerID]
	if !exists {
		return nil, false
	}
	if !record.remoteDescribed {
		record.pending = append(record.pending, candidate)
		return nil, true
	}
	return record.pc, true
}

// markRemoteDescribed records that the remote description is applied and
// hands back any parked candidates for the caller to flush.
func (r *Registry) markRemoteDescribed(peerID string) (*webrtc.PeerConnection, []webrtc.ICECandidateInit) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, exists := r.peers[peerID]
	if !exists {
		return nil, nil
	}
	record.remoteDescribed = true
	pending := record.pending
	record.pending = nil
	return record.pc, pending
}

// Snapshot returns a stable copy of all records for iteration.
func (r *Registry) Snapshot() []PeerSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshots := make([]PeerSnapshot, 0, len(r.peers))
	for _, record := range r.peers {
		snapshots = append(snapshots, PeerSnapshot{
			Identity: record.Identity,
			Role:     record.Role,
			State:    record.State,
			channel:  record.channel,
		})
	}
	return snapshots
}

// ConnectedCount returns the number of peers with an open connection.
func (r *Registry) ConnectedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, record := range r.peers {
		if record.State == StateConnected {
			count++
		}
	}
	return count
}

// upsertPresenceIdentity refreshes a peer's display identity and
// last-seen time from a presence beacon.
func (r *Registry) upsertPresenceIdentity(peerID, name, color string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	presence, exists := r.presences[peerID]
	if !exists {
		presence = &RemotePresence{PeerID: peerID}
		r.presences[peerID] = presence
	}
	presence.Name = name
	presence.Color = color
	presence.LastSeen = time.Now()
}

// updateCursor refreshes a peer's pointer state from a cursor message.
// Cursor traffic only flows over a live data channel, so an update for a
// peer with no record is a teardown straggler; applying it would
// resurrect a presence entry that remove just deleted. It reports
// whether the update was applied.
func (r *Registry) updateCursor(peerID string, x, y float64, active bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.peers[peerID]; !exists {
		return false
	}

	presence, exists := r.presences[peerID]
	if !exists {
		presence = &RemotePresence{PeerID: peerID}
		r.presences[peerID] = presence
	}
	presence.X = x
	presence.Y = y
	presence.Active = active
	presence.LastSeen = time.Now()
	return true
}

// Presences returns a copy of the RemotePresence projection.
func (r *Registry) Presences() []RemotePresence {
	r.mu.RLock()
	defer r.mu.RUnlock()

	presences := make([]RemotePresence, 0, len(r.presences))
	for _, presence := range r.presences {
		presences = append(presences, *presence)
	}
	return presences
}

// presence returns one peer's presence, if known.
func (r *Registry) presence(peerID string) (RemotePresence, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	presence, exists := r.presences[peerID]
	if !exists {
		return RemotePresence{}, false
	}
	return *presence, true
}
