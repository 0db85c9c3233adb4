// Package mesh implements the collaboration layer for a shared LAN
// canvas: peer discovery over a broadcast signaling medium, a per-peer
// WebRTC negotiation state machine, the authoritative peer registry, the
// application message protocol carried over open data channels, and the
// one-shot document reconciliation that runs when two peers connect.
//
// A [Session] joins one signaling scope and maintains a full mesh: every
// pair of live participants ends up with exactly one direct data channel,
// chosen by a deterministic identity tie-break so that both sides of a
// pair never negotiate against each other.
package mesh

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"canvasmesh/document"
	"canvasmesh/identity"
	"canvasmesh/signal"
)

// DefaultPresenceInterval is how often a session re-announces itself.
// Late joiners discover existing peers from these beacons, so no join
// history is kept anywhere.
const DefaultPresenceInterval = 5 * time.Second

// eventBuffer bounds the undelivered session event backlog.
const eventBuffer = 128

// EventType identifies session updates delivered to the application.
type EventType string

const (
	// EventPeerConnected fires when a peer's data channel opens.
	EventPeerConnected EventType = "peer_connected"
	// EventPeerLeft fires when a peer's record is removed.
	EventPeerLeft EventType = "peer_left"
	// EventDraw fires after a remote item was applied to the document.
	EventDraw EventType = "draw"
	// EventClear fires after a remote clear was applied.
	EventClear EventType = "clear"
	// EventCursor fires on a remote pointer update.
	EventCursor EventType = "cursor"
	// EventSynced fires after reconciliation merged remote items.
	EventSynced EventType = "synced"
)

// Event carries one session update for UI consumers.
type Event struct {
	Type   EventType
	PeerID string

	// Item is set for EventDraw.
	Item document.Item
	// Presence is set for EventCursor.
	Presence RemotePresence
	// Merged is the number of items added, set for EventSynced.
	Merged int
}

// Options configures a session.
type Options struct {
	// Identity is the session identity. A zero value generates one.
	Identity identity.Identity

	// Medium is the shared signaling channel. Required. The session
	// takes ownership and closes it on Close.
	Medium signal.Medium

	// Model is the document-model collaborator. Required.
	Model document.Model

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// PresenceInterval defaults to DefaultPresenceInterval.
	PresenceInterval time.Duration

	// ICEServers optionally adds STUN/TURN servers. Host candidates
	// alone cover the LAN case.
	ICEServers []webrtc.ICEServer
}

// Session is one participant's handle on the collaboration layer.
type Session struct {
	identity identity.Identity
	medium   signal.Medium
	model    document.Model
	logger   *slog.Logger
	registry *Registry

	presenceInterval time.Duration
	iceServers       []webrtc.ICEServer

	events chan Event

	wg        sync.WaitGroup
	closeOnce sync.Once
	closed    chan struct{}
}

// Join enters the signaling scope: it starts the presence beacon and the
// signal dispatch loop, after which connections form as peers discover
// each other.
func Join(options Options) (*Session, error) {
	if options.Medium == nil {
		return nil, errors.New("mesh: options.Medium is required")
	}
	if options.Model == nil {
		return nil, errors.New("mesh: options.Model is required")
	}

	self := options.Identity
	if self.ID == "" {
		self = identity.New()
	}

	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	interval := options.PresenceInterval
	if interval <= 0 {
		interval = DefaultPresenceInterval
	}

	session := &Session{
		identity:         self,
		medium:           options.Medium,
		model:            options.Model,
		logger:           logger.With("self", self.ID),
		registry:         NewRegistry(),
		presenceInterval: interval,
		iceServers:       options.ICEServers,
		events:           make(chan Event, eventBuffer),
		closed:           make(chan struct{}),
	}

	session.wg.Add(2)
	go session.presenceLoop()
	go session.signalLoop()

	go func() {
		session.wg.Wait()
		close(session.events)
	}()

	return session, nil
}

// Identity returns the session's own identity.
func (s *Session) Identity() identity.Identity {
	return s.identity
}

// Events returns the channel of session updates. Best-effort: events are
// dropped when the consumer falls behind. Closed after Close.
func (s *Session) Events() <-chan Event {
	return s.events
}

// ConnectedPeers returns the number of peers with an open connection.
func (s *Session) ConnectedPeers() int {
	return s.registry.ConnectedCount()
}

// Presences returns the RemotePresence projection for UI rendering.
func (s *Session) Presences() []RemotePresence {
	return s.registry.Presences()
}

// Close tears down the session: it closes the signaling medium and every
// peer transport. Closing is the only cancellation path; negotiation has
// no per-operation timeouts.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.medium.Close()

		for _, record := range s.registry.removeAll() {
			closeRecord(record)
		}
	})
	return nil
}

func (s *Session) presenceLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.presenceInterval)
	defer ticker.Stop()

	s.announce()
	for {
		select {
		case <-s.closed:
			return
		case <-ticker.C:
			s.announce()
		}
	}
}

// announce broadcasts one presence beacon. Beacons are idempotent and
// repeated, so a lost one just delays discovery by an interval.
func (s *Session) announce() {
	err := s.medium.Publish(signal.Signal{
		Kind:  signal.KindPresence,
		From:  s.identity.ID,
		Name:  s.identity.Name,
		Color: s.identity.Color,
	})
	if err != nil && !errors.Is(err, signal.ErrMediumClosed) {
		s.logger.Warn("presence announce failed", "error", err)
	}
}

func (s *Session) signalLoop() {
	defer s.wg.Done()

	for sig := range s.medium.Signals() {
		s.handleSignal(sig)
	}

	// The medium is gone; tear down every open transport with it.
	s.Close()
}

// emit delivers one event, dropping when the consumer lags.
func (s *Session) emit(event Event) {
	select {
	case s.events <- event:
	default:
	}
}

// BroadcastCursor sends the local pointer position to every connected
// peer.
func (s *Session) BroadcastCursor(x, y float64, active bool) {
	s.broadcast(CursorMessage{Type: TypeCursor, X: x, Y: y, Active: active})
}

// BroadcastDraw sends one new document item to every connected peer.
func (s *Session) BroadcastDraw(item document.Item) {
	s.broadcast(DrawMessage{Type: TypeDraw, Item: item})
}

// BroadcastClear tells every connected peer to clear the document.
func (s *Session) BroadcastClear() {
	s.broadcast(ClearMessage{Type: TypeClear})
}

// broadcast sends one message to every peer whose record is connected
// and whose channel is open; peers mid-negotiation or mid-teardown are
// silently skipped. Best-effort: no acknowledgment, no retry, and no
// ordering guarantee across different peers.
func (s *Session) broadcast(message any) {
	payload, err := encodeMessage(message)
	if err != nil {
		s.logger.Error("broadcast encode failed", "error", err)
		return
	}

	for _, peer := range s.registry.Snapshot() {
		if peer.State != StateConnected || peer.channel == nil {
			continue
		}
		if peer.channel.ReadyState() != webrtc.DataChannelStateOpen {
			continue
		}
		if err := peer.channel.SendText(string(payload)); err != nil {
			s.logger.Debug("broadcast send failed",
				"peer", peer.Identity.ID,
				"error", err,
			)
		}
	}
}

// sendTo sends one message to a single peer's channel.
func (s *Session) sendTo(peerID string, message any) {
	payload, err := encodeMessage(message)
	if err != nil {
		s.logger.Error("send encode failed", "peer", peerID, "error", err)
		return
	}

	for _, peer := range s.registry.Snapshot() {
		if peer.Identity.ID != peerID || peer.channel == nil {
			continue
		}
		if peer.channel.ReadyState() != webrtc.DataChannelStateOpen {
			continue
		}
		if err := peer.channel.SendText(string(payload)); err != nil {
			s.logger.Debug("send failed", "peer", peerID, "error", err)
		}
		return
	}
}

// handleChannelMessage dispatches one application message received from
// a peer. Malformed payloads are logged and dropped; they never close
// the connection or escape the dispatch loop.
func (s *Session) handleChannelMessage(peerID string, payload []byte) {
	kind, err := decodeMessageType(payload)
	if err != nil {
		s.logger.Warn("dropping malformed channel message",
			"peer", peerID,
			"error", err,
		)
		return
	}

	switch kind {
	case TypeCursor:
		var message CursorMessage
		if err := unmarshalChannel(payload, &message); err != nil {
			s.logger.Warn("dropping malformed cursor", "peer", peerID, "error", err)
			return
		}
		if !s.registry.updateCursor(peerID, message.X, message.Y, message.Active) {
			return
		}
		if presence, ok := s.registry.presence(peerID); ok {
			s.emit(Event{Type: EventCursor, PeerID: peerID, Presence: presence})
		}

	case TypeDraw:
		var message DrawMessage
		if err := unmarshalChannel(payload, &message); err != nil {
			s.logger.Warn("dropping malformed draw", "peer", peerID, "error", err)
			return
		}
		s.model.ApplyRemoteDraw(message.Item)
		s.emit(Event{Type: EventDraw, PeerID: peerID, Item: message.Item})

	case TypeClear:
		s.model.ApplyRemoteClear()
		s.emit(Event{Type: EventClear, PeerID: peerID})

	case TypeSyncRequest:
		var message SyncRequestMessage
		if err := unmarshalChannel(payload, &message); err != nil {
			s.logger.Warn("dropping malformed sync request", "peer", peerID, "error", err)
			return
		}
		s.handleSyncRequest(peerID, message)

	case TypeSyncResponse:
		var message SyncResponseMessage
		if err := unmarshalChannel(payload, &message); err != nil {
			s.logger.Warn("dropping malformed sync response", "peer", peerID, "error", err)
			return
		}
		s.handleSyncResponse(peerID, message)
	}
}
