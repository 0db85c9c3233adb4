package mesh

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"

	"canvasmesh/identity"
	"canvasmesh/signal"
)

// channelLabel is the single ordered, reliable data channel per peer
// pair that carries all application traffic.
const channelLabel = "canvas"

// handleSignal is the entry point for everything that arrives on the
// signaling medium. Self-originated signals are ignored (multicast loops
// beacons back to the sender), and addressed signals whose to field does
// not name this peer are dropped without side effects. That addressing
// filter is what makes a physically broadcast medium behave like
// point-to-point signaling.
func (s *Session) handleSignal(sig signal.Signal) {
	if sig.From == s.identity.ID {
		return
	}

	switch sig.Kind {
	case signal.KindPresence:
		s.handlePresence(sig)
	case signal.KindOffer:
		if sig.To == s.identity.ID {
			s.handleOffer(sig)
		}
	case signal.KindAnswer:
		if sig.To == s.identity.ID {
			s.handleAnswer(sig)
		}
	case signal.KindICE:
		if sig.To == s.identity.ID {
			s.handleCandidate(sig)
		}
	}
}

// handlePresence refreshes the peer's presence projection and, for an
// unknown identity, applies the tie-break: only the side whose own ID is
// the greater one initiates, so each unordered pair negotiates exactly
// one connection no matter how the beacons interleave. The lesser side
// simply waits for the greater side's offer.
func (s *Session) handlePresence(sig signal.Signal) {
	s.registry.upsertPresenceIdentity(sig.From, sig.Name, sig.Color)

	if s.registry.contains(sig.From) {
		return
	}
	if !s.identity.InitiatesTo(sig.From) {
		return
	}

	s.initiate(identity.Identity{ID: sig.From, Name: sig.Name, Color: sig.Color})
}

// initiate runs the initiator path: create the endpoint, open the data
// channel, and send an addressed offer over the medium. Candidates
// trickle separately as the transport discovers them.
func (s *Session) initiate(peer identity.Identity) {
	pc, err := s.newPeerConnection()
	if err != nil {
		s.logger.Error("creating peer connection failed", "peer", peer.ID, "error", err)
		return
	}

	record := &PeerRecord{
		Identity: peer,
		Role:     RoleInitiator,
		State:    StateNegotiating,
		pc:       pc,
	}
	if err := s.registry.insert(record); err != nil {
		// A record appeared between the presence check and now; this
		// attempt is redundant.
		pc.Close()
		return
	}

	s.wireConnection(peer.ID, pc)

	ordered := true
	channel, err := pc.CreateDataChannel(channelLabel, &webrtc.DataChannelInit{
		Ordered: &ordered,
	})
	if err != nil {
		s.abandon(peer.ID, "creating data channel", err)
		return
	}
	s.bindChannel(peer.ID, channel)

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		s.abandon(peer.ID, "creating offer", err)
		return
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		s.abandon(peer.ID, "setting local description", err)
		return
	}

	err = s.medium.Publish(signal.Signal{
		Kind: signal.KindOffer,
		From: s.identity.ID,
		To:   peer.ID,
		SDP:  offer.SDP,
	})
	if err != nil {
		s.abandon(peer.ID, "publishing offer", err)
		return
	}

	s.logger.Info("negotiation started", "peer", peer.ID, "role", RoleInitiator)
}

// handleOffer runs the responder path: create the endpoint, adopt the
// remote side's data channel when it opens, and answer.
func (s *Session) handleOffer(sig signal.Signal) {
	if s.registry.contains(sig.From) {
		// The tie-break means the offerer is the canonical initiator for
		// this pair; an offer while a record exists is a stale replay.
		s.logger.Debug("ignoring offer for known peer", "peer", sig.From)
		return
	}

	pc, err := s.newPeerConnection()
	if err != nil {
		s.logger.Error("creating peer connection failed", "peer", sig.From, "error", err)
		return
	}

	peer := identity.Identity{ID: sig.From, Name: sig.Name, Color: sig.Color}
	if presence, ok := s.registry.presence(sig.From); ok {
		peer.Name = presence.Name
		peer.Color = presence.Color
	}

	record := &PeerRecord{
		Identity: peer,
		Role:     RoleResponder,
		State:    StateNegotiating,
		pc:       pc,
	}
	if err := s.registry.insert(record); err != nil {
		pc.Close()
		return
	}

	s.wireConnection(sig.From, pc)
	pc.OnDataChannel(func(channel *webrtc.DataChannel) {
		s.bindChannel(sig.From, channel)
	})

	remote := webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  sig.SDP,
	}
	if err := pc.SetRemoteDescription(remote); err != nil {
		s.abandon(sig.From, "setting remote offer", err)
		return
	}
	s.flushPendingCandidates(sig.From)

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		s.abandon(sig.From, "creating answer", err)
		return
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		s.abandon(sig.From, "setting local description", err)
		return
	}

	err = s.medium.Publish(signal.Signal{
		Kind: signal.KindAnswer,
		From: s.identity.ID,
		To:   sig.From,
		SDP:  answer.SDP,
	})
	if err != nil {
		s.abandon(sig.From, "publishing answer", err)
		return
	}

	s.logger.Info("negotiation started", "peer", sig.From, "role", RoleResponder)
}

// handleAnswer completes the initiator's half of signaling.
func (s *Session) handleAnswer(sig signal.Signal) {
	pc, ok := s.registry.peerConnection(sig.From)
	if !ok {
		s.logger.Debug("ignoring answer for unknown peer", "peer", sig.From)
		return
	}

	remote := webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  sig.SDP,
	}
	if err := pc.SetRemoteDescription(remote); err != nil {
		s.abandon(sig.From, "setting remote answer", err)
		return
	}
	s.flushPendingCandidates(sig.From)
}

// handleCandidate feeds one trickled remote candidate into the peer's
// transport. Candidates may arrive before the answer; those are parked
// by the registry and flushed once the remote description is applied.
func (s *Session) handleCandidate(sig signal.Signal) {
	var candidate webrtc.ICECandidateInit
	if err := json.Unmarshal([]byte(sig.Candidate), &candidate); err != nil {
		s.logger.Warn("dropping malformed ice candidate", "peer", sig.From, "error", err)
		return
	}

	pc, known := s.registry.deliverCandidate(sig.From, candidate)
	if !known {
		s.logger.Debug("ignoring candidate for unknown peer", "peer", sig.From)
		return
	}
	if pc == nil {
		return // parked until the remote description lands
	}

	if err := pc.AddICECandidate(candidate); err != nil {
		s.abandon(sig.From, "adding ice candidate", err)
	}
}

// flushPendingCandidates applies candidates that arrived ahead of the
// remote description.
func (s *Session) flushPendingCandidates(peerID string) {
	pc, pending := s.registry.markRemoteDescribed(peerID)
	if pc == nil {
		return
	}
	for _, candidate := range pending {
		if err := pc.AddICECandidate(candidate); err != nil {
			s.abandon(peerID, "adding buffered ice candidate", err)
			return
		}
	}
}

// wireConnection installs the transport callbacks shared by both roles:
// trickled local candidates go out addressed to the peer, and transport
// state transitions drive the record's final states.
func (s *Session) wireConnection(peerID string, pc *webrtc.PeerConnection) {
	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return // gathering finished
		}

		encoded, err := json.Marshal(candidate.ToJSON())
		if err != nil {
			s.logger.Error("encoding ice candidate failed", "peer", peerID, "error", err)
			return
		}

		err = s.medium.Publish(signal.Signal{
			Kind:      signal.KindICE,
			From:      s.identity.ID,
			To:        peerID,
			Candidate: string(encoded),
		})
		if err != nil {
			s.logger.Warn("publishing ice candidate failed", "peer", peerID, "error", err)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateDisconnected,
			webrtc.PeerConnectionStateClosed:
			// One uniform "peer gone" path regardless of cause or which
			// side noticed first.
			s.removePeer(peerID, "transport "+state.String())
		}
	})
}

// bindChannel attaches the pair's data channel to the record. Channel
// open is the moment the record becomes connected and reconciliation
// starts; application traffic only ever flows after this.
func (s *Session) bindChannel(peerID string, channel *webrtc.DataChannel) {
	s.registry.setChannel(peerID, channel)

	channel.OnOpen(func() {
		if !s.registry.markConnected(peerID) {
			return
		}
		s.logger.Info("peer connected", "peer", peerID)
		s.emit(Event{Type: EventPeerConnected, PeerID: peerID})
		s.sendSyncRequest(peerID)
	})

	channel.OnMessage(func(message webrtc.DataChannelMessage) {
		s.handleChannelMessage(peerID, message.Data)
	})

	channel.OnClose(func() {
		s.removePeer(peerID, "data channel closed")
	})
}

// abandon drops a failed negotiation attempt: log, remove the partial
// record, close the endpoint. There is no retry; the peer's next
// presence beacon re-triggers the tie-break if it is still reachable.
func (s *Session) abandon(peerID, stage string, err error) {
	s.logger.Warn("negotiation abandoned",
		"peer", peerID,
		"stage", stage,
		"error", err,
	)
	s.removePeer(peerID, "negotiation failed")
}

// removePeer removes the peer's record and presence and closes its
// transport. Safe to call from transport callbacks and redundantly from
// both the local and remote failure paths; only the first call for a
// live record does anything.
func (s *Session) removePeer(peerID, reason string) {
	record, existed := s.registry.remove(peerID)
	if !existed {
		return
	}

	closeRecord(record)
	s.logger.Info("peer removed", "peer", peerID, "reason", reason)
	s.emit(Event{Type: EventPeerLeft, PeerID: peerID})
}

// closeRecord closes a detached record's transport resources.
func closeRecord(record *PeerRecord) {
	if record.channel != nil {
		record.channel.Close()
	}
	if record.pc != nil {
		record.pc.Close()
	}
}

// newPeerConnection creates a transport endpoint. Loopback candidates
// are enabled so same-machine peers (and tests) connect without any
// routable interface.
func (s *Session) newPeerConnection() (*webrtc.PeerConnection, error) {
	settingEngine := webrtc.SettingEngine{}
	settingEngine.SetIncludeLoopbackCandidate(true)

	api := webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine))
	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers: s.iceServers,
	})
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	return pc, nil
}
