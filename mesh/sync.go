package mesh

import "canvasmesh/document"

// Reconciliation runs exactly once per newly opened connection,
// symmetrically on both sides: each side advertises its item count, and
// only a side holding strictly more items pushes its full set. The
// receiver merges by identifier, append-only. Ties push nothing, on the
// assumption that equal counts mean equivalent content; two peers with
// equal counts but different items will not reconcile. DESIGN.md records
// why that blind spot stays: closing it needs content hashes or an
// unconditional union, and both change the wire protocol.

// sendSyncRequest advertises the local item count to a newly connected
// peer.
func (s *Session) sendSyncRequest(peerID string) {
	s.sendTo(peerID, SyncRequestMessage{
		Type:      TypeSyncRequest,
		ItemCount: s.model.ItemCount(),
	})
}

// handleSyncRequest answers a peer's count advertisement. Only the side
// with strictly more items responds; the side with fewer or equal items
// stays silent, so a pair never double-transfers and two empty peers
// exchange nothing.
func (s *Session) handleSyncRequest(peerID string, message SyncRequestMessage) {
	items := s.model.Items()
	if len(items) <= message.ItemCount {
		return
	}

	s.logger.Info("pushing document state",
		"peer", peerID,
		"local_items", len(items),
		"remote_items", message.ItemCount,
	)
	s.sendTo(peerID, SyncResponseMessage{
		Type:  TypeSyncResponse,
		Items: items,
	})
}

// handleSyncResponse merges a peer's pushed item set into the local
// document.
func (s *Session) handleSyncResponse(peerID string, message SyncResponseMessage) {
	merged := mergeIncoming(s.model, message.Items)
	s.logger.Info("document state merged",
		"peer", peerID,
		"received", len(message.Items),
		"merged", merged,
	)
	s.emit(Event{Type: EventSynced, PeerID: peerID, Merged: merged})
}

// mergeIncoming appends the incoming items whose identifiers are not
// already present, preserving their arrival order. Append-only set union
// keyed by identifier: no removal, no reordering, no rollback. Merging
// the same batch twice is a no-op.
func mergeIncoming(model document.Model, incoming []document.Item) int {
	held := make(map[string]bool)
	for _, item := range model.Items() {
		held[item.ID] = true
	}

	fresh := make([]document.Item, 0, len(incoming))
	for _, item := range incoming {
		if held[item.ID] {
			continue
		}
		held[item.ID] = true
		fresh = append(fresh, item)
	}

	if len(fresh) > 0 {
		model.ApplyIncomingSync(fresh)
	}
	return len(fresh)
}
