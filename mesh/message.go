package mesh

import (
	"encoding/json"
	"errors"
	"fmt"

	"canvasmesh/document"
)

// Application message kinds carried over an open peer channel. The wire
// format is tagged JSON text: a type discriminator plus kind-specific
// fields, camelCase to stay compatible with browser peers.
const (
	TypeCursor       = "cursor"
	TypeDraw         = "draw"
	TypeClear        = "clear"
	TypeSyncRequest  = "sync-request"
	TypeSyncResponse = "sync-response"
)

// ErrInvalidMessageType indicates a payload whose type field is missing
// or unknown.
var ErrInvalidMessageType = errors.New("mesh: invalid message type")

// envelope extracts the type discriminator.
type envelope struct {
	Type string `json:"type"`
}

// CursorMessage carries a peer's pointer position and activity flag.
type CursorMessage struct {
	Type   string  `json:"type"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Active bool    `json:"active"`
}

// DrawMessage carries one new document item.
type DrawMessage struct {
	Type string        `json:"type"`
	Item document.Item `json:"item"`
}

// ClearMessage removes all items on every peer.
type ClearMessage struct {
	Type string `json:"type"`
}

// SyncRequestMessage opens reconciliation on a fresh connection; it
// advertises the sender's current item count.
type SyncRequestMessage struct {
	Type      string `json:"type"`
	ItemCount int    `json:"itemCount"`
}

// SyncResponseMessage pushes the sender's full item set to a peer that
// advertised a strictly smaller count.
type SyncResponseMessage struct {
	Type  string          `json:"type"`
	Items []document.Item `json:"items"`
}

// encodeMessage marshals an application message for the channel.
func encodeMessage(message any) ([]byte, error) {
	payload, err := json.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("marshal channel message: %w", err)
	}
	return payload, nil
}

// unmarshalChannel parses a kind-specific message body.
func unmarshalChannel(payload []byte, message any) error {
	if err := json.Unmarshal(payload, message); err != nil {
		return fmt.Errorf("decode channel message: %w", err)
	}
	return nil
}

// decodeMessageType extracts the type discriminator from a payload.
func decodeMessageType(payload []byte) (string, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return "", fmt.Errorf("decode message envelope: %w", err)
	}
	switch env.Type {
	case TypeCursor, TypeDraw, TypeClear, TypeSyncRequest, TypeSyncResponse:
		return env.Type, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMessageType, env.Type)
	}
}
