// Package signal implements the shared broadcast signaling medium used by
// the collaboration layer for peer discovery and connection negotiation.
//
// Every participant in a session shares one medium. The medium is fan-out
// and best-effort: a published signal reaches every other participant in
// scope, with no acknowledgment, retry, or cross-peer ordering. Signals
// carry application-level addressing (from/to identity fields); the medium
// itself never routes, so point-to-point semantics are the receiver's job.
//
// Three implementations cover the deployment shapes of a LAN session:
// [UDPMedium] multicasts JSON datagrams on the local network, [HubMedium]
// relays through a [Hub] websocket server, and [MemoryNetwork] fans out
// in-process for tests.
package signal

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Signal kinds. Presence is unaddressed; the other kinds carry explicit
// from/to fields and are dropped by every receiver except the addressee.
const (
	KindPresence = "presence"
	KindOffer    = "offer"
	KindAnswer   = "answer"
	KindICE      = "ice"
)

// MaxSignalSize is the maximum accepted signal payload size. SDP bodies
// are a few kilobytes; anything near this limit is garbage.
const MaxSignalSize = 64 * 1024

var (
	// ErrSignalTooLarge indicates a payload exceeds MaxSignalSize.
	ErrSignalTooLarge = errors.New("signal: payload exceeds max size")
	// ErrMalformedSignal indicates a payload that does not decode to a
	// valid signal.
	ErrMalformedSignal = errors.New("signal: malformed payload")
	// ErrMediumClosed indicates a publish on a closed medium.
	ErrMediumClosed = errors.New("signal: medium closed")
)

// Signal is one signaling payload. Kind-specific fields are populated as
// follows: presence carries Name and Color; offer and answer carry SDP;
// ice carries Candidate (a JSON-encoded ICE candidate).
type Signal struct {
	Kind      string `json:"kind"`
	From      string `json:"from"`
	To        string `json:"to,omitempty"`
	Name      string `json:"name,omitempty"`
	Color     string `json:"color,omitempty"`
	SDP       string `json:"sdp,omitempty"`
	Candidate string `json:"candidate,omitempty"`
}

// Medium is a handle to the shared broadcast signaling channel. It is
// explicitly constructed and owned by the session: opened at session
// start, closed at session end. Implementations must be safe for
// concurrent Publish calls.
type Medium interface {
	// Publish broadcasts one signal to every other participant in scope.
	// Best-effort: a nil error means the signal was handed to the medium,
	// not that anyone received it.
	Publish(sig Signal) error

	// Signals returns the channel of received signals. The channel is
	// closed when the medium closes. Self-originated signals may or may
	// not be delivered depending on the medium; consumers filter by
	// identity.
	Signals() <-chan Signal

	// Close tears down the medium and releases its resources.
	Close() error
}

// Encode marshals a signal for the wire.
func Encode(sig Signal) ([]byte, error) {
	payload, err := json.Marshal(sig)
	if err != nil {
		return nil, fmt.Errorf("marshal signal: %w", err)
	}
	if len(payload) > MaxSignalSize {
		return nil, ErrSignalTooLarge
	}
	return payload, nil
}

// Decode parses and validates one wire payload. Malformed payloads are a
// normal condition on a shared medium; callers log and drop them.
func Decode(payload []byte) (Signal, error) {
	if len(payload) > MaxSignalSize {
		return Signal{}, ErrSignalTooLarge
	}

	var sig Signal
	if err := json.Unmarshal(payload, &sig); err != nil {
		return Signal{}, fmt.Errorf("%w: %v", ErrMalformedSignal, err)
	}

	switch sig.Kind {
	case KindPresence:
		if sig.From == "" {
			return Signal{}, fmt.Errorf("%w: presence without from", ErrMalformedSignal)
		}
	case KindOffer, KindAnswer, KindICE:
		if sig.From == "" || sig.To == "" {
			return Signal{}, fmt.Errorf("%w: %s without addressing", ErrMalformedSignal, sig.Kind)
		}
	default:
		return Signal{}, fmt.Errorf("%w: unknown kind %q", ErrMalformedSignal, sig.Kind)
	}

	return sig, nil
}
