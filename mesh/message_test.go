package mesh

import (
	"encoding/json"
	"errors"
	"testing"

	"canvasmesh/document"
)

func TestDecodeMessageTypeAcceptsAllKinds(t *testing.T) {
	kinds := []string{TypeCursor, TypeDraw, TypeClear, TypeSyncRequest, TypeSyncResponse}
	for _, kind := range kinds {
		payload, err := json.Marshal(map[string]string{"type": kind})
		if err != nil {
			t.Fatal(err)
		}
		got, err := decodeMessageType(payload)
		if err != nil {
			t.Fatalf("decodeMessageType(%s) failed: %v", kind, err)
		}
		if got != kind {
			t.Fatalf("got %q, want %q", got, kind)
		}
	}
}

func TestDecodeMessageTypeRejectsGarbage(t *testing.T) {
	cases := map[string][]byte{
		"not json":     []byte("hello"),
		"no type":      []byte(`{"x":1}`),
		"unknown type": []byte(`{"type":"teleport"}`),
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := decodeMessageType(payload); err == nil {
				t.Fatalf("accepted %q", payload)
			}
		})
	}

	if _, err := decodeMessageType([]byte(`{"type":"warp"}`)); !errors.Is(err, ErrInvalidMessageType) {
		t.Fatal("unknown type did not map to ErrInvalidMessageType")
	}
}

func TestDrawMessageRoundTrip(t *testing.T) {
	original := DrawMessage{
		Type: TypeDraw,
		Item: document.Item{
			ID:      "stroke-7",
			Payload: json.RawMessage(`{"points":[[1,2],[3,4]],"color":"#008080"}`),
		},
	}

	payload, err := encodeMessage(original)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	kind, err := decodeMessageType(payload)
	if err != nil || kind != TypeDraw {
		t.Fatalf("kind = %q, err = %v", kind, err)
	}

	var decoded DrawMessage
	if err := unmarshalChannel(payload, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded.Item.ID != original.Item.ID {
		t.Fatalf("item id = %q, want %q", decoded.Item.ID, original.Item.ID)
	}
	if string(decoded.Item.Payload) != string(original.Item.Payload) {
		t.Fatalf("payload = %s, want %s", decoded.Item.Payload, original.Item.Payload)
	}
}

func TestSyncRequestUsesCamelCaseItemCount(t *testing.T) {
	payload, err := encodeMessage(SyncRequestMessage{Type: TypeSyncRequest, ItemCount: 12})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		t.Fatal(err)
	}
	if _, ok := raw["itemCount"]; !ok {
		t.Fatalf("wire payload missing itemCount: %s", payload)
	}
}
