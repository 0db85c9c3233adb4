package signal

import (
	"errors"
	"strings"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	original := Signal{
		Kind: KindOffer,
		From: "peer-a",
		To:   "peer-b",
		SDP:  "v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\n",
	}

	payload, err := Encode(original)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := Decode(payload)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded != original {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestDecodeRejectsMalformedPayloads(t *testing.T) {
	cases := map[string]string{
		"not json":            `{{{`,
		"empty object":        `{}`,
		"unknown kind":        `{"kind":"teleport","from":"a","to":"b"}`,
		"presence no from":    `{"kind":"presence"}`,
		"offer no to":         `{"kind":"offer","from":"a"}`,
		"answer no from":      `{"kind":"answer","to":"b"}`,
		"ice missing address": `{"kind":"ice"}`,
	}

	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Decode([]byte(payload)); err == nil {
				t.Fatalf("Decode accepted %q", payload)
			}
		})
	}
}

func TestDecodeAcceptsPresenceWithoutTo(t *testing.T) {
	sig, err := Decode([]byte(`{"kind":"presence","from":"a","name":"Blue Heron","color":"#4363d8"}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if sig.Name != "Blue Heron" {
		t.Fatalf("Name = %q", sig.Name)
	}
}

func TestDecodeRejectsOversizedPayload(t *testing.T) {
	payload := `{"kind":"offer","from":"a","to":"b","sdp":"` +
		strings.Repeat("x", MaxSignalSize) + `"}`
	if _, err := Decode([]byte(payload)); !errors.Is(err, ErrSignalTooLarge) {
		t.Fatalf("err = %v, want ErrSignalTooLarge", err)
	}
}
