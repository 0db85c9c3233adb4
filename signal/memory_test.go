package signal

import (
	"errors"
	"testing"
	"time"
)

func receiveSignal(t *testing.T, medium Medium) Signal {
	t.Helper()
	select {
	case sig, ok := <-medium.Signals():
		if !ok {
			t.Fatal("signal channel closed")
		}
		return sig
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for signal")
	}
	return Signal{}
}

func TestMemoryNetworkFansOutToOtherMembers(t *testing.T) {
	network := NewMemoryNetwork()
	a := network.Join()
	b := network.Join()
	c := network.Join()
	defer a.Close()
	defer b.Close()
	defer c.Close()

	presence := Signal{Kind: KindPresence, From: "peer-a", Name: "Amber Fox", Color: "#e6194b"}
	if err := a.Publish(presence); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	for _, member := range []Medium{b, c} {
		if got := receiveSignal(t, member); got != presence {
			t.Fatalf("received %+v, want %+v", got, presence)
		}
	}

	// Publisher must not see its own signal.
	select {
	case sig := <-a.Signals():
		t.Fatalf("publisher received own signal: %+v", sig)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryMediumRejectsInvalidSignals(t *testing.T) {
	network := NewMemoryNetwork()
	medium := network.Join()
	defer medium.Close()

	if err := medium.Publish(Signal{Kind: "bogus", From: "a"}); err == nil {
		t.Fatal("Publish accepted an invalid signal")
	}
	if err := medium.Publish(Signal{Kind: KindOffer, From: "a"}); err == nil {
		t.Fatal("Publish accepted an unaddressed offer")
	}
}

func TestMemoryMediumCloseIsTerminal(t *testing.T) {
	network := NewMemoryNetwork()
	a := network.Join()
	b := network.Join()

	if err := a.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}

	err := a.Publish(Signal{Kind: KindPresence, From: "peer-a"})
	if !errors.Is(err, ErrMediumClosed) {
		t.Fatalf("Publish after close: err = %v, want ErrMediumClosed", err)
	}

	// Channel closes so consumers unblock.
	select {
	case _, ok := <-a.Signals():
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("signal channel not closed")
	}

	// Remaining members are unaffected.
	if err := b.Publish(Signal{Kind: KindPresence, From: "peer-b"}); err != nil {
		t.Fatalf("surviving member Publish failed: %v", err)
	}
	b.Close()
}
