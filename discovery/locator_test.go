package discovery

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
)

func TestAdvertiseRegistersSessionRecords(t *testing.T) {
	var gotInstance, gotService, gotDomain string
	var gotPort int
	var gotText []string

	cfg := Config{
		SessionName: "sketch-room",
		SignalAddr:  "239.77.13.37:47700",
		registerFn: func(instance, service, domain string, port int, text []string, ifaces []net.Interface) (*zeroconf.Server, error) {
			gotInstance = instance
			gotService = service
			gotDomain = domain
			gotPort = port
			gotText = text
			return nil, nil
		},
	}

	advertiser, err := Advertise(cfg)
	if err != nil {
		t.Fatalf("Advertise failed: %v", err)
	}
	defer advertiser.Stop()

	if gotInstance != "sketch-room" {
		t.Errorf("instance = %q, want sketch-room", gotInstance)
	}
	if gotService != DefaultService {
		t.Errorf("service = %q, want %q", gotService, DefaultService)
	}
	if gotDomain != DefaultDomain {
		t.Errorf("domain = %q, want %q", gotDomain, DefaultDomain)
	}
	if gotPort != advertisePort {
		t.Errorf("port = %d, want %d", gotPort, advertisePort)
	}

	want := map[string]bool{
		"session=sketch-room":       false,
		"signal=239.77.13.37:47700": false,
		"version=1":                 false,
	}
	for _, record := range gotText {
		if _, ok := want[record]; ok {
			want[record] = true
		}
	}
	for record, seen := range want {
		if !seen {
			t.Errorf("TXT record %q missing from %v", record, gotText)
		}
	}
}

func TestAdvertiseRejectsMissingFields(t *testing.T) {
	if _, err := Advertise(Config{SignalAddr: "ws://hub:8080/signal"}); err == nil {
		t.Error("expected error for missing session name")
	}
	if _, err := Advertise(Config{SessionName: "room"}); err == nil {
		t.Error("expected error for missing signal address")
	}
}

func TestAdvertiseWrapsRegisterError(t *testing.T) {
	boom := errors.New("no multicast interface")
	cfg := Config{
		SessionName: "room",
		SignalAddr:  "239.77.13.37:47700",
		registerFn: func(instance, service, domain string, port int, text []string, ifaces []net.Interface) (*zeroconf.Server, error) {
			return nil, boom
		},
	}
	if _, err := Advertise(cfg); !errors.Is(err, boom) {
		t.Errorf("expected wrapped register error, got %v", err)
	}
}

func TestLocateParsesEntries(t *testing.T) {
	cfg := Config{
		browseFn: func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
			entries <- &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "room-a"},
				HostName:      "alpha.local.",
				Text: []string{
					"session=room-a",
					"signal=239.77.13.37:47700",
					"version=1",
				},
			}
			entries <- &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "stale"},
				HostName:      "beta.local.",
				Text:          []string{"unrelated"},
			}
			close(entries)
			return nil
		},
	}

	sessions, err := Locate(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Locate failed: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("got %d sessions, want 1", len(sessions))
	}
	got := sessions[0]
	if got.Name != "room-a" || got.SignalAddr != "239.77.13.37:47700" || got.Version != 1 {
		t.Errorf("unexpected session: %+v", got)
	}
	if got.HostName != "alpha.local." {
		t.Errorf("host name = %q, want alpha.local.", got.HostName)
	}
}

func TestLocateFiltersBySessionName(t *testing.T) {
	cfg := Config{
		SessionName: "room-b",
		browseFn: func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
			for _, name := range []string{"room-a", "room-b", "room-c"} {
				entries <- &zeroconf.ServiceEntry{
					ServiceRecord: zeroconf.ServiceRecord{Instance: name},
					Text:          []string{"session=" + name, "signal=ws://hub:8080/signal"},
				}
			}
			close(entries)
			return nil
		},
	}

	sessions, err := Locate(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Locate failed: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Name != "room-b" {
		t.Errorf("got %+v, want only room-b", sessions)
	}
}

func TestLocateReportsBrowseError(t *testing.T) {
	boom := errors.New("resolver down")
	cfg := Config{
		browseFn: func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
			close(entries)
			return boom
		},
	}
	if _, err := Locate(context.Background(), cfg); !errors.Is(err, boom) {
		t.Errorf("expected wrapped browse error, got %v", err)
	}
}

func TestLocateHonorsTimeout(t *testing.T) {
	cfg := Config{
		BrowseTimeout: 50 * time.Millisecond,
		browseFn: func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
			<-ctx.Done()
			close(entries)
			return nil
		},
	}

	start := time.Now()
	sessions, err := Locate(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Locate failed: %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("got %d sessions, want 0", len(sessions))
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("browse did not respect timeout, took %v", elapsed)
	}
}
