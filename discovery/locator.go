// Package discovery advertises and locates canvas sessions over mDNS.
//
// This is rendezvous only: a joiner uses it to learn a named session's
// signaling endpoint (multicast group or hub URL) without manual
// configuration. Peer discovery itself happens over the signaling medium
// through presence beacons, not here.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	// DefaultService is the mDNS service name without domain suffix.
	DefaultService = "_canvasmesh._udp"
	// DefaultDomain is the mDNS domain.
	DefaultDomain = "local."
	// DefaultVersion is the TXT record protocol version.
	DefaultVersion = 1
	// DefaultBrowseTimeout bounds one session lookup.
	DefaultBrowseTimeout = 3 * time.Second
	// advertisePort is a placeholder; the advertised endpoint lives in
	// TXT records, but mDNS registration requires a port.
	advertisePort = 5353
)

type registerFunc func(instance, service, domain string, port int, text []string, ifaces []net.Interface) (*zeroconf.Server, error)
type browseFunc func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error

// Config controls session advertisement and lookup.
type Config struct {
	Service       string
	Domain        string
	Version       int
	BrowseTimeout time.Duration

	// SessionName names the session being advertised or looked up.
	SessionName string
	// SignalAddr is the advertised signaling endpoint: a multicast
	// host:port or a ws:// hub URL.
	SignalAddr string

	registerFn registerFunc
	browseFn   browseFunc
}

func (c Config) withDefaults() Config {
	out := c
	if out.Service == "" {
		out.Service = DefaultService
	}
	if out.Domain == "" {
		out.Domain = DefaultDomain
	}
	if out.Version == 0 {
		out.Version = DefaultVersion
	}
	if out.BrowseTimeout <= 0 {
		out.BrowseTimeout = DefaultBrowseTimeout
	}
	if out.registerFn == nil {
		out.registerFn = zeroconf.Register
	}
	return out
}

func (c Config) validateForAdvertise() error {
	if strings.TrimSpace(c.SessionName) == "" {
		return errors.New("session name is required")
	}
	if strings.TrimSpace(c.SignalAddr) == "" {
		return errors.New("signal address is required")
	}
	return nil
}

// Session is one located canvas session.
type Session struct {
	Name       string
	SignalAddr string
	Version    int
	HostName   string
}

// Advertiser publishes a session's signaling endpoint via mDNS.
type Advertiser struct {
	server *zeroconf.Server
}

// Advertise registers the session with mDNS and keeps it visible until
// Stop.
func Advertise(config Config) (*Advertiser, error) {
	cfg := config.withDefaults()
	if err := cfg.validateForAdvertise(); err != nil {
		return nil, err
	}

	txt := []string{
		"session=" + cfg.SessionName,
		"signal=" + cfg.SignalAddr,
		"version=" + strconv.Itoa(cfg.Version),
	}

	server, err := cfg.registerFn(cfg.SessionName, cfg.Service, cfg.Domain, advertisePort, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("register mDNS session: %w", err)
	}

	return &Advertiser{server: server}, nil
}

// Stop withdraws the advertisement.
func (a *Advertiser) Stop() {
	if a == nil || a.server == nil {
		return
	}
	a.server.Shutdown()
}

// Locate browses for advertised sessions. With a non-empty SessionName
// in the config only that session is returned; otherwise all sessions
// found within the browse timeout.
func Locate(ctx context.Context, config Config) ([]Session, error) {
	cfg := config.withDefaults()

	browse := cfg.browseFn
	if browse == nil {
		resolver, err := zeroconf.NewResolver(nil)
		if err != nil {
			return nil, fmt.Errorf("create mDNS resolver: %w", err)
		}
		browse = resolver.Browse
	}

	browseCtx, cancel := context.WithTimeout(ctx, cfg.BrowseTimeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 16)
	errCh := make(chan error, 1)
	go func() {
		errCh <- browse(browseCtx, cfg.Service, cfg.Domain, entries)
	}()

	var sessions []Session
	for entry := range entries {
		session, ok := sessionFromEntry(entry)
		if !ok {
			continue
		}
		if cfg.SessionName != "" && session.Name != cfg.SessionName {
			continue
		}
		sessions = append(sessions, session)
	}

	if err := <-errCh; err != nil && len(sessions) == 0 {
		return nil, fmt.Errorf("browse mDNS sessions: %w", err)
	}
	return sessions, nil
}

func sessionFromEntry(entry *zeroconf.ServiceEntry) (Session, bool) {
	session := Session{
		Name:     entry.Instance,
		HostName: entry.HostName,
	}

	for _, record := range entry.Text {
		key, value, found := strings.Cut(record, "=")
		if !found {
			continue
		}
		switch key {
		case "session":
			session.Name = value
		case "signal":
			session.SignalAddr = value
		case "version":
			if version, err := strconv.Atoi(value); err == nil {
				session.Version = version
			}
		}
	}

	if session.SignalAddr == "" {
		return Session{}, false
	}
	return session, true
}
