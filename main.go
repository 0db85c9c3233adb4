package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"canvasmesh/config"
	"canvasmesh/discovery"
	"canvasmesh/document"
	"canvasmesh/identity"
	"canvasmesh/mesh"
	"canvasmesh/signal"
)

func main() {
	hubAddr := flag.String("hub", "", "run a websocket signaling hub on this address instead of joining a session")
	locate := flag.Bool("locate", false, "list sessions advertised on the LAN and exit")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if *hubAddr != "" {
		runHub(*hubAddr, logger)
		return
	}

	cfg, cfgPath, err := config.LoadOrCreate()
	if err != nil {
		log.Fatalf("startup failed while loading config: %v", err)
	}

	if *locate {
		locateSessions(cfg)
		return
	}

	self := identity.New()
	if cfg.DisplayName != "" {
		self.Name = cfg.DisplayName
	}
	if cfg.Color != "" {
		self.Color = cfg.Color
	}

	medium, signalAddr, err := openMedium(cfg, logger)
	if err != nil {
		log.Fatalf("startup failed while opening signaling medium: %v", err)
	}

	model, err := document.OpenSQLite(document.MemoryDSN, logger)
	if err != nil {
		log.Fatalf("startup failed while opening document store: %v", err)
	}
	defer func() {
		if err := model.Close(); err != nil {
			log.Printf("document store close error: %v", err)
		}
	}()

	options := mesh.Options{
		Identity: self,
		Medium:   medium,
		Model:    model,
		Logger:   logger,
	}
	if cfg.PresenceIntervalSeconds > 0 {
		options.PresenceInterval = time.Duration(cfg.PresenceIntervalSeconds) * time.Second
	}

	session, err := mesh.Join(options)
	if err != nil {
		log.Fatalf("startup failed while joining mesh: %v", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.Printf("session close error: %v", err)
		}
	}()

	fmt.Printf("Peer ID:      %s\n", self.ID)
	fmt.Printf("Display Name: %s\n", self.Name)
	fmt.Printf("Color:        %s\n", self.Color)
	fmt.Printf("Signaling:    %s (%s)\n", signalAddr, cfg.SignalMode)
	fmt.Printf("Config File:  %s\n", cfgPath)

	if cfg.Advertise && cfg.SessionName != "" {
		advertiser, err := discovery.Advertise(discovery.Config{
			SessionName: cfg.SessionName,
			SignalAddr:  signalAddr,
		})
		if err != nil {
			log.Printf("mDNS advertisement failed: %v", err)
		} else {
			defer advertiser.Stop()
			fmt.Printf("Session:      %q (advertised via mDNS)\n", cfg.SessionName)
		}
	}

	go logSessionEvents(logger, session.Events())

	ctx, stop := ossignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Println("Status:       running (press Ctrl+C to stop)")
	<-ctx.Done()
	fmt.Println("Status:       shutting down")
}

// openMedium builds the signaling medium selected by the config and
// returns it with the endpoint string peers should be told about.
func openMedium(cfg *config.SessionConfig, logger *slog.Logger) (signal.Medium, string, error) {
	switch cfg.SignalMode {
	case config.SignalModeHub:
		medium, err := signal.DialHub(cfg.HubURL, logger)
		if err != nil {
			return nil, "", err
		}
		return medium, cfg.HubURL, nil
	default:
		address := cfg.MulticastAddress
		if address == "" {
			address = signal.DefaultMulticastAddress
		}
		medium, err := signal.ListenUDP(address, logger)
		if err != nil {
			return nil, "", err
		}
		return medium, address, nil
	}
}

func runHub(addr string, logger *slog.Logger) {
	hub := signal.NewHub(logger)
	server := &http.Server{Addr: addr, Handler: hub}

	ctx, stop := ossignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("hub shutdown error: %v", err)
		}
	}()

	fmt.Printf("Signaling hub listening on %s\n", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("hub failed: %v", err)
	}
}

func locateSessions(cfg *config.SessionConfig) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sessions, err := discovery.Locate(ctx, discovery.Config{SessionName: cfg.SessionName})
	if err != nil {
		log.Fatalf("session lookup failed: %v", err)
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions found.")
		return
	}
	for _, s := range sessions {
		fmt.Printf("%-24s %s (host %s)\n", s.Name, s.SignalAddr, s.HostName)
	}
}

func logSessionEvents(logger *slog.Logger, events <-chan mesh.Event) {
	for event := range events {
		switch event.Type {
		case mesh.EventPeerConnected:
			logger.Info("peer connected", "peer", event.PeerID)
		case mesh.EventPeerLeft:
			logger.Info("peer left", "peer", event.PeerID)
		case mesh.EventSynced:
			logger.Info("document synced", "peer", event.PeerID, "merged", event.Merged)
		case mesh.EventDraw:
			logger.Debug("remote draw", "peer", event.PeerID, "item", event.Item.ID)
		case mesh.EventClear:
			logger.Info("remote clear", "peer", event.PeerID)
		case mesh.EventCursor:
			// pointer updates are too chatty to log
		}
	}
}
