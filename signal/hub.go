package signal

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Hub is a websocket relay that gives a signaling scope to clients that
// cannot share a multicast group (containers, VPNs, browser bridges).
// Every message a client sends is forwarded verbatim to every other
// connected client; the hub validates but never routes, preserving the
// broadcast semantics of the medium.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*hubClient]bool
}

type hubClient struct {
	conn *websocket.Conn

	// writeMu serializes writes; gorilla connections allow at most one
	// concurrent writer.
	writeMu sync.Mutex
}

func (c *hubClient) write(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// NewHub creates an empty relay.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*hubClient]bool),
	}
}

// ServeHTTP upgrades the request to a websocket and relays its signals
// until the client disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &hubClient{conn: conn}
	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, client)
		h.mu.Unlock()
		conn.Close()
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}

		if _, err := Decode(payload); err != nil {
			h.logger.Debug("dropping malformed signal",
				"remote", conn.RemoteAddr().String(),
				"error", err,
			)
			continue
		}

		h.mu.Lock()
		peers := make([]*hubClient, 0, len(h.clients))
		for peer := range h.clients {
			if peer != client {
				peers = append(peers, peer)
			}
		}
		h.mu.Unlock()

		for _, peer := range peers {
			if err := peer.write(payload); err != nil {
				h.logger.Debug("relay write failed", "error", err)
			}
		}
	}
}

// HubMedium is a Medium backed by a websocket connection to a Hub.
type HubMedium struct {
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex

	signals chan Signal

	closeOnce sync.Once
	closed    chan struct{}
}

// DialHub connects to a hub at the given websocket URL (ws://host:port/path).
func DialHub(url string, logger *slog.Logger) (*HubMedium, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial signaling hub: %w", err)
	}

	medium := &HubMedium{
		conn:    conn,
		logger:  logger,
		signals: make(chan Signal, memberBuffer),
		closed:  make(chan struct{}),
	}
	go medium.readLoop()

	return medium, nil
}

// Publish sends one signal to the hub for relay.
func (m *HubMedium) Publish(sig Signal) error {
	select {
	case <-m.closed:
		return ErrMediumClosed
	default:
	}

	payload, err := Encode(sig)
	if err != nil {
		return err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := m.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("send signal to hub: %w", err)
	}
	return nil
}

// Signals returns the channel of received signals.
func (m *HubMedium) Signals() <-chan Signal {
	return m.signals
}

// Close disconnects from the hub and closes the signal channel.
func (m *HubMedium) Close() error {
	m.closeOnce.Do(func() {
		close(m.closed)
		m.conn.Close()
	})
	return nil
}

func (m *HubMedium) readLoop() {
	defer close(m.signals)

	for {
		_, payload, err := m.conn.ReadMessage()
		if err != nil {
			select {
			case <-m.closed:
			default:
				m.logger.Warn("hub connection lost", "error", err)
			}
			return
		}

		sig, err := Decode(payload)
		if err != nil {
			m.logger.Debug("dropping malformed signal", "error", err)
			continue
		}

		select {
		case m.signals <- sig:
		default:
			m.logger.Warn("signal backlog full, dropping",
				"kind", sig.Kind,
				"from", sig.From,
			)
		}
	}
}
