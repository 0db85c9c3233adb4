package signal

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
)

// DefaultMulticastAddress is the multicast group and port shared by every
// session participant on the local network. All sessions in scope share
// one group; signals are multiplexed by identity at the application
// layer, not by the medium.
const DefaultMulticastAddress = "239.77.13.37:47700"

// UDPMedium broadcasts signals as JSON datagrams on a LAN multicast
// group. Multicast loopback means self-originated signals are normally
// redelivered to the sender; consumers filter them by identity.
type UDPMedium struct {
	group  *net.UDPAddr
	recv   *net.UDPConn
	send   *net.UDPConn
	logger *slog.Logger

	signals chan Signal

	closeOnce sync.Once
	closed    chan struct{}
}

// ListenUDP joins the multicast group at the given address (host:port)
// and starts receiving signals. An empty address selects
// DefaultMulticastAddress.
func ListenUDP(address string, logger *slog.Logger) (*UDPMedium, error) {
	if address == "" {
		address = DefaultMulticastAddress
	}
	if logger == nil {
		logger = slog.Default()
	}

	group, err := net.ResolveUDPAddr("udp4", address)
	if err != nil {
		return nil, fmt.Errorf("resolve multicast address: %w", err)
	}
	if !group.IP.IsMulticast() {
		return nil, fmt.Errorf("signal: %s is not a multicast address", group.IP)
	}

	recv, err := net.ListenMulticastUDP("udp4", nil, group)
	if err != nil {
		return nil, fmt.Errorf("join multicast group: %w", err)
	}
	recv.SetReadBuffer(1 << 20)

	send, err := net.DialUDP("udp4", nil, group)
	if err != nil {
		recv.Close()
		return nil, fmt.Errorf("open multicast sender: %w", err)
	}

	medium := &UDPMedium{
		group:   group,
		recv:    recv,
		send:    send,
		logger:  logger,
		signals: make(chan Signal, memberBuffer),
		closed:  make(chan struct{}),
	}
	go medium.readLoop()

	return medium, nil
}

// Publish sends one signal datagram to the group.
func (m *UDPMedium) Publish(sig Signal) error {
	select {
	case <-m.closed:
		return ErrMediumClosed
	default:
	}

	payload, err := Encode(sig)
	if err != nil {
		return err
	}
	if _, err := m.send.Write(payload); err != nil {
		return fmt.Errorf("send signal datagram: %w", err)
	}
	return nil
}

// Signals returns the channel of received signals.
func (m *UDPMedium) Signals() <-chan Signal {
	return m.signals
}

// Close leaves the multicast group and closes the signal channel.
func (m *UDPMedium) Close() error {
	m.closeOnce.Do(func() {
		close(m.closed)
		m.recv.Close()
		m.send.Close()
	})
	return nil
}

func (m *UDPMedium) readLoop() {
	defer close(m.signals)

	buffer := make([]byte, MaxSignalSize)
	for {
		length, sender, err := m.recv.ReadFromUDP(buffer)
		if err != nil {
			select {
			case <-m.closed:
			default:
				m.logger.Warn("signal receive failed", "error", err)
			}
			return
		}

		sig, err := Decode(buffer[:length])
		if err != nil {
			m.logger.Debug("dropping malformed signal",
				"sender", sender.String(),
				"error", err,
			)
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
