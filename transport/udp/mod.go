package udp

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/DistributedClocks/GoVector/govec"
	"go.dedis.ch/peerpaste/transport"
)

// bufSize is the largest UDP payload over IPv4.
const bufSize = 65507

// historySize bounds the packets kept for GetIns and GetOuts.
const historySize = 1000

// Option configures the UDP transport.
type Option func(*UDP)

// WithVectorClock stamps every datagram with a vector clock and logs the
// events to logfile, in a format ShiViz can display.
func WithVectorClock(processID, logfile string) Option {
	return func(u *UDP) {
		u.vlog = govec.InitGoVector(processID, logfile, govec.GetDefaultConfig())
	}
}

// NewUDP returns a new udp transport implementation.
func NewUDP(opts ...Option) transport.Transport {
	u := &UDP{}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// UDP implements a transport layer using UDP
//
// - implements transport.Transport
type UDP struct {
	vlog *govec.GoLog
}

// CreateSocket implements transport.Transport
func (n *UDP) CreateSocket(address string) (transport.ClosableSocket, error) {
	conn, err := net.ListenPacket("udp", address)
	if err != nil {
		return nil, fmt.Errorf("cannot create udp socket: %w", err)
	}
	return &Socket{PacketConn: conn,
		ins:  packets{data: make([]transport.Packet, 0, 100)},
		outs: packets{data: make([]transport.Packet, 0, 100)},
		vlog: n.vlog}, nil
}

// Socket implements a network socket using UDP.
//
// - implements transport.Socket
// - implements transport.ClosableSocket
type Socket struct {
	net.PacketConn
	ins  packets
	outs packets

	vmu  sync.Mutex
	vlog *govec.GoLog
}

// Close implements transport.Socket. It returns an error if already closed.
func (s *Socket) Close() error {
	return s.PacketConn.Close()
}

// Send implements transport.Socket
// timeout=0 means no timeout
func (s *Socket) Send(dest string, pkt transport.Packet, timeout time.Duration) error {
	pktBytes, err := pkt.Marshal()
	if err != nil {
		return fmt.Errorf("UDP send error: %w", err)
	}
	if len(pktBytes) > bufSize {
		return fmt.Errorf("UDP send error: packet of %d bytes does not fit a datagram", len(pktBytes))
	}
	addr, err := net.ResolveUDPAddr("udp", dest)
	if err != nil {
		return fmt.Errorf("UDP send error: %w", err)
	}
	pktBytes = s.stamp(dest, pktBytes)

	res := make(chan error, 1)
	go func() {
		_, err := s.WriteTo(pktBytes, addr)
		res <- err
	}()

	if timeout == 0 {
		err := <-res
		if err != nil {
			return fmt.Errorf("UDP send error: %w", err)
		}
	} else {
		select {
		case err := <-res:
			if err != nil {
				return fmt.Errorf("UDP send error: %w", err)
			}
		case <-time.After(timeout):
			return fmt.Errorf("UDP send error: %w", transport.TimeoutErr(timeout))
		}
	}

	s.outs.add(pkt)
	return nil
}

// Recv implements transport.Socket. It blocks until a packet is received, or
// the timeout is reached. In the case the timeout is reached, return a
// TimeoutErr. Recv must not be called concurrently.
func (s *Socket) Recv(timeout time.Duration) (transport.Packet, error) {
	deadline := time.Time{}
	if timeout != 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := s.SetReadDeadline(deadline); err != nil {
		return transport.Packet{}, fmt.Errorf("UDP Recv error: %w", err)
	}

	buf := make([]byte, bufSize)
	n, from, err := s.ReadFrom(buf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return transport.Packet{}, transport.TimeoutErr(timeout)
		}
		return transport.Packet{}, fmt.Errorf("UDP Recv error: %w", err)
	}

	var pkt transport.Packet
	if err := pkt.Unmarshal(s.unstamp(buf[:n])); err != nil {
		return transport.Packet{}, fmt.Errorf("UDP Recv error: %w", err)
	}
	// trust the network over the header
	pkt.Header.Source = from.String()

	s.ins.add(pkt)
	return pkt.Copy(), nil
}

// GetAddress implements transport.Socket. It returns the address assigned. Can
// be useful in the case one provided a :0 address, which makes the system use a
// random free port.
func (s *Socket) GetAddress() string {
	return s.LocalAddr().String()
}

// GetIns implements transport.Socket
func (s *Socket) GetIns() []transport.Packet {
	return s.ins.getAll()
}

// GetOuts implements transport.Socket
func (s *Socket) GetOuts() []transport.Packet {
	return s.outs.getAll()
}

// stamp wraps an outgoing datagram with the vector clock, if enabled.
func (s *Socket) stamp(dest string, buf []byte) []byte {
	if s.vlog == nil {
		return buf
	}
	s.vmu.Lock()
	defer s.vmu.Unlock()
	return s.vlog.PrepareSend("send to "+dest, buf, govec.GetDefaultLogOptions())
}

// unstamp merges the vector clock of an incoming datagram, if enabled.
func (s *Socket) unstamp(buf []byte) []byte {
	if s.vlog == nil {
		return buf
	}
	var payload []byte
	s.vmu.Lock()
	defer s.vmu.Unlock()
	s.vlog.UnpackReceive("receive", buf, &payload, govec.GetDefaultLogOptions())
	return payload
}

// utility class
type packets struct {
	sync.Mutex
	data []transport.Packet
}

func (p *packets) add(pkt transport.Packet) {
	p.Lock()
	defer p.Unlock()

	if len(p.data) >= historySize {
		p.data = append(p.data[:0], p.data[len(p.data)-historySize/2:]...)
	}
	p.data = append(p.data, pkt)
}

func (p *packets) getAll() []transport.Packet {
	p.Lock()
	defer p.Unlock()

	res := make([]transport.Packet, len(p.data))

	for i, pkt := range p.data {
		res[i] = pkt.Copy()
	}

	return res
}
