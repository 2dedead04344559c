package channel

import (
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"go.dedis.ch/peerpaste/transport"
)

const queueSize = 1000

// NewTransport returns an in-process transport. Sockets created by the same
// transport reach each other; packets to an unknown or closed address are
// lost, like datagrams.
func NewTransport() transport.Transport {
	return &Transport{sockets: make(map[string]*Socket), nextPort: 10000}
}

// Transport implements transport.Transport with channels.
type Transport struct {
	sync.Mutex
	sockets  map[string]*Socket
	nextPort int
}

// CreateSocket implements transport.Transport. Port 0 picks a free port.
func (t *Transport) CreateSocket(address string) (transport.ClosableSocket, error) {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return nil, fmt.Errorf("cannot create channel socket: %w", err)
	}

	t.Lock()
	defer t.Unlock()

	if port == "0" {
		t.nextPort++
		port = strconv.Itoa(t.nextPort)
	}
	address = net.JoinHostPort(host, port)
	if _, ok := t.sockets[address]; ok {
		return nil, fmt.Errorf("cannot create channel socket: %s already in use", address)
	}

	s := &Socket{
		transport: t,
		address:   address,
		queue:     make(chan transport.Packet, queueSize),
		closed:    make(chan struct{}),
	}
	t.sockets[address] = s
	return s, nil
}

func (t *Transport) lookup(address string) (*Socket, bool) {
	t.Lock()
	defer t.Unlock()
	s, ok := t.sockets[address]
	return s, ok
}

func (t *Transport) remove(address string) {
	t.Lock()
	defer t.Unlock()
	delete(t.sockets, address)
}

// Socket implements transport.ClosableSocket.
type Socket struct {
	transport *Transport
	address   string
	queue     chan transport.Packet
	closed    chan struct{}
	closeOnce sync.Once

	sync.Mutex
	ins  []transport.Packet
	outs []transport.Packet
}

// Close implements transport.ClosableSocket.
func (s *Socket) Close() error {
	err := fmt.Errorf("socket %s already closed", s.address)
	s.closeOnce.Do(func() {
		s.transport.remove(s.address)
		close(s.closed)
		err = nil
	})
	return err
}

// Send implements transport.Socket.
func (s *Socket) Send(dest string, pkt transport.Packet, timeout time.Duration) error {
	pkt = pkt.Copy()
	pkt.Header.Source = s.address

	s.Lock()
	s.outs = append(s.outs, pkt)
	s.Unlock()

	other, ok := s.transport.lookup(dest)
	if !ok {
		return nil
	}

	var expired <-chan time.Time
	if timeout != 0 {
		expired = time.After(timeout)
	}

	select {
	case other.queue <- pkt:
		return nil
	case <-other.closed:
		return nil
	case <-expired:
		return transport.TimeoutErr(timeout)
	}
}

// Recv implements transport.Socket.
func (s *Socket) Recv(timeout time.Duration) (transport.Packet, error) {
	var expired <-chan time.Time
	if timeout != 0 {
		expired = time.After(timeout)
	}

	select {
	case pkt := <-s.queue:
		s.Lock()
		s.ins = append(s.ins, pkt)
		s.Unlock()
		return pkt.Copy(), nil
	case <-s.closed:
		return transport.Packet{}, fmt.Errorf("socket %s closed", s.address)
	case <-expired:
		return transport.Packet{}, transport.TimeoutErr(timeout)
	}
}

// GetAddress implements transport.Socket.
func (s *Socket) GetAddress() string {
	return s.address
}

// GetIns implements transport.Socket.
func (s *Socket) GetIns() []transport.Packet {
	s.Lock()
	defer s.Unlock()
	return copyAll(s.ins)
}

// GetOuts implements transport.Socket.
func (s *Socket) GetOuts() []transport.Packet {
	s.Lock()
	defer s.Unlock()
	return copyAll(s.outs)
}

func copyAll(pkts []transport.Packet) []transport.Packet {
	res := make([]transport.Packet, len(pkts))
	for i, pkt := range pkts {
		res[i] = pkt.Copy()
	}
	return res
}
