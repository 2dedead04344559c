package transport

import (
	"encoding/json"
	"fmt"
	"time"
)

// Transport creates sockets.
type Transport interface {
	CreateSocket(address string) (ClosableSocket, error)
}

// Socket sends and receives packets.
type Socket interface {
	// Send sends pkt to dest. A zero timeout means no timeout.
	Send(dest string, pkt Packet, timeout time.Duration) error
	// Recv blocks until a packet is received or the timeout is reached, in
	// which case it returns a TimeoutErr. A zero timeout means no timeout.
	Recv(timeout time.Duration) (Packet, error)
	// GetAddress returns the address the socket is bound to.
	GetAddress() string
	GetIns() []Packet
	GetOuts() []Packet
}

// ClosableSocket is a socket that can be closed.
type ClosableSocket interface {
	Socket
	Close() error
}

// Header is the transport level header of a packet. On reception Source is
// the address the packet actually came from.
type Header struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
}

// Packet is the unit exchanged by sockets. Payload is an encoded message.
type Packet struct {
	Header  Header `json:"header"`
	Payload []byte `json:"payload"`
}

func (p Packet) Marshal() ([]byte, error) {
	return json.Marshal(&p)
}

func (p *Packet) Unmarshal(buf []byte) error {
	return json.Unmarshal(buf, p)
}

// Copy returns a deep copy of the packet.
func (p Packet) Copy() Packet {
	return Packet{Header: p.Header, Payload: append([]byte(nil), p.Payload...)}
}

func (p Packet) String() string {
	return fmt.Sprintf("{%s -> %s %dB}", p.Header.Source, p.Header.Destination, len(p.Payload))
}

// TimeoutErr is returned when a socket operation timed out.
type TimeoutErr time.Duration

func (err TimeoutErr) Error() string {
	return fmt.Sprintf("timeout reached after %d", time.Duration(err))
}

// Is implements errors.Is: every TimeoutErr matches.
func (TimeoutErr) Is(err error) bool {
	_, ok := err.(TimeoutErr)
	return ok
}
