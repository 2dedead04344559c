package types

import (
	"fmt"
	"net"
)

// Peer is a member of the ring.
type Peer struct {
	ID   string `json:"id"`
	IP   string `json:"ip"`
	Port string `json:"port"`
}

// NewPeer builds a peer whose id is derived from its address.
func NewPeer(ip, port string) Peer {
	return Peer{ID: HashID(ip, port), IP: ip, Port: port}
}

// PeerFromAddr splits a host:port address. The id is left empty, it is
// learned from the network.
func PeerFromAddr(addr string) (Peer, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return Peer{}, fmt.Errorf("peer from addr error: %w", err)
	}
	return Peer{IP: host, Port: port}, nil
}

// Equal compares peers by id.
func (p Peer) Equal(other Peer) bool {
	return p.ID == other.ID
}

// Addr returns the dialable address of the peer.
func (p Peer) Addr() string {
	return net.JoinHostPort(p.IP, p.Port)
}

// Valid is true when every field is set and the id is a ring identifier.
func (p Peer) Valid() bool {
	return ValidID(p.ID) && p.IP != "" && p.Port != ""
}

func (p Peer) String() string {
	id := p.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("{%s %s}", id, p.Addr())
}
