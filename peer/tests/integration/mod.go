package integration

import (
	"go.dedis.ch/peerpaste/peer"
	"go.dedis.ch/peerpaste/peer/impl"
	"go.dedis.ch/peerpaste/transport"
	"go.dedis.ch/peerpaste/transport/udp"
)

var peerFac peer.Factory = impl.NewPeer

var udpFac = func() transport.Transport { return udp.NewUDP() }
