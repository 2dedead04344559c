package unit

import (
	"go.dedis.ch/peerpaste/peer"
	"go.dedis.ch/peerpaste/peer/impl"
)

var peerFac peer.Factory = impl.NewPeer
