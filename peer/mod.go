package peer

import (
	"context"
	"time"

	"go.dedis.ch/peerpaste/chord"
	"go.dedis.ch/peerpaste/storage"
	"go.dedis.ch/peerpaste/transport"
	"go.dedis.ch/peerpaste/types"
)

// Peer is a PeerPaste node: a member of the ring that stores and serves
// pastes.
type Peer interface {
	Service
	Ring
	Pastebin
}

// Factory is the type of function used to create a new peer.
type Factory func(Configuration) (Peer, error)

// Service defines the lifecycle of a peer.
type Service interface {
	// Start starts the node. It returns once the daemons run.
	Start() error
	// Stop stops the node and waits for the daemons to return.
	Stop() error
}

// Ring is the membership side of a peer.
type Ring interface {
	// GetAddr returns the address the node listens on.
	GetAddr() string
	// Self returns the identity of the node on the ring.
	Self() types.Peer
	// CreateRing makes the node a ring of its own.
	CreateRing()
	// Join links the node into the ring of the node at addr.
	Join(ctx context.Context, addr string) error
	// Lookup resolves the peer responsible for id.
	Lookup(ctx context.Context, id string) (types.Peer, error)
	// Locate asks the node at addr which peer would succeed us on its ring,
	// without joining it.
	Locate(ctx context.Context, addr string) (types.Peer, error)
	// RoutingInfo returns a snapshot of the routing table.
	RoutingInfo() chord.Snapshot
	// WaitUntilValid blocks until the node is linked into a ring.
	WaitUntilValid(ctx context.Context) error
}

// Pastebin is the data side of a peer. addr is the node the operation
// enters the ring through, the local node when empty.
type Pastebin interface {
	// Put stores data on the ring and returns its id.
	Put(ctx context.Context, addr string, data []byte) (string, error)
	// Get fetches the paste stored under id.
	Get(ctx context.Context, addr string, id string) ([]byte, error)
	// PutEncrypted stores data encrypted under a fresh key and returns the
	// key followed by the id of the ciphertext.
	PutEncrypted(ctx context.Context, addr string, data []byte) (string, error)
	// GetEncrypted fetches and decrypts what PutEncrypted returned.
	GetEncrypted(ctx context.Context, addr string, keyAndID string) ([]byte, error)
	// BroadcastFiles replicates our pastes around the ring.
	BroadcastFiles()
	// Files lists the pastes stored locally.
	Files() []types.FileInfo
}

// Configuration is the configuration of a node.
type Configuration struct {
	Socket  transport.ClosableSocket
	Storage storage.Storage

	// Workers is the number of goroutines running task callbacks.
	Workers int
	// TaskTimeout is the lifetime of a task and of a pending aggregation.
	TaskTimeout time.Duration
	// SendTimeout bounds a socket write. 0 means no timeout.
	SendTimeout time.Duration
	// RecvTimeout is the period the listen daemon checks for shutdown.
	RecvTimeout time.Duration

	StabilizeInterval        time.Duration
	CheckPredecessorInterval time.Duration
	SweepInterval            time.Duration
	// BroadcastInterval is the period of file list replication. 0 disables
	// it.
	BroadcastInterval time.Duration

	// AdvertisedIP replaces an unspecified listen address in our identity
	// until the ring tells us how it sees us.
	AdvertisedIP string
}

// DefaultConfiguration returns the configuration of a node out of the box.
// Socket and Storage are left to the caller.
func DefaultConfiguration() Configuration {
	ring := chord.DefaultConfig()
	return Configuration{
		Workers:                  8,
		TaskTimeout:              10 * time.Second,
		SendTimeout:              time.Second,
		RecvTimeout:              100 * time.Millisecond,
		StabilizeInterval:        ring.StabilizeInterval,
		CheckPredecessorInterval: ring.CheckPredecessorInterval,
		SweepInterval:            ring.SweepInterval,
		AdvertisedIP:             "127.0.0.1",
	}
}
