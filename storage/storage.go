package storage

import (
	"go.dedis.ch/peerpaste/types"
	"golang.org/x/xerrors"
)

// ErrNotFound is returned when no paste is stored under a name.
var ErrNotFound = xerrors.New("paste not found")

// Storage holds the pastes of a node, addressed by name.
type Storage interface {
	Exists(name string) bool
	Get(name string) ([]byte, error)
	Put(data []byte, name string) error
	Remove(name string) error
	// Files lists what is stored, sorted by name.
	Files() []types.FileInfo
	Close() error
}
