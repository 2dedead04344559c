package types

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// FileInfo describes a paste held by a storage.
type FileInfo struct {
	Name   string `json:"name"`
	Hash   string `json:"hash"`
	Size   uint64 `json:"size"`
	Offset uint64 `json:"offset,omitempty"`
}

// NewFileInfo describes content stored under name.
func NewFileInfo(name string, content []byte) FileInfo {
	return FileInfo{Name: name, Hash: ContentHash(content), Size: uint64(len(content))}
}

// ContentHash is the integrity hash of a file's content.
func ContentHash(content []byte) string {
	sum := blake3.Sum256(content)
	return hex.EncodeToString(sum[:])
}
