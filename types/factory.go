package types

import (
	"encoding/hex"
	"strconv"
	"sync/atomic"

	"github.com/zeebo/blake3"
)

// Factory creates requests and owns the salt that keeps their transaction
// ids unique.
type Factory struct {
	salt uint64
}

// NewFactory returns a factory whose salt starts at zero.
func NewFactory() *Factory {
	return &Factory{}
}

// CreateRequest builds a request of the given type carrying peers, with a
// fresh transaction id.
func (f *Factory) CreateRequest(requestType string, peers ...Peer) *Message {
	msg := &Message{Header: Header{IsRequest: true, RequestType: requestType}}
	if len(peers) > 0 {
		msg.SetPeers(peers)
	}
	f.GenerateTransactionID(msg)
	return msg
}

// GenerateTransactionID assigns a new transaction id to msg and returns it.
// Every call yields a different id, so it must be called once per send.
func (f *Factory) GenerateTransactionID(msg *Message) string {
	salt := atomic.AddUint64(&f.salt, 1)
	sum := blake3.Sum256([]byte(msg.canonical() + strconv.FormatUint(salt, 10)))
	msg.Header.TransactionID = hex.EncodeToString(sum[:])
	return msg.Header.TransactionID
}
