package types

import (
	"net"
)

// RequestObject is the envelope of a single send or receive. It owns its
// message and is addressed either to a Peer or to the return address of an
// established exchange.
type RequestObject struct {
	Message *Message
	// Peer is the destination when talking to a known peer.
	Peer *Peer
	// Conn is the address an inbound message came from. Responses go back
	// through it.
	Conn string
	// Handler is the continuation of a locally originated request.
	Handler func(RequestObject)
}

// NewRequestTo addresses msg to p.
func NewRequestTo(msg *Message, p Peer) RequestObject {
	return RequestObject{Message: msg, Peer: &p}
}

// WithMessage returns the same envelope carrying msg.
func (r RequestObject) WithMessage(msg *Message) RequestObject {
	r.Message = msg
	return r
}

// Destination returns the address the envelope is sent to, empty when the
// envelope stays local.
func (r RequestObject) Destination() string {
	if r.Conn != "" {
		return r.Conn
	}
	if r.Peer != nil {
		return r.Peer.Addr()
	}
	return ""
}

// IsLocal is true for envelopes without a destination.
func (r RequestObject) IsLocal() bool {
	return r.Destination() == ""
}

// ClientIP returns the IP of the remote end.
func (r RequestObject) ClientIP() string {
	if r.Conn != "" {
		host, _, err := net.SplitHostPort(r.Conn)
		if err == nil {
			return host
		}
		return r.Conn
	}
	if r.Peer != nil {
		return r.Peer.IP
	}
	return ""
}

// IsRequest tells whether the carried message is a request.
func (r RequestObject) IsRequest() bool {
	return r.Message != nil && r.Message.IsRequest()
}

// RequestType returns the type of the carried message.
func (r RequestObject) RequestType() string {
	if r.Message == nil {
		return ""
	}
	return r.Message.RequestType()
}

// CorrelationID returns the correlation id of the carried message.
func (r RequestObject) CorrelationID() string {
	if r.Message == nil {
		return ""
	}
	return r.Message.CorrelationID()
}

// Call runs the continuation, if any.
func (r RequestObject) Call(resp RequestObject) {
	if r.Handler != nil {
		r.Handler(resp)
	}
}
