package task

import "go.dedis.ch/peerpaste/types"

// KindCall tags a Call.
const KindCall Kind = "call"

// Call sends a single request and completes with its response.
type Call struct {
	*Base

	req  types.RequestObject
	resp types.RequestObject
}

// NewCall returns a task sending req once started.
func NewCall(req types.RequestObject) *Call {
	return &Call{
		Base: NewBase(KindCall),
		req:  req,
	}
}

// CreateRequest implements Task.
func (c *Call) CreateRequest() {
	c.Engine().Request(c, c.req, c.handleResponse)
}

func (c *Call) handleResponse(resp types.RequestObject) {
	c.resp = resp
	c.Complete()
}

// Response returns the response. It is only set once the call is done.
func (c *Call) Response() types.RequestObject {
	return c.resp
}
