package impl

import (
	"context"
	"errors"
	"fmt"

	"go.dedis.ch/peerpaste/aggregator"
	"go.dedis.ch/peerpaste/chord"
	"go.dedis.ch/peerpaste/task"
	"go.dedis.ch/peerpaste/transport"
	"go.dedis.ch/peerpaste/types"
)

// Send implements task.Sender. The message is encoded and written to the
// destination of the envelope.
func (n *node) Send(req types.RequestObject) error {
	dest := req.Destination()
	if dest == "" {
		return fmt.Errorf("send error: %s has no destination", req.Message)
	}
	payload, err := n.codec.Encode(req.Message)
	if err != nil {
		return fmt.Errorf("send error: %w", err)
	}
	pkt := transport.Packet{
		Header:  transport.Header{Source: n.addr, Destination: dest},
		Payload: payload,
	}
	if err := n.sock.Send(dest, pkt, n.conf.SendTimeout); err != nil {
		return fmt.Errorf("send error: %w", err)
	}
	return nil
}

// listenDaemon reads the socket until the node stops. Every message is
// dispatched on the pool.
func (n *node) listenDaemon(ctx context.Context) error {
	for !n.isKilled() && ctx.Err() == nil {
		pkt, err := n.sock.Recv(n.conf.RecvTimeout)
		if errors.Is(err, transport.TimeoutErr(0)) {
			continue
		}
		if err != nil {
			if n.isKilled() {
				break
			}
			n.Warn().Err(err).Msg("failed to receive")
			continue
		}

		msg, err := n.codec.Decode(pkt.Payload)
		if err != nil {
			n.Warn().Err(err).Str("from", pkt.Header.Source).Msg("dropped undecodable packet")
			continue
		}
		in := types.RequestObject{Message: msg, Conn: pkt.Header.Source}
		n.Trace().Msgf("received %s from %s", msg, pkt.Header.Source)

		if !n.pool.Submit(func() { n.dispatch(in) }) {
			break
		}
	}
	n.Debug().Msg("listen daemon stopped")
	return nil
}

// dispatch routes an inbound message. Requests are served by the ring, or
// by the data plane for the types the ring does not know. Responses go to
// the task awaiting them, or to the aggregation they complete.
func (n *node) dispatch(in types.RequestObject) {
	if in.IsRequest() {
		var err error
		if chord.Serves(in.RequestType()) {
			err = n.chord.HandleRequest(in)
		} else {
			err = n.handleData(in)
		}
		if err != nil {
			n.Warn().Err(err).Str("from", in.Conn).Msg("rejected request")
		}
		return
	}

	if n.engine.Deliver(in) {
		return
	}

	result, done, err := n.aggr.Deliver(in)
	switch {
	case errors.Is(err, aggregator.ErrUnmatched):
		n.Debug().Msgf("correlation miss: %s", in.Message)
	case err != nil:
		n.Warn().Err(err).Msg("aggregation failed")
		n.abort(result, "")
	case done:
		n.emit(result)
	}
}

// emit acts on the result of an aggregation: a local result is handed to
// its continuation, a request is sent on, and a response goes back to the
// client.
func (n *node) emit(result types.RequestObject) {
	switch {
	case result.IsLocal():
		result.Call(result)

	case result.IsRequest():
		call := task.NewCall(result)
		call.AtFinish(func(t task.Task) {
			if t.State() == task.Done {
				result.Call(call.Response())
				return
			}
			result.Call(result)
		})
		n.engine.Start(call)

	default:
		if err := n.Send(result); err != nil {
			n.Warn().Err(err).Msg("failed to answer aggregation")
		}
	}
}

// abort gives up on orig. A local continuation is called with the request
// itself; a remote client is answered with code, when set.
func (n *node) abort(orig types.RequestObject, code string) {
	if orig.Message == nil {
		return
	}
	if orig.Handler != nil || orig.IsLocal() {
		orig.Call(orig)
		return
	}
	if code == "" || !orig.IsRequest() {
		return
	}
	resp, err := orig.Message.GenerateResponse()
	if err != nil {
		return
	}
	resp.Header.ResponseCode = code
	if err := n.Send(orig.WithMessage(resp)); err != nil {
		n.Warn().Err(err).Msg("failed to abort aggregation")
	}
}
