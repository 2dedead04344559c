package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_Message_generateResponse(t *testing.T) {
	f := NewFactory()
	self := NewPeer("127.0.0.1", "4000")
	req := f.CreateRequest(QueryType, self)

	require.True(t, req.IsRequest())
	require.Len(t, req.TransactionID(), IDLength)
	require.Equal(t, []Peer{self}, req.Peers)

	resp, err := req.GenerateResponse()
	require.NoError(t, err)
	require.False(t, resp.IsRequest())
	require.Equal(t, req.TransactionID(), resp.CorrelationID())
	require.Empty(t, resp.TransactionID())
	require.Equal(t, QueryType, resp.RequestType())
	require.Empty(t, resp.Peers)

	_, err = resp.GenerateResponse()
	require.True(t, errors.Is(err, ErrNotARequest))
}

func Test_Factory_transactionIDsNeverCollide(t *testing.T) {
	f := NewFactory()
	seen := map[string]struct{}{}
	for i := 0; i < 200; i++ {
		msg := f.CreateRequest(NotifyType)
		_, ok := seen[msg.TransactionID()]
		require.False(t, ok)
		seen[msg.TransactionID()] = struct{}{}
	}

	msg := f.CreateRequest(GetType)
	first := msg.TransactionID()
	second := f.GenerateTransactionID(msg)
	require.NotEqual(t, first, second)
	require.Equal(t, second, msg.TransactionID())
}

func Test_Message_payloadSetters(t *testing.T) {
	msg := NewFactory().CreateRequest(BroadcastFileListType)
	files := []FileInfo{NewFileInfo("a", []byte("hello"))}
	msg.SetFileList(files)
	msg.SetData([]byte("data"))
	msg.AddPeer(NewPeer("127.0.0.1", "1"))

	files[0].Name = "changed"
	require.Equal(t, "a", msg.Files[0].Name)
	require.Equal(t, "data", string(msg.Data))
	require.Len(t, msg.Peers, 1)

	cp := msg.Copy()
	cp.Data[0] = 'D'
	require.Equal(t, "data", string(msg.Data))
}

func Test_RequestObject_destination(t *testing.T) {
	p := NewPeer("10.0.0.1", "4000")
	msg := NewFactory().CreateRequest(NotifyType)

	req := NewRequestTo(msg, p)
	require.Equal(t, "10.0.0.1:4000", req.Destination())
	require.Equal(t, "10.0.0.1", req.ClientIP())
	require.False(t, req.IsLocal())

	inbound := RequestObject{Message: msg, Conn: "192.168.1.7:5555"}
	require.Equal(t, "192.168.1.7", inbound.ClientIP())
	require.Equal(t, "192.168.1.7:5555", inbound.Destination())

	require.True(t, RequestObject{Message: msg}.IsLocal())
}
