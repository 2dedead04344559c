package types

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/xerrors"
)

// Request types understood by a node.
const (
	QueryType              = "query"
	FindSuccessorType      = "find_successor"
	GetSuccessorListType   = "get_successor_list"
	GetPredAndSuccListType = "get_predecessor_and_succ_list"
	GetSelfAndSuccListType = "get_self_and_successor_list"
	NotifyType             = "notify"
	CheckPredecessorType   = "check_predecessor"
	PutType                = "put"
	StoreType              = "store"
	GetType                = "get"
	GetInternalType        = "get_internal"
	PutEncryptedType       = "put_dummy"
	GetEncryptedType       = "get_dummy"
	BroadcastFileListType  = "broadcast_filelist"
	GetFileType            = "get_file"
)

// Response codes. An empty code means success.
const (
	CodeNotFound = "not_found"
	CodeTimeout  = "timeout"
)

// MaxPasteSize bounds the bytes a put carries. A paste travels in a single
// datagram, where incompressible content grows by about 16/9 through the
// base64 of the message and of the packet.
const MaxPasteSize = 32 * 1024

// ErrPasteTooLarge is returned for a paste over MaxPasteSize.
var ErrPasteTooLarge = xerrors.Errorf("paste larger than %d bytes", MaxPasteSize)

// ErrNotARequest is returned when a response is derived from a message that
// is already a response.
var ErrNotARequest = xerrors.New("message is not a request")

// Header carries the routing and correlation fields of a Message.
type Header struct {
	IsRequest     bool   `json:"is_request"`
	TTL           uint32 `json:"ttl"`
	RequestType   string `json:"request_type"`
	TransactionID string `json:"transaction_id,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
	Version       string `json:"version,omitempty"`
	ResponseCode  string `json:"response_code,omitempty"`
}

// Message is the unit exchanged between peers. A request is built by a
// Factory; a response is derived from its request with GenerateResponse.
type Message struct {
	Header Header     `json:"header"`
	Peers  []Peer     `json:"peers,omitempty"`
	Files  []FileInfo `json:"files,omitempty"`
	Data   []byte     `json:"data,omitempty"`
}

// GenerateResponse derives the response skeleton of a request. The
// transaction id of the request becomes the correlation id of the response.
func (m *Message) GenerateResponse() (*Message, error) {
	if !m.IsRequest() {
		return nil, xerrors.Errorf("generate response for %s: %w", m.Header.RequestType, ErrNotARequest)
	}
	return &Message{Header: Header{
		IsRequest:     false,
		TTL:           m.Header.TTL,
		RequestType:   m.Header.RequestType,
		CorrelationID: m.Header.TransactionID,
		Version:       m.Header.Version,
		ResponseCode:  m.Header.ResponseCode,
	}}, nil
}

// IsRequest tells whether the message expects a response.
func (m *Message) IsRequest() bool {
	return m.Header.IsRequest
}

// RequestType returns the type of the message.
func (m *Message) RequestType() string {
	return m.Header.RequestType
}

// TransactionID returns the id of a request.
func (m *Message) TransactionID() string {
	return m.Header.TransactionID
}

// CorrelationID returns the transaction id of the request a response answers.
func (m *Message) CorrelationID() string {
	return m.Header.CorrelationID
}

// AddPeer appends a peer to the message.
func (m *Message) AddPeer(p Peer) {
	m.Peers = append(m.Peers, p)
}

// SetPeers replaces the peers of the message.
func (m *Message) SetPeers(peers []Peer) {
	m.Peers = append([]Peer(nil), peers...)
}

// SetData replaces the payload.
func (m *Message) SetData(data []byte) {
	m.Data = append([]byte(nil), data...)
}

// SetFileList replaces the file list.
func (m *Message) SetFileList(files []FileInfo) {
	m.Files = append([]FileInfo(nil), files...)
}

// Copy returns a deep copy of the message.
func (m *Message) Copy() *Message {
	res := &Message{Header: m.Header}
	res.SetPeers(m.Peers)
	res.SetFileList(m.Files)
	res.SetData(m.Data)
	return res
}

// canonical is the content the transaction id is derived from.
func (m *Message) canonical() string {
	var b strings.Builder
	h := m.Header
	b.WriteString(strconv.FormatBool(h.IsRequest))
	b.WriteString(strconv.FormatUint(uint64(h.TTL), 10))
	b.WriteString(h.RequestType)
	b.WriteString(h.CorrelationID)
	b.WriteString(h.Version)
	b.WriteString(h.ResponseCode)
	for _, p := range m.Peers {
		b.WriteString(p.ID + p.IP + p.Port)
	}
	for _, f := range m.Files {
		b.WriteString(f.Name + f.Hash)
	}
	b.Write(m.Data)
	return b.String()
}

func (m *Message) String() string {
	dir := "req"
	id := m.Header.TransactionID
	if !m.IsRequest() {
		dir = "resp"
		id = m.Header.CorrelationID
	}
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("{%s %s %s peers=%d files=%d data=%dB}", dir, m.Header.RequestType, id,
		len(m.Peers), len(m.Files), len(m.Data))
}
