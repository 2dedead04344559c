package wire

import (
	"encoding/json"

	"github.com/klauspost/compress/zstd"
	"go.dedis.ch/peerpaste/types"
	"golang.org/x/xerrors"
)

// Codec turns messages into compressed datagram payloads and back.
type Codec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewCodec returns a codec safe for concurrent use.
func NewCodec() (*Codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, xerrors.Errorf("failed to create encoder: %v", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, xerrors.Errorf("failed to create decoder: %v", err)
	}
	return &Codec{enc: enc, dec: dec}, nil
}

func (c *Codec) Encode(msg *types.Message) ([]byte, error) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal %s: %v", msg, err)
	}
	return c.enc.EncodeAll(raw, nil), nil
}

func (c *Codec) Decode(buf []byte) (*types.Message, error) {
	raw, err := c.dec.DecodeAll(buf, nil)
	if err != nil {
		return nil, xerrors.Errorf("failed to decompress message: %v", err)
	}
	var msg types.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, xerrors.Errorf("failed to unmarshal message: %v", err)
	}
	return &msg, nil
}

func (c *Codec) Close() {
	c.enc.Close()
	c.dec.Close()
}
