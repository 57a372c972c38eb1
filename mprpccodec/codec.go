// Package mprpccodec is the concrete MessagePack wire codec this module
// ships, built on github.com/hashicorp/go-msgpack/codec — the same handle
// used by HashiCorp's own msgpackrpc net/rpc ClientCodec/ServerCodec
// adapters. It implements session.Codec; session has no reciprocal
// dependency on this package, so there is no import cycle.
package mprpccodec

import (
	"io"

	"github.com/hashicorp/go-msgpack/codec"

	"github.com/arn-lab/msgpackrpc/session"
)

// Codec constructs decode/encode streams bound to a MsgpackHandle. Build one
// with New; the zero value has no handle. New wires up the RawToString setting HashiCorp's
// msgpackrpc adapters use so decoded MessagePack strings come back as Go
// strings rather than []byte, matching what message.Classify expects for
// method names.
type Codec struct {
	handle *codec.MsgpackHandle
}

// New returns a Codec using the same MsgpackHandle settings as
// hashicorp/net-rpc-msgpackrpc's NewCodec.
func New() *Codec {
	h := &codec.MsgpackHandle{}
	h.RawToString = true
	h.WriteExt = true
	return &Codec{handle: h}
}

func (c *Codec) NewDecodeStream(r io.Reader) session.DecodeStream {
	return &DecodeStream{dec: codec.NewDecoder(r, c.handle)}
}

func (c *Codec) NewEncodeStream(w io.Writer) session.EncodeStream {
	return &EncodeStream{enc: codec.NewEncoder(w, c.handle)}
}

// DecodeStream decodes one MessagePack value per Decode call.
type DecodeStream struct {
	dec *codec.Decoder
}

// Decode reads exactly one MessagePack-encoded value, generically shaped
// (arrays decode to []any, maps to map[string]any). It returns io.EOF once
// the underlying reader is exhausted between values.
func (d *DecodeStream) Decode() (any, error) {
	var v any
	if err := d.dec.Decode(&v); err != nil {
		return nil, err
	}
	return normalize(v), nil
}

// EncodeStream writes one MessagePack-encoded value per Encode call.
type EncodeStream struct {
	enc *codec.Encoder
}

func (e *EncodeStream) Encode(v any) error {
	return e.enc.Encode(v)
}

// normalize walks a decoded value converting the go-msgpack library's
// []interface{}/map[interface{}]interface{} shapes into the plain
// []any/map[string]any shapes message.Classify expects, recursing into
// nested params/result payloads.
func normalize(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			if ks, ok := k.(string); ok {
				out[ks] = normalize(e)
			}
		}
		return out
	default:
		return t
	}
}
