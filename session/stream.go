package session

import "io"

// DecodeStream is the external collaborator this engine relies on to turn a
// byte stream into a stream of decoded MessagePack values. Decode returns
// one fully-decoded value per call, buffering partial items internally, and
// returns io.EOF when the underlying reader is exhausted cleanly.
//
// This engine treats the byte-level codec as out of scope (spec.md §1); the
// mprpccodec package ships one concrete implementation.
type DecodeStream interface {
	Decode() (any, error)
}

// EncodeStream is the external collaborator that turns a stream of values
// into a stream of bytes, writing one chunk per Encode call.
type EncodeStream interface {
	Encode(v any) error
}

// Codec constructs a DecodeStream/EncodeStream pair bound to a specific
// reader/writer. Session takes a Codec explicitly rather than assuming a
// default, matching spec.md's framing of the wire codec as an external
// collaborator: callers wire in whichever codec they want (mprpccodec's is
// the one this module ships).
type Codec interface {
	NewDecodeStream(r io.Reader) DecodeStream
	NewEncodeStream(w io.Writer) EncodeStream
}
