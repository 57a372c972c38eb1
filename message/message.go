// Package message defines the MessagePack-RPC wire envelope.
//
// A Message is one of three tagged tuples — Request, Response, or
// Notification — matching the shapes fixed by the MessagePack-RPC protocol.
// This package only deals in already-decoded values (an EncodeStream /
// DecodeStream pair does the byte-level work elsewhere); Classify and
// IsMessage are the boundary between "some decoded value" and "a value this
// engine knows how to route".
package message

import "fmt"

// Kind identifies which of the three MessagePack-RPC tuple shapes a Message is.
type Kind int

const (
	// KindRequest is a [0, msgid, method, params] tuple.
	KindRequest Kind = 0
	// KindResponse is a [1, msgid, error, result] tuple.
	KindResponse Kind = 1
	// KindNotification is a [2, method, params] tuple.
	KindNotification Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	case KindNotification:
		return "notification"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Request is a MessagePack-RPC request: [0, msgid, method, params].
type Request struct {
	ID     uint32
	Method string
	Params []any
}

// Response is a MessagePack-RPC response: [1, msgid, error, result].
//
// By convention exactly one of Error/Result is non-nil; this package does
// not enforce that on decode (the dispatch path is what emits one nil).
type Response struct {
	ID     uint32
	Error  any
	Result any
}

// Notification is a MessagePack-RPC notification: [2, method, params].
type Notification struct {
	Method string
	Params []any
}

// NewRequest builds a Request. params may be nil, meaning no arguments.
func NewRequest(id uint32, method string, params []any) *Request {
	if params == nil {
		params = []any{}
	}
	return &Request{ID: id, Method: method, Params: params}
}

// NewResponse builds a successful Response (Error is nil).
func NewResponse(id uint32, result any) *Response {
	return &Response{ID: id, Result: result}
}

// NewErrorResponse builds a failed Response (Result is nil).
func NewErrorResponse(id uint32, err any) *Response {
	return &Response{ID: id, Error: err}
}

// NewNotification builds a Notification. params may be nil, meaning no arguments.
func NewNotification(method string, params []any) *Notification {
	if params == nil {
		params = []any{}
	}
	return &Notification{Method: method, Params: params}
}

// Encode returns the wire-shaped tuple for m, ready to be handed to an
// EncodeStream. The returned value is always []any with the tag as its
// first element, matching the shapes in the protocol table exactly.
func Encode(m any) ([]any, error) {
	switch v := m.(type) {
	case *Request:
		return []any{int(KindRequest), v.ID, v.Method, toParamsSlice(v.Params)}, nil
	case *Response:
		return []any{int(KindResponse), v.ID, v.Error, v.Result}, nil
	case *Notification:
		return []any{int(KindNotification), v.Method, toParamsSlice(v.Params)}, nil
	default:
		return nil, fmt.Errorf("message: %T is not a Request, Response, or Notification", m)
	}
}

func toParamsSlice(p []any) []any {
	if p == nil {
		return []any{}
	}
	return p
}

// IsMessage reports whether v is a decoded value shaped like one of the
// three MessagePack-RPC tuples: an array whose first element is 0, 1, or 2
// and whose remaining elements match that variant's arity and coarse type.
func IsMessage(v any) bool {
	_, _, ok := Classify(v)
	return ok
}

// Classify inspects a decoded value and, if it matches one of the three
// MessagePack-RPC shapes, returns its Kind and a typed *Request, *Response,
// or *Notification. ok is false for anything else, including well-formed
// arrays with an unrecognized tag.
func Classify(v any) (kind Kind, msg any, ok bool) {
	arr, isArr := asSlice(v)
	if !isArr || len(arr) == 0 {
		return 0, nil, false
	}

	tag, isInt := asInt(arr[0])
	if !isInt {
		return 0, nil, false
	}

	switch Kind(tag) {
	case KindRequest:
		if len(arr) != 4 {
			return 0, nil, false
		}
		id, idOK := asUint32(arr[1])
		method, methodOK := arr[2].(string)
		params, paramsOK := asSlice(arr[3])
		if !idOK || !methodOK || !paramsOK {
			return 0, nil, false
		}
		return KindRequest, &Request{ID: id, Method: method, Params: params}, true

	case KindResponse:
		if len(arr) != 4 {
			return 0, nil, false
		}
		id, idOK := asUint32(arr[1])
		if !idOK {
			return 0, nil, false
		}
		return KindResponse, &Response{ID: id, Error: arr[2], Result: arr[3]}, true

	case KindNotification:
		if len(arr) != 3 {
			return 0, nil, false
		}
		method, methodOK := arr[1].(string)
		params, paramsOK := asSlice(arr[2])
		if !methodOK || !paramsOK {
			return 0, nil, false
		}
		return KindNotification, &Notification{Method: method, Params: params}, true

	default:
		return 0, nil, false
	}
}

// asSlice accepts a decoded array in its []any shape only; typed slices
// (e.g. []string) are not recognized.
func asSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	default:
		return nil, false
	}
}

// asInt accepts any of the integer/float shapes a MessagePack decoder might
// produce for a small tag value.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		return int(n), true
	case float32:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// asUint32 accepts any integer-ish decoded value that fits in the msgid's
// unsigned 32-bit range.
func asUint32(v any) (uint32, bool) {
	n, ok := asInt(v)
	if !ok || n < 0 || uint64(n) > uint64(^uint32(0)) {
		return 0, false
	}
	return uint32(n), true
}
