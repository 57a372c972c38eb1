// Package client builds a request/response Call and fire-and-forget Notify
// API on top of package session, generating msgids via a pluggable Indexer
// and deserializing wire error payloads via a pluggable ErrorDeserializer.
package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/arn-lab/msgpackrpc/message"
	"github.com/arn-lab/msgpackrpc/session"
)

// ErrorDeserializer converts a Response's wire Error payload into a Go
// error. The default is identity when the payload is already an error, and
// fmt.Errorf("%v") otherwise — mirroring session's default ErrorSerializer
// being the identity function.
type ErrorDeserializer func(payload any) error

func defaultErrorDeserializer(payload any) error {
	if payload == nil {
		return nil
	}
	if err, ok := payload.(error); ok {
		return err
	}
	return fmt.Errorf("%v", payload)
}

// Client issues Requests and Notifications over a running Session.
type Client struct {
	sess    *session.Session
	indexer Indexer
	deser   ErrorDeserializer
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithIndexer overrides the default AtomicIndexer.
func WithIndexer(idx Indexer) Option {
	return func(c *Client) {
		if idx != nil {
			c.indexer = idx
		}
	}
}

// WithErrorDeserializer overrides the default ErrorDeserializer.
func WithErrorDeserializer(f ErrorDeserializer) Option {
	return func(c *Client) {
		if f != nil {
			c.deser = f
		}
	}
}

// New wraps sess, which must already be Running (or about to be Started by
// the caller) for Call/Notify to succeed.
func New(sess *session.Session, opts ...Option) *Client {
	c := &Client{
		sess:    sess,
		indexer: NewAtomicIndexer(),
		deser:   defaultErrorDeserializer,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Call sends a Request for method with params and blocks until the
// correlated Response arrives, ctx is done, or the Session terminates.
//
// The msgid is reserved in the Session's Reservator before the Request is
// sent, closing the race window in which a very fast peer could answer
// before the Client is listening for it.
func (c *Client) Call(ctx context.Context, method string, params ...any) (any, error) {
	if c.sess.State() == session.StateTerminated {
		if err := c.sess.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTerminated, err)
		}
		return nil, ErrTerminated
	}

	id, err := c.indexer.Next(ctx)
	if err != nil {
		return nil, fmt.Errorf("client: generate msgid: %w", err)
	}

	waiter, err := c.sess.Recv(id)
	if err != nil {
		return nil, fmt.Errorf("client: reserve msgid %d: %w", id, err)
	}

	if err := c.sess.Send(message.NewRequest(id, method, params)); err != nil {
		return nil, fmt.Errorf("client: send request %q: %w", method, err)
	}

	resp, err := waiter.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("client: await response to %q: %w", method, err)
	}

	if resp.Error != nil {
		return nil, c.deser(resp.Error)
	}
	return resp.Result, nil
}

// Notify sends a Notification for method with params. It does not wait for
// any acknowledgement — MessagePack-RPC notifications have no Response.
func (c *Client) Notify(ctx context.Context, method string, params ...any) error {
	if c.sess.State() == session.StateTerminated {
		if err := c.sess.Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrTerminated, err)
		}
		return ErrTerminated
	}

	if err := c.sess.Send(message.NewNotification(method, params)); err != nil {
		return fmt.Errorf("client: send notification %q: %w", method, err)
	}
	return nil
}

// ErrTerminated is returned to a Call/Notify made against a Session that
// has already reached StateTerminated, wrapping the Session's own terminal
// error when it has one.
var ErrTerminated = errors.New("client: session has terminated")
