// Package reservator implements the keyed one-shot handoff table that pairs
// a generated MessagePack-RPC msgid with the Response that eventually
// arrives for it.
//
// The shape follows internal/outbound.Dispatcher from the mcp-server-go
// codebase this package was adapted from: a map from key to a one-shot
// pair of channels, guarded by a mutex, with a Close-style bulk failure
// path for shutdown.
package reservator

import (
	"context"
	"errors"
	"sync"

	"github.com/arn-lab/msgpackrpc/message"
)

// ErrAlreadyReserved is returned by Reserve when msgid already has a
// pending waiter.
var ErrAlreadyReserved = errors.New("reservator: msgid is already reserved")

// ErrNotReserved is returned by Resolve when msgid has no pending waiter —
// the arriving Response is an orphan.
var ErrNotReserved = errors.New("reservator: msgid is not reserved")

// ErrCancelled is delivered to every still-pending Waiter by CancelAll.
var ErrCancelled = errors.New("reservator: cancelled")

type pending struct {
	respCh chan *message.Response
	errCh  chan error
}

// Table is a map[uint32]*pending, safe for concurrent use.
type Table struct {
	mu      sync.Mutex
	pending map[uint32]*pending
}

// New returns an empty Table.
func New() *Table {
	return &Table{pending: make(map[uint32]*pending)}
}

// Waiter is returned by Reserve and resolves exactly once, either to the
// matching Response or to an error (context cancellation or CancelAll).
type Waiter struct {
	id uint32
	p  *pending
	t  *Table
}

// Reserve creates a Pending entry for id and returns a Waiter that exactly
// one caller may await. It fails with ErrAlreadyReserved if id is currently
// occupied.
func (t *Table) Reserve(id uint32) (*Waiter, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.pending[id]; exists {
		return nil, ErrAlreadyReserved
	}

	p := &pending{
		respCh: make(chan *message.Response, 1),
		errCh:  make(chan error, 1),
	}
	t.pending[id] = p
	return &Waiter{id: id, p: p, t: t}, nil
}

// Resolve delivers resp to the waiter reserved under id and removes
// the entry. It fails with ErrNotReserved if no such entry exists — the
// caller (Session's consumer pipeline) reports that as an orphan Response.
func (t *Table) Resolve(id uint32, resp *message.Response) error {
	t.mu.Lock()
	p, ok := t.pending[id]
	if ok {
		delete(t.pending, id)
	}
	t.mu.Unlock()

	if !ok {
		return ErrNotReserved
	}
	p.respCh <- resp
	return nil
}

// CancelAll fails every currently pending Waiter with err (ErrCancelled if
// err is nil) and empties the table. Used by Session shutdown to unblock
// every in-flight recv.
func (t *Table) CancelAll(err error) {
	if err == nil {
		err = ErrCancelled
	}

	t.mu.Lock()
	all := t.pending
	t.pending = make(map[uint32]*pending)
	t.mu.Unlock()

	for _, p := range all {
		p.errCh <- err
	}
}

// release removes id from the table without delivering anything, used when
// a Wait is abandoned via context cancellation.
func (t *Table) release(id uint32) {
	t.mu.Lock()
	delete(t.pending, id)
	t.mu.Unlock()
}

// Wait blocks until the reserved Response arrives, ctx is cancelled, or the
// Table is torn down via CancelAll.
func (w *Waiter) Wait(ctx context.Context) (*message.Response, error) {
	select {
	case resp := <-w.p.respCh:
		return resp, nil
	case err := <-w.p.errCh:
		return nil, err
	case <-ctx.Done():
		w.t.release(w.id)
		return nil, ctx.Err()
	}
}
