// Package session implements the full-duplex MessagePack-RPC engine: a
// consumer pipeline that decodes and dispatches inbound messages and a
// producer pipeline that encodes and writes outbound ones, joined by an
// internal queue and a Reservator that correlates Responses back to
// in-flight recv calls.
//
// The concurrency shape follows the mcp-server-go codebase this package was
// adapted from — a supervisor goroutine that joins per-message detached
// tasks before declaring the pipelines drained, context.CancelFunc pairs
// for the two loops, and hook callbacks that never abort the Session on
// their own failure.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/arn-lab/msgpackrpc/config"
	"github.com/arn-lab/msgpackrpc/dispatcher"
	"github.com/arn-lab/msgpackrpc/internal/logctx"
	"github.com/arn-lab/msgpackrpc/message"
	"github.com/arn-lab/msgpackrpc/reservator"
)

// State is one of the three lifecycle states a Session moves through.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Sentinel errors whose text is part of the wire/API contract (spec.md §6).
var (
	ErrNotRunning     = errors.New("Session is not running")
	ErrAlreadyRunning = errors.New("Session is already running")
	// ErrClosing is returned by an enqueue attempt made while the Session is
	// draining or has been force-aborted; the message was not written.
	ErrClosing = errors.New("Session is closing")
)

// InvalidMessageHook is called with any decoded value that fails
// message.IsMessage. It defaults to a no-op.
type InvalidMessageHook func(v any)

// MessageErrorHook is called when handling an otherwise-valid message
// fails — an orphan Response, a failed enqueue, or a Notification handler
// error. It defaults to a no-op. Hook failures are swallowed (spec.md §7).
type MessageErrorHook func(err error, msg any)

// ErrorSerializer converts a Dispatch failure into a MessagePack-encodable
// error payload for the wire Response. The default is identity: the error
// value itself is returned unchanged, matching spec.md §6's "default is
// identity" — callers whose codec cannot encode a bare Go error should
// supply one that does (e.g. return err.Error()).
type ErrorSerializer func(err error) any

func identitySerializer(err error) any { return err }

// Session is the engine described in spec.md §4.4.
type Session struct {
	id string

	r io.Reader
	w io.Writer
	dec DecodeStream
	enc EncodeStream

	cfg config.Config
	log *slog.Logger

	reservator *reservator.Table
	dispatch   atomic.Pointer[dispatcher.Table]

	hookMu           sync.RWMutex
	onInvalidMessage InvalidMessageHook
	onMessageError   MessageErrorHook
	errorSerializer  ErrorSerializer

	state atomic.Int32

	outboundCh chan any
	aborted    chan struct{}
	abortOnce  sync.Once
	closeMu    sync.RWMutex
	closed     atomic.Bool

	consumerCancel context.CancelFunc
	producerCancel context.CancelFunc

	consumerDone chan struct{}
	producerDone chan struct{}
	consumerErr  error
	producerErr  error

	taskWG sync.WaitGroup

	finalizeOnce sync.Once
	doneCh       chan struct{}
	finalErr     error
}

// Option configures a Session at construction time.
type Option func(*Session)

// WithConfig overrides the default Config (see package config).
func WithConfig(cfg config.Config) Option {
	return func(s *Session) { s.cfg = cfg }
}

// WithLogger overrides the default logger. Its Handler is wrapped in
// logctx.Handler so log lines emitted with a context carrying session or
// RPC-message data get a "sess"/"rpc" attribute group attached automatically.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = slog.New(logctx.Handler{Handler: l.Handler()})
		}
	}
}

// WithErrorSerializer overrides the default identity ErrorSerializer.
func WithErrorSerializer(f ErrorSerializer) Option {
	return func(s *Session) {
		if f != nil {
			s.errorSerializer = f
		}
	}
}

// WithDispatcher sets the initial Dispatcher table. If omitted, an empty
// one is created; SetDispatcher can replace it at any time, including
// while Running.
func WithDispatcher(t *dispatcher.Table) Option {
	return func(s *Session) {
		if t != nil {
			s.dispatch.Store(t)
		}
	}
}

// New constructs an Idle Session bound to r/w via the streams codec
// produces. Start must be called before Send/Recv/Wait/Shutdown/ForceShutdown
// become valid.
func New(r io.Reader, w io.Writer, codec Codec, opts ...Option) *Session {
	s := &Session{
		id:              uuid.NewString(),
		r:               r,
		w:               w,
		cfg:             config.Default(),
		log:             slog.New(logctx.Handler{Handler: slog.Default().Handler()}),
		reservator:      reservator.New(),
		errorSerializer: identitySerializer,
		aborted:         make(chan struct{}),
		consumerDone:    make(chan struct{}),
		producerDone:    make(chan struct{}),
		doneCh:          make(chan struct{}),
	}
	s.dispatch.Store(dispatcher.New())

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	s.dec = codec.NewDecodeStream(r)
	s.enc = codec.NewEncodeStream(w)
	s.outboundCh = make(chan any, queueCapacity(s.cfg))

	return s
}

func queueCapacity(cfg config.Config) int {
	if cfg.SendQueueCapacity <= 0 {
		return 1
	}
	return cfg.SendQueueCapacity
}

// ID returns the Session's process-unique identifier, attached to every log
// line the Session emits for correlation. Hooks are not passed it.
func (s *Session) ID() string { return s.id }

// State returns the Session's current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Err returns the terminal error, if any, once the Session has reached
// StateTerminated. It is nil for a clean shutdown (graceful or forced) and
// for the zero value before termination.
func (s *Session) Err() error { return s.finalErr }

// SetDispatcher atomically replaces the method table the consumer dispatches
// against. Safe to call at any time, including while Running.
func (s *Session) SetDispatcher(t *dispatcher.Table) {
	if t != nil {
		s.dispatch.Store(t)
	}
}

func (s *Session) currentDispatcher() *dispatcher.Table { return s.dispatch.Load() }

// SetOnInvalidMessage installs the hook called with values failing
// message.IsMessage.
func (s *Session) SetOnInvalidMessage(f InvalidMessageHook) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.onInvalidMessage = f
}

// SetOnMessageError installs the hook called when a valid message's
// handling fails (orphan Response, failed enqueue, Notification error).
func (s *Session) SetOnMessageError(f MessageErrorHook) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.onMessageError = f
}

func (s *Session) safeInvalidHook(v any) {
	s.hookMu.RLock()
	f := s.onInvalidMessage
	s.hookMu.RUnlock()
	if f == nil {
		return
	}
	defer func() { _ = recover() }()
	f(v)
}

func (s *Session) safeMessageErrorHook(err error, msg any) {
	s.hookMu.RLock()
	f := s.onMessageError
	s.hookMu.RUnlock()
	if f == nil {
		return
	}
	defer func() { _ = recover() }()
	f(err, msg)
}

// Start launches the consumer and producer pipelines, transitioning
// Idle -> Running. Cancelling ctx stops the producer loop; the consumer
// only notices it once a pending Decode returns, since nothing closes or
// interrupts the reader on ctx cancellation. It is not a per-call deadline.
func (s *Session) Start(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return ErrAlreadyRunning
	}

	consumerCtx, consumerCancel := context.WithCancel(ctx)
	producerCtx, producerCancel := context.WithCancel(ctx)
	s.consumerCancel = consumerCancel
	s.producerCancel = producerCancel

	go s.runProducer(producerCtx)
	go s.runConsumer(consumerCtx)
	go s.supervise()

	return nil
}

// Send enqueues m onto the internal outbound queue without waiting for wire
// transmission.
func (s *Session) Send(m any) error {
	if s.State() != StateRunning {
		return ErrNotRunning
	}
	return s.enqueue(m)
}

// Recv reserves msgid in the Reservator and returns a Waiter resolving to
// the eventual Response.
func (s *Session) Recv(msgid uint32) (*reservator.Waiter, error) {
	if s.State() != StateRunning {
		return nil, ErrNotRunning
	}
	return s.reservator.Reserve(msgid)
}

// Wait returns a channel closed once both pipelines have terminated.
func (s *Session) Wait() <-chan struct{} { return s.doneCh }

// enqueue writes item onto the outbound queue. It holds closeMu for the
// duration of the attempt so closeOutbound cannot close outboundCh out from
// under a send already in flight — closing a channel concurrently with a
// send on it panics, so the two must never race.
func (s *Session) enqueue(item any) error {
	if s.closed.Load() {
		return ErrClosing
	}
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closed.Load() {
		return ErrClosing
	}

	select {
	case s.outboundCh <- item:
		return nil
	case <-s.aborted:
		return ErrClosing
	}
}

// closeOutbound marks the outbound queue closed to new sends and closes
// outboundCh once every enqueue already in flight has returned. abortOnce
// closing s.aborted first unblocks anything parked in enqueue's select
// before closeMu.Lock is even requested, so this never has to wait for a
// send that has no way to complete.
func (s *Session) closeOutbound() {
	s.abortOnce.Do(func() { close(s.aborted) })
	s.closed.Store(true)
	s.closeMu.Lock()
	close(s.outboundCh)
	s.closeMu.Unlock()
}

// Shutdown performs a graceful shutdown: the consumer stops accepting new
// inbound messages, every Response already enqueued (including those still
// being produced by in-flight dispatches) is written to the writer, and
// then the Session terminates. It blocks until that has happened or ctx is
// done, whichever comes first.
func (s *Session) Shutdown(ctx context.Context) error {
	if s.State() != StateRunning {
		return ErrNotRunning
	}

	s.consumerCancel()
	s.stopReading()

	select {
	case <-s.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ForceShutdown aborts both pipelines immediately; outbound messages still
// in flight (queued or being produced by a detached dispatch) may be lost.
func (s *Session) ForceShutdown() error {
	if s.State() != StateRunning {
		return ErrNotRunning
	}

	s.consumerCancel()
	s.producerCancel()
	s.abortOnce.Do(func() { close(s.aborted) })
	s.stopReading()
	s.interruptWriting()

	<-s.doneCh
	return nil
}

// deadliner is the subset of net.Conn Session uses to interrupt a blocked
// Decode without tearing down the connection — important because r and w
// are frequently the same full-duplex net.Conn, and outstanding Responses
// still need to go out over w during a graceful Shutdown.
type deadliner interface {
	SetReadDeadline(t time.Time) error
}

// writeDeadliner is the write-side counterpart, used only by ForceShutdown:
// a blocked Encode's underlying Write needs its own interrupt, since
// cancelling the producer's context doesn't touch an in-progress syscall
// any more than it does for the consumer's Decode.
type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

func (s *Session) interruptWriting() {
	if dl, ok := s.w.(writeDeadliner); ok {
		_ = dl.SetWriteDeadline(time.Now())
	}
}

// stopReading unblocks a Decode call that's blocked on the network/pipe.
// Without this, cancelling the consumer's context alone would not interrupt
// an in-progress blocking read; io.Reader has no context-aware variant in
// the standard contract. When r supports read deadlines (net.Conn does),
// setting one in the past fails the current and every future Read without
// touching the write side. Only when r doesn't support that — and is not
// also the write side — do we fall back to closing it outright.
func (s *Session) stopReading() {
	if dl, ok := s.r.(deadliner); ok {
		_ = dl.SetReadDeadline(time.Now())
		return
	}
	if any(s.r) == any(s.w) {
		return
	}
	if closer, ok := s.r.(io.Closer); ok {
		_ = closer.Close()
	}
}

func (s *Session) stopWriting() {
	if closer, ok := s.w.(io.Closer); ok {
		_ = closer.Close()
	}
}

// runConsumer is the consumer pipeline: decode -> classify -> handle.
func (s *Session) runConsumer(ctx context.Context) {
	for {
		v, err := s.dec.Decode()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				// Clean end of stream, or our own cancellation (shutdown /
				// forceShutdown) closed the reader to interrupt Decode.
				// Both are the filtered sentinel case: the Session
				// terminates successfully.
				s.consumerErr = nil
			} else {
				s.consumerErr = fmt.Errorf("session: decode: %w", err)
			}
			close(s.consumerDone)
			return
		}

		kind, msg, ok := message.Classify(v)
		if !ok {
			s.safeInvalidHook(v)
			continue
		}

		switch kind {
		case message.KindRequest:
			req := msg.(*message.Request)
			s.taskWG.Add(1)
			go s.handleRequest(req)

		case message.KindResponse:
			resp := msg.(*message.Response)
			if err := s.reservator.Resolve(resp.ID, resp); err != nil {
				s.safeMessageErrorHook(fmt.Errorf("session: orphan response for msgid %d: %w", resp.ID, err), resp)
			}

		case message.KindNotification:
			notif := msg.(*message.Notification)
			s.taskWG.Add(1)
			go s.handleNotification(notif)
		}
	}
}

// handleRequest is the detached per-Request task: dispatch, then enqueue a
// Response carrying either the result or the serialized failure.
func (s *Session) handleRequest(req *message.Request) {
	defer s.taskWG.Done()

	ctx := s.logContext(&logctx.RPCMessage{
		Method: req.Method,
		ID:     fmt.Sprintf("%d", req.ID),
		Type:   "request",
	})
	s.log.DebugContext(ctx, "dispatching request")

	result, err := dispatcher.Dispatch(ctx, s.currentDispatcher(), req.Method, req.Params)

	var resp *message.Response
	if err != nil {
		s.hookMu.RLock()
		serialize := s.errorSerializer
		s.hookMu.RUnlock()
		resp = message.NewErrorResponse(req.ID, serialize(err))
	} else {
		resp = message.NewResponse(req.ID, result)
	}

	if err := s.enqueue(resp); err != nil {
		s.safeMessageErrorHook(fmt.Errorf("session: enqueue response for msgid %d: %w", req.ID, err), resp)
	}
}

// handleNotification is the detached per-Notification task: dispatch and
// discard the result; no reply is ever emitted.
func (s *Session) handleNotification(notif *message.Notification) {
	defer s.taskWG.Done()

	ctx := s.logContext(&logctx.RPCMessage{
		Method: notif.Method,
		Type:   "notification",
	})
	s.log.DebugContext(ctx, "dispatching notification")

	if _, err := dispatcher.Dispatch(ctx, s.currentDispatcher(), notif.Method, notif.Params); err != nil {
		s.safeMessageErrorHook(fmt.Errorf("session: notification handler for %q: %w", notif.Method, err), notif)
	}
}

// logContext attaches this Session's identity and, when given one, an
// in-flight RPC message's identity to ctx, so a logctx.Handler-wrapped
// logger can tag every line emitted while handling that message.
func (s *Session) logContext(msg *logctx.RPCMessage) context.Context {
	ctx := logctx.WithSessionData(context.Background(), &logctx.SessionData{
		SessionID: s.id,
		State:     s.State().String(),
	})
	if msg != nil {
		ctx = logctx.WithRPCMessage(ctx, msg)
	}
	return ctx
}

// runProducer is the producer pipeline: dequeue -> encode -> write.
func (s *Session) runProducer(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(s.producerDone)
			return

		case item, ok := <-s.outboundCh:
			if !ok {
				close(s.producerDone)
				return
			}

			wire, err := message.Encode(item)
			if err != nil {
				s.safeMessageErrorHook(fmt.Errorf("session: encode: %w", err), item)
				continue
			}
			if err := s.enc.Encode(wire); err != nil {
				if ctx.Err() != nil {
					// ForceShutdown interrupted the write: a clean abort.
					close(s.producerDone)
					return
				}
				s.producerErr = fmt.Errorf("session: write: %w", err)
				s.safeMessageErrorHook(s.producerErr, item)
				// The writer is gone; there is no point letting the
				// consumer keep running either.
				s.consumerCancel()
				close(s.producerDone)
				return
			}
		}
	}
}

// supervise runs the graceful drain-and-terminate sequence: it fires once
// the consumer has stopped (naturally or via Shutdown/ForceShutdown
// cancelling it), joins every detached per-message task so their Responses
// have all been enqueued, closes the outbound queue, waits for the producer
// to drain it, and finalizes the Session.
func (s *Session) supervise() {
	<-s.consumerDone

	s.taskWG.Wait()
	s.closeOutbound()

	<-s.producerDone

	err := s.consumerErr
	if err == nil {
		err = s.producerErr
	}
	s.finalize(err)
}

func (s *Session) finalize(err error) {
	s.finalizeOnce.Do(func() {
		s.abortOnce.Do(func() { close(s.aborted) })
		s.reservator.CancelAll(nil)
		s.stopWriting()
		s.finalErr = err
		s.state.Store(int32(StateTerminated))
		ctx := s.logContext(nil)
		if err != nil {
			s.log.WarnContext(ctx, "session terminated with error", "error", err)
		} else {
			s.log.DebugContext(ctx, "session terminated")
		}
		close(s.doneCh)
	})
}
