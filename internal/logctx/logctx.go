// Package logctx attaches request-scoped fields to log records via a
// context.Context, the way the mcp-server-go codebase this package was
// adapted from threads session/request metadata through slog.Handler.
package logctx

import (
	"context"
	"log/slog"
)

// Handler wraps another slog.Handler and enriches records with whatever
// SessionData/RPCMessage the record's context carries.
type Handler struct {
	slog.Handler
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if sd, ok := ctx.Value(sessionDataKey{}).(*SessionData); ok {
		r.AddAttrs(slog.Group("sess",
			slog.String("id", sd.SessionID),
			slog.String("state", sd.State),
		))
	}

	if msg, ok := ctx.Value(rpcMsgKey{}).(*RPCMessage); ok {
		r.AddAttrs(slog.Group("rpc",
			slog.String("method", msg.Method),
			slog.String("id", msg.ID),
			slog.String("type", msg.Type),
		))
	}

	return h.Handler.Handle(ctx, r)
}

type sessionDataKey struct{}

// SessionData carries the fields a Session wants attached to every log line
// emitted while handling a particular connection.
type SessionData struct {
	SessionID string
	State     string
}

func WithSessionData(ctx context.Context, data *SessionData) context.Context {
	return context.WithValue(ctx, sessionDataKey{}, data)
}

type rpcMsgKey struct{}

// RPCMessage carries the fields a Session wants attached to every log line
// emitted while handling one particular Request or Notification.
type RPCMessage struct {
	Method string
	ID     string
	Type   string
}

func WithRPCMessage(ctx context.Context, msg *RPCMessage) context.Context {
	return context.WithValue(ctx, rpcMsgKey{}, msg)
}
