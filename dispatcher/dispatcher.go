// Package dispatcher maps MessagePack-RPC method names to user-supplied
// handlers and invokes them on behalf of a Session.
package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"
)

// Handler answers a single Request or Notification's params.
type Handler func(ctx context.Context, params []any) (any, error)

// ErrMethodNotFound is returned by Dispatch when the table has no entry for
// the requested method. Its Error() text is part of the wire contract (see
// spec.md §6): callers formatting it into a wire error should not reword it.
type ErrMethodNotFound struct {
	Method string
}

func (e *ErrMethodNotFound) Error() string {
	return fmt.Sprintf("No MessagePack-RPC method '%s' exists", e.Method)
}

type entry struct {
	handler Handler
	schema  *jsonschema.Schema // nil when registered without validation
}

// Table is a mutable method-name-to-Handler map. It is safe for concurrent
// use: a Session observes the table's current contents at the moment of
// each Dispatch call, never a fixed snapshot taken at construction time.
type Table struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// New returns an empty Table.
func New() *Table {
	return &Table{entries: make(map[string]entry)}
}

// Register adds or replaces the handler for method.
func (t *Table) Register(method string, h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[method] = entry{handler: h}
}

// RegisterSchema adds or replaces the handler for method, additionally
// deriving a JSON Schema from paramsExample (via jsonschema.Reflect) that
// Dispatch will validate incoming params against before invoking h.
// paramsExample is only used to shape the schema; it is never itself sent
// anywhere.
func (t *Table) RegisterSchema(method string, paramsExample any, h Handler) {
	schema := jsonschema.Reflect(paramsExample)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[method] = entry{handler: h, schema: schema}
}

// Unregister removes method's handler, if any.
func (t *Table) Unregister(method string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, method)
}

// Has reports whether method currently has a registered handler.
func (t *Table) Has(method string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.entries[method]
	return ok
}

// Dispatch invokes the handler registered under method with params, or
// fails with *ErrMethodNotFound if no such handler exists. If the entry was
// registered via RegisterSchema, params is validated against the derived
// schema first; a validation failure is returned as an ordinary handler
// error (it never changes the wire shape of the eventual Response).
func Dispatch(ctx context.Context, t *Table, method string, params []any) (any, error) {
	t.mu.RLock()
	e, ok := t.entries[method]
	t.mu.RUnlock()

	if !ok {
		return nil, &ErrMethodNotFound{Method: method}
	}

	if e.schema != nil {
		if err := validateParams(e.schema, params); err != nil {
			return nil, fmt.Errorf("invalid params for %q: %w", method, err)
		}
	}

	return e.handler(ctx, params)
}

var errParamsNotObject = errors.New("params do not match the registered schema shape")

// validateParams does a coarse structural check: when the top-level schema's
// Type is "object" it requires exactly one param, and it requires params to
// marshal to JSON. Property names and field types are not checked, and no
// other JSON-Schema keyword is evaluated.
func validateParams(schema *jsonschema.Schema, params []any) error {
	if schema.Type == "object" && len(params) != 1 {
		return errParamsNotObject
	}
	if _, err := json.Marshal(params); err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	return nil
}
