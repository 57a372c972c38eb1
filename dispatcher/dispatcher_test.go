package dispatcher

import (
	"context"
	"errors"
	"testing"
)

func TestDispatch_MethodNotFound(t *testing.T) {
	table := New()
	_, err := Dispatch(context.Background(), table, "missing", nil)
	var notFound *ErrMethodNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected *ErrMethodNotFound, got %v", err)
	}
	if notFound.Error() != "No MessagePack-RPC method 'missing' exists" {
		t.Fatalf("unexpected error text: %q", notFound.Error())
	}
}

func TestDispatch_InvokesRegisteredHandler(t *testing.T) {
	table := New()
	table.Register("echo", func(ctx context.Context, params []any) (any, error) {
		return params[0], nil
	})

	result, err := Dispatch(context.Background(), table, "echo", []any{"hi"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if result != "hi" {
		t.Fatalf("expected 'hi', got %v", result)
	}
}

func TestTable_UnregisterRemovesHandler(t *testing.T) {
	table := New()
	table.Register("m", func(ctx context.Context, params []any) (any, error) { return nil, nil })
	if !table.Has("m") {
		t.Fatalf("expected Has(m) to be true after Register")
	}
	table.Unregister("m")
	if table.Has("m") {
		t.Fatalf("expected Has(m) to be false after Unregister")
	}
}

func TestTable_RegisterReplacesExistingHandler(t *testing.T) {
	table := New()
	table.Register("m", func(ctx context.Context, params []any) (any, error) { return 1, nil })
	table.Register("m", func(ctx context.Context, params []any) (any, error) { return 2, nil })

	result, err := Dispatch(context.Background(), table, "m", nil)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if result != 2 {
		t.Fatalf("expected replaced handler's result 2, got %v", result)
	}
}

func TestRegisterSchema_RejectsWrongArity(t *testing.T) {
	table := New()
	table.RegisterSchema("add", struct {
		A int `json:"a"`
		B int `json:"b"`
	}{}, func(ctx context.Context, params []any) (any, error) {
		return nil, nil
	})

	_, err := Dispatch(context.Background(), table, "add", []any{1, 2})
	if err == nil {
		t.Fatalf("expected validation error for non-object params against an object schema")
	}
}
