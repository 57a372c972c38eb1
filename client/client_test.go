package client_test

import (
	"context"
	"testing"
	"time"

	"github.com/arn-lab/msgpackrpc/client"
	"github.com/arn-lab/msgpackrpc/dispatcher"
	"github.com/arn-lab/msgpackrpc/mprpccodec"
	"github.com/arn-lab/msgpackrpc/mprpctransport"
	"github.com/arn-lab/msgpackrpc/session"
)

func newConnectedClients(t *testing.T) (clientSide *client.Client, serverTable *dispatcher.Table) {
	t.Helper()
	ca, cb := mprpctransport.Pipe()
	codec := mprpccodec.New()

	clientSess := session.New(ca, ca, codec)
	serverSess := session.New(cb, cb, codec)

	serverTable = dispatcher.New()
	serverSess.SetDispatcher(serverTable)

	if err := clientSess.Start(context.Background()); err != nil {
		t.Fatalf("clientSess.Start: %v", err)
	}
	if err := serverSess.Start(context.Background()); err != nil {
		t.Fatalf("serverSess.Start: %v", err)
	}

	t.Cleanup(func() {
		ca.Close()
		cb.Close()
	})

	return client.New(clientSess), serverTable
}

func TestCall_ReturnsHandlerResult(t *testing.T) {
	c, table := newConnectedClients(t)
	table.Register("echo", func(ctx context.Context, params []any) (any, error) {
		return params[0], nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := c.Call(ctx, "echo", "hello")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if result != "hello" {
		t.Fatalf("expected 'hello', got %v", result)
	}
}

func TestCall_PropagatesMethodNotFoundError(t *testing.T) {
	c, _ := newConnectedClients(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := c.Call(ctx, "missing-method"); err == nil {
		t.Fatalf("expected an error calling an unregistered method")
	}
}

func TestCall_ConcurrentCallsGetDistinctResponses(t *testing.T) {
	c, table := newConnectedClients(t)
	table.Register("double", func(ctx context.Context, params []any) (any, error) {
		n, _ := params[0].(int64)
		return n * 2, nil
	})

	const n = 20
	results := make(chan any, n)
	errs := make(chan error, n)

	for i := 0; i < n; i++ {
		go func(i int) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			result, err := c.Call(ctx, "double", i)
			if err != nil {
				errs <- err
				return
			}
			results <- result
		}(i)
	}

	seen := make(map[int64]bool)
	for i := 0; i < n; i++ {
		select {
		case err := <-errs:
			t.Fatalf("Call: %v", err)
		case result := <-results:
			seen[result.(int64)] = true
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for concurrent calls")
		}
	}
	if len(seen) != n {
		t.Fatalf("expected %d distinct results, got %d", n, len(seen))
	}
}

func TestNotify_DoesNotBlockOnResponse(t *testing.T) {
	c, table := newConnectedClients(t)

	received := make(chan struct{}, 1)
	table.Register("fire", func(ctx context.Context, params []any) (any, error) {
		received <- struct{}{}
		return nil, nil
	})

	if err := c.Notify(context.Background(), "fire"); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	select {
	case <-received:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for notification handler")
	}
}

// TestCall_HandlerCallsBackIntoItsOwnClient proves the fully bidirectional
// case: a request handler on the "server" side of the pipe turns around
// and issues its own Call back over the same Session, which the "client"
// side answers from its own dispatcher table. Neither side ever knows
// which role it's playing — both run identical consumer/producer pipelines
// at once.
func TestCall_HandlerCallsBackIntoItsOwnClient(t *testing.T) {
	ca, cb := mprpctransport.Pipe()
	codec := mprpccodec.New()

	sessA := session.New(ca, ca, codec)
	sessB := session.New(cb, cb, codec)
	t.Cleanup(func() {
		ca.Close()
		cb.Close()
	})

	clientA := client.New(sessA)
	clientB := client.New(sessB)

	tableA := dispatcher.New()
	tableB := dispatcher.New()
	sessA.SetDispatcher(tableA)
	sessB.SetDispatcher(tableB)

	// B's "greet" handler calls back into A's "name" method before
	// answering, over the same Session pair.
	tableB.Register("greet", func(ctx context.Context, params []any) (any, error) {
		name, err := clientB.Call(ctx, "name")
		if err != nil {
			return nil, err
		}
		return "hello, " + name.(string), nil
	})
	tableA.Register("name", func(ctx context.Context, params []any) (any, error) {
		return "world", nil
	})

	if err := sessA.Start(context.Background()); err != nil {
		t.Fatalf("sessA.Start: %v", err)
	}
	if err := sessB.Start(context.Background()); err != nil {
		t.Fatalf("sessB.Start: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := clientA.Call(ctx, "greet")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if result != "hello, world" {
		t.Fatalf("expected 'hello, world', got %v", result)
	}
}
