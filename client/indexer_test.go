package client

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/arn-lab/msgpackrpc/reservator"
)

func TestAtomicIndexer_WrapsAroundAt32Bits(t *testing.T) {
	idx := NewAtomicIndexer()
	idx.counter.Store(math.MaxUint32)

	first, err := idx.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if first != math.MaxUint32 {
		t.Fatalf("expected the last pre-wrap value %d, got %d", uint32(math.MaxUint32), first)
	}

	second, err := idx.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if second != 0 {
		t.Fatalf("expected wraparound to 0, got %d", second)
	}
}

func TestAtomicIndexer_WraparoundCollidesWithStillPendingReservation(t *testing.T) {
	// A wrapped-around msgid that lands on a still-outstanding Call must be
	// rejected by the Reservator rather than silently overwriting it —
	// exercised at the reservator level since that's where the collision
	// actually surfaces (see reservator.ErrAlreadyReserved).
	table := reservator.New()
	// A Call issued before the wrap is still waiting on msgid 0.
	if _, err := table.Reserve(0); err != nil {
		t.Fatalf("Reserve(0): %v", err)
	}

	idx := NewAtomicIndexer()
	idx.counter.Store(math.MaxUint32)

	first, _ := idx.Next(context.Background())
	second, _ := idx.Next(context.Background())
	if first == second {
		t.Fatalf("expected distinct ids across the wrap boundary, got %d twice", first)
	}
	if _, err := table.Reserve(first); err != nil {
		t.Fatalf("expected the pre-wrap id %d to be free, got %v", first, err)
	}
	if _, err := table.Reserve(second); !errors.Is(err, reservator.ErrAlreadyReserved) {
		t.Fatalf("expected ErrAlreadyReserved for wrapped id %d, got %v", second, err)
	}
}
