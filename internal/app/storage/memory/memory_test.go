package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/nspcc-dev/neo-go/pkg/util"

	"github.com/R3E-Network/cause_registry/internal/app/domain/cause"
	"github.com/R3E-Network/cause_registry/internal/app/storage"
)

func insert(t *testing.T, s *Store, name string) uint64 {
	t.Helper()
	var id uint64
	err := s.RunInTx(context.Background(), func(ctx context.Context, tx storage.CauseTx) error {
		next, err := tx.NextCauseID(ctx)
		if err != nil {
			return err
		}
		id = next
		return tx.InsertCause(ctx, cause.Cause{ID: next, Params: cause.Params{Name: name, WalletAddress: util.Uint160{1}}})
	})
	if err != nil {
		t.Fatalf("insert %s: %v", name, err)
	}
	return id
}

func TestCommitMakesWritesVisible(t *testing.T) {
	s := New()
	ctx := context.Background()

	first := insert(t, s, "a")
	second := insert(t, s, "b")
	if first != 1 || second != 2 {
		t.Fatalf("expected ids 1,2 got %d,%d", first, second)
	}

	ids, err := s.ListCauseIDs(ctx)
	if err != nil {
		t.Fatalf("list ids: %v", err)
	}
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
		t.Fatalf("unexpected ids %v", ids)
	}

	c, err := s.GetCause(ctx, 2)
	if err != nil {
		t.Fatalf("get cause: %v", err)
	}
	if c.Name != "b" || c.CreatedAt.IsZero() {
		t.Fatalf("unexpected cause %+v", c)
	}
}

func TestRollbackDiscardsEverything(t *testing.T) {
	s := New()
	ctx := context.Background()
	id := insert(t, s, "a")

	boom := errors.New("boom")
	err := s.RunInTx(ctx, func(ctx context.Context, tx storage.CauseTx) error {
		c, err := tx.GetCause(ctx, id)
		if err != nil {
			return err
		}
		c.Raised = 99
		if err := tx.UpdateCause(ctx, c); err != nil {
			return err
		}
		if _, err := tx.MarkDonor(ctx, id, util.Uint160{7}); err != nil {
			return err
		}
		if _, err := tx.NextCauseID(ctx); err != nil {
			return err
		}
		if err := tx.SetOwner(ctx, util.Uint160{9}); err != nil {
			return err
		}
		if _, err := tx.AppendEvent(ctx, cause.Event{Kind: cause.EventDonationReceived}); err != nil {
			return err
		}

		// reads inside the transaction observe the staged write
		staged, err := tx.GetCause(ctx, id)
		if err != nil || staged.Raised != 99 {
			t.Fatalf("staged read: %+v %v", staged, err)
		}
		// readers outside do not
		committed, err := s.GetCause(ctx, id)
		if err != nil || committed.Raised != 0 {
			t.Fatalf("committed read leaked staged write: %+v %v", committed, err)
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	c, _ := s.GetCause(ctx, id)
	if c.Raised != 0 {
		t.Fatalf("raised survived rollback: %d", c.Raised)
	}
	if _, ok, _ := s.GetOwner(ctx); ok {
		t.Fatal("owner survived rollback")
	}
	events, _ := s.ListEvents(ctx, 0, 0)
	if len(events) != 0 {
		t.Fatalf("events survived rollback: %v", events)
	}
	if next := insert(t, s, "b"); next != 2 {
		t.Fatalf("rolled back id allocation leaked, next id %d", next)
	}

	err = s.RunInTx(ctx, func(ctx context.Context, tx storage.CauseTx) error {
		fresh, err := tx.MarkDonor(ctx, id, util.Uint160{7})
		if err != nil {
			return err
		}
		if !fresh {
			t.Fatal("donor mark survived rollback")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("mark donor: %v", err)
	}
}

func TestMarkDonorIsIdempotent(t *testing.T) {
	s := New()
	ctx := context.Background()
	id := insert(t, s, "a")
	donor := util.Uint160{3}

	for i, want := range []bool{true, false} {
		err := s.RunInTx(ctx, func(ctx context.Context, tx storage.CauseTx) error {
			fresh, err := tx.MarkDonor(ctx, id, donor)
			if err != nil {
				return err
			}
			if fresh != want {
				t.Fatalf("round %d: expected fresh=%v", i, want)
			}
			again, _ := tx.MarkDonor(ctx, id, donor)
			if again {
				t.Fatalf("round %d: second mark in same tx reported fresh", i)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("round %d: %v", i, err)
		}
	}
}

func TestGetMissingCause(t *testing.T) {
	s := New()
	if _, err := s.GetCause(context.Background(), 0); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEventsAreSequenced(t *testing.T) {
	s := New()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		err := s.RunInTx(ctx, func(ctx context.Context, tx storage.CauseTx) error {
			_, err := tx.AppendEvent(ctx, cause.Event{Kind: cause.EventCauseAdded, CauseID: uint64(i + 1)})
			return err
		})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	events, err := s.ListEvents(ctx, 1, 1)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 || events[0].Seq != 2 || events[0].CauseID != 2 {
		t.Fatalf("unexpected events %+v", events)
	}
}

func TestRunInTxHonoursCancelledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := s.RunInTx(ctx, func(context.Context, storage.CauseTx) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) || called {
		t.Fatalf("expected cancellation before fn, got err=%v called=%v", err, called)
	}
}
