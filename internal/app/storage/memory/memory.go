package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nspcc-dev/neo-go/pkg/util"

	"github.com/R3E-Network/cause_registry/internal/app/domain/cause"
	"github.com/R3E-Network/cause_registry/internal/app/storage"
)

// Store is an in-memory implementation of storage.CauseStore. It is safe for
// concurrent use and is intended for tests and local development.
//
// Transactions are staged: writes land in an overlay owned by the transaction
// and are merged into the committed state only when fn succeeds. txMu
// serialises transactions; mu guards the committed state and is only held
// for reads and the final merge, so readers never wait on a payout transfer
// running inside a transaction.
type Store struct {
	txMu sync.Mutex

	mu       sync.RWMutex
	nextID   uint64
	causes   map[uint64]cause.Cause
	ids      []uint64
	donors   map[donorKey]struct{}
	owner    util.Uint160
	ownerSet bool
	events   []cause.Event

	now func() time.Time
}

type donorKey struct {
	causeID uint64
	donor   util.Uint160
}

var _ storage.CauseStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		causes: make(map[uint64]cause.Cause),
		donors: make(map[donorKey]struct{}),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CauseReader implementation -------------------------------------------------

func (s *Store) GetCause(_ context.Context, id uint64) (cause.Cause, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.causes[id]
	if !ok {
		return cause.Cause{}, fmt.Errorf("cause %d: %w", id, storage.ErrNotFound)
	}
	return c, nil
}

func (s *Store) ListCauseIDs(_ context.Context) ([]uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]uint64(nil), s.ids...), nil
}

func (s *Store) GetOwner(_ context.Context) (util.Uint160, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.owner, s.ownerSet, nil
}

func (s *Store) ListEvents(_ context.Context, after uint64, limit int) ([]cause.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return selectEvents(s.events, after, limit), nil
}

// RunInTx --------------------------------------------------------------------

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx storage.CauseTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	tx := &memTx{
		store:   s,
		nextID:  s.nextID,
		causes:  make(map[uint64]cause.Cause),
		donors:  make(map[donorKey]struct{}),
		owner:   s.owner,
		ownerOK: s.ownerSet,
		seq:     uint64(len(s.events)),
	}
	s.mu.RUnlock()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.commit(tx)
	return nil
}

func (s *Store) commit(tx *memTx) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID = tx.nextID
	for id, c := range tx.causes {
		s.causes[id] = c
	}
	s.ids = append(s.ids, tx.ids...)
	for k := range tx.donors {
		s.donors[k] = struct{}{}
	}
	s.owner = tx.owner
	s.ownerSet = tx.ownerOK
	s.events = append(s.events, tx.events...)
}

// memTx is the staged overlay of a single transaction. Only the goroutine
// running RunInTx (and code it calls synchronously) touches it.
type memTx struct {
	store *Store

	nextID  uint64
	causes  map[uint64]cause.Cause
	ids     []uint64
	donors  map[donorKey]struct{}
	owner   util.Uint160
	ownerOK bool
	events  []cause.Event
	seq     uint64
}

var _ storage.CauseTx = (*memTx)(nil)

func (t *memTx) GetCause(ctx context.Context, id uint64) (cause.Cause, error) {
	if c, ok := t.causes[id]; ok {
		return c, nil
	}
	return t.store.GetCause(ctx, id)
}

func (t *memTx) ListCauseIDs(ctx context.Context) ([]uint64, error) {
	ids, err := t.store.ListCauseIDs(ctx)
	if err != nil {
		return nil, err
	}
	return append(ids, t.ids...), nil
}

func (t *memTx) GetOwner(_ context.Context) (util.Uint160, bool, error) {
	return t.owner, t.ownerOK, nil
}

func (t *memTx) ListEvents(ctx context.Context, after uint64, limit int) ([]cause.Event, error) {
	t.store.mu.RLock()
	all := append(append([]cause.Event(nil), t.store.events...), t.events...)
	t.store.mu.RUnlock()
	return selectEvents(all, after, limit), nil
}

func (t *memTx) NextCauseID(_ context.Context) (uint64, error) {
	t.nextID++
	return t.nextID, nil
}

func (t *memTx) InsertCause(ctx context.Context, c cause.Cause) error {
	if _, err := t.GetCause(ctx, c.ID); err == nil {
		return fmt.Errorf("cause %d already exists", c.ID)
	}
	now := t.store.now()
	c.CreatedAt = now
	c.UpdatedAt = now
	t.causes[c.ID] = c
	t.ids = append(t.ids, c.ID)
	return nil
}

func (t *memTx) UpdateCause(ctx context.Context, c cause.Cause) error {
	existing, err := t.GetCause(ctx, c.ID)
	if err != nil {
		return err
	}
	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = t.store.now()
	t.causes[c.ID] = c
	return nil
}

func (t *memTx) MarkDonor(_ context.Context, causeID uint64, donor util.Uint160) (bool, error) {
	key := donorKey{causeID: causeID, donor: donor}
	if _, ok := t.donors[key]; ok {
		return false, nil
	}
	t.store.mu.RLock()
	_, committed := t.store.donors[key]
	t.store.mu.RUnlock()
	if committed {
		return false, nil
	}
	t.donors[key] = struct{}{}
	return true, nil
}

func (t *memTx) SetOwner(_ context.Context, owner util.Uint160) error {
	t.owner = owner
	t.ownerOK = true
	return nil
}

func (t *memTx) AppendEvent(_ context.Context, ev cause.Event) (cause.Event, error) {
	t.seq++
	ev.Seq = t.seq
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = t.store.now()
	}
	t.events = append(t.events, ev)
	return ev, nil
}

func selectEvents(events []cause.Event, after uint64, limit int) []cause.Event {
	result := make([]cause.Event, 0)
	for _, ev := range events {
		if ev.Seq <= after {
			continue
		}
		if limit > 0 && len(result) >= limit {
			break
		}
		result = append(result, ev)
	}
	return result
}
