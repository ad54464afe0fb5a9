// Package causes implements the cause registry: owner managed charitable
// cause records and public donations with per-cause totals.
package causes

import (
	"context"
	"errors"
	"fmt"

	"github.com/nspcc-dev/neo-go/pkg/util"

	"github.com/R3E-Network/cause_registry/internal/app/domain/cause"
	"github.com/R3E-Network/cause_registry/internal/app/metrics"
	"github.com/R3E-Network/cause_registry/internal/app/storage"
	"github.com/R3E-Network/cause_registry/internal/events"
	"github.com/R3E-Network/cause_registry/internal/logging"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

// Registry is the cause registry service.
type Registry struct {
	store     storage.CauseStore
	forwarder Forwarder
	publisher events.Publisher
	log       *logging.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithPublisher sets where committed events are published.
func WithPublisher(p events.Publisher) Option {
	return func(r *Registry) {
		if p != nil {
			r.publisher = p
		}
	}
}

// New constructs a registry over store, forwarding donations with fwd.
func New(store storage.CauseStore, fwd Forwarder, log *logging.Logger, opts ...Option) *Registry {
	if log == nil {
		log = logging.New("causes", "info", "json")
	}
	r := &Registry{
		store:     store,
		forwarder: fwd,
		publisher: events.Nop{},
		log:       log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddCause registers a new cause and returns its id. Ids start at 1 and are
// never reused.
func (r *Registry) AddCause(ctx context.Context, caller util.Uint160, p cause.Params) (uint64, error) {
	if _, ok := storage.TxFrom(ctx); ok {
		return 0, ErrReentrantCall
	}

	var id uint64
	committed, err := r.mutate(ctx, func(ctx context.Context, tx storage.CauseTx) ([]cause.Event, error) {
		if err := requireOwner(ctx, tx, caller); err != nil {
			return nil, err
		}
		if !p.HasPayoutAddress() {
			return nil, ErrInvalidWalletAddress
		}

		next, err := tx.NextCauseID(ctx)
		if err != nil {
			return nil, fmt.Errorf("allocate cause id: %w", err)
		}
		if err := tx.InsertCause(ctx, cause.Cause{ID: next, Params: p}); err != nil {
			return nil, fmt.Errorf("insert cause: %w", err)
		}
		ev, err := tx.AppendEvent(ctx, cause.Event{Kind: cause.EventCauseAdded, CauseID: next, Name: p.Name})
		if err != nil {
			return nil, fmt.Errorf("append event: %w", err)
		}
		id = next
		return []cause.Event{ev}, nil
	})
	if err != nil {
		return 0, err
	}

	metrics.RecordCauseCreated()
	r.log.WithContext(ctx).WithField("cause_id", id).WithField("name", p.Name).Info("cause added")
	r.publish(ctx, committed)
	return id, nil
}

// UpdateCause replaces every owner supplied field of cause id. Raised and
// DonorsCount are preserved.
func (r *Registry) UpdateCause(ctx context.Context, caller util.Uint160, id uint64, p cause.Params) error {
	if _, ok := storage.TxFrom(ctx); ok {
		return ErrReentrantCall
	}

	committed, err := r.mutate(ctx, func(ctx context.Context, tx storage.CauseTx) ([]cause.Event, error) {
		if err := requireOwner(ctx, tx, caller); err != nil {
			return nil, err
		}
		if !p.HasPayoutAddress() {
			return nil, ErrInvalidWalletAddress
		}

		existing, err := getCause(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		existing.Params = p
		if err := tx.UpdateCause(ctx, existing); err != nil {
			return nil, fmt.Errorf("update cause: %w", err)
		}
		ev, err := tx.AppendEvent(ctx, cause.Event{Kind: cause.EventCauseUpdated, CauseID: id, Name: p.Name})
		if err != nil {
			return nil, fmt.Errorf("append event: %w", err)
		}
		return []cause.Event{ev}, nil
	})
	if err != nil {
		return err
	}

	metrics.RecordCauseUpdated()
	r.log.WithContext(ctx).WithField("cause_id", id).WithField("name", p.Name).Info("cause updated")
	r.publish(ctx, committed)
	return nil
}

// GetCause returns cause id or ErrCauseNotFound.
func (r *Registry) GetCause(ctx context.Context, id uint64) (cause.Cause, error) {
	return getCause(ctx, storage.ReaderFor(ctx, r.store), id)
}

// GetAllCauseIDs returns every cause id in creation order. Records are
// fetched one at a time with GetCause.
func (r *Registry) GetAllCauseIDs(ctx context.Context) ([]uint64, error) {
	ids, err := storage.ReaderFor(ctx, r.store).ListCauseIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list cause ids: %w", err)
	}
	if ids == nil {
		ids = []uint64{}
	}
	return ids, nil
}

// Events returns up to limit log entries with a sequence number above after.
func (r *Registry) Events(ctx context.Context, after uint64, limit int) ([]cause.Event, error) {
	if limit <= 0 {
		limit = defaultEventLimit
	}
	if limit > maxEventLimit {
		limit = maxEventLimit
	}
	evs, err := storage.ReaderFor(ctx, r.store).ListEvents(ctx, after, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return evs, nil
}

// mutate runs fn in a store transaction whose context carries the
// transaction, and returns the events fn appended once they are committed.
func (r *Registry) mutate(ctx context.Context, fn func(ctx context.Context, tx storage.CauseTx) ([]cause.Event, error)) ([]cause.Event, error) {
	var evs []cause.Event
	err := r.store.RunInTx(ctx, func(ctx context.Context, tx storage.CauseTx) error {
		out, err := fn(storage.WithTx(ctx, tx), tx)
		if err != nil {
			return err
		}
		evs = out
		return nil
	})
	return evs, err
}

func (r *Registry) publish(ctx context.Context, evs []cause.Event) {
	for _, ev := range evs {
		if err := r.publisher.Publish(ctx, ev); err != nil {
			r.log.WithContext(ctx).WithError(err).
				WithField("seq", ev.Seq).
				WithField("kind", ev.Kind).
				Warn("publish registry event failed")
		}
	}
}

func getCause(ctx context.Context, reader storage.CauseReader, id uint64) (cause.Cause, error) {
	c, err := reader.GetCause(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return cause.Cause{}, fmt.Errorf("%w: %d", ErrCauseNotFound, id)
		}
		return cause.Cause{}, fmt.Errorf("get cause %d: %w", id, err)
	}
	return c, nil
}
