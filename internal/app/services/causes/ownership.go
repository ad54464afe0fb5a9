package causes

import (
	"context"
	"fmt"

	"github.com/nspcc-dev/neo-go/pkg/util"

	"github.com/R3E-Network/cause_registry/internal/app/domain/cause"
	"github.com/R3E-Network/cause_registry/internal/app/storage"
)

// Initialize sets the owner of a registry that never had one. It is a no-op
// on an initialised registry so it can run on every start.
func (r *Registry) Initialize(ctx context.Context, owner util.Uint160) error {
	if _, ok := storage.TxFrom(ctx); ok {
		return ErrReentrantCall
	}
	if cause.IsZero(owner) {
		return ErrInvalidOwner
	}

	committed, err := r.mutate(ctx, func(ctx context.Context, tx storage.CauseTx) ([]cause.Event, error) {
		if _, ok, err := tx.GetOwner(ctx); err != nil {
			return nil, fmt.Errorf("get owner: %w", err)
		} else if ok {
			return nil, nil
		}
		if err := tx.SetOwner(ctx, owner); err != nil {
			return nil, fmt.Errorf("set owner: %w", err)
		}
		ev, err := tx.AppendEvent(ctx, cause.Event{
			Kind:     cause.EventOwnershipTransferred,
			NewOwner: cause.FormatAddress(owner),
		})
		if err != nil {
			return nil, fmt.Errorf("append event: %w", err)
		}
		return []cause.Event{ev}, nil
	})
	if err != nil {
		return err
	}
	if len(committed) > 0 {
		r.log.WithContext(ctx).WithField("owner", cause.FormatAddress(owner)).Info("registry owner initialised")
	}
	r.publish(ctx, committed)
	return nil
}

// Owner returns the current owner and whether one is set. After
// RenounceOwnership the zero hash is returned with ok true.
func (r *Registry) Owner(ctx context.Context) (util.Uint160, bool, error) {
	owner, ok, err := storage.ReaderFor(ctx, r.store).GetOwner(ctx)
	if err != nil {
		return util.Uint160{}, false, fmt.Errorf("get owner: %w", err)
	}
	return owner, ok, nil
}

// TransferOwnership hands the owner capability to newOwner.
func (r *Registry) TransferOwnership(ctx context.Context, caller, newOwner util.Uint160) error {
	if cause.IsZero(newOwner) {
		return ErrInvalidOwner
	}
	return r.setOwner(ctx, caller, newOwner)
}

// RenounceOwnership leaves the registry without an owner. Owner-only
// operations fail with ErrUnauthorized afterwards.
func (r *Registry) RenounceOwnership(ctx context.Context, caller util.Uint160) error {
	return r.setOwner(ctx, caller, util.Uint160{})
}

func (r *Registry) setOwner(ctx context.Context, caller, next util.Uint160) error {
	if _, ok := storage.TxFrom(ctx); ok {
		return ErrReentrantCall
	}

	committed, err := r.mutate(ctx, func(ctx context.Context, tx storage.CauseTx) ([]cause.Event, error) {
		if err := requireOwner(ctx, tx, caller); err != nil {
			return nil, err
		}
		if err := tx.SetOwner(ctx, next); err != nil {
			return nil, fmt.Errorf("set owner: %w", err)
		}
		ev := cause.Event{
			Kind:          cause.EventOwnershipTransferred,
			PreviousOwner: cause.FormatAddress(caller),
		}
		if !cause.IsZero(next) {
			ev.NewOwner = cause.FormatAddress(next)
		}
		ev, err := tx.AppendEvent(ctx, ev)
		if err != nil {
			return nil, fmt.Errorf("append event: %w", err)
		}
		return []cause.Event{ev}, nil
	})
	if err != nil {
		return err
	}

	r.log.WithContext(ctx).
		WithField("previous_owner", cause.FormatAddress(caller)).
		WithField("new_owner", committed[0].NewOwner).
		Info("registry ownership transferred")
	r.publish(ctx, committed)
	return nil
}

func requireOwner(ctx context.Context, reader storage.CauseReader, caller util.Uint160) error {
	owner, ok, err := reader.GetOwner(ctx)
	if err != nil {
		return fmt.Errorf("get owner: %w", err)
	}
	if !ok || cause.IsZero(owner) || !owner.Equals(caller) {
		return ErrUnauthorized
	}
	return nil
}
