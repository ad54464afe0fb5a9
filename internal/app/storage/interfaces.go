package storage

import (
	"context"
	"errors"

	"github.com/nspcc-dev/neo-go/pkg/util"

	"github.com/R3E-Network/cause_registry/internal/app/domain/cause"
)

// ErrNotFound is returned when a requested record does not exist. Absence is
// always reported through this error, never through a zero-valued record.
var ErrNotFound = errors.New("storage: not found")

// CauseReader is the read side of the cause registry state.
type CauseReader interface {
	GetCause(ctx context.Context, id uint64) (cause.Cause, error)
	ListCauseIDs(ctx context.Context) ([]uint64, error)
	// GetOwner returns the current owner. ok is false when no owner was ever
	// set; a renounced registry reports the zero hash with ok true.
	GetOwner(ctx context.Context) (owner util.Uint160, ok bool, err error)
	ListEvents(ctx context.Context, after uint64, limit int) ([]cause.Event, error)
}

// CauseTx is a unit of work over the registry state. Nothing written through
// a CauseTx is visible outside it until the surrounding RunInTx commits.
type CauseTx interface {
	CauseReader

	// NextCauseID pre-increments the id counter and returns the new value.
	NextCauseID(ctx context.Context) (uint64, error)
	// InsertCause stores a new cause and appends its id to the enumeration.
	InsertCause(ctx context.Context, c cause.Cause) error
	// UpdateCause overwrites an existing cause.
	UpdateCause(ctx context.Context, c cause.Cause) error
	// MarkDonor records donor against causeID and reports whether the mark
	// is new.
	MarkDonor(ctx context.Context, causeID uint64, donor util.Uint160) (bool, error)
	SetOwner(ctx context.Context, owner util.Uint160) error
	// AppendEvent assigns the next sequence number and appends ev.
	AppendEvent(ctx context.Context, ev cause.Event) (cause.Event, error)
}

// CauseStore persists cause registry state.
type CauseStore interface {
	CauseReader

	// RunInTx runs fn in a single all-or-nothing transaction. Mutating
	// transactions are serialised. If fn returns an error every write made
	// through tx is discarded.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx CauseTx) error) error
}
