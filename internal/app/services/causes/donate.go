package causes

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/nspcc-dev/neo-go/pkg/util"

	"github.com/R3E-Network/cause_registry/internal/app/domain/cause"
	"github.com/R3E-Network/cause_registry/internal/app/metrics"
	"github.com/R3E-Network/cause_registry/internal/app/storage"
)

// Forwarder moves a donation to the cause's payout address. The context it
// receives carries the active registry transaction.
type Forwarder interface {
	Forward(ctx context.Context, t cause.Transfer) (cause.Receipt, error)
}

// Reverser is implemented by forwarders that can undo a completed transfer.
type Reverser interface {
	Reverse(ctx context.Context, t cause.Transfer, r cause.Receipt) error
}

// DonateToCause records a donation of amount from donor to cause id and
// forwards the full amount to the cause's payout address. Nothing is
// recorded unless the transfer succeeds.
func (r *Registry) DonateToCause(ctx context.Context, donor util.Uint160, id uint64, amount uint64) (cause.Receipt, error) {
	if _, ok := storage.TxFrom(ctx); ok {
		return cause.Receipt{}, ErrReentrantCall
	}
	if amount == 0 {
		metrics.RecordDonation("rejected", 0)
		return cause.Receipt{}, ErrZeroAmount
	}

	var (
		receipt   cause.Receipt
		transfer  cause.Transfer
		forwarded bool
	)
	committed, err := r.mutate(ctx, func(ctx context.Context, tx storage.CauseTx) ([]cause.Event, error) {
		c, err := getCause(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		if !c.IsActive {
			return nil, fmt.Errorf("%w: %d", ErrCauseInactive, id)
		}

		if c.Raised > math.MaxUint64-amount {
			return nil, ErrAmountOverflow
		}
		c.Raised += amount

		fresh, err := tx.MarkDonor(ctx, id, donor)
		if err != nil {
			return nil, fmt.Errorf("mark donor: %w", err)
		}
		if fresh {
			c.DonorsCount++
		}
		if err := tx.UpdateCause(ctx, c); err != nil {
			return nil, fmt.Errorf("update cause: %w", err)
		}

		transfer = cause.Transfer{CauseID: id, From: donor, To: c.WalletAddress, Amount: amount}
		receipt, err = r.forwarder.Forward(ctx, transfer)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
		forwarded = true

		ev, err := tx.AppendEvent(ctx, cause.Event{
			Kind:      cause.EventDonationReceived,
			CauseID:   id,
			Donor:     cause.FormatAddress(donor),
			Amount:    amount,
			Reference: receipt.Reference,
		})
		if err != nil {
			return nil, fmt.Errorf("append event: %w", err)
		}
		return []cause.Event{ev}, nil
	})
	if err != nil {
		if forwarded {
			r.compensate(ctx, transfer, receipt, err)
		}
		metrics.RecordDonation(donationResult(err), 0)
		r.log.WithContext(ctx).WithError(err).
			WithField("cause_id", id).
			WithField("amount", amount).
			Warn("donation failed")
		return cause.Receipt{}, err
	}

	metrics.RecordDonation("success", amount)
	r.log.WithContext(ctx).
		WithField("cause_id", id).
		WithField("donor", cause.FormatAddress(donor)).
		WithField("amount", amount).
		WithField("reference", receipt.Reference).
		Info("donation received")
	r.publish(ctx, committed)
	return receipt, nil
}

// compensate undoes a forwarded transfer whose donation could not be
// recorded. The registry state was never committed, so only the funds move.
func (r *Registry) compensate(ctx context.Context, t cause.Transfer, rc cause.Receipt, failure error) {
	entry := r.log.WithContext(ctx).
		WithField("cause_id", t.CauseID).
		WithField("amount", t.Amount).
		WithField("reference", rc.Reference)

	rev, ok := r.forwarder.(Reverser)
	if !ok {
		entry.WithError(failure).Error("donation not recorded after transfer; forwarder cannot reverse")
		return
	}
	// the original context may be the reason the commit failed
	if err := rev.Reverse(context.WithoutCancel(ctx), t, rc); err != nil {
		entry.WithError(err).Error("reverse transfer failed")
		return
	}
	entry.Warn("transfer reversed after failed commit")
}

func donationResult(err error) string {
	switch {
	case errors.Is(err, ErrTransferFailed):
		return "transfer_failed"
	case errors.Is(err, ErrCauseNotFound), errors.Is(err, ErrCauseInactive),
		errors.Is(err, ErrAmountOverflow):
		return "rejected"
	default:
		return "error"
	}
}
