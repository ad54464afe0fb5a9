package gasbank

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/R3E-Network/cause_registry/internal/app/domain/cause"
	"github.com/R3E-Network/cause_registry/internal/app/metrics"
)

// Forward debits the donor and credits the cause payout account. The
// receipt reference is shared by both ledger entries.
func (m *Manager) Forward(ctx context.Context, t cause.Transfer) (cause.Receipt, error) {
	if t.Amount == 0 || t.Amount > math.MaxInt64 {
		return cause.Receipt{}, ErrInvalidAmount
	}
	start := time.Now()

	entry, err := m.transfer(ctx,
		cause.FormatAddress(t.From), cause.FormatAddress(t.To),
		int64(t.Amount), TxTypeDonation, TxTypeDonationCredit, "")

	metrics.RecordForward("ledger", time.Since(start), err == nil)
	if err != nil {
		return cause.Receipt{}, err
	}
	return cause.Receipt{Reference: entry.ReferenceID}, nil
}

// Reverse refunds a forwarded donation.
func (m *Manager) Reverse(ctx context.Context, t cause.Transfer, r cause.Receipt) error {
	if t.Amount == 0 || t.Amount > math.MaxInt64 {
		return ErrInvalidAmount
	}

	_, err := m.transfer(ctx,
		cause.FormatAddress(t.To), cause.FormatAddress(t.From),
		int64(t.Amount), TxTypeRefund, TxTypeRefund, r.Reference)
	if err != nil {
		return fmt.Errorf("refund %s: %w", r.Reference, err)
	}

	m.log.WithContext(ctx).
		WithField("cause_id", t.CauseID).
		WithField("amount", t.Amount).
		WithField("reference", r.Reference).
		Warn("donation refunded")
	return nil
}

// Payout sends a transfer out of the registry's custody.
type Payout interface {
	Forward(ctx context.Context, t cause.Transfer) (cause.Receipt, error)
}

// CustodyForwarder pays donations from the registry's custody wallet and
// charges them to the donor's ledger balance. The donor is debited before
// the payout and credited back when the payout fails.
type CustodyForwarder struct {
	ledger *Manager
	payout Payout
}

func NewCustodyForwarder(ledger *Manager, payout Payout) *CustodyForwarder {
	return &CustodyForwarder{ledger: ledger, payout: payout}
}

// Forward debits t.From and then pays t.To through the payout. The receipt
// is the payout's.
func (f *CustodyForwarder) Forward(ctx context.Context, t cause.Transfer) (cause.Receipt, error) {
	if t.Amount == 0 || t.Amount > math.MaxInt64 {
		return cause.Receipt{}, ErrInvalidAmount
	}
	donor := cause.FormatAddress(t.From)

	debit, err := f.ledger.adjust(ctx, donor, -int64(t.Amount), TxTypePayout, "")
	if err != nil {
		return cause.Receipt{}, err
	}

	receipt, err := f.payout.Forward(ctx, t)
	if err != nil {
		// the payout context may be what failed
		if _, rerr := f.ledger.adjust(context.WithoutCancel(ctx), donor, int64(t.Amount), TxTypeRefund, debit.ReferenceID); rerr != nil {
			f.ledger.log.WithContext(ctx).
				WithError(rerr).
				WithField("address", donor).
				WithField("amount", t.Amount).
				WithField("reference", debit.ReferenceID).
				Error("restoring balance after failed payout")
		}
		return cause.Receipt{}, err
	}
	return receipt, nil
}
