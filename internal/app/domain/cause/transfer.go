package cause

import "github.com/nspcc-dev/neo-go/pkg/util"

// Transfer describes the value movement of a single donation: Amount leaves
// From (the donor) and must arrive at To (the cause payout address).
type Transfer struct {
	CauseID uint64
	From    util.Uint160
	To      util.Uint160
	Amount  uint64
}

// Receipt identifies a completed transfer, a chain transaction hash or a gas
// bank ledger entry.
type Receipt struct {
	Reference string `json:"reference"`
}
