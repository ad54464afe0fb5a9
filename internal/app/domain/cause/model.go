// Package cause holds the cause registry domain model.
package cause

import (
	"time"

	"github.com/nspcc-dev/neo-go/pkg/util"
)

// Params is the owner supplied part of a cause. Creation and update both take
// a full Params value; there is no partial patch.
type Params struct {
	Name            string       `json:"name"`
	Description     string       `json:"description"`
	LongDescription string       `json:"long_description"`
	ImageSrc        string       `json:"image_src"`
	Category        string       `json:"category"`
	Website         string       `json:"website"`
	Goal            uint64       `json:"goal"`
	WalletAddress   util.Uint160 `json:"wallet_address"`
	IsActive        bool         `json:"is_active"`
	Featured        bool         `json:"featured"`
}

// Cause is a registered charitable campaign. Raised and DonorsCount only ever
// grow and are owned by the registry: updates never touch them.
type Cause struct {
	ID uint64 `json:"id"`
	Params
	Raised      uint64    `json:"raised"`
	DonorsCount uint64    `json:"donors_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HasPayoutAddress reports whether the payout address is set.
func (p Params) HasPayoutAddress() bool {
	return !IsZero(p.WalletAddress)
}
