package httpapi

import (
	"time"

	"github.com/nspcc-dev/neo-go/pkg/util"

	"github.com/R3E-Network/cause_registry/internal/app/domain/cause"
	"github.com/R3E-Network/cause_registry/internal/errors"
)

// causeParams is the wire form of cause.Params. The payout address is a Neo
// address string; an empty string decodes to the zero hash so the registry
// reports it as an invalid wallet address.
type causeParams struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	LongDescription string `json:"long_description"`
	ImageSrc        string `json:"image_src"`
	Category        string `json:"category"`
	Website         string `json:"website"`
	Goal            uint64 `json:"goal"`
	WalletAddress   string `json:"wallet_address"`
	IsActive        bool   `json:"is_active"`
	Featured        bool   `json:"featured"`
}

func (p causeParams) toParams() (cause.Params, error) {
	var wallet util.Uint160
	if p.WalletAddress != "" {
		var err error
		wallet, err = cause.ParseAddress(p.WalletAddress)
		if err != nil {
			return cause.Params{}, errors.InvalidFormat("wallet_address", "must be a Neo address or 0x script hash")
		}
	}
	return cause.Params{
		Name:            p.Name,
		Description:     p.Description,
		LongDescription: p.LongDescription,
		ImageSrc:        p.ImageSrc,
		Category:        p.Category,
		Website:         p.Website,
		Goal:            p.Goal,
		WalletAddress:   wallet,
		IsActive:        p.IsActive,
		Featured:        p.Featured,
	}, nil
}

type causeResponse struct {
	ID uint64 `json:"id"`
	causeParams
	Raised      uint64    `json:"raised"`
	DonorsCount uint64    `json:"donors_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func newCauseResponse(c cause.Cause) causeResponse {
	return causeResponse{
		ID: c.ID,
		causeParams: causeParams{
			Name:            c.Name,
			Description:     c.Description,
			LongDescription: c.LongDescription,
			ImageSrc:        c.ImageSrc,
			Category:        c.Category,
			Website:         c.Website,
			Goal:            c.Goal,
			WalletAddress:   cause.FormatAddress(c.WalletAddress),
			IsActive:        c.IsActive,
			Featured:        c.Featured,
		},
		Raised:      c.Raised,
		DonorsCount: c.DonorsCount,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

type donationResponse struct {
	CauseID   uint64 `json:"cause_id"`
	Donor     string `json:"donor"`
	Amount    uint64 `json:"amount"`
	Reference string `json:"reference"`
}

type ownerResponse struct {
	Owner       string `json:"owner,omitempty"`
	Initialized bool   `json:"initialized"`
}

type balanceResponse struct {
	Address   string `json:"address"`
	Balance   int64  `json:"balance"`
	Reserved  int64  `json:"reserved"`
	Available int64  `json:"available"`
}
