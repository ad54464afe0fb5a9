package causes

import "errors"

// Failure kinds of the registry. Every failure aborts the whole operation
// with no partial effect; callers match them with errors.Is.
var (
	ErrUnauthorized         = errors.New("caller is not the owner")
	ErrCauseNotFound        = errors.New("cause not found")
	ErrCauseInactive        = errors.New("cause is not accepting donations")
	ErrZeroAmount           = errors.New("donation amount must be greater than zero")
	ErrInvalidWalletAddress = errors.New("wallet address must not be the zero address")
	ErrTransferFailed       = errors.New("transfer to cause wallet failed")
	ErrInvalidOwner         = errors.New("owner must not be the zero address")
	ErrAmountOverflow       = errors.New("raised amount overflows")
	ErrReentrantCall        = errors.New("re-entrant call into the registry")
)
