package httpapi

import (
	stderrors "errors"
	"net/http"

	"github.com/R3E-Network/cause_registry/internal/app/services/causes"
	"github.com/R3E-Network/cause_registry/internal/errors"
	"github.com/R3E-Network/cause_registry/internal/gasbank"
)

var registryErrors = []struct {
	target  error
	code    errors.ErrorCode
	message string
	status  int
}{
	{causes.ErrUnauthorized, errors.CodeUnauthorized, "Caller is not the registry owner", http.StatusForbidden},
	{causes.ErrCauseNotFound, errors.CodeCauseNotFound, "Cause not found", http.StatusNotFound},
	{causes.ErrCauseInactive, errors.CodeCauseInactive, "Cause is not accepting donations", http.StatusConflict},
	{causes.ErrZeroAmount, errors.CodeZeroAmount, "Donation amount must be positive", http.StatusBadRequest},
	{causes.ErrInvalidWalletAddress, errors.CodeInvalidWalletAddress, "Cause payout address is not set", http.StatusBadRequest},
	{causes.ErrInvalidOwner, errors.CodeInvalidOwner, "Owner address is not valid", http.StatusBadRequest},
	{causes.ErrTransferFailed, errors.CodeTransferFailed, "Donation transfer failed", http.StatusBadGateway},
	{causes.ErrAmountOverflow, errors.CodeAmountOverflow, "Amount would overflow", http.StatusBadRequest},
	{causes.ErrReentrantCall, errors.CodeReentrantCall, "Re-entrant registry call", http.StatusConflict},
	{gasbank.ErrBalanceOverflow, errors.CodeAmountOverflow, "Balance would overflow", http.StatusBadRequest},
}

// toServiceError maps registry and ledger errors to the HTTP error envelope.
func toServiceError(err error) *errors.ServiceError {
	if se := errors.GetServiceError(err); se != nil {
		return se
	}
	for _, m := range registryErrors {
		if stderrors.Is(err, m.target) {
			se := errors.New(m.code, m.message, m.status, err)
			if m.target == causes.ErrTransferFailed {
				se = se.WithDetails("reason", err.Error())
			}
			return se
		}
	}
	switch {
	case stderrors.Is(err, gasbank.ErrAccountNotFound):
		return errors.NotFound("gas bank account", "")
	case stderrors.Is(err, gasbank.ErrInvalidAmount):
		return errors.InvalidFormat("amount", "must be positive")
	}
	return errors.Internal("", err)
}
