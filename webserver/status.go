package webserver

import (
	"net/http"

	"github.com/pkg/errors"

	"greensteps/access"
	"greensteps/balance"
	"greensteps/ledger"
	"greensteps/policy"
	"greensteps/staking"
)

// statusFor maps the core's error taxonomy onto HTTP statuses.
// Authorization failures are 403; every rejected-input or
// rejected-state error is 400. Anything else is a server fault.
func statusFor(err error) int {

	switch errors.Cause(err) {

	case access.ErrNotAuthorized:
		return http.StatusForbidden

	case ledger.ErrZeroSteps,
		ledger.ErrAlreadySubmitted,
		ledger.ErrNoSubmission,
		ledger.ErrAlreadyClaimed,
		ledger.ErrRewardOverflow,
		policy.ErrInvalidRate,
		access.ErrUnknownRole,
		balance.ErrZeroAmount,
		balance.ErrInsufficientBalance,
		staking.ErrBelowMinimumStake,
		staking.ErrPositionExists,
		staking.ErrNoActivePosition,
		staking.ErrNotMatured:
		return http.StatusBadRequest
	}

	return http.StatusInternalServerError
}
