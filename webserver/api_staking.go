package webserver

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"greensteps/amount"
	"greensteps/notifications"
)

//
// Open a time-locked stake position for the caller
// ------------------------------------------------------------------------------------
func (ws *WebServer) stakeTokens(w http.ResponseWriter, r *http.Request) {

	log.Trace("API - stakeTokens")

	if r.Method == http.MethodOptions {
		return
	}

	var body struct {
		// Decimal string with at most two places, e.g. "110.25"
		Amount string `json:"amount"`
	}

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badRequest(errors.Wrap(err, "Cannot decode body for stakeTokens"), w)
		return
	}

	amt, err := amount.FromString(body.Amount)
	if err != nil {
		badRequest(err, w)
		return
	}

	if err := ws.staking.Stake(caller(r), amt); err != nil {
		log.WithError(err).Error("API stakeTokens")
		apiError(err, w)

		return
	}

	apiReturnOk(w)
}

//
// Claim a matured position: principal + bonus
// ------------------------------------------------------------------------------------
func (ws *WebServer) claimStakingRewards(w http.ResponseWriter, r *http.Request) {

	log.Trace("API - claimStakingRewards")

	if r.Method == http.MethodOptions {
		return
	}

	payout, err := ws.staking.ClaimRewards(caller(r))
	if err != nil {
		log.WithError(err).Error("API claimStakingRewards")
		apiError(err, w)

		return
	}

	ws.notifications.SendNotification(
		"Stake matured: "+payout.String()+" tokens returned",
		notifications.STAKING)

	apiReturnJSON(map[string]interface{}{
		"payout":  payout,
		"display": payout.String(),
	}, w)
}

//
// Cancel a position at any time (early exit forfeits 2%)
// ------------------------------------------------------------------------------------
func (ws *WebServer) cancelStaking(w http.ResponseWriter, r *http.Request) {

	log.Trace("API - cancelStaking")

	if r.Method == http.MethodOptions {
		return
	}

	refund, err := ws.staking.Cancel(caller(r))
	if err != nil {
		log.WithError(err).Error("API cancelStaking")
		apiError(err, w)

		return
	}

	apiReturnJSON(map[string]interface{}{
		"refund":  refund,
		"display": refund.String(),
	}, w)
}

func (ws *WebServer) getStakePosition(w http.ResponseWriter, r *http.Request) {

	log.Trace("API - getStakePosition")

	position, err := ws.staking.PositionOf(r.URL.Query().Get("user"))
	if err != nil {
		log.WithError(err).Error("API getStakePosition")
		apiError(err, w)

		return
	}

	apiReturnJSON(position, w)
}
