package webserver

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"greensteps/notifications"
)

func badRequest(err error, w http.ResponseWriter) {

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(ApiError{err.Error()})
}

//
// Record a week of steps for a user (validator or higher)
// ------------------------------------------------------------------------------------
func (ws *WebServer) submitSteps(w http.ResponseWriter, r *http.Request) {

	log.Trace("API - submitSteps")

	// CORS preflight
	if r.Method == http.MethodOptions {
		return
	}

	var body struct {
		User  string `json:"user"`
		Steps uint64 `json:"steps"`
		Week  int    `json:"week"`
	}

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badRequest(errors.Wrap(err, "Cannot decode body for submitSteps"), w)
		return
	}

	if err := ws.ledger.SubmitSteps(caller(r), body.User, body.Steps, body.Week); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"User": body.User, "Week": body.Week,
		}).Error("API submitSteps")
		apiError(err, w)

		return
	}

	apiReturnOk(w)
}

//
// Claim the caller's rewards for a week
// ------------------------------------------------------------------------------------
func (ws *WebServer) claimWeeklyRewards(w http.ResponseWriter, r *http.Request) {

	log.Trace("API - claimWeeklyRewards")

	if r.Method == http.MethodOptions {
		return
	}

	var body struct {
		Week int `json:"week"`
	}

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badRequest(errors.Wrap(err, "Cannot decode body for claimWeeklyRewards"), w)
		return
	}

	record, err := ws.ledger.ClaimWeeklyRewards(caller(r), body.Week)
	if err != nil {
		log.WithError(err).WithField("Week", body.Week).Error("API claimWeeklyRewards")
		apiError(err, w)

		return
	}

	ws.notifications.SendNotification(
		"Claimed "+record.TokensEarned.String()+" tokens for week "+strconv.Itoa(body.Week),
		notifications.REWARDS)

	apiReturnJSON(record, w)
}

//
// Stats reads; open to anyone
// ------------------------------------------------------------------------------------
func (ws *WebServer) getWeeklyStats(w http.ResponseWriter, r *http.Request) {

	log.Trace("API - getWeeklyStats")

	keys := r.URL.Query()

	week, err := strconv.Atoi(keys.Get("week"))
	if err != nil {
		badRequest(errors.Wrap(err, "Unable to parse week"), w)
		return
	}

	record, err := ws.ledger.WeeklyStats(keys.Get("user"), week)
	if err != nil {
		log.WithError(err).Error("API getWeeklyStats")
		apiError(err, w)

		return
	}

	apiReturnJSON(record, w)
}

func (ws *WebServer) getUserStats(w http.ResponseWriter, r *http.Request) {

	log.Trace("API - getUserStats")

	totals, err := ws.ledger.UserStats(r.URL.Query().Get("user"))
	if err != nil {
		log.WithError(err).Error("API getUserStats")
		apiError(err, w)

		return
	}

	apiReturnJSON(totals, w)
}

func (ws *WebServer) getUserHistory(w http.ResponseWriter, r *http.Request) {

	log.Trace("API - getUserHistory")

	history, err := ws.ledger.UserHistory(r.URL.Query().Get("user"))
	if err != nil {
		log.WithError(err).Error("API getUserHistory")
		apiError(err, w)

		return
	}

	apiReturnJSON(history, w)
}

func (ws *WebServer) getBalance(w http.ResponseWriter, r *http.Request) {

	log.Trace("API - getBalance")

	user := r.URL.Query().Get("user")

	bal, err := ws.balances.Get(user)
	if err != nil {
		log.WithError(err).Error("API getBalance")
		apiError(err, w)

		return
	}

	apiReturnJSON(map[string]interface{}{
		"user":    user,
		"balance": bal,
		"display": bal.String(),
	}, w)
}
