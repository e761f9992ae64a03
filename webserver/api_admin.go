package webserver

import (
	"encoding/json"
	"io/ioutil"
	"net/http"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"greensteps/access"
	"greensteps/policy"
)

//
// Conversion rate management (owner/admin)
// ------------------------------------------------------------------------------------
func (ws *WebServer) getRates(w http.ResponseWriter, r *http.Request) {

	log.Trace("API - getRates")

	rates, err := ws.policy.Rates()
	if err != nil {
		log.WithError(err).Error("API getRates")
		apiError(err, w)

		return
	}

	apiReturnJSON(rates, w)
}

// updateRate builds the handler for one of the three rate endpoints.
func (ws *WebServer) updateRate(key string) http.HandlerFunc {

	return func(w http.ResponseWriter, r *http.Request) {

		log.WithField("Rate", key).Trace("API - updateRate")

		if r.Method == http.MethodOptions {
			return
		}

		var body struct {
			Value uint64 `json:"value"`
		}

		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			badRequest(errors.Wrap(err, "Cannot decode body for updateRate"), w)
			return
		}

		var err error
		switch key {
		case policy.KeyStepsPerToken:
			err = ws.policy.UpdateStepsPerToken(caller(r), body.Value)
		case policy.KeyStepsPerCarbonCredit:
			err = ws.policy.UpdateStepsPerCarbonCredit(caller(r), body.Value)
		case policy.KeyCarbonCreditValue:
			err = ws.policy.UpdateCarbonCreditValue(caller(r), body.Value)
		}

		if err != nil {
			log.WithError(err).WithField("Rate", key).Error("API updateRate")
			apiError(err, w)

			return
		}

		apiReturnOk(w)
	}
}

//
// Role management (owner/admin)
// ------------------------------------------------------------------------------------
func (ws *WebServer) grantRole(w http.ResponseWriter, r *http.Request) {

	log.Trace("API - grantRole")

	if r.Method == http.MethodOptions {
		return
	}

	var body struct {
		Role string `json:"role"`
		ID   string `json:"id"`
	}

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badRequest(errors.Wrap(err, "Cannot decode body for grantRole"), w)
		return
	}

	if err := ws.registry.Grant(caller(r), body.Role, body.ID); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"Role": body.Role, "ID": body.ID,
		}).Error("API grantRole")
		apiError(err, w)

		return
	}

	apiReturnOk(w)
}

func (ws *WebServer) revokeRole(w http.ResponseWriter, r *http.Request) {

	log.Trace("API - revokeRole")

	if r.Method == http.MethodOptions {
		return
	}

	var body struct {
		Role string `json:"role"`
		ID   string `json:"id"`
	}

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badRequest(errors.Wrap(err, "Cannot decode body for revokeRole"), w)
		return
	}

	if err := ws.registry.Revoke(caller(r), body.Role, body.ID); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"Role": body.Role, "ID": body.ID,
		}).Error("API revokeRole")
		apiError(err, w)

		return
	}

	apiReturnOk(w)
}

func (ws *WebServer) transferOwnership(w http.ResponseWriter, r *http.Request) {

	log.Trace("API - transferOwnership")

	if r.Method == http.MethodOptions {
		return
	}

	var body struct {
		NewOwner string `json:"new_owner"`
	}

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badRequest(errors.Wrap(err, "Cannot decode body for transferOwnership"), w)
		return
	}

	if err := ws.registry.TransferOwnership(caller(r), body.NewOwner); err != nil {
		log.WithError(err).Error("API transferOwnership")
		apiError(err, w)

		return
	}

	apiReturnOk(w)
}

func (ws *WebServer) getRoles(w http.ResponseWriter, r *http.Request) {

	log.Trace("API - getRoles")

	owner, err := ws.registry.Owner()
	if err != nil {
		apiError(err, w)
		return
	}

	admins, err := ws.registry.Members(access.RoleAdmin)
	if err != nil {
		apiError(err, w)
		return
	}

	validators, err := ws.registry.Members(access.RoleValidator)
	if err != nil {
		apiError(err, w)
		return
	}

	apiReturnJSON(map[string]interface{}{
		"owner":      owner,
		"admins":     admins,
		"validators": validators,
	}, w)
}

//
// Notifier configuration
// ------------------------------------------------------------------------------------
func (ws *WebServer) getNotificationsConfig(w http.ResponseWriter, r *http.Request) {

	log.Trace("API - getNotificationsConfig")

	config, err := ws.notifications.GetConfig()
	if err != nil {
		log.WithError(err).Error("API getNotificationsConfig")
		apiError(err, w)

		return
	}

	apiReturnJSON(config, w)
}

func (ws *WebServer) setNotificationsConfig(w http.ResponseWriter, r *http.Request) {

	log.Trace("API - setNotificationsConfig")

	if r.Method == http.MethodOptions {
		return
	}

	// Only the owner or an admin may change notifier settings
	if err := ws.registry.Require(caller(r), access.OwnerOrAdmin); err != nil {
		apiError(err, w)
		return
	}

	body, err := ioutil.ReadAll(r.Body)
	if err != nil {
		badRequest(errors.Wrap(err, "Cannot read body for setNotificationsConfig"), w)
		return
	}

	var configs map[string]json.RawMessage
	if err := json.Unmarshal(body, &configs); err != nil {
		badRequest(errors.Wrap(err, "Cannot decode notifier configs"), w)
		return
	}

	for notifier, config := range configs {
		if err := ws.notifications.Configure(notifier, config, true); err != nil {
			log.WithError(err).WithField("Notifier", notifier).Error("API setNotificationsConfig")
			apiError(err, w)

			return
		}
	}

	apiReturnOk(w)
}
