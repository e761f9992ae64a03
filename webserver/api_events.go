package webserver

import (
	"net/http"
	"strconv"

	log "github.com/sirupsen/logrus"
)

// getEvents pages through the append-only log. Indexers poll with the
// last sequence number they have seen.
func (ws *WebServer) getEvents(w http.ResponseWriter, r *http.Request) {

	log.Trace("API - getEvents")

	keys := r.URL.Query()

	// Both parameters are optional; malformed values read as zero
	since, _ := strconv.ParseUint(keys.Get("since"), 10, 64)
	limit, _ := strconv.Atoi(keys.Get("limit"))

	eventPage, err := ws.events.Since(since, limit)
	if err != nil {
		log.WithError(err).Error("API getEvents")
		apiError(err, w)

		return
	}

	head, err := ws.events.Head()
	if err != nil {
		log.WithError(err).Error("API getEvents")
		apiError(err, w)

		return
	}

	apiReturnJSON(map[string]interface{}{
		"head":   head,
		"events": eventPage,
	}, w)
}
