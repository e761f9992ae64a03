package webserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"greensteps/access"
	"greensteps/balance"
	"greensteps/events"
	"greensteps/ledger"
	"greensteps/notifications"
	"greensteps/policy"
	"greensteps/staking"
)

// CallerHeader carries the attributed caller identity. The wallet
// bridge in front of this service is responsible for filling it in;
// this core treats it as trusted input.
const CallerHeader = "X-GreenSteps-Caller"

type WebServer struct {
	ledger        *ledger.Ledger
	staking       *staking.Engine
	policy        *policy.Policy
	registry      *access.Registry
	balances      *balance.Store
	events        *events.Log
	notifications *notifications.NotificationHandler

	httpSvr *http.Server
}

type WebServerArgs struct {
	Ledger              *ledger.Ledger
	Staking             *staking.Engine
	Policy              *policy.Policy
	Registry            *access.Registry
	Balances            *balance.Store
	Events              *events.Log
	NotificationHandler *notifications.NotificationHandler

	BindAddr string
	BindPort int

	ShutdownChannel <-chan interface{}
	WG              *sync.WaitGroup
}

type ApiError struct {
	Error string `json:"error"`
}

func Start(args WebServerArgs) (*WebServer, error) {

	ws := &WebServer{
		ledger:        args.Ledger,
		staking:       args.Staking,
		policy:        args.Policy,
		registry:      args.Registry,
		balances:      args.Balances,
		events:        args.Events,
		notifications: args.NotificationHandler,
	}

	router := ws.router()

	// CORS for the dashboard UI
	corsHandler := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedHeaders([]string{"Content-Type", CallerHeader}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
	)

	httpAddr := fmt.Sprintf("%s:%d", args.BindAddr, args.BindPort)
	ws.httpSvr = &http.Server{
		Handler:      corsHandler(router),
		Addr:         httpAddr,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}

	log.WithField("Addr", httpAddr).Info("GreenSteps API listening")

	// Launch webserver in background
	go func() {
		if err := ws.httpSvr.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Httpserver: ListenAndServe()")
		}
		log.Info("Httpserver: Shutdown")
	}()

	// Wait for shutdown signal on channel
	go func() {
		<-args.ShutdownChannel

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := ws.httpSvr.Shutdown(ctx); err != nil {
			log.WithError(err).Error("Httpserver: Shutdown()")
		}

		args.WG.Done()
	}()

	return ws, nil
}

func (ws *WebServer) router() *mux.Router {

	router := mux.NewRouter()

	router.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	})

	// Reward ledger
	router.HandleFunc("/api/steps/submit", ws.submitSteps).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/api/rewards/claim", ws.claimWeeklyRewards).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/api/stats/weekly", ws.getWeeklyStats).Methods(http.MethodGet)
	router.HandleFunc("/api/stats/user", ws.getUserStats).Methods(http.MethodGet)
	router.HandleFunc("/api/stats/history", ws.getUserHistory).Methods(http.MethodGet)
	router.HandleFunc("/api/balance", ws.getBalance).Methods(http.MethodGet)

	// Staking
	router.HandleFunc("/api/staking/stake", ws.stakeTokens).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/api/staking/claim", ws.claimStakingRewards).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/api/staking/cancel", ws.cancelStaking).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/api/staking/position", ws.getStakePosition).Methods(http.MethodGet)

	// Conversion policy
	router.HandleFunc("/api/rates", ws.getRates).Methods(http.MethodGet)
	router.HandleFunc("/api/rates/steps-per-token", ws.updateRate(policy.KeyStepsPerToken)).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/api/rates/steps-per-carbon-credit", ws.updateRate(policy.KeyStepsPerCarbonCredit)).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/api/rates/carbon-credit-value", ws.updateRate(policy.KeyCarbonCreditValue)).Methods(http.MethodPost, http.MethodOptions)

	// Access registry
	router.HandleFunc("/api/access/grant", ws.grantRole).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/api/access/revoke", ws.revokeRole).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/api/access/transfer", ws.transferOwnership).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/api/access/roles", ws.getRoles).Methods(http.MethodGet)

	// Event log for off-chain indexers
	router.HandleFunc("/api/events", ws.getEvents).Methods(http.MethodGet)

	// Notifier configuration
	router.HandleFunc("/api/notifications", ws.getNotificationsConfig).Methods(http.MethodGet)
	router.HandleFunc("/api/notifications", ws.setNotificationsConfig).Methods(http.MethodPost, http.MethodOptions)

	return router
}

func apiError(err error, w http.ResponseWriter) {

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(err))

	if encodeErr := json.NewEncoder(w).Encode(ApiError{err.Error()}); encodeErr != nil {
		log.WithError(encodeErr).Error("Unable to encode API error")
	}
}

func apiReturnOk(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

func apiReturnJSON(v interface{}, w http.ResponseWriter) {

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("UI return failure")
	}
}

// caller pulls the attributed identity off the request.
func caller(r *http.Request) string {
	return r.Header.Get(CallerHeader)
}
