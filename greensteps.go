package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	log "github.com/sirupsen/logrus"

	"greensteps/access"
	"greensteps/balance"
	"greensteps/events"
	"greensteps/ledger"
	"greensteps/notifications"
	"greensteps/policy"
	"greensteps/staking"
	"greensteps/storage"
	"greensteps/webserver"
)

var server *GreenStepsServer

type GreenStepsServer struct {
	*storage.Storage
	*access.Registry
	*policy.Policy
	*balance.Store
	*events.Log
	*ledger.Ledger
	*staking.Engine
	*notifications.NotificationHandler
	*webserver.WebServer
	Flags
}

// Flags Server flags
type Flags struct {
	owner    string
	logDebug bool
	logTrace bool
	bindAddr string
	bindPort int
	dataDir  string
}

func main() {

	var (
		err error
		wg  sync.WaitGroup
	)

	server = new(GreenStepsServer)
	server.parseArgs()

	// Logging
	setupLogging(server.logDebug, server.logTrace)

	// Clean exits
	shutdownChannel := setupCloseChannel()

	// Open/Init database
	server.Storage, err = storage.InitStorage(server.dataDir)
	if err != nil {
		log.WithError(err).Fatal("Could not open storage")
	}

	// Start
	log.Infof("=== GreenSteps v%s (%s) ===", version, commitHash)

	// Event log is shared by every component that mutates state
	server.Log = events.NewLog(server.Storage)

	// Access registry; seed the owner on first run
	server.Registry = access.NewRegistry(server.Storage, server.Log)

	owner, err := server.Registry.Bootstrap(server.owner)
	if err != nil {
		log.WithError(err).Fatal("Could not bootstrap access registry")
	}
	log.WithField("Owner", owner).Info("Access registry ready")

	// Conversion policy; install default rates on first run
	server.Policy = policy.NewPolicy(server.Storage, server.Registry, server.Log)
	if err := server.Policy.Bootstrap(); err != nil {
		log.WithError(err).Fatal("Could not bootstrap conversion rates")
	}

	rates, err := server.Policy.Rates()
	if err != nil {
		log.WithError(err).Fatal("Could not read conversion rates")
	}
	log.WithFields(log.Fields{
		"StepsPerToken":        rates.StepsPerToken,
		"StepsPerCarbonCredit": rates.StepsPerCarbonCredit,
		"CarbonCreditValue":    rates.CarbonCreditValue,
	}).Debug("Loaded conversion rates")

	// Balance store, reward ledger, staking engine
	server.Store = balance.NewStore(server.Storage)
	server.Ledger = ledger.NewLedger(server.Storage, server.Registry, server.Policy, server.Store, server.Log)
	server.Engine = staking.NewEngine(server.Storage, server.Store, server.Log)

	// Global notification handler
	server.NotificationHandler, err = notifications.NewHandler(server.Storage)
	if err != nil {
		log.WithError(err).Fatal("Unable to load notifiers")
	}

	// Start web API
	wg.Add(1)
	args := webserver.WebServerArgs{
		Ledger:              server.Ledger,
		Staking:             server.Engine,
		Policy:              server.Policy,
		Registry:            server.Registry,
		Balances:            server.Store,
		Events:              server.Log,
		NotificationHandler: server.NotificationHandler,
		BindAddr:            server.bindAddr,
		BindPort:            server.bindPort,
		ShutdownChannel:     shutdownChannel,
		WG:                  &wg,
	}

	server.WebServer, err = webserver.Start(args)
	if err != nil {
		log.WithError(err).Error("Unable to start web server")
		os.Exit(1)
	}

	// Block until shutdown signal
	<-shutdownChannel
	log.Warn("Shutting things down...")

	// Wait for threads to finish
	wg.Wait()

	// Clean close DB, logs
	server.Storage.Close()
	closeLogging()

	os.Exit(0)
}

func setupCloseChannel() chan interface{} {

	// Create channels for signals
	signalChan := make(chan os.Signal, 1)
	closingChan := make(chan interface{}, 1)

	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-signalChan
		close(closingChan)
	}()

	return closingChan
}

func (s *GreenStepsServer) parseArgs() {

	// Args
	flag.StringVar(&s.owner, "owner", "", "Owner identity to seed the access registry on first run")

	flag.BoolVar(&s.logDebug, "debug", false, "Enable debug-level logging")
	flag.BoolVar(&s.logTrace, "trace", false, "Enable trace-level logging")

	flag.StringVar(&s.bindAddr, "bindaddr", "127.0.0.1", "Address on which to bind the API server")
	flag.IntVar(&s.bindPort, "bindport", 8089, "Port on which to bind the API server")

	flag.StringVar(&s.dataDir, "datadir", "./", "Location of database")

	printVersion := flag.Bool("version", false, "Show version and exit")

	flag.Parse()

	// Handle print version and exit
	if *printVersion {
		fmt.Printf("GreenSteps %s (%s)\n", version, commitHash)
		os.Exit(0)
	}
}
