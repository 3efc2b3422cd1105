package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/ardanlabs/powchain/app/services/node/handlers"
	"github.com/ardanlabs/powchain/business/sys/metrics"
	"github.com/ardanlabs/powchain/foundation/blockchain/chain"
	"github.com/ardanlabs/powchain/foundation/blockchain/genesis"
	"github.com/ardanlabs/powchain/foundation/blockchain/storage/disk"
	"github.com/ardanlabs/powchain/foundation/blockchain/storage/ethledger"
	"github.com/ardanlabs/powchain/foundation/blockchain/storage/memory"
	"github.com/ardanlabs/powchain/foundation/blockchain/worker"
	"github.com/ardanlabs/powchain/foundation/events"
	"github.com/ardanlabs/powchain/foundation/logger"
	"go.uber.org/zap"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

func main() {

	// Construct the application logger.
	log, err := logger.New("NODE")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	// Perform the startup and shutdown sequence.
	if err := run(log); err != nil {
		log.Errorw("startup", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {

	// =========================================================================
	// Configuration

	cfg := struct {
		conf.Version
		Web struct {
			ReadTimeout     time.Duration `conf:"default:5s"`
			WriteTimeout    time.Duration `conf:"default:120s"`
			IdleTimeout     time.Duration `conf:"default:120s"`
			ShutdownTimeout time.Duration `conf:"default:20s"`
			DebugHost       string        `conf:"default:0.0.0.0:7080"`
			PublicHost      string        `conf:"default:0.0.0.0:8080"`
			CORSOrigin      string        `conf:"default:*"`
		}
		Chain struct {
			GenesisPath string `conf:"default:zblock/genesis.yaml"`
		}
		Storage struct {
			Kind        string        `conf:"default:disk,help:none memory disk or ethledger"`
			DBPath      string        `conf:"default:zblock/blocks"`
			LoadPolicy  string        `conf:"default:fallback,help:fallback or fatal"`
			LoadRetries int           `conf:"default:2"`
			SaveRetries int           `conf:"default:3"`
			RetryDelay  time.Duration `conf:"default:2s"`
			SaveTimeout time.Duration `conf:"default:30s"`
			QueueSize   int           `conf:"default:64"`
		}
		Ledger struct {
			URL             string        `conf:"default:http://127.0.0.1:8545"`
			ContractAddress string        `conf:"default:0x5FbDB2315678afecb367f032d93F642f64180aa3"`
			PrivateKey      string        `conf:"mask"`
			ReceiptPoll     time.Duration `conf:"default:500ms"`
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "proof of work hash chain node",
		},
	}

	// Parse will set the defaults and then look for any overriding values
	// in environment variables and command line flags.
	const prefix = "POWCHAIN"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	// =========================================================================
	// App Starting

	log.Infow("starting service", "version", build)
	defer log.Infow("shutdown complete")

	// Display the current configuration to the logs.
	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Infow("startup", "config", out)

	// =========================================================================
	// Genesis Support

	gen, err := genesis.Load(cfg.Chain.GenesisPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("loading genesis: %w", err)
		}
		log.Infow("startup", "status", "genesis file not found: using defaults", "path", cfg.Chain.GenesisPath)
		gen = genesis.Default()
	}

	chainCfg, err := gen.ChainConfig()
	if err != nil {
		return fmt.Errorf("genesis: %w", err)
	}

	log.Infow("startup", "status", "genesis", "name", gen.Name, "difficulty", gen.Difficulty, "hash", gen.HashAlgorithm)

	// =========================================================================
	// Storage Support

	storage, err := openStorage(cfg.Storage.Kind, cfg.Storage.DBPath, ethledger.Config{
		URL:             cfg.Ledger.URL,
		ContractAddress: cfg.Ledger.ContractAddress,
		PrivateKey:      cfg.Ledger.PrivateKey,
		ReceiptPoll:     cfg.Ledger.ReceiptPoll,
	})
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}

	loadPolicy, err := chain.ParseLoadPolicy(cfg.Storage.LoadPolicy)
	if err != nil {
		return err
	}

	// =========================================================================
	// Blockchain Support

	// The blockchain packages accept a function of this signature to allow the
	// application to log. For now, these raw messages are sent to any websocket
	// client that is connected into the system through the events package.
	evts := events.New()
	ev := func(v string, args ...any) {
		s := fmt.Sprintf(v, args...)
		log.Infow(s, "traceid", "00000000-0000-0000-0000-000000000000")
		evts.Send(s)
	}

	chainCfg.Storage = storage
	chainCfg.LoadPolicy = loadPolicy
	chainCfg.LoadRetries = cfg.Storage.LoadRetries
	chainCfg.SaveRetries = cfg.Storage.SaveRetries
	chainCfg.RetryDelay = cfg.Storage.RetryDelay
	chainCfg.SaveTimeout = cfg.Storage.SaveTimeout
	chainCfg.QueueSize = cfg.Storage.QueueSize
	chainCfg.EvHandler = ev

	// The chain either loads the existing blocks or mines the genesis block.
	c, err := chain.New(context.Background(), chainCfg)
	if err != nil {
		if storage != nil {
			storage.Close()
		}
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		log.Infow("shutdown", "status", "flushing storage")
		if err := c.Shutdown(ctx); err != nil {
			log.Errorw("shutdown", "status", "flushing storage", "ERROR", err)
		}
	}()

	metrics.SetBlocks(c.Len())

	if err := c.Verify(); err != nil {
		log.Errorw("startup", "status", "WARNING: chain failed validation", "ERROR", err)
	}

	// The worker package implements the mining workflow so handlers don't
	// hold the chain themselves.
	w := worker.Run(c, ev)
	defer w.Shutdown()

	// =========================================================================
	// Start Debug Service

	log.Infow("startup", "status", "debug v1 router started", "host", cfg.Web.DebugHost)

	// The Debug function returns a mux to listen and serve on for all the debug
	// related endpoints. This includes the standard library endpoints.

	// Construct the mux for the debug calls.
	debugMux := handlers.DebugMux(build, log, c)

	// Start the service listening for debug requests.
	// Not concerned with shutting this down with load shedding.
	go func() {
		if err := http.ListenAndServe(cfg.Web.DebugHost, debugMux); err != nil {
			log.Errorw("shutdown", "status", "debug v1 router closed", "host", cfg.Web.DebugHost, "ERROR", err)
		}
	}()

	// =========================================================================
	// Service Start/Stop Support

	// Make a channel to listen for an interrupt or terminate signal from the OS.
	// Use a buffered channel because the signal package requires it.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 1)

	// =========================================================================
	// Start Public Service

	log.Infow("startup", "status", "initializing V1 public API support")

	// Construct the mux for the public API calls.
	publicMux := handlers.PublicMux(handlers.MuxConfig{
		Shutdown:   shutdown,
		Log:        log,
		Name:       gen.Name,
		Chain:      c,
		Worker:     w,
		Evts:       evts,
		CORSOrigin: cfg.Web.CORSOrigin,
	})

	// Construct a server to service the requests against the mux.
	public := http.Server{
		Addr:         cfg.Web.PublicHost,
		Handler:      publicMux,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	// Start the service listening for api requests.
	go func() {
		log.Infow("startup", "status", "public api router started", "host", public.Addr)
		serverErrors <- public.ListenAndServe()
	}()

	// =========================================================================
	// Shutdown

	// Blocking main and waiting for shutdown.
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		log.Infow("shutdown", "status", "shutdown started", "signal", sig)
		defer log.Infow("shutdown", "status", "shutdown complete", "signal", sig)

		// Release any web sockets that are currently active.
		log.Infow("shutdown", "status", "shutdown web socket channels")
		evts.Shutdown()

		// Stop any mining in progress so those requests can complete.
		log.Infow("shutdown", "status", "shutdown mining worker")
		w.Shutdown()

		// Give outstanding requests a deadline for completion.
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		// Asking listener to shut down and shed load.
		log.Infow("shutdown", "status", "shutdown public API started")
		if err := public.Shutdown(ctx); err != nil {
			public.Close()
			return fmt.Errorf("could not stop public service gracefully: %w", err)
		}
	}

	return nil
}

// openStorage constructs the storage adapter for the configured kind. A nil
// storage runs the chain local only.
func openStorage(kind string, dbPath string, ledger ethledger.Config) (chain.Storage, error) {
	switch kind {
	case "", "none":
		return nil, nil

	case "memory":
		return memory.New(), nil

	case "disk":
		d, err := disk.New(dbPath)
		if err != nil {
			return nil, err
		}
		return d, nil

	case "ethledger":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		l, err := ethledger.New(ctx, ledger)
		if err != nil {
			return nil, err
		}
		return l, nil
	}

	return nil, fmt.Errorf("unknown storage kind %q", kind)
}
