package main

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/ardanlabs/dpos/app/services/node/handlers"
	"github.com/ardanlabs/dpos/app/services/node/handlers/v1/public"
	"github.com/ardanlabs/dpos/foundation/blockchain/database"
	"github.com/ardanlabs/dpos/foundation/blockchain/database/storage/badger"
	"github.com/ardanlabs/dpos/foundation/blockchain/genesis"
	"github.com/ardanlabs/dpos/foundation/blockchain/mempool"
	"github.com/ardanlabs/dpos/foundation/blockchain/reward"
	"github.com/ardanlabs/dpos/foundation/blockchain/signature"
	"github.com/ardanlabs/dpos/foundation/blockchain/state"
	"github.com/ardanlabs/dpos/foundation/blockchain/worker"
	"github.com/ardanlabs/dpos/foundation/events"
	"github.com/ardanlabs/dpos/foundation/logger"
	"github.com/ardanlabs/dpos/foundation/nameservice"
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

	// This is all the configuration for the application and the default values.
	// Configuration values will be passed through the application as individual
	// values.
	cfg := struct {
		conf.Version
		Web struct {
			ReadTimeout     time.Duration `conf:"default:5s"`
			WriteTimeout    time.Duration `conf:"default:10s"`
			IdleTimeout     time.Duration `conf:"default:120s"`
			ShutdownTimeout time.Duration `conf:"default:20s"`
			DebugHost       string        `conf:"default:0.0.0.0:7080"`
			PublicHost      string        `conf:"default:0.0.0.0:8080"`
			PrivateHost     string        `conf:"default:0.0.0.0:9080"`
		}
		Log struct {
			Path       string
			MaxSizeMB  int `conf:"default:100"`
			MaxBackups int `conf:"default:10"`
			MaxAgeDays int `conf:"default:30"`
		}
		State struct {
			DBPath              string   `conf:"default:zblock/chain"`
			InMemory            bool     `conf:"default:false"`
			GenesisPath         string   `conf:"default:zblock/genesis.json"`
			MaxPayloadLength    int      `conf:"default:15360"`
			MinBlockHeaderCache int      `conf:"default:309"`
			MaxBlockHeaderCache int      `conf:"default:515"`
			RewardDistance      uint32   `conf:"default:3000000"`
			RewardOffset        uint32   `conf:"default:1451520"`
			RewardMilestones    []uint64 `conf:"default:50000000000;40000000000;30000000000;20000000000;10000000000"`
		}
		NameService struct {
			Folder string `conf:"default:zblock/keys/"`
		}
		Forger struct {
			KeyPaths        []string
			Strategy        string `conf:"default:fee"`
			MaxTransactions int    `conf:"default:64"`
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "copyright information here",
		},
	}

	// Parse will set the defaults and then look for any overriding values
	// in environment variables and command line flags.
	const prefix = "NODE"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	// A configured log file replaces the stdout only logger.
	if cfg.Log.Path != "" {
		fileLog, err := logger.NewWithFile("NODE", logger.File{
			Path:       cfg.Log.Path,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
		})
		if err != nil {
			return fmt.Errorf("constructing file logger: %w", err)
		}
		defer fileLog.Sync()
		log = fileLog
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

	gen, err := genesis.Load(cfg.State.GenesisPath)
	if err != nil {
		return fmt.Errorf("unable to load genesis file: %w", err)
	}

	networkID, err := gen.NetworkIDBytes()
	if err != nil {
		return fmt.Errorf("genesis network id: %w", err)
	}

	genesisBlock, err := gen.Block()
	if err != nil {
		return fmt.Errorf("genesis block: %w", err)
	}

	log.Infow("startup", "status", "genesis", "id", genesisBlock.Header.IDHex(), "height", genesisBlock.Height(), "validators", len(gen.Validators))

	// =========================================================================
	// Name Service Support

	// The nameservice package provides name resolution for validator addresses
	// based on the key files found in the configured folder.
	ns, err := nameservice.New(cfg.NameService.Folder)
	if err != nil {
		return fmt.Errorf("unable to load name service: %w", err)
	}

	for address, name := range ns.Copy() {
		log.Infow("startup", "status", "nameservice", "name", name, "address", address)
	}

	// =========================================================================
	// Storage Support

	var storage database.Storage
	switch cfg.State.InMemory {
	case true:
		storage, err = badger.NewInMemory()
	default:
		storage, err = badger.New(cfg.State.DBPath)
	}
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		log.Infow("shutdown", "status", "closing storage")
		storage.Close()
	}()

	// =========================================================================
	// Blockchain Support

	// The blockchain packages accept a function of this signature to allow the
	// application to log. For now, these raw messages are sent to any websocket
	// client that is connected into the system through the events package.
	evts := events.New()
	ev := func(v string, args ...any) {
		s := fmt.Sprintf(v, args...)
		log.Infow(s, "traceid", "00000000-0000-0000-0000-000000000000")
		evts.SendText("log", s)
	}

	// Every commit and removal is pushed to the websocket clients.
	observer := state.ObserverFuncs{
		Committed: func(e state.Event) {
			if err := evts.SendJSON("block:committed", public.NewBlockEvent(e.Block, e.UpdatedAccounts)); err != nil {
				log.Errorw("events", "status", "sending block:committed", "height", e.Block.Height(), "ERROR", err)
			}
		},
		Removed: func(e state.Event) {
			if err := evts.SendJSON("block:removed", public.NewBlockEvent(e.Block, e.UpdatedAccounts)); err != nil {
				log.Errorw("events", "status", "sending block:removed", "height", e.Block.Height(), "ERROR", err)
			}
		},
	}

	// The mempool holds the submitted transactions until they are forged. It
	// observes the chain to drop what gets committed.
	mp, err := mempool.NewWithStrategy(cfg.Forger.Strategy)
	if err != nil {
		return fmt.Errorf("constructing mempool: %w", err)
	}

	// The state value represents the blockchain node and manages the blockchain
	// database and provides an API for application support.
	st, err := state.New(state.Config{
		NetworkID:    networkID,
		GenesisBlock: genesisBlock,
		BlockTime:    time.Duration(gen.BlockTime) * time.Second,
		RewardArgs: reward.Args{
			Distance:     cfg.State.RewardDistance,
			RewardOffset: cfg.State.RewardOffset,
			Milestones:   cfg.State.RewardMilestones,
		},
		MaxPayloadLength:    cfg.State.MaxPayloadLength,
		MinBlockHeaderCache: cfg.State.MinBlockHeaderCache,
		MaxBlockHeaderCache: cfg.State.MaxBlockHeaderCache,
		Storage:             storage,
		Observers:           []state.Observer{observer, mp},
		EvHandler:           ev,
	})
	if err != nil {
		return err
	}

	if err := st.Init(context.Background()); err != nil {
		return fmt.Errorf("initializing chain: %w", err)
	}

	log.Infow("startup", "status", "chain initialized", "height", st.LastBlock().Height(), "id", st.LastBlock().Header.IDHex())

	for _, v := range st.Validators() {
		log.Infow("startup", "status", "validator", "name", ns.Lookup(v.Address), "address", v.Address, "minActiveHeight", v.MinActiveHeight)
	}

	// =========================================================================
	// Forger Support

	// A node holding validator keys forges the blocks of the slots they own.
	if len(cfg.Forger.KeyPaths) > 0 {
		keys := make([]ed25519.PrivateKey, len(cfg.Forger.KeyPaths))
		for i, path := range cfg.Forger.KeyPaths {
			if keys[i], err = signature.LoadKey(path); err != nil {
				return fmt.Errorf("loading forger key %s: %w", path, err)
			}
		}

		wrk, err := worker.New(worker.Config{
			State:           st,
			Mempool:         mp,
			Keys:            keys,
			MaxTransactions: cfg.Forger.MaxTransactions,
			EvHandler:       ev,
		})
		if err != nil {
			return fmt.Errorf("constructing worker: %w", err)
		}

		for _, address := range wrk.Addresses() {
			log.Infow("startup", "status", "forging", "name", ns.Lookup(address), "address", address)
		}

		wrk.Run()
		defer func() {
			log.Infow("shutdown", "status", "stopping forger")
			wrk.Shutdown()
		}()
	}

	// =========================================================================
	// Start Debug Service

	log.Infow("startup", "status", "debug v1 router started", "host", cfg.Web.DebugHost)

	// The Debug function returns a mux to listen and serve on for all the debug
	// related endpoints. This includes the standard library endpoints.

	// Construct the mux for the debug calls.
	debugMux := handlers.DebugMux(build, log, st)

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
		Shutdown: shutdown,
		Log:      log,
		State:    st,
		Mempool:  mp,
		NS:       ns,
		Evts:     evts,
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
	// Start Private Service

	log.Infow("startup", "status", "initializing V1 private API support")

	// Construct the mux for the private API calls.
	privateMux := handlers.PrivateMux(handlers.MuxConfig{
		Shutdown: shutdown,
		Log:      log,
		State:    st,
		Mempool:  mp,
	})

	// Construct a server to service the requests against the mux.
	private := http.Server{
		Addr:         cfg.Web.PrivateHost,
		Handler:      privateMux,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	// Start the service listening for api requests.
	go func() {
		log.Infow("startup", "status", "private api router started", "host", private.Addr)
		serverErrors <- private.ListenAndServe()
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

		// Give outstanding requests a deadline for completion.
		ctx, cancelPri := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancelPri()

		// Asking listener to shut down and shed load.
		log.Infow("shutdown", "status", "shutdown private API started")
		if err := private.Shutdown(ctx); err != nil {
			private.Close()
			return fmt.Errorf("could not stop private service gracefully: %w", err)
		}

		// Give outstanding requests a deadline for completion.
		ctx, cancelPub := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancelPub()

		// Asking listener to shut down and shed load.
		log.Infow("shutdown", "status", "shutdown public API started")
		if err := public.Shutdown(ctx); err != nil {
			public.Close()
			return fmt.Errorf("could not stop public service gracefully: %w", err)
		}
	}

	return nil
}
