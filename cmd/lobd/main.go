package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"lob/internal/api"
	"lob/internal/config"
	"lob/internal/engine"
	"lob/internal/journal"
	"lob/internal/logger"
	"lob/internal/publish"
	"lob/internal/sim"
	"lob/internal/snapshot"

	"github.com/shopspring/decimal"
)

func main() {
	envFile := flag.String("env", ".env", "dotenv file to load before reading the environment")
	hashKey := flag.String("hash-key", "", "print the bcrypt hash for an API key and exit")
	flag.Parse()

	if *hashKey != "" {
		hash, err := api.HashKey(*hashKey)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       logger.Level(cfg.App.LogLevel),
		Development: cfg.App.Development(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	log = log.With(logger.NewField("app", cfg.App.Name))

	if err := run(cfg, log); err != nil {
		log.Error(err)
		_ = log.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var sinks []engine.Sink

	var jr *journal.Journal
	if cfg.Journal.Path != "" {
		var err error
		if jr, err = journal.Open(ctx, cfg.Journal.Path); err != nil {
			return err
		}
		defer jr.Close()
		sinks = append(sinks, jr)
		log.Info("journal enabled", logger.NewField("path", cfg.Journal.Path))
	}

	hub := api.NewHub(log)
	sinks = append(sinks, hub)

	if len(cfg.Kafka.Brokers) > 0 {
		pub := publish.NewPublisher(publish.Config{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic}, log)
		defer pub.Close()
		sinks = append(sinks, pub)
		log.Info("kafka publishing enabled",
			logger.NewField("brokers", cfg.Kafka.Brokers),
			logger.NewField("topic", cfg.Kafka.Topic),
		)
	}

	var snapshots api.SnapshotLoader
	if cfg.Redis.Addr != "" {
		store, rdb, err := snapshot.NewStore(ctx, snapshot.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
		})
		if err != nil {
			return err
		}
		defer rdb.Close()
		sinks = append(sinks, store)
		snapshots = store
		log.Info("redis snapshots enabled", logger.NewField("addr", cfg.Redis.Addr))
	}

	eng := engine.New(log,
		engine.WithSinks(sinks...),
		engine.WithVenue(cfg.Book.Venue),
		engine.WithDepth(cfg.Book.Depth),
		engine.WithVerify(cfg.Book.VerifyInvariants),
	)
	defer eng.Close()

	for _, name := range cfg.Book.Instruments {
		if _, err := eng.Open(name); err != nil {
			return err
		}
	}
	if jr != nil && cfg.Journal.Replay {
		if err := eng.Replay(ctx, jr); err != nil {
			return err
		}
	}

	server, err := api.NewServer(eng, hub, log, api.Options{
		CORSOrigins: cfg.HTTP.CORSOrigins,
		RateLimit:   cfg.HTTP.RateLimit,
		RateWindow:  cfg.HTTP.RateWindow,
		APIKeyHash:  cfg.HTTP.APIKeyHash,
		TickSize:    cfg.Book.TickSize,
		Snapshots:   snapshots,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var simWG sync.WaitGroup
	if cfg.Sim.Enabled {
		if err := startSimulation(ctx, &simWG, eng, cfg, log); err != nil {
			return err
		}
	}
	defer simWG.Wait()
	defer stop() // the runners exit once ctx is done

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening",
			logger.NewField("addr", cfg.HTTP.Addr),
			logger.NewField("instruments", eng.Instruments()),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	server.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error(err)
	}
	log.Info("http server stopped")
	return nil
}

// startSimulation runs one market maker and two noise traders on every
// instrument until ctx is done.
func startSimulation(ctx context.Context, wg *sync.WaitGroup, eng *engine.Engine, cfg *config.Config, log *logger.Logger) error {
	tick := decimal.Zero
	if cfg.Book.TickSize != "" {
		var err error
		if tick, err = decimal.NewFromString(cfg.Book.TickSize); err != nil {
			return fmt.Errorf("BOOK_TICK_SIZE: %w", err)
		}
	}
	seed := cfg.Sim.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	// Per run suffix so agent order IDs never collide with replayed ones.
	run := strconv.FormatUint(seed%(36*36*36*36), 36)

	for i, name := range eng.Instruments() {
		m, err := eng.Market(name)
		if err != nil {
			return err
		}
		rng := rand.New(rand.NewPCG(seed, uint64(i)))
		s := cfg.Sim
		runner := sim.NewRunner(
			sim.NewWalk(s.StartPrice, s.Volatility, tick, rng),
			log.With(logger.NewField("instrument", name)),
			sim.NewMarketMaker(m, sim.MarketMakerConfig{
				ID:            "mm-" + run,
				HalfSpread:    s.HalfSpread,
				Size:          s.Size,
				Levels:        s.Levels,
				Tick:          tick,
				MaxPosition:   s.Size * float64(s.Levels) * 10,
				InventorySkew: s.HalfSpread / s.Size / 10,
			}),
			sim.NewNoiseTrader(m, sim.NoiseConfig{ID: "small-" + run, MinSize: 1, MaxSize: s.Size / 2, Probability: 0.5}, rng),
			sim.NewNoiseTrader(m, sim.NoiseConfig{ID: "large-" + run, MinSize: s.Size, MaxSize: s.Size * 3, Probability: 0.05}, rng),
		)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := runner.Run(ctx, s.Interval); err != nil {
				log.Error(err, logger.NewField("instrument", name))
			}
		}()
	}
	log.Info("simulation started", logger.NewField("interval", cfg.Sim.Interval))
	return nil
}
