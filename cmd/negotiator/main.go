package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/dealcraft/negotiator/internal/auth"
	"github.com/dealcraft/negotiator/internal/catalog"
	"github.com/dealcraft/negotiator/internal/config"
	"github.com/dealcraft/negotiator/internal/events"
	"github.com/dealcraft/negotiator/internal/httpserver"
	"github.com/dealcraft/negotiator/internal/negotiation"
	"github.com/dealcraft/negotiator/internal/pricing"
	"github.com/dealcraft/negotiator/internal/sessions"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		log.Fatalf("catalog load: %v", err)
	}

	store, closeStore, err := buildEventStore(cfg)
	if err != nil {
		log.Fatalf("event store init: %v", err)
	}
	defer closeStore()

	policy := policyFromConfig(cfg)
	resolver := pricing.NewResolver(policy, store)

	var archiver sessions.Archiver
	if cfg.ArchiveBucket != "" {
		a, err := sessions.NewS3Archiver(context.Background(), cfg.ArchiveBucket, cfg.ArchivePrefix)
		if err != nil {
			log.Fatalf("archiver init: %v", err)
		}
		archiver = a
	}

	manager := negotiation.NewManager(negotiation.ManagerConfig{
		Resolver:               resolver,
		Events:                 store,
		Log:                    sessions.NewFileLog(cfg.SessionLogPath),
		Archiver:               archiver,
		ContactEmail:           cfg.ContactEmail,
		ContactPhone:           cfg.ContactPhone,
		BulkSuggestTolerance:   cfg.BulkSuggestTolerance,
		BulkThresholdTolerance: cfg.BulkThresholdTolerance,
		SessionTTL:             cfg.SessionTTL,
		SweepInterval:          cfg.SweepInterval,
	})

	verifier := auth.NewVerifier(cfg.AuthSecret, cfg.AllowDebugToken, cfg.DebugToken)
	server := httpserver.New(cfg, cat, manager, verifier)

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: server.Router(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go manager.RunSweeper(ctx)

	go func() {
		log.Printf("negotiator listening on %s", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	waitForShutdown(cancel, httpServer)
}

// buildEventStore selects the event log backend: Postgres when a database URL
// is configured, the append-only JSONL file otherwise. Either may be wrapped
// in a Kafka mirror.
func buildEventStore(cfg config.Config) (events.Store, func(), error) {
	var (
		store   events.Store
		cleanup = func() {}
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, nil, err
		}
		store = events.NewPGStore(db)
		cleanup = func() { db.Close() }
	} else {
		store = events.NewFileStore(cfg.EventLogPath)
	}

	if len(cfg.KafkaBrokers) > 0 {
		mirror, err := events.NewKafkaMirror(store, events.KafkaMirrorConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
		})
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		inner := cleanup
		cleanup = func() {
			mirror.Close()
			inner()
		}
		store = mirror
	}
	return store, cleanup, nil
}

func policyFromConfig(cfg config.Config) pricing.Policy {
	p := pricing.DefaultPolicy()
	p.MaxMargin = cfg.SigmoidMaxMargin
	p.K = cfg.SigmoidK
	p.Midpoint = cfg.SigmoidMidpoint
	p.OrderThreshold = cfg.SigmoidThreshold
	p.PlateauMargin = cfg.PlateauMargin
	p.PlateauDurationDays = cfg.PlateauDurationDays
	p.ActivityThreshold = cfg.ActivityThreshold
	p.DeclineRate = cfg.DeclineRate
	p.DeclineStepDays = cfg.DeclineStepDays
	p.WiggleMinPct = cfg.WiggleMinPct
	p.WiggleMinAmount = cfg.WiggleMinAmount
	p.WiggleFloor = cfg.WiggleFloor
	p.WiggleMaxMarginFrac = cfg.WiggleMaxMarginFrac
	p.MinMarginBuffer = cfg.MinMarginBuffer
	p.RollingWindow = time.Duration(cfg.RollingWindowDays) * 24 * time.Hour
	return p
}

func waitForShutdown(cancel context.CancelFunc, srv *http.Server) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	cancel()
	ctx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
