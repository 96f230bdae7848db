package main

import (
	"context"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/attunelabs/attune/internal/api"
	"github.com/attunelabs/attune/internal/bus"
	"github.com/attunelabs/attune/internal/cache"
	"github.com/attunelabs/attune/internal/config"
	"github.com/attunelabs/attune/internal/coordinator"
	"github.com/attunelabs/attune/internal/dissociation"
	"github.com/attunelabs/attune/internal/fusion"
	"github.com/attunelabs/attune/internal/ingest"
	"github.com/attunelabs/attune/internal/response"
	"github.com/attunelabs/attune/internal/safety"
	"github.com/attunelabs/attune/internal/session"
	"github.com/attunelabs/attune/internal/store"
	"github.com/attunelabs/attune/internal/ws"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("attune starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database (optional — without it sessions are not persisted)
	var db *store.Store
	if cfg.DatabaseURL != "" {
		var err error
		db, err = store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			slog.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
		slog.Info("database connected")
	} else {
		slog.Warn("DATABASE_URL not set — running without persistence")
	}

	// Redis (optional — latest-state cache for polling frontends)
	var latest *cache.Cache
	if cfg.RedisURL != "" {
		var err error
		latest, err = cache.New(ctx, cfg.RedisURL, cfg.CacheTTL, slog.Default())
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer latest.Close()
		slog.Info("redis connected")
	} else {
		slog.Warn("REDIS_URL not set — running without latest-state cache")
	}

	// NATS — the sensor inlet and fan-out edge
	busClient, err := bus.NewClient(bus.ClientConfig{
		URL:           cfg.NatsURL,
		Token:         cfg.NatsToken,
		MaxReconnects: cfg.NatsMaxReconnects,
		ReconnectWait: cfg.NatsReconnectWait,
	}, slog.Default())
	if err != nil {
		slog.Error("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer busClient.Close()
	slog.Info("NATS connected", "url", cfg.NatsURL)

	// Websocket live feed
	hub := ws.NewHub(slog.Default())
	go hub.Run()

	// Pipeline components
	engine := fusion.NewEngine(cfg.FusionInterval, fusion.StalenessMode(cfg.StalenessMode), slog.Default())
	tracker := dissociation.NewTracker(slog.Default())
	alerter := bus.NewAlerter(busClient, slog.Default())
	monitor := safety.NewMonitor(safety.DefaultThresholds(), alerter, slog.Default())
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	scheduler := response.NewScheduler(cfg.ResponseSensitivity, rng, slog.Default())

	pub := &fanoutPublisher{
		bus:   bus.NewPublisher(busClient, slog.Default()),
		hub:   hub,
		cache: latest,
	}

	// Batch the 5 Hz state stream so it does not cost one insert per tick.
	var persistence coordinator.Store
	if db != nil {
		batched := store.NewBatched(db, 2*time.Second, 25, slog.Default())
		defer batched.Close()
		persistence = batched
	}
	coord := coordinator.New(engine, tracker, monitor, scheduler, persistence, pub, slog.Default())

	// Sensor sample ingestion
	ing := ingest.New(engine, slog.Default())
	if err := busClient.Subscribe(bus.SubjectFacialSample, ing.HandleFacial); err != nil {
		slog.Error("failed to subscribe to facial samples", "error", err)
		os.Exit(1)
	}
	if err := busClient.Subscribe(bus.SubjectPhysioSample, ing.HandlePhysio); err != nil {
		slog.Error("failed to subscribe to physiological samples", "error", err)
		os.Exit(1)
	}

	// HTTP control surface
	srv := api.NewServer(cfg.Port, coord, ing, db, hub)
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("attune ready", "port", cfg.Port, "fusion_interval", cfg.FusionInterval)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")

	if coord.State() == session.StateActive || coord.State() == session.StatePaused {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := coord.EndSession(shutdownCtx); err != nil {
			slog.Error("failed to end session cleanly", "error", err)
		}
		shutdownCancel()
	}
	cancel()
	slog.Info("attune stopped")
}

// fanoutPublisher mirrors coordinator output to the bus, the websocket feed
// and the latest-state cache.
type fanoutPublisher struct {
	bus   *bus.Publisher
	hub   *ws.Hub
	cache *cache.Cache
}

func (p *fanoutPublisher) PublishState(sessionID uuid.UUID, st fusion.IntegratedState) {
	p.bus.PublishState(sessionID, st)
	p.hub.Broadcast("state", bus.StateEnvelope{SessionID: sessionID, State: st})
	if p.cache != nil {
		if err := p.cache.SetLatestState(context.Background(), sessionID, st); err != nil {
			slog.Warn("failed to cache state", "error", err)
		}
	}
}

func (p *fanoutPublisher) PublishResponse(sessionID uuid.UUID, r response.TherapeuticResponse) {
	p.bus.PublishResponse(sessionID, r)
	p.hub.Broadcast("response", bus.ResponseEnvelope{SessionID: sessionID, Response: r})
	if p.cache != nil {
		if err := p.cache.SetLatestResponse(context.Background(), sessionID, r); err != nil {
			slog.Warn("failed to cache response", "error", err)
		}
	}
}

func (p *fanoutPublisher) PublishSafetyEvent(sessionID uuid.UUID, evt safety.SafetyEvent) {
	p.bus.PublishSafetyEvent(sessionID, evt)
	p.hub.Broadcast("safety", bus.SafetyEnvelope{SessionID: sessionID, Event: evt})
}

func (p *fanoutPublisher) PublishPhaseChange(sessionID uuid.UUID, ph session.Phase) {
	p.bus.PublishPhaseChange(sessionID, ph)
	p.hub.Broadcast("phase", bus.PhaseEnvelope{SessionID: sessionID, Phase: ph, Timestamp: time.Now()})
}

func (p *fanoutPublisher) PublishEpisode(sessionID uuid.UUID, ep dissociation.Episode) {
	p.bus.PublishEpisode(sessionID, ep)
	p.hub.Broadcast("episode", bus.EpisodeEnvelope{SessionID: sessionID, Episode: ep})
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
