package app

import (
	"context"
	"fmt"
	"os"

	"gorm.io/gorm"

	"github.com/mathscrap/mathscrap-backend/internal/db"
	"github.com/mathscrap/mathscrap-backend/internal/events"
	"github.com/mathscrap/mathscrap-backend/internal/logger"
	"github.com/mathscrap/mathscrap-backend/internal/server"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Router   *server.Router
	Cfg      Config
	Repos    Repos
	Services Services
	bus      events.Bus
	busStop  context.CancelFunc
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading configuration...")
	cfg, err := LoadConfig(log)
	if err != nil {
		log.Sync()
		return nil, err
	}

	database, err := db.NewDatabaseService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := database.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	theDB := database.DB()

	// The event bus is optional: no REDIS_ADDR means polling only.
	var bus events.Bus
	var busStop context.CancelFunc
	if os.Getenv("REDIS_ADDR") != "" {
		bus, err = events.NewRedisBus(log)
		if err != nil {
			log.Warn("Job event bus unavailable; continuing without it", "error", err)
			bus = nil
		}
	}
	if bus != nil {
		// Tail the bus into the application log so a deployment without a
		// dashboard still sees pipeline progress as it happens.
		busCtx, cancel := context.WithCancel(context.Background())
		if err := bus.StartForwarder(busCtx, jobEventLogger(log)); err != nil {
			log.Warn("Job event forwarder unavailable", "error", err)
			cancel()
		} else {
			busStop = cancel
		}
	}

	reposet := wireRepos(theDB, log)

	serviceset, err := wireServices(theDB, log, cfg, reposet, bus)
	if err != nil {
		log.Sync()
		return nil, err
	}

	handlerset := wireHandlers(serviceset)
	router := wireRouter(log, handlerset)

	return &App{
		Log:      log,
		DB:       theDB,
		Router:   router,
		Cfg:      cfg,
		Repos:    reposet,
		Services: serviceset,
		bus:      bus,
		busStop:  busStop,
	}, nil
}

// jobEventLogger is the forwarder sink: every bus event becomes one log line.
func jobEventLogger(log *logger.Logger) func(events.JobEvent) {
	tail := log.With("component", "JobEventTail")
	return func(ev events.JobEvent) {
		fields := []interface{}{
			"job_id", ev.JobID,
			"status", ev.Status,
		}
		if ev.Stage != "" {
			fields = append(fields, "stage", ev.Stage)
		}
		if ev.ImageIndex != nil {
			fields = append(fields, "image_index", *ev.ImageIndex)
		}
		if ev.Detail != "" {
			fields = append(fields, "detail", ev.Detail)
		}
		tail.Info("Job event", fields...)
	}
}

func (a *App) Run() error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	addr := ":" + a.Cfg.Port
	a.Log.Info("Starting HTTP server", "addr", addr)
	return a.Router.Run(addr)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.busStop != nil {
		a.busStop()
	}
	if a.bus != nil {
		_ = a.bus.Close()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
