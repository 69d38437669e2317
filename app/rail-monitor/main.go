package main

import (
	"fmt"
	logger "log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ardanlabs/conf"
	"github.com/nats-io/nats.go"

	"github.com/railmetrics/railmatch/app/rail-monitor/monitor"
	"github.com/railmetrics/railmatch/foundation/database"
)

var build = "develop"

func main() {
	log := logger.New(os.Stdout, "RAIL_MONITOR : ", logger.LstdFlags|logger.Lmicroseconds|logger.Lshortfile)
	if err := run(log); err != nil {
		log.Printf("main: error: %v", err)
		os.Exit(1)
	}
}

func run(log *logger.Logger) error {
	var cfg struct {
		conf.Version
		Args conf.Args
		DB   struct {
			User       string `conf:"default:postgres"`
			Password   string `conf:"default:postgres,noprint"`
			Host       string `conf:"default:0.0.0.0"`
			Name       string `conf:"default:postgres"`
			DisableTLS bool   `conf:"default:true"`
		}
		NATS struct {
			Url            string `conf:"default:nats://localhost:4222"`
			PublishResults bool   `conf:"default:true"`
			RecordToDb     bool   `conf:"default:true"`
		}
		Monitor struct {
			TripUpdatesUrl            string `conf:"default:https://gtfsrt.example.com/trip_updates.pb"`
			LoadEverySeconds          int    `conf:"default:30"`
			ExpectAheadMinutes        int    `conf:"default:60"`
			GracePeriodMinutes        int    `conf:"default:30"`
			InferenceWindowSeconds    int    `conf:"default:180"`
			AmbiguityToleranceSeconds int    `conf:"default:300"`
		}
	}
	cfg.Version.SVN = build
	cfg.Version.Desc = "Reconcile realtime trip updates against the schedule store"
	const prefix = "MONITOR"
	if err := conf.Parse(os.Args[1:], prefix, &cfg); err != nil {
		switch err {
		case conf.ErrHelpWanted:
			usage, err := conf.Usage(prefix, &cfg)
			if err != nil {
				return fmt.Errorf("generating config usage: %w", err)
			}
			fmt.Println(usage)
			return nil
		case conf.ErrVersionWanted:
			version, err := conf.VersionString(prefix, &cfg)
			if err != nil {
				return fmt.Errorf("generating config version: %w", err)
			}
			fmt.Println(version)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	// =========================================================================
	// App Starting

	log.Printf("main : Started : Application initializing : version %s", build)
	defer log.Println("main: Completed")

	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Printf("main: Config :\n%v\n", out)

	// =========================================================================
	// Start Database

	log.Println("main: Initializing database support")

	db, err := database.Open(database.Config{
		User:       cfg.DB.User,
		Password:   cfg.DB.Password,
		Host:       cfg.DB.Host,
		Name:       cfg.DB.Name,
		DisableTLS: cfg.DB.DisableTLS,
	})
	if err != nil {
		return fmt.Errorf("connecting to db: %w", err)
	}
	defer func() {
		log.Printf("main: Database Stopping : %s", cfg.DB.Host)
		err = db.Close()
		if err != nil {
			log.Printf("main: error closing database: %v", err)
		}
	}()

	// =========================================================================
	// Start NATS

	natsConnection, err := nats.Connect(cfg.NATS.Url)
	if err != nil {
		return fmt.Errorf("connecting to nats at %s: %w", cfg.NATS.Url, err)
	}
	defer natsConnection.Close()

	// Make a channel to listen for an interrupt or terminate signal from the OS.
	// Use a buffered channel because the signal package requires it.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	return monitor.RunReconcileLoop(log, db, natsConnection, monitor.Config{
		TripUpdatesUrl:            cfg.Monitor.TripUpdatesUrl,
		LoopEverySeconds:          cfg.Monitor.LoadEverySeconds,
		ExpectAheadMinutes:        cfg.Monitor.ExpectAheadMinutes,
		GracePeriodMinutes:        cfg.Monitor.GracePeriodMinutes,
		InferenceWindowSeconds:    cfg.Monitor.InferenceWindowSeconds,
		AmbiguityToleranceSeconds: cfg.Monitor.AmbiguityToleranceSeconds,
		RecordToDatabase:          cfg.NATS.RecordToDb,
		PublishOverNats:           cfg.NATS.PublishResults,
	}, shutdown)
}
