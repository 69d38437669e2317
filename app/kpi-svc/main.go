package main

import (
	"fmt"
	logger "log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ardanlabs/conf"
	"github.com/nats-io/nats.go"

	"github.com/railmetrics/railmatch/app/kpi-svc/kpisvc"
)

var build = "develop"

func main() {
	log := logger.New(os.Stdout, "KPI_SVC : ", logger.LstdFlags|logger.Lmicroseconds|logger.Lshortfile)
	if err := run(log); err != nil {
		log.Printf("main: error: %v", err)
		os.Exit(1)
	}
}

func run(log *logger.Logger) error {
	var cfg struct {
		conf.Version
		Args conf.Args
		NATS struct {
			Url             string `conf:"default:nats://localhost:4222"`
			MatchedSubject  string `conf:"default:matched-trip-stops"`
			CoverageSubject string `conf:"default:resolution-coverage"`
		}
		Service struct {
			HttpPort               int `conf:"default:8080"`
			OnTimeThresholdSeconds int `conf:"default:300"`
			CloseDayAfterHours     int `conf:"default:36"`
		}
	}
	cfg.Version.SVN = build
	cfg.Version.Desc = "Serve punctuality and cancellation KPIs over http"
	const prefix = "KPISVC"
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

	return kpisvc.Run(log, natsConnection, kpisvc.Config{
		HttpPort:               cfg.Service.HttpPort,
		MatchedSubject:         cfg.NATS.MatchedSubject,
		CoverageSubject:        cfg.NATS.CoverageSubject,
		OnTimeThresholdSeconds: cfg.Service.OnTimeThresholdSeconds,
		CloseDayAfterHours:     cfg.Service.CloseDayAfterHours,
		PercentileRanks:        []float64{50, 90},
	}, shutdown)
}
