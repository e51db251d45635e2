package main

import (
	"fmt"
	logger "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OpenTransitTools/ontime/app/ontime-svc/realtime"
	"github.com/OpenTransitTools/ontime/business/agency"
	"github.com/OpenTransitTools/ontime/business/data/gtfs"
	"github.com/OpenTransitTools/ontime/business/fusion"
	"github.com/OpenTransitTools/ontime/business/gtfsrt"
	"github.com/OpenTransitTools/ontime/business/snapshot"
	"github.com/OpenTransitTools/ontime/foundation/database"
	"github.com/OpenTransitTools/ontime/foundation/httpclient"
	"github.com/OpenTransitTools/ontime/foundation/metrics"
	"github.com/ardanlabs/conf"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
)

var build = "develop"

func main() {
	log := logger.New(os.Stdout, "ONTIME : ", logger.LstdFlags|logger.Lmicroseconds|logger.Lshortfile)
	if err := run(log); err != nil {
		log.Printf("main: error: %v", err)
		os.Exit(1)
	}
}

func run(log *logger.Logger) error {
	// agency api keys are commonly kept in a .env file, which is optional
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("main: unable to load .env file: %v", err)
	}

	var cfg struct {
		conf.Version
		Args   conf.Args
		Agency struct {
			File string `conf:"default:agencies.yaml"`
		}
		Realtime struct {
			CacheDir        string        `conf:"default:cache"`
			RefreshInterval time.Duration `conf:"default:60s"`
			FetchTimeout    time.Duration `conf:"default:10s"`
			MaxStale        time.Duration `conf:"default:15m"`
			UpstreamRate    float64       `conf:"default:1"`
			UpstreamBurst   int           `conf:"default:2"`
		}
		Web struct {
			HttpPort int `conf:"default:8080"`
		}
		Nats struct {
			Url             string
			SnapshotSubject string `conf:"default:ontime.snapshot"`
		}
	}
	cfg.Version.SVN = build
	cfg.Version.Desc = "Fuse gtfs-realtime vehicle positions and trip updates with gtfs schedules"
	const prefix = "ONTIME"
	if err := conf.Parse(os.Args[1:], prefix, &cfg); err != nil {
		switch err {
		case conf.ErrHelpWanted:
			usage, err := conf.Usage(prefix, &cfg)
			if err != nil {
				return fmt.Errorf("generating config usage: %w", err)
			}
			printUsage(usage)
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

	switch cfg.Args.Num(0) {
	case "schema":
		fmt.Print(gtfs.Schema, "\n")
		return nil
	case "agencies":
		return printAgencies(cfg.Agency.File)
	case "", "serve":
	default:
		return fmt.Errorf("unknown command %q, expected serve, schema or agencies", cfg.Args.Num(0))
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

	agencies, err := agency.LoadFile(cfg.Agency.File)
	if err != nil {
		return fmt.Errorf("loading agencies: %w", err)
	}

	// =========================================================================
	// Start Schedule Stores

	log.Println("main: Initializing schedule stores")

	engines := make(map[string]*fusion.Engine, len(agencies))
	for i := range agencies {
		a := &agencies[i]
		if !a.Monitored {
			continue
		}
		db, err := database.Open(a.DatabaseConfig(os.Getenv))
		if err != nil {
			return fmt.Errorf("opening schedule store for agency %s: %w", a.Id, err)
		}
		store := gtfs.NewStore(db)
		agencyId := a.Id
		defer func() {
			log.Printf("main: Schedule store stopping : %s", agencyId)
			if err := store.Close(); err != nil {
				log.Printf("main: error closing schedule store %s: %v", agencyId, err)
			}
		}()
		engines[a.Id] = fusion.NewEngine(log, store)
	}

	// =========================================================================
	// Start Nats

	var natsConn *nats.Conn
	if len(cfg.Nats.Url) > 0 {
		natsConn, err = connectNats(log, cfg.Nats.Url)
		if err != nil {
			return fmt.Errorf("connecting to nats: %w", err)
		}
		defer func() {
			log.Printf("main: Nats stopping : %s", cfg.Nats.Url)
			if err := natsConn.Drain(); err != nil {
				log.Printf("main: error draining nats connection: %v", err)
			}
		}()
	}

	cache, err := gtfsrt.NewDiskCache(cfg.Realtime.CacheDir)
	if err != nil {
		return fmt.Errorf("creating feed cache: %w", err)
	}
	m := metrics.New()
	fetcher := gtfsrt.NewFetcher(log, httpclient.NewClient(cfg.Realtime.FetchTimeout), cache, m, gtfsrt.FetcherConfig{
		RefreshInterval: cfg.Realtime.RefreshInterval,
		MaxStale:        cfg.Realtime.MaxStale,
		UpstreamRate:    cfg.Realtime.UpstreamRate,
		UpstreamBurst:   cfg.Realtime.UpstreamBurst,
	})

	// Make a channel to listen for an interrupt or terminate signal from the OS.
	// Use a buffered channel because the signal package requires it.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	realtime.StartServices(log,
		realtime.Config{
			RefreshInterval: cfg.Realtime.RefreshInterval,
			FetchTimeout:    cfg.Realtime.FetchTimeout,
			HTTPPort:        cfg.Web.HttpPort,
			SnapshotSubject: cfg.Nats.SnapshotSubject,
		},
		realtime.Services{
			Agencies:  agencies,
			Engines:   engines,
			Fetcher:   fetcher,
			Snapshots: snapshot.NewStore(agency.Ids(agencies)),
			Metrics:   m,
			NatsConn:  natsConn,
			Getenv:    os.Getenv,
		},
		shutdown)
	return nil
}

func connectNats(log *logger.Logger, url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("ontime"),
		nats.DisconnectHandler(func(_ *nats.Conn) {
			log.Printf("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Printf("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("nats closed")
		}),
	)
}

func printAgencies(path string) error {
	agencies, err := agency.LoadFile(path)
	if err != nil {
		return fmt.Errorf("loading agencies: %w", err)
	}
	for _, a := range agencies {
		fmt.Printf("%-6s %-10s %-22s %s\n", a.Id, monitoredLabel(a.Monitored), a.Timezone, a.Name)
	}
	return nil
}

func monitoredLabel(monitored bool) string {
	if monitored {
		return "monitored"
	}
	return "schedule"
}

func printUsage(confUsage string) {
	fmt.Println(confUsage)
}
