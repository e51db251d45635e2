package realtime

import (
	logger "log"
	"os"
	"sync"
	"time"

	"github.com/OpenTransitTools/ontime/business/agency"
	"github.com/OpenTransitTools/ontime/business/fusion"
	"github.com/OpenTransitTools/ontime/business/gtfsrt"
	"github.com/OpenTransitTools/ontime/business/snapshot"
	"github.com/OpenTransitTools/ontime/foundation/metrics"
	"github.com/nats-io/nats.go"
)

// Config controls pass scheduling and the web service
type Config struct {
	RefreshInterval time.Duration
	FetchTimeout    time.Duration
	HTTPPort        int
	// SnapshotSubject is the nats subject prefix snapshots are published on, empty disables publishing
	SnapshotSubject string
}

// Services holds the shared components used by every agency's pipeline
type Services struct {
	Agencies  []agency.Agency
	Engines   map[string]*fusion.Engine
	Fetcher   *gtfsrt.Fetcher
	Snapshots *snapshot.Store
	Metrics   *metrics.Metrics
	NatsConn  *nats.Conn
	Getenv    func(string) string
}

// buildPipelines creates a pipeline for each monitored agency.
// Agencies with unusable realtime configuration are logged and left without snapshots.
func buildPipelines(log *logger.Logger, cfg Config, services Services) []*agencyPipeline {
	var publisher snapshotPublisher
	if services.NatsConn != nil && len(cfg.SnapshotSubject) > 0 {
		publisher = newNatsSnapshotPublisher(services.NatsConn, cfg.SnapshotSubject)
	}

	pipelines := make([]*agencyPipeline, 0, len(services.Agencies))
	for i := range services.Agencies {
		a := &services.Agencies[i]
		if !a.Monitored {
			continue
		}
		engine, present := services.Engines[a.Id]
		if !present {
			log.Printf("agency %s has no schedule store, not monitoring", a.Id)
			continue
		}
		endpoints, err := a.Endpoints(services.Getenv)
		if err != nil {
			log.Printf("agency %s realtime endpoints unavailable, not monitoring. error: %v", a.Id, err)
			continue
		}
		pipeline, err := makeAgencyPipeline(log, a, endpoints, services.Fetcher, engine, services.Snapshots,
			publisher, services.Metrics, cfg.FetchTimeout)
		if err != nil {
			log.Printf("agency %s not monitored. error: %v", a.Id, err)
			continue
		}
		pipelines = append(pipelines, pipeline)
	}
	return pipelines
}

// StartServices brings up a fusion loop per monitored agency and the web service. Exits on shutdown signal
func StartServices(log *logger.Logger,
	cfg Config,
	services Services,
	shutdownSignal chan os.Signal) {

	wg := sync.WaitGroup{}

	pipelines := buildPipelines(log, cfg, services)
	log.Printf("Monitoring %d of %d agencies", len(pipelines), len(services.Agencies))

	//create shutdown channels
	loopShutdowns := make([]chan bool, 0, len(pipelines))
	webServiceShutdown := make(chan bool, 1)

	//start all child services
	for i, pipeline := range pipelines {
		loopShutdown := make(chan bool, 1)
		loopShutdowns = append(loopShutdowns, loopShutdown)
		wg.Add(1)
		go runAgencyLoop(log, &wg, pipeline, cfg.RefreshInterval,
			staggerDelay(i, len(pipelines), cfg.RefreshInterval), loopShutdown)
	}
	srv := createServer(log, services.Agencies, services.Snapshots, services.Metrics, cfg.HTTPPort)
	wg.Add(1)
	go runWebService(log, &wg, srv, webServiceShutdown)

	<-shutdownSignal
	log.Printf("Exiting on shutdown signal, shutting down subroutines")
	for _, loopShutdown := range loopShutdowns {
		loopShutdown <- true
	}
	webServiceShutdown <- true
	wg.Wait()
	log.Printf("Subroutines shut down, exiting ontime service")
}
