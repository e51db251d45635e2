package realtime

import (
	"context"
	logger "log"
	"sync"
	"time"
)

// staggerDelay spreads the first pass of agency index i of n agencies over interval
func staggerDelay(i int, n int, interval time.Duration) time.Duration {
	if n <= 1 {
		return 0
	}
	return time.Duration(int64(interval) * int64(i) / int64(n))
}

// runAgencyLoop runs pipeline passes every interval until shutdownSignal.
// Passes are sequential, a pass that takes longer than interval is followed immediately by the next.
func runAgencyLoop(log *logger.Logger,
	wg *sync.WaitGroup,
	pipeline *agencyPipeline,
	interval time.Duration,
	initialDelay time.Duration,
	shutdownSignal chan bool) {
	defer wg.Done()

	// the shutdown signal also cancels a pass in progress
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-shutdownSignal:
			cancel()
		case <-ctx.Done():
		}
	}()

	agencyId := pipeline.agency.Id
	sleep := initialDelay
	timer := time.NewTimer(sleep)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("Exiting agency %s loop on shutdown signal", agencyId)
			return
		case <-timer.C:
		}

		// mark the time we start working
		start := time.Now()

		snap, err := pipeline.runPass(ctx, start)
		workTook := time.Since(start)
		if ctx.Err() != nil {
			log.Printf("Exiting agency %s loop on shutdown signal, pass abandoned", agencyId)
			return
		}
		pipeline.metrics.ObservePass(agencyId, workTook, err)
		if err != nil {
			log.Printf("agency %s pass failed, keeping previous snapshot. error: %v\n", agencyId, err)
		} else {
			log.Printf("agency %s published %d vehicles (%d unscheduled) for service day %s in %s\n",
				agencyId, len(snap.Vehicles), snap.Unscheduled, snap.ServiceDay.Date, workTook)
		}

		// attempt to run the loop every interval by subtracting the time it took to perform the work
		if workTook >= interval {
			sleep = 0
		} else {
			sleep = interval - workTook
		}
		timer.Reset(sleep)
	}
}
