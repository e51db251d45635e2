package realtime

import (
	"context"
	"encoding/json"
	"errors"
	logger "log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/OpenTransitTools/ontime/business/agency"
	"github.com/OpenTransitTools/ontime/business/data/gtfs"
	"github.com/OpenTransitTools/ontime/business/fusion"
	"github.com/OpenTransitTools/ontime/business/snapshot"
	"github.com/OpenTransitTools/ontime/foundation/metrics"
	"github.com/gorilla/mux"
	"github.com/klauspost/compress/gzhttp"
)

// defaultHttpHandler simple default http handler for default route
type defaultHttpHandler struct {
}

// ServeHTTP implements defaultHttpHandler http.Handler interface
func (h *defaultHttpHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Add("Application-Status", "OK")
}

// agencySummary describes a configured agency and the age of its snapshot
type agencySummary struct {
	Id          string     `json:"id"`
	Name        string     `json:"name"`
	Timezone    string     `json:"timezone"`
	Monitored   bool       `json:"monitored"`
	GeneratedAt *time.Time `json:"generated_at"`
	Vehicles    int        `json:"vehicles"`
}

// snapshotResponse is returned for an agency's snapshot, GeneratedAt and ServiceDay are null before the first pass
type snapshotResponse struct {
	AgencyId    string                `json:"agency_id"`
	GeneratedAt *time.Time            `json:"generated_at"`
	ServiceDay  *gtfs.ServiceDay      `json:"service_day"`
	Unscheduled int                   `json:"unscheduled"`
	Vehicles    []fusion.FusedVehicle `json:"vehicles"`
}

// errorResponse is the body of non 2xx responses
type errorResponse struct {
	Error string `json:"error"`
}

// snapshotHandlers serves fused vehicles from snapshot.Store
type snapshotHandlers struct {
	log       *logger.Logger
	agencies  []agency.Agency
	snapshots *snapshot.Store
}

func (h *snapshotHandlers) writeJSON(w http.ResponseWriter, status int, value interface{}) {
	jsonData, err := json.Marshal(value)
	if err != nil {
		h.log.Printf("Error marshaling response to json: error:%v\n", err)
		http.Error(w, "Error serving request", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err = w.Write(jsonData); err != nil {
		h.log.Printf("Error writing json response: %s", err)
	}
}

func (h *snapshotHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, errorResponse{Error: message})
}

// currentSnapshot loads the agency's snapshot, writing a 404 for unknown agencies
func (h *snapshotHandlers) currentSnapshot(w http.ResponseWriter, r *http.Request) (string, *snapshot.Snapshot, bool) {
	agencyId := mux.Vars(r)["agencyId"]
	snap, err := h.snapshots.Current(agencyId)
	if errors.Is(err, snapshot.ErrUnknownAgency) {
		h.writeError(w, http.StatusNotFound, "unknown agency "+agencyId)
		return agencyId, nil, false
	}
	return agencyId, snap, true
}

func (h *snapshotHandlers) listAgencies(w http.ResponseWriter, _ *http.Request) {
	results := make([]agencySummary, 0, len(h.agencies))
	for i := range h.agencies {
		a := &h.agencies[i]
		summary := agencySummary{Id: a.Id, Name: a.Name, Timezone: a.Timezone, Monitored: a.Monitored}
		if snap, err := h.snapshots.Current(a.Id); err == nil && snap != nil {
			generatedAt := snap.GeneratedAt
			summary.GeneratedAt = &generatedAt
			summary.Vehicles = len(snap.Vehicles)
		}
		results = append(results, summary)
	}
	h.writeJSON(w, http.StatusOK, results)
}

func (h *snapshotHandlers) listVehicles(w http.ResponseWriter, r *http.Request) {
	_, snap, ok := h.currentSnapshot(w, r)
	if !ok {
		return
	}
	var box *snapshot.BoundingBox
	if bbox := r.URL.Query().Get("bbox"); len(bbox) > 0 {
		parsed, err := snapshot.ParseBoundingBox(bbox)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		box = &parsed
	}

	vehicles := []fusion.FusedVehicle{}
	if snap != nil {
		if box != nil {
			vehicles = snap.Within(*box)
		} else {
			vehicles = snap.Vehicles
		}
	}
	h.writeJSON(w, http.StatusOK, vehicles)
}

func (h *snapshotHandlers) getVehicle(w http.ResponseWriter, r *http.Request) {
	agencyId, snap, ok := h.currentSnapshot(w, r)
	if !ok {
		return
	}
	vehicleId := mux.Vars(r)["vehicleId"]
	if snap != nil {
		if vehicle, found := snap.Vehicle(vehicleId); found {
			h.writeJSON(w, http.StatusOK, vehicle)
			return
		}
	}
	h.writeError(w, http.StatusNotFound, "no vehicle "+vehicleId+" for agency "+agencyId)
}

func (h *snapshotHandlers) getSnapshot(w http.ResponseWriter, r *http.Request) {
	agencyId, snap, ok := h.currentSnapshot(w, r)
	if !ok {
		return
	}
	response := snapshotResponse{AgencyId: agencyId, Vehicles: []fusion.FusedVehicle{}}
	if snap != nil {
		generatedAt := snap.GeneratedAt
		serviceDay := snap.ServiceDay
		response.GeneratedAt = &generatedAt
		response.ServiceDay = &serviceDay
		response.Unscheduled = snap.Unscheduled
		response.Vehicles = snap.Vehicles
	}
	h.writeJSON(w, http.StatusOK, response)
}

// statusRecorder wraps http.ResponseWriter to capture status code
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// metricsMiddleware records request counts and latency by route template
func metricsMiddleware(m *metrics.Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			path := "unknown"
			if route := mux.CurrentRoute(r); route != nil {
				if template, err := route.GetPathTemplate(); err == nil {
					path = template
				}
			}
			m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
			m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

// createRouter builds the routes of the snapshot web service
func createRouter(log *logger.Logger,
	agencies []agency.Agency,
	snapshots *snapshot.Store,
	m *metrics.Metrics) http.Handler {

	handlers := &snapshotHandlers{log: log, agencies: agencies, snapshots: snapshots}

	r := mux.NewRouter()
	r.Use(metricsMiddleware(m))
	r.Handle("/", &defaultHttpHandler{})
	r.HandleFunc("/agencies", handlers.listAgencies).Methods(http.MethodGet)
	r.HandleFunc("/agencies/{agencyId}/vehicles", handlers.listVehicles).Methods(http.MethodGet)
	r.HandleFunc("/agencies/{agencyId}/vehicles/{vehicleId}", handlers.getVehicle).Methods(http.MethodGet)
	r.HandleFunc("/agencies/{agencyId}/snapshot", handlers.getSnapshot).Methods(http.MethodGet)
	r.Handle("/metrics", m.Handler())
	return gzhttp.GzipHandler(r)
}

// createServer creates configured http.Server for responding to snapshot requests
func createServer(log *logger.Logger,
	agencies []agency.Agency,
	snapshots *snapshot.Store,
	m *metrics.Metrics,
	httpPort int) *http.Server {

	srv := &http.Server{
		Addr: strings.Join([]string{"0.0.0.0", strconv.Itoa(httpPort)}, ":"),
		// Good practice to set timeouts to avoid Slowloris attacks.
		WriteTimeout: time.Second * 15,
		ReadTimeout:  time.Second * 15,
		IdleTimeout:  time.Second * 60,
		Handler:      createRouter(log, agencies, snapshots, m),
	}
	return srv
}

// runWebService starts up the snapshot web service, and terminates on shutdown signal
func runWebService(log *logger.Logger,
	wg *sync.WaitGroup,
	srv *http.Server,
	shutdownSignal chan bool,
) {
	defer wg.Done()
	log.Printf("Starting server on %s", srv.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			log.Printf("server ListenAndServe ended. %s", err)
		}
	}()

	<-shutdownSignal
	log.Printf("ending webservice on shutdown signal")
	shutdownCtx, serverCancelFunc := context.WithTimeout(context.Background(), time.Duration(5)*time.Second)
	defer serverCancelFunc()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("error shutting down webservice, error:%s", err)
	}
}
