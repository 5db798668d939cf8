package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"tori-vahti/common"
	"tori-vahti/internal/kafka"
	"tori-vahti/internal/models"
	"tori-vahti/internal/store"
	"tori-vahti/internal/watch"
)

type server struct {
	prod     kafka.RunProducer
	watches  store.WatchStore
	statuses store.StatusStore
}

func newServer(prod kafka.RunProducer, watches store.WatchStore, statuses store.StatusStore) *server {
	return &server{
		prod:     prod,
		watches:  watches,
		statuses: statuses,
	}
}

func main() {
	common.LoadEnv()

	broker := common.GetEnv("KAFKA_BROKER", "localhost:9092")
	topic := common.GetEnv("KAFKA_RUNS_TOPIC", "vahti.watch.runs")
	redisAddr := common.GetEnv("REDIS_ADDR", "localhost:6379")
	watchesPrefix := common.GetEnv("WATCHES_PREFIX", "vahti:watches:")
	statusPrefix := common.GetEnv("STATUS_PREFIX", "vahti:status:")
	statusTTL := common.ParseDuration(common.GetEnv("STATUS_TTL", "0"), 0)
	addr := common.GetEnv("API_ADDR", ":8080")

	prod := kafka.NewProducer(broker, topic)
	defer func() {
		if err := prod.Close(); err != nil {
			log.Printf("failed to close producer: %v", err)
		}
	}()

	watchStore := store.NewRedisWatchStore(redisAddr, watchesPrefix)
	defer func() {
		if err := watchStore.Close(); err != nil {
			log.Printf("failed to close watch store: %v", err)
		}
	}()

	statusStore := store.NewRedisStatusStore(redisAddr, statusPrefix, statusTTL)
	defer func() {
		if err := statusStore.Close(); err != nil {
			log.Printf("failed to close status store: %v", err)
		}
	}()

	srv := newServer(prod, watchStore, statusStore)

	mux := http.NewServeMux()
	mux.HandleFunc("/watches", srv.handleWatches)
	mux.HandleFunc("/watches/", srv.handleWatchStatus)
	mux.HandleFunc("/metrics", srv.handleMetrics)

	log.Printf("api listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal(err)
	}
}

// handleWatches accepts POST requests to register a watch and queue its
// first run.
//
// Method: POST
// Path:   /watches
// Example:
//
//	curl -X POST "http://localhost:8080/watches" \
//	  -d '{"name":"Lautapelit","keywords":["lautapeli"],"max_price_cents":50000,"recipients":["pelaaja@example.com"]}'
func (s *server) handleWatches(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var wt models.Watch
	if err := json.NewDecoder(r.Body).Decode(&wt); err != nil {
		http.Error(w, "invalid watch body", http.StatusBadRequest)
		return
	}

	wt, err := watch.Normalize(wt)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	// A watch nobody hears about is a registration mistake. The pipeline
	// itself tolerates recipient-less runs, so only the API enforces this.
	if len(wt.Recipients) == 0 {
		http.Error(w, watch.ErrNoRecipients.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.watches.SaveWatch(ctx, wt); err != nil {
		http.Error(w, "failed to save watch", http.StatusBadGateway)
		return
	}

	// The watch is stored at this point; even if the first run never
	// lands, the scheduler picks it up on its next tick.
	runID := newRunID()
	job := models.WatchJob{
		RunID:      runID,
		Watch:      wt,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := s.prod.WriteRun(ctx, job); err != nil {
		http.Error(w, "failed to enqueue run", http.StatusBadGateway)
		return
	}

	status := models.WatchStatus{
		WatchName: wt.Name,
		RunID:     runID,
		Status:    "queued",
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.statuses.SetStatus(ctx, status); err != nil {
		http.Error(w, "failed to persist status", http.StatusBadGateway)
		return
	}

	writeJSON(w, wt, http.StatusAccepted)
}

// handleWatchStatus returns the most recent run status of a watch.
//
// Method: GET
// Path:   /watches/{name}
// Example:
//
//	curl "http://localhost:8080/watches/Lautapelit"
func (s *server) handleWatchStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := strings.Trim(strings.TrimPrefix(r.URL.Path, "/watches/"), "/")
	if name == "" {
		http.Error(w, "missing watch name", http.StatusBadRequest)
		return
	}

	status, ok, err := s.statuses.GetStatus(r.Context(), name)
	if err != nil {
		http.Error(w, "failed to load status", http.StatusBadGateway)
		return
	}
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	writeJSON(w, status, http.StatusOK)
}

// handleMetrics exposes a minimal Prometheus-compatible endpoint.
//
// Method: GET
// Path:   /metrics
// Example:
//
//	curl "http://localhost:8080/metrics"
func (s *server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("vahti_api_up 1\n"))
}

func writeJSON(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

func newRunID() string {
	return strings.ReplaceAll(time.Now().UTC().Format("20060102150405.000000000"), ".", "")
}
