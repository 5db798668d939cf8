package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"
	"time"
)

var (
	schedulerTicksTotal      uint64
	schedulerRunsEnqueued    uint64
	schedulerEnqueueFailures uint64
	schedulerListFailures    uint64
)

func startMetricsServer(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", handleMetrics)

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("metrics shutdown error: %v", err)
		}
	}()

	go func() {
		log.Printf("metrics listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
}

func handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	body := fmt.Sprintf(
		"vahti_scheduler_up 1\n"+
			"vahti_scheduler_ticks_total %d\n"+
			"vahti_scheduler_runs_enqueued_total %d\n"+
			"vahti_scheduler_enqueue_failures_total %d\n"+
			"vahti_scheduler_list_failures_total %d\n",
		atomic.LoadUint64(&schedulerTicksTotal),
		atomic.LoadUint64(&schedulerRunsEnqueued),
		atomic.LoadUint64(&schedulerEnqueueFailures),
		atomic.LoadUint64(&schedulerListFailures),
	)
	_, _ = w.Write([]byte(body))
}
