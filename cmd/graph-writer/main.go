package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"tori-vahti/common"
	"tori-vahti/internal/graph"
	"tori-vahti/internal/models"
	"tori-vahti/internal/watch"
)

type graphWriter struct {
	driver graph.DriverSessioner
}

var (
	// Counters for graph-writer throughput and failures exposed on /metrics.
	// alerts received: messages fetched from Kafka; failed: Neo4j write errors
	// (those messages stay uncommitted and come back); skipped: id-less listings.
	graphWriterAlertsReceived  uint64
	graphWriterAlertsFailed    uint64
	graphWriterAlertsWritten   uint64
	graphWriterListingsWritten uint64
	graphWriterListingsSkipped uint64
)

func main() {
	common.LoadEnv()

	broker := common.GetEnv("KAFKA_BROKER", "localhost:9092")
	alertsTopic := common.GetEnv("KAFKA_ALERTS_TOPIC", "vahti.watch.alerts")
	graphGroup := common.GetEnv("KAFKA_GRAPH_GROUP", "vahti-graph")
	metricsAddr := common.GetEnv("METRICS_ADDR", ":9091")

	neo4jURI := common.GetEnv("NEO4J_URI", "neo4j://localhost:7687")
	neo4jUser := common.GetEnv("NEO4J_USER", "neo4j")
	neo4jPassword := common.GetEnv("NEO4J_PASSWORD", "neo4j")

	driver, err := graph.NewDriver(neo4jURI, neo4jUser, neo4jPassword)
	if err != nil {
		log.Fatalf("neo4j driver error: %v", err)
	}
	defer func() {
		if err := driver.Close(context.Background()); err != nil {
			log.Printf("neo4j close error: %v", err)
		}
	}()

	writer := &graphWriter{driver: driver}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: []string{broker},
		Topic:   alertsTopic,
		GroupID: graphGroup,
	})
	defer func() {
		if err := reader.Close(); err != nil {
			log.Printf("alerts reader close error: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if metricsAddr != "" {
		startMetricsServer(ctx, metricsAddr)
	}

	log.Printf("graph-writer started topic=%s group=%s", alertsTopic, graphGroup)
	consumeAlerts(ctx, reader, writer)
	log.Println("graph-writer stopped")
}

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
		"vahti_graph_writer_up 1\n"+
			"vahti_graph_writer_alerts_received_total %d\n"+
			"vahti_graph_writer_alerts_failed_total %d\n"+
			"vahti_graph_writer_alerts_written_total %d\n"+
			"vahti_graph_writer_listings_written_total %d\n"+
			"vahti_graph_writer_listings_skipped_total %d\n",
		atomic.LoadUint64(&graphWriterAlertsReceived),
		atomic.LoadUint64(&graphWriterAlertsFailed),
		atomic.LoadUint64(&graphWriterAlertsWritten),
		atomic.LoadUint64(&graphWriterListingsWritten),
		atomic.LoadUint64(&graphWriterListingsSkipped),
	)
	_, _ = w.Write([]byte(body))
}

func consumeAlerts(ctx context.Context, reader watch.MessageReader, writer *graphWriter) {
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("alerts fetch error: %v", err)
			time.Sleep(500 * time.Millisecond)
			continue
		}

		atomic.AddUint64(&graphWriterAlertsReceived, 1)

		var alert models.Alert
		if err := json.Unmarshal(msg.Value, &alert); err != nil {
			// Redelivery cannot fix a malformed payload, so commit past it.
			log.Printf("failed to decode alert: %v", err)
			if err := reader.CommitMessages(ctx, msg); err != nil {
				log.Printf("alerts commit error: %v", err)
			}
			continue
		}

		if err := writer.writeAlert(ctx, alert); err != nil {
			atomic.AddUint64(&graphWriterAlertsFailed, 1)
			// Not committed: the group redelivers and the MERGEs absorb the replay.
			log.Printf("alert write error watch=%s run=%s err=%v", alert.WatchName, alert.RunID, err)
			continue
		}
		atomic.AddUint64(&graphWriterAlertsWritten, 1)

		if err := reader.CommitMessages(ctx, msg); err != nil {
			log.Printf("alerts commit error: %v", err)
		}
	}
}

// writeAlert records one alert in the graph: the watch node and its area,
// then one node per identified listing joined to the watch by a MATCHED
// edge. Listings that never carried an id have no stable key and are
// skipped.
func (w *graphWriter) writeAlert(ctx context.Context, alert models.Alert) error {
	if alert.WatchName == "" {
		return nil
	}

	query, params := buildWatchQuery(alert)
	if err := graph.Write(ctx, w.driver, query, params); err != nil {
		return err
	}

	for _, l := range alert.Listings {
		if !l.HasID() {
			atomic.AddUint64(&graphWriterListingsSkipped, 1)
			continue
		}
		query, params := buildListingQuery(alert, l)
		if err := graph.Write(ctx, w.driver, query, params); err != nil {
			return err
		}
		atomic.AddUint64(&graphWriterListingsWritten, 1)
	}
	return nil
}

func buildWatchQuery(alert models.Alert) (string, map[string]any) {
	query := "MERGE (w:Watch {name: $name}) " +
		"SET w.area = coalesce($area, w.area), " +
		"w.last_run_id = $run_id, " +
		"w.last_alert_at = $alerted_at"
	var area any
	if alert.AreaCode != "" {
		area = alert.AreaCode
		query += " MERGE (a:Area {code: $area}) MERGE (w)-[:SCOPED_TO]->(a)"
	}
	params := map[string]any{
		"name":       alert.WatchName,
		"area":       area,
		"run_id":     alert.RunID,
		"alerted_at": alert.CreatedAt.UTC().Format(time.RFC3339),
	}
	return query, params
}

func buildListingQuery(alert models.Alert, l models.Listing) (string, map[string]any) {
	query := "MERGE (l:Listing {id: $id}) " +
		"SET l.title = coalesce($title, l.title), " +
		"l.price_cents = coalesce($price_cents, l.price_cents), " +
		"l.url = coalesce($url, l.url), " +
		"l.published_at = coalesce($published_at, l.published_at) " +
		"MERGE (w:Watch {name: $watch}) " +
		"MERGE (l)-[r:MATCHED {run_id: $run_id}]->(w) " +
		"SET r.run_at = $run_at"
	var title any
	if l.Title != "" {
		title = l.Title
	}
	var price any
	if l.PriceCents != nil {
		price = *l.PriceCents
	}
	var url any
	if l.URL != "" {
		url = l.URL
	}
	var published any
	if l.PublishedAt != nil {
		published = l.PublishedAt.UTC().Format(time.RFC3339)
	}
	params := map[string]any{
		"id":           int64(l.ID),
		"title":        title,
		"price_cents":  price,
		"url":          url,
		"published_at": published,
		"watch":        alert.WatchName,
		"run_id":       alert.RunID,
		"run_at":       alert.CreatedAt.UTC().Format(time.RFC3339),
	}
	return query, params
}
