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
	"tori-vahti/internal/models"
	"tori-vahti/internal/notify"
	"tori-vahti/internal/watch"
)

type notifier struct {
	sender    notify.Notifier
	dlqWriter watch.MessageWriter
}

var (
	// Counters for notifier throughput exposed on /metrics. skipped:
	// alerts naming no recipients; failed: SMTP submissions that were
	// dead-lettered instead of redelivered.
	notifierAlertsReceived uint64
	notifierAlertsSent     uint64
	notifierAlertsSkipped  uint64
	notifierAlertsFailed   uint64
)

func main() {
	common.LoadEnv()

	broker := common.GetEnv("KAFKA_BROKER", "localhost:9092")
	alertsTopic := common.GetEnv("KAFKA_ALERTS_TOPIC", "vahti.watch.alerts")
	alertsGroup := common.GetEnv("KAFKA_ALERTS_GROUP", "vahti-notifier")
	alertsDLQTopic := common.GetEnv("KAFKA_ALERTS_DLQ_TOPIC", "vahti.alerts.dlq")
	metricsAddr := common.GetEnv("METRICS_ADDR", ":9092")

	smtpAddr := common.GetEnv("SMTP_ADDR", "localhost:25")
	smtpFrom := common.GetEnv("SMTP_FROM", "Hakuvahti <vahti@localhost>")
	smtpUsername := common.GetEnv("SMTP_USERNAME", "")
	smtpPassword := common.GetEnv("SMTP_PASSWORD", "")

	sender := notify.NewSMTPNotifier(smtpAddr, smtpFrom, smtpUsername, smtpPassword)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: []string{broker},
		Topic:   alertsTopic,
		GroupID: alertsGroup,
	})
	defer func() {
		if err := reader.Close(); err != nil {
			log.Printf("alerts reader close error: %v", err)
		}
	}()

	dlqWriter := &kafka.Writer{
		Addr:                   kafka.TCP(broker),
		Topic:                  alertsDLQTopic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: false,
	}
	defer func() {
		if err := dlqWriter.Close(); err != nil {
			log.Printf("dlq writer close error: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if metricsAddr != "" {
		startMetricsServer(ctx, metricsAddr)
	}

	n := &notifier{sender: sender, dlqWriter: dlqWriter}
	log.Printf("notifier started smtp=%s topic=%s group=%s", smtpAddr, alertsTopic, alertsGroup)
	consumeAlerts(ctx, reader, n)
	log.Println("notifier stopped")
}

func consumeAlerts(ctx context.Context, reader watch.MessageReader, n *notifier) {
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

		atomic.AddUint64(&notifierAlertsReceived, 1)
		n.deliver(ctx, msg.Value)

		// Every outcome commits. Delivery is not retried: a failed send is
		// dead-lettered above, and redelivering it here would re-mail
		// recipients whenever the failure was partial.
		if err := reader.CommitMessages(ctx, msg); err != nil {
			log.Printf("alerts commit error: %v", err)
		}
	}
}

// deliver sends one alert to its recipients.
func (n *notifier) deliver(ctx context.Context, payload []byte) {
	var alert models.Alert
	if err := json.Unmarshal(payload, &alert); err != nil {
		log.Printf("failed to decode alert: %v", err)
		return
	}

	if len(alert.Recipients) == 0 {
		atomic.AddUint64(&notifierAlertsSkipped, 1)
		log.Printf("alert without recipients skipped watch=%s run=%s", alert.WatchName, alert.RunID)
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	msgID, err := n.sender.Send(sendCtx, alert)
	cancel()
	if err != nil {
		atomic.AddUint64(&notifierAlertsFailed, 1)
		log.Printf("failed to send alert watch=%s run=%s err=%v", alert.WatchName, alert.RunID, err)
		n.publishAlertFailure(ctx, alert, err)
		return
	}

	atomic.AddUint64(&notifierAlertsSent, 1)
	log.Printf("alert sent watch=%s run=%s listings=%d message_id=%s",
		alert.WatchName, alert.RunID, len(alert.Listings), msgID)
}

func (n *notifier) publishAlertFailure(ctx context.Context, alert models.Alert, sendErr error) {
	failure := models.AlertFailure{
		Alert:    alert,
		Error:    sendErr.Error(),
		FailedAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(failure)
	if err != nil {
		log.Printf("failed to marshal alert failure: %v", err)
		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	msg := kafka.Message{
		Key:   []byte(alert.WatchName),
		Value: payload,
	}
	if err := n.dlqWriter.WriteMessages(writeCtx, msg); err != nil {
		log.Printf("failed to publish alert failure watch=%s run=%s err=%v", alert.WatchName, alert.RunID, err)
	}
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
		"vahti_notifier_up 1\n"+
			"vahti_notifier_alerts_received_total %d\n"+
			"vahti_notifier_alerts_sent_total %d\n"+
			"vahti_notifier_alerts_skipped_total %d\n"+
			"vahti_notifier_alerts_failed_total %d\n",
		atomic.LoadUint64(&notifierAlertsReceived),
		atomic.LoadUint64(&notifierAlertsSent),
		atomic.LoadUint64(&notifierAlertsSkipped),
		atomic.LoadUint64(&notifierAlertsFailed),
	)
	_, _ = w.Write([]byte(body))
}
