package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"tori-vahti/common"
	"tori-vahti/internal/kafka"
	"tori-vahti/internal/models"
	"tori-vahti/internal/store"
	"tori-vahti/internal/watch"
)

type scheduler struct {
	watches            store.WatchStore
	producer           kafka.RunProducer
	interval           time.Duration
	windowFromInterval bool
}

func newScheduler(watches store.WatchStore, producer kafka.RunProducer, interval time.Duration, windowFromInterval bool) *scheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &scheduler{
		watches:            watches,
		producer:           producer,
		interval:           interval,
		windowFromInterval: windowFromInterval,
	}
}

func main() {
	common.LoadEnv()

	broker := common.GetEnv("KAFKA_BROKER", "localhost:9092")
	runsTopic := common.GetEnv("KAFKA_RUNS_TOPIC", "vahti.watch.runs")
	redisAddr := common.GetEnv("REDIS_ADDR", "localhost:6379")
	watchesPrefix := common.GetEnv("WATCHES_PREFIX", "vahti:watches:")
	interval := common.ParseDuration(common.GetEnv("POLL_INTERVAL", "5m"), 5*time.Minute)
	windowFromInterval := common.ParseBool(common.GetEnv("WINDOW_FROM_INTERVAL", "true"), true)
	metricsAddr := common.GetEnv("METRICS_ADDR", ":9093")

	producer := kafka.NewProducer(broker, runsTopic)
	defer func() {
		if err := producer.Close(); err != nil {
			log.Printf("failed to close producer: %v", err)
		}
	}()

	watchStore := store.NewRedisWatchStore(redisAddr, watchesPrefix)
	defer func() {
		if err := watchStore.Close(); err != nil {
			log.Printf("failed to close watch store: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := bootstrapWatch(ctx, watchStore); err != nil {
		log.Fatalf("bootstrap watch: %v", err)
	}

	startMetricsServer(ctx, metricsAddr)

	s := newScheduler(watchStore, producer, interval, windowFromInterval)
	log.Printf("scheduler started interval=%s window_from_interval=%t", s.interval, s.windowFromInterval)
	s.run(ctx)
	log.Println("scheduler stopped")
}

// run ticks until the context is cancelled. The first tick fires
// immediately so a fresh deployment does not sit idle for a full interval.
func (s *scheduler) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick enqueues one run job per registered watch. Enqueue failures are
// logged and counted; the remaining watches still get their run.
func (s *scheduler) tick(ctx context.Context) {
	atomic.AddUint64(&schedulerTicksTotal, 1)

	listCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	watches, err := s.watches.ListWatches(listCtx)
	cancel()
	if err != nil {
		atomic.AddUint64(&schedulerListFailures, 1)
		log.Printf("failed to list watches: %v", err)
		return
	}
	if len(watches) == 0 {
		return
	}

	enqueued := 0
	for _, wt := range watches {
		if err := s.enqueue(ctx, wt); err != nil {
			atomic.AddUint64(&schedulerEnqueueFailures, 1)
			log.Printf("failed to enqueue run watch=%s err=%v", wt.Name, err)
			continue
		}
		atomic.AddUint64(&schedulerRunsEnqueued, 1)
		enqueued++
	}
	log.Printf("tick complete watches=%d enqueued=%d", len(watches), enqueued)
}

func (s *scheduler) enqueue(ctx context.Context, wt models.Watch) error {
	// The tick period defines how far back a run has to look. Stamping it
	// over the configured window keeps runs gap-free when the two drift
	// apart; the clamp in Watch.Timespan still applies downstream.
	if s.windowFromInterval {
		secs := int64(s.interval / time.Second)
		if secs > models.MaxTimespanSecs {
			secs = models.MaxTimespanSecs
		}
		if secs > 0 {
			wt.TimespanSecs = secs
		}
	}

	job := models.WatchJob{
		RunID:      newRunID(),
		Watch:      wt,
		EnqueuedAt: time.Now().UTC(),
	}

	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.producer.WriteRun(writeCtx, job)
}

// bootstrapWatch registers one watch from WATCH_* environment variables so
// a single-watch deployment works without the API. An existing definition
// under the same name wins.
func bootstrapWatch(ctx context.Context, watches store.WatchStore) error {
	name := strings.TrimSpace(os.Getenv("WATCH_NAME"))
	if name == "" {
		return nil
	}

	wt, err := watchFromEnv(name)
	if err != nil {
		return err
	}

	_, exists, err := watches.GetWatch(ctx, wt.Name)
	if err != nil {
		return err
	}
	if exists {
		log.Printf("bootstrap watch already registered name=%s", wt.Name)
		return nil
	}

	if err := watches.SaveWatch(ctx, wt); err != nil {
		return err
	}
	log.Printf("bootstrap watch registered name=%s keywords=%d", wt.Name, len(wt.Keywords))
	return nil
}

func watchFromEnv(name string) (models.Watch, error) {
	minCents, err := euroCentsFromEnv("WATCH_PRICE_MIN", 0)
	if err != nil {
		return models.Watch{}, err
	}
	maxCents, err := euroCentsFromEnv("WATCH_PRICE_MAX", 0)
	if err != nil {
		return models.Watch{}, err
	}
	windowSecs, err := int64FromEnv("WATCH_WINDOW_SECONDS", models.DefaultTimespanSecs)
	if err != nil {
		return models.Watch{}, err
	}
	skewSecs, err := int64FromEnv("WATCH_CLOCK_SKEW_SECONDS", 0)
	if err != nil {
		return models.Watch{}, err
	}

	wt := models.Watch{
		Name:          name,
		Keywords:      common.SplitList(os.Getenv("WATCH_KEYWORDS")),
		AreaCode:      common.GetEnv("WATCH_AREA", models.DefaultAreaCode),
		MinPriceCents: minCents,
		MaxPriceCents: maxCents,
		TimespanSecs:  windowSecs,
		SkewSecs:      skewSecs,
		Recipients:    common.SplitList(os.Getenv("WATCH_RECIPIENTS")),
	}
	return watch.Normalize(wt)
}

// Bootstrap numbers parse strictly. A typo in the deployment config should
// fail startup, not run a watch with a silently defaulted bound.
func euroCentsFromEnv(key string, fallback int64) (int64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	euros, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return euros * 100, nil
}

func int64FromEnv(key string, fallback int64) (int64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func newRunID() string {
	return strings.ReplaceAll(time.Now().UTC().Format("20060102150405.000000000"), ".", "")
}
