package main

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"tori-vahti/common"
	"tori-vahti/internal/models"
	"tori-vahti/internal/store"
	"tori-vahti/internal/tori"
	"tori-vahti/internal/watch"
)

type messageReader = watch.MessageReader
type alertWriter = watch.MessageWriter

// fetchError marks a transport failure. The run ends with an empty
// accepted set instead of going through retry and the DLQ; the next
// scheduled run fetches the page again anyway.
type fetchError struct {
	err error
}

func (e *fetchError) Error() string { return e.err.Error() }

func (e *fetchError) Unwrap() error { return e.err }

type watcher struct {
	reader         messageReader
	seen           store.SeenStore
	statuses       store.StatusStore
	alertsWriter   alertWriter
	dlqWriter      alertWriter
	extractor      *tori.Extractor
	baseURL        string
	retryMax       int
	retryBase      time.Duration
	retryMaxDelay  time.Duration
	client         *http.Client
	concurrentRuns int
	runTimeout     time.Duration // per-run deadline so one stuck run can't hold a slot forever
	publishTimeout time.Duration // max time for the publish phase so we never block the commit path
	commitCh       chan<- kafka.Message
	sem            chan struct{}
	wg             *sync.WaitGroup
	robots         *tori.RobotsRules // nil = no check (e.g. robots fetch failed at startup)
}

// selectProxyFromPool returns one URL from pool (comma-separated) by hashing hostname.
// Each replica picks a deterministic proxy so pods spread across egress IPs.
// Empty pool or hostname yields "".
func selectProxyFromPool(pool, hostname string) string {
	parts := strings.Split(strings.TrimSpace(pool), ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	var valid []string
	for _, p := range parts {
		if p != "" {
			valid = append(valid, p)
		}
	}
	if len(valid) == 0 {
		return ""
	}
	if hostname == "" {
		hostname = "0"
	}
	h := fnv.New32a()
	h.Write([]byte(hostname))
	idx := int(h.Sum32()) % len(valid)
	if idx < 0 {
		idx = -idx
	}
	return valid[idx]
}

// metricsProxyURL is the proxy URL this watcher uses (set at startup for /metrics proxy label).
var metricsProxyURL string

// Tori HTTP timeouts so a single hung request doesn't hold a run slot indefinitely.
const (
	toriConnectTimeout  = 10 * time.Second
	toriResponseTimeout = 25 * time.Second // time to first response header
	toriTotalTimeout    = 30 * time.Second // total request (connect + headers + body)
)

// buildHTTPClient returns an http.Client for tori.fi fetches. If PROXY_URL is set, uses that
// proxy; if PROXY_POOL is set (comma-separated URLs), picks one by HOSTNAME (e.g. pod name)
// so replicas spread across proxies.
// Transport uses explicit connect and response-header timeouts so hung requests release the slot.
func buildHTTPClient() *http.Client {
	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: toriConnectTimeout}).DialContext,
		ResponseHeaderTimeout: toriResponseTimeout,
	}
	proxyURL := common.GetEnv("PROXY_URL", "")
	pool := common.GetEnv("PROXY_POOL", "")
	if proxyURL == "" && pool != "" {
		hostname := os.Getenv("HOSTNAME")
		proxyURL = selectProxyFromPool(pool, hostname)
		if proxyURL != "" {
			log.Printf("watcher proxy from pool: hostname=%s proxy=%s", hostname, proxyURL)
		}
	}
	metricsProxyURL = proxyURL
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			log.Printf("invalid PROXY_URL/PROXY_POOL: %v", err)
		} else {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &http.Client{
		Transport: transport,
		Timeout:   toriTotalTimeout,
	}
}

func newWatcher(
	reader messageReader,
	seen store.SeenStore,
	statuses store.StatusStore,
	alertsWriter alertWriter,
	dlqWriter alertWriter,
	extractor *tori.Extractor,
	baseURL string,
	retryMax int,
	retryBase time.Duration,
	retryMaxDelay time.Duration,
	client *http.Client,
	concurrentRuns int,
	runTimeout time.Duration,
	publishTimeout time.Duration,
	commitCh chan<- kafka.Message,
	wg *sync.WaitGroup,
	robots *tori.RobotsRules,
) *watcher {
	if concurrentRuns < 1 {
		concurrentRuns = 1
	}
	if runTimeout <= 0 {
		runTimeout = 2 * time.Minute
	}
	if publishTimeout <= 0 {
		publishTimeout = 45 * time.Second
	}
	// Cap publish timeout so the run context can still cancel the publish phase
	if publishTimeout >= runTimeout {
		publishTimeout = runTimeout / 2
		if publishTimeout < 10*time.Second {
			publishTimeout = 10 * time.Second
		}
	}
	sem := make(chan struct{}, concurrentRuns)
	return &watcher{
		reader:         reader,
		seen:           seen,
		statuses:       statuses,
		alertsWriter:   alertsWriter,
		dlqWriter:      dlqWriter,
		extractor:      extractor,
		baseURL:        baseURL,
		retryMax:       retryMax,
		retryBase:      retryBase,
		retryMaxDelay:  retryMaxDelay,
		client:         client,
		concurrentRuns: concurrentRuns,
		runTimeout:     runTimeout,
		publishTimeout: publishTimeout,
		commitCh:       commitCh,
		sem:            sem,
		wg:             wg,
		robots:         robots,
	}
}

func main() {
	common.LoadEnv()

	broker := common.GetEnv("KAFKA_BROKER", "localhost:9092")
	runsTopic := common.GetEnv("KAFKA_RUNS_TOPIC", "vahti.watch.runs")
	groupID := common.GetEnv("KAFKA_RUNS_GROUP", "vahti-watcher")
	alertsTopic := common.GetEnv("KAFKA_ALERTS_TOPIC", "vahti.watch.alerts")
	dlqTopic := common.GetEnv("KAFKA_DLQ_TOPIC", "vahti.watch.dlq")
	redisAddr := common.GetEnv("REDIS_ADDR", "localhost:6379")
	seenPrefix := common.GetEnv("SEEN_PREFIX", "vahti:seen:")
	seenTTL := common.ParseDuration(common.GetEnv("SEEN_TTL", "0"), 0)
	statusPrefix := common.GetEnv("STATUS_PREFIX", "vahti:status:")
	statusTTL := common.ParseDuration(common.GetEnv("STATUS_TTL", "0"), 0)
	baseURL := common.GetEnv("TORI_BASE_URL", tori.DefaultBaseURL)
	tzName := common.GetEnv("WATCH_TZ", "Europe/Helsinki")
	retryMax := common.ParseInt(common.GetEnv("RETRY_MAX", "3"), 3)
	retryBase := common.ParseDuration(common.GetEnv("RETRY_BASE_DELAY", "200ms"), 200*time.Millisecond)
	retryMaxDelay := common.ParseDuration(common.GetEnv("RETRY_MAX_DELAY", "5s"), 5*time.Second)
	concurrentRuns := common.ParseInt(common.GetEnv("CONCURRENT_RUNS", "4"), 4)
	runTimeout := common.ParseDuration(common.GetEnv("RUN_TIMEOUT", "2m"), 2*time.Minute)
	publishTimeout := common.ParseDuration(common.GetEnv("PUBLISH_TIMEOUT", "45s"), 45*time.Second)
	metricsAddr := common.GetEnv("METRICS_ADDR", ":9090")

	loc, err := time.LoadLocation(tzName)
	if err != nil {
		log.Printf("invalid WATCH_TZ %q, falling back to UTC: %v", tzName, err)
		loc = time.UTC
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: []string{broker},
		Topic:   runsTopic,
		GroupID: groupID,
	})
	defer func() {
		if err := reader.Close(); err != nil {
			log.Printf("failed to close reader: %v", err)
		}
	}()

	seenStore := store.NewRedisSeenStore(redisAddr, seenPrefix, seenTTL)
	defer func() {
		if err := seenStore.Close(); err != nil {
			log.Printf("failed to close seen store: %v", err)
		}
	}()

	statusStore := store.NewRedisStatusStore(redisAddr, statusPrefix, statusTTL)
	defer func() {
		if err := statusStore.Close(); err != nil {
			log.Printf("failed to close status store: %v", err)
		}
	}()

	alertsWriter := &kafka.Writer{
		Addr:                   kafka.TCP(broker),
		Topic:                  alertsTopic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: false,
	}
	defer func() {
		if err := alertsWriter.Close(); err != nil {
			log.Printf("failed to close alerts writer: %v", err)
		}
	}()

	dlqWriter := &kafka.Writer{
		Addr:                   kafka.TCP(broker),
		Topic:                  dlqTopic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: false,
	}
	defer func() {
		if err := dlqWriter.Close(); err != nil {
			log.Printf("failed to close dlq writer: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if metricsAddr != "" {
		startMetricsServer(ctx, metricsAddr)
	}

	commitCh := make(chan kafka.Message, concurrentRuns*2)
	coordinator := newCommitCoordinator(reader, commitCh)
	var coordWg sync.WaitGroup
	coordWg.Add(1)
	go coordinator.run(ctx, &coordWg)

	var wg sync.WaitGroup
	httpClient := buildHTTPClient()
	var robots *tori.RobotsRules
	if common.ParseBool(common.GetEnv("RESPECT_ROBOTS_TXT", "false"), false) {
		robotsCtx, robotsCancel := context.WithTimeout(ctx, 15*time.Second)
		robotsBody, err := tori.FetchRobots(robotsCtx, httpClient, baseURL)
		robotsCancel()
		if err != nil {
			log.Printf("robots.txt fetch failed (will allow all paths): %v", err)
		} else {
			robots = tori.ParseRobots(robotsBody, tori.DefaultUserAgent)
			log.Printf("loaded tori.fi robots.txt (paths disallowed by * will be skipped)")
		}
	}
	log.Printf("watcher consuming topic=%s group=%s broker=%s concurrent_runs=%d", runsTopic, groupID, broker, concurrentRuns)
	w := newWatcher(
		reader,
		seenStore,
		statusStore,
		alertsWriter,
		dlqWriter,
		tori.NewExtractor(loc),
		baseURL,
		retryMax,
		retryBase,
		retryMaxDelay,
		httpClient,
		concurrentRuns,
		runTimeout,
		publishTimeout,
		commitCh,
		&wg,
		robots,
	)
	w.run(ctx)
	wg.Wait()
	close(commitCh)
	coordWg.Wait()
}

// run consumes messages from the runs topic, dispatches to run goroutines
// (bounded by semaphore), and routes commits through the coordinator.
func (w *watcher) run(ctx context.Context) {
	for {
		msg, err := w.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("fetch error: %v", err)
			time.Sleep(500 * time.Millisecond)
			continue
		}

		if err := w.dispatchMessage(ctx, msg); err != nil {
			log.Printf("message dispatch error: %v", err)
		}
	}
}

// dispatchMessage decodes the job synchronously; spawns a goroutine for the run itself.
func (w *watcher) dispatchMessage(ctx context.Context, msg kafka.Message) error {
	var job models.WatchJob
	if err := json.Unmarshal(msg.Value, &job); err != nil {
		log.Printf("invalid run payload: %v", err)
		w.commitCh <- msg
		return nil
	}
	atomic.AddUint64(&watcherRunsReceived, 1)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case w.sem <- struct{}{}:
	}
	atomic.AddInt64(&watcherInFlight, 1)
	w.wg.Add(1)
	go w.processRunAsync(ctx, msg, job)
	return nil
}

// processRunAsync runs one watch, publishes its outcome, and signals commit.
// Uses a per-run context with timeout so one stuck run can't hold the slot forever.
// Defers sending msg to commitCh so the partition advances even on panic or timeout.
func (w *watcher) processRunAsync(ctx context.Context, msg kafka.Message, job models.WatchJob) {
	// Always release slot and signal commit so one bad run doesn't block the partition.
	defer func() {
		atomic.AddInt64(&watcherInFlight, -1)
		<-w.sem
		w.wg.Done()
		w.commitCh <- msg
	}()

	runCtx, cancel := context.WithTimeout(ctx, w.runTimeout)
	defer cancel()

	log.Printf("received run run_id=%s watch=%q partition=%d offset=%d", job.RunID, job.Watch.Name, msg.Partition, msg.Offset)

	wt, err := watch.Normalize(job.Watch)
	if err != nil {
		// A misconfigured watch cannot be fixed by retrying;
		// it goes to the DLQ without a single fetch.
		atomic.AddUint64(&watcherRunsFailed, 1)
		log.Printf("watch rejected run_id=%s watch=%q: %v", job.RunID, job.Watch.Name, err)
		publishCtx, publishCancel := context.WithTimeout(runCtx, w.publishTimeout)
		defer publishCancel()
		if dlqErr := w.publishRunFailure(publishCtx, job, err); dlqErr != nil {
			log.Printf("dlq publish error: %v", dlqErr)
		}
		w.setStatus(publishCtx, job.RunID, job.Watch.Name, "failed", 0, err.Error())
		return
	}

	w.setStatus(runCtx, job.RunID, wt.Name, "running", 0, "")

	if w.robots != nil {
		path := tori.PathFromURL(tori.SearchURL(w.baseURL, wt.Keywords, wt.AreaCode))
		if !w.robots.Allowed(path) {
			atomic.AddUint64(&watcherRunsSkipped, 1)
			log.Printf("robots.txt disallows path %s, skipping run run_id=%s watch=%s", path, job.RunID, wt.Name)
			w.setStatus(runCtx, job.RunID, wt.Name, "skipped", 0, "")
			return
		}
	}

	fresh, err := w.runWithRetry(runCtx, wt)

	// Bounded publish phase so a stuck write never blocks the commit path (avoids stuck partition).
	publishCtx, publishCancel := context.WithTimeout(runCtx, w.publishTimeout)
	defer publishCancel()

	var fe *fetchError
	if errors.As(err, &fe) {
		// Transport failure: the run completes empty, noting the error in status.
		atomic.AddUint64(&watcherFetchFailures, 1)
		log.Printf("fetch failed run_id=%s watch=%s (empty run): %v", job.RunID, wt.Name, err)
		w.setStatus(publishCtx, job.RunID, wt.Name, "ok", 0, err.Error())
		return
	}
	if err != nil {
		atomic.AddUint64(&watcherRunsFailed, 1)
		log.Printf("run error run_id=%s watch=%s: %v", job.RunID, wt.Name, err)
		if dlqErr := w.publishRunFailure(publishCtx, job, err); dlqErr != nil {
			log.Printf("dlq publish error: %v", dlqErr)
		}
		w.setStatus(publishCtx, job.RunID, wt.Name, "failed", 0, err.Error())
		return
	}

	atomic.AddUint64(&watcherRunsSuccess, 1)
	atomic.AddUint64(&watcherListingsAccepted, uint64(len(fresh)))
	log.Printf("run done run_id=%s watch=%s new_listings=%d", job.RunID, wt.Name, len(fresh))

	if len(fresh) > 0 {
		if err := w.publishAlert(publishCtx, job, wt, fresh); err != nil {
			log.Printf("alert publish error watch=%s: %v", wt.Name, err)
		}
	}
	if publishCtx.Err() != nil {
		log.Printf("publish timeout partition=%d offset=%d (advancing to avoid stuck partition)", msg.Partition, msg.Offset)
		return
	}
	// Merge after the alert is out: a crash in between re-alerts the same
	// ids on the next run, which beats marking ids seen that never alerted.
	if err := w.mergeSeen(publishCtx, wt.Name, fresh); err != nil {
		atomic.AddUint64(&watcherMergeFailures, 1)
		log.Printf("seen merge error watch=%s: %v", wt.Name, err)
	}
	w.setStatus(publishCtx, job.RunID, wt.Name, "ok", len(fresh), "")
}

// runWithRetry retries the run with capped exponential backoff. Transport
// failures are not retried; they surface immediately as an empty run.
func (w *watcher) runWithRetry(ctx context.Context, wt models.Watch) ([]models.Listing, error) {
	if w.retryMax <= 0 {
		return w.runWatch(ctx, wt)
	}
	delay := w.retryBase
	attempts := 0
	for {
		fresh, err := w.runWatch(ctx, wt)
		if err == nil {
			return fresh, nil
		}
		var fe *fetchError
		if errors.As(err, &fe) {
			return nil, err
		}
		attempts++
		if attempts > w.retryMax {
			return nil, err
		}
		if delay > 0 {
			if w.retryMaxDelay > 0 && delay > w.retryMaxDelay {
				delay = w.retryMaxDelay
			}
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
			delay *= 2
		}
	}
}

// runWatch executes one watch run: fetch the search page, extract rows,
// filter by price and publish window, and drop already-seen ids.
func (w *watcher) runWatch(ctx context.Context, wt models.Watch) ([]models.Listing, error) {
	searchURL := tori.SearchURL(w.baseURL, wt.Keywords, wt.AreaCode)
	body, err := fetchPageWithMetrics(ctx, w.client, searchURL)
	if err != nil {
		return nil, &fetchError{err: err}
	}

	now := time.Now()
	rows, err := w.extractor.Extract(body, now)
	if err != nil {
		return nil, err
	}
	atomic.AddUint64(&watcherListingsExtracted, uint64(len(rows)))

	var candidates []models.Listing
	for _, l := range rows {
		if watch.Accepts(wt, l, now) {
			candidates = append(candidates, l)
		}
	}
	return w.dropSeen(ctx, wt.Name, candidates)
}

// dropSeen removes listings whose ids are already in the watch's seen set.
// Listings without an id can't be tracked and always pass through.
func (w *watcher) dropSeen(ctx context.Context, watchName string, candidates []models.Listing) ([]models.Listing, error) {
	var ids []uint64
	for _, l := range candidates {
		if l.HasID() {
			ids = append(ids, l.ID)
		}
	}
	seen, err := w.seen.Seen(ctx, watchName, ids)
	if err != nil {
		return nil, err
	}
	var fresh []models.Listing
	for _, l := range candidates {
		if l.HasID() && seen[l.ID] {
			continue
		}
		fresh = append(fresh, l)
	}
	return fresh, nil
}

func (w *watcher) mergeSeen(ctx context.Context, watchName string, listings []models.Listing) error {
	var ids []uint64
	for _, l := range listings {
		if l.HasID() {
			ids = append(ids, l.ID)
		}
	}
	return w.seen.Merge(ctx, watchName, ids)
}

func (w *watcher) publishAlert(ctx context.Context, job models.WatchJob, wt models.Watch, listings []models.Listing) error {
	if w.alertsWriter == nil {
		return nil
	}
	alert := models.Alert{
		RunID:      job.RunID,
		WatchName:  wt.Name,
		AreaCode:   wt.AreaCode,
		Listings:   listings,
		Recipients: wt.Recipients,
		CreatedAt:  time.Now().UTC(),
	}
	payload, err := json.Marshal(alert)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(wt.Name),
		Value: payload,
		Time:  time.Now().UTC(),
	}
	if err := w.alertsWriter.WriteMessages(ctx, msg); err != nil {
		return err
	}
	atomic.AddUint64(&watcherAlertsPublished, 1)
	return nil
}

func (w *watcher) publishRunFailure(ctx context.Context, job models.WatchJob, runErr error) error {
	if w.dlqWriter == nil {
		return nil
	}
	payload, err := json.Marshal(models.RunFailure{
		RunID:     job.RunID,
		WatchName: job.Watch.Name,
		Error:     runErr.Error(),
		FailedAt:  time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(job.Watch.Name),
		Value: payload,
		Time:  time.Now().UTC(),
	}
	return w.dlqWriter.WriteMessages(ctx, msg)
}

// setStatus records the run state; a failed write is logged, never fatal.
func (w *watcher) setStatus(ctx context.Context, runID, watchName, status string, newListings int, errText string) {
	if w.statuses == nil {
		return
	}
	s := models.WatchStatus{
		WatchName:   watchName,
		RunID:       runID,
		Status:      status,
		NewListings: newListings,
		Error:       errText,
		UpdatedAt:   time.Now().UTC(),
	}
	if err := w.statuses.SetStatus(ctx, s); err != nil {
		log.Printf("status write error watch=%s status=%s: %v", watchName, status, err)
	}
}
