package monitoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/isdelr/ender-monitor-be/internal/insights"
	"github.com/isdelr/ender-monitor-be/internal/models"
	"github.com/isdelr/ender-monitor-be/internal/services"
	"github.com/isdelr/ender-monitor-be/internal/websocket"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

const (
	highCPUThreshold = 90.0
	alertHighCPU     = "High CPU"
	// statsSnapshotSize is how many db_stats rows each tick reads back and broadcasts.
	statsSnapshotSize = services.DefaultStatsLimit
)

// Broadcaster pushes one live event to every subscriber.
type Broadcaster interface {
	Broadcast(event string, payload any) error
}

// Sampler is responsible for periodically taking a reading, recording it in
// both stores and broadcasting the tick's events.
type Sampler struct {
	source   ReadingSource
	events   services.EventServiceProvider
	stats    services.StatsServiceProvider
	hub      Broadcaster
	detector insights.AnomalyDetector
	advisor  insights.OptimizationAdvisor
	current  *insights.Current

	interval     time.Duration
	storeTimeout time.Duration
	now          func() time.Time

	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// Options holds the timing of a Sampler.
type Options struct {
	Interval     time.Duration
	StoreTimeout time.Duration
}

// NewSampler creates a new Sampler. StoreTimeout bounds all the work one tick
// does against a single store; it defaults to, and is capped at, half the interval.
func NewSampler(opts Options, source ReadingSource, events services.EventServiceProvider, stats services.StatsServiceProvider,
	hub Broadcaster, detector insights.AnomalyDetector, advisor insights.OptimizationAdvisor, current *insights.Current) *Sampler {
	if opts.StoreTimeout <= 0 || 2*opts.StoreTimeout > opts.Interval {
		if opts.StoreTimeout > 0 {
			log.Warn().Dur("store_timeout", opts.StoreTimeout).Dur("interval", opts.Interval).
				Msg("Store timeout exceeds half the interval, capping it")
		}
		opts.StoreTimeout = opts.Interval / 2
	}
	return &Sampler{
		source:       source,
		events:       events,
		stats:        stats,
		hub:          hub,
		detector:     detector,
		advisor:      advisor,
		current:      current,
		interval:     opts.Interval,
		storeTimeout: opts.StoreTimeout,
		now:          time.Now,
		done:         make(chan struct{}),
		stopped:      make(chan struct{}),
	}
}

// Run ticks once immediately and then on every interval until Stop is called.
// A tick that is still running when the next one is due causes that one to be skipped.
func (s *Sampler) Run() {
	defer close(s.stopped)
	log.Info().Dur("interval", s.interval).Msg("Starting sampler...")

	logger := cronLogger{}
	c := cron.New(cron.WithLogger(logger))
	job := cron.NewChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)).
		Then(cron.FuncJob(func() { s.Tick(context.Background()) }))
	c.Schedule(cron.Every(s.interval), job)

	// Run once immediately on start
	job.Run()
	c.Start()

	<-s.done
	log.Info().Msg("Stopping sampler, waiting for in-flight tick.")
	<-c.Stop().Done()
}

// Stop halts the schedule and waits for Run to return, bounded by ctx.
func (s *Sampler) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.done) })
	select {
	case <-s.stopped:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("sampler did not stop: %w", ctx.Err())
	}
}

// tickResult records what a tick managed to persist.
type tickResult struct {
	metricErr error
	logErr    error
	statsErr  error
	snapshot  []models.DbStat
}

// Tick performs one sampling cycle. Store failures are logged and only
// suppress the broadcast that reports on the failed write.
func (s *Sampler) Tick(ctx context.Context) {
	reading, err := s.source.Read(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Sampler: Failed to take reading")
		return
	}
	reading.Timestamp = s.now().UTC().Truncate(time.Millisecond)
	tickID := uuid.NewString()

	metric := &models.Metric{CPU: reading.CPU, Mem: reading.Mem, Timestamp: reading.Timestamp}
	line := newLogLine(tickID, reading)
	stat := models.DbStat{
		Timestamp:     reading.Timestamp,
		Connections:   reading.Connections,
		QueryCount:    reading.QueryCount,
		CacheHitRatio: reading.CacheHitRatio,
	}

	var res tickResult
	var wg sync.WaitGroup
	wg.Add(2)
	// Each store gets one deadline for everything it does this tick, so a hung
	// backend delays the tick by at most storeTimeout.
	go func() {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
		defer cancel()
		res.metricErr = s.events.InsertMetric(ctx, metric)
		res.logErr = s.events.InsertLog(ctx, line)
	}()
	go func() {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
		defer cancel()
		res.snapshot, res.statsErr = s.recordStat(ctx, stat)
	}()
	wg.Wait()

	logger := log.With().Str("tick", tickID).Logger()
	if res.metricErr != nil {
		logger.Error().Err(res.metricErr).Str("store", "events").Msg("Sampler: Failed to insert metric")
	} else {
		s.broadcast(websocket.EventMetrics, metric)
	}
	if res.logErr != nil {
		logger.Error().Err(res.logErr).Str("store", "events").Msg("Sampler: Failed to insert log")
	} else {
		s.broadcast(websocket.EventLog, line)
	}
	if alert, ok := checkHighCPU(reading); ok {
		logger.Warn().Float64("cpu", reading.CPU).Msg("High CPU usage detected")
		s.broadcast(websocket.EventAlert, alert)
	}
	if res.statsErr != nil {
		logger.Error().Err(res.statsErr).Str("store", "stats").Msg("Sampler: Failed to record db stats")
	} else {
		s.broadcast(websocket.EventDbStats, res.snapshot)
	}

	anomaly := s.detector.Detect(reading)
	optimization := s.advisor.Suggest(reading)
	s.current.Set(anomaly, optimization)
	s.broadcast(websocket.EventAnomaly, anomaly)
	s.broadcast(websocket.EventOptimization, optimization)
}

// recordStat inserts the row and reads back the latest snapshot.
func (s *Sampler) recordStat(ctx context.Context, stat models.DbStat) ([]models.DbStat, error) {
	if _, err := s.stats.InsertStat(ctx, stat); err != nil {
		return nil, err
	}
	return s.stats.LatestStats(ctx, statsSnapshotSize)
}

func (s *Sampler) broadcast(event string, payload any) {
	if err := s.hub.Broadcast(event, payload); err != nil {
		log.Warn().Err(err).Str("event", event).Msg("Sampler: Failed to broadcast")
	}
}

func newLogLine(tickID string, r models.Reading) *models.Log {
	level := models.LevelInfo
	if r.CPU > highCPUThreshold {
		level = models.LevelWarn
	}
	return &models.Log{
		Message:   fmt.Sprintf("CPU: %v%%, Mem: %vGB", r.CPU, r.Mem),
		Level:     level,
		Timestamp: r.Timestamp,
		Context:   map[string]any{"tick": tickID, "cpu": r.CPU, "mem": r.Mem},
	}
}

func checkHighCPU(r models.Reading) (models.Alert, bool) {
	if r.CPU <= highCPUThreshold {
		return models.Alert{}, false
	}
	return models.Alert{Type: alertHighCPU, Value: r.CPU, Time: r.Timestamp}, true
}

// cronLogger routes the scheduler's own messages through zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
