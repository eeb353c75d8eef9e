/*
scheduler.go - Periodic import of scraped months

PURPOSE:
  Periodically fetches months from a Source and ingests them, recording
  each cycle as a Run for the API to display.

DESIGN:
  - Runs a background goroutine with a configurable interval
  - Runs one cycle immediately on start
  - Cycles never overlap: a manual RunNow waits for a scheduled one
  - Keeps the most recent runs in memory (newest first)

USAGE:
  scheduler := ingest.NewScheduler(source, ingester, ingest.WithInterval(time.Hour))
  scheduler.Start()
  // ... later
  scheduler.Stop()
*/
package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rex8112/HumbleScrapperBot/bundle"
	"github.com/rex8112/HumbleScrapperBot/metrics"
)

// OpIngest is the operation name recorded for each cycle.
const OpIngest = "ingest"

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// DefaultHistory is how many runs a Scheduler remembers.
const DefaultHistory = 50

// Run records one ingest cycle.
type Run struct {
	ID          string
	Source      string
	Status      string
	StartedAt   time.Time
	CompletedAt *time.Time
	Months      int // months ingested
	Created     int // months archived for the first time
	Added       int // items seen for the first time
	Error       string
}

// Scheduler runs ingest cycles on a ticker.
type Scheduler struct {
	source   Source
	ingester *Ingester
	interval time.Duration
	history  int
	logger   zerolog.Logger
	metrics  metrics.Collector

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex // guards ticker, stop

	cycle sync.Mutex // held for the duration of a cycle

	runsMu sync.RWMutex
	runs   []Run
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

func WithInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithHistory(n int) SchedulerOption {
	return func(s *Scheduler) {
		if n > 0 {
			s.history = n
		}
	}
}

func WithSchedulerLogger(l zerolog.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = l.With().Str("component", "scheduler").Logger() }
}

func WithSchedulerMetrics(c metrics.Collector) SchedulerOption {
	return func(s *Scheduler) {
		if c != nil {
			s.metrics = c
		}
	}
}

// NewScheduler creates a scheduler. The default interval is one hour.
func NewScheduler(source Source, ingester *Ingester, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		source:   source,
		ingester: ingester,
		interval: time.Hour,
		history:  DefaultHistory,
		logger:   zerolog.Nop(),
		metrics:  metrics.NewNoopCollector(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Interval returns the time between scheduled cycles.
func (s *Scheduler) Interval() time.Duration { return s.interval }

// Start begins the scheduler. Calling Start twice is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		return
	}
	s.ticker = time.NewTicker(s.interval)
	s.stop = make(chan struct{})
	s.wg.Add(1)

	go s.run(s.ticker, s.stop)

	s.logger.Info().Dur("interval", s.interval).Str("source", s.source.Name()).Msg("scheduler started")
}

// Stop stops the scheduler and waits for a running cycle to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.wg.Wait()
	s.ticker, s.stop = nil, nil
	s.logger.Info().Msg("scheduler stopped")
}

func (s *Scheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	// Run immediately on start
	s.RunNow(ctx)

	for {
		select {
		case <-ticker.C:
			s.RunNow(ctx)
		case <-stop:
			return
		}
	}
}

// RunNow fetches from the source and ingests everything it returns.
func (s *Scheduler) RunNow(ctx context.Context) Run {
	run, _, _ := s.RunSource(ctx, s.source)
	return run
}

// RunSource runs one cycle against src instead of the configured source.
// The cycle is recorded in Runs like a scheduled one; the per-month results
// and the cycle error are returned for callers that answer for it directly.
func (s *Scheduler) RunSource(ctx context.Context, src Source) (Run, []Result, error) {
	s.cycle.Lock()
	defer s.cycle.Unlock()

	start := time.Now()
	run := Run{
		ID:        uuid.NewString(),
		Source:    src.Name(),
		Status:    StatusRunning,
		StartedAt: start,
	}
	s.record(run)
	log := s.logger.With().Str("run_id", run.ID).Logger()

	results, err := s.cycleOnce(ctx, src)
	for _, r := range results {
		run.Months++
		if r.Created {
			run.Created++
		}
		run.Added += len(r.Added)
	}

	done := time.Now()
	run.CompletedAt = &done
	status := "success"
	if err != nil {
		run.Status = StatusFailed
		run.Error = err.Error()
		status = "error"
		s.metrics.RecordError(ctx, OpIngest, bundle.ClassifyError(err))
		log.Error().Err(err).Int("months", run.Months).Msg("ingest run failed")
	} else {
		run.Status = StatusCompleted
		log.Info().
			Int("months", run.Months).
			Int("created", run.Created).
			Int("added", run.Added).
			Dur("took", done.Sub(start)).
			Msg("ingest run completed")
	}
	s.metrics.RecordOperation(ctx, OpIngest, status, done.Sub(start))
	s.record(run)
	return run, results, err
}

func (s *Scheduler) cycleOnce(ctx context.Context, src Source) ([]Result, error) {
	months, err := src.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return s.ingester.IngestAll(ctx, months)
}

// record inserts run at the front or replaces the entry with the same id.
func (s *Scheduler) record(run Run) {
	s.runsMu.Lock()
	defer s.runsMu.Unlock()

	for i := range s.runs {
		if s.runs[i].ID == run.ID {
			s.runs[i] = run
			return
		}
	}
	s.runs = append([]Run{run}, s.runs...)
	if len(s.runs) > s.history {
		s.runs = s.runs[:s.history]
	}
}

// Runs returns recorded runs, newest first.
func (s *Scheduler) Runs() []Run {
	s.runsMu.RLock()
	defer s.runsMu.RUnlock()
	out := make([]Run, len(s.runs))
	copy(out, s.runs)
	return out
}

// NextRunTime returns when the next scheduled cycle will occur, assuming
// the last one started on schedule.
func (s *Scheduler) NextRunTime() time.Time {
	runs := s.Runs()
	if len(runs) == 0 {
		return time.Now().Add(s.interval)
	}
	return runs[0].StartedAt.Add(s.interval)
}
