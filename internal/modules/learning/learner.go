package learning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	appcfg "github.com/querymind/core/internal/config"
	"github.com/querymind/core/internal/models"
	"github.com/querymind/core/internal/modules/analytics"
	"github.com/querymind/core/internal/modules/cache"
	"go.uber.org/zap"
)

// ErrAlreadyRunning is returned when a cycle is requested while one is active.
var ErrAlreadyRunning = errors.New("learning cycle is already running")

// Generator produces a fresh answer for a query. The chat service implements
// this; the indirection keeps the learning cycle testable without a model.
type Generator interface {
	Generate(ctx context.Context, query string) (answer string, sources []models.Source, sourceType models.SourceType, err error)
}

// AlertSink receives failure notifications.
type AlertSink interface {
	Push(title, body string) error
}

// EventSink receives cycle lifecycle events for live dashboards.
type EventSink interface {
	Broadcast(event string, payload interface{})
}

// Service runs the feedback-driven improvement cycle: pre-warm popular
// queries, regenerate poorly rated answers, clean up stale entries and extend
// the TTL of well rated ones.
type Service struct {
	store     *cache.Store
	analytics *analytics.Service
	gen       Generator
	cfg       *appcfg.AppConfig
	logger    *zap.Logger

	alerts AlertSink
	events EventSink

	state cycleState
}

func NewService(store *cache.Store, analyticsSvc *analytics.Service, gen Generator, cfg *appcfg.AppConfig, logger *zap.Logger) *Service {
	return &Service{
		store:     store,
		analytics: analyticsSvc,
		gen:       gen,
		cfg:       cfg,
		logger:    logger.Named("LearningService"),
	}
}

// SetAlertSink wires an optional failure notifier.
func (s *Service) SetAlertSink(sink AlertSink) { s.alerts = sink }

// SetEventSink wires an optional lifecycle event broadcaster.
func (s *Service) SetEventSink(sink EventSink) { s.events = sink }

// PreWarmResult reports one pre-warm pass.
type PreWarmResult struct {
	Candidates int `json:"total_popular"`
	Warmed     int `json:"warmed"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"errors"`
}

// ImproveResult reports one improvement pass.
type ImproveResult struct {
	Candidates int `json:"total_negative"`
	Improved   int `json:"improved"`
	Failed     int `json:"errors"`
}

// CleanupResult reports one cleanup pass.
type CleanupResult struct {
	Deleted int64     `json:"deleted"`
	Cutoff  time.Time `json:"cutoff"`
}

// ExtendResult reports one quality TTL extension pass.
type ExtendResult struct {
	Extended int `json:"extended"`
	Missing  int `json:"missing"`
}

// CycleResult is the outcome of one full learning cycle.
type CycleResult struct {
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	DurationMS int64         `json:"duration_ms"`
	PreWarm    PreWarmResult `json:"pre_warm"`
	Improve    ImproveResult `json:"improve"`
	Cleanup    CleanupResult `json:"cleanup"`
	ExtendTTL  ExtendResult  `json:"extend_ttl"`
	Error      string        `json:"error,omitempty"`
}

// IsRunning reports whether a cycle is currently active.
func (s *Service) IsRunning() bool {
	running, _, _ := s.state.snapshot()
	return running
}

// Status is the cheap liveness view of the learning service.
type Status struct {
	Running    bool         `json:"is_running"`
	LastRun    *time.Time   `json:"last_run"`
	LastResult *CycleResult `json:"last_result"`
}

// CurrentStatus reads the cycle flag and the last result. Side-effect free.
func (s *Service) CurrentStatus() Status {
	running, lastRun, lastResult := s.state.snapshot()
	return Status{Running: running, LastRun: lastRun, LastResult: lastResult}
}

// Stats combines cache aggregates with the learning configuration.
type Stats struct {
	Cache                 cache.Stats `json:"cache"`
	ImprovementCandidates int         `json:"improvement_candidates"`
	Enabled               bool        `json:"enabled"`
	IntervalHours         int         `json:"interval_hours"`
	Workers               int         `json:"workers"`
	Running               bool        `json:"is_running"`
	LastRun               *time.Time  `json:"last_learning_run"`
}

// CurrentStats returns cache and scheduling aggregates. Side-effect free.
func (s *Service) CurrentStats() (Stats, error) {
	cs, err := s.store.Stats()
	if err != nil {
		return Stats{}, err
	}
	candidates, err := s.analytics.ImprovementCandidates(s.cfg.Learning.Improve.MinNegative)
	if err != nil {
		return Stats{}, err
	}
	running, lastRun, _ := s.state.snapshot()
	return Stats{
		Cache:                 cs,
		ImprovementCandidates: len(candidates),
		Enabled:               s.cfg.Learning.Enabled,
		IntervalHours:         s.cfg.Learning.IntervalHours,
		Workers:               s.cfg.Learning.Workers,
		Running:               running,
		LastRun:               lastRun,
	}, nil
}

// Run executes one full learning cycle. Single-flight: a second caller gets
// ErrAlreadyRunning immediately. The running flag is released on every exit
// path, panics included. Phase errors are collected into the result instead
// of aborting the cycle; later phases still run.
func (s *Service) Run(ctx context.Context) (*CycleResult, error) {
	if !s.state.tryStart() {
		return nil, ErrAlreadyRunning
	}
	return s.runReserved(ctx), nil
}

// runReserved executes the cycle body for a slot already acquired via
// tryStart. The HTTP handler reserves the slot before responding so that two
// rapid triggers cannot both report a started cycle.
func (s *Service) runReserved(ctx context.Context) (res *CycleResult) {
	res = &CycleResult{StartedAt: time.Now()}
	var phaseErrs []string

	defer func() {
		if r := recover(); r != nil {
			phaseErrs = append(phaseErrs, fmt.Sprintf("panic: %v", r))
			s.logger.Error("learning cycle panicked", zap.Any("panic", r))
		}
		res.FinishedAt = time.Now()
		res.DurationMS = res.FinishedAt.Sub(res.StartedAt).Milliseconds()
		res.Error = strings.Join(phaseErrs, "; ")
		s.state.finish(res)

		if res.Error != "" && s.alerts != nil {
			go func() { _ = s.alerts.Push("learning cycle finished with errors", res.Error) }()
		}
		if s.events != nil {
			s.events.Broadcast("learning_finished", res)
		}
	}()

	s.logger.Info("learning cycle started")
	if s.events != nil {
		s.events.Broadcast("learning_started", map[string]interface{}{"started_at": res.StartedAt})
	}

	lc := s.cfg.Learning

	pw, perr := s.PreWarm(ctx, lc.PreWarm.Days, lc.PreWarm.MinCount, lc.PreWarm.Limit)
	res.PreWarm = pw
	if perr != nil {
		phaseErrs = append(phaseErrs, "pre-warm: "+perr.Error())
	}

	imp, ierr := s.Improve(ctx, lc.Improve.MinNegative)
	res.Improve = imp
	if ierr != nil {
		phaseErrs = append(phaseErrs, "improve: "+ierr.Error())
	}

	cl, cerr := s.Cleanup(lc.Cleanup.MaxAgeDays, lc.Cleanup.MinHitCount)
	res.Cleanup = cl
	if cerr != nil {
		phaseErrs = append(phaseErrs, "cleanup: "+cerr.Error())
	}

	ext, eerr := s.ExtendQualityTTL()
	res.ExtendTTL = ext
	if eerr != nil {
		phaseErrs = append(phaseErrs, "extend-ttl: "+eerr.Error())
	}

	s.logger.Info("learning cycle finished",
		zap.Int("warmed", pw.Warmed),
		zap.Int("improved", imp.Improved),
		zap.Int64("deleted", cl.Deleted),
		zap.Int("extended", ext.Extended),
		zap.Int("errors", len(phaseErrs)))
	return res
}

// PreWarm generates answers for popular queries not yet cached (or cached but
// expired). Generation runs on the bounded worker pool; one failed candidate
// never stops the others.
func (s *Service) PreWarm(ctx context.Context, days, minCount, limit int) (PreWarmResult, error) {
	var res PreWarmResult

	popular, err := s.analytics.Popular(days, minCount, limit)
	if err != nil {
		return res, err
	}
	res.Candidates = len(popular)

	queries := make([]string, 0, len(popular))
	for _, p := range popular {
		queries = append(queries, p.Query)
	}

	var mu sync.Mutex
	s.eachWithWorkers(queries, func(query string) {
		fingerprint := cache.Fingerprint(query)
		entry, err := s.store.Peek(fingerprint)
		if err != nil {
			s.logger.Warn("pre-warm peek failed", zap.String("query", query), zap.Error(err))
			mu.Lock()
			res.Failed++
			mu.Unlock()
			return
		}
		if entry != nil && entry.TTLExpiresAt.After(time.Now()) {
			mu.Lock()
			res.Skipped++
			mu.Unlock()
			return
		}

		if err := s.regenerate(ctx, query, fingerprint); err != nil {
			s.logger.Warn("pre-warm generation failed", zap.String("query", query), zap.Error(err))
			mu.Lock()
			res.Failed++
			mu.Unlock()
			return
		}
		mu.Lock()
		res.Warmed++
		mu.Unlock()
	})
	return res, nil
}

// Improve regenerates answers whose feedback skews negative.
func (s *Service) Improve(ctx context.Context, minNegative int) (ImproveResult, error) {
	var res ImproveResult

	candidates, err := s.analytics.ImprovementCandidates(minNegative)
	if err != nil {
		return res, err
	}
	res.Candidates = len(candidates)

	queries := make([]string, 0, len(candidates))
	for _, c := range candidates {
		queries = append(queries, c.Query)
	}

	var mu sync.Mutex
	s.eachWithWorkers(queries, func(query string) {
		if err := s.regenerate(ctx, query, cache.Fingerprint(query)); err != nil {
			s.logger.Warn("improvement generation failed", zap.String("query", query), zap.Error(err))
			mu.Lock()
			res.Failed++
			mu.Unlock()
			return
		}
		mu.Lock()
		res.Improved++
		mu.Unlock()
	})
	return res, nil
}

// Cleanup removes entries that are both stale and rarely hit.
func (s *Service) Cleanup(maxAgeDays, minHitCount int) (CleanupResult, error) {
	deleted, cutoff, err := s.store.DeleteStale(maxAgeDays, minHitCount)
	res := CleanupResult{Deleted: deleted, Cutoff: cutoff}
	if err != nil {
		return res, err
	}
	if deleted > 0 {
		s.logger.Info("stale cache entries removed", zap.Int64("deleted", deleted), zap.Time("cutoff", cutoff))
	}
	if s.events != nil {
		s.events.Broadcast("cache_cleaned", res)
	}
	return res, nil
}

// ExtendQualityTTL pushes out the expiry of consistently well rated answers.
func (s *Service) ExtendQualityTTL() (ExtendResult, error) {
	var res ExtendResult

	queries, err := s.analytics.PositiveQueries(s.cfg.Cache.Quality.MinPositive)
	if err != nil {
		return res, err
	}

	extend := time.Duration(s.cfg.Cache.Quality.ExtendHours) * time.Hour
	for _, query := range queries {
		found, err := s.store.ExtendTTL(cache.Fingerprint(query), extend)
		if err != nil {
			return res, err
		}
		if found {
			res.Extended++
		} else {
			res.Missing++
		}
	}
	return res, nil
}

func (s *Service) regenerate(ctx context.Context, query, fingerprint string) error {
	answer, sources, _, err := s.gen.Generate(ctx, query)
	if err != nil {
		return err
	}
	ttl := time.Duration(s.cfg.Cache.TTLHours) * time.Hour
	return s.store.Put(fingerprint, query, answer, sources, ttl, false)
}

// eachWithWorkers fans queries out over the configured worker count and waits
// for all of them.
func (s *Service) eachWithWorkers(queries []string, fn func(query string)) {
	workers := s.cfg.Learning.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(queries) {
		workers = len(queries)
	}
	if workers == 0 {
		return
	}

	jobs := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for query := range jobs {
				s.runJob(query, fn)
			}
		}()
	}
	for _, q := range queries {
		jobs <- q
	}
	close(jobs)
	wg.Wait()
}

// runJob contains a single candidate. A panicking candidate must not take
// down its worker, the cycle, or the process.
func (s *Service) runJob(query string, fn func(query string)) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("learning worker panicked", zap.String("query", query), zap.Any("panic", r))
		}
	}()
	fn(query)
}
