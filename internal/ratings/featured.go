package ratings

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Clark-Hu/smart-ratings/internal/domain"
	"github.com/Clark-Hu/smart-ratings/internal/logging"
	"github.com/Clark-Hu/smart-ratings/internal/monitoring"
)

// Thresholds gate which entities can be featured.
type Thresholds struct {
	MinRealCount int64
	MinAverage   decimal.Decimal
	MaxSize      int
}

// FeaturedCandidate is one entity's resolved primary-category rating.
type FeaturedCandidate struct {
	EntityID  string
	RealCount int64
	Resolved  domain.ResolvedRating
}

// FeaturedEntry is one ranked entity.
type FeaturedEntry struct {
	EntityID string
	Average  decimal.Decimal
	Count    int64
}

// SelectFeatured filters candidates by thresholds and ranks them by average
// descending, then count descending, then entity id ascending. The result
// holds at most MaxSize entries.
func SelectFeatured(candidates []FeaturedCandidate, th Thresholds) []FeaturedEntry {
	if th.MaxSize <= 0 {
		return []FeaturedEntry{}
	}
	eligible := make([]FeaturedEntry, 0, len(candidates))
	for _, c := range candidates {
		if c.RealCount < th.MinRealCount {
			continue
		}
		if !c.Resolved.Average.Valid || c.Resolved.Average.Decimal.LessThan(th.MinAverage) {
			continue
		}
		eligible = append(eligible, FeaturedEntry{
			EntityID: c.EntityID,
			Average:  c.Resolved.Average.Decimal,
			Count:    c.Resolved.Count,
		})
	}

	sort.Slice(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if cmp := a.Average.Cmp(b.Average); cmp != 0 {
			return cmp > 0
		}
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.EntityID < b.EntityID
	})

	if len(eligible) > th.MaxSize {
		eligible = eligible[:th.MaxSize]
	}
	return eligible
}

// CandidateSource supplies the data a featured pass ranks.
type CandidateSource interface {
	FeaturedCandidates(ctx context.Context) ([]FeaturedCandidate, error)
}

// FeaturedSnapshot is the result of one completed pass.
type FeaturedSnapshot struct {
	Entries     []FeaturedEntry
	GeneratedAt time.Time
}

// Head returns a copy of the first limit entries. A non-positive limit
// returns every entry.
func (fs *FeaturedSnapshot) Head(limit int) []FeaturedEntry {
	if limit <= 0 || limit > len(fs.Entries) {
		limit = len(fs.Entries)
	}
	out := make([]FeaturedEntry, limit)
	copy(out, fs.Entries[:limit])
	return out
}

// SchedulerConfig controls the featured scheduler.
type SchedulerConfig struct {
	Interval   time.Duration
	Thresholds Thresholds
	// Precision rounds snapshot averages for display.
	Precision int32
}

// FeaturedScheduler recomputes the featured list on a fixed cadence and on
// demand. Concurrent refreshes are allowed; the last to finish replaces the
// snapshot. A failed pass keeps the previous snapshot.
type FeaturedScheduler struct {
	source   CandidateSource
	cfg      SchedulerConfig
	snapshot atomic.Pointer[FeaturedSnapshot]
	logger   zerolog.Logger

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	stopped bool
	lastRun time.Time
	lastErr error
}

// NewFeaturedScheduler creates a scheduler with an empty snapshot.
func NewFeaturedScheduler(source CandidateSource, cfg SchedulerConfig) *FeaturedScheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	s := &FeaturedScheduler{
		source: source,
		cfg:    cfg,
		stopCh: make(chan struct{}),
		logger: logging.NewLogger("featured"),
	}
	s.snapshot.Store(&FeaturedSnapshot{Entries: []FeaturedEntry{}})
	return s
}

// Start runs a pass immediately and then on every interval until ctx is
// done or Stop is called.
func (s *FeaturedScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("featured scheduler already running")
	}
	if s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("featured scheduler stopped")
	}
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(ctx)

	s.logger.Info().Dur("interval", s.cfg.Interval).Msg("featured scheduler started")
	return nil
}

// Stop halts the background loop and waits for it to exit.
func (s *FeaturedScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.stopped = true
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info().Msg("featured scheduler stopped")
}

// IsRunning returns whether the background loop is active.
func (s *FeaturedScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// LastRun returns when the last pass finished and its error, if any.
func (s *FeaturedScheduler) LastRun() (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun, s.lastErr
}

func (s *FeaturedScheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.refreshAndLog(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.refreshAndLog(ctx)
		}
	}
}

func (s *FeaturedScheduler) refreshAndLog(ctx context.Context) {
	if _, err := s.Refresh(ctx); err != nil {
		s.logger.Error().Err(err).Msg("featured refresh failed, keeping previous snapshot")
	}
}

// Refresh runs one pass now and returns the new snapshot.
func (s *FeaturedScheduler) Refresh(ctx context.Context) (*FeaturedSnapshot, error) {
	start := time.Now()
	candidates, err := s.source.FeaturedCandidates(ctx)
	if err != nil {
		monitoring.RecordFeaturedRefresh("error", time.Since(start), 0)
		s.recordRun(err)
		return nil, fmt.Errorf("load featured candidates: %w", err)
	}

	entries := SelectFeatured(candidates, s.cfg.Thresholds)
	for i := range entries {
		entries[i].Average = entries[i].Average.Round(s.cfg.Precision)
	}
	snap := &FeaturedSnapshot{Entries: entries, GeneratedAt: time.Now().UTC()}
	s.snapshot.Store(snap)

	monitoring.RecordFeaturedRefresh("ok", time.Since(start), len(entries))
	s.recordRun(nil)
	s.logger.Debug().Int("candidates", len(candidates)).Int("featured", len(entries)).Msg("featured refreshed")
	return snap, nil
}

func (s *FeaturedScheduler) recordRun(err error) {
	s.mu.Lock()
	s.lastRun = time.Now()
	s.lastErr = err
	s.mu.Unlock()
}

// Snapshot returns the current snapshot. It is never nil.
func (s *FeaturedScheduler) Snapshot() *FeaturedSnapshot {
	return s.snapshot.Load()
}
