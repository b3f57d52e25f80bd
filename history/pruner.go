package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultPruneSchedule runs retention once an hour.
const DefaultPruneSchedule = "@hourly"

var scheduleParser = cron.NewParser(
	cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// ParseSchedule validates a five-field cron expression or an @descriptor.
func ParseSchedule(expr string) (cron.Schedule, error) {
	clean := strings.TrimSpace(expr)
	if clean == "" {
		return nil, errors.New("cron expression is required")
	}
	upper := strings.ToUpper(clean)
	if strings.HasPrefix(upper, "CRON_TZ=") || strings.HasPrefix(upper, "TZ=") {
		return nil, errors.New("timezone prefixes are not supported; schedules run in UTC")
	}
	schedule, err := scheduleParser.Parse(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	return schedule, nil
}

// Pruner is the delete side of a history store.
type Pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionConfig controls background pruning.
type RetentionConfig struct {
	Store     Pruner
	Retention time.Duration
	Schedule  string
	Now       func() time.Time
	Logger    *slog.Logger
}

// RetentionScheduler deletes records older than Retention on a cron schedule.
type RetentionScheduler struct {
	store     Pruner
	retention time.Duration
	schedule  cron.Schedule
	now       func() time.Time
	logger    *slog.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

// NewRetentionScheduler validates cfg and creates a scheduler.
func NewRetentionScheduler(cfg RetentionConfig) (*RetentionScheduler, error) {
	if cfg.Store == nil {
		return nil, errors.New("history: retention store is nil")
	}
	if cfg.Retention <= 0 {
		return nil, errors.New("history: retention must be positive")
	}
	expr := cfg.Schedule
	if strings.TrimSpace(expr) == "" {
		expr = DefaultPruneSchedule
	}
	schedule, err := ParseSchedule(expr)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &RetentionScheduler{
		store:     cfg.Store,
		retention: cfg.Retention,
		schedule:  schedule,
		now:       cfg.Now,
		logger:    cfg.Logger,
	}, nil
}

// RunOnce prunes records older than the retention window.
func (s *RetentionScheduler) RunOnce(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.retention)
	n, err := s.store.Prune(ctx, cutoff)
	if err != nil {
		s.logger.Warn("probe history prune failed", "error", err)
		return 0, err
	}
	if n > 0 {
		s.logger.Info("probe history pruned", "deleted", n, "cutoff", cutoff.UTC().Format(time.RFC3339))
	}
	return n, nil
}

// Start prunes once immediately, then on every schedule tick.
func (s *RetentionScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}

	_, _ = s.RunOnce(ctx)

	c := cron.New(cron.WithLocation(time.UTC))
	c.Schedule(s.schedule, cron.FuncJob(func() {
		_, _ = s.RunOnce(context.Background())
	}))
	c.Start()
	s.cron = c
	return nil
}

// Stop halts scheduling and waits for a running prune to finish or ctx to end.
func (s *RetentionScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}

	done := c.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
