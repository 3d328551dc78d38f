package service

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/admissions-api/internal/dto"
	"github.com/noah-isme/admissions-api/internal/models"
	appErrors "github.com/noah-isme/admissions-api/pkg/errors"
	"github.com/noah-isme/admissions-api/pkg/events"
)

type expiredApplicationSweeper interface {
	SweepExpired(ctx context.Context, now time.Time, reason string) ([]models.Application, error)
}

type sweepRecorder interface {
	ObserveSweep(rejected int, duration time.Duration)
}

// SweepConfig controls the background sweep loop.
type SweepConfig struct {
	Interval time.Duration
	Timeout  time.Duration
}

// SweepService rejects applications left unfilled after their process closed.
// Each run is a single conditional update, so overlapping runs from several
// replicas or an external cron are harmless.
type SweepService struct {
	repo      expiredApplicationSweeper
	publisher events.Publisher
	audit     auditLogger
	metrics   sweepRecorder
	logger    *zap.Logger
	cfg       SweepConfig
	now       func() time.Time
}

// NewSweepService constructs the service.
func NewSweepService(repo expiredApplicationSweeper, publisher events.Publisher, audit auditLogger, metrics sweepRecorder, logger *zap.Logger, cfg SweepConfig) *SweepService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SweepService{repo: repo, publisher: publisher, audit: audit, metrics: metrics, logger: logger, cfg: cfg, now: time.Now}
}

// Sweep runs one pass and returns the number of applications rejected.
func (s *SweepService) Sweep(ctx context.Context) (int, error) {
	start := time.Now()
	now := s.now().UTC()
	swept, err := s.repo.SweepExpired(ctx, now, models.MissedDeadlineReason)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sweep expired applications")
	}
	if s.metrics != nil {
		s.metrics.ObserveSweep(len(swept), time.Since(start))
	}
	if len(swept) == 0 {
		return 0, nil
	}

	s.logger.Info("expired applications rejected", zap.Int("count", len(swept)))
	for _, app := range swept {
		publishEvent(ctx, s.publisher, s.logger, events.Event{
			Type:          events.TypeApplicationReviewed,
			ApplicationID: app.ID,
			ProcessID:     app.ProcessID,
			Attributes: map[string]string{
				"status": string(models.ApplicationRejected),
				"reason": models.MissedDeadlineReason,
				"userId": app.UserID,
			},
			OccurredAt: now,
		})
	}
	publishEvent(ctx, s.publisher, s.logger, events.Event{
		Type:       events.TypeApplicationsSwept,
		Attributes: map[string]string{"count": strconv.Itoa(len(swept))},
		OccurredAt: now,
	})
	return len(swept), nil
}

// SweepNow runs a sweep on behalf of an administrator.
func (s *SweepService) SweepNow(ctx context.Context, actor *models.JWTClaims) (*dto.SweepResult, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	ranAt := s.now().UTC()
	count, err := s.Sweep(ctx)
	if err != nil {
		return nil, err
	}
	emitAudit(ctx, s.audit, s.logger, "sweep-service", auditEntry(actor, models.AuditActionApplicationSweep, "application", "*",
		map[string]int{"rejected": count}))
	return &dto.SweepResult{Rejected: count, RanAt: ranAt}, nil
}

// StartScheduler runs the sweep on a ticker until ctx is cancelled.
func (s *SweepService) StartScheduler(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	go func() {
		defer ticker.Stop()
		s.runOnce(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runOnce(ctx)
			}
		}
	}()
}

func (s *SweepService) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	if _, err := s.Sweep(runCtx); err != nil {
		s.logger.Sugar().Warnw("deadline sweep failed", "error", err)
	}
}
