package purge

import (
	"context"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/RichardoC/pawtrack/internal/models"
)

// DefaultTimeout bounds a purge when no timeout is configured.
const DefaultTimeout = 4 * time.Minute

// Backend is the upstream message API as seen by the purge.
type Backend interface {
	MessageLister
	MessageDeleter
}

// Recorder persists an audit entry for each purge run.
type Recorder interface {
	RecordPurge(ctx context.Context, run *models.PurgeRun) error
}

// Result is returned to the caller of a purge. DeletedCount is the number
// of ids a delete was attempted for; ConfirmedCount and FailedIDs say how
// those attempts ended. Ids listed more than once are deleted and counted
// once, so DeletedCount counts distinct ids.
type Result struct {
	Success        bool     `json:"success"`
	DeletedCount   int      `json:"deletedCount"`
	ConfirmedCount int      `json:"confirmedCount"`
	FailedCount    int      `json:"failedCount"`
	FailedIDs      []string `json:"failedIds"`
	SkippedCount   int      `json:"skippedCount"`
	Pages          int      `json:"pages"`
	Partial        bool     `json:"partial"`
}

type Options struct {
	Concurrency int
	MaxPages    int
	// Timeout bounds the whole purge once started.
	Timeout    time.Duration
	Recorder   Recorder
	Registerer prometheus.Registerer
	Logger     *zap.Logger
}

// Service runs conversation purges: collect every message id for a patient,
// then delete them all.
type Service struct {
	collector *Collector
	deleter   *Deleter
	recorder  Recorder
	timeout   time.Duration
	metrics   *Metrics
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(b Backend, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	metrics := NewMetrics(opts.Registerer)
	return &Service{
		collector: NewCollector(b, opts.MaxPages, logger, metrics),
		deleter:   NewDeleter(b, opts.Concurrency, logger, metrics),
		recorder:  opts.Recorder,
		timeout:   opts.Timeout,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// Purge deletes every message in a patient's conversation.
//
// The token is checked before the patient id, and neither failure touches
// the upstream. Once started the purge ignores cancellation of ctx and runs
// until it finishes or the service timeout expires. After collection
// succeeds Purge never returns an error; per-message failures are reported
// in the Result.
//
// Messages written after collection are not deleted. Callers that need an
// empty conversation should repeat the purge until DeletedCount is zero.
func (s *Service) Purge(ctx context.Context, token, patientID string) (*Result, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrUnauthenticated
	}
	if err := ValidatePatientID(patientID); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	started := s.now()
	logger := s.logger.With(zap.String("patientId", patientID))

	col, err := s.collector.Collect(ctx, token, patientID)
	if err != nil {
		logger.Error("purge failed during collection", zap.Error(err))
		s.metrics.runs.WithLabelValues("failed").Inc()
		s.record(ctx, &models.PurgeRun{
			PatientID: patientID,
			Status:    "failed",
			Error:     err.Error(),
			StartedAt: started,
		})
		return nil, err
	}

	out := s.deleter.DeleteAll(ctx, token, col.Messages)

	result := &Result{
		Success:        true,
		DeletedCount:   out.Attempted,
		ConfirmedCount: out.Confirmed,
		FailedCount:    len(out.Failed),
		FailedIDs:      out.Failed,
		SkippedCount:   out.Skipped,
		Pages:          col.Pages,
		Partial:        col.Partial,
	}

	outcome := "success"
	switch {
	case result.DeletedCount == 0:
		outcome = "empty"
	case result.FailedCount > 0 || result.Partial:
		outcome = "partial"
	}
	s.metrics.runs.WithLabelValues(outcome).Inc()
	s.metrics.duration.Observe(s.now().Sub(started).Seconds())

	logger.Info("conversation purged",
		zap.String("outcome", outcome),
		zap.Int("pages", result.Pages),
		zap.Int("attempted", result.DeletedCount),
		zap.Int("confirmed", result.ConfirmedCount),
		zap.Int("failed", result.FailedCount),
		zap.Int("skipped", result.SkippedCount),
		zap.Bool("partial", result.Partial))

	s.record(ctx, &models.PurgeRun{
		PatientID: patientID,
		Attempted: result.DeletedCount,
		Confirmed: result.ConfirmedCount,
		Failed:    result.FailedCount,
		Skipped:   result.SkippedCount,
		Pages:     result.Pages,
		Partial:   result.Partial,
		Status:    outcome,
		StartedAt: started,
	})

	return result, nil
}

// Collect exposes the collection step on its own, for read-only callers.
func (s *Service) Collect(ctx context.Context, token, patientID string) (*Collection, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrUnauthenticated
	}
	if err := ValidatePatientID(patientID); err != nil {
		return nil, err
	}
	return s.collector.Collect(ctx, token, patientID)
}

func (s *Service) record(ctx context.Context, run *models.PurgeRun) {
	if s.recorder == nil {
		return
	}
	run.FinishedAt = s.now()
	// The purge deadline may already have passed; the audit entry is still wanted.
	if err := s.recorder.RecordPurge(context.WithoutCancel(ctx), run); err != nil {
		s.logger.Warn("failed to record purge run",
			zap.String("patientId", run.PatientID),
			zap.Error(err))
	}
}
