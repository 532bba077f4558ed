package purge

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/RichardoC/pawtrack/internal/backend"
	"github.com/RichardoC/pawtrack/internal/models"
)

// MessageDeleter deletes one message by id.
type MessageDeleter interface {
	DeleteMessage(ctx context.Context, token, id string) error
}

// DeleteOutcome summarizes one fan-out.
type DeleteOutcome struct {
	// Attempted is the number of distinct ids a delete was issued for.
	Attempted int
	// Confirmed counts deletes that succeeded or found the message already gone.
	Confirmed int
	// Skipped counts records without an id.
	Skipped int
	// Failed holds the ids whose delete failed for any other reason, sorted.
	Failed []string
}

// Deleter fans deletes out over a bounded number of goroutines.
type Deleter struct {
	client      MessageDeleter
	concurrency int
	logger      *zap.Logger
	metrics     *Metrics
}

func NewDeleter(client MessageDeleter, concurrency int, logger *zap.Logger, metrics *Metrics) *Deleter {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Deleter{client: client, concurrency: concurrency, logger: logger, metrics: metrics}
}

// DeleteAll issues one delete per distinct message id and waits for every
// delete to settle. Individual failures never abort the batch.
func (d *Deleter) DeleteAll(ctx context.Context, token string, msgs []models.Message) DeleteOutcome {
	var (
		out  DeleteOutcome
		ids  = make([]string, 0, len(msgs))
		seen = make(map[string]struct{}, len(msgs))
	)
	for _, m := range msgs {
		if m.ID == "" {
			out.Skipped++
			continue
		}
		if _, ok := seen[m.ID]; ok {
			continue
		}
		seen[m.ID] = struct{}{}
		ids = append(ids, m.ID)
	}
	out.Attempted = len(ids)
	out.Failed = make([]string, 0)

	if len(ids) == 0 {
		return out
	}

	var (
		mu   sync.Mutex
		errs error
	)
	// Workers always return nil so one failure never cancels the rest.
	var grp errgroup.Group
	grp.SetLimit(d.concurrency)
	for _, id := range ids {
		grp.Go(func() error {
			err := d.client.DeleteMessage(ctx, token, id)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				out.Confirmed++
				d.metrics.deletes.WithLabelValues("deleted").Inc()
			case backend.IsNotFound(err):
				out.Confirmed++
				d.metrics.deletes.WithLabelValues("not_found").Inc()
			default:
				out.Failed = append(out.Failed, id)
				errs = multierr.Append(errs, err)
				d.metrics.deletes.WithLabelValues("failed").Inc()
			}
			return nil
		})
	}
	_ = grp.Wait()

	if errs != nil {
		sort.Strings(out.Failed)
		d.logger.Warn("some message deletes failed",
			zap.Int("attempted", out.Attempted),
			zap.Int("failed", len(out.Failed)),
			zap.Error(errs))
	}

	return out
}
