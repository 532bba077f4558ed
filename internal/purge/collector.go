package purge

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/RichardoC/pawtrack/internal/backend"
	"github.com/RichardoC/pawtrack/internal/models"
)

// PageSize is the number of messages requested per listing call.
const PageSize = 100

// MessageLister fetches one page of a patient's conversation.
type MessageLister interface {
	ListMessages(ctx context.Context, token, patientID string, pageNumber, pageSize int) (backend.Page, error)
}

// Collection is everything a Collector gathered for one patient.
type Collection struct {
	Messages []models.Message
	// Pages counts successfully fetched pages.
	Pages int
	// Partial is set when pagination stopped early on a failed later page
	// or on the page limit.
	Partial bool
	// NotFound is set when the first page came back 404.
	NotFound bool
}

// Collector drains the paginated listing endpoint into one slice. Pages are
// fetched strictly in order; nothing is cached between calls.
type Collector struct {
	lister   MessageLister
	maxPages int
	logger   *zap.Logger
	metrics  *Metrics
}

func NewCollector(lister MessageLister, maxPages int, logger *zap.Logger, metrics *Metrics) *Collector {
	if maxPages < 1 {
		maxPages = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Collector{lister: lister, maxPages: maxPages, logger: logger, metrics: metrics}
}

// Collect fetches every page for patientID.
//
// A 404 on the first page yields an empty collection. Any other first-page
// failure is returned. A failure on a later page ends pagination and keeps
// what was already collected.
func (c *Collector) Collect(ctx context.Context, token, patientID string) (*Collection, error) {
	col := &Collection{Messages: make([]models.Message, 0)}
	logger := c.logger.With(zap.String("patientId", patientID))

	for pageNumber := 1; ; pageNumber++ {
		if pageNumber > c.maxPages {
			logger.Warn("page limit reached, stopping collection",
				zap.Int("maxPages", c.maxPages),
				zap.Int("collected", len(col.Messages)))
			col.Partial = true
			break
		}

		page, err := c.lister.ListMessages(ctx, token, patientID, pageNumber, PageSize)
		if err != nil {
			if pageNumber == 1 {
				if backend.IsNotFound(err) {
					logger.Debug("conversation not found, nothing to purge")
					col.NotFound = true
					return col, nil
				}
				return nil, fmt.Errorf("collect messages: %w", err)
			}
			logger.Warn("page fetch failed, continuing with partial collection",
				zap.Int("page", pageNumber),
				zap.Int("collected", len(col.Messages)),
				zap.Error(err))
			col.Partial = true
			break
		}

		col.Pages++
		c.metrics.pages.Inc()
		col.Messages = append(col.Messages, page.Messages...)

		if !page.HasMore(PageSize) {
			break
		}
	}

	return col, nil
}
