package alert

import (
	"context"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/coastalwx/alert-engine/blob"
	"github.com/coastalwx/alert-engine/store"
)

// Sweeper removes alerts whose validity window has ended from both storage
// tiers. Deletions are best effort and independently idempotent; there is
// no compensating transaction, a retry of the whole sweep converges.
type Sweeper struct {
	logger  logrus.FieldLogger
	store   store.Store
	blobs   blob.Storage
	queries *QueryEngine
	clock   clockwork.Clock
	cfg     Config
	removed prometheus.Counter
}

func NewSweeper(logger logrus.FieldLogger, s store.Store, b blob.Storage, q *QueryEngine, clock clockwork.Clock, cfg Config, removed prometheus.Counter) *Sweeper {
	return &Sweeper{logger: logger, store: s, blobs: b, queries: q, clock: clock, cfg: cfg, removed: removed}
}

// SweepExpired removes every record whose end time lies strictly before the
// current time and returns the count removed. Individual deletion failures
// are logged, not retried within the pass.
func (s *Sweeper) SweepExpired(ctx context.Context) (int, error) {
	now := s.clock.Now().UTC()

	records, err := s.queries.GetAll(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for i := range records {
		if !records[i].Expired(now) {
			continue
		}
		s.Delete(ctx, records[i].ID)
		count++
	}
	if count > 0 {
		s.logger.WithField("count", count).Info("Expired alerts removed")
	}
	return count, nil
}

// Delete removes one alert from the metadata tier, the raw alert table and
// the blob tier. Absence in any tier counts as success; partial failures
// are logged and left to the next pass.
func (s *Sweeper) Delete(ctx context.Context, alertID string) {
	logger := s.logger.WithField("alertID", alertID)
	if err := s.store.DeleteByID(ctx, s.cfg.Table, alertID); err != nil {
		logger.Error("Metadata row could not be deleted: ", err)
	}
	if err := s.store.DeleteByID(ctx, s.cfg.RawTable, alertID); err != nil {
		logger.Error("Raw alert row could not be deleted: ", err)
	}
	if err := s.blobs.Delete(ctx, s.cfg.Bucket, BlobKey(alertID)); err != nil {
		logger.Error("Blob could not be deleted: ", err)
	}
	s.removed.Inc()
	logger.Info("Alert deleted from both tiers")
}
