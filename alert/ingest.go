package alert

import (
	"context"
	"encoding/json"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/coastalwx/alert-engine/queue"
	"github.com/coastalwx/alert-engine/store"
)

// AlertFeed is the subset of the feed client used by the ingestor.
type AlertFeed interface {
	ActiveAlerts(ctx context.Context) ([]json.RawMessage, error)
}

// RefPublisher delivers reference messages to a named queue.
type RefPublisher interface {
	Send(ctx context.Context, queueName string, ref queue.Ref) error
}

// Ingestor polls the feed for active alerts, stores each raw alert and
// publishes one reference message per alert for asynchronous enrichment.
type Ingestor struct {
	logger    logrus.FieldLogger
	feed      AlertFeed
	store     store.Store
	publisher RefPublisher
	cfg       Config
	ingested  prometheus.Counter
}

func NewIngestor(logger logrus.FieldLogger, f AlertFeed, s store.Store, p RefPublisher, cfg Config, ingested prometheus.Counter) *Ingestor {
	return &Ingestor{logger: logger, feed: f, store: s, publisher: p, cfg: cfg, ingested: ingested}
}

// PollActive performs one poll pass and returns the number of alerts
// ingested. Features without an id are skipped with a log.
func (i *Ingestor) PollActive(ctx context.Context) (int, error) {
	features, err := i.feed.ActiveAlerts(ctx)
	if err != nil {
		return 0, err
	}
	i.logger.WithField("count", len(features)).Info("Fetched active alerts from the feed")

	count := 0
	for _, feature := range features {
		var raw Raw
		if err := json.Unmarshal(feature, &raw); err != nil {
			i.logger.Warning("Skipping undecodable alert feature: ", err)
			continue
		}
		id := raw.AlertID()
		if id == "" {
			i.logger.Warning("Skipping alert feature without id")
			continue
		}
		if err := i.store.Upsert(ctx, i.cfg.RawTable, newRawItem(id, feature)); err != nil {
			return count, err
		}
		if err := i.publisher.Send(ctx, i.cfg.QueueName, queue.Ref{ID: id}); err != nil {
			return count, err
		}
		i.ingested.Inc()
		count++
	}
	i.logger.WithField("count", count).Info("Queued alerts for enrichment")
	return count, nil
}
