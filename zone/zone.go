// Package zone maintains the zone index and the zone geometry cache. Each
// administrative zone's polygon is fetched once from the feed, rounded to
// the engine precision, and kept in the blob tier for the aggregator to
// read back.
package zone

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/coastalwx/alert-engine/blob"
	"github.com/coastalwx/alert-engine/feed"
	"github.com/coastalwx/alert-engine/geometry"
	"github.com/coastalwx/alert-engine/queue"
	"github.com/coastalwx/alert-engine/store"
)

// ErrNotCached is returned by Geometry when the zone's polygon has not been
// cached yet. Zone enrichment may lag behind alert ingestion, so callers
// treat this as a skippable condition.
var ErrNotCached = errors.New("zone geometry not cached")

// Feed is the subset of the feed client used by this service.
type Feed interface {
	Zones(ctx context.Context) ([]feed.ZoneRef, error)
	Zone(ctx context.Context, zoneID string) ([]byte, error)
	ZoneURLPrefix() string
}

// RefPublisher delivers reference messages to a named queue.
type RefPublisher interface {
	Send(ctx context.Context, queueName string, ref queue.Ref) error
}

// Config carries the storage names of the zone pipeline.
type Config struct {
	Table       string
	QueueName   string
	CacheBucket string
}

// indexItem is the zone index row kept in the metadata store.
type indexItem struct {
	ID    string `dynamodbav:"id"`
	Name  string `dynamodbav:"name"`
	Type  string `dynamodbav:"type"`
	State string `dynamodbav:"state"`
}

// document is the cached zone shape: the Zone Geometry collaborator record.
type document struct {
	ID       string            `json:"id"`
	Geometry geometry.Geometry `json:"geometry"`
}

// Service implements the zone pipeline.
type Service struct {
	logger    logrus.FieldLogger
	feed      Feed
	store     store.Store
	blobs     blob.Storage
	publisher RefPublisher
	cfg       Config
}

func NewService(logger logrus.FieldLogger, f Feed, s store.Store, b blob.Storage, p RefPublisher, cfg Config) *Service {
	return &Service{logger: logger, feed: f, store: s, blobs: b, publisher: p, cfg: cfg}
}

// Backfill fetches the zone index from the feed, stores every zone and
// publishes one reference per zone so consumers cache the geometries.
func (s *Service) Backfill(ctx context.Context) (int, error) {
	refs, err := s.feed.Zones(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, ref := range refs {
		if ref.ID == "" {
			continue
		}
		item := indexItem{ID: ref.ID, Name: ref.Name, Type: ref.Type, State: ref.State}
		if err := s.store.Upsert(ctx, s.cfg.Table, item); err != nil {
			return count, err
		}
		if err := s.publisher.Send(ctx, s.cfg.QueueName, queue.Ref{ID: ref.ID}); err != nil {
			return count, err
		}
		s.logger.WithField("zoneID", ref.ID).Debug("Stored zone in the index")
		count++
	}
	s.logger.WithField("count", count).Info("Zone index backfilled")
	return count, nil
}

// CacheGeometry fetches one zone's GeoJSON from the feed, rounds its
// coordinates and stores the result in the cache bucket.
func (s *Service) CacheGeometry(ctx context.Context, zoneID string) error {
	body, err := s.feed.Zone(ctx, s.shortID(zoneID))
	if err != nil {
		return errors.Wrapf(err, "fetching zone %s", zoneID)
	}

	var doc struct {
		Geometry geometry.Geometry `json:"geometry"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return errors.Wrapf(err, "decoding zone %s", zoneID)
	}

	cached := document{
		ID:       zoneID,
		Geometry: doc.Geometry.Round(geometry.Precision),
	}
	payload, err := json.Marshal(cached)
	if err != nil {
		return errors.Wrapf(err, "encoding zone %s", zoneID)
	}
	if err := s.blobs.Put(ctx, s.cfg.CacheBucket, s.cacheKey(zoneID), payload); err != nil {
		return err
	}
	s.logger.WithField("zoneID", zoneID).Info("Zone geometry cached")
	return nil
}

// Geometry returns the cached polygon of a zone, or ErrNotCached.
func (s *Service) Geometry(ctx context.Context, zoneID string) (*geometry.Geometry, error) {
	body, err := s.blobs.Get(ctx, s.cfg.CacheBucket, s.cacheKey(zoneID))
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return nil, ErrNotCached
		}
		return nil, err
	}
	var doc document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, errors.Wrapf(err, "decoding cached zone %s", zoneID)
	}
	return &doc.Geometry, nil
}

// shortID strips the feed URL prefix that alerts use to reference zones.
func (s *Service) shortID(zoneID string) string {
	return strings.TrimPrefix(zoneID, s.feed.ZoneURLPrefix())
}

// cacheKey derives the cache object key for a zone id.
func (s *Service) cacheKey(zoneID string) string {
	return strings.ReplaceAll(s.shortID(zoneID), "/", "-") + ".json"
}
