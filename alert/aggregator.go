package alert

import (
	"context"
	"encoding/json"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/coastalwx/alert-engine/blob"
	"github.com/coastalwx/alert-engine/geometry"
	"github.com/coastalwx/alert-engine/store"
	"github.com/coastalwx/alert-engine/zone"
)

// ZoneLookup is the read accessor into the zone geometry cache.
type ZoneLookup interface {
	Geometry(ctx context.Context, zoneID string) (*geometry.Geometry, error)
}

// Aggregator merges a raw alert's own geometry with the geometries of its
// affected zones into one enriched record with a derived bounding box, and
// dual-writes the result: full record to the blob tier first, then the
// metadata row, so the metadata tier never points at a missing blob.
type Aggregator struct {
	logger    logrus.FieldLogger
	store     store.Store
	blobs     blob.Storage
	zones     ZoneLookup
	validator *Validator
	clock     clockwork.Clock
	cfg       Config
	enriched  prometheus.Counter
}

func NewAggregator(logger logrus.FieldLogger, s store.Store, b blob.Storage, zones ZoneLookup, v *Validator, clock clockwork.Clock, cfg Config, enriched prometheus.Counter) *Aggregator {
	return &Aggregator{
		logger:    logger,
		store:     s,
		blobs:     b,
		zones:     zones,
		validator: v,
		clock:     clock,
		cfg:       cfg,
		enriched:  enriched,
	}
}

// EnrichStored loads a previously ingested raw alert by id and enriches it.
// A missing raw alert short-circuits with a log: the reference may be stale.
func (a *Aggregator) EnrichStored(ctx context.Context, alertID string) error {
	var item rawItem
	err := a.store.GetByID(ctx, a.cfg.RawTable, alertID, &item)
	if errors.Is(err, store.ErrNotFound) {
		a.logger.WithField("alertID", alertID).Warning("Raw alert not found")
		return nil
	}
	if err != nil {
		return err
	}

	if err := a.validator.Validate(item.Document); err != nil {
		a.logger.WithField("alertID", alertID).Warning("Raw alert rejected: ", err)
		return nil
	}

	var raw Raw
	if err := json.Unmarshal(item.Document, &raw); err != nil {
		return errors.Wrapf(err, "decoding raw alert %s", alertID)
	}
	_, err = a.Enrich(ctx, raw)
	return err
}

// Enrich builds the enriched record for one raw alert and persists it to
// both tiers. Re-enriching the same id is an idempotent full replace.
//
// Zones without a cached geometry are skipped: zone enrichment may lag
// behind alert ingestion and the next re-enrichment converges. An alert
// whose geometries yield no extent is still persisted, carrying the
// degenerate zero bounding box.
func (a *Aggregator) Enrich(ctx context.Context, raw Raw) (*Record, error) {
	id := raw.AlertID()
	if id == "" {
		a.logger.Warning("Raw alert carries no id, skipping")
		return nil, nil
	}
	logger := a.logger.WithField("alertID", id)

	geometries := make([]geometry.Geometry, 0, 1+len(raw.Properties.AffectedZones))
	if raw.Geometry != nil {
		geometries = append(geometries, raw.Geometry.Round(geometry.Precision))
	}
	for _, zoneID := range raw.Properties.AffectedZones {
		g, err := a.zones.Geometry(ctx, zoneID)
		if err != nil {
			if errors.Is(err, zone.ErrNotCached) {
				logger.WithField("zoneID", zoneID).Debug("Zone geometry not cached yet, skipping")
			} else {
				logger.WithField("zoneID", zoneID).Warning("Zone geometry lookup failed, skipping: ", err)
			}
			continue
		}
		geometries = append(geometries, g.Round(geometry.Precision))
	}

	var extent geometry.Extent
	for _, g := range geometries {
		extent = extent.Merge(g.Extent())
	}

	record := &Record{
		ID:       id,
		Start:    ParseTimestamp(raw.Properties.Effective),
		End:      ParseTimestamp(raw.Properties.Ends),
		Updated:  NewTimestamp(a.clock.Now().UTC()),
		Severity: raw.Properties.Severity,
		Event:    raw.Properties.Urgency,
		Title:    raw.Properties.Headline,
		Message:  raw.Properties.Description,
		Link:     raw.Properties.Link,
		Geometry: geometries,
	}
	record.SetExtent(extent)

	payload, err := json.Marshal(record)
	if err != nil {
		return nil, errors.Wrapf(err, "encoding record %s", id)
	}

	// Blob first: a crash between the writes must never leave a metadata
	// row pointing at a missing blob.
	if err := a.blobs.Put(ctx, a.cfg.Bucket, BlobKey(id), payload); err != nil {
		return nil, err
	}
	if err := a.store.Upsert(ctx, a.cfg.Table, record); err != nil {
		return nil, err
	}

	a.enriched.Inc()
	logger.Info("Stored enriched alert in both tiers")
	return record, nil
}
