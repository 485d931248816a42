package alert

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/coastalwx/alert-engine/blob"
	"github.com/coastalwx/alert-engine/store"
)

// blobFetchWorkers bounds the fan-out of per-id blob fetches. Each fetch is
// independent and read-only, so they run concurrently.
const blobFetchWorkers = 8

// Point is a query coordinate.
type Point struct {
	Lat float64
	Lon float64
}

// QueryEngine answers point containment queries against the metadata tier
// and bundles full records into exportable artifacts.
type QueryEngine struct {
	logger logrus.FieldLogger
	store  store.Store
	blobs  blob.Storage
	cfg    Config
}

func NewQueryEngine(logger logrus.FieldLogger, s store.Store, b blob.Storage, cfg Config) *QueryEngine {
	return &QueryEngine{logger: logger, store: s, blobs: b, cfg: cfg}
}

// GetAll returns the metadata tier records without geometries. This is the
// fast path used by the sweeper and by point queries; no blob access.
func (q *QueryEngine) GetAll(ctx context.Context) ([]Record, error) {
	var records []Record
	if err := q.store.GetAll(ctx, q.cfg.Table, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// QueryByPoints returns a retrieval handle for the bundle of every enriched
// alert whose bounding box contains at least one of the points. Matches are
// deduplicated by id across points. Ids whose blob is missing are dropped
// from the bundle rather than failing the query.
func (q *QueryEngine) QueryByPoints(ctx context.Context, points []Point) (string, error) {
	records, err := q.GetAll(ctx)
	if err != nil {
		return "", err
	}

	matched := make(map[string]struct{})
	for _, p := range points {
		for i := range records {
			if records[i].Contains(p.Lat, p.Lon) {
				matched[records[i].ID] = struct{}{}
			}
		}
	}

	ids := make([]string, 0, len(matched))
	for id := range matched {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return q.export(ctx, ids)
}

// ExportAll bundles every enriched alert, geometries included, and returns
// a retrieval handle for the bundle.
func (q *QueryEngine) ExportAll(ctx context.Context) (string, error) {
	records, err := q.GetAll(ctx)
	if err != nil {
		return "", err
	}
	ids := make([]string, 0, len(records))
	for i := range records {
		ids = append(ids, records[i].ID)
	}
	sort.Strings(ids)

	return q.export(ctx, ids)
}

// export fetches the full record of every id from the blob tier, bundles
// them into one JSON array and stores it under a fresh opaque key in the
// export area. The returned handle expires after the configured TTL.
func (q *QueryEngine) export(ctx context.Context, ids []string) (string, error) {
	documents := q.fetchAll(ctx, ids)

	bundle, err := json.Marshal(documents)
	if err != nil {
		return "", errors.Wrap(err, "encoding export bundle")
	}

	key := uuid.New().String() + ".json"
	url, err := q.blobs.PutWithURL(ctx, q.cfg.ExportBucket, key, bundle, q.cfg.ExportTTL)
	if err != nil {
		return "", err
	}
	q.logger.WithFields(logrus.Fields{"key": key, "alerts": len(documents)}).Info("Export bundle stored")
	return url, nil
}

// fetchAll retrieves full record documents concurrently, preserving the
// order of ids. Missing blobs are logged and dropped: the metadata tier may
// run ahead of the blob tier.
func (q *QueryEngine) fetchAll(ctx context.Context, ids []string) []json.RawMessage {
	type slot struct {
		index int
		id    string
	}

	var (
		wg      sync.WaitGroup
		results = make([]json.RawMessage, len(ids))
		slots   = make(chan slot)
	)
	for w := 0; w < blobFetchWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for s := range slots {
				body, err := q.blobs.Get(ctx, q.cfg.Bucket, BlobKey(s.id))
				if err != nil {
					if errors.Is(err, blob.ErrNotFound) {
						q.logger.WithField("alertID", s.id).Warning("Blob missing for metadata row, dropping from result")
					} else {
						q.logger.WithField("alertID", s.id).Warning("Blob fetch failed, dropping from result: ", err)
					}
					continue
				}
				results[s.index] = body
			}
		}()
	}
	for i, id := range ids {
		slots <- slot{index: i, id: id}
	}
	close(slots)
	wg.Wait()

	documents := make([]json.RawMessage, 0, len(ids))
	for _, body := range results {
		if body != nil {
			documents = append(documents, body)
		}
	}
	return documents
}
