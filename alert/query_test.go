package alert

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type queryFixture struct {
	queries *QueryEngine
	store   *fakeStore
	blobs   *fakeBlob
	cfg     Config
}

func newQueryFixture(t *testing.T) *queryFixture {
	t.Helper()
	log := &opLog{}
	cfg := testConfig()
	s := newFakeStore(log)
	b := newFakeBlob(log)
	return &queryFixture{queries: NewQueryEngine(testLogger(), s, b, cfg), store: s, blobs: b, cfg: cfg}
}

// seed stores the record in the metadata tier and, unless told otherwise, a
// matching document in the blob tier.
func (f *queryFixture) seed(t *testing.T, r *Record, withBlob bool) {
	t.Helper()
	require.NoError(t, f.store.Upsert(context.Background(), f.cfg.Table, r))
	if withBlob {
		body, err := json.Marshal(r)
		require.NoError(t, err)
		require.NoError(t, f.blobs.Put(context.Background(), f.cfg.Bucket, BlobKey(r.ID), body))
	}
}

// bundle decodes the export artifact behind a returned handle and lists the
// bundled alert ids in order.
func (f *queryFixture) bundle(t *testing.T, url string) []string {
	t.Helper()
	require.True(t, strings.HasPrefix(url, "https://signed.example/"+f.cfg.ExportBucket+"/"))

	key := strings.TrimPrefix(url, "https://signed.example/"+f.cfg.ExportBucket+"/")
	body, err := f.blobs.Get(context.Background(), f.cfg.ExportBucket, key)
	require.NoError(t, err)

	var documents []json.RawMessage
	require.NoError(t, json.Unmarshal(body, &documents))
	ids := make([]string, 0, len(documents))
	for _, doc := range documents {
		var r Record
		require.NoError(t, json.Unmarshal(doc, &r))
		ids = append(ids, r.ID)
	}
	return ids
}

func TestQueryByPoints(t *testing.T) {
	f := newQueryFixture(t)
	f.seed(t, testRecord("caribbean", 10, 25, -55, -40), true)
	f.seed(t, testRecord("plains", 35, 40, -102, -96), true)

	url, err := f.queries.QueryByPoints(context.Background(), []Point{{Lat: 18, Lon: -52}})
	require.NoError(t, err)
	require.Equal(t, []string{"caribbean"}, f.bundle(t, url))
}

func TestQueryByPointsNoMatch(t *testing.T) {
	f := newQueryFixture(t)
	f.seed(t, testRecord("caribbean", 10, 25, -55, -40), true)

	url, err := f.queries.QueryByPoints(context.Background(), []Point{{Lat: 0, Lon: 0}})
	require.NoError(t, err)
	require.Empty(t, f.bundle(t, url))
}

func TestQueryByPointsUnionDeduplicates(t *testing.T) {
	f := newQueryFixture(t)
	f.seed(t, testRecord("caribbean", 10, 25, -55, -40), true)
	f.seed(t, testRecord("plains", 35, 40, -102, -96), true)

	// Both points hit the same record; a third hits the other one.
	points := []Point{{Lat: 18, Lon: -52}, {Lat: 11, Lon: -41}, {Lat: 36, Lon: -100}}
	url, err := f.queries.QueryByPoints(context.Background(), points)
	require.NoError(t, err)
	require.Equal(t, []string{"caribbean", "plains"}, f.bundle(t, url))
}

func TestQueryByPointsDropsMissingBlobs(t *testing.T) {
	f := newQueryFixture(t)
	f.seed(t, testRecord("caribbean", 10, 25, -55, -40), true)
	f.seed(t, testRecord("orphaned", 10, 25, -55, -40), false)

	url, err := f.queries.QueryByPoints(context.Background(), []Point{{Lat: 18, Lon: -52}})
	require.NoError(t, err)
	require.Equal(t, []string{"caribbean"}, f.bundle(t, url))
}

func TestExportAll(t *testing.T) {
	f := newQueryFixture(t)
	f.seed(t, testRecord("b", 10, 25, -55, -40), true)
	f.seed(t, testRecord("a", 35, 40, -102, -96), true)

	url, err := f.queries.ExportAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, f.bundle(t, url))
}

func TestGetAllOmitsGeometries(t *testing.T) {
	f := newQueryFixture(t)
	r := testRecord("a", 10, 25, -55, -40)
	r.Geometry = append(r.Geometry, *mustGeometry(t, `{"type": "Point", "coordinates": [-50, 20]}`))
	f.seed(t, r, true)

	records, err := f.queries.GetAll(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Nil(t, records[0].Geometry)
}
