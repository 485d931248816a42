package alert

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/coastalwx/alert-engine/blob"
	"github.com/coastalwx/alert-engine/geometry"
	"github.com/coastalwx/alert-engine/queue"
	"github.com/coastalwx/alert-engine/store"
	"github.com/coastalwx/alert-engine/zone"
)

func testConfig() Config {
	return Config{
		RawTable:     "raw_alerts",
		Table:        "weather_alerts",
		Bucket:       "weather-alerts",
		ExportBucket: "exports",
		QueueName:    "alerts",
		ExportTTL:    time.Hour,
	}
}

func testCounter() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{Name: "test_counter"})
}

func testLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

// opLog records cross-fake operation ordering.
type opLog struct {
	mu  sync.Mutex
	ops []string
}

func (l *opLog) add(op string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ops = append(l.ops, op)
}

// fakeStore is an in-memory metadata tier. Items round-trip through
// dynamodbattribute so the dynamodbav tags behave as in production.
type fakeStore struct {
	mu     sync.Mutex
	tables map[string]map[string]map[string]*dynamodb.AttributeValue
	log    *opLog
}

var _ store.Store = (*fakeStore)(nil)

func newFakeStore(log *opLog) *fakeStore {
	return &fakeStore{
		tables: make(map[string]map[string]map[string]*dynamodb.AttributeValue),
		log:    log,
	}
}

func (s *fakeStore) Upsert(ctx context.Context, table string, item interface{}) error {
	av, err := dynamodbattribute.MarshalMap(item)
	if err != nil {
		return err
	}
	id, ok := av["id"]
	if !ok || id.S == nil {
		return errors.New("item has no id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tables[table] == nil {
		s.tables[table] = make(map[string]map[string]*dynamodb.AttributeValue)
	}
	s.tables[table][*id.S] = av
	s.log.add(fmt.Sprintf("store:upsert:%s/%s", table, *id.S))
	return nil
}

func (s *fakeStore) GetByID(ctx context.Context, table, id string, out interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	av, ok := s.tables[table][id]
	if !ok {
		return store.ErrNotFound
	}
	return dynamodbattribute.UnmarshalMap(av, out)
}

func (s *fakeStore) GetAll(ctx context.Context, table string, out interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]map[string]*dynamodb.AttributeValue, 0, len(s.tables[table]))
	for _, av := range s.tables[table] {
		items = append(items, av)
	}
	return dynamodbattribute.UnmarshalListOfMaps(items, out)
}

func (s *fakeStore) DeleteByID(ctx context.Context, table, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tables[table], id)
	s.log.add(fmt.Sprintf("store:delete:%s/%s", table, id))
	return nil
}

// fakeBlob is an in-memory blob tier.
type fakeBlob struct {
	mu      sync.Mutex
	objects map[string][]byte
	log     *opLog
}

var _ blob.Storage = (*fakeBlob)(nil)

func newFakeBlob(log *opLog) *fakeBlob {
	return &fakeBlob{objects: make(map[string][]byte), log: log}
}

func blobKey(bucket, key string) string { return bucket + "/" + key }

func (b *fakeBlob) Put(ctx context.Context, bucket, key string, body []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[blobKey(bucket, key)] = body
	b.log.add(fmt.Sprintf("blob:put:%s/%s", bucket, key))
	return nil
}

func (b *fakeBlob) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	body, ok := b.objects[blobKey(bucket, key)]
	if !ok {
		return nil, blob.ErrNotFound
	}
	return body, nil
}

func (b *fakeBlob) Delete(ctx context.Context, bucket, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, blobKey(bucket, key))
	b.log.add(fmt.Sprintf("blob:delete:%s/%s", bucket, key))
	return nil
}

func (b *fakeBlob) PutWithURL(ctx context.Context, bucket, key string, body []byte, ttl time.Duration) (string, error) {
	if err := b.Put(ctx, bucket, key, body); err != nil {
		return "", err
	}
	return "https://signed.example/" + bucket + "/" + key, nil
}

// fakeZones looks geometries up from a map; missing ids are not cached.
type fakeZones struct {
	geometries map[string]geometry.Geometry
}

var _ ZoneLookup = (*fakeZones)(nil)

func (z *fakeZones) Geometry(ctx context.Context, zoneID string) (*geometry.Geometry, error) {
	g, ok := z.geometries[zoneID]
	if !ok {
		return nil, zone.ErrNotCached
	}
	return &g, nil
}

// fakePublisher records published references.
type fakePublisher struct {
	mu   sync.Mutex
	sent []queue.Ref
}

func (p *fakePublisher) Send(ctx context.Context, queueName string, ref queue.Ref) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, ref)
	return nil
}
