// Package alert implements the enrichment, spatial query and expiry engine
// for weather hazard alerts.
package alert

import (
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"

	"github.com/coastalwx/alert-engine/geometry"
)

// Timestamp is a nullable instant. The zero value is null and serializes as
// an empty string, matching the persisted record shape.
type Timestamp struct {
	time.Time
}

func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

// ParseTimestamp reads an ISO-8601 instant. Unparseable or empty input
// yields the null timestamp: degraded output, not an error.
func ParseTimestamp(s string) Timestamp {
	if s == "" {
		return Timestamp{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return Timestamp{}
	}
	return Timestamp{Time: t}
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return []byte(`"` + t.Format(time.RFC3339) + `"`), nil
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	*t = ParseTimestamp(s)
	return nil
}

func (t Timestamp) MarshalDynamoDBAttributeValue(av *dynamodb.AttributeValue) error {
	if t.IsZero() {
		av.NULL = aws.Bool(true)
		return nil
	}
	av.S = aws.String(t.Format(time.RFC3339))
	return nil
}

func (t *Timestamp) UnmarshalDynamoDBAttributeValue(av *dynamodb.AttributeValue) error {
	if av.S == nil {
		*t = Timestamp{}
		return nil
	}
	*t = ParseTimestamp(*av.S)
	return nil
}

// Record is the enriched alert entity persisted across both tiers: the
// metadata tier keeps everything but the geometries, the blob tier keeps
// the full document. Field names are the wire contract.
type Record struct {
	ID       string    `json:"id" dynamodbav:"id"`
	Start    Timestamp `json:"start" dynamodbav:"start"`
	End      Timestamp `json:"end" dynamodbav:"end"`
	Updated  Timestamp `json:"updated" dynamodbav:"updated"`
	Severity string    `json:"severity" dynamodbav:"severity"`
	Event    string    `json:"event" dynamodbav:"event"`
	Title    string    `json:"title" dynamodbav:"title"`
	Message  string    `json:"message" dynamodbav:"message"`
	Link     string    `json:"link" dynamodbav:"link"`

	MinLat geometry.Number `json:"min_lat" dynamodbav:"min_lat"`
	MaxLat geometry.Number `json:"max_lat" dynamodbav:"max_lat"`
	MinLon geometry.Number `json:"min_lon" dynamodbav:"min_lon"`
	MaxLon geometry.Number `json:"max_lon" dynamodbav:"max_lon"`

	Geometry []geometry.Geometry `json:"geometry,omitempty" dynamodbav:"-"`
}

// BlobKey derives the blob tier object key for an alert id.
func BlobKey(alertID string) string {
	return alertID + ".json"
}

// SetExtent derives the bounding box from the folded extent. Bounds missing
// from the extent fall back to zero, a degenerate sentinel callers must
// treat defensively: it is indistinguishable from a tiny alert at the
// intersection of equator and prime meridian.
func (r *Record) SetExtent(e geometry.Extent) {
	e = e.Round(geometry.Precision)
	r.MinLat = orZero(e.MinLat)
	r.MaxLat = orZero(e.MaxLat)
	r.MinLon = orZero(e.MinLon)
	r.MaxLon = orZero(e.MaxLon)
}

func orZero(n *geometry.Number) geometry.Number {
	if n == nil {
		return geometry.NewNumber(0)
	}
	return *n
}

// Contains reports whether the point falls inside the record's bounding
// box, boundaries included. This is a deliberate approximation: no
// point-in-polygon test is performed.
func (r *Record) Contains(lat, lon float64) bool {
	dlat := geometry.NewNumber(lat)
	dlon := geometry.NewNumber(lon)
	return r.MinLat.Cmp(dlat) <= 0 && dlat.Cmp(r.MaxLat) <= 0 &&
		r.MinLon.Cmp(dlon) <= 0 && dlon.Cmp(r.MaxLon) <= 0
}

// Expired reports whether the record's validity window ended strictly
// before now. Records with no end time never expire on their own.
func (r *Record) Expired(now time.Time) bool {
	return !r.End.IsZero() && r.End.Before(now)
}
