package alert

import (
	"encoding/json"

	"github.com/coastalwx/alert-engine/geometry"
)

// Raw is the alert feature as delivered by the feed. It is consumed, never
// mutated.
type Raw struct {
	ID         string             `json:"id"`
	Geometry   *geometry.Geometry `json:"geometry"`
	Properties RawProperties      `json:"properties"`
}

// RawProperties carries the descriptive fields of a raw alert. All strings
// are opaque and passed through unvalidated.
type RawProperties struct {
	ID            string   `json:"id"`
	Link          string   `json:"@id"`
	Effective     string   `json:"effective"`
	Ends          string   `json:"ends"`
	Severity      string   `json:"severity"`
	Urgency       string   `json:"urgency"`
	Headline      string   `json:"headline"`
	Description   string   `json:"description"`
	AffectedZones []string `json:"affectedZones"`
}

// AlertID resolves the alert identity, preferring the feed's property id
// over the envelope id.
func (r Raw) AlertID() string {
	if r.Properties.ID != "" {
		return r.Properties.ID
	}
	return r.ID
}

// rawItem is the raw-alert row kept in the metadata store between ingestion
// and enrichment. The original feature is carried verbatim.
type rawItem struct {
	ID       string `dynamodbav:"id"`
	Document []byte `dynamodbav:"document"`
}

func newRawItem(id string, feature json.RawMessage) rawItem {
	return rawItem{ID: id, Document: feature}
}
