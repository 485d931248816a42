package alert

import "time"

// Config carries the storage and queue names of the engine.
type Config struct {
	// RawTable holds raw alerts between ingestion and enrichment.
	RawTable string
	// Table is the metadata tier of enriched records.
	Table string
	// Bucket is the blob tier of full enriched records.
	Bucket string
	// ExportBucket receives query result bundles.
	ExportBucket string
	// QueueName receives one reference message per ingested alert.
	QueueName string
	// ExportTTL bounds the lifetime of export retrieval handles.
	ExportTTL time.Duration
}
