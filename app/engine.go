package app

import (
	"os"
	"strconv"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/coastalwx/alert-engine/alert"
	"github.com/coastalwx/alert-engine/blob"
	"github.com/coastalwx/alert-engine/feed"
	"github.com/coastalwx/alert-engine/queue"
	"github.com/coastalwx/alert-engine/store"
	"github.com/coastalwx/alert-engine/zone"
)

// metrics are the engine-wide Prometheus counters.
type metrics struct {
	alertMessages prometheus.Counter
	zoneMessages  prometheus.Counter
	ingested      prometheus.Counter
	enriched      prometheus.Counter
	removed       prometheus.Counter
}

func newMetrics() *metrics {
	m := &metrics{
		alertMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "alert_engine",
			Name:      "alert_messages_total",
			Help:      "The total number of alert queue messages received.",
		}),
		zoneMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "alert_engine",
			Name:      "zone_messages_total",
			Help:      "The total number of zone queue messages received.",
		}),
		ingested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "alert_engine",
			Name:      "alerts_ingested_total",
			Help:      "The total number of raw alerts ingested from the feed.",
		}),
		enriched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "alert_engine",
			Name:      "alerts_enriched_total",
			Help:      "The total number of alerts enriched and dual-written.",
		}),
		removed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "alert_engine",
			Name:      "alerts_removed_total",
			Help:      "The total number of expired alerts removed.",
		}),
	}
	prometheus.MustRegister(m.alertMessages, m.zoneMessages, m.ingested, m.enriched, m.removed)
	return m
}

// engine bundles every wired component of the application.
type engine struct {
	logger    logrus.FieldLogger
	metrics   *metrics
	sqsClient sqsiface.SQSAPI

	stores    *store.DynamoDB
	blobs     *blob.S3
	publisher *queue.Publisher
	feed      *feed.Client
	zones     *zone.Service

	aggregator *alert.Aggregator
	queries    *alert.QueryEngine
	sweeper    *alert.Sweeper
	ingestor   *alert.Ingestor

	alertCfg alert.Config
	zoneCfg  zone.Config
}

// buildEngine wires the whole dependency graph from the configuration.
func buildEngine(logger logrus.FieldLogger, config *Config) (*engine, error) {
	m := newMetrics()

	var dynamodbClient *dynamodb.DynamoDB
	{
		sess, err := awsSession(logger, config.AWS.DynamoDBProfile, config.AWS.DynamoDBEndpoint)
		if err != nil {
			return nil, err
		}
		dynamodbClient = dynamodb.New(sess)
	}

	var s3Client *s3.S3
	{
		sess, err := awsSession(logger, config.AWS.S3Profile, config.AWS.S3Endpoint)
		if err != nil {
			return nil, err
		}
		s3Client = s3.New(sess)
	}

	var sqsClient *sqs.SQS
	{
		sess, err := awsSession(logger, config.AWS.SQSProfile, config.AWS.SQSEndpoint)
		if err != nil {
			return nil, err
		}
		sqsClient = sqs.New(sess)
	}

	feedClient, err := feed.NewClient(config.Feed.BaseURL, config.Feed.UserAgent)
	if err != nil {
		return nil, err
	}

	alertCfg := alert.Config{
		RawTable:     config.Engine.RawAlertsTable,
		Table:        config.Engine.AlertsTable,
		Bucket:       config.Engine.AlertsBucket,
		ExportBucket: config.Engine.ExportBucket,
		QueueName:    config.Engine.AlertsQueue,
		ExportTTL:    duration(config.Engine.ExportTTL),
	}
	zoneCfg := zone.Config{
		Table:       config.Engine.ZonesTable,
		QueueName:   config.Engine.ZonesQueue,
		CacheBucket: config.Engine.ZoneBucket,
	}

	stores := store.NewDynamoDB(logger.WithField("component", "store"), dynamodbClient)
	blobs := blob.NewS3(logger.WithField("component", "blob"), s3Client)
	publisher := queue.NewPublisher(sqsClient)
	zones := zone.NewService(logger.WithField("component", "zone"), feedClient, stores, blobs, publisher, zoneCfg)

	mode, err := alert.ParseValidationMode(config.Engine.ValidationMode)
	if err != nil {
		return nil, err
	}
	validator, err := alert.NewValidator(logger.WithField("component", "validator"), mode)
	if err != nil {
		return nil, err
	}

	clock := clockwork.NewRealClock()
	aggregator := alert.NewAggregator(logger.WithField("component", "aggregator"), stores, blobs, zones, validator, clock, alertCfg, m.enriched)
	queries := alert.NewQueryEngine(logger.WithField("component", "query"), stores, blobs, alertCfg)
	sweeper := alert.NewSweeper(logger.WithField("component", "sweeper"), stores, blobs, queries, clock, alertCfg, m.removed)
	ingestor := alert.NewIngestor(logger.WithField("component", "ingestor"), feedClient, stores, publisher, alertCfg, m.ingested)

	return &engine{
		logger:     logger,
		metrics:    m,
		sqsClient:  sqsClient,
		stores:     stores,
		blobs:      blobs,
		publisher:  publisher,
		feed:       feedClient,
		zones:      zones,
		aggregator: aggregator,
		queries:    queries,
		sweeper:    sweeper,
		ingestor:   ingestor,
		alertCfg:   alertCfg,
		zoneCfg:    zoneCfg,
	}, nil
}

type logrusProxy struct {
	logger logrus.FieldLogger
}

func (l logrusProxy) Log(args ...interface{}) {
	l.logger.WithField("client", "aws").Debug(args...)
}

// awsSession returns a session using NewSessionWithOptions meaning that it
// relies on the SDK defaults but also the user config files and environment.
//
// AWS_S3_FORCE_PATH_STYLE is a made-up environment string that the SDK does
// not look up. This could be done via configuration instead but I don't want
// to add more surface to the config layer that what's really needed in prod.
func awsSession(logger logrus.FieldLogger, profile, endpoint string) (*session.Session, error) {
	options := session.Options{}
	if profile != "" {
		options.Profile = profile
	}
	if endpoint != "" {
		options.Config.WithEndpoint(endpoint)
	}
	if res, ok := os.LookupEnv("AWS_S3_FORCE_PATH_STYLE"); ok {
		enabled, _ := strconv.ParseBool(res)
		options.Config.WithS3ForcePathStyle(enabled)
	}
	if logrus.GetLevel() == logrus.DebugLevel {
		options.Config.WithCredentialsChainVerboseErrors(true)
	}
	options.Config.WithLogger(logrusProxy{logger: logger})
	return session.NewSessionWithOptions(options)
}
