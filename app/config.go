package app

import (
	"io/ioutil"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const defaultConfig = `# Coastal Weather Alert Engine

################################## LOGGING ####################################

[logging]

#
# Logging verbosity level.
# Supported values: "DEBUG", "INFO", "WARN", "ERROR", "FATAL" or "PANIC".
#
level = "INFO"

################################## ENGINE #####################################

[engine]

#
# Name of the table holding raw alerts between ingestion and enrichment
# (DynamoDB).
#
raw_alerts_table = "alert_engine_raw_alerts"

#
# Name of the metadata table of enriched alerts (DynamoDB).
#
alerts_table = "alert_engine_weather_alerts"

#
# Bucket holding the full enriched records, geometries included (S3).
#
alerts_bucket = "alert-engine-weather-alerts"

#
# Bucket receiving query export bundles (S3).
#
export_bucket = "alert-engine-exports"

#
# Name of the zone index table (DynamoDB).
#
zones_table = "alert_engine_zones"

#
# Bucket caching zone geometries (S3).
#
zone_bucket = "alert-engine-zones"

#
# Queue delivering one reference message per ingested alert (SQS).
#
alerts_queue = "alert-engine-alerts"

#
# Queue delivering one reference message per zone to cache (SQS).
#
zones_queue = "alert-engine-zones"

#
# Raw alert validation supports three modes:
#
#   validation_mode="strict"
#   Invalid raw alerts are rejected.
#
#   validation_mode="warnings"
#   Invalid raw alerts are enriched anyway.
#   The validation errors are logged.
#
#   validation_mode="disabled"
#   Raw alert validation will not be performed.
#
validation_mode = "strict"

#
# Lifetime of export retrieval handles.
#
export_ttl = "1h"

#
# How often the feed is polled for active alerts. Empty disables polling.
#
poll_interval = "5m"

#
# How often expired alerts are swept from both tiers. Empty disables the
# sweeper.
#
sweep_interval = "15m"

################################## FEED #######################################

[feed]

#
# Base URL of the upstream hazard feed.
#
base_url = "https://api.weather.gov/"

#
# User-Agent header sent to the feed. The upstream API asks clients to
# identify themselves.
#
user_agent = "alert-engine (ops@coastalwx.example)"

################################## AWS ########################################

[aws]

s3_profile = ""
s3_endpoint = ""

dynamodb_profile = ""
dynamodb_endpoint = ""

sqs_profile = ""
sqs_endpoint = ""
`

type Config struct {
	v *viper.Viper

	Logging struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"logging"`

	Engine struct {
		RawAlertsTable string `mapstructure:"raw_alerts_table"`
		AlertsTable    string `mapstructure:"alerts_table"`
		AlertsBucket   string `mapstructure:"alerts_bucket"`
		ExportBucket   string `mapstructure:"export_bucket"`
		ZonesTable     string `mapstructure:"zones_table"`
		ZoneBucket     string `mapstructure:"zone_bucket"`
		AlertsQueue    string `mapstructure:"alerts_queue"`
		ZonesQueue     string `mapstructure:"zones_queue"`
		ValidationMode string `mapstructure:"validation_mode"`
		ExportTTL      string `mapstructure:"export_ttl"`
		PollInterval   string `mapstructure:"poll_interval"`
		SweepInterval  string `mapstructure:"sweep_interval"`
	} `mapstructure:"engine"`

	Feed struct {
		BaseURL   string `mapstructure:"base_url"`
		UserAgent string `mapstructure:"user_agent"`
	} `mapstructure:"feed"`

	AWS struct {
		S3Profile        string `mapstructure:"s3_profile"`
		S3Endpoint       string `mapstructure:"s3_endpoint"`
		DynamoDBProfile  string `mapstructure:"dynamodb_profile"`
		DynamoDBEndpoint string `mapstructure:"dynamodb_endpoint"`
		SQSProfile       string `mapstructure:"sqs_profile"`
		SQSEndpoint      string `mapstructure:"sqs_endpoint"`
	} `mapstructure:"aws"`
}

func (c Config) Validate() error {
	for _, d := range []string{c.Engine.ExportTTL, c.Engine.PollInterval, c.Engine.SweepInterval} {
		if d == "" {
			continue
		}
		if _, err := time.ParseDuration(d); err != nil {
			return errors.Wrapf(err, "invalid duration %q", d)
		}
	}
	return nil
}

// duration returns the parsed duration, or zero when empty. Validate has
// rejected invalid values already.
func duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

func (c Config) String() string {
	tmpfile, err := ioutil.TempFile("", "config.*.toml")
	if err != nil {
		return err.Error()
	}
	err = c.v.WriteConfigAs(tmpfile.Name())
	if err != nil {
		return err.Error()
	}
	blob, err := ioutil.ReadAll(tmpfile)
	if err != nil {
		return err.Error()
	}
	return string(blob)
}

func loadConfig(c *Config) error {
	v := viper.New()

	v.SetEnvPrefix("ALERT_ENGINE")
	v.AutomaticEnv()

	v.SetConfigName("alert-engine")
	v.SetConfigType("toml")
	v.AddConfigPath("$HOME/.config/")
	v.AddConfigPath("/etc/alert-engine/")

	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	// Read our default configuration.
	if err := v.ReadConfig(strings.NewReader(defaultConfig)); err != nil {
		panic(err) // Not in the user path.
	}

	// Include configuration file provided by the user.
	if err := v.MergeInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}

	if err := v.Unmarshal(&c); err != nil {
		return errors.Wrap(err, "configuration unmarshaling failed")
	}

	if err := c.Validate(); err != nil {
		return errors.Wrap(err, "config did not pass validation")
	}

	c.v = v

	return nil
}
