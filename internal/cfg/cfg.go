package cfg

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/linnemanlabs/roadwatch/internal/priority"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// Feed sources.
const (
	FeedNone  = "none"
	FeedFile  = "file"
	FeedS3    = "s3"
	FeedKafka = "kafka"
)

// Config adds app-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	EnvFile               string
	Timezone              string

	Store       string
	DatabaseURL string
	DBMaxConns  int
	SQLitePath  string

	FeedSource          string
	FeedPath            string
	FeedIntervalSeconds int
	FeedStaggerMillis   int
	ManualRunsPerMinute float64
	S3Bucket            string
	S3Key               string
	S3Region            string
	S3Endpoint          string
	KafkaBrokers        string
	KafkaTopic          string
	KafkaGroupID        string

	DedupMaxKeys           int
	DedupRetentionHours    int
	DedupCompactionMinutes int

	ReplaySize       int
	ViewerBuffer     int
	HeartbeatSeconds int

	TemplatesPath    string
	SlackWebhookURL  string
	SlackMinPriority int
	EventsTopic      string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.EnvFile, "env-file", ".env", "optional dotenv file loaded before reading ROADWATCH_ variables (empty = skip)")
	fs.StringVar(&c.Timezone, "timezone", "Asia/Seoul", "IANA zone for feed timestamps and statistics day boundaries")

	fs.StringVar(&c.Store, "store", StoreMemory, "incident store backend (memory, postgres, sqlite)")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (required for -store=postgres)")
	fs.IntVar(&c.DBMaxConns, "db-max-conns", 0, "maximum PostgreSQL pool connections (0 = pgx default)")
	fs.StringVar(&c.SQLitePath, "sqlite-path", "roadwatch.db", "SQLite database file (for -store=sqlite)")

	fs.StringVar(&c.FeedSource, "feed-source", FeedFile, "incident feed source (none, file, s3, kafka)")
	fs.StringVar(&c.FeedPath, "feed-path", "data/incidents.csv", "feed CSV file path (for -feed-source=file)")
	fs.IntVar(&c.FeedIntervalSeconds, "feed-interval-seconds", 30, "seconds between scheduled feed runs (0 = startup and manual runs only)")
	fs.IntVar(&c.FeedStaggerMillis, "feed-stagger-ms", 1000, "delay between starting consecutive records of one run, in milliseconds")
	fs.Float64Var(&c.ManualRunsPerMinute, "manual-runs-per-minute", 6, "rate limit for manually triggered feed runs (0 = unlimited)")
	fs.StringVar(&c.S3Bucket, "s3-bucket", "", "S3 bucket holding the feed CSV")
	fs.StringVar(&c.S3Key, "s3-key", "", "S3 object key of the feed CSV")
	fs.StringVar(&c.S3Region, "s3-region", "", "S3 region (empty = SDK default chain)")
	fs.StringVar(&c.S3Endpoint, "s3-endpoint", "", "custom S3 endpoint for S3-compatible storage (path-style)")
	fs.StringVar(&c.KafkaBrokers, "kafka-brokers", "", "comma-separated Kafka broker addresses")
	fs.StringVar(&c.KafkaTopic, "kafka-topic", "", "Kafka topic carrying JSON feed records")
	fs.StringVar(&c.KafkaGroupID, "kafka-group-id", "roadwatch", "Kafka consumer group for the feed")

	fs.IntVar(&c.DedupMaxKeys, "dedup-max-keys", 100000, "capacity of the in-memory dedup ledger")
	fs.IntVar(&c.DedupRetentionHours, "dedup-retention-hours", 24*30, "hours a processed feed key is remembered")
	fs.IntVar(&c.DedupCompactionMinutes, "dedup-compaction-minutes", 60, "minutes between persistent ledger compactions")

	fs.IntVar(&c.ReplaySize, "events-replay", 256, "events kept for reconnecting viewers")
	fs.IntVar(&c.ViewerBuffer, "events-viewer-buffer", 64, "events buffered per viewer before it is disconnected")
	fs.IntVar(&c.HeartbeatSeconds, "events-heartbeat-seconds", 15, "seconds between keep-alive comments on idle event streams")

	fs.StringVar(&c.TemplatesPath, "advisory-templates", "", "YAML file overriding advisory templates (empty = built-in)")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for urgent incident notifications")
	fs.IntVar(&c.SlackMinPriority, "slack-min-priority", 5, "lowest priority that is posted to Slack (1..5)")
	fs.StringVar(&c.EventsTopic, "kafka-events-topic", "", "Kafka topic mirroring incident events (empty = disabled)")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil || c.Timezone == "" {
		errs = append(errs, fmt.Errorf("invalid TIMEZONE %q", c.Timezone))
	}

	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for STORE=postgres"))
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for STORE=sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid STORE %q (must be memory, postgres or sqlite)", c.Store))
	}
	if c.DBMaxConns < 0 {
		errs = append(errs, fmt.Errorf("invalid DB_MAX_CONNS %d (must be >= 0)", c.DBMaxConns))
	}

	switch c.FeedSource {
	case FeedNone:
	case FeedFile:
		if c.FeedPath == "" {
			errs = append(errs, errors.New("FEED_PATH is required for FEED_SOURCE=file"))
		}
	case FeedS3:
		if c.S3Bucket == "" || c.S3Key == "" {
			errs = append(errs, errors.New("S3_BUCKET and S3_KEY are required for FEED_SOURCE=s3"))
		}
	case FeedKafka:
		if len(c.Brokers()) == 0 || c.KafkaTopic == "" {
			errs = append(errs, errors.New("KAFKA_BROKERS and KAFKA_TOPIC are required for FEED_SOURCE=kafka"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid FEED_SOURCE %q (must be none, file, s3 or kafka)", c.FeedSource))
	}
	if c.FeedIntervalSeconds < 0 {
		errs = append(errs, fmt.Errorf("invalid FEED_INTERVAL_SECONDS %d (must be >= 0)", c.FeedIntervalSeconds))
	}
	if c.FeedStaggerMillis < 0 || c.FeedStaggerMillis > 60000 {
		errs = append(errs, fmt.Errorf("invalid FEED_STAGGER_MS %d (must be 0..60000)", c.FeedStaggerMillis))
	}
	if c.ManualRunsPerMinute < 0 {
		errs = append(errs, fmt.Errorf("invalid MANUAL_RUNS_PER_MINUTE %v (must be >= 0)", c.ManualRunsPerMinute))
	}

	if c.DedupMaxKeys <= 0 {
		errs = append(errs, fmt.Errorf("invalid DEDUP_MAX_KEYS %d (must be > 0)", c.DedupMaxKeys))
	}
	if c.DedupRetentionHours <= 0 {
		errs = append(errs, fmt.Errorf("invalid DEDUP_RETENTION_HOURS %d (must be > 0)", c.DedupRetentionHours))
	}
	if c.DedupCompactionMinutes <= 0 {
		errs = append(errs, fmt.Errorf("invalid DEDUP_COMPACTION_MINUTES %d (must be > 0)", c.DedupCompactionMinutes))
	}

	if c.ReplaySize < 0 {
		errs = append(errs, fmt.Errorf("invalid EVENTS_REPLAY %d (must be >= 0)", c.ReplaySize))
	}
	if c.ViewerBuffer <= 0 {
		errs = append(errs, fmt.Errorf("invalid EVENTS_VIEWER_BUFFER %d (must be > 0)", c.ViewerBuffer))
	}
	if c.HeartbeatSeconds <= 0 {
		errs = append(errs, fmt.Errorf("invalid EVENTS_HEARTBEAT_SECONDS %d (must be > 0)", c.HeartbeatSeconds))
	}

	if c.SlackMinPriority < priority.Min || c.SlackMinPriority > priority.Max {
		errs = append(errs, fmt.Errorf("invalid SLACK_MIN_PRIORITY %d (must be %d..%d)", c.SlackMinPriority, priority.Min, priority.Max))
	}
	if c.EventsTopic != "" && len(c.Brokers()) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS is required when KAFKA_EVENTS_TOPIC is set"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Brokers splits KafkaBrokers on commas, dropping blanks.
func (c *Config) Brokers() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Location returns the configured zone, or UTC if it does not load.
// Validate reports the latter.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// FeedInterval is the period of scheduled feed runs.
func (c *Config) FeedInterval() time.Duration {
	return time.Duration(c.FeedIntervalSeconds) * time.Second
}

// FeedStagger is the delay between consecutive records of a run.
func (c *Config) FeedStagger() time.Duration {
	return time.Duration(c.FeedStaggerMillis) * time.Millisecond
}

// DedupRetention is how long a processed feed key is remembered.
func (c *Config) DedupRetention() time.Duration {
	return time.Duration(c.DedupRetentionHours) * time.Hour
}

// DedupCompaction is the period of persistent ledger compaction.
func (c *Config) DedupCompaction() time.Duration {
	return time.Duration(c.DedupCompactionMinutes) * time.Minute
}

// Heartbeat is the keep-alive period of idle event streams.
func (c *Config) Heartbeat() time.Duration {
	return time.Duration(c.HeartbeatSeconds) * time.Second
}
