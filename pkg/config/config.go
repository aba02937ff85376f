package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const EnvPrefix = "autonotes"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "AUTONOTES_DB_DSN"
	EnvDBHost = "AUTONOTES_DB_HOST"
	EnvDBUser = "AUTONOTES_DB_USER"
	EnvDBName = "AUTONOTES_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	AMQP         AMQPConfig
	GCP          GCPConfig
	GCS          GCSConfig
	Notes        NotesConfig
	Outbox       OutboxConfig
	Cron         CronConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"AUTONOTES_APP_ENV" required:"true"`
	Port         string `envconfig:"AUTONOTES_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"AUTONOTES_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"AUTONOTES_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"AUTONOTES_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"AUTONOTES_DB_DSN"`
	Driver string `envconfig:"AUTONOTES_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"AUTONOTES_DB_HOST"`
	LegacyPort     int    `envconfig:"AUTONOTES_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"AUTONOTES_DB_USER"`
	LegacyPassword string `envconfig:"AUTONOTES_DB_PASSWORD"`
	LegacyName     string `envconfig:"AUTONOTES_DB_NAME"`
	LegacySSLMode  string `envconfig:"AUTONOTES_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"AUTONOTES_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"AUTONOTES_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"AUTONOTES_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"AUTONOTES_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"AUTONOTES_REDIS_URL" required:"true"`
	Address      string        `envconfig:"AUTONOTES_REDIS_ADDR"`
	Password     string        `envconfig:"AUTONOTES_REDIS_PASSWORD"`
	DB           int           `envconfig:"AUTONOTES_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"AUTONOTES_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"AUTONOTES_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"AUTONOTES_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"AUTONOTES_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"AUTONOTES_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// AMQPConfig names the broker topology. Defaults match the queue layout the
// recognition worker pool is deployed against.
type AMQPConfig struct {
	URL string `envconfig:"AUTONOTES_AMQP_URL" required:"true"`

	Exchange string `envconfig:"AUTONOTES_AMQP_EXCHANGE" default:"notes.exchange"`

	ProcessQueue      string `envconfig:"AUTONOTES_AMQP_PROCESS_QUEUE" default:"notes.process.queue"`
	ProcessRoutingKey string `envconfig:"AUTONOTES_AMQP_PROCESS_ROUTING_KEY" default:"notes.created"`
	ProcessDLQ        string `envconfig:"AUTONOTES_AMQP_PROCESS_DLQ" default:"notes.process.dlq"`
	ProcessDLQKey     string `envconfig:"AUTONOTES_AMQP_PROCESS_DLQ_KEY" default:"notes.dlq"`

	ResultsQueue      string `envconfig:"AUTONOTES_AMQP_RESULTS_QUEUE" default:"notes.results.queue"`
	ResultsRoutingKey string `envconfig:"AUTONOTES_AMQP_RESULTS_ROUTING_KEY" default:"notes.completed"`
	ResultsDLQ        string `envconfig:"AUTONOTES_AMQP_RESULTS_DLQ" default:"notes.results.dlq"`
	ResultsDLQKey     string `envconfig:"AUTONOTES_AMQP_RESULTS_DLQ_KEY" default:"notes.results.dlq.key"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"AUTONOTES_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"AUTONOTES_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"AUTONOTES_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName string `envconfig:"AUTONOTES_GCS_BUCKET_NAME" required:"true"`
}

// NotesConfig carries the reconciliation thresholds.
type NotesConfig struct {
	ProcessingTimeout   time.Duration `envconfig:"AUTONOTES_NOTES_PROCESSING_TIMEOUT" default:"10m"`
	SoftDeleteRetention time.Duration `envconfig:"AUTONOTES_NOTES_SOFT_DELETE_RETENTION" default:"720h"`
	StorageGCRetention  time.Duration `envconfig:"AUTONOTES_STORAGE_GC_RETENTION" default:"24h"`
	MaxUploadMB         int           `envconfig:"AUTONOTES_NOTES_MAX_UPLOAD_MB" default:"20"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"AUTONOTES_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"AUTONOTES_OUTBOX_PUBLISH_POLL_MS" default:"2000"`
}

// CronConfig schedules the three sweepers. Each job runs on its own timer.
type CronConfig struct {
	StuckSweepInterval     time.Duration `envconfig:"AUTONOTES_CRON_STUCK_SWEEP_INTERVAL" default:"2m"`
	PurgeSweepInterval     time.Duration `envconfig:"AUTONOTES_CRON_PURGE_SWEEP_INTERVAL" default:"24h"`
	StorageGCSweepInterval time.Duration `envconfig:"AUTONOTES_CRON_STORAGE_GC_SWEEP_INTERVAL" default:"24h"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"AUTONOTES_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
