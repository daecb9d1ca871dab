package config

import "time"

type Config struct {
	AppName                       string   `env:"APP_NAME" env-default:"apmatch-api"`
	Port                          int      `env:"PORT" env-default:"3004"`
	LogLevel                      string   `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	MaxHeaderBytes                int      `env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"` // 64KB
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	AllowMethods                  []string `env:"HTTP_SERVER_ALLOW_METHODS" env-default:"GET,POST,PUT,DELETE,PATCH"`
	StartupMaxAttempts            int      `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`

	// PostgreSQL
	DatabaseDriver                string        `env:"DB_DRIVER" env-default:"postgres"`
	DatabaseHost                  string        `env:"DB_HOST" env-default:""`
	DatabasePort                  string        `env:"DB_PORT" env-default:"5432"`
	DatabaseUserName              string        `env:"DB_USER_NAME" env-default:""`
	DatabasePassword              string        `env:"DB_PASSWORD" env-default:""`
	DatabaseName                  string        `env:"DB_NAME" env-default:"apmatch"`
	DatabaseSSLMode               string        `env:"DB_SQL_MODE" env-default:"disable"`
	DatabaseMaxOpenConns          int           `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	DatabaseMaxIdleConns          int           `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	DatabaseConnMaxLifetime       time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10s"`
	DatabaseMigrationFolderPath   string        `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	DatabaseMigrationVersion      int           `env:"DB_MIGRATION_VERSION" env-default:"0"`
	DatabaseMigrationForce        int           `env:"DB_MIGRATION_FORCE" env-default:"0"`
	DatabaseMigrationAutoRollback bool          `env:"DB_MIGRATION_AUTO_ROLLBACK" env-default:"true"`

	// Redis (job queue + distributed locks)
	RedisHost     string `env:"REDIS_HOST" env-default:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" env-default:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" env-default:""`
	RedisDB       int    `env:"REDIS_DB" env-default:"0"`

	// Job queue
	JobQueueStream        string `env:"JOB_QUEUE_STREAM" env-default:"apmatch:jobs"`
	JobQueueConsumerGroup string `env:"JOB_QUEUE_CONSUMER_GROUP" env-default:"apmatch-workers"`
	JobQueueWorkerCount   int    `env:"JOB_QUEUE_WORKER_COUNT" env-default:"4"`
	JobQueueMaxRetries    int    `env:"JOB_QUEUE_MAX_RETRIES" env-default:"3"`
	DLQStream             string `env:"DLQ_STREAM" env-default:"apmatch:dlq"`

	// Kafka Producer (audit/reconciliation events)
	KafkaBrokers      []string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaOutputTopic  string   `env:"KAFKA_OUTPUT_TOPIC" env-default:"reconciliation-events"`
	KafkaBatchSize    int      `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	KafkaBatchTimeout int      `env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"100"`
	KafkaRequiredAcks int      `env:"KAFKA_REQUIRED_ACKS" env-default:"1"`
	KafkaCompression  string   `env:"KAFKA_COMPRESSION" env-default:"snappy"`

	// Matching
	MaxCandidates        int     `env:"MATCH_MAX_CANDIDATES" env-default:"10"`
	AmountTolerancePct   float64 `env:"MATCH_AMOUNT_TOLERANCE_PCT" env-default:"5"`
	AmountToleranceAbs   float64 `env:"MATCH_AMOUNT_TOLERANCE_ABS" env-default:"10"`
	DateToleranceDays    int     `env:"MATCH_DATE_TOLERANCE_DAYS" env-default:"7"`
	AutoApproveThreshold float64 `env:"MATCH_AUTO_APPROVE_THRESHOLD" env-default:"85"`
	ProgressInterval     int     `env:"MATCH_PROGRESS_INTERVAL" env-default:"10"`
	MaxJobErrors         int     `env:"MATCH_MAX_JOB_ERRORS" env-default:"20"`

	// Vendor normalization
	VendorSimilarityThreshold float64 `env:"VENDOR_SIMILARITY_THRESHOLD" env-default:"80"`
	VendorAutoMergeThreshold  float64 `env:"VENDOR_AUTO_MERGE_THRESHOLD" env-default:"95"`
	VendorAutoMergeEnabled    bool    `env:"VENDOR_AUTO_MERGE_ENABLED" env-default:"true"`

	// ML confidence enhancement
	EnhancerEnabled        bool   `env:"ENHANCER_ENABLED" env-default:"false"`
	EnhancerURL            string `env:"ENHANCER_URL" env-default:""`
	EnhancerTimeoutSeconds int    `env:"ENHANCER_TIMEOUT_SECONDS" env-default:"5"`
}
