package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/mailcraft/internal/config"
	"github.com/ignite/mailcraft/internal/pkg/logger"
	"github.com/ignite/mailcraft/internal/queue"
	"github.com/ignite/mailcraft/internal/repository/postgres"
	"github.com/ignite/mailcraft/internal/storage"
)

// LoadConfig reads path (skipped when the file does not exist) plus the
// environment, fills development secrets, validates, and initializes the
// global logger.
func LoadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		path = ""
	}
	cfg, err := config.LoadFromEnv(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.DevSecrets()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.RedactPII); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, nil
}

// OpenRedis connects to cfg.URL and pings it.
func OpenRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	url := cfg.URL
	if url == "" {
		url = "redis://localhost:6379/0"
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// OpenRepos returns in-memory repositories when configured for memory and
// migrated Postgres repositories otherwise. db is nil in memory mode.
func OpenRepos(ctx context.Context, cfg config.DatabaseConfig) (Repos, *sql.DB, error) {
	if cfg.Memory {
		logger.Warn("using in-memory repositories; data is lost on exit")
		return MemoryRepos(), nil, nil
	}
	db, err := postgres.Open(ctx, cfg)
	if err != nil {
		return Repos{}, nil, err
	}
	n, err := postgres.Migrate(ctx, db)
	if err != nil {
		db.Close()
		return Repos{}, nil, fmt.Errorf("migrate: %w", err)
	}
	if n > 0 {
		logger.Info("applied migrations", "count", n)
	}
	return PostgresRepos(db), db, nil
}

// NewQueue builds the shared job queue from config.
func NewQueue(rdb *redis.Client, cfg *config.Config) *queue.Queue {
	return queue.New(rdb, cfg.Redis.QueueKey, queue.WithMaxAttempts(cfg.Worker.MaxAttempts))
}

// NewSQS builds an SQS client for the tracking transport.
func NewSQS(ctx context.Context, cfg config.TrackingConfig) (*sqs.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.SQSRegion != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.SQSRegion))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return sqs.NewFromConfig(awsCfg), nil
}

// ExportBucket returns the S3 export store, or nil when no bucket is
// configured.
func ExportBucket(ctx context.Context, cfg config.ExportConfig) (*storage.S3Store, error) {
	if cfg.S3Bucket == "" {
		return nil, nil
	}
	return storage.NewS3Store(ctx, cfg.S3Bucket, cfg.S3Region, cfg.S3Prefix)
}
