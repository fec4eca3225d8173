package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/mailcraft/internal/app"
	"github.com/ignite/mailcraft/internal/compose"
	"github.com/ignite/mailcraft/internal/pkg/distlock"
	"github.com/ignite/mailcraft/internal/pkg/logger"
	"github.com/ignite/mailcraft/internal/queue"
	"github.com/ignite/mailcraft/internal/sender"
	"github.com/ignite/mailcraft/internal/tracking"
	"github.com/ignite/mailcraft/internal/worker"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config")
	noScheduler := flag.Bool("no-scheduler", false, "only drain the job queue; do not schedule sequence steps")
	flag.Parse()

	if err := run(*configPath, !*noScheduler); err != nil {
		logger.Error("worker exited", "error", err)
		logger.Sync()
		os.Exit(1)
	}
}

func run(configPath string, schedule bool) error {
	cfg, err := app.LoadConfig(configPath)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb, err := app.OpenRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()

	repos, db, err := app.OpenRepos(ctx, cfg.Database)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	q := app.NewQueue(rdb, cfg)
	svc := app.NewServices(cfg, repos, q)

	snd, err := sender.New(ctx, cfg.Sending)
	if err != nil {
		return err
	}
	logger.Info("worker starting", "provider", snd.Name(), "concurrency", cfg.Worker.Concurrency)

	pool := worker.NewPool(q, cfg.Worker.Concurrency)
	pool.Handle(compose.JobSendEmail, worker.NewSendHandler(snd, queue.NewDedupe(rdb, cfg.Redis.QueueKey), svc.Campaigns).Handle)
	pool.Handle(tracking.JobType, worker.TrackingHandler(svc.Engagement))
	pool.Start()

	maint := worker.NewMaintenance(q, 5*time.Second)
	maint.Start(ctx)

	var sched *worker.SequenceScheduler
	if schedule {
		interval := cfg.Worker.PollInterval()
		lock := distlock.New(rdb, db, "mailcraft:sequence-scheduler", 2*interval)
		sched = worker.NewSequenceScheduler(svc.Sequences, svc.Contacts, svc.Brands, svc.Composer, q, lock, interval, cfg.Worker.BatchSize)
		sched.Start()
	}

	consumerDone := make(chan struct{})
	if cfg.Tracking.Transport == "sqs" {
		client, err := app.NewSQS(ctx, cfg.Tracking)
		if err != nil {
			return err
		}
		go func() {
			defer close(consumerDone)
			tracking.NewConsumer(client, cfg.Tracking.SQSURL, svc.Engagement).Run(ctx)
		}()
	} else {
		close(consumerDone)
	}

	<-ctx.Done()
	logger.Info("worker shutting down")

	if sched != nil {
		sched.Stop()
	}
	maint.Stop()
	pool.Stop()
	<-consumerDone

	stats := pool.Stats()
	logger.Info("worker stopped", "processed", stats["processed"], "retried", stats["retried"], "dead", stats["dead"])
	return nil
}
