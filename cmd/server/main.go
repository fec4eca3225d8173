package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/mailcraft/internal/api"
	"github.com/ignite/mailcraft/internal/app"
	"github.com/ignite/mailcraft/internal/auth"
	"github.com/ignite/mailcraft/internal/pkg/logger"
	"github.com/ignite/mailcraft/internal/tracking"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config")
	memory := flag.Bool("memory", false, "use in-memory repositories (development only)")
	flag.Parse()

	if err := run(*configPath, *memory); err != nil {
		logger.Error("server exited", "error", err)
		logger.Sync()
		os.Exit(1)
	}
}

func run(configPath string, memory bool) error {
	cfg, err := app.LoadConfig(configPath)
	if err != nil {
		return err
	}
	defer logger.Sync()
	if memory {
		cfg.Database.Memory = true
	}

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

	var pub tracking.Publisher = tracking.NewQueuePublisher(q)
	if cfg.Tracking.Transport == "sqs" {
		client, err := app.NewSQS(ctx, cfg.Tracking)
		if err != nil {
			return err
		}
		pub = tracking.NewSQSPublisher(client, cfg.Tracking.SQSURL)
	}

	var geo tracking.Locator
	if cfg.Tracking.GeoIPPath != "" {
		g, err := tracking.OpenGeoIP(cfg.Tracking.GeoIPPath)
		if err != nil {
			logger.Warn("geoip disabled", "path", cfg.Tracking.GeoIPPath, "error", err)
		} else {
			defer g.Close()
			geo = g
		}
	}

	var bucket api.BucketPinger
	if b, err := app.ExportBucket(ctx, cfg.Export); err != nil {
		logger.Warn("export bucket unavailable", "error", err)
	} else if b != nil {
		bucket = b
	}

	deps := api.Deps{
		Config:   cfg,
		Services: svc,
		Tracking: tracking.NewHandler(svc.Signer, svc.Engagement, pub, geo).Routes(),
		Health:   api.NewHealthChecker(db, rdb, bucket, q),
	}
	if cfg.Auth.GoogleEnabled() {
		deps.Google = auth.NewGoogle(cfg.Auth, svc.Accounts.LoginGoogle)
		logger.Info("google sign-in enabled", "callback", cfg.Auth.GoogleRedirectURL)
	}

	srv := api.NewServer(cfg.Server, api.NewRouter(deps))
	errCh := make(chan error, 1)
	go func() {
		addr := cfg.Server.Address()
		logger.Info("api listening", "addr", addr, "env", cfg.Env, "tracking", cfg.Tracking.Transport)
		if err := srv.ListenAndServe(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
