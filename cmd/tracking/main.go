// Command tracking serves only the open, click and unsubscribe endpoints so
// they can scale apart from the API.
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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ignite/mailcraft/internal/api"
	"github.com/ignite/mailcraft/internal/app"
	"github.com/ignite/mailcraft/internal/pkg/httputil"
	"github.com/ignite/mailcraft/internal/pkg/logger"
	"github.com/ignite/mailcraft/internal/tracking"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config")
	flag.Parse()

	if err := run(*configPath); err != nil {
		logger.Error("tracking exited", "error", err)
		logger.Sync()
		os.Exit(1)
	}
}

func run(configPath string) error {
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

	health := api.NewHealthChecker(db, rdb, nil, q)
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httputil.NotFound(w, "route not found")
	})
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Get("/health", health.HandleHealth)
	r.Mount("/t", tracking.NewHandler(svc.Signer, svc.Engagement, pub, geo).Routes())

	srv := api.NewServer(cfg.Server, r)
	errCh := make(chan error, 1)
	go func() {
		addr := cfg.Server.TrackingAddress()
		logger.Info("tracking listening", "addr", addr, "transport", cfg.Tracking.Transport)
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
