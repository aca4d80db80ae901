package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/robfig/cron/v3"

	"github.com/anujtewari17/iaqualink-spa-control/config"
	"github.com/anujtewari17/iaqualink-spa-control/internal/api"
	"github.com/anujtewari17/iaqualink-spa-control/internal/aqualink"
	"github.com/anujtewari17/iaqualink-spa-control/internal/auth"
	"github.com/anujtewari17/iaqualink-spa-control/internal/db"
	"github.com/anujtewari17/iaqualink-spa-control/internal/geo"
	"github.com/anujtewari17/iaqualink-spa-control/internal/notification"
	"github.com/anujtewari17/iaqualink-spa-control/internal/reservation"
	"github.com/anujtewari17/iaqualink-spa-control/internal/session"
	"github.com/anujtewari17/iaqualink-spa-control/internal/store"
)

func main() {
	logger := log.New(os.Stdout, "spa-gateway ", log.LstdFlags)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	var webpushOptions *webpush.Options
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
	} else {
		logger.Println("VAPID keys not configured; notifications will be logged only")
	}

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)

	loc := cfg.TimeLocation()

	var reservations *reservation.Store
	if cfg.Calendar.FeedURL != "" {
		reservations = reservation.NewStore(
			cfg.Calendar.FeedURL,
			cfg.Calendar.RefreshInterval,
			*cfg.Access.CheckinHour,
			*cfg.Access.CheckoutHour,
			loc,
		)
		go reservations.Run(ctx)
	} else {
		logger.Println("no calendar feed configured; only the admin key grants access")
	}

	validator := auth.NewValidator(cfg.Access.AdminKey, reservations)
	gate := geo.NewGate(cfg.Location.Allowed, cfg.Location.RadiusKM)
	spa := aqualink.NewClient(&cfg.Aqualink)

	workerPool := notification.NewWorkerPool(cfg.WorkerPool.Size, appStore, webpushOptions)
	workerPool.Start(ctx)

	usage := session.NewUsageLogger(appStore)
	coordinator := session.NewCoordinator(spa, workerPool, usage, reservations,
		session.WithPacing(cfg.Aqualink.PacingDelay))

	// Nightly safety net, independent of the runtime timers.
	nightly := cron.New(cron.WithLocation(loc))
	if _, err := nightly.AddFunc(cfg.Shutdown.NightlySpec, coordinator.NightlyShutdown); err != nil {
		logger.Fatalf("invalid nightly shutdown schedule %q: %v", cfg.Shutdown.NightlySpec, err)
	}
	nightly.Start()

	handler := api.NewHandler(appStore, spa, coordinator, reservations, gate, webpushOptions, cfg.Aqualink.SettleDelay)
	router := api.NewRouter(handler, validator, api.RouterConfig{
		RateLimitPerSec: cfg.Server.RateLimitPerSec,
		RateLimitBurst:  cfg.Server.RateLimitBurst,
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	nightly.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}
