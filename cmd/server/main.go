package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kitarcycle/internal/config"
	"kitarcycle/internal/handler"
	"kitarcycle/internal/infrastructure/cache"
	"kitarcycle/internal/infrastructure/database"
	"kitarcycle/internal/infrastructure/logging"
	"kitarcycle/internal/infrastructure/mq"
	"kitarcycle/internal/infrastructure/push"
	"kitarcycle/internal/job"
	"kitarcycle/internal/notify"
	"kitarcycle/internal/service"
	"kitarcycle/pkg/idgen"

	log "github.com/sirupsen/logrus"
)

func main() {
	defaultPath := os.Getenv("KITARCYCLE_CONFIG")
	if defaultPath == "" {
		defaultPath = "config/config.yaml"
	}
	configPath := flag.String("config", defaultPath, "path to the YAML config file")
	workerID := flag.Int64("worker-id", 1, "snowflake worker id of this instance")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logCloser, err := logging.Setup(&cfg.Log)
	if err != nil {
		log.Fatalf("setup logging: %v", err)
	}
	defer logCloser.Close()

	if err := idgen.Init(*workerID); err != nil {
		log.Fatalf("init id generator: %v", err)
	}

	db, err := database.Open(&cfg.Database)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	if err := database.Seed(db, &cfg.Seed); err != nil {
		log.Fatalf("seed catalog: %v", err)
	}

	redisClient, err := cache.InitRedis(&cfg.Redis)
	if err != nil {
		log.Fatalf("init redis: %v", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	producer, err := mq.InitKafka(&cfg.Kafka)
	if err != nil {
		log.Fatalf("init kafka: %v", err)
	}
	defer producer.Close()

	var gateway notify.Gateway
	if cfg.FCM.Enabled {
		gateway = push.NewFCMGateway(db, &cfg.FCM, nil)
		log.WithField("endpoint", cfg.FCM.Endpoint).Info("fcm push enabled")
	} else {
		log.Info("fcm disabled, notifications are in-app only")
	}
	dispatcher := notify.NewDispatcher(db, gateway, cfg)
	dispatcher.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if producer != nil {
		outboxSender := job.NewOutboxSender(db, producer, cfg)
		go outboxSender.Start(ctx)
	}
	if gateway != nil {
		retryJob := job.NewNotificationRetryJob(db, dispatcher, cfg)
		go retryJob.Start(ctx)
	}
	tierJob := job.NewTierReconcileJob(service.NewTierService(db, redisClient, cfg, dispatcher), cfg)
	go tierJob.Start(ctx)

	router := handler.SetupRouter(db, redisClient, cfg, dispatcher)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.Server.Port).Info("server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("http shutdown")
	}
	if err := dispatcher.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("notification dispatcher did not drain")
	}

	log.Info("server stopped")
}
