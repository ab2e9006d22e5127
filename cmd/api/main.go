package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"go.temporal.io/sdk/client"

	"nda-clarity/internal/api"
	"nda-clarity/internal/config"
	"nda-clarity/internal/logger"
	"nda-clarity/internal/storage"
	appTemporal "nda-clarity/internal/temporal"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		logrus.WithError(err).Fatal("init logger")
	}

	store, err := storage.NewPostgresStore(cfg.PostgresDSN)
	if err != nil {
		log.WithError(err).Fatal("connect postgres")
	}
	defer store.Close()

	blob, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL, cfg.MinioBucket)
	if err != nil {
		log.WithError(err).Fatal("connect minio")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		log.WithError(err).Fatal("postgres ping")
	}
	if err := store.Migrate(ctx); err != nil {
		log.WithError(err).Fatal("migrate postgres")
	}

	temporalClient, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
		Logger:    logger.NewTemporalAdapter(log),
	})
	if err != nil {
		log.WithError(err).Fatal("connect temporal")
	}
	defer temporalClient.Close()

	gateway := appTemporal.NewGateway(temporalClient, cfg.TemporalTaskQueue, cfg.WorkflowIDPrefix, appTemporal.SessionInput{
		SupportContact:    cfg.SupportContact,
		IdleTimeout:       cfg.SessionIdleTimeout(),
		SubmissionTimeout: cfg.SubmissionTimeout(),
		PaymentTimeout:    cfg.PaymentTimeout(),
		AnalysisTimeout:   cfg.AnalysisTimeout(),
	})

	h := api.NewHandler(cfg, log, gateway, store, blob)
	router := api.NewRouter(h)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Infof("api listening on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("http server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown failed")
	}
}
