package main

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"nda-clarity/internal/backend"
	"nda-clarity/internal/config"
	"nda-clarity/internal/logger"
	"nda-clarity/internal/payment"
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

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := store.Migrate(ctx); err != nil {
		log.WithError(err).Fatal("migrate postgres")
	}

	blob, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL, cfg.MinioBucket)
	if err != nil {
		log.WithError(err).Fatal("connect minio")
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

	activities := &appTemporal.Activities{
		Backend:   backend.NewHTTPClient(cfg.BackendBaseURL, cfg.SubmitRPM),
		Processor: payment.NewHTTPProcessor(cfg.PaymentAPIBaseURL, cfg.PaymentPublishableKey),
		Blob:      blob,
		Store:     store,
	}

	w := worker.New(temporalClient, cfg.TemporalTaskQueue, worker.Options{})
	w.RegisterWorkflowWithOptions(appTemporal.ContractReviewWorkflow, workflow.RegisterOptions{Name: appTemporal.ContractReviewWorkflowName})
	w.RegisterActivity(activities.CreatePaymentIntentActivity)
	w.RegisterActivity(activities.ConfirmPaymentActivity)
	w.RegisterActivity(activities.RetrieveAnalysisActivity)
	w.RegisterActivity(activities.RecordTransitionActivity)
	w.RegisterActivity(activities.DiscardUploadActivity)

	log.Infof("worker running on task queue %s", cfg.TemporalTaskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.WithError(err).Fatal("worker stopped with error")
	}
}
