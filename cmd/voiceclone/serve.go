package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/voice-clone-service/internal/catalog"
	"github.com/book-expert/voice-clone-service/internal/httpapi"
	"github.com/book-expert/voice-clone-service/internal/inference"
	"github.com/book-expert/voice-clone-service/internal/job"
	"github.com/book-expert/voice-clone-service/internal/objectstore"
	"github.com/book-expert/voice-clone-service/internal/runner"
	"github.com/book-expert/voice-clone-service/internal/worker"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
)

const (
	healthCheckTimeout = 10 * time.Second
	shutdownTimeout    = 30 * time.Second
	natsClientName     = "voiceclone"
)

type serveOptions struct {
	httpAddr  string
	noArchive bool
}

func newServeCommand(a *app) *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept generation requests over NATS",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.httpAddr, "http", "", "Also serve the HTTP API on this address, e.g. :8080")
	cmd.Flags().BoolVar(&opts.noArchive, "no-archive", false, "Do not copy outputs into the NATS object store")

	return cmd
}

func (a *app) serve(ctx context.Context, opts serveOptions) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	natsConnection, err := nats.Connect(a.cfg.NATS.URL, nats.Name(natsClientName))
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", a.cfg.NATS.URL, err)
	}
	defer natsConnection.Close()

	voices, err := catalog.New(a.presetsDir())
	if err != nil {
		return err
	}

	client := inference.NewHTTPClient(a.cfg.Inference.ServiceURL, a.cfg.InferenceTimeout())
	a.checkInference(ctx, client)

	natsNotifier := worker.NewNatsNotifier(natsConnection, a.cfg.NATS.OutcomeSubject, a.log)
	recorder := &httpapi.OutcomeRecorder{}

	var notifier runner.Notifier = runner.Fanout{natsNotifier, recorder}

	if !opts.noArchive {
		notifier, err = a.withArchive(natsConnection, notifier)
		if err != nil {
			return err
		}
	}

	generator := job.NewGenerator(a.newDecoder(), client, a.log, a.generatorOptions()...)
	jobRunner := runner.New(generator, notifier, a.log, runner.Defaults{
		OutputDir: a.outputDir(),
		Timeout:   a.transcodeTimeout(),
	})

	if opts.httpAddr != "" {
		api := httpapi.NewApp(httpapi.NewHandler(jobRunner, voices, recorder, a.log))

		go func() {
			listenErr := api.Listen(opts.httpAddr)
			if listenErr != nil {
				a.log.Error("HTTP API stopped: %v", listenErr)
			}
		}()

		defer func() {
			shutdownErr := api.ShutdownWithTimeout(shutdownTimeout)
			if shutdownErr != nil {
				a.log.Error("Failed to stop HTTP API: %v", shutdownErr)
			}
		}()

		a.log.Info("HTTP API listening on %s", opts.httpAddr)
	}

	natsWorker := worker.NewNatsWorker(natsConnection, a.cfg.NATS.RequestSubject, jobRunner, voices, natsNotifier, a.log)

	a.log.System("Voice clone service started. Presets: %s, outputs: %s", voices.Dir(), a.outputDir())

	runErr := natsWorker.Run(ctx)

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	closeErr := jobRunner.Close(closeCtx)

	a.log.System("Voice clone service stopped.")

	return errors.Join(runErr, closeErr)
}

func (a *app) withArchive(natsConnection *nats.Conn, next runner.Notifier) (runner.Notifier, error) {
	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	store, err := objectstore.New(jetstreamContext, a.cfg.NATS.OutputBucket)
	if err != nil {
		return nil, err
	}

	a.log.Info("Archiving outputs to bucket '%s'", store.Bucket())

	return objectstore.NewArchiver(store, next, a.log), nil
}

// checkInference only warns: the service may come up after the worker.
func (a *app) checkInference(ctx context.Context, client *inference.HTTPClient) {
	healthCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	err := client.HealthCheck(healthCtx)
	if err != nil {
		a.log.Warn("Inference service is not healthy yet: %v", err)

		return
	}

	a.log.Info("Inference service at %s is healthy", a.cfg.Inference.ServiceURL)
}
