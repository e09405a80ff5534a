// Package worker exposes the job runner over NATS request/reply.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/voice-clone-service/internal/catalog"
	"github.com/book-expert/voice-clone-service/internal/core"
	"github.com/book-expert/voice-clone-service/internal/runner"
	"github.com/nats-io/nats.go"
)

// ErrNoCatalog is returned for a voice name when the worker has no catalog.
var ErrNoCatalog = errors.New("voice names are not supported without a presets catalog")

// Submitter starts generation jobs.
type Submitter interface {
	Submit(req core.GenerationRequest) (runner.Receipt, error)
}

// VoiceCatalog resolves preset names to sample paths.
type VoiceCatalog interface {
	Refresh() error
	Resolve(name string) (string, error)
}

// NatsWorker listens for generation requests on a NATS subject and replies
// with whether each one was accepted.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	submitter      Submitter
	voices         VoiceCatalog
	notifier       *NatsNotifier
	log            *logger.Logger
}

// NewNatsWorker creates a worker. voices may be nil, in which case requests
// must carry a voice path. notifier may be nil, in which case completion
// events carry a fresh workflow id.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	submitter Submitter,
	voices VoiceCatalog,
	notifier *NatsNotifier,
	log *logger.Logger,
) *NatsWorker {
	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		submitter:      submitter,
		voices:         voices,
		notifier:       notifier,
		log:            log,
	}
}

// Run subscribes and serves requests until ctx is done, then drains.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.subject, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	w.log.Info("Listening for generation requests on '%s'", w.subject)

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	var event GenerationRequestedEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		w.log.Error("Failed to unmarshal generation request: %v", err)
		w.reply(msg, rejection(events.EventHeader{}, CodeMalformed, err))

		return
	}

	req, err := w.buildRequest(event)
	if err != nil {
		w.log.Warn("Could not resolve voice for workflow %s: %v", event.Header.WorkflowID, err)
		w.reply(msg, rejection(event.Header, CodeUnknownVoice, err))

		return
	}

	receipt, err := w.submit(event.Header, req)
	if err != nil {
		w.log.Warn("Submission for workflow %s rejected: %v", event.Header.WorkflowID, err)
		w.reply(msg, rejection(event.Header, rejectionCode(err), err))

		return
	}

	w.log.Info("Accepted job %s for workflow %s", receipt.JobID, event.Header.WorkflowID)
	w.reply(msg, &SubmissionReplyEvent{
		Header:   followUpHeader(event.Header),
		Accepted: true,
		JobID:    receipt.JobID.String(),
	})
}

func (w *NatsWorker) buildRequest(event GenerationRequestedEvent) (core.GenerationRequest, error) {
	req := core.GenerationRequest{
		VoicePath: event.VoicePath,
		Text:      event.Text,
		OutputDir: event.OutputDir,
		Timeout:   time.Duration(event.TimeoutSeconds) * time.Second,
	}

	if req.VoicePath != "" || event.VoiceName == "" {
		return req, nil
	}

	if w.voices == nil {
		return req, ErrNoCatalog
	}

	refreshErr := w.voices.Refresh()
	if refreshErr != nil {
		return req, fmt.Errorf("failed to refresh voice catalog: %w", refreshErr)
	}

	path, err := w.voices.Resolve(event.VoiceName)
	if err != nil {
		return req, err
	}

	req.VoicePath = path

	return req, nil
}

func (w *NatsWorker) submit(header events.EventHeader, req core.GenerationRequest) (runner.Receipt, error) {
	if w.notifier == nil {
		return w.submitter.Submit(req)
	}

	return w.notifier.track(header, func() (runner.Receipt, error) {
		return w.submitter.Submit(req)
	})
}

func (w *NatsWorker) reply(msg *nats.Msg, replyEvent *SubmissionReplyEvent) {
	replyData, err := json.Marshal(replyEvent)
	if err != nil {
		w.log.Error("Failed to marshal reply event: %v", err)

		return
	}

	err = msg.Respond(replyData)
	if err != nil {
		w.log.Error("Failed to publish reply event: %v", err)
	}
}

func rejection(header events.EventHeader, code string, err error) *SubmissionReplyEvent {
	return &SubmissionReplyEvent{
		Header: followUpHeader(header),
		Code:   code,
		Reason: err.Error(),
	}
}

func rejectionCode(err error) string {
	switch {
	case errors.Is(err, runner.ErrBusy):
		return CodeBusy
	case errors.Is(err, runner.ErrClosed):
		return CodeClosed
	case errors.Is(err, catalog.ErrUnknownVoice), errors.Is(err, catalog.ErrCustomVoice):
		return CodeUnknownVoice
	default:
		return CodeInvalidRequest
	}
}
