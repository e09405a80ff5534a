package worker

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/voice-clone-service/internal/runner"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// NatsNotifier publishes a GenerationCompletedEvent for every job outcome.
type NatsNotifier struct {
	natsConnection *nats.Conn
	subject        string
	log            *logger.Logger

	mu      sync.Mutex
	headers map[uuid.UUID]events.EventHeader
}

// NewNatsNotifier creates a notifier publishing to subject.
func NewNatsNotifier(natsConnection *nats.Conn, subject string, log *logger.Logger) *NatsNotifier {
	return &NatsNotifier{
		natsConnection: natsConnection,
		subject:        subject,
		log:            log,
		headers:        make(map[uuid.UUID]events.EventHeader),
	}
}

// track runs submit while holding the header table, so a job finishing
// before submit returns still finds its request header in Notify.
func (n *NatsNotifier) track(header events.EventHeader, submit func() (runner.Receipt, error)) (runner.Receipt, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	receipt, err := submit()
	if err != nil {
		return receipt, err
	}

	n.headers[receipt.JobID] = header

	return receipt, nil
}

// Notify implements runner.Notifier.
func (n *NatsNotifier) Notify(notification runner.Notification) {
	n.mu.Lock()
	header := n.headers[notification.JobID]
	delete(n.headers, notification.JobID)
	n.mu.Unlock()

	event := GenerationCompletedEvent{
		Header:     followUpHeader(header),
		JobID:      notification.JobID.String(),
		Status:     notification.Outcome.Status,
		OutputPath: notification.Outcome.OutputPath,
		Message:    notification.Outcome.Message,
		ElapsedMS:  notification.Elapsed().Milliseconds(),
	}

	err := n.publish(event)
	if err != nil {
		n.log.Error("Failed to publish outcome of job %s: %v", notification.JobID, err)

		return
	}

	n.log.Info("Published %s outcome of job %s to '%s'", event.Status, event.JobID, n.subject)
}

func (n *NatsNotifier) publish(event GenerationCompletedEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal completion event: %w", err)
	}

	err = n.natsConnection.Publish(n.subject, data)
	if err != nil {
		return fmt.Errorf("failed to publish completion event: %w", err)
	}

	return nil
}
