package worker

import (
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/voice-clone-service/internal/core"
	"github.com/google/uuid"
)

// Rejection codes carried by SubmissionReplyEvent.
const (
	CodeBusy           = "busy"
	CodeInvalidRequest = "invalid_request"
	CodeUnknownVoice   = "unknown_voice"
	CodeClosed         = "closed"
	CodeMalformed      = "malformed"
)

// GenerationRequestedEvent asks the service to clone a voice. Exactly one of
// VoicePath or VoiceName should be set; VoicePath wins when both are.
type GenerationRequestedEvent struct {
	Header         events.EventHeader `json:"header"`
	VoicePath      string             `json:"voice_path,omitempty"`
	VoiceName      string             `json:"voice_name,omitempty"`
	Text           string             `json:"text"`
	OutputDir      string             `json:"output_dir,omitempty"`
	TimeoutSeconds int                `json:"timeout_seconds,omitempty"`
}

// SubmissionReplyEvent answers a GenerationRequestedEvent synchronously.
type SubmissionReplyEvent struct {
	Header   events.EventHeader `json:"header"`
	Accepted bool               `json:"accepted"`
	JobID    string             `json:"job_id,omitempty"`
	Code     string             `json:"code,omitempty"`
	Reason   string             `json:"reason,omitempty"`
}

// GenerationCompletedEvent reports the terminal outcome of an accepted job.
type GenerationCompletedEvent struct {
	Header     events.EventHeader `json:"header"`
	JobID      string             `json:"job_id"`
	Status     core.JobStatus     `json:"status"`
	OutputPath string             `json:"output_path,omitempty"`
	Message    string             `json:"message,omitempty"`
	ElapsedMS  int64              `json:"elapsed_ms"`
}

// followUpHeader keeps the workflow identity of a request while giving the
// new event its own id and timestamp.
func followUpHeader(request events.EventHeader) events.EventHeader {
	header := request
	header.EventID = uuid.NewString()
	header.Timestamp = time.Now()

	if header.WorkflowID == "" {
		header.WorkflowID = uuid.NewString()
	}

	return header
}
