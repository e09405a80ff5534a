// Package httpapi serves a small HTTP control surface for the job runner.
package httpapi

import (
	"errors"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-clone-service/internal/catalog"
	"github.com/book-expert/voice-clone-service/internal/core"
	"github.com/book-expert/voice-clone-service/internal/runner"
	"github.com/gofiber/fiber/v2"
)

// Submitter starts generation jobs.
type Submitter interface {
	Submit(req core.GenerationRequest) (runner.Receipt, error)
}

// VoiceCatalog lists and resolves voice presets.
type VoiceCatalog interface {
	Refresh() error
	Names() []string
	Entries() map[string]catalog.Entry
	Resolve(name string) (string, error)
}

// JobRequest is the body of POST /jobs.
type JobRequest struct {
	VoicePath      string `json:"voice_path"`
	VoiceName      string `json:"voice_name"`
	Text           string `json:"text"`
	OutputDir      string `json:"output_dir"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// JobResponse answers POST /jobs.
type JobResponse struct {
	JobID string `json:"job_id,omitempty"`
	Error string `json:"error,omitempty"`
}

// EstimateRequest is the body of POST /estimate.
type EstimateRequest struct {
	Text string `json:"text"`
}

// EstimateResponse answers POST /estimate.
type EstimateResponse struct {
	Units        int  `json:"units"`
	MaxUnits     int  `json:"max_units"`
	ExceedsLimit bool `json:"exceeds_limit"`
}

// Voice is one entry of GET /voices.
type Voice struct {
	Name string `json:"name"`
	Path string `json:"path,omitempty"`
}

// OutcomeResponse describes the most recent finished job.
type OutcomeResponse struct {
	JobID      string         `json:"job_id"`
	Status     core.JobStatus `json:"status"`
	OutputPath string         `json:"output_path,omitempty"`
	Message    string         `json:"message,omitempty"`
	FinishedAt time.Time      `json:"finished_at"`
}

// OutcomeRecorder keeps the latest notification. It is a runner.Notifier.
type OutcomeRecorder struct {
	mu   sync.RWMutex
	last *runner.Notification
}

// Notify implements runner.Notifier.
func (r *OutcomeRecorder) Notify(n runner.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.last = &n
}

// Last returns the latest notification, if any.
func (r *OutcomeRecorder) Last() (runner.Notification, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.last == nil {
		return runner.Notification{}, false
	}

	return *r.last, true
}

// Handler bundles dependencies for the HTTP routes.
type Handler struct {
	submitter Submitter
	voices    VoiceCatalog
	outcomes  *OutcomeRecorder
	log       *logger.Logger
}

// NewHandler creates a Handler. outcomes may be nil to disable GET /jobs/last.
func NewHandler(submitter Submitter, voices VoiceCatalog, outcomes *OutcomeRecorder, log *logger.Logger) *Handler {
	return &Handler{submitter: submitter, voices: voices, outcomes: outcomes, log: log}
}

// NewApp creates a fiber app with the handler's routes registered.
func NewApp(h *Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "voiceclone",
		DisableStartupMessage: true,
	})

	h.Register(app)

	return app
}

// Register registers routes to app.
func (h *Handler) Register(app *fiber.App) {
	app.Get("/health", h.health)
	app.Get("/voices", h.listVoices)
	app.Post("/estimate", h.estimate)
	app.Post("/jobs", h.submitJob)
	app.Get("/jobs/last", h.lastOutcome)
}

func (h *Handler) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *Handler) listVoices(c *fiber.Ctx) error {
	err := h.voices.Refresh()
	if err != nil {
		h.log.Error("Failed to refresh voice catalog: %v", err)

		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	entries := h.voices.Entries()
	voices := make([]Voice, 0, len(entries))

	for _, name := range h.voices.Names() {
		voices = append(voices, Voice{Name: name, Path: entries[name].Path})
	}

	return c.JSON(voices)
}

func (h *Handler) estimate(c *fiber.Ctx) error {
	var req EstimateRequest

	err := c.BodyParser(&req)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	return c.JSON(EstimateResponse{
		Units:        runner.EstimateCost(req.Text),
		MaxUnits:     runner.ModelMaxUnits,
		ExceedsLimit: runner.ExceedsModelLimit(req.Text),
	})
}

func (h *Handler) submitJob(c *fiber.Ctx) error {
	var body JobRequest

	err := c.BodyParser(&body)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(JobResponse{Error: err.Error()})
	}

	voicePath := body.VoicePath
	if voicePath == "" && body.VoiceName != "" {
		voicePath, err = h.resolve(body.VoiceName)
		if errors.Is(err, catalog.ErrCustomVoice) {
			return c.Status(fiber.StatusBadRequest).JSON(JobResponse{Error: err.Error()})
		}

		if err != nil {
			return c.Status(fiber.StatusNotFound).JSON(JobResponse{Error: err.Error()})
		}
	}

	receipt, err := h.submitter.Submit(core.GenerationRequest{
		VoicePath: voicePath,
		Text:      body.Text,
		OutputDir: body.OutputDir,
		Timeout:   time.Duration(body.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		h.log.Warn("HTTP submission rejected: %v", err)

		return c.Status(statusFor(err)).JSON(JobResponse{Error: err.Error()})
	}

	return c.Status(fiber.StatusAccepted).JSON(JobResponse{JobID: receipt.JobID.String()})
}

func (h *Handler) resolve(name string) (string, error) {
	err := h.voices.Refresh()
	if err != nil {
		return "", err
	}

	return h.voices.Resolve(name)
}

func (h *Handler) lastOutcome(c *fiber.Ctx) error {
	if h.outcomes == nil {
		return fiber.NewError(fiber.StatusNotFound, "outcome tracking disabled")
	}

	last, ok := h.outcomes.Last()
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "no job has finished yet")
	}

	return c.JSON(OutcomeResponse{
		JobID:      last.JobID.String(),
		Status:     last.Outcome.Status,
		OutputPath: last.Outcome.OutputPath,
		Message:    last.Outcome.Message,
		FinishedAt: last.FinishedAt,
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, runner.ErrBusy):
		return fiber.StatusConflict
	case errors.Is(err, runner.ErrClosed):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusBadRequest
	}
}
