// Package inferencetest provides a deterministic stand-in for the inference
// service, usable in process as a core.Synthesizer or over HTTP.
package inferencetest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sync"

	"github.com/book-expert/voice-clone-service/internal/core"
	"github.com/book-expert/voice-clone-service/internal/inference"
)

// DefaultSampleRate is the native output rate of the stand-in model.
const DefaultSampleRate = 44100

// Stage names one of the four synthesis stages.
type Stage string

const (
	StageEmbedding    Stage = "embedding"
	StageConditioning Stage = "conditioning"
	StageGenerate     Stage = "generate"
	StageDecode       Stage = "decode"
)

// ErrInjected is the default error returned by a failing stage.
var ErrInjected = errors.New("injected failure")

const (
	embeddingSize    = 8
	toneFrequency    = 220.0
	samplesPerCode   = 64
	outputAmplitude  = 0.4
	errorCodeStage   = "stage_failed"
	errorCodeRequest = "bad_request"
)

// Service is a fake synthesizer. The zero value is not usable; call New.
type Service struct {
	mu         sync.Mutex
	sampleRate int
	failures   map[Stage]error
	panics     map[Stage]bool
	calls      map[Stage]int
	gate       chan struct{}
	entered    chan struct{}
}

// New creates a Service producing audio at DefaultSampleRate.
func New() *Service {
	return &Service{
		sampleRate: DefaultSampleRate,
		failures:   make(map[Stage]error),
		panics:     make(map[Stage]bool),
		calls:      make(map[Stage]int),
	}
}

// SetSampleRate changes the rate of decoded waveforms.
func (s *Service) SetSampleRate(rate int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sampleRate = rate
}

// FailAt makes stage return err, or ErrInjected when err is nil.
func (s *Service) FailAt(stage Stage, err error) {
	if err == nil {
		err = ErrInjected
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.failures[stage] = err
}

// PanicAt makes stage panic.
func (s *Service) PanicAt(stage Stage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.panics[stage] = true
}

// HoldGenerate blocks every Generate call until release is called or the
// call's context ends. entered receives once per blocked call.
func (s *Service) HoldGenerate() (entered <-chan struct{}, release func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	gate := make(chan struct{})
	s.gate = gate
	s.entered = make(chan struct{}, 16)

	var once sync.Once

	return s.entered, func() { once.Do(func() { close(gate) }) }
}

// Calls reports how many times stage has been invoked.
func (s *Service) Calls(stage Stage) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls[stage]
}

func (s *Service) enter(stage Stage) error {
	s.mu.Lock()
	s.calls[stage]++
	failure := s.failures[stage]
	shouldPanic := s.panics[stage]
	s.mu.Unlock()

	if shouldPanic {
		panic(fmt.Sprintf("inferencetest: %s stage exploded", stage))
	}

	if failure != nil {
		return fmt.Errorf("%s: %w", stage, failure)
	}

	return nil
}

// MakeSpeakerEmbedding summarizes the audio into a fixed-size vector.
func (s *Service) MakeSpeakerEmbedding(_ context.Context, audio core.DecodedAudio) (core.Embedding, error) {
	err := s.enter(StageEmbedding)
	if err != nil {
		return nil, err
	}

	if len(audio.Samples) == 0 {
		return nil, inference.ErrEmptyAudio
	}

	embedding := make(core.Embedding, embeddingSize)
	for i, sample := range audio.Samples {
		embedding[i%embeddingSize] += float32(math.Abs(float64(sample)))
	}

	for i := range embedding {
		embedding[i] /= float32(len(audio.Samples))
	}

	return embedding, nil
}

// PrepareConditioning packs its inputs into a blob.
func (s *Service) PrepareConditioning(
	_ context.Context,
	text string,
	speaker core.Embedding,
	language string,
) (core.Conditioning, error) {
	err := s.enter(StageConditioning)
	if err != nil {
		return nil, err
	}

	blob, err := json.Marshal(inference.ConditioningRequest{
		Text:             text,
		SpeakerEmbedding: speaker,
		Language:         language,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to pack conditioning: %w", err)
	}

	return blob, nil
}

// Generate derives one code per conditioning byte, honouring HoldGenerate.
func (s *Service) Generate(ctx context.Context, conditioning core.Conditioning) (core.Codes, error) {
	err := s.enter(StageGenerate)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	gate, entered := s.gate, s.entered
	s.mu.Unlock()

	if gate != nil {
		entered <- struct{}{}

		select {
		case <-gate:
		case <-ctx.Done():
			return nil, fmt.Errorf("generation interrupted: %w", ctx.Err())
		}
	}

	codes := make(core.Codes, len(conditioning))
	for i, b := range conditioning {
		codes[len(codes)-1-i] = b
	}

	return codes, nil
}

// Decode renders a tone whose length is proportional to the code count.
func (s *Service) Decode(_ context.Context, codes core.Codes) (core.Waveform, error) {
	err := s.enter(StageDecode)
	if err != nil {
		return core.Waveform{}, err
	}

	s.mu.Lock()
	rate := s.sampleRate
	s.mu.Unlock()

	samples := make([]float32, len(codes)*samplesPerCode)
	for i := range samples {
		samples[i] = float32(outputAmplitude * math.Sin(2*math.Pi*toneFrequency*float64(i)/float64(rate)))
	}

	return core.Waveform{Samples: samples, SampleRate: rate}, nil
}

// Handler serves svc over the inference HTTP contract.
func Handler(svc core.Synthesizer) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("POST /v1/speaker/embedding", func(w http.ResponseWriter, r *http.Request) {
		var req inference.EmbeddingRequest
		if !readJSON(w, r, &req) {
			return
		}

		embedding, err := svc.MakeSpeakerEmbedding(r.Context(), core.DecodedAudio{
			Samples: req.Samples, SampleRate: req.SampleRate, Channels: 1,
		})
		respond(w, inference.EmbeddingResponse{Embedding: embedding}, err)
	})

	mux.HandleFunc("POST /v1/conditioning", func(w http.ResponseWriter, r *http.Request) {
		var req inference.ConditioningRequest
		if !readJSON(w, r, &req) {
			return
		}

		conditioning, err := svc.PrepareConditioning(r.Context(), req.Text, req.SpeakerEmbedding, req.Language)
		respond(w, inference.ConditioningResponse{Conditioning: conditioning}, err)
	})

	mux.HandleFunc("POST /v1/generate", func(w http.ResponseWriter, r *http.Request) {
		var req inference.GenerateRequest
		if !readJSON(w, r, &req) {
			return
		}

		codes, err := svc.Generate(r.Context(), req.Conditioning)
		respond(w, inference.GenerateResponse{Codes: codes}, err)
	})

	mux.HandleFunc("POST /v1/decode", func(w http.ResponseWriter, r *http.Request) {
		var req inference.DecodeRequest
		if !readJSON(w, r, &req) {
			return
		}

		waveform, err := svc.Decode(r.Context(), req.Codes)
		respond(w, inference.DecodeResponse{Samples: waveform.Samples, SampleRate: waveform.SampleRate}, err)
	})

	return mux
}

func readJSON(w http.ResponseWriter, r *http.Request, target any) bool {
	err := json.NewDecoder(r.Body).Decode(target)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, inference.ErrorResponse{Detail: err.Error(), ErrorCode: errorCodeRequest})

		return false
	}

	return true
}

func respond(w http.ResponseWriter, payload any, err error) {
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, inference.ErrorResponse{Detail: err.Error(), ErrorCode: errorCodeStage})

		return
	}

	writeJSON(w, http.StatusOK, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
