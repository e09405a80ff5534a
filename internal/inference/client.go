// Package inference talks to the external speech synthesis service.
//
// The service exposes the four model stages as separate JSON endpoints so
// that the caller controls sequencing and can abandon a job between stages.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/book-expert/voice-clone-service/internal/core"
)

// API endpoints and paths.
const (
	apiSpeakerEmbedding = "/v1/speaker/embedding"
	apiConditioning     = "/v1/conditioning"
	apiGenerate         = "/v1/generate"
	apiDecode           = "/v1/decode"
	apiHealth           = "/health"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	contentTypeJSON   = "application/json"
)

// Error messages.
const (
	errFmtServiceErrorWithCode = "%s returned %s: %s (code: %s)"
	errFmtServiceNonOKStatus   = "%s returned %s, body: %s"
	errFmtEmptyField           = "%s returned no %s"
)

// DefaultLanguage is used when a conditioning request carries no language.
const DefaultLanguage = "en-us"

var (
	// ErrService wraps every failure reported by, or while reaching, the inference service.
	ErrService = errors.New("inference service error")
	// ErrEmptyAudio is returned when the speaker embedding is requested for no samples.
	ErrEmptyAudio = errors.New("cannot embed empty audio")
)

// HTTPClient implements core.Synthesizer against the inference HTTP service.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
}

// EmbeddingRequest is the payload of the speaker embedding stage.
type EmbeddingRequest struct {
	Samples    []float32 `json:"samples"`
	SampleRate int       `json:"sample_rate"`
}

// EmbeddingResponse carries the speaker embedding.
type EmbeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

// ConditioningRequest is the payload of the conditioning stage.
type ConditioningRequest struct {
	Text             string    `json:"text"`
	SpeakerEmbedding []float32 `json:"speaker_embedding"`
	Language         string    `json:"language"`
}

// ConditioningResponse carries the opaque conditioning blob, base64 encoded on the wire.
type ConditioningResponse struct {
	Conditioning []byte `json:"conditioning"`
}

// GenerateRequest is the payload of the generation stage.
type GenerateRequest struct {
	Conditioning []byte `json:"conditioning"`
}

// GenerateResponse carries the raw model codes.
type GenerateResponse struct {
	Codes []byte `json:"codes"`
}

// DecodeRequest is the payload of the codes-to-waveform stage.
type DecodeRequest struct {
	Codes []byte `json:"codes"`
}

// DecodeResponse carries the synthesized waveform.
type DecodeResponse struct {
	Samples    []float32 `json:"samples"`
	SampleRate int       `json:"sample_rate"`
}

// ErrorResponse is the structured error body returned by the service.
type ErrorResponse struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code,omitempty"`
}

// NewHTTPClient creates a client for the service at baseURL, e.g.
// "http://localhost:8000". A zero timeout leaves requests bounded only by
// their context; generation of long texts can legitimately take minutes.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// MakeSpeakerEmbedding derives a speaker representation from decoded audio.
func (c *HTTPClient) MakeSpeakerEmbedding(ctx context.Context, audio core.DecodedAudio) (core.Embedding, error) {
	if len(audio.Samples) == 0 {
		return nil, ErrEmptyAudio
	}

	var resp EmbeddingResponse

	err := c.postJSON(ctx, apiSpeakerEmbedding, EmbeddingRequest{
		Samples:    audio.Samples,
		SampleRate: audio.SampleRate,
	}, &resp)
	if err != nil {
		return nil, err
	}

	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("%w: "+errFmtEmptyField, ErrService, apiSpeakerEmbedding, "embedding")
	}

	return resp.Embedding, nil
}

// PrepareConditioning combines text, speaker and language into a generation input.
func (c *HTTPClient) PrepareConditioning(
	ctx context.Context,
	text string,
	speaker core.Embedding,
	language string,
) (core.Conditioning, error) {
	if language == "" {
		language = DefaultLanguage
	}

	var resp ConditioningResponse

	err := c.postJSON(ctx, apiConditioning, ConditioningRequest{
		Text:             text,
		SpeakerEmbedding: speaker,
		Language:         language,
	}, &resp)
	if err != nil {
		return nil, err
	}

	if len(resp.Conditioning) == 0 {
		return nil, fmt.Errorf("%w: "+errFmtEmptyField, ErrService, apiConditioning, "conditioning")
	}

	return resp.Conditioning, nil
}

// Generate runs the model on prepared conditioning.
func (c *HTTPClient) Generate(ctx context.Context, conditioning core.Conditioning) (core.Codes, error) {
	var resp GenerateResponse

	err := c.postJSON(ctx, apiGenerate, GenerateRequest{Conditioning: conditioning}, &resp)
	if err != nil {
		return nil, err
	}

	if len(resp.Codes) == 0 {
		return nil, fmt.Errorf("%w: "+errFmtEmptyField, ErrService, apiGenerate, "codes")
	}

	return resp.Codes, nil
}

// Decode turns model codes into a waveform at the model's native rate.
func (c *HTTPClient) Decode(ctx context.Context, codes core.Codes) (core.Waveform, error) {
	var resp DecodeResponse

	err := c.postJSON(ctx, apiDecode, DecodeRequest{Codes: codes}, &resp)
	if err != nil {
		return core.Waveform{}, err
	}

	if resp.SampleRate <= 0 {
		return core.Waveform{}, fmt.Errorf("%w: %s returned sample rate %d", ErrService, apiDecode, resp.SampleRate)
	}

	return core.Waveform{Samples: resp.Samples, SampleRate: resp.SampleRate}, nil
}

// HealthCheck verifies that the service is running and operational.
func (c *HTTPClient) HealthCheck(ctx context.Context) error {
	url := c.baseURL + apiHealth

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: health check failed for service at %s: %w", ErrService, c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health check failed with status: %s", ErrService, resp.Status)
	}

	return nil
}

func (c *HTTPClient) postJSON(ctx context.Context, path string, payload, target any) error {
	requestBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", path, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(requestBody))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", path, err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, contentTypeJSON)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: failed to send request to %s%s: %w", ErrService, c.baseURL, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return parseErrorResponse(path, resp)
	}

	decodeErr := json.NewDecoder(resp.Body).Decode(target)
	if decodeErr != nil {
		return fmt.Errorf("%w: failed to decode %s response: %w", ErrService, path, decodeErr)
	}

	return nil
}

// parseErrorResponse decodes the structured error body, falling back to the
// raw body so the diagnostic is never lost.
func parseErrorResponse(path string, resp *http.Response) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return fmt.Errorf("%w: "+errFmtServiceNonOKStatus, ErrService, path, resp.Status, readErr.Error())
	}

	var errorResp ErrorResponse

	err := json.Unmarshal(body, &errorResp)
	if err == nil && errorResp.Detail != "" {
		return fmt.Errorf("%w: "+errFmtServiceErrorWithCode,
			ErrService, path, resp.Status, errorResp.Detail, errorResp.ErrorCode)
	}

	return fmt.Errorf("%w: "+errFmtServiceNonOKStatus, ErrService, path, resp.Status, strings.TrimSpace(string(body)))
}
