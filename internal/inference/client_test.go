package inference_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/book-expert/voice-clone-service/internal/core"
	"github.com/book-expert/voice-clone-service/internal/inference"
	"github.com/book-expert/voice-clone-service/internal/inference/inferencetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func voiceSample() core.DecodedAudio {
	samples := make([]float32, 2400)
	for i := range samples {
		samples[i] = float32(i%100) / 100
	}

	return core.DecodedAudio{Samples: samples, SampleRate: 24000, Channels: 1}
}

func TestHTTPClient_FullPipelineAgainstStub(t *testing.T) {
	t.Parallel()

	stub := inferencetest.New()
	server := httptest.NewServer(inferencetest.Handler(stub))
	defer server.Close()

	client := inference.NewHTTPClient(server.URL+"/", 10*time.Second)
	ctx := context.Background()

	require.NoError(t, client.HealthCheck(ctx))

	embedding, err := client.MakeSpeakerEmbedding(ctx, voiceSample())
	require.NoError(t, err)
	assert.NotEmpty(t, embedding)

	conditioning, err := client.PrepareConditioning(ctx, "Hello there.", embedding, "")
	require.NoError(t, err)

	var packed inference.ConditioningRequest
	require.NoError(t, json.Unmarshal(conditioning, &packed))
	assert.Equal(t, "Hello there.", packed.Text)
	assert.Equal(t, inference.DefaultLanguage, packed.Language)

	codes, err := client.Generate(ctx, conditioning)
	require.NoError(t, err)
	assert.Len(t, codes, len(conditioning))

	waveform, err := client.Decode(ctx, codes)
	require.NoError(t, err)
	assert.Equal(t, inferencetest.DefaultSampleRate, waveform.SampleRate)
	assert.NotEmpty(t, waveform.Samples)

	for _, stage := range []inferencetest.Stage{
		inferencetest.StageEmbedding,
		inferencetest.StageConditioning,
		inferencetest.StageGenerate,
		inferencetest.StageDecode,
	} {
		assert.Equal(t, 1, stub.Calls(stage), stage)
	}
}

func TestHTTPClient_StructuredErrorResponse(t *testing.T) {
	t.Parallel()

	stub := inferencetest.New()
	stub.FailAt(inferencetest.StageGenerate, nil)

	server := httptest.NewServer(inferencetest.Handler(stub))
	defer server.Close()

	client := inference.NewHTTPClient(server.URL, 0)

	_, err := client.Generate(context.Background(), core.Conditioning("abc"))
	require.ErrorIs(t, err, inference.ErrService)
	assert.Contains(t, err.Error(), "injected failure")
	assert.Contains(t, err.Error(), "stage_failed")
	assert.Contains(t, err.Error(), "/v1/generate")
}

func TestHTTPClient_RawErrorBodyIsPreserved(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := inference.NewHTTPClient(server.URL, 0)

	_, err := client.Decode(context.Background(), core.Codes("xyz"))
	require.ErrorIs(t, err, inference.ErrService)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestHTTPClient_RejectsEmptyPayloads(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		switch r.URL.Path {
		case "/v1/decode":
			_, _ = w.Write([]byte(`{"samples":[0.1],"sample_rate":0}`))
		default:
			_, _ = w.Write([]byte(`{}`))
		}
	}))
	defer server.Close()

	client := inference.NewHTTPClient(server.URL, 0)
	ctx := context.Background()

	_, err := client.MakeSpeakerEmbedding(ctx, core.DecodedAudio{})
	require.ErrorIs(t, err, inference.ErrEmptyAudio)

	_, err = client.MakeSpeakerEmbedding(ctx, voiceSample())
	require.ErrorIs(t, err, inference.ErrService)

	_, err = client.PrepareConditioning(ctx, "hi", core.Embedding{1}, "en-us")
	require.ErrorIs(t, err, inference.ErrService)

	_, err = client.Generate(ctx, core.Conditioning("c"))
	require.ErrorIs(t, err, inference.ErrService)

	_, err = client.Decode(ctx, core.Codes("c"))
	require.ErrorIs(t, err, inference.ErrService)
}

func TestHTTPClient_ContextCancellation(t *testing.T) {
	t.Parallel()

	stub := inferencetest.New()
	entered, release := stub.HoldGenerate()
	defer release()

	server := httptest.NewServer(inferencetest.Handler(stub))
	defer server.Close()

	client := inference.NewHTTPClient(server.URL, 0)

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)

	go func() {
		_, err := client.Generate(ctx, core.Conditioning("abc"))
		errs <- err
	}()

	<-entered
	cancel()

	select {
	case err := <-errs:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("generate did not return after cancellation")
	}
}

func TestHTTPClient_HealthCheckFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	err := inference.NewHTTPClient(server.URL, time.Second).HealthCheck(context.Background())
	require.ErrorIs(t, err, inference.ErrService)
}

func TestStub_ImplementsSynthesizer(t *testing.T) {
	t.Parallel()

	var _ core.Synthesizer = inferencetest.New()
	var _ core.Synthesizer = inference.NewHTTPClient("http://localhost", 0)
}
