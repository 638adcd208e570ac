package whisper_test

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/halcyoncraft/sightline/pkg/provider/stt"
	"github.com/halcyoncraft/sightline/pkg/provider/stt/whisper"
)

// ---- helpers ----------------------------------------------------------------

// inferenceRequest captures what the handler parsed out of one multipart
// inference POST.
type inferenceRequest struct {
	wav      []byte
	language string
	model    string
}

// newMockServer creates a test server that responds to POST /inference with a
// JSON body containing responseText. Each parsed request is appended to *got.
func newMockServer(t *testing.T, responseText string, got *[]inferenceRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}

		mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mediaType != "multipart/form-data" {
			http.Error(w, "bad content type", http.StatusBadRequest)
			return
		}
		mr := multipart.NewReader(r.Body, params["boundary"])

		var req inferenceRequest
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			data, _ := io.ReadAll(part)
			switch part.FormName() {
			case "file":
				req.wav = data
			case "language":
				req.language = string(data)
			case "model":
				req.model = string(data)
			}
		}
		if got != nil {
			*got = append(*got, req)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": responseText})
	}))
}

func pcm16(samples int) []byte {
	return make([]byte, samples*2)
}

// ---- construction -----------------------------------------------------------

func TestNewServer_EmptyURL_ReturnsError(t *testing.T) {
	t.Parallel()
	if _, err := whisper.NewServer(""); err == nil {
		t.Fatal("expected error for empty serverURL, got nil")
	}
}

func TestNewServer_WithOptions(t *testing.T) {
	t.Parallel()
	s, err := whisper.NewServer("http://localhost:8080",
		whisper.WithModel("small"),
		whisper.WithLanguage("de"),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s == nil {
		t.Fatal("expected non-nil Server")
	}
}

// ---- transcription ----------------------------------------------------------

func TestTranscribe_ReturnsTrimmedText(t *testing.T) {
	t.Parallel()
	srv := newMockServer(t, "  turn off the oven \n", nil)
	defer srv.Close()

	s, _ := whisper.NewServer(srv.URL)
	tr, err := s.Transcribe(context.Background(), stt.Audio{
		PCM: pcm16(1600), SampleRate: 16000, Channels: 1,
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Text != "turn off the oven" {
		t.Fatalf("Text = %q, want %q", tr.Text, "turn off the oven")
	}
	if tr.Language != "en" {
		t.Fatalf("Language = %q, want en", tr.Language)
	}
}

func TestTranscribe_SendsWAVAndHintFields(t *testing.T) {
	t.Parallel()
	var got []inferenceRequest
	srv := newMockServer(t, "ok", &got)
	defer srv.Close()

	s, _ := whisper.NewServer(srv.URL,
		whisper.WithModel("base.en"),
		whisper.WithLanguage("de"),
	)
	pcm := pcm16(800)
	if _, err := s.Transcribe(context.Background(), stt.Audio{
		PCM: pcm, SampleRate: 16000, Channels: 1,
	}); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("server saw %d requests, want 1", len(got))
	}
	req := got[0]
	if req.language != "de" {
		t.Errorf("language field = %q, want de", req.language)
	}
	if req.model != "base.en" {
		t.Errorf("model field = %q, want base.en", req.model)
	}
	if len(req.wav) != 44+len(pcm) {
		t.Errorf("wav size = %d, want %d", len(req.wav), 44+len(pcm))
	}
	if string(req.wav[:4]) != "RIFF" {
		t.Errorf("wav header = %q, want RIFF", req.wav[:4])
	}
}

func TestTranscribe_EmptyAudio_ReturnsError(t *testing.T) {
	t.Parallel()
	s, _ := whisper.NewServer("http://localhost:8080")
	if _, err := s.Transcribe(context.Background(), stt.Audio{}); err == nil {
		t.Fatal("expected error for empty audio")
	}
}

func TestTranscribe_ServerError_ReturnsError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s, _ := whisper.NewServer(srv.URL)
	if _, err := s.Transcribe(context.Background(), stt.Audio{
		PCM: pcm16(160), SampleRate: 16000, Channels: 1,
	}); err == nil {
		t.Fatal("expected error for HTTP 503")
	}
}

func TestTranscribe_CancelledContext_ReturnsError(t *testing.T) {
	t.Parallel()
	srv := newMockServer(t, "hello", nil)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s, _ := whisper.NewServer(srv.URL)
	if _, err := s.Transcribe(ctx, stt.Audio{
		PCM: pcm16(160), SampleRate: 16000, Channels: 1,
	}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
