package anyllm

import (
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/halcyoncraft/sightline/pkg/provider/llm"
)

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name         string
		providerName string
		model        string
	}{
		{"empty provider", "", "gpt-4o-mini"},
		{"empty model", "openai", ""},
		{"unsupported provider", "watson", "granite"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := New(tc.providerName, tc.model); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestNew_OpenAIWithKey(t *testing.T) {
	t.Parallel()
	r, err := New("openai", "gpt-4o-mini", anyllmlib.WithAPIKey("sk-test"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if r == nil {
		t.Fatal("expected non-nil Responder")
	}
}

func TestBuildParams(t *testing.T) {
	t.Parallel()
	r := &Responder{model: "test-model"}

	params := r.buildParams(llm.Request{
		SystemPrompt: "you are a kitchen assistant",
		Messages: []llm.Message{
			{Role: "user", Content: "what is on the counter?"},
		},
		Temperature: 0.7,
		MaxTokens:   256,
	})

	if params.Model != "test-model" {
		t.Errorf("Model = %q, want test-model", params.Model)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("len(Messages) = %d, want 2", len(params.Messages))
	}
	if params.Messages[0].Role != anyllmlib.RoleSystem {
		t.Errorf("Messages[0].Role = %q, want system", params.Messages[0].Role)
	}
	if params.Messages[1].Content != "what is on the counter?" {
		t.Errorf("Messages[1].Content = %q", params.Messages[1].Content)
	}
	if params.Temperature == nil || *params.Temperature != 0.7 {
		t.Errorf("Temperature = %v, want 0.7", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 256 {
		t.Errorf("MaxTokens = %v, want 256", params.MaxTokens)
	}
}

func TestBuildParams_ZeroOptionalsOmitted(t *testing.T) {
	t.Parallel()
	r := &Responder{model: "test-model"}

	params := r.buildParams(llm.Request{
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
	})
	if len(params.Messages) != 1 {
		t.Fatalf("len(Messages) = %d, want 1", len(params.Messages))
	}
	if params.Temperature != nil {
		t.Error("Temperature should be nil when unset")
	}
	if params.MaxTokens != nil {
		t.Error("MaxTokens should be nil when unset")
	}
}
