package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/halcyoncraft/sightline/pkg/provider/llm"
	llmmock "github.com/halcyoncraft/sightline/pkg/provider/llm/mock"
)

func TestLLMFallback_Respond_PrimarySuccess(t *testing.T) {
	primary := &llmmock.Responder{Reply: "hello from primary"}
	secondary := &llmmock.Responder{Reply: "hello from secondary"}

	fb := NewLLMFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	resp, err := fb.Respond(context.Background(), llm.Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "hello from primary" {
		t.Fatalf("content = %q, want 'hello from primary'", resp.Content)
	}
	if n := len(primary.Calls()); n != 1 {
		t.Fatalf("primary called %d times, want 1", n)
	}
	if n := len(secondary.Calls()); n != 0 {
		t.Fatalf("secondary called %d times, want 0", n)
	}
}

func TestLLMFallback_Respond_Failover(t *testing.T) {
	primary := &llmmock.Responder{Err: errors.New("primary down")}
	secondary := &llmmock.Responder{Reply: "hello from secondary"}

	fb := NewLLMFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	resp, err := fb.Respond(context.Background(), llm.Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "hello from secondary" {
		t.Fatalf("content = %q, want 'hello from secondary'", resp.Content)
	}
}

func TestLLMFallback_Respond_AllFail(t *testing.T) {
	primary := &llmmock.Responder{Err: errors.New("primary down")}
	secondary := &llmmock.Responder{Err: errors.New("secondary down")}

	fb := NewLLMFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	_, err := fb.Respond(context.Background(), llm.Request{})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestLLMFallback_Respond_SameRequestToFallback(t *testing.T) {
	primary := &llmmock.Responder{Err: errors.New("primary down")}
	secondary := &llmmock.Responder{Reply: "ok"}

	fb := NewLLMFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	req := llm.Request{
		SystemPrompt: "you are a hub assistant",
		Messages:     []llm.Message{{Role: "user", Content: "what do you see"}},
	}
	if _, err := fb.Respond(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	calls := secondary.Calls()
	if len(calls) != 1 {
		t.Fatalf("secondary called %d times, want 1", len(calls))
	}
	if calls[0].SystemPrompt != req.SystemPrompt {
		t.Fatalf("system prompt = %q, want %q", calls[0].SystemPrompt, req.SystemPrompt)
	}
	if len(calls[0].Messages) != 1 || calls[0].Messages[0].Content != "what do you see" {
		t.Fatalf("messages not forwarded verbatim: %+v", calls[0].Messages)
	}
}
