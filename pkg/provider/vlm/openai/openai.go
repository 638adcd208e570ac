// Package openai provides a vision-language describer backed by any
// OpenAI-compatible chat completions endpoint. Frames are embedded as
// base64 data URLs, so local servers (llama.cpp, vLLM) work the same way
// as the hosted API.
package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/halcyoncraft/sightline/pkg/provider/vlm"
)

const defaultPrompt = "Describe what you see in this image in one or two short sentences. " +
	"Focus on objects, people, and ongoing activity. Do not speculate beyond the image."

// Compile-time assertion that Describer implements vlm.Describer.
var _ vlm.Describer = (*Describer)(nil)

// Option is a functional option for configuring a Describer.
type Option func(*Describer)

// WithBaseURL points the client at an OpenAI-compatible endpoint
// (e.g., "http://localhost:8080/v1" for a local llama.cpp server).
func WithBaseURL(baseURL string) Option {
	return func(d *Describer) {
		d.clientOpts = append(d.clientOpts, option.WithBaseURL(baseURL))
	}
}

// WithPrompt replaces the default description prompt.
func WithPrompt(prompt string) Option {
	return func(d *Describer) {
		d.prompt = prompt
	}
}

// WithMaxTokens caps the length of the description. Defaults to 150.
func WithMaxTokens(n int) Option {
	return func(d *Describer) {
		d.maxTokens = n
	}
}

// Describer implements vlm.Describer against a chat completions endpoint.
// It is safe for concurrent use.
type Describer struct {
	client    oai.Client
	model     string
	prompt    string
	maxTokens int

	clientOpts []option.RequestOption
}

// New creates a Describer using the given API key and model
// (e.g., "gpt-4o-mini"). apiKey may be a placeholder for local endpoints
// that do not check it; model must be non-empty.
func New(apiKey, model string, opts ...Option) (*Describer, error) {
	if model == "" {
		return nil, errors.New("openai: model must not be empty")
	}
	d := &Describer{
		model:      model,
		prompt:     defaultPrompt,
		maxTokens:  150,
		clientOpts: []option.RequestOption{option.WithAPIKey(apiKey)},
	}
	for _, o := range opts {
		o(d)
	}
	d.client = oai.NewClient(d.clientOpts...)
	return d, nil
}

// Describe implements vlm.Describer.
func (d *Describer) Describe(ctx context.Context, jpeg []byte) (string, error) {
	if len(jpeg) == 0 {
		return "", errors.New("openai: empty frame")
	}

	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpeg)
	parts := []oai.ChatCompletionContentPartUnionParam{
		oai.TextContentPart(d.prompt),
		oai.ImageContentPart(oai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
	}

	params := oai.ChatCompletionNewParams{
		Model: shared.ChatModel(d.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			{
				OfUser: &oai.ChatCompletionUserMessageParam{
					Content: oai.ChatCompletionUserMessageParamContentUnion{
						OfArrayOfContentParts: parts,
					},
				},
			},
		},
		MaxTokens: param.NewOpt(int64(d.maxTokens)),
	}

	resp, err := d.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: no choices in response")
	}
	choice := resp.Choices[0]
	if choice.Message.Refusal != "" {
		return "", fmt.Errorf("openai: blocked: %s", choice.Message.Refusal)
	}

	text := strings.TrimSpace(choice.Message.Content)
	if text == "" {
		return "", errors.New("openai: empty description")
	}
	return text, nil
}
