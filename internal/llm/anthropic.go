// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/pdiddy/report-engine/internal/provider"
)

// AnthropicProvider generates text through the Anthropic Messages API.
type AnthropicProvider struct {
	client    anthropic.Client
	maxTokens int64
}

var _ Provider = (*AnthropicProvider)(nil)

// NewAnthropicProvider creates a provider authenticated with apiKey.
func NewAnthropicProvider(apiKey string, maxTokens int) *AnthropicProvider {
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &AnthropicProvider{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		maxTokens: int64(maxTokens),
	}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

// Generate sends prompt as a single user message and concatenates the
// text blocks of the response.
func (p *AnthropicProvider) Generate(ctx context.Context, model, prompt string) (string, error) {
	resp, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: p.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", p.classify(err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if v, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(v.Text)
		}
	}
	return sb.String(), nil
}

// classify maps SDK errors onto the shared taxonomy by HTTP status.
func (p *AnthropicProvider) classify(err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		switch {
		case apierr.StatusCode == http.StatusTooManyRequests:
			return provider.Errorf(provider.KindRateLimited, p.Name(), "%v", err)
		case apierr.StatusCode == http.StatusRequestTimeout:
			return provider.Errorf(provider.KindTimeout, p.Name(), "%v", err)
		case apierr.StatusCode >= 400 && apierr.StatusCode < 500:
			return provider.Errorf(provider.KindInvalidRequest, p.Name(), "%v", err)
		default:
			return provider.Errorf(provider.KindProviderError, p.Name(), "%v", err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return provider.Errorf(provider.KindTimeout, p.Name(), "%v", err)
	}
	return provider.Errorf(provider.KindProviderError, p.Name(), "%v", err)
}
