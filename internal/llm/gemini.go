// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

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

	"github.com/pdiddy/report-engine/internal/provider"
	"github.com/pdiddy/report-engine/pkg/types"
)

// geminiBaseURL is overridable so tests can point at an httptest server.
var geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiProvider generates text through the Generative Language HTTP API.
type GeminiProvider struct {
	apiKey    string
	client    *http.Client
	userAgent string
	baseURL   string
}

var _ Provider = (*GeminiProvider)(nil)

// NewGeminiProvider creates a provider authenticated with apiKey.
func NewGeminiProvider(apiKey string, cfg types.HTTPConfig) *GeminiProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GeminiProvider{
		apiKey:    apiKey,
		client:    &http.Client{Timeout: timeout},
		userAgent: cfg.UserAgent,
		baseURL:   geminiBaseURL,
	}
}

func (p *GeminiProvider) Name() string { return "gemini" }

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// Generate posts prompt to the model's generateContent endpoint and
// concatenates the parts of the first candidate.
func (p *GeminiProvider) Generate(ctx context.Context, model, prompt string) (string, error) {
	payload, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
	})
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", p.baseURL, model, p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", provider.Errorf(provider.KindTimeout, p.Name(), "%v", err)
		}
		return "", provider.Errorf(provider.KindProviderError, p.Name(), "%v", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		io.Copy(io.Discard, resp.Body)
		return "", provider.Errorf(provider.KindRateLimited, p.Name(), "http 429")
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		io.Copy(io.Discard, resp.Body)
		return "", provider.Errorf(provider.KindInvalidRequest, p.Name(), "http %d", resp.StatusCode)
	default:
		io.Copy(io.Discard, resp.Body)
		return "", provider.Errorf(provider.KindProviderError, p.Name(), "http %d", resp.StatusCode)
	}

	var out geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", provider.Errorf(provider.KindProviderError, p.Name(), "decoding response: %v", err)
	}
	if len(out.Candidates) == 0 {
		return "", provider.Errorf(provider.KindEmptyResult, p.Name(), "no candidates")
	}

	var sb strings.Builder
	for _, part := range out.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}
