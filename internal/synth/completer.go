package synth

import (
	"context"
	"strings"

	genai "google.golang.org/genai"

	"repobridge/internal/errors"
)

// Completer is the external text-completion collaborator, consumed as a
// black box: one prompt in, free text out.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// GeminiCompleter backs Completer with the official genai client.
type GeminiCompleter struct {
	cli   *genai.Client
	model string
}

func NewGeminiCompleter(ctx context.Context, model, apiKey string) (*GeminiCompleter, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return &GeminiCompleter{cli: cli, model: model}, nil
}

func (g *GeminiCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: prompt}}}},
		nil,
	)
	if err != nil {
		if isRateLimited(err) {
			return "", errors.RateLimit("completion rate limited", 0, err)
		}
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil ||
		len(resp.Candidates[0].Content.Parts) == 0 {
		return "", errors.NoUsablePatch("empty completion response")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	return b.String(), nil
}

// isRateLimited sniffs the transport error for a quota condition; the genai
// surface does not expose a stable typed error for it.
func isRateLimited(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "429") || strings.Contains(msg, "RESOURCE_EXHAUSTED")
}
