// Package compiler merges records with a prompt template into provider-ready
// chat-completion requests and encodes them as a line-delimited batch document.
package compiler

import (
	"fmt"
	"math"
	"net/http"
	"strings"

	"batchforge/internal/domain"
)

// Placeholder is replaced by each record's text in the user prompt template.
const Placeholder = "{content}"

// DefaultEndpoint is the chat-completions path written into every request line.
const DefaultEndpoint = "/v4/chat/completions"

// Generation parameter bounds.
const (
	MinMaxTokens = 1
	MaxMaxTokens = 4096
)

// Params carries everything besides the records that goes into a request.
type Params struct {
	Model        string
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float64
	TopP         float64
	// Endpoint overrides DefaultEndpoint when set.
	Endpoint string
}

// Validate checks the model and the generation parameter ranges.
func (p Params) Validate() error {
	if strings.TrimSpace(p.Model) == "" {
		return fmt.Errorf("%w: model is required", domain.ErrInvalidParams)
	}
	if p.MaxTokens < MinMaxTokens || p.MaxTokens > MaxMaxTokens {
		return fmt.Errorf("%w: max_tokens must be in [%d, %d], got %d",
			domain.ErrInvalidParams, MinMaxTokens, MaxMaxTokens, p.MaxTokens)
	}
	if math.IsNaN(p.Temperature) || p.Temperature < 0 || p.Temperature > 1 {
		return fmt.Errorf("%w: temperature must be in [0, 1], got %g", domain.ErrInvalidParams, p.Temperature)
	}
	if math.IsNaN(p.TopP) || p.TopP < 0 || p.TopP > 1 {
		return fmt.Errorf("%w: top_p must be in [0, 1], got %g", domain.ErrInvalidParams, p.TopP)
	}
	return nil
}

// HasPlaceholder reports whether template references the record text.
// A template without the placeholder is still valid; every request then
// carries the same user message.
func HasPlaceholder(template string) bool {
	return strings.Contains(template, Placeholder)
}

// Compile builds one request per record, in record order.
func Compile(records []domain.Record, p Params) ([]domain.CompiledRequest, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	endpoint := p.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	out := make([]domain.CompiledRequest, 0, len(records))
	for i, rec := range records {
		out = append(out, domain.CompiledRequest{
			CustomID: domain.CustomIDFor(i + 1),
			Method:   http.MethodPost,
			URL:      endpoint,
			Body: domain.RequestBody{
				Model:       p.Model,
				Messages:    buildMessages(p.SystemPrompt, p.UserPrompt, rec.Text),
				MaxTokens:   p.MaxTokens,
				Temperature: p.Temperature,
				TopP:        p.TopP,
			},
		})
	}
	return out, nil
}

func buildMessages(systemPrompt, userPrompt, text string) []domain.Message {
	msgs := make([]domain.Message, 0, 2)
	if systemPrompt != "" {
		msgs = append(msgs, domain.Message{Role: domain.RoleSystem, Content: systemPrompt})
	}
	// Single pass: text that itself contains the placeholder is not expanded again.
	msgs = append(msgs, domain.Message{
		Role:    domain.RoleUser,
		Content: strings.ReplaceAll(userPrompt, Placeholder, text),
	})
	return msgs
}
