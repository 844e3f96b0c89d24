// Package llm wraps the Anthropic Messages API for the pipeline stages.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/mikeS141618/Clinical-Pathways-Extraction-Pipeline/internal/config"
)

var tracer = otel.Tracer("github.com/mikeS141618/Clinical-Pathways-Extraction-Pipeline/internal/llm")

// EventStream is the part of the SDK's SSE stream the accumulator reads.
type EventStream interface {
	Next() bool
	Current() anthropic.MessageStreamEventUnion
	Err() error
	Close() error
}

// Messager is the subset of the Anthropic client we use.
type Messager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
	Stream(ctx context.Context, params anthropic.MessageNewParams) EventStream
}

type messageService struct {
	svc *anthropic.MessageService
}

func (m messageService) New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error) {
	return m.svc.New(ctx, params, opts...)
}

func (m messageService) Stream(ctx context.Context, params anthropic.MessageNewParams) EventStream {
	return m.svc.NewStreaming(ctx, params)
}

// MessagerCreator builds the API client from a key. It exists so tests can
// inject a mock.
type MessagerCreator func(apiKey string) Messager

func defaultMessagerCreator(apiKey string) Messager {
	c := anthropic.NewClient(option.WithAPIKey(apiKey))
	return messageService{svc: &c.Messages}
}

var newMessager MessagerCreator = defaultMessagerCreator

// Request is one single-turn user message plus sampling settings.
type Request struct {
	System         string
	Blocks         []anthropic.ContentBlockParamUnion
	Temperature    float64
	MaxTokens      int64
	ThinkingBudget int64
}

// Result holds the concatenated answer and reasoning text of one response.
type Result struct {
	Text     string
	Thinking string
}

// Client issues requests against one configured model.
type Client struct {
	messages Messager
	model    string
}

func NewClient(cfg config.Config) *Client {
	return &Client{messages: newMessager(cfg.APIKey), model: cfg.Model}
}

// TextRequest builds a text-only request using the configured sampling
// parameters, with reasoning enabled when the config has a budget.
func TextRequest(cfg config.Config, system, prompt string) Request {
	return Request{
		System:         system,
		Blocks:         []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(prompt)},
		Temperature:    cfg.Temperature,
		MaxTokens:      cfg.MaxTokens,
		ThinkingBudget: cfg.ThinkingBudget,
	}
}

func (c *Client) params(req Request) anthropic.MessageNewParams {
	p := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   req.MaxTokens,
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(req.Blocks...)},
		Temperature: anthropic.Float(req.Temperature),
	}
	if strings.TrimSpace(req.System) != "" {
		p.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.ThinkingBudget > 0 {
		p.Thinking = anthropic.ThinkingConfigParamUnion{
			OfEnabled: &anthropic.ThinkingConfigEnabledParam{BudgetTokens: req.ThinkingBudget},
		}
	}
	return p
}

// Stream issues a streamed request and blocks until the terminal event,
// echoing deltas to echo as they arrive. echo may be nil.
func (c *Client) Stream(ctx context.Context, req Request, echo io.Writer) (Result, error) {
	ctx, span := tracer.Start(ctx, "llm.stream")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", c.model), attribute.Int64("llm.max_tokens", req.MaxTokens))

	acc := NewAccumulator(echo)
	if err := Consume(c.messages.Stream(ctx, c.params(req)), acc); err != nil {
		err = classify(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}
	res := acc.Result()
	span.SetAttributes(attribute.Int("llm.text_chars", len(res.Text)), attribute.Int("llm.thinking_chars", len(res.Thinking)))
	return res, nil
}

// Complete issues a non-streamed request and returns the joined text blocks.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	ctx, span := tracer.Start(ctx, "llm.complete")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", c.model), attribute.Int64("llm.max_tokens", req.MaxTokens))

	resp, err := c.messages.New(ctx, c.params(req))
	if err != nil {
		err = classify(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("claude API call failed: %w", err)
	}
	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("empty response from Claude API")
	}
	return sb.String(), nil
}
