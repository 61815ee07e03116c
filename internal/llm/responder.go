package llm

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// Responder turns tool results and conversation context into natural
// language replies. Every Respond* method degrades to a deterministic
// rendering when the model is unreachable, so a turn always produces
// an answer.
type Responder struct {
	client      Client
	health      *Health
	maxTokens   int
	temperature float64
	logger      *slog.Logger
}

// NewResponder creates a responder over the given client.
func NewResponder(client Client, health *Health, maxTokens int, temperature float64, logger *slog.Logger) *Responder {
	return &Responder{
		client:      client,
		health:      health,
		maxTokens:   maxTokens,
		temperature: temperature,
		logger:      logger,
	}
}

// RespondWithTool phrases a tool result as an answer to the query.
func (r *Responder) RespondWithTool(ctx context.Context, query, toolName string, result map[string]any) string {
	if !r.health.Healthy(ctx) {
		return renderToolResult(toolName, result)
	}

	prompt := fmt.Sprintf(`The user asked: "%s"

The %s tool returned:
%s

Answer the user in one or two sentences using the tool output. Do not mention the tool.`,
		query, toolName, renderToolResult(toolName, result))

	reply, err := r.complete(ctx, prompt)
	if err != nil {
		r.logger.Warn("Tool response generation failed, using raw result", "tool", toolName, "error", err)
		return renderToolResult(toolName, result)
	}
	return reply
}

// RespondWithContext answers the query using related past exchanges.
func (r *Responder) RespondWithContext(ctx context.Context, query string, exchanges []Exchange) string {
	if len(exchanges) == 0 {
		return r.Respond(ctx, query)
	}
	if !r.health.Healthy(ctx) {
		return renderContextFallback(exchanges)
	}

	var b strings.Builder
	for i, ex := range exchanges {
		fmt.Fprintf(&b, "%d. User asked: %q\n   You answered: %q\n", i+1, ex.Question, ex.Answer)
	}

	prompt := fmt.Sprintf(`The user asked: "%s"

Related earlier exchanges from this user's history:
%s
Answer the current question in one or two sentences. Use the history when it helps, ignore it when it does not.`,
		query, b.String())

	reply, err := r.complete(ctx, prompt)
	if err != nil {
		r.logger.Warn("Context response generation failed, using stored answer", "error", err)
		return renderContextFallback(exchanges)
	}
	return reply
}

// Respond answers the query conversationally with no extra context.
func (r *Responder) Respond(ctx context.Context, query string) string {
	if !r.health.Healthy(ctx) {
		return offlineReply
	}

	prompt := fmt.Sprintf(`You are a concise local assistant. Answer the user's message in one or two sentences.

User: %s`, query)

	reply, err := r.complete(ctx, prompt)
	if err != nil {
		r.logger.Warn("Response generation failed", "error", err)
		return offlineReply
	}
	return reply
}

// Summarize condenses a conversation transcript into a few sentences.
// Unlike the Respond* methods there is no useful offline fallback, so
// model failure surfaces as an error.
func (r *Responder) Summarize(ctx context.Context, transcript string) (string, error) {
	if !r.health.Healthy(ctx) {
		return "", fmt.Errorf("summarise: %w", ErrUnavailable)
	}

	prompt := fmt.Sprintf(`Summarise this conversation in at most three sentences. Mention what the user wanted and what was done.

%s`, transcript)

	reply, err := r.complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("summarise: %w", err)
	}
	return reply, nil
}

func (r *Responder) complete(ctx context.Context, prompt string) (string, error) {
	reply, err := r.client.Complete(ctx, Request{
		Prompt:      prompt,
		MaxTokens:   r.maxTokens,
		Temperature: r.temperature,
	})
	if err != nil {
		r.health.ReportFailure()
		return "", err
	}
	r.health.ReportSuccess()

	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", fmt.Errorf("empty completion")
	}
	return reply, nil
}

const offlineReply = "The language model is not reachable right now, so I can only run tools and look things up. Try again in a moment."

// renderToolResult formats a result map deterministically, sorted by
// key so retries produce identical output.
func renderToolResult(toolName string, result map[string]any) string {
	if len(result) == 0 {
		return fmt.Sprintf("%s completed with no output", toolName)
	}

	keys := make([]string, 0, len(result))
	for k := range result {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", k, result[k]))
	}
	return strings.Join(parts, ", ")
}

func renderContextFallback(exchanges []Exchange) string {
	top := exchanges[0]
	return fmt.Sprintf("Earlier you asked %q and the answer was: %s", top.Question, top.Answer)
}
