package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/radutopala/oneassist/internal/tools"
)

const evalTemperature = 0.1

// Evaluator asks the model whether a candidate tool should handle a
// query.
type Evaluator struct {
	client    Client
	health    *Health
	maxTokens int
	logger    *slog.Logger
}

// NewEvaluator creates an evaluator over the given client.
func NewEvaluator(client Client, health *Health, maxTokens int, logger *slog.Logger) *Evaluator {
	return &Evaluator{client: client, health: health, maxTokens: maxTokens, logger: logger}
}

// EvaluateTool returns the model's verdict on invoking the candidate for
// the query. Transport failure returns ErrUnavailable; an unparseable
// reply degrades to a conservative rejection instead of failing the
// turn.
func (e *Evaluator) EvaluateTool(ctx context.Context, query string, candidate tools.Descriptor) (*Verdict, error) {
	prompt := buildEvalPrompt(query, candidate)

	reply, err := e.client.Complete(ctx, Request{
		Prompt:      prompt,
		MaxTokens:   e.maxTokens,
		Temperature: evalTemperature,
	})
	if err != nil {
		e.health.ReportFailure()
		return nil, fmt.Errorf("evaluate %s: %w", candidate.Name, err)
	}
	e.health.ReportSuccess()

	verdict := parseVerdict(reply)
	e.logger.Debug("Tool evaluation complete",
		"tool", candidate.Name, "approved", verdict.Approved, "confidence", verdict.Confidence)

	return verdict, nil
}

func buildEvalPrompt(query string, candidate tools.Descriptor) string {
	examples := strings.Join(candidate.QueryExamples, "; ")

	return fmt.Sprintf(`You decide whether a tool should handle a user query.

User query: "%s"

Candidate tool:
- name: %s
- description: %s
- example queries it handles: %s

Should this tool be invoked for the query? Answer with ONLY a JSON object:
{"decision": true or false, "confidence": 0.0 to 1.0, "reasoning": "one short sentence"}

Say true only when the query clearly asks for what the tool does.
Return ONLY the JSON object, no explanation.`, query, candidate.Name, candidate.Description, examples)
}

// parseVerdict extracts the judgment from the model's reply. Anything
// unparseable becomes a low-confidence rejection.
func parseVerdict(reply string) *Verdict {
	var raw struct {
		Decision   bool    `json:"decision"`
		Confidence float64 `json:"confidence"`
		Reasoning  string  `json:"reasoning"`
	}

	if err := json.Unmarshal([]byte(cleanJSONReply(reply)), &raw); err != nil {
		return &Verdict{Approved: false, Confidence: 0.1, Reasoning: "unparseable evaluator reply"}
	}

	confidence := raw.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return &Verdict{Approved: raw.Decision, Confidence: confidence, Reasoning: raw.Reasoning}
}

// cleanJSONReply strips the markdown code fences models like to wrap
// JSON in.
func cleanJSONReply(reply string) string {
	reply = strings.TrimSpace(reply)
	reply = strings.TrimPrefix(reply, "```json")
	reply = strings.TrimPrefix(reply, "```")
	reply = strings.TrimSuffix(reply, "```")
	return strings.TrimSpace(reply)
}
