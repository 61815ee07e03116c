package tools

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"
)

// RegisterBuiltins adds the assistant's internal tools to the registry.
// Each carries query examples so the selection pipeline can match it
// against natural phrasing.
func RegisterBuiltins(r *Registry) error {
	builtins := []*Tool{
		{
			Name:        "current_time",
			Category:    "datetime",
			Description: "Reports the current time of day including the timezone",
			QueryExamples: []string{
				"what time is it",
				"tell me the current time",
				"what is the time right now",
			},
			Source:      SourceInternal,
			InputSchema: objectSchema(nil),
			Handler:     currentTimeHandler,
		},
		{
			Name:        "current_date",
			Category:    "datetime",
			Description: "Reports today's date including the day of the week",
			QueryExamples: []string{
				"what is today's date",
				"what day is it today",
				"tell me the date",
			},
			Source:      SourceInternal,
			InputSchema: objectSchema(nil),
			Handler:     currentDateHandler,
		},
		{
			Name:        "system_info",
			Category:    "system",
			Description: "Reports details about the host machine and operating system",
			QueryExamples: []string{
				"what operating system is this",
				"show me the system information",
				"how many cpus does this machine have",
			},
			Source:      SourceInternal,
			InputSchema: objectSchema(nil),
			Handler:     systemInfoHandler,
		},
		{
			Name:        "calculator",
			Category:    "math",
			Description: "Evaluates basic arithmetic expressions with addition, subtraction, multiplication, division and parentheses",
			QueryExamples: []string{
				"what is 2 plus 2",
				"calculate 15 percent of 80",
				"multiply 12 by 7",
			},
			Source: SourceInternal,
			InputSchema: objectSchema(map[string]any{
				"expression": map[string]any{
					"type":        "string",
					"description": "Arithmetic expression to evaluate, e.g. (3 + 4) * 2",
				},
				"query": map[string]any{
					"type":        "string",
					"description": "Natural language arithmetic question, used when no expression is given",
				},
			}),
			Handler: calculatorHandler,
		},
	}

	for _, tool := range builtins {
		if err := r.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

func objectSchema(properties map[string]any) map[string]any {
	if properties == nil {
		properties = map[string]any{}
	}
	return map[string]any{"type": "object", "properties": properties}
}

func currentTimeHandler(ctx context.Context, params map[string]any) (map[string]any, error) {
	now := time.Now()
	zone, offset := now.Zone()

	return map[string]any{
		"time":               now.Format("15:04:05"),
		"timezone":           zone,
		"utc_offset_seconds": offset,
		"iso":                now.Format(time.RFC3339),
	}, nil
}

func currentDateHandler(ctx context.Context, params map[string]any) (map[string]any, error) {
	now := time.Now()

	return map[string]any{
		"date":    now.Format("2006-01-02"),
		"weekday": now.Weekday().String(),
		"year":    now.Year(),
		"month":   now.Month().String(),
		"day":     now.Day(),
	}, nil
}

func systemInfoHandler(ctx context.Context, params map[string]any) (map[string]any, error) {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	return map[string]any{
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"cpus":       runtime.NumCPU(),
		"go_version": runtime.Version(),
		"hostname":   hostname,
	}, nil
}

func calculatorHandler(ctx context.Context, params map[string]any) (map[string]any, error) {
	expr, err := calculatorExpression(params)
	if err != nil {
		return nil, err
	}

	value, err := evalExpression(expr)
	if err != nil {
		return nil, fmt.Errorf("cannot evaluate %q: %w", expr, err)
	}

	return map[string]any{"expression": expr, "result": value}, nil
}

// calculatorExpression prefers an explicit expression parameter and
// falls back to extracting one from the raw query the pipeline passes
// when it selects the tool from natural phrasing.
func calculatorExpression(params map[string]any) (string, error) {
	if raw, ok := params["expression"]; ok {
		expr, ok := raw.(string)
		if !ok {
			return "", fmt.Errorf("expression must be a string, got %T", raw)
		}
		return expr, nil
	}

	if raw, ok := params["query"]; ok {
		if query, ok := raw.(string); ok {
			return expressionFromQuery(query)
		}
	}

	return "", fmt.Errorf("missing required parameter: expression")
}
