package tools

import (
	"context"
	"strings"
)

// ToolSource indicates where a tool is implemented
type ToolSource string

const (
	SourceInternal ToolSource = "internal" // Built-in tools
	SourceExternal ToolSource = "external" // External MCP server tools
)

// ToolHandler represents a function that handles tool execution
type ToolHandler func(context.Context, map[string]any) (map[string]any, error)

// Tool represents a single executable tool with its metadata and handler.
type Tool struct {
	Name          string         // Tool name
	Category      string         // Category for grouping tools (e.g. "time", "system")
	Description   string         // Tool description
	QueryExamples []string       // Example phrasings a user might ask for this tool
	InputSchema   map[string]any // Schema for tool parameters
	Handler       ToolHandler    // Handler function for internal tools (nil for external)
	Source        ToolSource     // Where the tool is implemented
	SourceName    string         // Name of external MCP server (if external)
}

// Descriptor returns the selectable identity of the tool. The id is
// assigned by storage when the tool is synced.
func (t *Tool) Descriptor() Descriptor {
	return Descriptor{
		Name:          t.Name,
		Category:      t.Category,
		Description:   t.Description,
		QueryExamples: t.QueryExamples,
	}
}

// Descriptor is the selectable identity of a tool: the unit the selection
// pipeline indexes, scores and matches. Executable behavior stays on Tool.
type Descriptor struct {
	ID            int64
	Name          string
	Category      string
	Description   string
	QueryExamples []string
}

// EmbeddingText is the text the tool index encodes for this descriptor.
func (d Descriptor) EmbeddingText() string {
	parts := make([]string, 0, 2+len(d.QueryExamples))
	parts = append(parts, d.Name, d.Description)
	parts = append(parts, d.QueryExamples...)
	return strings.Join(parts, ". ")
}

// ExampleTokens sums whitespace tokens across all query examples.
func (d Descriptor) ExampleTokens() int {
	total := 0
	for _, example := range d.QueryExamples {
		total += len(strings.Fields(example))
	}
	return total
}

// DescriptionTokens counts whitespace tokens in the description.
func (d Descriptor) DescriptionTokens() int {
	return len(strings.Fields(d.Description))
}

// ExampleWords returns the lowercased word set over all query examples.
func (d Descriptor) ExampleWords() map[string]struct{} {
	words := make(map[string]struct{})
	for _, example := range d.QueryExamples {
		for _, w := range strings.Fields(strings.ToLower(example)) {
			words[w] = struct{}{}
		}
	}
	return words
}

// ExecutionResult represents the result of a tool execution.
type ExecutionResult struct {
	Success         bool           `json:"success"`
	ToolName        string         `json:"tool_name"`
	Result          map[string]any `json:"result,omitempty"`
	Error           string         `json:"error,omitempty"`
	ErrorType       string         `json:"error_type,omitempty"`
	ExecutionTimeMs int64          `json:"execution_time_ms"`
}
