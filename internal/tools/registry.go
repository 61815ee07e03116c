package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// ExternalToolExecutor defines the interface for executing external tools.
type ExternalToolExecutor interface {
	CallTool(ctx context.Context, toolName string, arguments map[string]any) (any, error)
}

// Registry manages all available tools and their execution.
type Registry struct {
	tools             map[string]*Tool
	externalExecutors map[string]ExternalToolExecutor // Map of source name -> executor
	logger            *slog.Logger
}

// NewRegistry creates a new tool registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		tools:             make(map[string]*Tool),
		externalExecutors: make(map[string]ExternalToolExecutor),
		logger:            logger,
	}
}

// RegisterExternalExecutor registers an executor for external tools from a specific source.
func (r *Registry) RegisterExternalExecutor(sourceName string, executor ExternalToolExecutor) {
	r.externalExecutors[sourceName] = executor
	r.logger.Info("Registered external tool executor", "source", sourceName)
}

// RegisterExternalTool registers a tool from an external MCP server. The
// tool name is prefixed with the server name to avoid conflicts. External
// servers do not publish query examples, so the description doubles as
// one to keep the tool selectable.
func (r *Registry) RegisterExternalTool(sourceName, category, toolName, description string, inputSchema map[string]any) error {
	tool := &Tool{
		Name:          sourceName + "_" + toolName,
		Category:      category,
		Description:   description,
		QueryExamples: []string{description},
		Source:        SourceExternal,
		SourceName:    sourceName,
		InputSchema:   inputSchema,
		Handler:       nil, // External tools don't have handlers
	}

	return r.Register(tool)
}

// Register adds a tool to the registry.
func (r *Registry) Register(tool *Tool) error {
	if tool.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	// Only internal tools require a handler; external tools are executed remotely
	if tool.Source == SourceInternal && tool.Handler == nil {
		return fmt.Errorf("tool handler cannot be nil for internal tools")
	}
	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("tool %s already registered", tool.Name)
	}

	r.tools[tool.Name] = tool
	r.logger.Info("Registered tool", "name", tool.Name, "category", tool.Category, "source", tool.Source)
	return nil
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (*Tool, error) {
	tool, exists := r.tools[name]
	if !exists {
		return nil, fmt.Errorf("tool not found: %s", name)
	}
	return tool, nil
}

// Search finds tools whose name fuzzy-matches or whose description
// contains the query, optionally restricted to a category. Results are
// ordered by name.
func (r *Registry) Search(query, category string) []*Tool {
	var results []*Tool

	queryLower := strings.ToLower(query)

	for _, tool := range r.tools {
		if category != "" && tool.Category != category {
			continue
		}

		if query != "" {
			descLower := strings.ToLower(tool.Description)
			if !fuzzyMatch(query, tool.Name) && !strings.Contains(descLower, queryLower) {
				continue
			}
		}

		results = append(results, tool)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	return results
}

// Execute runs a tool with the given parameters. Execution failures are
// reported inside the result, not as Go errors.
func (r *Registry) Execute(ctx context.Context, toolName string, parameters map[string]any) (*ExecutionResult, error) {
	start := time.Now()

	tool, err := r.Get(toolName)
	if err != nil {
		return &ExecutionResult{
			Success:         false,
			ToolName:        toolName,
			Error:           err.Error(),
			ErrorType:       "tool_not_found",
			ExecutionTimeMs: time.Since(start).Milliseconds(),
		}, nil
	}

	r.logger.InfoContext(ctx, "Executing tool", "name", toolName, "source", tool.Source, "parameters", parameters)

	var result map[string]any
	var execErr error

	switch tool.Source {
	case SourceInternal:
		result, execErr = tool.Handler(ctx, parameters)

	case SourceExternal:
		executor, ok := r.externalExecutors[tool.SourceName]
		if !ok {
			return &ExecutionResult{
				Success:         false,
				ToolName:        toolName,
				Error:           fmt.Sprintf("external executor not found: %s", tool.SourceName),
				ErrorType:       "executor_not_found",
				ExecutionTimeMs: time.Since(start).Milliseconds(),
			}, nil
		}

		// Strip the server name prefix before calling the external tool.
		originalToolName := strings.TrimPrefix(toolName, tool.SourceName+"_")

		externalResult, err := executor.CallTool(ctx, originalToolName, parameters)
		if err != nil {
			execErr = err
		} else if resultMap, ok := externalResult.(map[string]any); ok {
			result = resultMap
		} else {
			// Wrap non-map results
			result = map[string]any{"result": externalResult}
		}

	default:
		execErr = fmt.Errorf("unknown tool source: %s", tool.Source)
	}

	executionTime := time.Since(start).Milliseconds()

	if execErr != nil {
		r.logger.ErrorContext(ctx, "Tool execution failed", "name", toolName, "source", tool.Source, "error", execErr)
		return &ExecutionResult{
			Success:         false,
			ToolName:        toolName,
			Error:           execErr.Error(),
			ErrorType:       "execution_error",
			ExecutionTimeMs: executionTime,
		}, nil
	}

	r.logger.InfoContext(ctx, "Tool execution successful", "name", toolName, "source", tool.Source, "execution_time_ms", executionTime)

	return &ExecutionResult{
		Success:         true,
		ToolName:        toolName,
		Result:          result,
		ExecutionTimeMs: executionTime,
	}, nil
}

// ListAll returns all registered tools ordered by name.
func (r *Registry) ListAll() []*Tool {
	tools := make([]*Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		tools = append(tools, tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools
}
