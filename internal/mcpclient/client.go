// Package mcpclient connects to external MCP servers and exposes their
// tools for registration in the assistant's catalog.
package mcpclient

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/radutopala/oneassist/internal/config"
)

// Client is a session with one external MCP server.
type Client struct {
	name    string
	session *mcp.ClientSession
	logger  *slog.Logger
}

// Tool is a tool advertised by an external server.
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Connect establishes a session with the server described by cfg.
// Command entries use stdio transport, URL entries streamable HTTP.
func Connect(ctx context.Context, name string, cfg config.ServerConfig, logger *slog.Logger) (*Client, error) {
	client := mcp.NewClient(&mcp.Implementation{
		Name:    "one-assist",
		Version: "0.1.0",
	}, nil)

	var transport mcp.Transport
	switch {
	case cfg.URL != "":
		transport = &mcp.StreamableClientTransport{
			Endpoint:   cfg.URL,
			MaxRetries: 5,
		}
		logger.Info("Using streamable HTTP transport", "name", name, "endpoint", cfg.URL)
	case cfg.Command != "":
		cmd := exec.Command(cfg.Command, cfg.Args...)
		if len(cfg.Env) > 0 {
			env := os.Environ()
			for k, v := range cfg.Env {
				env = append(env, fmt.Sprintf("%s=%s", k, v))
			}
			cmd.Env = env
		}
		transport = &mcp.CommandTransport{Command: cmd}
		logger.Info("Using stdio transport", "name", name, "command", cfg.Command)
	default:
		return nil, fmt.Errorf("server %s: neither command nor url configured", name)
	}

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to MCP server %s: %w", name, err)
	}

	logger.Info("Connected to external MCP server", "name", name)

	return &Client{name: name, session: session, logger: logger}, nil
}

// Name returns the configured server name.
func (c *Client) Name() string {
	return c.name
}

// ListTools retrieves the tools the server advertises.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	result, err := c.session.ListTools(ctx, &mcp.ListToolsParams{})
	if err != nil {
		return nil, fmt.Errorf("tools/list on %s: %w", c.name, err)
	}

	out := make([]Tool, 0, len(result.Tools))
	for _, t := range result.Tools {
		schema := map[string]any{}
		if m, ok := t.InputSchema.(map[string]any); ok {
			schema = m
		}
		out = append(out, Tool{Name: t.Name, Description: t.Description, InputSchema: schema})
	}

	c.logger.Debug("Listed external tools", "name", c.name, "count", len(out))
	return out, nil
}

// CallTool executes a tool on the server and flattens its text content
// into a map. It satisfies the registry's external executor interface.
func (c *Client) CallTool(ctx context.Context, toolName string, arguments map[string]any) (any, error) {
	result, err := c.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      toolName,
		Arguments: arguments,
	})
	if err != nil {
		return nil, fmt.Errorf("tools/call %s on %s: %w", toolName, c.name, err)
	}

	if result.IsError {
		msg := "unknown error"
		if len(result.Content) > 0 {
			if text, ok := result.Content[0].(*mcp.TextContent); ok {
				msg = text.Text
			}
		}
		return nil, fmt.Errorf("tool %s failed: %s", toolName, msg)
	}

	out := map[string]any{}
	for i, content := range result.Content {
		text, ok := content.(*mcp.TextContent)
		if !ok {
			continue
		}
		if i == 0 && len(result.Content) == 1 {
			out["content"] = text.Text
		} else {
			out[fmt.Sprintf("content_%d", i)] = text.Text
		}
	}

	return out, nil
}

// Close terminates the session.
func (c *Client) Close() error {
	if err := c.session.Close(); err != nil {
		c.logger.Warn("External MCP server close error", "name", c.name, "error", err)
		return err
	}

	c.logger.Info("Closed external MCP server", "name", c.name)
	return nil
}
