package llm

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

const probeCommandTimeout = 5 * time.Second

// CommandClient shells out to a local model CLI, for hosts where the
// HTTP port is not reachable. It follows the `<binary> run <model>`
// convention with the prompt as the final argument.
type CommandClient struct {
	binary string
	model  string
	logger *slog.Logger
}

// NewCommandClient resolves the binary on PATH.
func NewCommandClient(command, model string, logger *slog.Logger) (*CommandClient, error) {
	path, err := exec.LookPath(command)
	if err != nil {
		return nil, fmt.Errorf("%s CLI not found in PATH: %w", command, err)
	}

	logger.Info("Created command LLM client", "binary", path, "model", model)

	return &CommandClient{binary: path, model: model, logger: logger}, nil
}

// Complete runs the CLI and captures its stdout. Failures are reported
// as ErrUnavailable since they usually mean the local daemon is down.
func (c *CommandClient) Complete(ctx context.Context, req Request) (string, error) {
	cmd := exec.CommandContext(ctx, c.binary, "run", c.model, req.Prompt)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	c.logger.Debug("Calling model CLI", "binary", c.binary, "model", c.model)

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%w: %s failed: %v, stderr: %s", ErrUnavailable, c.binary, err, stderr.String())
	}

	return strings.TrimSpace(stdout.String()), nil
}

// Available runs the CLI's list subcommand, which fails fast when the
// daemon is unreachable.
func (c *CommandClient) Available(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, probeCommandTimeout)
	defer cancel()

	if err := exec.CommandContext(probeCtx, c.binary, "list").Run(); err != nil {
		c.logger.Debug("Model CLI availability probe failed", "error", err)
		return false
	}
	return true
}

// ModelName identifies the configured model.
func (c *CommandClient) ModelName() string {
	return c.model
}
