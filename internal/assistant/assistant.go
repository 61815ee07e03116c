// Package assistant ties the selection pipeline, tool execution,
// response generation and storage together into conversational turns,
// and implements the REPL commands over them.
package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/radutopala/oneassist/internal/embedding"
	"github.com/radutopala/oneassist/internal/history"
	"github.com/radutopala/oneassist/internal/llm"
	"github.com/radutopala/oneassist/internal/selection"
	"github.com/radutopala/oneassist/internal/tools"
	"github.com/radutopala/oneassist/internal/vectorstore"
)

// ToolSelector decides how a query should be answered.
type ToolSelector interface {
	Select(ctx context.Context, query string, currentConversation int64) (*selection.Result, error)
}

// ToolExecutor runs a selected tool. tools.Registry satisfies it.
type ToolExecutor interface {
	Execute(ctx context.Context, toolName string, parameters map[string]any) (*tools.ExecutionResult, error)
}

// ResponseGenerator phrases replies. llm.Responder satisfies it.
type ResponseGenerator interface {
	RespondWithTool(ctx context.Context, query, toolName string, result map[string]any) string
	RespondWithContext(ctx context.Context, query string, exchanges []llm.Exchange) string
	Respond(ctx context.Context, query string) string
	Summarize(ctx context.Context, transcript string) (string, error)
}

// ToolFinder looks up catalog tools by name or description.
// tools.Registry satisfies it.
type ToolFinder interface {
	Search(query, category string) []*tools.Tool
}

// Deps carries everything an assistant needs.
type Deps struct {
	Selector  ToolSelector
	Executor  ToolExecutor
	Responder ResponseGenerator
	Tools     ToolFinder
	Store     *history.Store
	Codec     *embedding.Codec
	ToolStore *vectorstore.ToolStore
	MsgStore  *vectorstore.MessageStore
	DataDir   string
	Logger    *slog.Logger
}

// Assistant handles one session: it classifies input lines, runs
// message turns through the pipeline and dispatches commands. It is not
// safe for concurrent use; the REPL feeds it one line at a time.
type Assistant struct {
	selector  ToolSelector
	executor  ToolExecutor
	responder ResponseGenerator
	tools     ToolFinder
	store     *history.Store
	codec     *embedding.Codec
	toolStore *vectorstore.ToolStore
	msgStore  *vectorstore.MessageStore
	dataDir   string
	logger    *slog.Logger

	conv *history.Conversation
}

// New creates an assistant. The conversation starts lazily with the
// first stored message, titled after it.
func New(deps Deps) *Assistant {
	return &Assistant{
		selector:  deps.Selector,
		executor:  deps.Executor,
		responder: deps.Responder,
		tools:     deps.Tools,
		store:     deps.Store,
		codec:     deps.Codec,
		toolStore: deps.ToolStore,
		msgStore:  deps.MsgStore,
		dataDir:   deps.DataDir,
		logger:    deps.Logger,
	}
}

// HandleLine processes one line of user input and returns the reply to
// print and whether the session should end. Command and storage
// failures become replies; only a dead context surfaces as an error.
func (a *Assistant) HandleLine(ctx context.Context, raw string) (string, bool, error) {
	in := ProcessInput(raw)

	switch in.Kind {
	case KindInvalid:
		return invalidFeedback(in.Reason), false, nil
	case KindCommand:
		return a.handleCommand(ctx, in)
	default:
		reply, err := a.handleMessage(ctx, in.Text)
		return reply, false, err
	}
}

// End closes the active conversation, if any. Safe to call on shutdown
// regardless of session state.
func (a *Assistant) End(ctx context.Context) {
	if a.conv == nil {
		return
	}
	if err := a.store.EndConversation(ctx, a.conv.ID); err != nil {
		a.logger.Warn("Failed to end conversation", "conversation_id", a.conv.ID, "error", err)
	}
	a.conv = nil
}

// handleMessage runs one full turn: select, execute, respond, store,
// index.
func (a *Assistant) handleMessage(ctx context.Context, query string) (string, error) {
	res, err := a.selector.Select(ctx, query, a.conversationID())
	if err != nil {
		return "", err
	}

	a.logger.Debug("Turn decided",
		"outcome", res.Outcome, "route", res.Route, "reason", res.Reason,
		"candidates", len(res.Candidates), "pairs", len(res.Pairs), "degraded", res.Degraded)

	var (
		reply string
		sel   *selection.Candidate
		exec  *tools.ExecutionResult
	)

	switch res.Outcome {
	case selection.OutcomeDirectExecute:
		sel = res.Selected
		exec, err = a.executor.Execute(ctx, sel.Descriptor.Name, map[string]any{"query": query})
		if err != nil {
			return "", fmt.Errorf("execute %s: %w", sel.Descriptor.Name, err)
		}
		if exec.Success {
			reply = a.responder.RespondWithTool(ctx, query, sel.Descriptor.Name, exec.Result)
		} else {
			a.logger.Warn("Selected tool failed", "tool", sel.Descriptor.Name, "error", exec.Error)
			reply = a.responder.RespondWithTool(ctx, query, sel.Descriptor.Name, map[string]any{"error": exec.Error})
		}

	case selection.OutcomeContextResponse:
		reply = a.responder.RespondWithContext(ctx, query, exchanges(res.Pairs))

	case selection.OutcomePlainResponse:
		reply = a.responder.Respond(ctx, query)

	default:
		return invalidFeedback(ReasonEmpty), nil
	}

	if err := a.storeTurn(ctx, query, reply, sel, exec); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		a.logger.Error("Failed to store turn", "error", err)
	}

	return reply, nil
}

// storeTurn persists the exchange in order: user message, tool message
// when a tool ran, then the parent-linked assistant message. New rows
// are appended to the message index afterwards.
func (a *Assistant) storeTurn(ctx context.Context, query, reply string, sel *selection.Candidate, exec *tools.ExecutionResult) error {
	conv, err := a.conversation(ctx, query)
	if err != nil {
		return err
	}

	userMsg, err := a.store.AddMessage(ctx, conv.ID, history.RoleUser, query)
	if err != nil {
		return fmt.Errorf("store user message: %w", err)
	}

	opts := []history.MessageOption{history.WithParent(userMsg.ID)}
	if sel != nil && exec != nil {
		payload, err := json.Marshal(exec)
		if err != nil {
			return fmt.Errorf("encode tool result: %w", err)
		}
		if _, err := a.store.AddToolResponse(ctx, conv.ID, userMsg.ID, sel.Descriptor.ID, sel.Descriptor.Name, string(payload)); err != nil {
			return fmt.Errorf("store tool message: %w", err)
		}
		opts = append(opts, history.WithTool(sel.Descriptor.ID, sel.Descriptor.Name))
	}

	if _, err := a.store.AddMessage(ctx, conv.ID, history.RoleAssistant, reply, opts...); err != nil {
		return fmt.Errorf("store assistant message: %w", err)
	}

	return a.indexNewMessages(ctx)
}

// indexNewMessages appends rows stored since the last index update and
// persists the index.
func (a *Assistant) indexNewMessages(ctx context.Context) error {
	msgs, err := a.store.MessagesSince(ctx, a.msgStore.LastIndexedID())
	if err != nil {
		return fmt.Errorf("load new messages: %w", err)
	}
	if err := a.msgStore.Append(ctx, msgs); err != nil {
		return fmt.Errorf("append to message index: %w", err)
	}
	if err := a.msgStore.Save(a.dataDir); err != nil {
		return fmt.Errorf("save message index: %w", err)
	}
	return nil
}

// conversation returns the active conversation, starting one titled
// after the first message when none is active.
func (a *Assistant) conversation(ctx context.Context, firstMessage string) (*history.Conversation, error) {
	if a.conv != nil {
		return a.conv, nil
	}

	conv, err := a.store.BeginConversation(ctx, conversationTitle(firstMessage))
	if err != nil {
		return nil, fmt.Errorf("begin conversation: %w", err)
	}
	a.logger.Info("Conversation started", "conversation_id", conv.ID, "title", conv.Title)

	a.conv = conv
	return conv, nil
}

// conversationID returns the active conversation id, or zero when no
// conversation has started yet.
func (a *Assistant) conversationID() int64 {
	if a.conv == nil {
		return 0
	}
	return a.conv.ID
}

const maxTitleRunes = 50

func conversationTitle(firstMessage string) string {
	title := strings.Join(strings.Fields(firstMessage), " ")
	if runes := []rune(title); len(runes) > maxTitleRunes {
		title = string(runes[:maxTitleRunes-3]) + "..."
	}
	if title == "" {
		return "Untitled conversation"
	}
	return title
}

// exchanges converts context pairs into the responder's grounding form.
func exchanges(pairs []vectorstore.ContextPair) []llm.Exchange {
	out := make([]llm.Exchange, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, llm.Exchange{Question: p.Query.Content, Answer: p.Response.Content})
	}
	return out
}
