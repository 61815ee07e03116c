package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/radutopala/oneassist/internal/embedding"
	"github.com/radutopala/oneassist/internal/history"
	"github.com/radutopala/oneassist/internal/llm"
	"github.com/radutopala/oneassist/internal/selection"
	"github.com/radutopala/oneassist/internal/tools"
	"github.com/radutopala/oneassist/internal/vectorstore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Quiet during tests
	}))
}

type stubSelector struct {
	result          *selection.Result
	err             error
	calls           int
	gotQuery        string
	gotConversation int64
}

func (s *stubSelector) Select(ctx context.Context, query string, currentConversation int64) (*selection.Result, error) {
	s.calls++
	s.gotQuery = query
	s.gotConversation = currentConversation
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type stubExecutor struct {
	result    *tools.ExecutionResult
	err       error
	gotName   string
	gotParams map[string]any
}

func (s *stubExecutor) Execute(ctx context.Context, toolName string, parameters map[string]any) (*tools.ExecutionResult, error) {
	s.gotName = toolName
	s.gotParams = parameters
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type stubResponder struct {
	calls         []string
	gotToolName   string
	gotToolResult map[string]any
	gotExchanges  []llm.Exchange
	gotTranscript string
	summary       string
	summaryErr    error
}

func (s *stubResponder) RespondWithTool(ctx context.Context, query, toolName string, result map[string]any) string {
	s.calls = append(s.calls, "tool")
	s.gotToolName = toolName
	s.gotToolResult = result
	return "tool reply for " + toolName
}

func (s *stubResponder) RespondWithContext(ctx context.Context, query string, exchanges []llm.Exchange) string {
	s.calls = append(s.calls, "context")
	s.gotExchanges = exchanges
	return "context reply text"
}

func (s *stubResponder) Respond(ctx context.Context, query string) string {
	s.calls = append(s.calls, "plain")
	return "plain reply text"
}

func (s *stubResponder) Summarize(ctx context.Context, transcript string) (string, error) {
	s.calls = append(s.calls, "summarize")
	s.gotTranscript = transcript
	if s.summaryErr != nil {
		return "", s.summaryErr
	}
	return s.summary, nil
}

func timeDescriptor() tools.Descriptor {
	return tools.Descriptor{
		ID:            1,
		Name:          "current_time",
		Category:      "builtin",
		Description:   "Reports the current time of day",
		QueryExamples: []string{"what time is it"},
	}
}

// AssistantTestSuite is the test suite for Assistant
type AssistantTestSuite struct {
	suite.Suite
	ctx       context.Context
	dataDir   string
	store     *history.Store
	codec     *embedding.Codec
	toolStore *vectorstore.ToolStore
	msgStore  *vectorstore.MessageStore
	selector  *stubSelector
	executor  *stubExecutor
	responder *stubResponder
	assistant *Assistant
}

// SetupTest runs before each test
func (s *AssistantTestSuite) SetupTest() {
	logger := testLogger()
	dir := s.T().TempDir()

	store, err := history.Open(filepath.Join(dir, "assistant.db"), logger)
	require.NoError(s.T(), err)

	s.ctx = context.Background()
	s.dataDir = filepath.Join(dir, "indexes")
	s.store = store
	s.codec = embedding.NewCodec(embedding.NewHashEmbedder(64, logger), 2048, 128, logger)
	s.toolStore = vectorstore.NewToolStore(s.codec, logger)
	s.msgStore = vectorstore.NewMessageStore(s.codec, store, logger)

	s.selector = &stubSelector{result: &selection.Result{
		Outcome: selection.OutcomePlainResponse,
		Reason:  "no tool or context matched",
	}}
	s.executor = &stubExecutor{}
	s.responder = &stubResponder{summary: "a short summary"}

	registry := tools.NewRegistry(logger)
	require.NoError(s.T(), tools.RegisterBuiltins(registry))

	s.assistant = New(Deps{
		Selector:  s.selector,
		Executor:  s.executor,
		Responder: s.responder,
		Tools:     registry,
		Store:     store,
		Codec:     s.codec,
		ToolStore: s.toolStore,
		MsgStore:  s.msgStore,
		DataDir:   s.dataDir,
		Logger:    logger,
	})
}

// TearDownTest runs after each test
func (s *AssistantTestSuite) TearDownTest() {
	require.NoError(s.T(), s.store.Close())
}

// TestDirectExecuteTurn tests a full tool turn: execution, response,
// persistence, and index growth
func (s *AssistantTestSuite) TestDirectExecuteTurn() {
	s.selector.result = &selection.Result{
		Outcome:  selection.OutcomeDirectExecute,
		Route:    selection.RouteBypass,
		Selected: &selection.Candidate{Descriptor: timeDescriptor()},
		Reason:   "high-confidence semantic match",
	}
	s.executor.result = &tools.ExecutionResult{
		Success:  true,
		ToolName: "current_time",
		Result:   map[string]any{"time": "10:30 AM"},
	}

	reply, done, err := s.assistant.HandleLine(s.ctx, "what time is it right now")
	require.NoError(s.T(), err)
	require.False(s.T(), done)
	require.Equal(s.T(), "tool reply for current_time", reply)

	require.Equal(s.T(), "what time is it right now", s.selector.gotQuery)
	require.Zero(s.T(), s.selector.gotConversation)
	require.Equal(s.T(), "current_time", s.executor.gotName)
	require.Equal(s.T(), map[string]any{"query": "what time is it right now"}, s.executor.gotParams)
	require.Equal(s.T(), map[string]any{"time": "10:30 AM"}, s.responder.gotToolResult)

	msgs, err := s.store.MessagesSince(s.ctx, 0)
	require.NoError(s.T(), err)
	require.Len(s.T(), msgs, 3)

	user, tool, asst := msgs[0], msgs[1], msgs[2]

	require.Equal(s.T(), history.RoleUser, user.Role)
	require.Equal(s.T(), "what time is it right now", user.Content)

	require.Equal(s.T(), history.RoleTool, tool.Role)
	require.NotNil(s.T(), tool.ParentMessageID)
	require.Equal(s.T(), user.ID, *tool.ParentMessageID)
	require.NotNil(s.T(), tool.ToolID)
	require.Equal(s.T(), int64(1), *tool.ToolID)
	require.Equal(s.T(), "current_time", tool.ToolName)
	var payload tools.ExecutionResult
	require.NoError(s.T(), json.Unmarshal([]byte(tool.Content), &payload))
	require.True(s.T(), payload.Success)
	require.Equal(s.T(), "current_time", payload.ToolName)

	require.Equal(s.T(), history.RoleAssistant, asst.Role)
	require.NotNil(s.T(), asst.ParentMessageID)
	require.Equal(s.T(), user.ID, *asst.ParentMessageID)
	require.NotNil(s.T(), asst.ToolID)
	require.Equal(s.T(), "current_time", asst.ToolName)

	// The user and assistant rows entered the index and the snapshot
	// landed on disk. The tool payload row is not conversational and
	// stays out.
	require.Equal(s.T(), 2, s.msgStore.Count())
	require.Equal(s.T(), asst.ID, s.msgStore.LastIndexedID())
	_, err = os.Stat(filepath.Join(s.dataDir, "messages.vec"))
	require.NoError(s.T(), err)
}

// TestDirectExecuteToolFailure tests that a failed execution still gets
// phrased and persisted
func (s *AssistantTestSuite) TestDirectExecuteToolFailure() {
	s.selector.result = &selection.Result{
		Outcome:  selection.OutcomeDirectExecute,
		Route:    selection.RouteEvaluated,
		Selected: &selection.Candidate{Descriptor: timeDescriptor()},
	}
	s.executor.result = &tools.ExecutionResult{
		Success:   false,
		ToolName:  "current_time",
		Error:     "clock unavailable",
		ErrorType: "execution_error",
	}

	reply, _, err := s.assistant.HandleLine(s.ctx, "what time is it right now")
	require.NoError(s.T(), err)
	require.Equal(s.T(), "tool reply for current_time", reply)
	require.Equal(s.T(), map[string]any{"error": "clock unavailable"}, s.responder.gotToolResult)

	msgs, err := s.store.MessagesSince(s.ctx, 0)
	require.NoError(s.T(), err)
	require.Len(s.T(), msgs, 3)

	var payload tools.ExecutionResult
	require.NoError(s.T(), json.Unmarshal([]byte(msgs[1].Content), &payload))
	require.False(s.T(), payload.Success)
	require.Equal(s.T(), "clock unavailable", payload.Error)
}

// TestExecutorErrorAborts tests that an executor failure surfaces as an
// error and stores nothing
func (s *AssistantTestSuite) TestExecutorErrorAborts() {
	s.selector.result = &selection.Result{
		Outcome:  selection.OutcomeDirectExecute,
		Route:    selection.RouteBypass,
		Selected: &selection.Candidate{Descriptor: timeDescriptor()},
	}
	s.executor.err = errors.New("registry closed")

	_, _, err := s.assistant.HandleLine(s.ctx, "what time is it right now")
	require.Error(s.T(), err)
	require.Contains(s.T(), err.Error(), "execute current_time")

	st, err := s.store.Stats(s.ctx)
	require.NoError(s.T(), err)
	require.Zero(s.T(), st.Messages)
}

// TestContextResponseTurn tests answering from retrieved history
func (s *AssistantTestSuite) TestContextResponseTurn() {
	s.selector.result = &selection.Result{
		Outcome: selection.OutcomeContextResponse,
		Pairs: []vectorstore.ContextPair{{
			Query:      history.Message{Content: "what is the capital of france"},
			Response:   history.Message{Content: "The capital of France is Paris."},
			Similarity: 0.82,
		}},
		Reason: "related past exchanges retrieved",
	}

	reply, _, err := s.assistant.HandleLine(s.ctx, "tell me about france again")
	require.NoError(s.T(), err)
	require.Equal(s.T(), "context reply text", reply)

	require.Len(s.T(), s.responder.gotExchanges, 1)
	require.Equal(s.T(), "what is the capital of france", s.responder.gotExchanges[0].Question)
	require.Equal(s.T(), "The capital of France is Paris.", s.responder.gotExchanges[0].Answer)

	msgs, err := s.store.MessagesSince(s.ctx, 0)
	require.NoError(s.T(), err)
	require.Len(s.T(), msgs, 2)
	require.Equal(s.T(), history.RoleUser, msgs[0].Role)
	require.Equal(s.T(), history.RoleAssistant, msgs[1].Role)
	require.Nil(s.T(), msgs[1].ToolID)
	require.Empty(s.T(), msgs[1].ToolName)
}

// TestPlainResponseTurn tests the no-tool no-context path
func (s *AssistantTestSuite) TestPlainResponseTurn() {
	reply, _, err := s.assistant.HandleLine(s.ctx, "tell me something nice")
	require.NoError(s.T(), err)
	require.Equal(s.T(), "plain reply text", reply)
	require.Equal(s.T(), []string{"plain"}, s.responder.calls)

	msgs, err := s.store.MessagesSince(s.ctx, 0)
	require.NoError(s.T(), err)
	require.Len(s.T(), msgs, 2)
}

// TestRejectEmptyOutcome tests the reply for a selector rejection that
// slipped past input validation
func (s *AssistantTestSuite) TestRejectEmptyOutcome() {
	s.selector.result = &selection.Result{
		Outcome: selection.OutcomeRejectEmpty,
		Reason:  "empty query",
	}

	reply, _, err := s.assistant.HandleLine(s.ctx, "hello there friend")
	require.NoError(s.T(), err)
	require.Equal(s.T(), "Please enter a message or question.", reply)

	st, err := s.store.Stats(s.ctx)
	require.NoError(s.T(), err)
	require.Zero(s.T(), st.Messages)
}

// TestSelectorErrorPropagates tests that pipeline errors abort the turn
func (s *AssistantTestSuite) TestSelectorErrorPropagates() {
	s.selector.err = errors.New("index corrupted")

	_, _, err := s.assistant.HandleLine(s.ctx, "anything goes here")
	require.Error(s.T(), err)
	require.Contains(s.T(), err.Error(), "index corrupted")

	st, err := s.store.Stats(s.ctx)
	require.NoError(s.T(), err)
	require.Zero(s.T(), st.Messages)
}

// TestConversationLifecycle tests lazy start, reuse, and clear
func (s *AssistantTestSuite) TestConversationLifecycle() {
	_, _, err := s.assistant.HandleLine(s.ctx, "first message starts things")
	require.NoError(s.T(), err)

	convs, err := s.store.RecentConversations(s.ctx, 10)
	require.NoError(s.T(), err)
	require.Len(s.T(), convs, 1)
	require.Equal(s.T(), "first message starts things", convs[0].Title)
	require.Nil(s.T(), convs[0].EndedAt)
	firstID := convs[0].ID

	_, _, err = s.assistant.HandleLine(s.ctx, "second message continues")
	require.NoError(s.T(), err)
	require.Equal(s.T(), firstID, s.selector.gotConversation)

	convs, err = s.store.RecentConversations(s.ctx, 10)
	require.NoError(s.T(), err)
	require.Len(s.T(), convs, 1)

	reply, done, err := s.assistant.HandleLine(s.ctx, "clear")
	require.NoError(s.T(), err)
	require.False(s.T(), done)
	require.Contains(s.T(), reply, "Conversation cleared")

	ended, err := s.store.Conversation(s.ctx, firstID)
	require.NoError(s.T(), err)
	require.NotNil(s.T(), ended.EndedAt)

	_, _, err = s.assistant.HandleLine(s.ctx, "a brand new conversation")
	require.NoError(s.T(), err)
	require.Zero(s.T(), s.selector.gotConversation)

	convs, err = s.store.RecentConversations(s.ctx, 10)
	require.NoError(s.T(), err)
	require.Len(s.T(), convs, 2)
}

// TestConversationTitleTruncated tests the title limit on long openers
func (s *AssistantTestSuite) TestConversationTitleTruncated() {
	long := strings.TrimSpace(strings.Repeat("lengthy ", 20))
	_, _, err := s.assistant.HandleLine(s.ctx, long)
	require.NoError(s.T(), err)

	convs, err := s.store.RecentConversations(s.ctx, 1)
	require.NoError(s.T(), err)
	require.Len(s.T(), convs, 1)
	require.Len(s.T(), []rune(convs[0].Title), 50)
	require.True(s.T(), strings.HasSuffix(convs[0].Title, "..."))
}

// TestInvalidInputFeedback tests that invalid lines never reach the
// pipeline
func (s *AssistantTestSuite) TestInvalidInputFeedback() {
	reply, done, err := s.assistant.HandleLine(s.ctx, "")
	require.NoError(s.T(), err)
	require.False(s.T(), done)
	require.Equal(s.T(), "Please enter a message or question.", reply)

	reply, _, err = s.assistant.HandleLine(s.ctx, "a")
	require.NoError(s.T(), err)
	require.Equal(s.T(), "Please enter at least 2 characters.", reply)

	reply, _, err = s.assistant.HandleLine(s.ctx, strings.Repeat("x", 1200))
	require.NoError(s.T(), err)
	require.Equal(s.T(), "Message too long: at most 1000 characters are allowed.", reply)

	require.Zero(s.T(), s.selector.calls)
}

// TestHelpCommand tests help and its aliases
func (s *AssistantTestSuite) TestHelpCommand() {
	reply, done, err := s.assistant.HandleLine(s.ctx, "help")
	require.NoError(s.T(), err)
	require.False(s.T(), done)
	require.Contains(s.T(), reply, "search <text>")
	require.Contains(s.T(), reply, "summarise [id]")

	short, _, err := s.assistant.HandleLine(s.ctx, "?")
	require.NoError(s.T(), err)
	require.Equal(s.T(), reply, short)
}

// TestExitCommand tests that exit ends the session and the conversation
func (s *AssistantTestSuite) TestExitCommand() {
	_, _, err := s.assistant.HandleLine(s.ctx, "hello there friend")
	require.NoError(s.T(), err)

	reply, done, err := s.assistant.HandleLine(s.ctx, "exit")
	require.NoError(s.T(), err)
	require.True(s.T(), done)
	require.Equal(s.T(), "Goodbye!", reply)

	convs, err := s.store.RecentConversations(s.ctx, 1)
	require.NoError(s.T(), err)
	require.Len(s.T(), convs, 1)
	require.NotNil(s.T(), convs[0].EndedAt)
}

// TestHistoryCommand tests the transcript view of the active
// conversation
func (s *AssistantTestSuite) TestHistoryCommand() {
	reply, _, err := s.assistant.HandleLine(s.ctx, "history")
	require.NoError(s.T(), err)
	require.Equal(s.T(), "No active conversation yet.", reply)

	s.selector.result = &selection.Result{
		Outcome:  selection.OutcomeDirectExecute,
		Route:    selection.RouteBypass,
		Selected: &selection.Candidate{Descriptor: timeDescriptor()},
	}
	s.executor.result = &tools.ExecutionResult{
		Success:  true,
		ToolName: "current_time",
		Result:   map[string]any{"time": "10:30 AM"},
	}
	_, _, err = s.assistant.HandleLine(s.ctx, "what time is it right now")
	require.NoError(s.T(), err)

	reply, _, err = s.assistant.HandleLine(s.ctx, "history")
	require.NoError(s.T(), err)
	require.Contains(s.T(), reply, "user: what time is it right now")
	require.Contains(s.T(), reply, "assistant: tool reply for current_time")
	require.Contains(s.T(), reply, "(tool: current_time)")
}

// TestConversationsCommand tests the listing across sessions
func (s *AssistantTestSuite) TestConversationsCommand() {
	reply, _, err := s.assistant.HandleLine(s.ctx, "conversations")
	require.NoError(s.T(), err)
	require.Equal(s.T(), "No conversations found.", reply)

	_, _, err = s.assistant.HandleLine(s.ctx, "planning a trip to norway")
	require.NoError(s.T(), err)

	reply, _, err = s.assistant.HandleLine(s.ctx, "conversations")
	require.NoError(s.T(), err)
	require.Contains(s.T(), reply, "planning a trip to norway")
	require.Contains(s.T(), reply, "active")
	require.NotContains(s.T(), reply, "[summarised]")

	_, _, err = s.assistant.HandleLine(s.ctx, "summarise")
	require.NoError(s.T(), err)

	reply, _, err = s.assistant.HandleLine(s.ctx, "conversations")
	require.NoError(s.T(), err)
	require.Contains(s.T(), reply, "[summarised]")
}

// TestStatsCommand tests the statistics report
func (s *AssistantTestSuite) TestStatsCommand() {
	_, _, err := s.assistant.HandleLine(s.ctx, "the weather in berlin is lovely")
	require.NoError(s.T(), err)

	reply, _, err := s.assistant.HandleLine(s.ctx, "stats")
	require.NoError(s.T(), err)
	require.Contains(s.T(), reply, "Conversations: 1")
	require.Contains(s.T(), reply, "user:")
	require.Contains(s.T(), reply, "assistant:")
	require.Contains(s.T(), reply, "Session id:")
	require.Contains(s.T(), reply, s.store.SessionID())
}

// TestSearchCommand tests similarity search over past conversations
func (s *AssistantTestSuite) TestSearchCommand() {
	reply, _, err := s.assistant.HandleLine(s.ctx, "search")
	require.NoError(s.T(), err)
	require.Equal(s.T(), "Search query cannot be empty. Usage: search <text>", reply)

	_, _, err = s.assistant.HandleLine(s.ctx, "the weather in berlin is lovely today")
	require.NoError(s.T(), err)
	_, _, err = s.assistant.HandleLine(s.ctx, "clear")
	require.NoError(s.T(), err)
	_, _, err = s.assistant.HandleLine(s.ctx, "cooking pasta takes twelve minutes")
	require.NoError(s.T(), err)

	// The first conversation is no longer active, so its messages are
	// searchable; an identical query matches its user message.
	reply, _, err = s.assistant.HandleLine(s.ctx, "search the weather in berlin is lovely today")
	require.NoError(s.T(), err)
	require.Contains(s.T(), reply, "similar messages")
	require.Contains(s.T(), reply, "the weather in berlin is lovely today")
}

// TestSearchCommandMatchesTools tests the fuzzy catalog lookup in the
// search results
func (s *AssistantTestSuite) TestSearchCommandMatchesTools() {
	reply, _, err := s.assistant.HandleLine(s.ctx, "search time")
	require.NoError(s.T(), err)
	require.Contains(s.T(), reply, "Matching tools:")
	require.Contains(s.T(), reply, "current_time")
	require.Contains(s.T(), reply, "No similar messages found.")
}

// TestSearchExcludesActiveConversation tests that the current exchange
// does not match itself
func (s *AssistantTestSuite) TestSearchExcludesActiveConversation() {
	_, _, err := s.assistant.HandleLine(s.ctx, "the weather in berlin is lovely today")
	require.NoError(s.T(), err)

	// Every indexed message belongs to the active conversation, so
	// nothing is eligible.
	reply, _, err := s.assistant.HandleLine(s.ctx, "search the weather in berlin is lovely today")
	require.NoError(s.T(), err)
	require.Equal(s.T(), "No similar messages found.", reply)
}

// TestEmbeddingsCommand tests the index statistics report
func (s *AssistantTestSuite) TestEmbeddingsCommand() {
	_, _, err := s.assistant.HandleLine(s.ctx, "the weather in berlin is lovely")
	require.NoError(s.T(), err)

	reply, _, err := s.assistant.HandleLine(s.ctx, "embeddings")
	require.NoError(s.T(), err)
	require.Contains(s.T(), reply, "Messages indexed: 2")
	require.Contains(s.T(), reply, "Tools indexed:")
	require.Contains(s.T(), reply, "hash-fnv1a-64")
}

// TestRebuildCommand tests rebuilding both indexes from storage
func (s *AssistantTestSuite) TestRebuildCommand() {
	require.NoError(s.T(), s.store.SyncTools(s.ctx, []history.ToolRecord{
		{
			Name:          "current_time",
			Category:      "builtin",
			Description:   "Reports the current time of day",
			QueryExamples: []string{"what time is it"},
		},
		{
			Name:          "calculator",
			Category:      "builtin",
			Description:   "Evaluates basic arithmetic expressions",
			QueryExamples: []string{"what is 2 plus 2"},
		},
	}))

	_, _, err := s.assistant.HandleLine(s.ctx, "the weather in berlin is lovely")
	require.NoError(s.T(), err)

	reply, _, err := s.assistant.HandleLine(s.ctx, "rebuild")
	require.NoError(s.T(), err)
	require.Contains(s.T(), reply, "Indexes rebuilt: 2 tools, 2 messages")

	require.Equal(s.T(), 2, s.toolStore.Count())
	require.Equal(s.T(), 2, s.msgStore.Count())
	_, err = os.Stat(filepath.Join(s.dataDir, "tools.vec"))
	require.NoError(s.T(), err)
}

// TestSummariseCommand tests summarising the active conversation
func (s *AssistantTestSuite) TestSummariseCommand() {
	reply, _, err := s.assistant.HandleLine(s.ctx, "summarise")
	require.NoError(s.T(), err)
	require.Contains(s.T(), reply, "No active conversation")

	_, _, err = s.assistant.HandleLine(s.ctx, "planning a trip to norway")
	require.NoError(s.T(), err)

	reply, _, err = s.assistant.HandleLine(s.ctx, "summarise")
	require.NoError(s.T(), err)
	require.Contains(s.T(), reply, "Summary saved for conversation")
	require.Contains(s.T(), reply, "a short summary")

	require.Contains(s.T(), s.responder.gotTranscript, "user: planning a trip to norway")
	require.Contains(s.T(), s.responder.gotTranscript, "assistant: plain reply text")

	convs, err := s.store.RecentConversations(s.ctx, 1)
	require.NoError(s.T(), err)
	require.Len(s.T(), convs, 1)
	require.Equal(s.T(), "a short summary", convs[0].Summary)
}

// TestSummariseCommandToolAttribution tests that the transcript names
// the tools that answered
func (s *AssistantTestSuite) TestSummariseCommandToolAttribution() {
	s.selector.result = &selection.Result{
		Outcome:  selection.OutcomeDirectExecute,
		Route:    selection.RouteBypass,
		Selected: &selection.Candidate{Descriptor: timeDescriptor()},
	}
	s.executor.result = &tools.ExecutionResult{
		Success:  true,
		ToolName: "current_time",
		Result:   map[string]any{"time": "10:30 AM"},
	}
	_, _, err := s.assistant.HandleLine(s.ctx, "what time is it right now")
	require.NoError(s.T(), err)

	_, _, err = s.assistant.HandleLine(s.ctx, "summarise")
	require.NoError(s.T(), err)

	require.Contains(s.T(), s.responder.gotTranscript, "Tools used: current_time")
	require.NotContains(s.T(), s.responder.gotTranscript, "tool:")
}

// TestSummariseCommandBadArguments tests id parsing and lookups
func (s *AssistantTestSuite) TestSummariseCommandBadArguments() {
	reply, _, err := s.assistant.HandleLine(s.ctx, "summarise abc")
	require.NoError(s.T(), err)
	require.Contains(s.T(), reply, `Invalid conversation id "abc"`)

	reply, _, err = s.assistant.HandleLine(s.ctx, "summarise 999")
	require.NoError(s.T(), err)
	require.Equal(s.T(), "Conversation 999 not found.", reply)
}

// TestSummariseCommandModelUnavailable tests the degraded reply when
// the model cannot be reached
func (s *AssistantTestSuite) TestSummariseCommandModelUnavailable() {
	s.responder.summaryErr = fmt.Errorf("summarize transcript: %w", llm.ErrUnavailable)

	_, _, err := s.assistant.HandleLine(s.ctx, "planning a trip to norway")
	require.NoError(s.T(), err)

	reply, _, err := s.assistant.HandleLine(s.ctx, "summarise")
	require.NoError(s.T(), err)
	require.Contains(s.T(), reply, "not reachable")

	convs, err := s.store.RecentConversations(s.ctx, 1)
	require.NoError(s.T(), err)
	require.Empty(s.T(), convs[0].Summary)
}

// TestCommandErrorBecomesReply tests that command failures keep the
// session alive
func (s *AssistantTestSuite) TestCommandErrorBecomesReply() {
	s.responder.summaryErr = errors.New("model exploded")

	_, _, err := s.assistant.HandleLine(s.ctx, "planning a trip to norway")
	require.NoError(s.T(), err)

	reply, done, err := s.assistant.HandleLine(s.ctx, "summarise")
	require.NoError(s.T(), err)
	require.False(s.T(), done)
	require.Contains(s.T(), reply, "Error:")
	require.Contains(s.T(), reply, "model exploded")
}

// TestCanceledContextAborts tests that a dead context surfaces instead
// of becoming an error reply
func (s *AssistantTestSuite) TestCanceledContextAborts() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := s.assistant.HandleLine(ctx, "stats")
	require.Error(s.T(), err)
	require.ErrorIs(s.T(), err, context.Canceled)
}

// TestEndWithoutConversation tests that End is safe to call anytime
func (s *AssistantTestSuite) TestEndWithoutConversation() {
	s.assistant.End(s.ctx)

	_, _, err := s.assistant.HandleLine(s.ctx, "hello there friend")
	require.NoError(s.T(), err)
	s.assistant.End(s.ctx)
	s.assistant.End(s.ctx)

	convs, err := s.store.RecentConversations(s.ctx, 1)
	require.NoError(s.T(), err)
	require.NotNil(s.T(), convs[0].EndedAt)
}

// TestAssistantTestSuite runs the suite
func TestAssistantTestSuite(t *testing.T) {
	suite.Run(t, new(AssistantTestSuite))
}
