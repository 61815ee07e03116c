package assistant

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/radutopala/oneassist/internal/history"
	"github.com/radutopala/oneassist/internal/llm"
	"github.com/radutopala/oneassist/internal/tools"
	"github.com/radutopala/oneassist/internal/vectorstore"
)

const (
	historyLimit       = 20
	conversationsLimit = 10
	transcriptLimit    = 50

	searchLimit         = 10
	searchMinSimilarity = 0.3
)

const helpText = `Available commands:
  help                 Show this help message
  clear                End the current conversation and start fresh
  history              Show recent messages in this conversation
  conversations        List recent conversations
  stats                Show conversation statistics
  search <text>        Find similar past messages and matching tools
  embeddings           Show index statistics
  rebuild              Rebuild the tool and message indexes
  summarise [id]       Summarise a conversation (current one by default)
  exit                 End the session

Type anything else to chat. Messages must be 2 to 1000 characters;
commands may be prefixed with a slash.`

// handleCommand dispatches a classified command. Failures become
// replies so the session keeps going; only a dead context aborts.
func (a *Assistant) handleCommand(ctx context.Context, in Input) (string, bool, error) {
	var (
		reply string
		done  bool
		err   error
	)

	switch in.Command {
	case CommandHelp:
		reply = helpText
	case CommandClear:
		a.End(ctx)
		reply = "Conversation cleared. The next message starts a new one."
	case CommandHistory:
		reply, err = a.historyCommand(ctx)
	case CommandConversations:
		reply, err = a.conversationsCommand(ctx)
	case CommandStats:
		reply, err = a.statsCommand(ctx)
	case CommandSearch:
		reply, err = a.searchCommand(ctx, in.Args)
	case CommandEmbeddings:
		reply = a.embeddingsCommand()
	case CommandRebuild:
		reply, err = a.rebuildCommand(ctx)
	case CommandSummarise:
		reply, err = a.summariseCommand(ctx, in.Args)
	case CommandExit:
		a.End(ctx)
		reply = "Goodbye!"
		done = true
	default:
		reply = fmt.Sprintf("Unknown command: %s", in.Command)
	}

	if err != nil {
		if ctx.Err() != nil {
			return "", false, ctx.Err()
		}
		a.logger.Warn("Command failed", "command", in.Command, "error", err)
		return fmt.Sprintf("Error: %v", err), done, nil
	}

	return reply, done, nil
}

func (a *Assistant) historyCommand(ctx context.Context) (string, error) {
	if a.conv == nil {
		return "No active conversation yet.", nil
	}

	msgs, err := a.store.RecentMessages(ctx, a.conv.ID, historyLimit)
	if err != nil {
		return "", fmt.Errorf("load history: %w", err)
	}
	if len(msgs) == 0 {
		return "No messages in this conversation yet.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Conversation history (%d messages):\n", len(msgs))
	for _, msg := range msgs {
		fmt.Fprintf(&b, "  [%s] %s: %s",
			msg.CreatedAt.Format("15:04:05"), msg.Role, truncateRunes(msg.Content, 100))
		if msg.Role != history.RoleTool && msg.ToolName != "" {
			fmt.Fprintf(&b, " (tool: %s)", msg.ToolName)
		}
		b.WriteByte('\n')
	}

	return strings.TrimRight(b.String(), "\n"), nil
}

func (a *Assistant) conversationsCommand(ctx context.Context) (string, error) {
	convs, err := a.store.RecentConversations(ctx, conversationsLimit)
	if err != nil {
		return "", fmt.Errorf("load conversations: %w", err)
	}
	if len(convs) == 0 {
		return "No conversations found.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Recent conversations (%d):\n", len(convs))
	for _, conv := range convs {
		status := "active"
		if conv.EndedAt != nil {
			status = "ended"
		}
		fmt.Fprintf(&b, "  %d  %s  %-6s  %s",
			conv.ID, conv.StartedAt.Format("2006-01-02 15:04"), status, conv.Title)
		if conv.Summary != "" {
			b.WriteString("  [summarised]")
		}
		b.WriteByte('\n')
	}

	return strings.TrimRight(b.String(), "\n"), nil
}

func (a *Assistant) statsCommand(ctx context.Context) (string, error) {
	st, err := a.store.Stats(ctx)
	if err != nil {
		return "", fmt.Errorf("load stats: %w", err)
	}

	var b strings.Builder
	b.WriteString("Conversation statistics:\n")
	fmt.Fprintf(&b, "  Conversations: %d\n", st.Conversations)
	fmt.Fprintf(&b, "  Messages:      %d\n", st.Messages)
	for _, role := range sortedKeys(st.ByRole) {
		fmt.Fprintf(&b, "    %-10s %d\n", role+":", st.ByRole[role])
	}
	fmt.Fprintf(&b, "  Active tools:  %d\n", st.ActiveTools)
	fmt.Fprintf(&b, "  Session id:    %s", a.store.SessionID())

	return b.String(), nil
}

func (a *Assistant) searchCommand(ctx context.Context, query string) (string, error) {
	if query == "" {
		return "Search query cannot be empty. Usage: search <text>", nil
	}

	vec, err := a.codec.Encode(ctx, query)
	if err != nil {
		return "", fmt.Errorf("encode query: %w", err)
	}

	hits, err := a.msgStore.Search(vec, searchLimit, vectorstore.MessageSearchOptions{
		ExcludeConversation: a.conversationID(),
		MinSimilarity:       searchMinSimilarity,
	})
	if err != nil {
		return "", fmt.Errorf("search messages: %w", err)
	}

	var b strings.Builder
	if len(hits) == 0 {
		b.WriteString("No similar messages found.\n")
	} else {
		fmt.Fprintf(&b, "Found %d similar messages:\n", len(hits))
		for i, hit := range hits {
			fmt.Fprintf(&b, "  %d. %.3f  %s  %s\n     %s\n",
				i+1, hit.Similarity, hit.Message.CreatedAt.Format("2006-01-02 15:04"),
				hit.Message.Role, truncateRunes(hit.Message.Content, 150))
		}
	}

	if matches := a.tools.Search(query, ""); len(matches) > 0 {
		b.WriteString("Matching tools:\n")
		for _, tool := range matches {
			fmt.Fprintf(&b, "  %s (%s): %s\n", tool.Name, tool.Category, tool.Description)
		}
	}

	return strings.TrimRight(b.String(), "\n"), nil
}

func (a *Assistant) embeddingsCommand() string {
	ms := a.msgStore.Stats()
	ts := a.toolStore.Stats()

	var b strings.Builder
	b.WriteString("Index statistics:\n")
	fmt.Fprintf(&b, "  Messages indexed: %d\n", ms.MessageCount)
	fmt.Fprintf(&b, "  Last indexed id:  %d\n", ms.LastIndexed)
	for _, role := range sortedKeys(ms.ByRole) {
		fmt.Fprintf(&b, "    %-10s %d\n", role+":", ms.ByRole[role])
	}
	fmt.Fprintf(&b, "  Tools indexed:    %d\n", ts.ToolCount)
	fmt.Fprintf(&b, "  Dimension:        %d\n", ts.Dimension)
	fmt.Fprintf(&b, "  Embedding model:  %s", ts.Model)

	return b.String()
}

func (a *Assistant) rebuildCommand(ctx context.Context) (string, error) {
	start := time.Now()

	recs, err := a.store.ActiveTools(ctx)
	if err != nil {
		return "", fmt.Errorf("load tool catalog: %w", err)
	}
	descs := make([]tools.Descriptor, 0, len(recs))
	for _, rec := range recs {
		descs = append(descs, rec.Descriptor())
	}

	if err := a.toolStore.Rebuild(ctx, a.dataDir, descs); err != nil {
		return "", fmt.Errorf("rebuild tool index: %w", err)
	}
	if err := a.msgStore.Rebuild(ctx, a.dataDir); err != nil {
		return "", fmt.Errorf("rebuild message index: %w", err)
	}

	return fmt.Sprintf("Indexes rebuilt: %d tools, %d messages (%.2fs).",
		a.toolStore.Count(), a.msgStore.Count(), time.Since(start).Seconds()), nil
}

func (a *Assistant) summariseCommand(ctx context.Context, args string) (string, error) {
	var conversationID int64
	switch {
	case args != "":
		raw := strings.Fields(args)[0]
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Sprintf("Invalid conversation id %q: must be a number.", raw), nil
		}
		conversationID = id
	case a.conv != nil:
		conversationID = a.conv.ID
	default:
		return "No active conversation. Use summarise <id>; the conversations command lists ids.", nil
	}

	if _, err := a.store.Conversation(ctx, conversationID); err != nil {
		if errors.Is(err, history.ErrNotFound) {
			return fmt.Sprintf("Conversation %d not found.", conversationID), nil
		}
		return "", err
	}

	transcript, err := a.transcript(ctx, conversationID)
	if err != nil {
		return "", err
	}
	if transcript == "" {
		return fmt.Sprintf("Conversation %d has no messages to summarise.", conversationID), nil
	}

	summary, err := a.responder.Summarize(ctx, transcript)
	if err != nil {
		if errors.Is(err, llm.ErrUnavailable) {
			return "The language model is not reachable, so the conversation cannot be summarised right now.", nil
		}
		return "", err
	}

	if err := a.store.SetSummary(ctx, conversationID, summary); err != nil {
		return "", fmt.Errorf("save summary: %w", err)
	}

	return fmt.Sprintf("Summary saved for conversation %d:\n%s", conversationID, summary), nil
}

// transcript renders the conversation for summarisation: user and
// assistant lines plus the set of tools that answered.
func (a *Assistant) transcript(ctx context.Context, conversationID int64) (string, error) {
	msgs, err := a.store.RecentMessages(ctx, conversationID, transcriptLimit)
	if err != nil {
		return "", fmt.Errorf("load messages: %w", err)
	}

	var b strings.Builder
	used := map[string]struct{}{}
	for _, msg := range msgs {
		if msg.Role == history.RoleTool {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", msg.Role, msg.Content)
		if msg.ToolName != "" {
			used[msg.ToolName] = struct{}{}
		}
	}
	if b.Len() == 0 {
		return "", nil
	}

	if len(used) > 0 {
		fmt.Fprintf(&b, "Tools used: %s\n", strings.Join(sortedKeys(used), ", "))
	}

	return b.String(), nil
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
