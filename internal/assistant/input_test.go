package assistant

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestSanitize tests control stripping and whitespace collapsing
func TestSanitize(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected string
	}{
		{"plain", "what time is it", "what time is it"},
		{"surrounding space", "  hello  ", "hello"},
		{"collapsed runs", "hello    there\t\tfriend", "hello there friend"},
		{"newlines collapse", "line one\nline two", "line one line two"},
		{"control characters stripped", "he\x00ll\x1bo\x7f", "hello"},
		{"empty", "", ""},
		{"only controls", "\x00\x01\x02", ""},
		{"unicode kept", "café ☃", "café ☃"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, Sanitize(tt.raw))
		})
	}
}

// TestProcessInput tests line classification
func TestProcessInput(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		kind    Kind
		command Command
		args    string
		reason  InvalidReason
	}{
		{name: "message", raw: "what time is it", kind: KindMessage},
		{name: "exit", raw: "exit", kind: KindCommand, command: CommandExit},
		{name: "quit uppercase", raw: "QUIT", kind: KindCommand, command: CommandExit},
		{name: "bye", raw: "bye", kind: KindCommand, command: CommandExit},
		{name: "goodbye", raw: "goodbye", kind: KindCommand, command: CommandExit},
		{name: "help", raw: "help", kind: KindCommand, command: CommandHelp},
		{name: "help slash", raw: "/help", kind: KindCommand, command: CommandHelp},
		{name: "help question mark", raw: "?", kind: KindCommand, command: CommandHelp},
		{name: "clear", raw: "clear", kind: KindCommand, command: CommandClear},
		{name: "reset", raw: "reset", kind: KindCommand, command: CommandClear},
		{name: "history", raw: "history", kind: KindCommand, command: CommandHistory},
		{name: "history slash", raw: "/history", kind: KindCommand, command: CommandHistory},
		{name: "conversations", raw: "conversations", kind: KindCommand, command: CommandConversations},
		{name: "stats", raw: "stats", kind: KindCommand, command: CommandStats},
		{name: "embeddings", raw: "embeddings", kind: KindCommand, command: CommandEmbeddings},
		{name: "rebuild", raw: "rebuild", kind: KindCommand, command: CommandRebuild},
		{name: "search with args", raw: "search golang tips", kind: KindCommand, command: CommandSearch, args: "golang tips"},
		{name: "search keeps arg casing", raw: "SEARCH Golang Tips", kind: KindCommand, command: CommandSearch, args: "Golang Tips"},
		{name: "summarise", raw: "summarise", kind: KindCommand, command: CommandSummarise},
		{name: "summarize american spelling", raw: "summarize 25", kind: KindCommand, command: CommandSummarise, args: "25"},
		{name: "summarise slash with id", raw: "/summarise 25", kind: KindCommand, command: CommandSummarise, args: "25"},
		{name: "command word prefix only", raw: "searching for something", kind: KindMessage},
		{name: "empty", raw: "", kind: KindInvalid, reason: ReasonEmpty},
		{name: "whitespace only", raw: "   \t  ", kind: KindInvalid, reason: ReasonEmpty},
		{name: "too short", raw: "a", kind: KindInvalid, reason: ReasonTooShort},
		{name: "too long", raw: strings.Repeat("x", 1001), kind: KindInvalid, reason: ReasonTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := ProcessInput(tt.raw)
			require.Equal(t, tt.kind, in.Kind)
			require.Equal(t, tt.command, in.Command)
			require.Equal(t, tt.args, in.Args)
			require.Equal(t, tt.reason, in.Reason)
		})
	}
}

// TestProcessInput_CommandWordWithTrailingText tests that a known
// command word followed by text still dispatches the command, matching
// how users type "summarise 25".
func TestProcessInput_CommandWordWithTrailingText(t *testing.T) {
	in := ProcessInput("history of ancient rome")
	require.Equal(t, KindCommand, in.Kind)
	require.Equal(t, CommandHistory, in.Command)
	require.Equal(t, "of ancient rome", in.Args)
}

// TestProcessInput_TooLongKeepsTruncatedText tests the over-length path
func TestProcessInput_TooLongKeepsTruncatedText(t *testing.T) {
	in := ProcessInput(strings.Repeat("y", 1500))
	require.Equal(t, KindInvalid, in.Kind)
	require.Equal(t, ReasonTooLong, in.Reason)
	require.Len(t, []rune(in.Text), 1000)
}
