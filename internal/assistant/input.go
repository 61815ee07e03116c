package assistant

import "strings"

// Input length bounds in runes. Shorter inputs carry no intent, longer
// ones are almost always paste accidents.
const (
	minMessageRunes = 2
	maxMessageRunes = 1000
)

// Kind classifies a processed input line.
type Kind string

const (
	KindMessage Kind = "message"
	KindCommand Kind = "command"
	KindInvalid Kind = "invalid"
)

// Command names a REPL command.
type Command string

const (
	CommandHelp          Command = "help"
	CommandClear         Command = "clear"
	CommandHistory       Command = "history"
	CommandConversations Command = "conversations"
	CommandStats         Command = "stats"
	CommandSearch        Command = "search"
	CommandEmbeddings    Command = "embeddings"
	CommandRebuild       Command = "rebuild"
	CommandSummarise     Command = "summarise"
	CommandExit          Command = "exit"
)

// InvalidReason says why an input line was rejected.
type InvalidReason string

const (
	ReasonEmpty    InvalidReason = "empty"
	ReasonTooShort InvalidReason = "too-short"
	ReasonTooLong  InvalidReason = "too-long"
)

// Input is one processed line.
type Input struct {
	Kind    Kind
	Text    string
	Command Command       // set when Kind is command
	Args    string        // remainder after the command word
	Reason  InvalidReason // set when Kind is invalid
}

var (
	exitAliases  = []string{"exit", "quit", "bye", "goodbye"}
	helpAliases  = []string{"help", "/help", "?"}
	clearAliases = []string{"clear", "/clear", "reset"}

	// Commands that may carry arguments, matched exactly or as a
	// "<alias> <args>" prefix.
	argCommands = []struct {
		command Command
		aliases []string
	}{
		{CommandHistory, []string{"history", "/history"}},
		{CommandConversations, []string{"conversations", "/conversations"}},
		{CommandStats, []string{"stats", "/stats"}},
		{CommandSearch, []string{"search", "/search"}},
		{CommandEmbeddings, []string{"embeddings", "/embeddings"}},
		{CommandRebuild, []string{"rebuild", "/rebuild"}},
		{CommandSummarise, []string{"summarise", "/summarise", "summarize", "/summarize"}},
	}
)

// Sanitize trims the line, strips control characters (keeping newlines
// and tabs for the collapse) and collapses whitespace runs to single
// spaces.
func Sanitize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))

	for _, r := range raw {
		if r == '\n' || r == '\t' {
			b.WriteRune(r)
			continue
		}
		if r < 0x20 || r == 0x7F {
			continue
		}
		b.WriteRune(r)
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// ProcessInput sanitizes and classifies one line. Length limits are
// checked around command matching the same way a user types them: an
// over-long line is invalid before matching, a one-rune "?" is still
// help.
func ProcessInput(raw string) Input {
	text := Sanitize(raw)

	if text == "" {
		return Input{Kind: KindInvalid, Reason: ReasonEmpty}
	}
	if runes := []rune(text); len(runes) > maxMessageRunes {
		return Input{Kind: KindInvalid, Text: string(runes[:maxMessageRunes]), Reason: ReasonTooLong}
	}

	lower := strings.ToLower(text)

	for _, alias := range exitAliases {
		if lower == alias {
			return Input{Kind: KindCommand, Text: text, Command: CommandExit}
		}
	}
	for _, alias := range helpAliases {
		if lower == alias {
			return Input{Kind: KindCommand, Text: text, Command: CommandHelp}
		}
	}
	for _, alias := range clearAliases {
		if lower == alias {
			return Input{Kind: KindCommand, Text: text, Command: CommandClear}
		}
	}

	// Sanitize collapsed whitespace, so the command word ends at the
	// first space and the remainder keeps its original casing.
	word, rest, _ := strings.Cut(text, " ")
	lowerWord := strings.ToLower(word)
	for _, c := range argCommands {
		for _, alias := range c.aliases {
			if lowerWord == alias {
				return Input{Kind: KindCommand, Text: text, Command: c.command, Args: rest}
			}
		}
	}

	if len([]rune(text)) < minMessageRunes {
		return Input{Kind: KindInvalid, Text: text, Reason: ReasonTooShort}
	}

	return Input{Kind: KindMessage, Text: text}
}

// invalidFeedback phrases the rejection for the user.
func invalidFeedback(reason InvalidReason) string {
	switch reason {
	case ReasonEmpty:
		return "Please enter a message or question."
	case ReasonTooShort:
		return "Please enter at least 2 characters."
	case ReasonTooLong:
		return "Message too long: at most 1000 characters are allowed."
	default:
		return "Invalid input. Type 'help' for assistance."
	}
}
