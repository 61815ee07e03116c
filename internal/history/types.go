package history

import (
	"time"

	"github.com/radutopala/oneassist/internal/tools"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is a single stored conversation message.
type Message struct {
	ID              int64
	ConversationID  int64
	ParentMessageID *int64
	Role            string
	Content         string
	ToolID          *int64
	ToolName        string
	SequenceNumber  int
	CreatedAt       time.Time
}

// Conversation is a stored conversation with its lifecycle timestamps.
type Conversation struct {
	ID        int64
	SessionID string
	Title     string
	StartedAt time.Time
	EndedAt   *time.Time
	Summary   string
}

// ToolRecord is the persisted catalog entry for a selectable tool. The
// row id is the stable identity used by the vector index.
type ToolRecord struct {
	ID            int64
	Name          string
	Category      string
	Description   string
	QueryExamples []string
	Active        bool
}

// Descriptor converts the record into the selectable unit the pipeline
// indexes, carrying the row id as the stable tool identity.
func (r ToolRecord) Descriptor() tools.Descriptor {
	return tools.Descriptor{
		ID:            r.ID,
		Name:          r.Name,
		Category:      r.Category,
		Description:   r.Description,
		QueryExamples: r.QueryExamples,
	}
}

// Stats summarizes stored history.
type Stats struct {
	Conversations int64
	Messages      int64
	ByRole        map[string]int64
	ActiveTools   int64
}
