package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/radutopala/oneassist/internal/embedding"
	"github.com/radutopala/oneassist/internal/history"
)

const (
	messageIndexName = "messages"

	// Messages shorter than this carry too little signal to index.
	minIndexableRunes = 10
	// Longer content is truncated before embedding.
	maxEmbedRunes = 500
)

// Bare REPL commands that may survive in old databases; they are never
// worth indexing.
var nonIndexableWords = map[string]struct{}{
	"exit": {}, "quit": {}, "bye": {}, "goodbye": {},
	"help": {}, "clear": {}, "history": {}, "conversations": {},
	"stats": {}, "embeddings": {}, "rebuild": {}, "summarise": {},
}

// MessageSource supplies stored messages for indexing and pair assembly.
// history.Store satisfies it.
type MessageSource interface {
	MessagesSince(ctx context.Context, id int64) ([]history.Message, error)
	AssistantResponseFor(ctx context.Context, userMessageID int64) (*history.Message, error)
}

// MessageHit is a message similarity search result. Similarity maps
// squared L2 distance into [0, 1] via max(0, 1 - distance/2).
type MessageHit struct {
	Message    history.Message
	Similarity float64
}

// MessageSearchOptions filter similarity search results.
type MessageSearchOptions struct {
	// Role restricts hits to one role when non-empty.
	Role string
	// ExcludeConversation drops hits from the given conversation.
	ExcludeConversation int64
	// MinSimilarity drops hits below the threshold.
	MinSimilarity float64
	// MaxAge drops hits older than the window when positive.
	MaxAge time.Duration
	// Now anchors the age window; zero means time.Now().
	Now time.Time
}

// ContextPair is a historical user message with the assistant response it
// received, carrying the tool attribution when the answer used one.
type ContextPair struct {
	Query      history.Message
	Response   history.Message
	Similarity float64
	ToolID     *int64
	ToolName   string
}

// MessageStoreStats summarizes the current message snapshot.
type MessageStoreStats struct {
	MessageCount int
	Dimension    int
	ByRole       map[string]int
	LastIndexed  int64
}

// MessageStore owns the message-side search snapshot. New messages are
// appended incrementally (clone-and-add, then an atomic swap) instead of
// forcing a full rebuild per turn; searches keep the snapshot they
// started with.
type MessageStore struct {
	codec  *embedding.Codec
	source MessageSource
	logger *slog.Logger

	mu   sync.Mutex // serializes mutations
	snap atomic.Pointer[messageSnapshot]
}

type messageSnapshot struct {
	index *Flat
	byID  map[int64]history.Message
	// maxID is the highest message id examined so far, indexable or not.
	maxID int64
}

// NewMessageStore creates an empty message store over the given source.
func NewMessageStore(codec *embedding.Codec, source MessageSource, logger *slog.Logger) *MessageStore {
	s := &MessageStore{codec: codec, source: source, logger: logger}
	s.snap.Store(&messageSnapshot{
		index: NewFlat(codec.Dimension()),
		byID:  map[int64]history.Message{},
	})
	return s
}

// indexable reports whether the message should enter the index.
func indexable(msg history.Message) bool {
	if msg.Role != history.RoleUser && msg.Role != history.RoleAssistant {
		return false
	}

	content := strings.TrimSpace(msg.Content)
	if len([]rune(content)) < minIndexableRunes {
		return false
	}

	if _, skip := nonIndexableWords[strings.ToLower(content)]; skip {
		return false
	}
	return true
}

// embedText renders the message for embedding, truncated to keep one
// runaway message from dominating the encoder budget.
func embedText(msg history.Message) string {
	content := strings.TrimSpace(msg.Content)
	if runes := []rune(content); len(runes) > maxEmbedRunes {
		content = string(runes[:maxEmbedRunes])
	}
	return msg.Role + ": " + content
}

// Append embeds the indexable messages among msgs and adds them to the
// snapshot without a rebuild. Encode failures skip the message with a
// warning.
func (s *MessageStore) Append(ctx context.Context, msgs []history.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.snap.Load()
	index := old.index.Clone()
	byID := make(map[int64]history.Message, len(old.byID)+len(msgs))
	for id, m := range old.byID {
		byID[id] = m
	}
	maxID := old.maxID

	added := 0
	for _, msg := range msgs {
		if msg.ID > maxID {
			maxID = msg.ID
		}
		if !indexable(msg) {
			continue
		}
		if _, exists := byID[msg.ID]; exists {
			continue
		}

		vec, err := s.codec.Encode(ctx, embedText(msg))
		if err != nil {
			s.logger.Warn("Skipping message that failed to encode", "message_id", msg.ID, "error", err)
			continue
		}
		if err := index.Add(msg.ID, vec); err != nil {
			return err
		}

		byID[msg.ID] = msg
		added++
	}

	if added == 0 && maxID == old.maxID {
		return nil
	}

	s.snap.Store(&messageSnapshot{index: index, byID: byID, maxID: maxID})
	s.logger.Debug("Messages appended to index", "added", added, "total", index.Len())

	return nil
}

// Build replaces the snapshot with a full index over every stored
// message.
func (s *MessageStore) Build(ctx context.Context) error {
	msgs, err := s.source.MessagesSince(ctx, 0)
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}

	s.mu.Lock()
	s.snap.Store(&messageSnapshot{
		index: NewFlat(s.codec.Dimension()),
		byID:  map[int64]history.Message{},
	})
	s.mu.Unlock()

	if err := s.Append(ctx, msgs); err != nil {
		return err
	}

	s.logger.Info("Message index built", "messages", s.Count())
	return nil
}

// Search returns up to k hits passing the filters, most similar first.
// It overfetches min(3*k, Len()) raw hits so filtering does not starve
// the result.
func (s *MessageStore) Search(vec []float32, k int, opts MessageSearchOptions) ([]MessageHit, error) {
	if k <= 0 {
		return []MessageHit{}, nil
	}

	snap := s.snap.Load()

	fetch := 3 * k
	if fetch > snap.index.Len() {
		fetch = snap.index.Len()
	}

	hits, err := snap.index.Search(vec, fetch)
	if err != nil {
		return nil, err
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	out := make([]MessageHit, 0, k)
	for _, h := range hits {
		msg, ok := snap.byID[h.ID]
		if !ok {
			continue
		}

		similarity := 1 - float64(h.Distance)/2
		if similarity < 0 {
			similarity = 0
		}

		if similarity < opts.MinSimilarity {
			continue
		}
		if opts.Role != "" && msg.Role != opts.Role {
			continue
		}
		if opts.ExcludeConversation != 0 && msg.ConversationID == opts.ExcludeConversation {
			continue
		}
		if opts.MaxAge > 0 && now.Sub(msg.CreatedAt) > opts.MaxAge {
			continue
		}

		out = append(out, MessageHit{Message: msg, Similarity: similarity})
		if len(out) == k {
			break
		}
	}

	return out, nil
}

// ContextPairs retrieves similar historical user messages and pairs each
// with the assistant response it received. Unanswered messages are
// skipped. At most maxPairs pairs are returned.
func (s *MessageStore) ContextPairs(ctx context.Context, vec []float32, maxPairs int, opts MessageSearchOptions) ([]ContextPair, error) {
	if maxPairs <= 0 {
		return nil, nil
	}

	opts.Role = history.RoleUser
	hits, err := s.Search(vec, 2*maxPairs, opts)
	if err != nil {
		return nil, err
	}

	pairs := make([]ContextPair, 0, maxPairs)
	for _, h := range hits {
		resp, err := s.source.AssistantResponseFor(ctx, h.Message.ID)
		if err != nil {
			s.logger.Warn("Skipping context pair without loadable response", "message_id", h.Message.ID, "error", err)
			continue
		}
		if resp == nil {
			continue
		}

		pair := ContextPair{Query: h.Message, Response: *resp, Similarity: h.Similarity}
		if resp.ToolID != nil {
			pair.ToolID = resp.ToolID
			pair.ToolName = resp.ToolName
		}

		pairs = append(pairs, pair)
		if len(pairs) == maxPairs {
			break
		}
	}

	return pairs, nil
}

// Count returns the number of indexed messages.
func (s *MessageStore) Count() int {
	return s.snap.Load().index.Len()
}

// LastIndexedID returns the highest message id examined so far.
func (s *MessageStore) LastIndexedID() int64 {
	return s.snap.Load().maxID
}

// Stats describes the current snapshot.
func (s *MessageStore) Stats() MessageStoreStats {
	snap := s.snap.Load()

	byRole := map[string]int{}
	for _, msg := range snap.byID {
		byRole[msg.Role]++
	}

	return MessageStoreStats{
		MessageCount: snap.index.Len(),
		Dimension:    snap.index.Dimension(),
		ByRole:       byRole,
		LastIndexed:  snap.maxID,
	}
}

// Save persists the current snapshot under dir.
func (s *MessageStore) Save(dir string) error {
	snap := s.snap.Load()
	return saveFlat(dir, messageIndexName, snap.index, s.codec.ModelName(), "")
}

// LoadOrBuild restores the persisted message index, appends messages
// stored since the last save, and falls back to a full rebuild when the
// index is stale. Either path leaves a fresh index on disk.
func (s *MessageStore) LoadOrBuild(ctx context.Context, dir string) error {
	f, _, err := loadFlat(dir, messageIndexName, s.codec.ModelName(), s.codec.Dimension(), "")
	if err == nil {
		msgs, serr := s.source.MessagesSince(ctx, 0)
		if serr != nil {
			return fmt.Errorf("load messages: %w", serr)
		}

		byAll := make(map[int64]history.Message, len(msgs))
		for _, m := range msgs {
			byAll[m.ID] = m
		}

		byID := make(map[int64]history.Message, len(f.ids))
		var maxID int64
		for _, id := range f.ids {
			msg, ok := byAll[id]
			if !ok {
				err = fmt.Errorf("%w: indexed message %d missing from database", ErrIndexStale, id)
				break
			}
			byID[id] = msg
			if id > maxID {
				maxID = id
			}
		}

		if err == nil {
			s.mu.Lock()
			s.snap.Store(&messageSnapshot{index: f, byID: byID, maxID: maxID})
			s.mu.Unlock()

			var delta []history.Message
			for _, m := range msgs {
				if m.ID > maxID {
					delta = append(delta, m)
				}
			}
			s.logger.Info("Message index loaded from disk", "messages", f.Len(), "new", len(delta))

			if len(delta) == 0 {
				return nil
			}
			if err := s.Append(ctx, delta); err != nil {
				return err
			}
			return s.Save(dir)
		}
	}

	if !errors.Is(err, ErrIndexStale) {
		return err
	}

	s.logger.Info("Rebuilding message index", "reason", err)
	if err := s.Build(ctx); err != nil {
		return err
	}
	return s.Save(dir)
}

// Rebuild forces a full rebuild and save, discarding the persisted
// index.
func (s *MessageStore) Rebuild(ctx context.Context, dir string) error {
	if err := s.Build(ctx); err != nil {
		return err
	}
	return s.Save(dir)
}
