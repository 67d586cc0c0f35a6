package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// KeyPrefix namespaces persisted conversations in the blob store.
const KeyPrefix = "triage.chat."

// Key returns the fixed persistence key for an owner's conversation.
func Key(owner string) string {
	return KeyPrefix + owner
}

// Persister stores one opaque blob per key. memory.Store satisfies it.
type Persister interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, blob []byte) error
	Erase(ctx context.Context, key string) error
}

// Store holds the ordered turn sequence of one conversation and mirrors it to a Persister.
// The only mutations are Append and Clear.
type Store struct {
	mu     sync.RWMutex
	turns  []Turn
	staged *Attachment

	key       string
	persister Persister
	logger    *zap.Logger
	now       func() time.Time
}

// NewStore creates an empty store. persister may be nil for a purely in-memory conversation.
func NewStore(key string, persister Persister, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		key:       key,
		persister: persister,
		logger:    logger.With(zap.String("conversation_key", key)),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Restore replaces the in-memory sequence with the persisted one.
// Absent or malformed data yields an empty conversation.
func (s *Store) Restore(ctx context.Context) int {
	var restored []Turn
	if s.persister != nil {
		blob, err := s.persister.Load(ctx, s.key)
		switch {
		case err != nil && !isNotFound(err):
			s.logger.Warn("conversation restore failed", zap.Error(err))
		case err == nil:
			turns, decodeErr := Decode(blob)
			if decodeErr != nil {
				s.logger.Warn("discarding malformed conversation blob", zap.Error(decodeErr))
			} else {
				restored = turns
			}
		}
	}

	s.mu.Lock()
	s.turns = restored
	s.staged = nil
	s.mu.Unlock()
	return len(restored)
}

// Append adds turn to the end of the sequence and returns the stored copy.
// Missing IDs and timestamps are filled in. Persistence is best-effort.
func (s *Store) Append(ctx context.Context, turn Turn) Turn {
	turn = turn.Clone()
	if turn.ID == "" {
		turn.ID = NewID()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = s.now()
	}

	s.mu.Lock()
	s.turns = append(s.turns, turn)
	blob, err := Encode(s.turns)
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("conversation encode failed", zap.Error(err))
		return turn.Clone()
	}
	s.persist(ctx, blob)
	return turn.Clone()
}

// Clear empties the sequence, drops any staged attachment and erases the persisted copy.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	s.turns = nil
	s.staged = nil
	s.mu.Unlock()

	if s.persister == nil {
		return
	}
	if err := s.persister.Erase(ctx, s.key); err != nil && !isNotFound(err) {
		s.logger.Warn("conversation erase failed", zap.Error(err))
	}
}

// Turns returns a copy of the sequence.
func (s *Store) Turns() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneTurns(s.turns)
}

// Len returns the number of turns.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// Last returns the most recent turn.
func (s *Store) Last() (Turn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.turns) == 0 {
		return Turn{}, false
	}
	return s.turns[len(s.turns)-1].Clone(), true
}

// LatestWithIntent returns the most recent assistant turn tagged with intent.
func (s *Store) LatestWithIntent(intent Intent) (Turn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.turns) - 1; i >= 0; i-- {
		if s.turns[i].Role == RoleAssistant && s.turns[i].Intent == intent {
			return s.turns[i].Clone(), true
		}
	}
	return Turn{}, false
}

// Stage holds att as the in-flight attachment for the next send, replacing any previous one.
func (s *Store) Stage(att Attachment) Attachment {
	if att.Ref == "" {
		att.Ref = NewID()
	}
	s.mu.Lock()
	s.staged = &att
	s.mu.Unlock()
	return att
}

// Staged returns the in-flight attachment, if any.
func (s *Store) Staged() (Attachment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.staged == nil {
		return Attachment{}, false
	}
	return *s.staged, true
}

// DropStaged forgets the in-flight attachment when it is still ref.
func (s *Store) DropStaged(ref string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.staged != nil && s.staged.Ref == ref {
		s.staged = nil
	}
}

func (s *Store) persist(ctx context.Context, blob []byte) {
	if s.persister == nil {
		return
	}
	if err := s.persister.Save(ctx, s.key, blob); err != nil {
		s.logger.Warn("conversation persist failed", zap.Error(err))
	}
}

// NewID returns a time-ordered identifier.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Encode serializes turns into the persisted blob format.
func Encode(turns []Turn) ([]byte, error) {
	if turns == nil {
		turns = []Turn{}
	}
	blob, err := json.Marshal(turns)
	if err != nil {
		return nil, fmt.Errorf("encode conversation: %w", err)
	}
	return blob, nil
}

// Decode parses a persisted blob. Any structural problem rejects the whole blob.
func Decode(blob []byte) ([]Turn, error) {
	var turns []Turn
	if err := json.Unmarshal(blob, &turns); err != nil {
		return nil, fmt.Errorf("decode conversation: %w", err)
	}
	for i, t := range turns {
		if t.ID == "" {
			return nil, fmt.Errorf("decode conversation: turn %d has no id", i)
		}
		switch t.Role {
		case RoleUser:
			if t.Intent != "" {
				return nil, fmt.Errorf("decode conversation: user turn %d carries an intent", i)
			}
		case RoleAssistant:
			if t.Intent != "" && !t.Intent.Valid() {
				return nil, fmt.Errorf("decode conversation: turn %d has unknown intent %q", i, t.Intent)
			}
		default:
			return nil, fmt.Errorf("decode conversation: turn %d has unknown role %q", i, t.Role)
		}
	}
	return turns, nil
}

// Persisters report absent keys with an error exposing NotFound() bool.
type notFound interface{ NotFound() bool }

func isNotFound(err error) bool {
	var nf notFound
	return errors.As(err, &nf) && nf.NotFound()
}

func cloneTurns(in []Turn) []Turn {
	out := make([]Turn, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}
