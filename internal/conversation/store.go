package conversation

import (
	"sync"

	"relay-agent/internal/domain"
)

const DefaultMaxHistory = 20

// Store keeps a bounded, chronological history of turns per chat. Histories are
// created on first use and live for the lifetime of the Store.
type Store struct {
	maxHistory int

	mu        sync.Mutex
	histories map[string][]domain.Turn

	locksMu sync.Mutex
	locks   map[string]*chatLock
}

type chatLock struct {
	mu   sync.Mutex
	refs int
}

// New creates an empty Store. A non-positive maxHistory falls back to
// DefaultMaxHistory.
func New(maxHistory int) *Store {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	return &Store{
		maxHistory: maxHistory,
		histories:  make(map[string][]domain.Turn),
		locks:      make(map[string]*chatLock),
	}
}

// MaxHistory returns the per-chat cap.
func (s *Store) MaxHistory() int {
	return s.maxHistory
}

// AppendAndTrim appends turn to the chat's history, drops the oldest turns
// beyond the cap and returns a copy of the resulting history.
func (s *Store) AppendAndTrim(chatID string, turn domain.Turn) []domain.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := append(s.histories[chatID], turn)
	if over := len(history) - s.maxHistory; over > 0 {
		// Copy into a fresh slice so the evicted prefix can be collected.
		trimmed := make([]domain.Turn, s.maxHistory)
		copy(trimmed, history[over:])
		history = trimmed
	}
	s.histories[chatID] = history
	return cloneTurns(history)
}

// History returns a copy of the chat's turns, or an empty slice for an unknown chat.
func (s *Store) History(chatID string) []domain.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneTurns(s.histories[chatID])
}

// Len returns the number of turns held for the chat.
func (s *Store) Len(chatID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.histories[chatID])
}

// Lock serializes work on a single chat. The returned function releases the
// lock and must be called exactly once. Different chats never block each other.
func (s *Store) Lock(chatID string) (unlock func()) {
	s.locksMu.Lock()
	l, ok := s.locks[chatID]
	if !ok {
		l = &chatLock{}
		s.locks[chatID] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Unlock()
			s.locksMu.Lock()
			l.refs--
			if l.refs == 0 {
				delete(s.locks, chatID)
			}
			s.locksMu.Unlock()
		})
	}
}

func (s *Store) activeLocks() int {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	return len(s.locks)
}

func cloneTurns(turns []domain.Turn) []domain.Turn {
	out := make([]domain.Turn, len(turns))
	copy(out, turns)
	return out
}
