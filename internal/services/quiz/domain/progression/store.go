package progression

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

const shardCount = 32

// Session is the progression state of one respondent.
type Session struct {
	ID string
	// Pointer counts delivered blocks, 0..19.
	Pointer int
	// Completed is set once the session was told it is complete.
	Completed bool
	// Answers maps question number to the recorded letter.
	Answers   map[int]string
	StartedAt time.Time
	UpdatedAt time.Time
}

func (s Session) clone() Session {
	out := s
	out.Answers = make(map[int]string, len(s.Answers))
	for question, letter := range s.Answers {
		out.Answers[question] = letter
	}
	return out
}

// Store maps session ids to sessions. Update must run fn atomically with
// respect to every other call for the same id.
type Store interface {
	Update(id string, fn func(*Session)) Session
	Get(id string) (Session, bool)
}

type shard struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// MemoryStore keeps sessions for the lifetime of the process. Keys are
// spread over mutex-guarded shards so unrelated sessions rarely contend.
type MemoryStore struct {
	shards [shardCount]shard
	now    func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{now: time.Now}
	for i := range s.shards {
		s.shards[i].sessions = make(map[string]*Session)
	}
	return s
}

func (s *MemoryStore) shardFor(id string) *shard {
	return &s.shards[xxhash.Sum64String(id)%shardCount]
}

// Update creates the session on first reference, applies fn under the
// session's shard lock and returns a copy of the result.
func (s *MemoryStore) Update(id string, fn func(*Session)) Session {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	now := s.now().UTC()
	session, ok := sh.sessions[id]
	if !ok {
		session = &Session{ID: id, Answers: map[int]string{}, StartedAt: now}
		sh.sessions[id] = session
	}
	fn(session)
	session.UpdatedAt = now
	return session.clone()
}

// Get returns a copy of the session, if it exists.
func (s *MemoryStore) Get(id string) (Session, bool) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	session, ok := sh.sessions[id]
	if !ok {
		return Session{}, false
	}
	return session.clone(), true
}

// Len returns the number of sessions.
func (s *MemoryStore) Len() int {
	total := 0
	for i := range s.shards {
		s.shards[i].mu.Lock()
		total += len(s.shards[i].sessions)
		s.shards[i].mu.Unlock()
	}
	return total
}
