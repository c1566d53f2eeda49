package memory

import (
	"slices"
	"sync"
	"time"

	"strategybot/internal/domain"
)

type userState struct {
	lock sync.Mutex
	// refs counts holders and waiters of lock; guarded by Store.mu.
	refs int

	session    domain.CalcSession
	hasSession bool
	history    []domain.Turn
	touchedAt  time.Time
}

type Store struct {
	mu sync.Mutex

	maxHistory int
	now        func() time.Time
	users      map[int64]*userState
}

// NewStore keeps at most maxHistory turns per user; zero disables trimming.
func NewStore(maxHistory int) *Store {
	return &Store{
		maxHistory: maxHistory,
		now:        time.Now,
		users:      make(map[int64]*userState),
	}
}

// user returns the state for id, creating it. Caller holds s.mu.
func (s *Store) user(id int64) *userState {
	u, ok := s.users[id]
	if !ok {
		u = &userState{}
		s.users[id] = u
	}
	u.touchedAt = s.now()
	return u
}

func (s *Store) Lock(userID int64) func() {
	s.mu.Lock()
	u := s.user(userID)
	u.refs++
	s.mu.Unlock()

	u.lock.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			u.lock.Unlock()
			s.mu.Lock()
			u.refs--
			s.mu.Unlock()
		})
	}
}

func (s *Store) Session(userID int64) (domain.CalcSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok || !u.hasSession {
		return domain.CalcSession{}, false
	}
	return u.session, true
}

func (s *Store) PutSession(userID int64, session domain.CalcSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(userID)
	u.session = session
	u.hasSession = true
}

func (s *Store) DeleteSession(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		u.session = domain.CalcSession{}
		u.hasSession = false
	}
}

func (s *Store) History(userID int64) []domain.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok || len(u.history) == 0 {
		return []domain.Turn{}
	}
	return slices.Clone(u.history)
}

func (s *Store) AppendHistory(userID int64, turns ...domain.Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(userID)
	u.history = append(u.history, turns...)
	if s.maxHistory > 0 && len(u.history) > s.maxHistory {
		u.history = slices.Clone(u.history[len(u.history)-s.maxHistory:])
	}
}

func (s *Store) ClearHistory(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		u.history = nil
	}
}

func (s *Store) PruneIdle(ttl time.Duration) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-ttl)
	var pruned []int64
	for id, u := range s.users {
		if u.refs > 0 || u.touchedAt.After(cutoff) {
			continue
		}
		delete(s.users, id)
		pruned = append(pruned, id)
	}
	slices.Sort(pruned)
	return pruned
}

func (s *Store) Users() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}
