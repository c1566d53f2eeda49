package memory

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strategybot/internal/domain"
	"strategybot/internal/store"
)

var _ store.Store = (*Store)(nil)

func TestSessionPutGetDelete(t *testing.T) {
	s := NewStore(20)
	_, ok := s.Session(1)
	assert.False(t, ok)

	s.PutSession(1, domain.CalcSession{ID: "a", Step: domain.StepDeposit, Balance: 100})
	got, ok := s.Session(1)
	require.True(t, ok)
	assert.Equal(t, domain.StepDeposit, got.Step)
	assert.Equal(t, 100.0, got.Balance)

	_, ok = s.Session(2)
	assert.False(t, ok, "sessions are per user")

	s.DeleteSession(1)
	_, ok = s.Session(1)
	assert.False(t, ok)
}

func TestHistoryTrimsToMax(t *testing.T) {
	s := NewStore(4)
	for i := 0; i < 3; i++ {
		s.AppendHistory(7,
			domain.Turn{Role: domain.RoleUser, Content: fmt.Sprintf("q%d", i)},
			domain.Turn{Role: domain.RoleAssistant, Content: fmt.Sprintf("a%d", i)},
		)
	}
	h := s.History(7)
	require.Len(t, h, 4)
	assert.Equal(t, "q1", h[0].Content)
	assert.Equal(t, "a2", h[3].Content)

	h[0].Content = "mutated"
	assert.Equal(t, "q1", s.History(7)[0].Content, "History returns a copy")

	s.ClearHistory(7)
	assert.Empty(t, s.History(7))
}

func TestLockSerializesPerUser(t *testing.T) {
	s := NewStore(0)
	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := s.Lock(42)
			defer unlock()
			v := counter
			time.Sleep(time.Microsecond)
			counter = v + 1
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}

func TestLockDoesNotBlockOtherUsers(t *testing.T) {
	s := NewStore(0)
	unlock := s.Lock(1)
	defer unlock()

	done := make(chan struct{})
	go func() {
		release := s.Lock(2)
		release()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock for user 2 blocked behind user 1")
	}
}

func TestPruneIdleSkipsLockedUsers(t *testing.T) {
	s := NewStore(0)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.PutSession(1, domain.CalcSession{Step: domain.StepPhase})
	s.AppendHistory(2, domain.Turn{Role: domain.RoleUser, Content: "hi"})
	unlock := s.Lock(3)

	now = now.Add(time.Hour)
	s.AppendHistory(4, domain.Turn{Role: domain.RoleUser, Content: "fresh"})

	pruned := s.PruneIdle(30 * time.Minute)
	assert.Equal(t, []int64{1, 2}, pruned)
	assert.Equal(t, 2, s.Users())

	unlock()
	unlock()
	pruned = s.PruneIdle(30 * time.Minute)
	assert.Equal(t, []int64{3}, pruned)
}
