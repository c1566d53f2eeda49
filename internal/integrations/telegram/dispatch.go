package telegram

import (
	"context"
	"sync"

	"strategybot/internal/domain"
)

// UserQueue runs handlers concurrently across users while keeping each
// user's messages in arrival order. Dispatch has the Handler signature so
// it can be passed straight to StartPolling.
type UserQueue struct {
	handle Handler

	mu      sync.Mutex
	pending map[int64][]domain.Message
	wg      sync.WaitGroup
}

func NewUserQueue(handle Handler) *UserQueue {
	return &UserQueue{
		handle:  handle,
		pending: make(map[int64][]domain.Message),
	}
}

// Dispatch queues msg behind the sender's earlier messages. A user with
// queued messages has exactly one worker draining them.
func (q *UserQueue) Dispatch(ctx context.Context, msg domain.Message) {
	q.mu.Lock()
	queued, running := q.pending[msg.UserID]
	q.pending[msg.UserID] = append(queued, msg)
	if !running {
		q.wg.Add(1)
		go q.drain(ctx, msg.UserID)
	}
	q.mu.Unlock()
}

func (q *UserQueue) drain(ctx context.Context, userID int64) {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		queued := q.pending[userID]
		if len(queued) == 0 {
			delete(q.pending, userID)
			q.mu.Unlock()
			return
		}
		msg := queued[0]
		q.pending[userID] = queued[1:]
		q.mu.Unlock()

		q.handle(ctx, msg)
	}
}

// Wait blocks until every dispatched message has been handled.
func (q *UserQueue) Wait() {
	q.wg.Wait()
}
