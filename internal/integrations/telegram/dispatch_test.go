package telegram

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strategybot/internal/domain"
)

func TestUserQueue_KeepsPerUserOrder(t *testing.T) {
	var mu sync.Mutex
	seen := map[int64][]string{}
	queue := NewUserQueue(func(_ context.Context, msg domain.Message) {
		// The first answer is the slow one; a reordering queue would let
		// the second overtake it.
		if msg.Text == "48500" {
			time.Sleep(30 * time.Millisecond)
		}
		mu.Lock()
		seen[msg.UserID] = append(seen[msg.UserID], msg.Text)
		mu.Unlock()
	})

	ctx := context.Background()
	queue.Dispatch(ctx, domain.Message{UserID: 7, Text: "48500"})
	queue.Dispatch(ctx, domain.Message{UserID: 8, Text: "hello"})
	queue.Dispatch(ctx, domain.Message{UserID: 7, Text: "50000"})
	queue.Dispatch(ctx, domain.Message{UserID: 7, Text: "calc:funded"})
	queue.Wait()

	assert.Equal(t, []string{"48500", "50000", "calc:funded"}, seen[7])
	assert.Equal(t, []string{"hello"}, seen[8])
}

func TestUserQueue_OtherUsersAreNotBlocked(t *testing.T) {
	release := make(chan struct{})
	done := make(chan int64, 2)
	queue := NewUserQueue(func(_ context.Context, msg domain.Message) {
		if msg.UserID == 1 {
			<-release
		}
		done <- msg.UserID
	})

	queue.Dispatch(context.Background(), domain.Message{UserID: 1, Text: "slow"})
	queue.Dispatch(context.Background(), domain.Message{UserID: 2, Text: "fast"})

	select {
	case id := <-done:
		assert.Equal(t, int64(2), id)
	case <-time.After(time.Second):
		t.Fatal("second user waited for the first")
	}
	close(release)
	queue.Wait()
	assert.Equal(t, int64(1), <-done)
}

func TestStartPolling_SameUserBatchHandledInOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var callsMu sync.Mutex
	var calls int
	client, _ := newTestClient(t, func(string, map[string]any) string {
		callsMu.Lock()
		defer callsMu.Unlock()
		calls++
		if calls == 1 {
			return `{"ok":true,"result":[
				{"update_id":20,"message":{"message_id":1,"from":{"id":7},"chat":{"id":70,"type":"private"},"text":"48500"}},
				{"update_id":21,"message":{"message_id":2,"from":{"id":7},"chat":{"id":70,"type":"private"},"text":"50000"}}
			]}`
		}
		cancel()
		return `{"ok":true,"result":[]}`
	})

	var mu sync.Mutex
	var got []string
	queue := NewUserQueue(func(_ context.Context, msg domain.Message) {
		if msg.Text == "48500" {
			time.Sleep(20 * time.Millisecond)
		}
		mu.Lock()
		got = append(got, msg.Text)
		mu.Unlock()
	})
	client.StartPolling(ctx, time.Second, 10*time.Millisecond, queue.Dispatch)
	queue.Wait()

	require.Len(t, got, 2)
	assert.Equal(t, []string{"48500", "50000"}, got)
}
