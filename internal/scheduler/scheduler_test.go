package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strategybot/internal/domain"
	"strategybot/internal/store/memory"
)

type countingPruner struct {
	calls atomic.Int32
}

func (p *countingPruner) Prune(time.Duration) int {
	p.calls.Add(1)
	return 3
}

func TestRunOnce_PrunesStoreAndLimiters(t *testing.T) {
	st := memory.NewStore(0)
	st.AppendHistory(1, domain.Turn{Role: domain.RoleUser, Content: "hi"})
	pruner := &countingPruner{}

	j := NewJanitor(st, pruner, 0, zerolog.Nop())
	time.Sleep(time.Millisecond)
	users, buckets := j.RunOnce()

	assert.Equal(t, 1, users)
	assert.Equal(t, 3, buckets)
	assert.Equal(t, 0, st.Users())
	assert.Equal(t, int32(1), pruner.calls.Load())
}

func TestRunOnce_KeepsFreshUsers(t *testing.T) {
	st := memory.NewStore(0)
	st.AppendHistory(1, domain.Turn{Role: domain.RoleUser, Content: "hi"})

	j := NewJanitor(st, nil, time.Hour, zerolog.Nop())
	users, buckets := j.RunOnce()
	assert.Zero(t, users)
	assert.Zero(t, buckets)
	assert.Equal(t, 1, st.Users())
}

func TestRegister_RejectsBadSpec(t *testing.T) {
	j := NewJanitor(memory.NewStore(0), nil, time.Hour, zerolog.Nop())
	assert.Error(t, j.Register("every ten minutes"))
	assert.NoError(t, j.Register("@every 10m"))
	assert.NoError(t, j.Register("*/5 * * * *"))
}

func TestStartStop_RunsScheduledSweep(t *testing.T) {
	pruner := &countingPruner{}
	j := NewJanitor(memory.NewStore(0), pruner, time.Minute, zerolog.Nop())
	require.NoError(t, j.Register("@every 1s"))

	j.Start()
	assert.Eventually(t, func() bool { return pruner.calls.Load() > 0 }, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	j.Stop(ctx)
}
