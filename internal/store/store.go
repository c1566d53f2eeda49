package store

import (
	"time"

	"strategybot/internal/domain"
)

// Store keeps per-user conversation state. All state is in memory; nothing
// survives a restart.
type Store interface {
	// Lock serializes handling for one user. The returned func releases it.
	Lock(userID int64) (unlock func())

	Session(userID int64) (domain.CalcSession, bool)
	PutSession(userID int64, session domain.CalcSession)
	DeleteSession(userID int64)

	History(userID int64) []domain.Turn
	AppendHistory(userID int64, turns ...domain.Turn)
	ClearHistory(userID int64)

	// PruneIdle drops users untouched for longer than ttl and returns their ids.
	PruneIdle(ttl time.Duration) []int64
	Users() int
}
