package domain

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   io.Reader = ulid.Monotonic(rand.Reader, 0)
)

// NewMessageID returns a ULID for a message created at t. For non-decreasing
// t the IDs of one process are strictly increasing, so they break ties
// between equal creation timestamps.
func NewMessageID(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

func NewConversationID() string {
	return uuid.New().String()
}

func NewConnectionID() string {
	return uuid.New().String()
}
