package presence

import (
	"context"
	"errors"
	"time"

	"github.com/weiawesome/wes-io-chat/internal/domain"
	"github.com/weiawesome/wes-io-chat/pkg/log"
)

// Tracker applies connect and disconnect events to the presence store. A
// missing user record is logged and ignored so the connection path never
// fails on it.
type Tracker struct {
	store Store
	now   func() time.Time
}

func NewTracker(store Store) *Tracker {
	return &Tracker{store: store, now: time.Now}
}

func (t *Tracker) OnConnect(ctx context.Context, userID, connectionID string) error {
	err := t.store.AddConnection(ctx, userID, connectionID, t.now().UTC())
	return t.tolerate(ctx, err, "connect")
}

func (t *Tracker) OnDisconnect(ctx context.Context, userID, connectionID string) error {
	err := t.store.RemoveConnection(ctx, userID, connectionID, t.now().UTC())
	return t.tolerate(ctx, err, "disconnect")
}

func (t *Tracker) Status(ctx context.Context, userID string) (*domain.PresenceStatus, error) {
	return t.store.Status(ctx, userID)
}

// tolerate expects ctx to carry the connection's logger.
func (t *Tracker) tolerate(ctx context.Context, err error, event string) error {
	if err == nil {
		return nil
	}
	l := log.Ctx(ctx)
	if errors.Is(err, ErrUserNotFound) {
		l.Warn().
			Str("event", event).
			Msg("presence update skipped: user record not found")
		return nil
	}
	l.Error().Err(err).
		Str("event", event).
		Msg("presence update failed")
	return err
}
