package hub

import (
	"context"
	"time"

	"github.com/weiawesome/wes-io-chat/pkg/log"
)

// Monitor reaps half-open connections. Each sweep terminates every client
// that has not answered the previous ping and pings the rest, so a dead
// peer survives at most one interval past its last pong.
type Monitor struct {
	hub      *Hub
	interval time.Duration
}

func NewMonitor(h *Hub, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{hub: h, interval: interval}
}

// Run sweeps on every tick until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	l := log.L()
	l.Info().Dur("interval", m.interval).Msg("liveness monitor started")

	for {
		select {
		case <-ctx.Done():
			l.Info().Msg("liveness monitor stopped")
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Sweep runs one heartbeat round and returns how many clients it terminated.
func (m *Monitor) Sweep() int {
	terminated := 0
	for _, c := range m.hub.Clients() {
		if !c.alive.CompareAndSwap(true, false) {
			c.logger.Info().Time("last_pong", c.LastPong()).Msg("heartbeat missed, terminating connection")
			m.hub.drop(c)
			terminated++
			continue
		}

		if err := c.ping(); err != nil {
			c.logger.Debug().Err(err).Msg("ping failed, terminating connection")
			m.hub.drop(c)
			terminated++
		}
	}
	return terminated
}
