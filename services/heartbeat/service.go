package heartbeat

import (
	"context"
	"time"

	"ledbank-go/bus"
	"ledbank-go/types"
	"ledbank-go/x/timex"
)

var (
	topicConfigHeartbeat = bus.T("config", "heartbeat")
	topicHeartbeat       = bus.T("heartbeat")
)

const defaultInterval = 10 * time.Second

// Service publishes a retained liveness beacon so off-board observers
// can tell a quiet system from a dead one.
type Service struct{}

// Start launches the heartbeat loop.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	go s.serviceLoop(ctx, conn)
	return nil
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topicConfigHeartbeat)
	defer conn.Unsubscribe(cfgSub)

	started := timex.NowMs()

	tick := time.NewTicker(defaultInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			println("[heartbeat] stopping")
			return
		case <-tick.C:
			now := timex.NowMs()
			conn.Publish(conn.NewMessage(topicHeartbeat, types.Heartbeat{
				UptimeMs: now - started,
				TSms:     now,
			}, true))
			println("[heartbeat] uptime_ms:", now-started)
		case msg := <-cfgSub.Channel():
			cfg, ok := msg.Payload.(types.HeartbeatConfig)
			if !ok || cfg.IntervalMs == 0 {
				continue
			}
			tick.Reset(time.Duration(cfg.IntervalMs) * time.Millisecond)
			println("[heartbeat] interval_ms:", cfg.IntervalMs)
		}
	}
}
