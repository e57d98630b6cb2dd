package service

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/notify"
)

// HeartbeatPublisher periodically publishes the status snapshot to
// <prefix>/heartbeat. It runs as a background goroutine and stops via its
// context or Stop.
//
// A nil publisher or an interval of 0 disables it.
type HeartbeatPublisher struct {
	svc      *ControlService
	pub      notify.Publisher
	topic    string
	interval time.Duration
	logger   *zap.Logger
	cancel   context.CancelFunc
	started  bool
	done     chan struct{}
}

type HeartbeatConfig struct {
	Interval    time.Duration
	TopicPrefix string
}

// NewHeartbeatPublisher creates a publisher but does not start it.
func NewHeartbeatPublisher(svc *ControlService, pub notify.Publisher, cfg HeartbeatConfig, logger *zap.Logger) *HeartbeatPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HeartbeatPublisher{
		svc:      svc,
		pub:      pub,
		topic:    cfg.TopicPrefix + "/heartbeat",
		interval: cfg.Interval,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start publishes once immediately, then on every interval, until ctx is
// cancelled or Stop is called.
func (h *HeartbeatPublisher) Start(ctx context.Context) {
	h.started = true
	if h.pub == nil || h.interval <= 0 {
		h.logger.Info("heartbeat publisher disabled")
		close(h.done)
		return
	}

	ctx, h.cancel = context.WithCancel(ctx)
	go h.loop(ctx)

	h.logger.Info("heartbeat publisher started",
		zap.String("topic", h.topic), zap.Duration("interval", h.interval))
}

// Stop signals the loop to exit and waits for it. It is a no-op before
// Start.
func (h *HeartbeatPublisher) Stop() {
	if !h.started {
		return
	}
	if h.cancel != nil {
		h.cancel()
	}
	<-h.done
}

func (h *HeartbeatPublisher) loop(ctx context.Context) {
	defer close(h.done)

	h.publish()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.publish()
		}
	}
}

func (h *HeartbeatPublisher) publish() {
	payload, err := json.Marshal(h.svc.Snapshot())
	if err != nil {
		h.logger.Error("heartbeat encode", zap.Error(err))
		return
	}
	if err := h.pub.Publish(h.topic, 0, true, payload); err != nil {
		h.logger.Warn("heartbeat publish", zap.Error(err))
	}
}
