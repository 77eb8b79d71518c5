package ble

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/chaz8081/govee-light/internal/ble/protocol"
)

// DefaultKeepAliveInterval is how often the light expects traffic before it
// drops an idle link.
const DefaultKeepAliveInterval = 2 * time.Second

// KeepAliveState is the phase of the keep-alive loop.
type KeepAliveState int32

const (
	KeepAliveIdle KeepAliveState = iota
	KeepAliveSending
)

func (s KeepAliveState) String() string {
	switch s {
	case KeepAliveIdle:
		return "idle"
	case KeepAliveSending:
		return "sending"
	default:
		return "unknown"
	}
}

// KeepAlive periodically sends a liveness frame through a Sender.
type KeepAlive struct {
	sender   Sender
	interval time.Duration
	logger   *zap.Logger

	state atomic.Int32
	sent  atomic.Uint64
}

// NewKeepAlive creates a keep-alive task. A non-positive interval uses
// DefaultKeepAliveInterval.
func NewKeepAlive(sender Sender, interval time.Duration, logger *zap.Logger) *KeepAlive {
	if interval <= 0 {
		interval = DefaultKeepAliveInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KeepAlive{sender: sender, interval: interval, logger: logger}
}

// State returns the current phase of the loop.
func (k *KeepAlive) State() KeepAliveState { return KeepAliveState(k.state.Load()) }

// Sent returns the number of keep-alive frames written successfully.
func (k *KeepAlive) Sent() uint64 { return k.sent.Load() }

// Run sleeps for the interval, sends a keep-alive frame, and repeats until
// ctx is done. Send failures are logged and the loop continues.
func (k *KeepAlive) Run(ctx context.Context) error {
	k.logger.Info("starting keep alive loop", zap.Duration("interval", k.interval))
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	frame := protocol.KeepAlive()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		k.state.Store(int32(KeepAliveSending))
		err := k.sender.Send(ctx, frame)
		k.state.Store(int32(KeepAliveIdle))

		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			k.logger.Warn("keep alive failed", zap.Error(err))
			continue
		}
		k.sent.Add(1)
	}
}
