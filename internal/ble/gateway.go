package ble

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/chaz8081/govee-light/internal/ble/protocol"
	"github.com/chaz8081/govee-light/internal/metrics"
)

// Sender submits a frame to the light.
type Sender interface {
	Send(ctx context.Context, frame protocol.Frame) error
}

// GatewayOptions configures the write path.
type GatewayOptions struct {
	QueueSize    int           // pending writes before Send blocks
	WriteTimeout time.Duration // per-write deadline reported to the caller
	RateLimit    float64       // writes per second, 0 for unlimited
	Burst        int
}

// DefaultGatewayOptions returns sensible defaults.
func DefaultGatewayOptions() GatewayOptions {
	return GatewayOptions{
		QueueSize:    16,
		WriteTimeout: 2 * time.Second,
		Burst:        1,
	}
}

type writeRequest struct {
	ctx    context.Context
	frame  protocol.Frame
	result chan error
}

// Gateway is the only path to the characteristic. A single writer goroutine
// (Run) performs every write, so frames never overlap on the link.
type Gateway struct {
	char    Characteristic
	opts    GatewayOptions
	limiter *rate.Limiter // nil when unlimited

	requests  chan writeRequest
	done      chan struct{}
	closeOnce sync.Once

	logger  *zap.Logger
	metrics *metrics.Metrics
}

var _ Sender = (*Gateway)(nil)

// NewGateway creates a gateway writing to char. Call Run to start it.
func NewGateway(char Characteristic, opts GatewayOptions, logger *zap.Logger, m *metrics.Metrics) *Gateway {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 16
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 2 * time.Second
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	g := &Gateway{
		char:     char,
		opts:     opts,
		requests: make(chan writeRequest, opts.QueueSize),
		done:     make(chan struct{}),
		logger:   logger,
		metrics:  m,
	}
	if opts.RateLimit > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), opts.Burst)
	}
	return g
}

// Send queues frame and waits for its write to complete. Write failures
// wrap ErrWrite. Safe for concurrent use.
func (g *Gateway) Send(ctx context.Context, frame protocol.Frame) error {
	req := writeRequest{ctx: ctx, frame: frame, result: make(chan error, 1)}

	select {
	case <-g.done:
		return ErrGatewayClosed
	default:
	}

	select {
	case <-g.done:
		return ErrGatewayClosed
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrWrite, ctx.Err())
	case g.requests <- req:
	}

	select {
	case err := <-req.result:
		return err
	case <-ctx.Done():
		// The frame may still be written; delivery is at most once.
		return fmt.Errorf("%w: %w", ErrWrite, ctx.Err())
	case <-g.done:
		return ErrGatewayClosed
	}
}

// Run performs queued writes one at a time until ctx is done or Close is
// called.
func (g *Gateway) Run(ctx context.Context) {
	defer g.Close()
	g.logger.Debug("writer loop started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-g.done:
			return
		case req := <-g.requests:
			g.write(ctx, req)
		}
	}
}

// Close stops the writer loop. Pending and later Sends return
// ErrGatewayClosed.
func (g *Gateway) Close() {
	g.closeOnce.Do(func() { close(g.done) })
}

// write performs one request and delivers exactly one result to it.
func (g *Gateway) write(ctx context.Context, req writeRequest) {
	cmd := req.frame.Command().String()
	if err := req.ctx.Err(); err != nil {
		req.result <- fmt.Errorf("%w: %w", ErrWrite, err)
		return
	}
	if g.limiter != nil {
		if err := g.limiter.Wait(req.ctx); err != nil {
			req.result <- fmt.Errorf("%w: rate limit: %w", ErrWrite, err)
			return
		}
	}

	g.logger.Debug("sending frame", zap.Stringer("frame", req.frame))

	start := time.Now()
	written := make(chan error, 1)
	go func() { written <- g.char.Write(req.frame.Bytes()) }()

	timer := time.NewTimer(g.opts.WriteTimeout)
	defer timer.Stop()

	var err error
	select {
	case err = <-written:
	case <-timer.C:
		// Report the timeout now, but hold the link until the write
		// returns so the next frame cannot overlap it.
		req.result <- fmt.Errorf("%w: %w after %s", ErrWrite, ErrWriteTimeout, g.opts.WriteTimeout)
		late := <-written
		g.metrics.ObserveWrite(cmd, time.Since(start), ErrWriteTimeout)
		g.logger.Warn("write timed out", zap.String("command", cmd), zap.Duration("elapsed", time.Since(start)), zap.Error(late))
		return
	case <-ctx.Done():
		// Shutting down; the write already started, so wait it out.
		err = <-written
	}

	g.metrics.ObserveWrite(cmd, time.Since(start), err)
	if err != nil {
		g.logger.Warn("write failed", zap.String("command", cmd), zap.Error(err))
		req.result <- fmt.Errorf("%w: %w", ErrWrite, err)
		return
	}
	req.result <- nil
}
