package ble

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/chaz8081/govee-light/internal/metrics"
)

// SessionOptions identifies the light and bounds the startup phase.
type SessionOptions struct {
	Address            string
	CharacteristicUUID string
	ScanTimeout        time.Duration // 0 waits for ctx
	ConnectTimeout     time.Duration // 0 waits for ctx
}

// DefaultSessionOptions returns the stock light identity and timeouts.
func DefaultSessionOptions() SessionOptions {
	return SessionOptions{
		Address:            DefaultAddress,
		CharacteristicUUID: DefaultCharacteristicUUID,
		ScanTimeout:        30 * time.Second,
		ConnectTimeout:     10 * time.Second,
	}
}

// Session is the connection state shared by every producer of frames. It is
// immutable once Open returns, except for the connected flag, which the
// transport clears when the link drops.
type Session struct {
	device Device
	conn   Connection
	char   Characteristic

	connected atomic.Bool

	closeOnce sync.Once
	closeErr  error

	logger  *zap.Logger
	metrics *metrics.Metrics
}

// Open locates the light, connects to it and binds its characteristic.
// Any error is a startup failure: ErrDeviceNotFound, ErrConnection or
// ErrCharacteristicNotFound.
func Open(ctx context.Context, adapter Adapter, opts SessionOptions, logger *zap.Logger, m *metrics.Metrics) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.CharacteristicUUID == "" {
		opts.CharacteristicUUID = DefaultCharacteristicUUID
	}

	device, err := Locate(ctx, adapter, opts.Address, opts.ScanTimeout, logger)
	if err != nil {
		return nil, err
	}

	connectCtx := ctx
	if opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, opts.ConnectTimeout)
		defer cancel()
	}
	logger.Info("connecting", zap.String("address", device.Address))
	conn, err := adapter.Connect(connectCtx, device.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}

	logger.Info("connected, identifying characteristics")
	char, err := Bind(conn, opts.CharacteristicUUID)
	if err != nil {
		_ = conn.Disconnect()
		return nil, err
	}
	logger.Info("identified light characteristic", zap.String("uuid", char.UUID()))

	s := &Session{
		device:  device,
		conn:    conn,
		char:    char,
		logger:  logger,
		metrics: m,
	}
	s.connected.Store(true)
	m.SetConnected(true)

	conn.OnDisconnect(func() {
		if s.connected.Swap(false) {
			s.logger.Warn("light disconnected; writes will fail until restart", zap.String("address", s.device.Address))
			s.metrics.SetConnected(false)
		}
	})
	return s, nil
}

// Device returns the located peripheral.
func (s *Session) Device() Device { return s.device }

// Characteristic returns the bound characteristic.
func (s *Session) Characteristic() Characteristic { return s.char }

// Connected reports whether the link is believed to be up.
func (s *Session) Connected() bool { return s.connected.Load() }

// Close disconnects from the light. Only the first call has an effect.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.connected.Store(false)
		s.metrics.SetConnected(false)
		if err := s.conn.Disconnect(); err != nil {
			s.closeErr = fmt.Errorf("%w: disconnect: %w", ErrConnection, err)
			return
		}
		s.logger.Info("disconnected", zap.String("address", s.device.Address))
	})
	return s.closeErr
}
