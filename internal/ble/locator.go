package ble

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// NormalizeAddress lowercases a physical address and strips ':' and '-'
// delimiters, so "D7:31:30:30:34:4C" becomes "d7313030344c".
func NormalizeAddress(s string) string {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer(":", "", "-", "").Replace(s)
	return strings.ToLower(s)
}

// ValidAddress reports whether s normalizes to a 6-byte hex address.
func ValidAddress(s string) bool {
	s = NormalizeAddress(s)
	if len(s) != 12 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Locate scans until a peripheral whose address equals target is seen and
// returns it. A zero timeout waits until ctx is done.
func Locate(ctx context.Context, adapter Adapter, target string, timeout time.Duration, logger *zap.Logger) (Device, error) {
	want := NormalizeAddress(target)
	if !ValidAddress(want) {
		return Device{}, fmt.Errorf("%w: invalid target address %q", ErrDeviceNotFound, target)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := adapter.Enable(); err != nil {
		return Device{}, fmt.Errorf("%w: enable adapter: %w", ErrConnection, err)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var (
		mu      sync.Mutex
		found   Device
		matched bool
	)
	logger.Info("scanning", zap.String("target", want), zap.Duration("timeout", timeout))
	err := adapter.Scan(ctx, func(d Device) bool {
		addr := NormalizeAddress(d.Address)
		if !ValidAddress(addr) {
			// macOS reports CoreBluetooth UUIDs rather than MACs; those
			// can never match a physical address.
			logger.Debug("skipping peripheral without a physical address", zap.String("address", d.Address))
			return false
		}
		if addr != want {
			return false
		}
		mu.Lock()
		defer mu.Unlock()
		found, matched = d, true
		return true
	})

	mu.Lock()
	defer mu.Unlock()
	switch {
	case matched:
		logger.Info("found light", zap.String("address", found.Address), zap.String("name", found.Name), zap.Int("rssi", found.RSSI))
		return found, nil
	case ctx.Err() != nil:
		return Device{}, fmt.Errorf("%w: %s: %w", ErrDeviceNotFound, want, ctx.Err())
	case err != nil:
		return Device{}, fmt.Errorf("%w: %w", ErrConnection, err)
	default:
		return Device{}, fmt.Errorf("%w: %s: scan ended", ErrDeviceNotFound, want)
	}
}
