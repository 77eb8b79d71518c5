package ble

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/chaz8081/govee-light/internal/ble/protocol"
	"github.com/chaz8081/govee-light/internal/metrics"
)

// startGateway runs a gateway until the test ends.
func startGateway(t *testing.T, char Characteristic, opts GatewayOptions, m *metrics.Metrics) *Gateway {
	t.Helper()
	g := NewGateway(char, opts, zaptest.NewLogger(t), m)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		g.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return g
}

func TestGatewaySendWritesFrame(t *testing.T) {
	char := newMockCharacteristic(DefaultCharacteristicUUID)
	m := metrics.New(metrics.NewRegistry())
	g := startGateway(t, char, DefaultGatewayOptions(), m)

	frame := protocol.SetColor(0xFF, 0x88, 0x00)
	require.NoError(t, g.Send(context.Background(), frame))

	writes := char.Writes()
	require.Len(t, writes, 1)
	assert.Equal(t, frame.Bytes(), writes[0])
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesSent.WithLabelValues("control")))
}

func TestGatewayConcurrentSendsNeverInterleave(t *testing.T) {
	char := newMockCharacteristic(DefaultCharacteristicUUID)
	char.byteDelay = 50 * time.Microsecond
	g := startGateway(t, char, DefaultGatewayOptions(), nil)

	const n = 40
	sent := make(map[protocol.Frame]bool)
	frames := make([]protocol.Frame, n)
	for i := range frames {
		if i%2 == 0 {
			frames[i] = protocol.KeepAlive()
		} else {
			frames[i] = protocol.SetColor(uint8(i), uint8(i*3), uint8(i*7))
		}
		sent[frames[i]] = true
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for _, f := range frames {
		wg.Add(1)
		go func(f protocol.Frame) {
			defer wg.Done()
			errs <- g.Send(context.Background(), f)
		}(f)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Zero(t, char.overlaps.Load(), "writes overlapped on the link")

	stream := char.Stream()
	require.Equal(t, 0, len(stream)%protocol.FrameLen, "stream length %d is not a multiple of %d", len(stream), protocol.FrameLen)
	require.Len(t, stream, n*protocol.FrameLen)
	for off := 0; off < len(stream); off += protocol.FrameLen {
		var f protocol.Frame
		copy(f[:], stream[off:off+protocol.FrameLen])
		assert.True(t, f.Valid(), "frame at %d has a bad checksum: %s", off, f)
		assert.True(t, sent[f], "frame at %d was never sent: %s", off, f)
	}
}

func TestGatewayWriteErrorIsNonFatal(t *testing.T) {
	char := newMockCharacteristic(DefaultCharacteristicUUID)
	char.failures.Store(1)
	m := metrics.New(metrics.NewRegistry())
	g := startGateway(t, char, DefaultGatewayOptions(), m)

	err := g.Send(context.Background(), protocol.KeepAlive())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWrite), "got %v", err)
	assert.True(t, errors.Is(err, errMockTransport), "got %v", err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WriteErrors.WithLabelValues("keepalive")))

	// The next producer still gets through.
	require.NoError(t, g.Send(context.Background(), protocol.SetColor(1, 2, 3)))
	assert.Len(t, char.Writes(), 1)
}

func TestGatewayWriteTimeoutHoldsLink(t *testing.T) {
	char := newMockCharacteristic(DefaultCharacteristicUUID)
	char.block = make(chan struct{})
	opts := DefaultGatewayOptions()
	opts.WriteTimeout = 20 * time.Millisecond
	g := startGateway(t, char, opts, nil)

	err := g.Send(context.Background(), protocol.KeepAlive())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWriteTimeout), "got %v", err)
	assert.True(t, errors.Is(err, ErrWrite), "got %v", err)

	second := make(chan error, 1)
	go func() { second <- g.Send(context.Background(), protocol.SetColor(9, 9, 9)) }()

	// The stuck write still owns the link, so the second frame waits.
	select {
	case err := <-second:
		t.Fatalf("second send finished while the link was busy: %v", err)
	case <-time.After(10 * time.Millisecond):
	}

	close(char.block)
	require.NoError(t, <-second)
	assert.Zero(t, char.overlaps.Load())
	assert.Len(t, char.Writes(), 2)
}

func TestGatewaySendAfterClose(t *testing.T) {
	char := newMockCharacteristic(DefaultCharacteristicUUID)
	g := NewGateway(char, DefaultGatewayOptions(), nil, nil)
	g.Close()

	err := g.Send(context.Background(), protocol.KeepAlive())
	assert.True(t, errors.Is(err, ErrGatewayClosed), "got %v", err)
	assert.Empty(t, char.Writes())
}

func TestGatewayRunStopsOnContext(t *testing.T) {
	g := NewGateway(newMockCharacteristic(DefaultCharacteristicUUID), DefaultGatewayOptions(), nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		g.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.True(t, errors.Is(g.Send(context.Background(), protocol.KeepAlive()), ErrGatewayClosed))
}

func TestGatewaySendCancelledContext(t *testing.T) {
	char := newMockCharacteristic(DefaultCharacteristicUUID)
	g := startGateway(t, char, DefaultGatewayOptions(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := g.Send(ctx, protocol.KeepAlive())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWrite), "got %v", err)
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	assert.Empty(t, char.Writes())
}

func TestGatewayRateLimit(t *testing.T) {
	char := newMockCharacteristic(DefaultCharacteristicUUID)
	opts := DefaultGatewayOptions()
	opts.RateLimit = 50 // one write every 20ms
	opts.Burst = 1
	g := startGateway(t, char, opts, nil)

	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, g.Send(context.Background(), protocol.KeepAlive()))
	}
	assert.GreaterOrEqual(t, time.Since(start), 70*time.Millisecond)
	assert.True(t, bytes.Equal(protocol.KeepAlive().Bytes(), char.Writes()[4]))
}
