package ble

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"tinygo.org/x/bluetooth"
)

// BluetoothAdapter wraps tinygo-org/bluetooth (BlueZ on Linux,
// CoreBluetooth on macOS, WinRT on Windows).
type BluetoothAdapter struct {
	adapter *bluetooth.Adapter

	// mu protects seen and connections.
	mu          sync.Mutex
	seen        map[string]bluetooth.Address // keyed by normalized address
	connections map[string]*bluetoothConnection
}

// NewBluetoothAdapter creates a new BLE adapter on the system default
// controller.
func NewBluetoothAdapter() *BluetoothAdapter {
	return &BluetoothAdapter{
		adapter:     bluetooth.DefaultAdapter,
		seen:        make(map[string]bluetooth.Address),
		connections: make(map[string]*bluetoothConnection),
	}
}

func (a *BluetoothAdapter) Enable() error {
	if err := a.adapter.Enable(); err != nil {
		return err
	}

	// Disconnects are reported at adapter level; route them to the
	// connection that registered a callback.
	a.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		id := NormalizeAddress(device.Address.String())
		a.mu.Lock()
		conn, ok := a.connections[id]
		a.mu.Unlock()
		if ok {
			conn.fireDisconnect()
		}
	})

	return nil
}

func (a *BluetoothAdapter) Scan(ctx context.Context, fn func(Device) bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			a.adapter.StopScan()
		case <-done:
		}
	}()

	reported := make(map[string]bool)
	err := a.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
		raw := result.Address.String()
		id := NormalizeAddress(raw)
		if reported[id] {
			return
		}
		reported[id] = true

		a.mu.Lock()
		a.seen[id] = result.Address
		a.mu.Unlock()

		if fn(Device{Name: result.LocalName(), Address: raw, RSSI: int(result.RSSI)}) {
			adapter.StopScan()
		}
	})
	close(done)

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		return fmt.Errorf("ble: scan: %w", err)
	}
	return nil
}

func (a *BluetoothAdapter) Connect(ctx context.Context, address string) (Connection, error) {
	id := NormalizeAddress(address)

	a.mu.Lock()
	addr, ok := a.seen[id]
	a.mu.Unlock()
	if !ok {
		// Not seen in this process. Address.Set parses a MAC on Linux and
		// Windows and a CoreBluetooth UUID on macOS.
		addr.Set(formatAddress(address, id))
	}

	// tinygo/bluetooth's Connect blocks internally with its own timeout.
	// Wrap it so ctx cancellation returns promptly.
	type connectResult struct {
		device bluetooth.Device
		err    error
	}
	ch := make(chan connectResult, 1)
	go func() {
		device, err := a.adapter.Connect(addr, bluetooth.ConnectionParams{})
		ch <- connectResult{device, err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("ble: connect to %s: %w", address, ctx.Err())
	case result := <-ch:
		if result.err != nil {
			return nil, fmt.Errorf("ble: connect to %s: %w", address, result.err)
		}
		conn := &bluetoothConnection{device: result.device}

		a.mu.Lock()
		a.connections[id] = conn
		a.mu.Unlock()

		return conn, nil
	}
}

// Compile-time check that BluetoothAdapter implements Adapter.
var _ Adapter = (*BluetoothAdapter)(nil)

// formatAddress restores the colon-separated form of a normalized MAC.
// Anything else is passed through unchanged.
func formatAddress(raw, id string) string {
	if !ValidAddress(id) {
		return raw
	}
	var b strings.Builder
	for i := 0; i < len(id); i += 2 {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(strings.ToUpper(id[i : i+2]))
	}
	return b.String()
}

type bluetoothConnection struct {
	device bluetooth.Device

	mu           sync.Mutex
	chars        []Characteristic // cached after the first enumeration
	disconnectCb func()
}

func (c *bluetoothConnection) Characteristics() ([]Characteristic, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chars != nil {
		return c.chars, nil
	}

	svcs, err := c.device.DiscoverServices(nil)
	if err != nil {
		return nil, fmt.Errorf("ble: discover services: %w", err)
	}

	var chars []Characteristic
	for _, svc := range svcs {
		found, err := svc.DiscoverCharacteristics(nil)
		if err != nil {
			return nil, fmt.Errorf("ble: discover characteristics of %s: %w", svc.UUID(), err)
		}
		for i := range found {
			chars = append(chars, &bluetoothCharacteristic{char: found[i]})
		}
	}
	c.chars = chars
	return chars, nil
}

func (c *bluetoothConnection) Disconnect() error {
	return c.device.Disconnect()
}

func (c *bluetoothConnection) OnDisconnect(cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectCb = cb
}

func (c *bluetoothConnection) fireDisconnect() {
	c.mu.Lock()
	cb := c.disconnectCb
	c.mu.Unlock()
	if cb != nil {
		cb()
	}
}

type bluetoothCharacteristic struct {
	char bluetooth.DeviceCharacteristic
}

func (c *bluetoothCharacteristic) UUID() string {
	return c.char.UUID().String()
}

func (c *bluetoothCharacteristic) Write(data []byte) error {
	_, err := c.char.WriteWithoutResponse(data)
	return err
}
