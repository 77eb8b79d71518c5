// Package ble drives a single BLE light: it finds the peripheral by address,
// binds its vendor characteristic and serializes every command frame written
// to it.
package ble

import (
	"context"
	"errors"
)

// Default identity of the light.
const (
	DefaultAddress            = "d7313030344c"
	DefaultCharacteristicUUID = "00010203-0405-0607-0809-0a0b0c0d2b11"
)

// Startup and transmission errors. Callers match them with errors.Is.
var (
	ErrDeviceNotFound         = errors.New("ble: device not found")
	ErrConnection             = errors.New("ble: connection error")
	ErrCharacteristicNotFound = errors.New("ble: characteristic not found")
	ErrWrite                  = errors.New("ble: write failed")
	ErrWriteTimeout           = errors.New("ble: write timed out")
	ErrGatewayClosed          = errors.New("ble: gateway closed")
)

// Characteristic represents a BLE GATT characteristic.
type Characteristic interface {
	// UUID returns the lowercase, hyphenated 128-bit UUID.
	UUID() string
	// Write sends data without requesting a response from the peripheral.
	Write(data []byte) error
}

// Device represents a discovered BLE peripheral.
type Device struct {
	Name    string
	Address string // as reported by the transport
	RSSI    int
}

// Connection represents an active BLE connection to a peripheral.
type Connection interface {
	// Characteristics enumerates every characteristic of every service.
	Characteristics() ([]Characteristic, error)
	// Disconnect terminates the connection.
	Disconnect() error
	// OnDisconnect registers a callback invoked when the connection drops.
	OnDisconnect(callback func())
}

// Adapter abstracts the BLE hardware adapter for testing.
type Adapter interface {
	// Enable powers on the BLE adapter.
	Enable() error
	// Scan reports each newly seen peripheral to fn without filtering.
	// Scanning stops when fn returns true (Scan returns nil) or when ctx
	// is done (Scan returns ctx.Err()).
	Scan(ctx context.Context, fn func(Device) bool) error
	// Connect establishes a connection to the device with the given address.
	Connect(ctx context.Context, address string) (Connection, error)
}
