package ble

import (
	"fmt"
	"strings"
)

// Bind returns the first characteristic of conn whose UUID equals uuid.
// The connection must already be established; Bind triggers a full
// service and characteristic enumeration.
func Bind(conn Connection, uuid string) (Characteristic, error) {
	chars, err := conn.Characteristics()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}
	for _, c := range chars {
		if strings.EqualFold(c.UUID(), uuid) {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %s (%d characteristics discovered)", ErrCharacteristicNotFound, uuid, len(chars))
}
