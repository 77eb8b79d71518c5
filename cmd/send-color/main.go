// Command send-color is a manual test for the BLE path. It connects to the
// light, writes one color frame, and disconnects.
//
// Usage:
//
//	go run ./cmd/send-color [--address d7313030344c] [--timeout 30s] ff8800
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chaz8081/govee-light/internal/ble"
	"github.com/chaz8081/govee-light/internal/ble/protocol"
	"github.com/chaz8081/govee-light/internal/color"
	"github.com/chaz8081/govee-light/internal/config"
	"github.com/chaz8081/govee-light/internal/logging"
)

func main() {
	address := flag.String("address", ble.DefaultAddress, "light MAC address")
	uuid := flag.String("uuid", ble.DefaultCharacteristicUUID, "control characteristic UUID")
	timeout := flag.Duration("timeout", 30*time.Second, "scan timeout")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: send-color [flags] <hex>")
		os.Exit(2)
	}
	rgb, err := color.Parse(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	logCfg := config.Default().Logging
	if *verbose {
		logCfg.Level = "debug"
	}
	logger, err := logging.InitLogger(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := ble.DefaultSessionOptions()
	opts.Address = *address
	opts.CharacteristicUUID = *uuid
	opts.ScanTimeout = *timeout

	fmt.Printf("Scanning for %s...\n", *address)
	session, err := ble.Open(ctx, ble.NewBluetoothAdapter(), opts, logger, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer session.Close()

	gateway := ble.NewGateway(session.Characteristic(), ble.DefaultGatewayOptions(), logger, nil)
	go gateway.Run(ctx)
	defer gateway.Close()

	frame := protocol.SetColor(rgb.R, rgb.G, rgb.B)
	fmt.Printf("Sending %s: %s\n", rgb, frame)
	if err := gateway.Send(ctx, frame); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}

	fmt.Println("Done!")
}
