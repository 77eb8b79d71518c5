// Command govee-light connects to a BLE RGB light and serves
// GET /light/{hex} to change its color.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chaz8081/govee-light/internal/ble"
	"github.com/chaz8081/govee-light/internal/config"
	"github.com/chaz8081/govee-light/internal/httpserver"
	"github.com/chaz8081/govee-light/internal/logging"
	"github.com/chaz8081/govee-light/internal/metrics"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "path to config file (default: ~/.config/govee-light/config.yaml)")
	address := flag.String("address", "", "light MAC address, overrides config and "+config.EnvAddress)
	addr := flag.String("addr", "", "HTTP listen address, overrides config and "+config.EnvHTTPAddr)
	initConfig := flag.Bool("init-config", false, "write the default config file and exit")
	flag.Parse()

	if *initConfig {
		path, err := config.WriteDefault()
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		if path == "" {
			fmt.Printf("Config already exists at %s\n", config.DefaultConfigPath())
			return
		}
		fmt.Printf("Wrote %s\n", path)
		return
	}

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	cfg.ApplyEnv()
	if *address != "" {
		cfg.Device.Address = *address
	}
	if *addr != "" {
		cfg.HTTP.Addr = *addr
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}

	logger, err := logging.InitLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("govee-light stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := metrics.NewRegistry()
	m := metrics.New(reg)

	// Startup errors are unrecoverable: wrong device, no radio, or
	// unexpected firmware.
	session, err := ble.Open(ctx, ble.NewBluetoothAdapter(), ble.SessionOptions{
		Address:            cfg.Device.Address,
		CharacteristicUUID: cfg.Device.CharacteristicUUID,
		ScanTimeout:        cfg.Device.ScanTimeout,
		ConnectTimeout:     cfg.Device.ConnectTimeout,
	}, logger.Named("ble"), m)
	if err != nil {
		return fmt.Errorf("opening light session: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("closing session", zap.Error(err))
		}
	}()

	gateway := ble.NewGateway(session.Characteristic(), ble.GatewayOptions{
		QueueSize:    cfg.Gateway.QueueSize,
		WriteTimeout: cfg.Gateway.WriteTimeout,
		RateLimit:    cfg.Gateway.RateLimit,
		Burst:        cfg.Gateway.Burst,
	}, logger.Named("gateway"), m)
	keepAlive := ble.NewKeepAlive(gateway, cfg.KeepAlive.Interval, logger.Named("keepalive"))

	gin.SetMode(gin.ReleaseMode)
	opts := httpserver.Options{Ready: session.Connected}
	if cfg.Metrics.Enable {
		opts.MetricsPath = cfg.Metrics.Path
		opts.MetricsHandler = metrics.Handler(reg)
	}
	srv := httpserver.New(cfg.HTTP, httpserver.NewLightHandler(gateway, logger.Named("http"), m), opts, logger.Named("http"))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		gateway.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		_ = keepAlive.Run(ctx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTP.Addr))
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	logger.Info("ready",
		zap.String("device", session.Device().Address),
		zap.String("name", session.Device().Name),
		zap.Duration("keepalive", cfg.KeepAlive.Interval),
	)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err, ok := <-serveErr:
		if ok {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	gateway.Close()
	wg.Wait()

	logger.Info("goodbye", zap.Uint64("keepalives_sent", keepAlive.Sent()))
	return runErr
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	// Try default config path
	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		return cfg, nil
	}

	// No config file, use defaults
	return config.Default(), nil
}
