// bridged is the tillbridge daemon: a loopback WebSocket bridge giving
// browser point-of-sale clients access to receipt printers, the cash drawer,
// and the barcode scanner on the machine it runs on.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tillbridge/tillbridge/internal/config"
	"github.com/tillbridge/tillbridge/internal/discovery"
	"github.com/tillbridge/tillbridge/internal/dispatch"
	"github.com/tillbridge/tillbridge/internal/executor"
	"github.com/tillbridge/tillbridge/internal/hub"
	"github.com/tillbridge/tillbridge/internal/platform"
	"github.com/tillbridge/tillbridge/internal/registry"
	"github.com/tillbridge/tillbridge/internal/render"
	"github.com/tillbridge/tillbridge/internal/scanner"
	"github.com/tillbridge/tillbridge/internal/server"
)

const version = "0.4.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		host       string
		port       int
		logLevel   string
		configPath string
	)

	cmd := &cobra.Command{
		Use:     "bridged",
		Short:   "POS hardware bridge daemon",
		Long:    "bridged connects browser POS clients to local receipt printers, the cash drawer and the barcode scanner over a WebSocket channel.",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				cfg.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&host, "host", config.DefaultHost, "address to bind")
	cmd.Flags().IntVar(&port, "port", config.DefaultPort, "port to listen on")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	cmd.Flags().StringVar(&configPath, "config", "", "config file path (default: platform config dir)")
	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	log := newLogger(cfg.LogLevel)
	log.Info().Str("version", version).Msg("bridge starting")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	providers := []discovery.Provider{
		&discovery.StaticProvider{Printers: cfg.Printers},
		&discovery.USBProvider{},
		&discovery.MDNSProvider{},
	}
	if cfg.Discovery.SubnetScan {
		providers = append(providers, &discovery.SubnetProvider{})
	}
	sweeper := discovery.NewSweeper(providers, cfg.Discovery.Timeout(), log)

	opener := registry.NewTransportOpener(cfg.Bluetooth.RFCOMM)
	printers := registry.New(opener, sweeper, log)

	// Initial sweep so the first status snapshot already has printers.
	// Failure is not fatal; discover_printers can retry.
	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if _, err := printers.Refresh(initCtx); err != nil {
		log.Warn().Err(err).Msg("initial discovery failed")
	}
	cancel()

	pool := executor.NewPool(executor.DefaultWorkers, log)
	pool.Start(ctx)

	scans := newScannerManager(cfg, log)
	scans.Start(ctx)

	var image *render.ImageRenderer
	if chromePath, ok := platform.FindChrome(); ok {
		log.Info().Str("path", chromePath).Msg("chrome found, image rendering enabled")
		image = render.NewImageRenderer(chromePath, log)
	} else {
		log.Info().Msg("chrome not found, text rendering only")
	}
	engine := render.NewEngine(version, image, log)

	dispatcher := dispatch.New(
		version,
		printers,
		pool,
		engine,
		platform.NewNotifier(),
		platform.NewKeyboard(),
		scans,
		log,
	)

	h := hub.New(log)
	srv := server.New(dispatcher, h, log)
	go srv.PumpScans(ctx, scans.Results())

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	if err := srv.Run(ctx, addr); err != nil {
		return fmt.Errorf("server: %w", err)
	}

	log.Info().Msg("bridge stopped")
	return nil
}

// newScannerManager picks the capture source for this machine. Anything going
// wrong here degrades to inactive scanning.
func newScannerManager(cfg *config.Config, log zerolog.Logger) *scanner.Manager {
	var source scanner.CaptureSource

	switch {
	case !cfg.Scanner.Enabled:
		log.Info().Msg("scanner disabled by config")
	case runtime.GOOS != "linux":
		log.Info().Str("os", runtime.GOOS).Msg("no scanner capture source for this platform")
	case cfg.Scanner.Device != "":
		source = scanner.NewEvdevSource(cfg.Scanner.Device)
	default:
		device, err := scanner.FindScannerDevice()
		if err != nil {
			log.Info().Err(err).Msg("no scanner device found")
		} else {
			source = scanner.NewEvdevSource(device)
		}
	}

	return scanner.NewManager(source, cfg.Scanner.ScannerTimeout(), log)
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	out := os.Stderr
	logger := zerolog.New(out)
	if isTerminal(out) {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen})
	}
	return logger.Level(lvl).With().Timestamp().Logger()
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
