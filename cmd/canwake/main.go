package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tmorgan983/canwake/internal/can"
	"github.com/tmorgan983/canwake/internal/config"
	"github.com/tmorgan983/canwake/internal/engine"
	"github.com/tmorgan983/canwake/internal/server"
	"github.com/tmorgan983/canwake/internal/supervisor"
	"github.com/tmorgan983/canwake/web"
)

// Exit codes. The distinction matters to the external restart policy:
// config errors are not worth retrying, terminal transport failures are.
const (
	exitOK          = 0
	exitConfigError = 1
	exitTerminal    = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "/etc/canwake/config.yaml", "Path to config file")
	mode := flag.String("mode", "", "Operating mode ("+strings.Join(engine.ModeNames(), ", ")+")")
	dryRun := flag.Bool("dry-run", false, "Exercise all decision logic without sending frames")
	demo := flag.Bool("demo", false, "Run against a simulated bus instead of hardware")
	listenAddr := flag.String("listen", "", "Enable the status server on this address (e.g. :8099)")
	verbose := flag.Bool("verbose", false, "Log with microsecond timestamps and source locations")
	flag.Parse()

	logFlags := log.Ldate | log.Ltime
	if *verbose {
		logFlags |= log.Lmicroseconds | log.Lshortfile
	}
	log.SetFlags(logFlags)
	log.Println("[main] canwake starting")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("[main] %v", err)
		return exitConfigError
	}
	if *mode != "" {
		cfg.Mode = *mode
	}
	if *dryRun {
		cfg.DryRun = true
	}
	if *listenAddr != "" {
		cfg.Server.Enabled = true
		cfg.Server.ListenAddr = *listenAddr
	}
	if err := cfg.Validate(); err != nil {
		log.Printf("[main] %v", err)
		return exitConfigError
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	eng, err := engine.New(cfg, rng)
	if err != nil {
		log.Printf("[main] %v", err)
		return exitConfigError
	}

	var tr can.Transport
	if *demo {
		tr = can.NewDemo(can.DemoConfig{
			ClockID: cfg.Frames.TeslaClock,
			GearID:  cfg.Frames.Gear,
			Bus:     cfg.Bus.Main,
		})
	} else {
		tr = can.NewSLCAN(can.SLCANConfig{
			Device:    cfg.Bus.Device,
			BaudRate:  cfg.Bus.BaudRate,
			SpeedKbps: cfg.Bus.SpeedKbps,
			BusIndex:  cfg.Bus.Main,
		})
	}
	if cfg.DryRun {
		log.Println("[main] dry run: no frames will be sent")
		tr = can.NewDryRun(tr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("[main] received %v, shutting down", sig)
		cancel()
	}()

	registry := prometheus.NewRegistry()
	metrics := supervisor.NewMetrics(registry)
	sup := supervisor.New(tr, eng, cfg, supervisor.RealClock(), metrics)

	if cfg.Server.Enabled {
		srv := server.New(cfg.Server.ListenAddr, sup, registry, web.FS)
		go func() {
			if err := srv.Run(ctx); err != nil {
				log.Printf("[server] exited: %v", err)
			}
		}()
	}

	if err := sup.Run(ctx); err != nil {
		if errors.Is(err, supervisor.ErrReconnectExhausted) {
			fmt.Fprintf(os.Stderr, "canwake: fatal: %v\n", err)
			return exitTerminal
		}
		log.Printf("[main] run loop exited: %v", err)
		return exitTerminal
	}
	return exitOK
}
