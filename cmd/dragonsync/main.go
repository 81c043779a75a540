// Command dragonsync fuses drone Remote-ID, ADS-B/UAT, Kismet device, and
// FPV RF-alert telemetry into CoT events and rebroadcasts them to a TAK
// server, multicast group, MQTT broker, and a read-only HTTP API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/billglover/dragonsync/internal/api"
	"github.com/billglover/dragonsync/internal/config"
	"github.com/billglover/dragonsync/internal/dispatch"
	"github.com/billglover/dragonsync/internal/registry"
	"github.com/billglover/dragonsync/internal/signalstore"
)

// shutdownGrace is how long run waits for in-flight sinks/sources to drain
// after the root context is cancelled (spec §6).
const shutdownGrace = 2 * time.Second

var cfgPath string

func main() {
	root := &cobra.Command{
		Use:   "dragonsync",
		Short: "Fuse drone, aircraft, and RF telemetry into CoT events",
		Long: `DragonSync fuses heterogeneous surveillance telemetry — drone Remote-ID
broadcasts, manned-aircraft ADS-B/UAT, Wi-Fi/Bluetooth device sightings, and
FPV-video RF alerts — into a unified stream of geolocated tracks, then
rebroadcasts them as CoT events to a tactical server, multicast, MQTT, and a
read-only HTTP API.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to a YAML/JSON config file")
	root.AddCommand(newLogsCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "dragonsync: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	reg := registry.New(cfg.MaxDrones)
	alerts := signalstore.New(cfg.FPV.StaleAfter, signalstore.DefaultCapacity)
	statusGet, statusSet := api.NewAtomicStatus()

	sinks, closers, err := buildSinks(ctx, *cfg)
	if err != nil {
		return fmt.Errorf("dragonsync: building sinks: %w", err)
	}

	disp := dispatch.New(reg, alerts, sinks, dispatch.Config{
		TickInterval:      cfg.TickInterval,
		RateLimit:         cfg.RateLimit,
		KeepAliveInterval: cfg.KeepAliveInterval,
		InactivityTimeout: cfg.InactivityTimeout,
		FPVRadiusM:        cfg.FPV.RadiusM,
	})

	enrichSvc := buildEnrichment(*cfg, reg)
	sources := buildSources(*cfg, reg, alerts, disp, statusSet, statusGet)
	apiServer := buildAPIServer(*cfg, reg, alerts, statusGet)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		disp.Run(ctx)
	}()

	if enrichSvc != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			enrichSvc.Run(ctx)
		}()
	}

	for _, src := range sources {
		src := src
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := src.Run(ctx); err != nil && ctx.Err() == nil {
				log.Warn().Err(err).Msg("dragonsync: source exited")
			}
		}()
	}

	if apiServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := apiServer.ListenAndServe(ctx); err != nil && ctx.Err() == nil {
				log.Warn().Err(err).Msg("dragonsync: api server exited")
			}
		}()
	}

	<-ctx.Done()
	log.Info().Msg("dragonsync: shutting down")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownGrace):
		log.Warn().Msg("dragonsync: shutdown grace period exceeded, forcing exit")
	}

	if enrichSvc != nil {
		enrichSvc.Close()
	}
	for _, c := range closers {
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Msg("dragonsync: sink close error")
		}
	}
	return nil
}
