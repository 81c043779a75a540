package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/billglover/dragonsync/internal/api"
	"github.com/billglover/dragonsync/internal/config"
	"github.com/billglover/dragonsync/internal/dispatch"
	"github.com/billglover/dragonsync/internal/enrich"
	"github.com/billglover/dragonsync/internal/model"
	"github.com/billglover/dragonsync/internal/registry"
	"github.com/billglover/dragonsync/internal/signalstore"
	"github.com/billglover/dragonsync/internal/sink"
	"github.com/billglover/dragonsync/internal/source"
	"github.com/billglover/dragonsync/internal/tlsload"
	"github.com/billglover/dragonsync/internal/updatecheck"
)

// sourceRunner is the common shape every Source exposes to the run loop.
type sourceRunner interface {
	Run(ctx context.Context) error
}

// pollingSourceAdapter lifts an interval-polling Source (whose Run takes an
// explicit interval) to the sourceRunner interface.
type pollingSourceAdapter struct {
	interval time.Duration
	run      func(ctx context.Context, interval time.Duration) error
}

func (p pollingSourceAdapter) Run(ctx context.Context) error {
	return p.run(ctx, p.interval)
}

// buildSinks constructs every enabled Sink adapter from cfg, returning the
// list handed to the Dispatcher plus the io.Closer set torn down at
// shutdown. A sink that fails to construct is logged and skipped rather
// than aborting startup, so a single misconfigured downstream doesn't take
// the whole kit's CoT flow down with it.
func buildSinks(ctx context.Context, cfg config.Config) ([]any, []io.Closer, error) {
	var sinks []any
	var closers []io.Closer

	if cfg.TAK.Host != "" {
		tc, err := loadPKCS12(cfg.TAK.PKCS12Path, cfg.TAK.PKCS12Password, cfg.TAK.SkipVerify)
		if err != nil {
			log.Warn().Err(err).Msg("dragonsync: tak TLS config failed, connecting without TLS")
		}
		addr := fmt.Sprintf("%s:%d", cfg.TAK.Host, cfg.TAK.Port)
		switch cfg.TAK.Protocol {
		case "udp":
			s, err := sink.NewUDPSink(addr)
			if err != nil {
				log.Warn().Err(err).Msg("dragonsync: tak udp sink failed")
			} else {
				sinks = append(sinks, s)
				closers = append(closers, s)
			}
		default:
			s := sink.NewTCPSink(ctx, addr, tc)
			sinks = append(sinks, s)
			closers = append(closers, s)
		}
	}

	if cfg.Multicast.Enabled {
		s, err := sink.NewMulticastSink(cfg.Multicast.Address, cfg.Multicast.Port, cfg.Multicast.Interface, cfg.Multicast.TTL, cfg.Multicast.Receive)
		if err != nil {
			log.Warn().Err(err).Msg("dragonsync: multicast sink failed")
		} else {
			sinks = append(sinks, s)
			closers = append(closers, s)
		}
	}

	if cfg.MQTT.Enabled {
		var tc *tls.Config
		if cfg.MQTT.TLS {
			var err error
			tc, err = loadPKCS12(cfg.TAK.PKCS12Path, cfg.TAK.PKCS12Password, cfg.TAK.SkipVerify)
			if err != nil {
				log.Warn().Err(err).Msg("dragonsync: mqtt TLS config failed, connecting without TLS")
			}
		}
		s, err := sink.NewMQTTSink(sink.MQTTConfig{
			Host: cfg.MQTT.Host, Port: cfg.MQTT.Port,
			Username: cfg.MQTT.Username, Password: cfg.MQTT.Password,
			TLSConfig: tc, Topic: cfg.MQTT.Topic, Retain: cfg.MQTT.Retain,
			PerDroneTopics: cfg.MQTT.PerDroneTopics, HADiscovery: cfg.MQTT.HADiscovery,
		})
		if err != nil {
			log.Warn().Err(err).Msg("dragonsync: mqtt sink failed")
		} else {
			sinks = append(sinks, s)
			closers = append(closers, s)
		}
	}

	if cfg.ThirdParty.Enabled {
		s, err := sink.NewThirdPartySink(ctx, cfg.ThirdParty.AMQPURL, cfg.ThirdParty.Exchange, cfg.ThirdParty.DroneHz, cfg.ThirdParty.WardragonHz)
		if err != nil {
			log.Warn().Err(err).Msg("dragonsync: third-party sink failed")
		} else {
			sinks = append(sinks, s)
			closers = append(closers, s)
		}
	}

	if cfg.ADSB.Enabled {
		cache := sink.NewCachingSink(cfg.ADSB.CacheTTL)
		sinks = append(sinks, cache)
		closers = append(closers, cache)
	}

	return sinks, closers, nil
}

func buildEnrichment(cfg config.Config, reg *registry.Registry) *enrich.Service {
	if !cfg.Enrichment.Enabled {
		return nil
	}
	var local enrich.LocalLookup
	if cfg.Enrichment.LocalDBPath != "" {
		db, err := enrich.OpenSQLiteLocalDB(cfg.Enrichment.LocalDBPath)
		if err != nil {
			log.Warn().Err(err).Msg("dragonsync: enrichment local db unavailable, enrichment disabled")
			return nil
		}
		local = db
	}
	return enrich.New(enrich.Config{
		RateLimit:    cfg.Enrichment.RateLimit,
		QueueMax:     cfg.Enrichment.QueueMax,
		MissCacheCap: cfg.Enrichment.MissCacheCap,
		UseAPIFallback: cfg.Enrichment.UseAPIFallback,
	}, local, nil, reg)
}

// buildSources constructs every enabled Source from cfg.
func buildSources(cfg config.Config, reg *registry.Registry, alerts *signalstore.Store, disp *dispatch.Dispatcher, statusSet func(*model.SystemStatus), statusGet api.SystemStatusProvider) []sourceRunner {
	var sources []sourceRunner

	sources = append(sources, &source.RemoteIDSource{
		Endpoint: cfg.ZMQ.RemoteIDEndpoint,
		SeenBy:   cfg.KitSerial,
		Reg:      reg,
	})

	if cfg.ZMQ.StatusEndpoint != "" {
		sources = append(sources, &source.SystemStatusSource{
			Endpoint: cfg.ZMQ.StatusEndpoint,
			Publish: func(st *model.SystemStatus) {
				statusSet(st)
				disp.PublishSystem(context.Background(), st)
			},
		})
	}

	if cfg.FPV.Enabled && cfg.ZMQ.FPVEndpoint != "" {
		sources = append(sources, &source.FPVSource{
			Endpoint:    cfg.ZMQ.FPVEndpoint,
			RadiusM:     cfg.FPV.RadiusM,
			ConfirmOnly: cfg.FPV.ConfirmOnly,
			Alerts: alerts,
			Anchor: func() model.Position {
				if st := statusGet(); st != nil {
					return st.Position
				}
				return model.Position{}
			},
			Dispatch: disp.PublishSignal,
		})
	}

	if cfg.ADSB.Enabled && cfg.ADSB.JSONURL != "" {
		adsb := &source.AircraftSource{URL: cfg.ADSB.JSONURL, Kind: source.AircraftADSB, SeenBy: cfg.KitSerial, Reg: reg}
		sources = append(sources, pollingSourceAdapter{interval: cfg.ADSB.PollInterval, run: adsb.Run})
	}

	if cfg.UAT.Enabled && cfg.UAT.JSONURL != "" {
		uat := &source.AircraftSource{URL: cfg.UAT.JSONURL, Kind: source.AircraftUAT, SeenBy: cfg.KitSerial, Reg: reg}
		sources = append(sources, pollingSourceAdapter{interval: time.Second, run: uat.Run})
	}

	if cfg.Kismet.Enabled && cfg.Kismet.Host != "" {
		kismet := &source.KismetSource{
			Host: cfg.Kismet.Host, APIKey: cfg.Kismet.APIKey, SeenBy: cfg.KitSerial,
			MinSendInterval: cfg.Kismet.MinSendInterval, Reg: reg,
		}
		sources = append(sources, pollingSourceAdapter{interval: 5 * time.Second, run: kismet.Run})
	}

	return sources
}

func buildAPIServer(cfg config.Config, reg *registry.Registry, alerts *signalstore.Store, statusGet api.SystemStatusProvider) *api.Server {
	if !cfg.API.Enabled {
		return nil
	}
	addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
	checker := updatecheck.GitChecker{}
	return api.New(addr, reg, alerts, func() config.Config { return cfg }, statusGet, checker)
}

// loadPKCS12 resolves the TAK credential bundle into a *tls.Config, or
// returns nil with no error if no bundle path is configured (plain
// TCP/unencrypted MQTT).
func loadPKCS12(path, password string, skipVerify bool) (*tls.Config, error) {
	if path == "" {
		return nil, nil
	}
	return tlsload.Load(path, password, skipVerify)
}
