package bootstrap

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"voicelink/internal/audio"
	"voicelink/internal/config"
	"voicelink/internal/events"
	"voicelink/internal/observability"
	"voicelink/internal/observability/logging"
	"voicelink/internal/observability/metrics"
	"voicelink/internal/ports"
	"voicelink/internal/providers/realtime"
	"voicelink/internal/providers/tokenexchange"
	"voicelink/internal/rules"
	"voicelink/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Controller *usecase.Controller
	Prober     ports.AvailabilityProber
	Publisher  *events.Publisher
	// Observability is nil unless a metrics address is configured.
	Observability *observability.Server
	Config        config.Config
}

// Build loads configuration and wires all backend dependencies.
func Build(eventSink ports.EventSink) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}
	return BuildFromConfig(cfg, eventSink)
}

// BuildFromConfig wires the runtime graph for an already resolved config.
func BuildFromConfig(cfg config.Config, eventSink ports.EventSink) (Services, error) {
	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Log.Level
	logCfg.Format = cfg.Log.Format
	logging.Init(logCfg)

	m := metrics.Default()

	rulesEngine, err := rules.NewEngine(cfg.Rules.Path, cfg.Rules.IterationLimit)
	if err != nil {
		return Services{}, err
	}

	tokens := tokenexchange.NewClient(tokenexchange.Config{
		URL:         cfg.Token.URL,
		AuthToken:   cfg.Token.AuthToken,
		TokenPrefix: cfg.Token.Prefix,
		Timeout:     cfg.Token.Timeout,
	}, m)

	transport := realtime.NewTransport(realtime.Config{
		URL:         cfg.Realtime.URL,
		OpenTimeout: cfg.Realtime.OpenTimeout,
	}, m)

	publisher := events.New(&events.Config{
		Brokers:   cfg.Kafka.Brokers,
		Topic:     cfg.Kafka.Topic,
		Principal: cfg.Kafka.Principal,
		Enabled:   cfg.Kafka.Enabled,
	}, m)

	controller := usecase.NewController(
		audio.NewFFMPEGCapture(cfg.Audio.RecorderCommand),
		tokens,
		transport,
		rulesEngine,
		publisher,
		eventSink,
		usecase.Config{
			Audio: ports.AudioConfig{
				SampleRate:       cfg.Audio.SampleRate,
				Channels:         cfg.Audio.Channels,
				InputFormat:      cfg.Audio.InputFormat,
				InputDevice:      cfg.Audio.InputDevice,
				EchoCancelDevice: cfg.Audio.EchoCancelDevice,
				EchoCancellation: cfg.Audio.EchoCancellation,
				NoiseSuppression: cfg.Audio.NoiseSuppression,
				AutoGain:         cfg.Audio.AutoGain,
			},
			Session:     cfg.Session.Defaults,
			ChunkSize:   cfg.Session.ChunkSize,
			SettleDelay: settleDelay(cfg.Session.SettleDelay),
			SinkTimeout: cfg.Session.SinkTimeout,
			StrictMute:  cfg.Session.StrictMute,
			Metrics:     m,
		},
	)

	services := Services{
		Controller: controller,
		Prober:     tokens,
		Publisher:  publisher,
		Config:     cfg,
	}

	if cfg.Metrics.Addr != "" {
		server := observability.NewServer(cfg.Metrics.Addr, prometheus.DefaultGatherer)
		if err := server.Start(); err != nil {
			controller.Close()
			_ = publisher.Close()
			return Services{}, err
		}
		server.SetReady(true)
		services.Observability = server
	}

	return services, nil
}

// Close tears down the controller first, then the sink and the metrics server.
func (s Services) Close(ctx context.Context) error {
	if s.Controller != nil {
		s.Controller.Close()
	}
	var errs []error
	if s.Publisher != nil {
		errs = append(errs, s.Publisher.Close())
	}
	if s.Observability != nil {
		errs = append(errs, s.Observability.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// settleDelay maps an explicit zero to "no delay" for the controller, which
// treats zero as unset.
func settleDelay(d time.Duration) time.Duration {
	if d == 0 {
		return -1
	}
	return d
}
