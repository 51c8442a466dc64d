package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tsarna/stompws/pkg/stomp/client"
	"github.com/tsarna/stompws/pkg/stomp/config"
	"github.com/tsarna/stompws/pkg/stomp/frame"
	"github.com/tsarna/stompws/pkg/stomp/o11y"
	"github.com/tsarna/stompws/pkg/stomp/otel"
	"github.com/tsarna/stompws/pkg/stomp/service"
	"go.uber.org/zap"
)

// connectionFlags are shared by commands that open a connection.
type connectionFlags struct {
	configPaths  []string
	endpoint     string
	sockJS       bool
	login        string
	passcode     string
	host         string
	headers      []string
	heartBeatOut time.Duration
	heartBeatIn  time.Duration

	metricsInterval time.Duration
	otel            bool
}

func (f *connectionFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringSliceVarP(&f.configPaths, "config", "c", nil, "HCL configuration files or directories")
	flags.StringVarP(&f.endpoint, "endpoint", "e", "", "endpoint to use from the configuration")
	flags.BoolVar(&f.sockJS, "sockjs", false, "treat the URL as a SockJS endpoint")
	flags.StringVar(&f.login, "login", "", "STOMP login")
	flags.StringVar(&f.passcode, "passcode", "", "STOMP passcode")
	flags.StringVar(&f.host, "host", "", "STOMP virtual host (default localhost)")
	flags.StringArrayVarP(&f.headers, "header", "H", nil, "extra CONNECT header as key=value (repeatable)")
	flags.DurationVar(&f.heartBeatOut, "heartbeat-out", client.DefaultHeartBeat.Outgoing, "outgoing heart-beat interval, 0 to disable")
	flags.DurationVar(&f.heartBeatIn, "heartbeat-in", client.DefaultHeartBeat.Incoming, "incoming heart-beat interval, 0 to disable")
	flags.DurationVar(&f.metricsInterval, "metrics-interval", 0, "log metrics at this interval, 0 to disable")
	flags.BoolVar(&f.otel, "otel", false, "report metrics and traces to the global OpenTelemetry providers")
}

// loadConfig builds the configuration files, if any were given.
func (f *connectionFlags) loadConfig(logger *zap.Logger) (*config.Config, error) {
	if len(f.configPaths) == 0 {
		return nil, nil
	}

	cfg, diags := config.NewConfig().
		WithLogger(logger).
		WithSources(stringSliceToAnySlice(f.configPaths)...).
		Build()
	if diags.HasErrors() {
		return nil, diags
	}
	return cfg, nil
}

// resolve picks the endpoint from the configuration, or builds one from url
// and the flags.
func (f *connectionFlags) resolve(cmd *cobra.Command, cfg *config.Config, url string) (*config.Endpoint, error) {
	if cfg != nil {
		var ep *config.Endpoint
		var err error
		if f.endpoint != "" {
			ep, err = cfg.Endpoint(f.endpoint)
		} else {
			ep, err = cfg.DefaultEndpoint()
		}
		if err != nil {
			return nil, err
		}
		f.override(cmd, &ep.Configuration)
		return ep, nil
	}

	if url == "" {
		return nil, fmt.Errorf("a URL or --config is required")
	}

	sc := service.Configuration{EndpointURL: url}
	f.override(cmd, &sc)
	if sc.HeartBeat == nil {
		sc.HeartBeat = &client.HeartBeatConfig{Outgoing: f.heartBeatOut, Incoming: f.heartBeatIn}
	}
	return &config.Endpoint{Name: "cli", Configuration: sc}, nil
}

// override applies flags given on the command line on top of sc.
func (f *connectionFlags) override(cmd *cobra.Command, sc *service.Configuration) {
	flags := cmd.Flags()
	if flags.Changed("sockjs") {
		sc.WithSockJS = f.sockJS
	}
	if flags.Changed("login") {
		sc.Connect.Login = f.login
	}
	if flags.Changed("passcode") {
		sc.Connect.Passcode = f.passcode
	}
	if flags.Changed("host") {
		sc.Host = f.host
	}
	if len(f.headers) > 0 {
		if sc.Connect.Headers == nil {
			sc.Connect.Headers = frame.NewHeader()
		} else {
			sc.Connect.Headers = sc.Connect.Headers.Clone()
		}
		sc.Connect.Headers.Update(parseKeyValues(f.headers))
	}
	if flags.Changed("heartbeat-out") || flags.Changed("heartbeat-in") {
		hb := client.HeartBeatConfig{Outgoing: f.heartBeatOut, Incoming: f.heartBeatIn}
		sc.HeartBeat = &hb
	}
}

// observability returns the providers selected by the flags and a function
// that stops them.
func (f *connectionFlags) observability(logger *zap.Logger) (o11y.ObservabilityConfig, func()) {
	if f.otel {
		p := otel.NewProvider("stompws", Version)
		return o11y.ObservabilityConfig{MetricsProvider: p, TracingProvider: p}, func() {}
	}

	if f.metricsInterval > 0 {
		p := o11y.NewStandaloneMetricsProvider(logger, &o11y.StandaloneMetricsConfig{
			Interval:    f.metricsInterval,
			ServiceName: "stompws",
		})
		if err := p.Start(); err != nil {
			logger.Warn("Failed to start metrics reporting", zap.Error(err))
			return o11y.ObservabilityConfig{}, func() {}
		}
		return o11y.ObservabilityConfig{MetricsProvider: p}, func() { p.Stop() }
	}

	return o11y.ObservabilityConfig{}, func() {}
}

// buildService creates the service for ep.
func (f *connectionFlags) buildService(logger *zap.Logger, ep *config.Endpoint) (*service.Service, func(), error) {
	obs, stop := f.observability(logger)

	svc, err := service.NewService().
		WithConfiguration(ep.Configuration).
		WithLogger(logger).
		WithObservability(obs).
		Build()
	if err != nil {
		stop()
		return nil, nil, err
	}
	return svc, stop, nil
}

// parseKeyValues turns key=value strings into a header. Entries without
// '=' get an empty value.
func parseKeyValues(pairs []string) *frame.Header {
	header := frame.NewHeader()
	for _, pair := range pairs {
		key, value, _ := strings.Cut(pair, "=")
		header.Set(strings.TrimSpace(key), value)
	}
	return header
}

// Helper to convert []string to []any
func stringSliceToAnySlice(strs []string) []any {
	anys := make([]any, len(strs))
	for i, s := range strs {
		anys[i] = s
	}
	return anys
}
