// Package service manages a single STOMP endpoint: it builds the transport
// and client from a Configuration, connects, and republishes the client each
// time a STOMP session is established.
package service

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/tsarna/stompws/pkg/stomp/client"
	"github.com/tsarna/stompws/pkg/stomp/frame"
	"github.com/tsarna/stompws/pkg/stomp/o11y"
	"github.com/tsarna/stompws/pkg/stomp/stream"
	"github.com/tsarna/stompws/pkg/stomp/transport/websocket"
	"go.uber.org/zap"
)

// Configuration describes the endpoint a Service connects to.
type Configuration struct {
	// EndpointURL is the WebSocket or SockJS endpoint.
	EndpointURL string
	// WithSockJS treats EndpointURL as a SockJS endpoint.
	WithSockJS bool
	// BaseURL resolves a relative EndpointURL.
	BaseURL *url.URL
	// Protocols overrides the offered WebSocket subprotocols.
	Protocols []string
	// HTTPHeaders are sent with the WebSocket handshake.
	HTTPHeaders map[string][]string
	// HeartBeat overrides the client's default heart-beat preference.
	HeartBeat *client.HeartBeatConfig
	// Host is the CONNECT host header.
	Host string
	// Connect holds the CONNECT headers and credentials.
	Connect client.Config
}

// Service owns one client and its transport.
type Service struct {
	config  Configuration
	logger  *zap.Logger
	tracing o11y.TracingProvider
	client  *client.Client

	connectedClient *stream.Replay[*client.Client]

	mu      sync.Mutex
	subs    []stream.Subscription
	started int32
}

// Client returns the managed client.
func (s *Service) Client() *client.Client {
	return s.client
}

// ConnectedClient publishes the client every time it completes a STOMP
// handshake. New observers immediately receive the most recent one, which
// makes it a good point to set up subscriptions.
func (s *Service) ConnectedClient() stream.Observable[*client.Client] {
	return s.connectedClient
}

// Start connects to the endpoint. It returns once the CONNECT frame has been
// sent; see ConnectedClient for the outcome.
func (s *Service) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.started, 0, 1) {
		return fmt.Errorf("service is already started")
	}

	ctx, span := o11y.StartSpan(ctx, s.tracing, "stomp.connect")
	defer span.End()
	span.SetAttributes(o11y.Label{Key: "url", Value: s.client.URL()})

	errSub := s.client.Errors().Subscribe(func(ef frame.ErrorFrame) {
		s.logger.Warn("STOMP: Got ERROR!",
			zap.String("message", ef.ErrorMessage()),
			zap.String("detail", ef.ErrorDetail()),
			zap.Bool("synthesized", ef.Synthesized()))
	})

	connSub := s.client.Connected().Subscribe(func(f *frame.Frame) {
		s.logger.Info("STOMP: Got connection. Ready for subscriptions.",
			zap.String("server", f.Header.Value(frame.HdrServer)),
			zap.String("session", f.Header.Value(frame.HdrSession)))
		s.connectedClient.Publish(s.client)
	})

	s.mu.Lock()
	s.subs = append(s.subs, errSub, connSub)
	s.mu.Unlock()

	s.logger.Info("Attempting to connect to STOMP ...", zap.String("url", s.client.URL()))
	if err := s.client.Connect(ctx, s.config.Connect); err != nil {
		s.logger.Error("Error while attempting to connect!", zap.Error(err))
		span.SetStatus(o11y.SpanStatusError, err.Error())
		s.unsubscribe()
		atomic.StoreInt32(&s.started, 0)
		return err
	}

	span.SetStatus(o11y.SpanStatusOK, "")
	return nil
}

// Stop disconnects the client.
func (s *Service) Stop(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.started, 1, 0) {
		return nil // Already stopped
	}

	_, span := o11y.StartSpan(ctx, s.tracing, "stomp.disconnect")
	defer span.End()

	err := s.client.Disconnect(ctx, nil, nil)
	s.unsubscribe()
	if err != nil {
		span.SetStatus(o11y.SpanStatusError, err.Error())
		return err
	}
	return nil
}

func (s *Service) unsubscribe() {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
}

// ServiceBuilder provides a fluent interface for building services.
type ServiceBuilder struct {
	config        Configuration
	logger        *zap.Logger
	observability o11y.ObservabilityConfig
}

// NewService creates a new service builder.
func NewService() *ServiceBuilder {
	return &ServiceBuilder{
		logger: zap.NewNop(),
	}
}

// WithConfiguration sets the endpoint configuration.
func (b *ServiceBuilder) WithConfiguration(config Configuration) *ServiceBuilder {
	b.config = config
	return b
}

// WithLogger sets the logger for the service, its client and its transport.
func (b *ServiceBuilder) WithLogger(logger *zap.Logger) *ServiceBuilder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// WithObservability sets the metrics and tracing providers.
func (b *ServiceBuilder) WithObservability(config o11y.ObservabilityConfig) *ServiceBuilder {
	b.observability = config
	return b
}

// Build creates the transport and client.
func (b *ServiceBuilder) Build() (*Service, error) {
	if err := b.IsValid(); err != nil {
		return nil, err
	}

	tb := websocket.NewTransport().
		WithURL(b.config.EndpointURL).
		WithBaseURL(b.config.BaseURL).
		WithSockJS(b.config.WithSockJS).
		WithHeaders(b.config.HTTPHeaders).
		WithLogger(b.logger).
		WithFaultHandler(func(err error) {
			b.logger.Error("STOMP: failed to handle inbound data", zap.Error(err))
		})
	if len(b.config.Protocols) > 0 {
		tb = tb.WithProtocols(b.config.Protocols...)
	}

	t, err := tb.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build transport: %w", err)
	}

	cb := client.NewClient().
		WithTransport(t).
		WithLogger(b.logger).
		WithHost(b.config.Host).
		WithMetricsProvider(b.observability.MetricsProvider)
	if b.config.HeartBeat != nil {
		cb = cb.WithHeartBeat(*b.config.HeartBeat)
	}

	c, err := cb.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build client: %w", err)
	}

	return &Service{
		config:          b.config,
		logger:          b.logger,
		tracing:         b.observability.TracingProvider,
		client:          c,
		connectedClient: stream.NewReplay[*client.Client](),
	}, nil
}

// IsValid checks that all required configuration is present.
func (b *ServiceBuilder) IsValid() error {
	if b.config.EndpointURL == "" {
		return fmt.Errorf("endpoint URL is required")
	}

	if b.logger == nil {
		b.logger = zap.NewNop()
	}

	return nil
}
