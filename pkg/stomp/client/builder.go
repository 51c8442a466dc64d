package client

import (
	"fmt"
	"time"

	"github.com/tsarna/stompws/pkg/stomp/frame"
	"github.com/tsarna/stompws/pkg/stomp/o11y"
	"github.com/tsarna/stompws/pkg/stomp/stream"
	"github.com/tsarna/stompws/pkg/stomp/transport"
	"go.uber.org/zap"
)

// DefaultHeartBeat is used unless WithHeartBeat is called.
var DefaultHeartBeat = HeartBeatConfig{
	Outgoing: 10 * time.Second,
	Incoming: 10 * time.Second,
}

// ClientBuilder provides a fluent interface for building STOMP clients.
type ClientBuilder struct {
	transport       transport.Transport
	logger          *zap.Logger
	heartBeat       HeartBeatConfig
	host            string
	maxFrameSize    int
	metricsProvider o11y.MetricsProvider
}

// NewClient creates a new STOMP client builder.
func NewClient() *ClientBuilder {
	return &ClientBuilder{
		logger:       zap.NewNop(),
		heartBeat:    DefaultHeartBeat,
		host:         "localhost",
		maxFrameSize: DefaultMaxFrameSize,
	}
}

// WithTransport sets the transport the client runs over.
func (b *ClientBuilder) WithTransport(t transport.Transport) *ClientBuilder {
	b.transport = t
	return b
}

// WithLogger sets the logger for the client.
func (b *ClientBuilder) WithLogger(logger *zap.Logger) *ClientBuilder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// WithHeartBeat sets the heart-beat intervals the client is willing to use.
// Negative values are treated as zero, which disables that direction.
func (b *ClientBuilder) WithHeartBeat(config HeartBeatConfig) *ClientBuilder {
	b.heartBeat = HeartBeatConfig{
		Outgoing: max(config.Outgoing, 0),
		Incoming: max(config.Incoming, 0),
	}
	return b
}

// WithHost sets the host header of the CONNECT frame. Default is
// "localhost".
func (b *ClientBuilder) WithHost(host string) *ClientBuilder {
	if host != "" {
		b.host = host
	}
	return b
}

// WithMaxFrameSize sets the largest transport message the client writes.
// Default is 16 KiB.
func (b *ClientBuilder) WithMaxFrameSize(size int) *ClientBuilder {
	if size > 0 {
		b.maxFrameSize = size
	}
	return b
}

// WithMetricsProvider sets the provider the client reports metrics to.
func (b *ClientBuilder) WithMetricsProvider(provider o11y.MetricsProvider) *ClientBuilder {
	b.metricsProvider = provider
	return b
}

// Build creates and returns a new client with the configured options.
func (b *ClientBuilder) Build() (*Client, error) {
	if err := b.IsValid(); err != nil {
		return nil, err
	}

	return &Client{
		transport:     b.transport,
		logger:        b.logger,
		heartBeat:     b.heartBeat,
		host:          b.host,
		maxFrameSize:  b.maxFrameSize,
		metrics:       NewMetrics(b.metricsProvider),
		assembler:     frame.NewAssembler(frame.NewDeserializer(b.logger)),
		subscriptions: make(map[string]*Subscription),
		receipts:      make(map[string]*Receipt),
		connected:     stream.NewSubject[*frame.Frame](),
		messages:      stream.NewSubject[frame.Message](),
		receiptCh:     stream.NewSubject[*frame.Frame](),
		errorCh:       stream.NewSubject[frame.ErrorFrame](),
	}, nil
}

// IsValid checks that all required configuration is present.
func (b *ClientBuilder) IsValid() error {
	if b.transport == nil {
		return fmt.Errorf("transport is required")
	}

	if b.logger == nil {
		b.logger = zap.NewNop()
	}

	if b.host == "" {
		b.host = "localhost"
	}

	if b.maxFrameSize <= 0 {
		b.maxFrameSize = DefaultMaxFrameSize
	}

	return nil
}
