package websocket

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/tsarna/stompws/pkg/stomp/transport"
	"go.uber.org/zap"
)

// DefaultProtocols are the STOMP subprotocols offered during the handshake.
var DefaultProtocols = []string{"v11.stomp", "v12.stomp"}

// TransportBuilder provides a fluent interface for building WebSocket
// transports.
type TransportBuilder struct {
	url          string
	base         *url.URL
	sockJS       bool
	protocols    []string
	dialTimeout  time.Duration
	readLimit    int64
	headers      http.Header
	logger       *zap.Logger
	faultHandler FaultHandler
}

// NewTransport creates a new WebSocket transport builder.
func NewTransport() *TransportBuilder {
	return &TransportBuilder{
		protocols:   append([]string(nil), DefaultProtocols...),
		dialTimeout: 30 * time.Second,
		readLimit:   1 << 20,
		logger:      zap.NewNop(),
	}
}

// WithURL sets the endpoint URL. It may be relative, in which case it is
// resolved against the base set with WithBaseURL.
func (b *TransportBuilder) WithURL(url string) *TransportBuilder {
	b.url = url
	return b
}

// WithBaseURL sets the location relative endpoint URLs are resolved against.
func (b *TransportBuilder) WithBaseURL(base *url.URL) *TransportBuilder {
	b.base = base
	return b
}

// WithSockJS treats the endpoint URL as a SockJS endpoint and connects to its
// raw WebSocket URL instead.
func (b *TransportBuilder) WithSockJS(enabled bool) *TransportBuilder {
	b.sockJS = enabled
	return b
}

// WithProtocols sets the WebSocket subprotocols offered to the server.
func (b *TransportBuilder) WithProtocols(protocols ...string) *TransportBuilder {
	b.protocols = protocols
	return b
}

// WithDialTimeout sets the timeout for establishing the WebSocket connection.
func (b *TransportBuilder) WithDialTimeout(timeout time.Duration) *TransportBuilder {
	if timeout > 0 {
		b.dialTimeout = timeout
	}
	return b
}

// WithReadLimit sets the largest message the transport accepts. Default is
// 1 MiB.
func (b *TransportBuilder) WithReadLimit(limit int64) *TransportBuilder {
	if limit > 0 {
		b.readLimit = limit
	}
	return b
}

// WithHeaders adds HTTP headers sent with the WebSocket handshake.
func (b *TransportBuilder) WithHeaders(headers map[string][]string) *TransportBuilder {
	if b.headers == nil {
		b.headers = make(http.Header)
	}
	for key, values := range headers {
		b.headers[key] = values
	}
	return b
}

// WithHeader sets a single HTTP handshake header.
func (b *TransportBuilder) WithHeader(key, value string) *TransportBuilder {
	if b.headers == nil {
		b.headers = make(http.Header)
	}
	b.headers.Set(key, value)
	return b
}

// WithLogger sets the logger for the transport.
func (b *TransportBuilder) WithLogger(logger *zap.Logger) *TransportBuilder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// WithFaultHandler sets a function that receives errors returned by the
// handler's OnMessage.
func (b *TransportBuilder) WithFaultHandler(handler FaultHandler) *TransportBuilder {
	b.faultHandler = handler
	return b
}

// Build resolves the endpoint URL and returns the transport.
func (b *TransportBuilder) Build() (*Transport, error) {
	if err := b.IsValid(); err != nil {
		return nil, err
	}

	var (
		resolved string
		err      error
	)
	if b.sockJS {
		resolved, err = transport.FromSockJS(b.url, b.base)
		if err == nil {
			b.logger.Debug("Transformed SockJS url to native websocket", zap.String("url", resolved))
		}
	} else {
		resolved, err = transport.ToAbsolute(b.url, b.base)
	}
	if err != nil {
		return nil, err
	}

	return &Transport{
		url:          resolved,
		protocols:    b.protocols,
		dialTimeout:  b.dialTimeout,
		readLimit:    b.readLimit,
		headers:      b.headers,
		logger:       b.logger,
		faultHandler: b.faultHandler,
	}, nil
}

// IsValid checks that all required configuration is present.
func (b *TransportBuilder) IsValid() error {
	if b.url == "" {
		return fmt.Errorf("URL is required")
	}

	if b.logger == nil {
		b.logger = zap.NewNop()
	}

	if b.dialTimeout <= 0 {
		b.dialTimeout = 30 * time.Second
	}

	return nil
}
