package client

import (
	"context"

	"github.com/tsarna/stompws/pkg/stomp/frame"
	"github.com/tsarna/stompws/pkg/stomp/o11y"
)

// Metrics holds the instruments the client reports to. A nil *Metrics
// records nothing.
type Metrics struct {
	framesSent       o11y.Counter   // Frames sent, by command
	framesReceived   o11y.Counter   // Frames received, by command
	chunksSent       o11y.Counter   // Transport messages written for frames
	frameSize        o11y.Histogram // Serialized size of sent frames (bytes)
	parseErrors      o11y.Counter   // Inbound payloads that failed to parse
	heartbeatsSent   o11y.Counter   // Heart-beat pings sent
	watchdogTimeouts o11y.Counter   // Connections closed for lack of server activity
	connected        o11y.Gauge     // 1 while a STOMP session is established
}

// NewMetrics creates the client instruments on provider. If provider is nil,
// it returns nil.
func NewMetrics(provider o11y.MetricsProvider) *Metrics {
	if provider == nil {
		return nil
	}

	return &Metrics{
		framesSent:       provider.Counter("stomp_frames_sent_total"),
		framesReceived:   provider.Counter("stomp_frames_received_total"),
		chunksSent:       provider.Counter("stomp_transport_chunks_sent_total"),
		frameSize:        provider.Histogram("stomp_frame_size_bytes"),
		parseErrors:      provider.Counter("stomp_parse_errors_total"),
		heartbeatsSent:   provider.Counter("stomp_heartbeats_sent_total"),
		watchdogTimeouts: provider.Counter("stomp_watchdog_timeouts_total"),
		connected:        provider.Gauge("stomp_connected"),
	}
}

func commandLabel(cmd frame.Command) o11y.Label {
	return o11y.Label{Key: "command", Value: cmd.String()}
}

func (m *Metrics) recordFrameSent(ctx context.Context, cmd frame.Command, size, chunks int) {
	if m == nil {
		return
	}
	m.framesSent.Add(ctx, 1, commandLabel(cmd))
	m.chunksSent.Add(ctx, int64(chunks))
	m.frameSize.Record(ctx, float64(size), commandLabel(cmd))
}

func (m *Metrics) recordFrameReceived(ctx context.Context, cmd frame.Command) {
	if m == nil {
		return
	}
	m.framesReceived.Add(ctx, 1, commandLabel(cmd))
}

func (m *Metrics) recordParseError(ctx context.Context) {
	if m == nil {
		return
	}
	m.parseErrors.Add(ctx, 1)
}

func (m *Metrics) recordHeartbeatSent(ctx context.Context) {
	if m == nil {
		return
	}
	m.heartbeatsSent.Add(ctx, 1)
}

func (m *Metrics) recordWatchdogTimeout(ctx context.Context) {
	if m == nil {
		return
	}
	m.watchdogTimeouts.Add(ctx, 1)
}

func (m *Metrics) recordConnected(ctx context.Context, connected bool) {
	if m == nil {
		return
	}
	v := 0.0
	if connected {
		v = 1
	}
	m.connected.Set(ctx, v)
}
