package client

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tsarna/stompws/pkg/stomp/frame"
	"go.uber.org/zap"
)

// heartbeat owns the ping and watchdog goroutines of one session.
type heartbeat struct {
	stop     chan struct{}
	stopOnce sync.Once
	outgoing time.Duration
	incoming time.Duration
}

func (hb *heartbeat) cancel() {
	hb.stopOnce.Do(func() { close(hb.stop) })
}

func (hb *heartbeat) stopped() bool {
	select {
	case <-hb.stop:
		return true
	default:
		return false
	}
}

// parseHeartBeat reads a "<incoming>,<outgoing>" heart-beat header value in
// milliseconds. Missing or malformed values are 0.
func parseHeartBeat(value string) (incoming, outgoing time.Duration) {
	parts := strings.SplitN(value, ",", 2)
	ms := func(i int) time.Duration {
		if i >= len(parts) {
			return 0
		}
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil || n < 0 {
			return 0
		}
		return time.Duration(n) * time.Millisecond
	}
	return ms(0), ms(1)
}

// setupHeartbeatLocked arms the timers negotiated by a CONNECTED frame.
// c.mu must be held.
func (c *Client) setupHeartbeatLocked(f *frame.Frame) {
	c.stopHeartbeatLocked()

	version := f.Header.Value(frame.HdrVersion)
	if version == "" || version == Version10 {
		return
	}

	value, ok := f.GetHeader(frame.HdrHeartBeat)
	if !ok || value == "" {
		return
	}
	serverIncoming, serverOutgoing := parseHeartBeat(value)

	hb := &heartbeat{stop: make(chan struct{})}

	if c.heartBeat.Outgoing > 0 && serverOutgoing > 0 {
		hb.outgoing = max(c.heartBeat.Outgoing, serverOutgoing)
		c.logger.Info("Sending PING", zap.Duration("every", hb.outgoing))
		go c.pinger(hb)
	}

	if c.heartBeat.Incoming > 0 && serverIncoming > 0 {
		hb.incoming = max(c.heartBeat.Incoming, serverIncoming)
		c.logger.Info("Checking PONG", zap.Duration("every", hb.incoming))
		go c.watchdog(hb)
	}

	c.heartbeat = hb
}

// stopHeartbeatLocked cancels the current session's timers. c.mu must be
// held.
func (c *Client) stopHeartbeatLocked() {
	if c.heartbeat != nil {
		c.heartbeat.cancel()
		c.heartbeat = nil
	}
}

// current reports whether hb still belongs to the live session.
func (c *Client) current(hb *heartbeat) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.heartbeat == hb && !hb.stopped()
}

func (c *Client) pinger(hb *heartbeat) {
	ticker := time.NewTicker(hb.outgoing)
	defer ticker.Stop()

	for {
		select {
		case <-hb.stop:
			return
		case <-ticker.C:
			if !c.current(hb) {
				return
			}
			c.sendHeartBeat()
		}
	}
}

func (c *Client) sendHeartBeat() {
	ctx := context.Background()

	c.writeMu.Lock()
	err := c.transport.Send(ctx, frame.LF)
	c.writeMu.Unlock()

	if err != nil {
		c.logger.Warn("Failed to send PING", zap.Error(err))
		return
	}
	c.logger.Debug("Sending PING")
	c.metrics.recordHeartbeatSent(ctx)
}

func (c *Client) watchdog(hb *heartbeat) {
	ticker := time.NewTicker(hb.incoming)
	defer ticker.Stop()

	for {
		select {
		case <-hb.stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.heartbeat != hb || hb.stopped() {
				c.mu.Unlock()
				return
			}
			delta := time.Since(c.lastActivity)
			c.mu.Unlock()

			if delta > 2*hb.incoming {
				c.logger.Warn("Did not receive server activity",
					zap.Duration("since", delta),
					zap.String("url", c.URL()))
				c.metrics.recordWatchdogTimeout(context.Background())
				c.transport.Close()
				return
			}
		}
	}
}
