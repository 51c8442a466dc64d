package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsarna/stompws/pkg/stomp/client"
	"github.com/tsarna/stompws/pkg/stomp/frame"
	"github.com/tsarna/stompws/pkg/stomp/o11y"
	"github.com/tsarna/stompws/pkg/stomp/stomptest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestServiceBuilder(t *testing.T) {
	t.Run("requires endpoint URL", func(t *testing.T) {
		_, err := NewService().Build()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "endpoint URL is required")
	})

	t.Run("rejects http URL without SockJS", func(t *testing.T) {
		_, err := NewService().
			WithConfiguration(Configuration{EndpointURL: "http://localhost/ws"}).
			Build()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to build transport")
	})

	t.Run("resolves SockJS endpoint", func(t *testing.T) {
		svc, err := NewService().
			WithConfiguration(Configuration{EndpointURL: "https://example.com/stomp", WithSockJS: true}).
			Build()
		require.NoError(t, err)
		assert.Equal(t, "wss://example.com/stomp/websocket", svc.Client().URL())
	})

	t.Run("nil logger ignored", func(t *testing.T) {
		svc, err := NewService().
			WithConfiguration(Configuration{EndpointURL: "ws://localhost/ws"}).
			WithLogger(nil).
			Build()
		require.NoError(t, err)
		assert.NotNil(t, svc.logger)
	})
}

func TestServiceLifecycle(t *testing.T) {
	t.Run("start publishes connected client", func(t *testing.T) {
		broker := stomptest.NewBroker()
		defer broker.Close()

		svc := newTestService(t, broker.URL, nil)
		ctx := context.Background()

		got := make(chan *client.Client, 1)
		sub := svc.ConnectedClient().Subscribe(func(c *client.Client) { got <- c })
		defer sub.Unsubscribe()

		require.NoError(t, svc.Start(ctx))
		defer svc.Stop(ctx)

		select {
		case c := <-got:
			assert.Same(t, svc.Client(), c)
			assert.True(t, c.IsConnected())
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for connection")
		}

		late := make(chan *client.Client, 1)
		lateSub := svc.ConnectedClient().Subscribe(func(c *client.Client) { late <- c })
		defer lateSub.Unsubscribe()

		select {
		case c := <-late:
			assert.Same(t, svc.Client(), c)
		default:
			t.Fatal("late observer did not receive the connected client")
		}
	})

	t.Run("double start rejected", func(t *testing.T) {
		broker := stomptest.NewBroker()
		defer broker.Close()

		svc := newTestService(t, broker.URL, nil)
		ctx := context.Background()

		require.NoError(t, svc.Start(ctx))
		defer svc.Stop(ctx)

		err := svc.Start(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already started")
	})

	t.Run("start failure allows retry", func(t *testing.T) {
		svc := newTestService(t, "ws://127.0.0.1:1/ws", nil)
		ctx := context.Background()

		require.Error(t, svc.Start(ctx))
		require.Error(t, svc.Start(ctx), "second attempt should dial again")
		assert.Equal(t, client.Disconnected, svc.Client().State())
	})

	t.Run("stop disconnects", func(t *testing.T) {
		broker := stomptest.NewBroker()
		defer broker.Close()

		svc := newTestService(t, broker.URL, nil)
		ctx := context.Background()

		require.NoError(t, svc.Start(ctx))
		require.Eventually(t, svc.Client().IsConnected, 5*time.Second, 10*time.Millisecond)

		require.NoError(t, svc.Stop(ctx))
		assert.Equal(t, client.Closed, svc.Client().State())
		require.Eventually(t, func() bool {
			cmds := broker.Commands()
			return len(cmds) > 0 && cmds[len(cmds)-1] == frame.DISCONNECT
		}, 5*time.Second, 10*time.Millisecond)

		// Stopping again is a no-op
		assert.NoError(t, svc.Stop(ctx))
	})

	t.Run("broker error logged", func(t *testing.T) {
		broker := stomptest.NewBroker()
		broker.Login = "guest"
		defer broker.Close()

		core, logs := observer.New(zap.WarnLevel)
		svc := newTestService(t, broker.URL, zap.New(core))
		svc.config.Connect = client.Config{Login: "intruder"}
		ctx := context.Background()

		require.NoError(t, svc.Start(ctx))
		defer svc.Stop(ctx)

		require.Eventually(t, func() bool {
			return logs.FilterMessage("STOMP: Got ERROR!").Len() > 0
		}, 5*time.Second, 10*time.Millisecond)

		entry := logs.FilterMessage("STOMP: Got ERROR!").All()[0]
		assert.Equal(t, "Bad CONNECT", entry.ContextMap()["message"])
		assert.Equal(t, false, entry.ContextMap()["synthesized"])
	})
}

func TestServiceMessageFlow(t *testing.T) {
	broker := stomptest.NewBroker()
	defer broker.Close()

	svc := newTestService(t, broker.URL, nil)
	ctx := context.Background()

	var mu sync.Mutex
	var bodies []string
	ready := make(chan struct{})

	connSub := svc.ConnectedClient().Subscribe(func(c *client.Client) {
		go func() {
			sub, err := c.Subscribe(ctx, "/topic/greetings", frame.NewHeader(frame.HdrReceipt, "sub-ready"))
			if err != nil {
				return
			}
			sub.Messages().Subscribe(func(m frame.Message) {
				mu.Lock()
				bodies = append(bodies, m.Body)
				mu.Unlock()
			})
			if _, err := c.WaitReceipt(ctx, "sub-ready"); err == nil {
				close(ready)
			}
		}()
	})
	defer connSub.Unsubscribe()

	require.NoError(t, svc.Start(ctx))
	defer svc.Stop(ctx)

	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for subscription")
	}

	require.NoError(t, svc.Client().Send(ctx, "/topic/greetings", "hello", nil))
	require.NoError(t, svc.Client().Send(ctx, "/topic/other", "ignored", nil))
	require.NoError(t, svc.Client().Send(ctx, "/topic/greetings", "world", nil))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(bodies) == 2
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"hello", "world"}, bodies)
	mu.Unlock()
}

func TestServiceMetrics(t *testing.T) {
	broker := stomptest.NewBroker()
	defer broker.Close()

	metrics := o11y.NewStandaloneMetricsProvider(nil, nil)
	svc, err := NewService().
		WithConfiguration(Configuration{
			EndpointURL: broker.URL,
			HeartBeat:   &client.HeartBeatConfig{},
		}).
		WithObservability(o11y.ObservabilityConfig{MetricsProvider: metrics}).
		Build()
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, svc.Start(ctx))
	defer svc.Stop(ctx)
	require.Eventually(t, svc.Client().IsConnected, 5*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		snap := metrics.Snapshot()
		return snap.Counters["stomp_frames_sent_total"] == 1 &&
			snap.Counters["stomp_frames_received_total"] == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func newTestService(t *testing.T, url string, logger *zap.Logger) *Service {
	t.Helper()

	svc, err := NewService().
		WithConfiguration(Configuration{
			EndpointURL: url,
			HeartBeat:   &client.HeartBeatConfig{},
		}).
		WithLogger(logger).
		Build()
	require.NoError(t, err)
	return svc
}
