package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsarna/stompws/pkg/stomp/frame"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSchedulerBuilder(t *testing.T) {
	t.Run("requires sender", func(t *testing.T) {
		_, err := NewScheduler().Build()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sender is required")
	})

	t.Run("rejects unknown timezone", func(t *testing.T) {
		_, err := NewScheduler().WithSender(&mockSender{}).WithTimezone("Mars/Olympus_Mons").Build()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid timezone")
	})

	t.Run("accepts timezone", func(t *testing.T) {
		_, err := NewScheduler().WithSender(&mockSender{}).WithTimezone("UTC").Build()
		require.NoError(t, err)
	})
}

func TestSchedulerAdd(t *testing.T) {
	s, err := NewScheduler().WithSender(&mockSender{}).Build()
	require.NoError(t, err)

	t.Run("descriptor", func(t *testing.T) {
		_, err := s.Add(Job{Name: "a", Schedule: "@every 5s", Destination: "/queue/a"})
		require.NoError(t, err)
	})

	t.Run("cron with seconds", func(t *testing.T) {
		_, err := s.Add(Job{Name: "b", Schedule: "*/10 * * * * *", Destination: "/queue/a"})
		require.NoError(t, err)
	})

	t.Run("invalid schedule", func(t *testing.T) {
		_, err := s.Add(Job{Name: "c", Schedule: "whenever", Destination: "/queue/a"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), `invalid schedule "whenever"`)
	})

	t.Run("missing destination", func(t *testing.T) {
		_, err := s.Add(Job{Name: "d", Schedule: "@every 5s"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "destination is required")
	})

	assert.Equal(t, 2, s.Jobs())
}

func TestSendJob(t *testing.T) {
	t.Run("sends body with header", func(t *testing.T) {
		sender := &mockSender{}
		s, err := NewScheduler().WithSender(sender).Build()
		require.NoError(t, err)

		job := s.newSendJob(Job{
			Name:        "tick",
			Destination: "/topic/ticks",
			Header:      frame.NewHeader(frame.HdrContentType, "text/plain"),
			Body: func(_ context.Context, n int64) (string, error) {
				return fmt.Sprintf("tick %d", n), nil
			},
		})
		job.Run()
		job.Run()

		sent := sender.all()
		require.Len(t, sent, 2)
		assert.Equal(t, "/topic/ticks", sent[0].destination)
		assert.Equal(t, "tick 1", sent[0].body)
		assert.Equal(t, "tick 2", sent[1].body)
		assert.Equal(t, "text/plain", sent[1].header.Value(frame.HdrContentType))
	})

	t.Run("body error skips send", func(t *testing.T) {
		core, logs := observer.New(zap.ErrorLevel)
		sender := &mockSender{}
		s, err := NewScheduler().WithSender(sender).WithLogger(zap.New(core)).Build()
		require.NoError(t, err)

		job := s.newSendJob(Job{
			Name:        "broken",
			Destination: "/topic/ticks",
			Body: func(context.Context, int64) (string, error) {
				return "", errors.New("no body today")
			},
		})
		job.Run()

		assert.Empty(t, sender.all())
		assert.Equal(t, 1, logs.FilterMessage("Error producing body").Len())
	})

	t.Run("send error logged", func(t *testing.T) {
		core, logs := observer.New(zap.ErrorLevel)
		sender := &mockSender{err: errors.New("not connected")}
		s, err := NewScheduler().WithSender(sender).WithLogger(zap.New(core)).Build()
		require.NoError(t, err)

		s.newSendJob(Job{Name: "x", Destination: "/topic/ticks", Body: StaticBody("x")}).Run()
		assert.Equal(t, 1, logs.FilterMessage("Error sending scheduled message").Len())
	})
}

func TestSchedulerRuns(t *testing.T) {
	sender := &mockSender{}
	s, err := NewScheduler().WithSender(sender).Build()
	require.NoError(t, err)

	_, err = s.Add(Job{Name: "every", Schedule: "@every 1s", Destination: "/topic/a", Body: StaticBody("ping")})
	require.NoError(t, err)

	s.Start()
	require.Eventually(t, func() bool { return len(sender.all()) > 0 }, 3*time.Second, 20*time.Millisecond)

	<-s.Stop().Done()
	assert.Equal(t, "ping", sender.all()[0].body)
}

func TestZapCronLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := NewZapCronLogger(zap.New(core))

	l.Info("schedule", "entry", 1, "dangling")
	l.Error(errors.New("boom"), "panic", "job", "a")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zap.DebugLevel, entries[0].Level)
	assert.Equal(t, map[string]interface{}{"entry": int64(1)}, entries[0].ContextMap())
	assert.Equal(t, zap.ErrorLevel, entries[1].Level)
	assert.Equal(t, "boom", entries[1].ContextMap()["error"])
	assert.Equal(t, "a", entries[1].ContextMap()["job"])
}

type sentFrame struct {
	destination string
	body        string
	header      *frame.Header
}

type mockSender struct {
	mu   sync.Mutex
	sent []sentFrame
	err  error
}

func (m *mockSender) Send(_ context.Context, destination, body string, header *frame.Header) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentFrame{destination, body, header})
	return nil
}

func (m *mockSender) all() []sentFrame {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentFrame(nil), m.sent...)
}
