package o11y

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// StandaloneMetricsConfig configures the standalone metrics provider
type StandaloneMetricsConfig struct {
	Interval    time.Duration // How often to report metrics (default: 30s)
	ServiceName string        // Service name to include in metrics
}

// HistogramStats summarizes the values recorded on a histogram.
type HistogramStats struct {
	Count int64   `json:"count"`
	Sum   float64 `json:"sum"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// MetricsSnapshot is the point-in-time state of every metric.
type MetricsSnapshot struct {
	Timestamp   time.Time                 `json:"timestamp"`
	ServiceName string                    `json:"service_name"`
	Counters    map[string]int64          `json:"counters"`
	Histograms  map[string]HistogramStats `json:"histograms"`
	Gauges      map[string]float64        `json:"gauges"`
}

// StandaloneMetricsProvider keeps metrics in memory and periodically logs a
// snapshot of them. It needs no metrics backend, which makes it suitable for
// the command line tool. Labels are not tracked separately.
type StandaloneMetricsProvider struct {
	config StandaloneMetricsConfig
	logger *zap.Logger

	counters   sync.Map // map[string]*standaloneCounter
	histograms sync.Map // map[string]*standaloneHistogram
	gauges     sync.Map // map[string]*standaloneGauge

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	started int32
}

// NewStandaloneMetricsProvider creates a new standalone metrics provider
func NewStandaloneMetricsProvider(logger *zap.Logger, config *StandaloneMetricsConfig) *StandaloneMetricsProvider {
	if config == nil {
		config = &StandaloneMetricsConfig{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if config.Interval <= 0 {
		config.Interval = 30 * time.Second
	}
	if config.ServiceName == "" {
		config.ServiceName = "stompws"
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &StandaloneMetricsProvider{
		config: *config,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins periodic reporting
func (s *StandaloneMetricsProvider) Start() error {
	if !atomic.CompareAndSwapInt32(&s.started, 0, 1) {
		return nil // Already started
	}

	s.wg.Add(1)
	go s.reportLoop()

	return nil
}

// Stop reports a final snapshot and stops reporting
func (s *StandaloneMetricsProvider) Stop() error {
	if !atomic.CompareAndSwapInt32(&s.started, 1, 0) {
		return nil // Already stopped
	}

	s.cancel()
	s.wg.Wait()

	return nil
}

func (s *StandaloneMetricsProvider) reportLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.report()
		case <-s.ctx.Done():
			s.report()
			return
		}
	}
}

func (s *StandaloneMetricsProvider) report() {
	snapshot := s.Snapshot()
	s.logger.Info("Metrics",
		zap.String("service", snapshot.ServiceName),
		zap.Any("counters", snapshot.Counters),
		zap.Any("histograms", snapshot.Histograms),
		zap.Any("gauges", snapshot.Gauges))
}

// Snapshot returns the current value of every metric.
func (s *StandaloneMetricsProvider) Snapshot() MetricsSnapshot {
	snapshot := MetricsSnapshot{
		Timestamp:   time.Now(),
		ServiceName: s.config.ServiceName,
		Counters:    make(map[string]int64),
		Histograms:  make(map[string]HistogramStats),
		Gauges:      make(map[string]float64),
	}

	s.counters.Range(func(key, value any) bool {
		snapshot.Counters[key.(string)] = value.(*standaloneCounter).value.Load()
		return true
	})

	s.histograms.Range(func(key, value any) bool {
		snapshot.Histograms[key.(string)] = value.(*standaloneHistogram).stats()
		return true
	})

	s.gauges.Range(func(key, value any) bool {
		snapshot.Gauges[key.(string)] = value.(*standaloneGauge).getValue()
		return true
	})

	return snapshot
}

// MetricsProvider interface implementation

func (s *StandaloneMetricsProvider) Counter(name string) Counter {
	actual, _ := s.counters.LoadOrStore(name, &standaloneCounter{})
	return actual.(*standaloneCounter)
}

func (s *StandaloneMetricsProvider) Histogram(name string) Histogram {
	actual, _ := s.histograms.LoadOrStore(name, &standaloneHistogram{})
	return actual.(*standaloneHistogram)
}

func (s *StandaloneMetricsProvider) Gauge(name string) Gauge {
	actual, _ := s.gauges.LoadOrStore(name, &standaloneGauge{})
	return actual.(*standaloneGauge)
}

type standaloneCounter struct {
	value atomic.Int64
}

func (c *standaloneCounter) Add(ctx context.Context, value int64, labels ...Label) {
	c.value.Add(value)
}

type standaloneHistogram struct {
	mu sync.Mutex
	s  HistogramStats
}

func (h *standaloneHistogram) Record(ctx context.Context, value float64, labels ...Label) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.s.Count == 0 || value < h.s.Min {
		h.s.Min = value
	}
	if h.s.Count == 0 || value > h.s.Max {
		h.s.Max = value
	}
	h.s.Count++
	h.s.Sum += value
}

func (h *standaloneHistogram) stats() HistogramStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.s
}

type standaloneGauge struct {
	mu    sync.RWMutex
	value float64
}

func (g *standaloneGauge) Set(ctx context.Context, value float64, labels ...Label) {
	g.mu.Lock()
	g.value = value
	g.mu.Unlock()
}

func (g *standaloneGauge) getValue() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.value
}
