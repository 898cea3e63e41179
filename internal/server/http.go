package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/zeusync/autosave/internal/core/events/bus"
	"github.com/zeusync/autosave/internal/core/observability/log"
	"github.com/zeusync/autosave/internal/core/persistence/autosave"
	"github.com/zeusync/autosave/internal/core/persistence/delta"
)

// RecorderStats reports delta recorder activity.
type RecorderStats interface {
	Stats() delta.Stats
}

// ReportSource reports the last completed save.
type ReportSource interface {
	LastReport() (autosave.Report, bool)
}

// Config holds monitor configuration
type Config struct {
	ListenAddr   string
	WriteTimeout time.Duration
	// History is how many recent reports a new websocket client receives.
	History int
}

// DefaultConfig returns default monitor configuration
func DefaultConfig() Config {
	return Config{
		ListenAddr:   "127.0.0.1:8089",
		WriteTimeout: 5 * time.Second,
		History:      8,
	}
}

// StatsResponse is the body of GET /stats.
type StatsResponse struct {
	Recorder   delta.Stats         `json:"recorder"`
	Bus        bus.EventBusMetrics `json:"bus"`
	Topics     []bus.TopicInfo     `json:"topics,omitempty"`
	LastSave   *autosave.Report    `json:"last_save,omitempty"`
	Extra      map[string]any      `json:"extra,omitempty"`
	Clients    int                 `json:"clients"`
	ServerTime time.Time           `json:"server_time"`
}

type Option func(*Monitor)

func WithLogger(logger log.Log) Option {
	return func(m *Monitor) { m.logger = logger }
}

// WithStats adds a named value to every /stats response.
func WithStats(name string, fn func() any) Option {
	return func(m *Monitor) { m.extra[name] = fn }
}

// Monitor serves autosave statistics over HTTP and streams every completed
// save to websocket clients.
//
//	GET /stats   JSON StatsResponse
//	GET /ws      websocket stream of autosave.Report
type Monitor struct {
	config   Config
	recorder RecorderStats
	reports  ReportSource
	bus      bus.EventBus
	extra    map[string]func() any
	hub      *reportHub
	logger   log.Log

	server       *http.Server
	listener     net.Listener
	subscription bus.Subscription
	running      int32 // atomic bool
}

func NewMonitor(config Config, recorder RecorderStats, reports ReportSource, b bus.EventBus, opts ...Option) *Monitor {
	m := &Monitor{
		config:   config,
		recorder: recorder,
		reports:  reports,
		bus:      b,
		extra:    make(map[string]func() any),
		logger:   log.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(log.String("component", "monitor"))
	m.hub = newReportHub(config.History, config.WriteTimeout, m.logger)
	return m
}

// Handler returns the monitor's routes.
func (m *Monitor) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /stats", m.handleStats)
	mux.HandleFunc("GET /ws", m.hub.handleWebSocket)
	return mux
}

// Start subscribes to save reports and begins serving on the configured
// address.
func (m *Monitor) Start(ctx context.Context) error {
	if m.config.ListenAddr == "" {
		return fmt.Errorf("%w: empty listen address", ErrInvalidConfig)
	}
	if !atomic.CompareAndSwapInt32(&m.running, 0, 1) {
		return ErrServerAlreadyRunning
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", m.config.ListenAddr)
	if err != nil {
		atomic.StoreInt32(&m.running, 0)
		m.logger.Error("Failed to create listener", log.Error(err))
		return fmt.Errorf("%w: %w", ErrListenerFailed, err)
	}

	if m.bus != nil {
		m.subscription, err = m.bus.SubscribeTopic(autosave.Topic, autosave.EventCompleted, m.onReport)
		if err != nil {
			_ = listener.Close()
			atomic.StoreInt32(&m.running, 0)
			return err
		}
	}

	m.hub.open()
	m.listener = listener
	m.server = &http.Server{
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := m.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("Monitor server failed", log.Error(err))
		}
	}()

	m.logger.Info("Monitor listening", log.String("addr", listener.Addr().String()))
	return nil
}

// Stop shuts the HTTP server down and disconnects websocket clients.
func (m *Monitor) Stop(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&m.running, 1, 0) {
		return ErrServerNotRunning
	}

	if m.subscription != nil {
		_ = m.subscription.Cancel()
	}
	m.hub.closeAll()

	err := m.server.Shutdown(ctx)
	m.logger.Info("Monitor stopped")
	return err
}

// Addr returns the bound address, or "" when not running.
func (m *Monitor) Addr() string {
	if atomic.LoadInt32(&m.running) == 0 || m.listener == nil {
		return ""
	}
	return m.listener.Addr().String()
}

func (m *Monitor) onReport(event bus.Event) error {
	report, ok := event.Data().(autosave.Report)
	if !ok {
		return fmt.Errorf("monitor: unexpected %s payload %T", event.Type(), event.Data())
	}
	m.hub.broadcast(report)
	return nil
}

func (m *Monitor) handleStats(w http.ResponseWriter, _ *http.Request) {
	resp := StatsResponse{
		Clients:    m.hub.clientCount(),
		ServerTime: time.Now().UTC(),
	}
	if m.recorder != nil {
		resp.Recorder = m.recorder.Stats()
	}
	if m.bus != nil {
		resp.Bus = m.bus.GetMetrics()
		resp.Topics = m.bus.GetTopics()
	}
	if m.reports != nil {
		if r, ok := m.reports.LastReport(); ok {
			resp.LastSave = &r
		}
	}
	if len(m.extra) > 0 {
		resp.Extra = make(map[string]any, len(m.extra))
		for name, fn := range m.extra {
			resp.Extra[name] = fn()
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		m.logger.Warn("Failed to write stats", log.Error(err))
	}
}
