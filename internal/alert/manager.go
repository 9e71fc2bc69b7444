package alert

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"trading-bot-backend/internal/metrics"
)

type Notifier interface {
	Notify(ctx context.Context, msg string) error
}

type Alerter interface {
	Important(event string, fields map[string]string)
}

// TradeAlerter receives confirmed executions.
type TradeAlerter interface {
	TradeExecuted(t TradeAlert)
}

const (
	defaultAlertQueueSize     = 128
	defaultDropReportInterval = time.Minute
	defaultSendTimeout        = 20 * time.Second
)

type ManagerOptions struct {
	QueueSize          int
	DropReportInterval time.Duration
	SendTimeout        time.Duration
	Logger             zerolog.Logger
}

// Manager delivers alerts on a background goroutine. Enqueueing never
// blocks; a full queue drops the alert and counts it.
type Manager struct {
	environment          string
	notifier             Notifier
	log                  zerolog.Logger
	queue                chan queuedAlert
	stop                 chan struct{}
	done                 chan struct{}
	dropReportInterval   time.Duration
	sendTimeout          time.Duration
	dropped              atomic.Uint64
	droppedSinceReported atomic.Uint64
	wg                   sync.WaitGroup
	mu                   sync.RWMutex
	closed               bool
}

type queuedAlert struct {
	event string
	text  string
}

func NewManager(environment string, notifier Notifier) *Manager {
	return NewManagerWithOptions(environment, notifier, ManagerOptions{
		QueueSize:          defaultAlertQueueSize,
		DropReportInterval: defaultDropReportInterval,
		Logger:             zerolog.Nop(),
	})
}

// NewManagerWithOptions returns nil when notifier is nil; every method is
// safe on a nil *Manager.
func NewManagerWithOptions(environment string, notifier Notifier, opts ManagerOptions) *Manager {
	if notifier == nil {
		return nil
	}
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = defaultAlertQueueSize
	}
	reportInterval := opts.DropReportInterval
	if reportInterval < 0 {
		reportInterval = 0
	}
	sendTimeout := opts.SendTimeout
	if sendTimeout <= 0 {
		sendTimeout = defaultSendTimeout
	}
	m := &Manager{
		environment:        environment,
		notifier:           notifier,
		log:                opts.Logger,
		queue:              make(chan queuedAlert, queueSize),
		stop:               make(chan struct{}),
		done:               make(chan struct{}),
		dropReportInterval: reportInterval,
		sendTimeout:        sendTimeout,
	}
	m.wg.Add(1)
	go m.loop()
	if m.dropReportInterval > 0 {
		m.wg.Add(1)
		go m.dropReportLoop()
	}
	go func() {
		m.wg.Wait()
		close(m.done)
	}()
	return m
}

func (m *Manager) Important(event string, fields map[string]string) {
	if m == nil {
		return
	}
	m.enqueue(queuedAlert{event: event, text: m.buildMessage(event, fields)})
}

func (m *Manager) TradeExecuted(t TradeAlert) {
	if m == nil {
		return
	}
	m.enqueue(queuedAlert{event: "trade_executed", text: FormatTradeAlert(t)})
}

func (m *Manager) enqueue(a queuedAlert) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return
	}
	select {
	case m.queue <- a:
		m.mu.RUnlock()
		return
	default:
		droppedTotal := m.dropped.Add(1)
		droppedInWindow := m.droppedSinceReported.Add(1)
		m.mu.RUnlock()
		metrics.AlertsDropped.Inc()
		// First drop in a window is logged right away; the ticker reports the rest.
		if droppedInWindow == 1 {
			m.log.Warn().
				Str("event", "alert_queue_dropped").
				Str("target_event", a.event).
				Str("reason", "queue_full").
				Uint64("dropped_total", droppedTotal).
				Int("queue_len", len(m.queue)).
				Int("queue_cap", cap(m.queue)).
				Msg("")
		}
	}
}

// Close stops accepting alerts and waits for queued ones to be sent.
func (m *Manager) Close(ctx context.Context) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.stop)
	done := m.done
	m.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) loop() {
	defer m.wg.Done()
	for {
		select {
		case a := <-m.queue:
			m.send(a)
		case <-m.stop:
			for {
				select {
				case a := <-m.queue:
					m.send(a)
				default:
					m.reportDroppedSummary()
					return
				}
			}
		}
	}
}

func (m *Manager) dropReportLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.dropReportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.reportDroppedSummary()
		case <-m.stop:
			m.reportDroppedSummary()
			return
		}
	}
}

func (m *Manager) reportDroppedSummary() {
	since := m.droppedSinceReported.Swap(0)
	if since == 0 {
		return
	}
	m.log.Warn().
		Str("event", "alert_queue_dropped_report").
		Uint64("dropped_since_last", since).
		Uint64("dropped_total", m.dropped.Load()).
		Int64("report_interval_sec", int64(m.dropReportInterval/time.Second)).
		Int("queue_len", len(m.queue)).
		Int("queue_cap", cap(m.queue)).
		Msg("")
}

func (m *Manager) droppedStats() (uint64, uint64) {
	if m == nil {
		return 0, 0
	}
	return m.dropped.Load(), m.droppedSinceReported.Load()
}

func (m *Manager) send(a queuedAlert) {
	ctx, cancel := context.WithTimeout(context.Background(), m.sendTimeout)
	defer cancel()
	if err := m.notifier.Notify(ctx, a.text); err != nil {
		m.log.Error().Str("event", "alert_notify_failed").Str("target_event", a.event).Err(err).Msg("")
	}
}

func (m *Manager) buildMessage(event string, fields map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Trading Bot: %s\n", strings.ToUpper(strings.ReplaceAll(event, "_", " ")))
	fmt.Fprintf(&b, "Environment: %s\n", m.environment)
	fmt.Fprintf(&b, "Time: %s", time.Now().UTC().Format(time.RFC3339))
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n%s: %s", k, fields[k])
	}
	return b.String()
}
