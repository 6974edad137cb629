// Package notifier dispatches urgent-ticket notifications through a
// bounded worker pool, gated by a circuit breaker so a flaky downstream
// notifier cannot back up the ingestion page loop. The page loop hands
// off a notification and moves on; it never blocks on delivery.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/r3e-collective/ticketflow/internal/resilience"
	"github.com/r3e-collective/ticketflow/pkg/logger"
)

// Notification is one urgent-ticket alert.
type Notification struct {
	TicketID string `json:"ticket_id"`
	TenantID string `json:"tenant_id"`
	Urgency  string `json:"urgency"`
	Reason   string `json:"reason"`
}

// DeadLetterSink records notifications that exhausted retries or were
// rejected by an open breaker.
type DeadLetterSink interface {
	Push(ctx context.Context, n Notification, reason string) error
}

// Config tunes the worker pool and per-notification retry policy.
type Config struct {
	Workers     int
	QueueSize   int
	RetryConfig resilience.RetryConfig
}

// DefaultConfig returns a small worker pool with the standard retry policy.
func DefaultConfig() Config {
	return Config{Workers: 4, QueueSize: 256, RetryConfig: resilience.DefaultRetryConfig()}
}

// Dispatcher is the bounded async notification pipeline.
type Dispatcher struct {
	cfg        Config
	httpClient *http.Client
	endpoint   string
	breaker    *resilience.Breaker
	deadLetter DeadLetterSink
	log        *logger.Logger

	queue chan Notification
	wg    sync.WaitGroup
	once  sync.Once
}

// New constructs a Dispatcher. Call Start before Enqueue, and Stop to
// drain in-flight work during shutdown.
func New(endpoint string, breaker *resilience.Breaker, deadLetter DeadLetterSink, log *logger.Logger, cfg Config) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if log == nil {
		log = logger.NewDefault("notifier")
	}
	return &Dispatcher{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		endpoint:   endpoint,
		breaker:    breaker,
		deadLetter: deadLetter,
		log:        log,
		queue:      make(chan Notification, cfg.QueueSize),
	}
}

// Start spins up the worker pool. Safe to call once; subsequent calls are
// no-ops.
func (d *Dispatcher) Start(ctx context.Context) {
	d.once.Do(func() {
		for i := 0; i < d.cfg.Workers; i++ {
			d.wg.Add(1)
			go d.worker(ctx)
		}
	})
}

// Stop closes the queue and waits for in-flight notifications to finish.
func (d *Dispatcher) Stop() {
	close(d.queue)
	d.wg.Wait()
}

// Enqueue hands off a notification without blocking on delivery. It
// returns false if the queue is full; the Dispatcher then neither queues
// nor dead-letters the notification.
func (d *Dispatcher) Enqueue(n Notification) bool {
	select {
	case d.queue <- n:
		return true
	default:
		return false
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for n := range d.queue {
		d.deliver(ctx, n)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, n Notification) {
	err := resilience.Do(ctx, d.cfg.RetryConfig, func(ctx context.Context) error {
		return d.breaker.Call(ctx, func(ctx context.Context) error {
			return d.post(ctx, n)
		})
	})
	if err == nil {
		return
	}

	d.log.Component("notifier").WithField("ticket_id", n.TicketID).WithField("tenant_id", n.TenantID).
		WithField("error", err.Error()).Warn("notification delivery exhausted, dead-lettering")

	if d.deadLetter == nil {
		return
	}
	if dlErr := d.deadLetter.Push(ctx, n, err.Error()); dlErr != nil {
		d.log.Component("notifier").WithField("ticket_id", n.TicketID).WithField("error", dlErr.Error()).
			Error("dead-letter push failed")
	}
}

func (d *Dispatcher) post(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("notifier: marshal notification: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notifier: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notifier: post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("notifier: upstream status %d", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notifier: rejected with status %d", resp.StatusCode)
	}
	return nil
}
