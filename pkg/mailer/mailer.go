// Package mailer implements the outbound mail worker. Messages are
// queued and handed one at a time to the local mail-submission program.
// Failures are logged and counted; there is no retry.
package mailer

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/rangelabs/rangecloud/internal/logger"
	"github.com/rangelabs/rangecloud/internal/telemetry"
	"github.com/rangelabs/rangecloud/pkg/metrics"
	"github.com/rangelabs/rangecloud/pkg/models"
)

const (
	defaultSendTimeout = 30 * time.Second
	defaultQueueSize   = 64
)

// Config controls the mail transport.
type Config struct {
	SenderAddress string
	SendmailPath  string
	SendTimeout   time.Duration
	QueueSize     int
}

// Mailer is a single-worker queue in front of the sendmail binary.
type Mailer struct {
	cfg   Config
	queue chan models.MailMessage
	done  chan struct{}

	// transport is swappable for tests.
	transport func(ctx context.Context, msg models.MailMessage) error

	mu      sync.Mutex
	closed  bool
	sent    uint64
	failed  uint64
	dropped uint64
}

// New builds a mailer. Call Start before submitting.
func New(cfg Config) *Mailer {
	if cfg.SendmailPath == "" {
		cfg.SendmailPath = "sendmail"
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	m := &Mailer{
		cfg:   cfg,
		queue: make(chan models.MailMessage, cfg.QueueSize),
		done:  make(chan struct{}),
	}
	m.transport = m.sendmail
	return m
}

// Start launches the worker goroutine.
func (m *Mailer) Start() {
	go m.run()
	logger.Info("Mailer started", "sender", m.cfg.SenderAddress, "timeout", m.cfg.SendTimeout)
}

// Stop drains the queue and waits for the worker to exit. Idempotent.
func (m *Mailer) Stop() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	close(m.queue)
	m.mu.Unlock()
	<-m.done
	logger.Info("Mailer stopped")
}

// Submit queues one message. A full queue or a stopped mailer drops the
// message with a warning.
func (m *Mailer) Submit(msg models.MailMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		m.dropped++
		logger.Warn("Mail dropped, mailer stopped", "to", msg.To, "subject", msg.Subject)
		return
	}
	select {
	case m.queue <- msg:
	default:
		m.dropped++
		logger.Warn("Mail dropped, queue full", "to", msg.To, "subject", msg.Subject)
	}
}

func (m *Mailer) run() {
	defer close(m.done)
	for msg := range m.queue {
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.SendTimeout)
		ctx, span := telemetry.StartSpan(ctx, telemetry.SpanMailSend,
			trace.WithAttributes(telemetry.MailRecipient(msg.To)))
		err := m.transport(ctx, msg)
		if err != nil {
			telemetry.RecordError(ctx, err)
		}
		span.End()
		cancel()

		m.mu.Lock()
		if err != nil {
			m.failed++
		} else {
			m.sent++
		}
		m.mu.Unlock()

		if err != nil {
			metrics.MailTotal.WithLabelValues("failed").Inc()
			logger.Warn("Sending email failed", "to", msg.To, "subject", msg.Subject, logger.Err(err))
			continue
		}
		metrics.MailTotal.WithLabelValues("sent").Inc()
		logger.Info("Email sent", "to", msg.To, "subject", msg.Subject)
	}
}

// sendmail pipes the message into the local mail-submission program.
func (m *Mailer) sendmail(ctx context.Context, msg models.MailMessage) error {
	var content strings.Builder
	if m.cfg.SenderAddress != "" {
		content.WriteString("From:" + m.cfg.SenderAddress + "\n")
	}
	content.WriteString("Subject:" + msg.Subject + "\n")
	content.WriteString("Body:\n" + msg.Body + "\n")

	cmd := exec.CommandContext(ctx, m.cfg.SendmailPath, "-t", msg.To)
	cmd.Stdin = strings.NewReader(content.String())
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("sendmail to %q: %w", msg.To, err)
	}
	return nil
}

// Statistics returns the mailer's counters.
func (m *Mailer) Statistics() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]any{
		"service": "mailer",
		"Sent":    m.sent,
		"Failed":  m.failed,
		"Dropped": m.dropped,
	}
}
