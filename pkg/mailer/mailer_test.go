package mailer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rangelabs/rangecloud/pkg/models"
)

type recordingTransport struct {
	mu   sync.Mutex
	sent []models.MailMessage
	err  error
}

func (r *recordingTransport) send(_ context.Context, msg models.MailMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

func (r *recordingTransport) messages() []models.MailMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.MailMessage, len(r.sent))
	copy(out, r.sent)
	return out
}

func TestSubmitDeliversThroughTransport(t *testing.T) {
	rec := &recordingTransport{}
	m := New(Config{SenderAddress: "cloud@example.com"})
	m.transport = rec.send
	m.Start()

	m.Submit(models.MailMessage{To: "alice@example.com", Subject: "hello", Body: "hi"})
	m.Submit(models.MailMessage{To: "bob@example.com", Subject: "again", Body: "hi"})
	m.Stop()

	msgs := rec.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "alice@example.com", msgs[0].To)
	assert.Equal(t, "bob@example.com", msgs[1].To)

	stats := m.Statistics()
	assert.Equal(t, uint64(2), stats["Sent"])
	assert.Equal(t, uint64(0), stats["Failed"])
}

func TestTransportFailureIsCountedWithoutRetry(t *testing.T) {
	rec := &recordingTransport{err: errors.New("no transport")}
	m := New(Config{})
	m.transport = rec.send
	m.Start()

	m.Submit(models.MailMessage{To: "alice@example.com", Subject: "hello"})
	m.Stop()

	stats := m.Statistics()
	assert.Equal(t, uint64(0), stats["Sent"])
	assert.Equal(t, uint64(1), stats["Failed"])
	assert.Empty(t, rec.messages())
}

func TestSubmitAfterStopDrops(t *testing.T) {
	rec := &recordingTransport{}
	m := New(Config{})
	m.transport = rec.send
	m.Start()
	m.Stop()

	m.Submit(models.MailMessage{To: "alice@example.com"})

	stats := m.Statistics()
	assert.Equal(t, uint64(1), stats["Dropped"])
	assert.Empty(t, rec.messages())
}

func TestStopDrainsPendingQueue(t *testing.T) {
	slow := &recordingTransport{}
	m := New(Config{QueueSize: 8})
	m.transport = func(ctx context.Context, msg models.MailMessage) error {
		time.Sleep(10 * time.Millisecond)
		return slow.send(ctx, msg)
	}
	m.Start()

	for i := 0; i < 5; i++ {
		m.Submit(models.MailMessage{To: "alice@example.com", Subject: "queued"})
	}
	m.Stop()

	assert.Len(t, slow.messages(), 5)
}

func TestStopIsIdempotent(t *testing.T) {
	m := New(Config{})
	m.transport = (&recordingTransport{}).send
	m.Start()
	m.Stop()
	m.Stop()
}

func TestDefaultsApplied(t *testing.T) {
	m := New(Config{})
	assert.Equal(t, "sendmail", m.cfg.SendmailPath)
	assert.Equal(t, defaultSendTimeout, m.cfg.SendTimeout)
	assert.Equal(t, defaultQueueSize, m.cfg.QueueSize)
}
