package monitoring

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/vrf/config"
	coremon "github.com/kilianp07/vrf/core/monitoring"
)

type eventLog struct {
	mu     sync.Mutex
	events []*sentry.Event
}

func (l *eventLog) beforeSend(e *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
	return nil
}

func (l *eventLog) all() []*sentry.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*sentry.Event(nil), l.events...)
}

func newTestMonitor(t *testing.T) (*sentryMonitor, *eventLog) {
	t.Helper()
	log := &eventLog{}
	m, err := newSentryMonitor(sentry.ClientOptions{BeforeSend: log.beforeSend})
	require.NoError(t, err)
	return m, log
}

func TestNewSentryMonitor_EmptyDSN(t *testing.T) {
	m, err := NewSentryMonitor(config.SentryConfig{})
	require.NoError(t, err)
	assert.IsType(t, coremon.NopMonitor{}, m)
}

func TestNewSentryMonitor_BadDSN(t *testing.T) {
	_, err := NewSentryMonitor(config.SentryConfig{DSN: "not a dsn"})
	assert.Error(t, err)
}

func TestSentryMonitor_CaptureWithTags(t *testing.T) {
	m, log := newTestMonitor(t)
	m.CaptureException(errors.New("diverged"), map[string]string{"run_id": "r1", "epoch": "3"})
	m.CaptureException(nil, nil)
	m.CaptureMessage("batch skipped", map[string]string{"batch": "2"})
	m.Flush(time.Second)

	events := log.all()
	require.Len(t, events, 2)
	assert.Equal(t, "r1", events[0].Tags["run_id"])
	require.NotEmpty(t, events[0].Exception)
	assert.Equal(t, "diverged", events[0].Exception[0].Value)
	assert.Equal(t, "batch skipped", events[1].Message)
	assert.Equal(t, sentry.LevelWarning, events[1].Level)
	assert.Equal(t, "2", events[1].Tags["batch"])
}

func TestSentryMonitor_RecoverRepanics(t *testing.T) {
	m, log := newTestMonitor(t)
	assert.Panics(t, func() {
		defer m.Recover()
		panic("boom")
	})
	assert.Len(t, log.all(), 1)
}
