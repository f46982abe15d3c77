package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/rbac"
)

type mockLogger struct {
	mu     sync.Mutex
	events []*Event
	err    error
	closed bool
}

func (m *mockLogger) Log(ctx context.Context, event *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return m.err
}

func (m *mockLogger) Close() error {
	m.closed = true
	return m.err
}

func (m *mockLogger) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func TestFromContext(t *testing.T) {
	assert.NoError(t, FromContext(context.Background()).Log(context.Background(), &Event{}))

	mock := &mockLogger{}
	ctx := WithLogger(context.Background(), mock)
	require.NoError(t, FromContext(ctx).Log(ctx, &Event{}))
	assert.Equal(t, 1, mock.count())
}

func TestCountingLogger(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	mock := &mockLogger{}
	logger := WithMetrics(mock, metrics)
	ctx := context.Background()

	require.NoError(t, logger.Log(ctx, AccessDenied(ctx, testClaims, rbac.PermUserEdit)))
	require.NoError(t, logger.Log(ctx, AccessDenied(ctx, testClaims, rbac.PermUserDelete)))

	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.AuditEventsTotal.WithLabelValues("authz.access_denied")))
	assert.Equal(t, 2, mock.count())

	require.NoError(t, logger.Close())
	assert.True(t, mock.closed)
}

func TestSlogLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogLogger(observability.NewLogger(observability.DebugLevel, &buf))
	ctx := context.Background()

	require.NoError(t, logger.Log(ctx, AccessDenied(ctx, testClaims, rbac.PermUserDelete)))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "audit", entry["component"])
	assert.Equal(t, "u-1", entry["actor_id"])
	assert.Equal(t, "user:delete", entry["denied_permission"])
	assert.NotContains(t, entry, "action")
}

func TestMultiLogger_Sync(t *testing.T) {
	first := &mockLogger{err: errors.New("disk full")}
	second := &mockLogger{}

	multi := NewMultiLogger(first, second)
	multi.SetAsync(false)

	err := multi.Log(context.Background(), &Event{EventType: EventTypeAccessDenied})
	assert.ErrorContains(t, err, "disk full")

	// A failing logger does not stop the others
	assert.Equal(t, 1, first.count())
	assert.Equal(t, 1, second.count())
}

func TestMultiLogger_Async(t *testing.T) {
	first := &mockLogger{err: errors.New("disk full")}
	second := &mockLogger{}

	multi := NewMultiLogger(first, second)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, multi.Log(ctx, &Event{EventType: EventTypeAccessDenied}))
	cancel()
	multi.Wait()

	assert.Equal(t, 1, first.count())
	assert.Equal(t, 1, second.count())

	errs := multi.Errors()
	require.Len(t, errs, 1)
	assert.EqualError(t, errs[0], "disk full")
	assert.Empty(t, multi.Errors())
}

func TestMultiLogger_Close(t *testing.T) {
	first := &mockLogger{}
	second := &mockLogger{}

	require.NoError(t, NewMultiLogger(first, second).Close())
	assert.True(t, first.closed)
	assert.True(t, second.closed)
}
