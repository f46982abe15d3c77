package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthChecker_Check(t *testing.T) {
	t.Run("no dependencies is healthy", func(t *testing.T) {
		status := NewHealthChecker(nil, nil, "test").Check(context.Background())
		assert.Equal(t, StatusHealthy, status.Status)
		assert.Equal(t, "test", status.Version)
		assert.Empty(t, status.Dependencies)
	})

	t.Run("database down is unhealthy", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer db.Close()
		mock.ExpectPing().WillReturnError(errors.New("connection refused"))

		status := NewHealthChecker(db, nil, "").Check(context.Background())
		assert.Equal(t, StatusUnhealthy, status.Status)
		assert.Equal(t, "connection refused", status.Dependencies["database"].Message)
	})

	t.Run("redis down only degrades", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer db.Close()
		mock.ExpectPing()

		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
		defer client.Close()
		mr.Close()

		status := NewHealthChecker(db, client, "").Check(context.Background())
		assert.Equal(t, StatusDegraded, status.Status)
		assert.Equal(t, StatusHealthy, status.Dependencies["database"].Status)
		assert.Equal(t, StatusUnhealthy, status.Dependencies["redis"].Status)
	})

	t.Run("all healthy", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer client.Close()

		status := NewHealthChecker(nil, client, "").Check(context.Background())
		assert.Equal(t, StatusHealthy, status.Status)
	})
}

func TestHealthChecker_Handlers(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectPing().WillReturnError(errors.New("down"))

	checker := NewHealthChecker(db, nil, "")

	w := httptest.NewRecorder()
	checker.Readiness(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = httptest.NewRecorder()
	checker.Liveness(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
