package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantguard/pkg/rbac"
)

func TestFileLogger_WriteAndRead(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewFileLogger(FileLoggerConfig{BasePath: dir})
	require.NoError(t, err)
	defer logger.Close()

	ctx := context.Background()
	for _, perm := range []rbac.Permission{rbac.PermUserCreate, rbac.PermUserEdit, rbac.PermUserDelete} {
		require.NoError(t, logger.Log(ctx, AccessDenied(ctx, testClaims, perm)))
	}

	assert.FileExists(t, filepath.Join(dir, "audit.log"))

	events, err := logger.ReadLogs(0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "user:create", events[0].DeniedPermission)
	assert.Equal(t, "u-1", events[2].ActorID)

	events, err = logger.ReadLogs(2)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestFileLogger_Rotation(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewFileLogger(FileLoggerConfig{
		BasePath: dir,
		Rotate:   true,
		MaxSize:  1, // every write fills the file
		MaxFiles: 2,
	})
	require.NoError(t, err)
	defer logger.Close()

	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	logger.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, logger.Log(ctx, AccessDenied(ctx, testClaims, rbac.PermUserDelete)))
	}

	rotated, err := logger.RotatedFiles()
	require.NoError(t, err)
	assert.Len(t, rotated, 2, "older rotations are pruned")

	events, err := logger.ReadLogs(0)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestFileLogger_LogAfterClose(t *testing.T) {
	logger, err := NewFileLogger(FileLoggerConfig{BasePath: t.TempDir()})
	require.NoError(t, err)

	require.NoError(t, logger.Close())
	assert.Error(t, logger.Log(context.Background(), &Event{}))
	assert.NoError(t, logger.Close())
}
