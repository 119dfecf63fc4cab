package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLockAcquireAndRelease(t *testing.T) {
	client, mock := redismock.NewClientMock()
	lock := NewRedisLock(client).WithTokenFunc(func() string { return "token-1" })

	mock.ExpectSetNX(SweepLockKey, "token-1", time.Minute).SetVal(true)
	mock.ExpectEval(releaseScript, []string{SweepLockKey}, "token-1").SetVal(int64(1))

	release, ok, err := lock.Acquire(context.Background(), SweepLockKey, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, release(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisLockHeldElsewhere(t *testing.T) {
	client, mock := redismock.NewClientMock()
	lock := NewRedisLock(client).WithTokenFunc(func() string { return "token-2" })

	mock.ExpectSetNX(SweepLockKey, "token-2", time.Minute).SetVal(false)

	release, ok, err := lock.Acquire(context.Background(), SweepLockKey, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, release)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisLockErrors(t *testing.T) {
	client, mock := redismock.NewClientMock()
	lock := NewRedisLock(client).WithTokenFunc(func() string { return "token-3" })

	mock.ExpectSetNX(SweepLockKey, "token-3", time.Minute).SetErr(errors.New("connection refused"))
	_, ok, err := lock.Acquire(context.Background(), SweepLockKey, time.Minute)
	assert.Error(t, err)
	assert.False(t, ok)

	// an expired lease that was taken over is not an error on release
	mock.ExpectSetNX(SweepLockKey, "token-3", time.Minute).SetVal(true)
	mock.ExpectEval(releaseScript, []string{SweepLockKey}, "token-3").SetVal(int64(0))
	release, ok, err := lock.Acquire(context.Background(), SweepLockKey, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NoError(t, release(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
