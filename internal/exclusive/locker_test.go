package exclusive

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stagerr "github.com/Iron-Ham/stagectl/internal/errors"
	"github.com/Iron-Ham/stagectl/internal/redisconn"
)

func TestFileLocker(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first := NewFileLocker(dir, "openSUSE:Factory", "select")
	second := NewFileLocker(dir, "openSUSE:Factory", "accept")
	assert.True(t, strings.HasSuffix(first.Path(), "openSUSE_Factory.lock"))

	ok, err := first.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = second.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "second locker must not acquire a held lock")

	holder, err := second.Holder(ctx)
	require.NoError(t, err)
	assert.Contains(t, holder, "PID")
	assert.Contains(t, holder, "(select)")

	_, err = first.TryLock(ctx)
	assert.Error(t, err, "a locker cannot acquire twice")

	require.NoError(t, first.Unlock(ctx))
	require.NoError(t, first.Unlock(ctx), "unlock is idempotent")

	holder, err = second.Holder(ctx)
	require.NoError(t, err)
	assert.Empty(t, holder)

	ok, err = second.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, second.Unlock(ctx))
}

func TestFileLocker_SeparateKeys(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	a := NewFileLocker(dir, "openSUSE:Factory", "")
	b := NewFileLocker(dir, "openSUSE:Leap", "")
	okA, err := a.TryLock(ctx)
	require.NoError(t, err)
	okB, err := b.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, okA && okB)
	_ = a.Unlock(ctx)
	_ = b.Unlock(ctx)
}

func TestFileLocker_HolderMissingFile(t *testing.T) {
	holder, err := NewFileLocker(t.TempDir(), "x", "").Holder(context.Background())
	require.NoError(t, err)
	assert.Empty(t, holder)

	fl := NewFileLocker(t.TempDir(), "y", "")
	require.NoError(t, os.WriteFile(fl.Path(), []byte("garbage"), 0644))
	_, err = fl.Holder(context.Background())
	assert.Error(t, err)
}

func TestRedisLocker(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client, err := redisconn.Connect(ctx, "redis://"+mr.Addr())
	require.NoError(t, err)
	defer client.Close()

	first := NewRedisLocker(client, "openSUSE:Factory", time.Minute, "select")
	second := NewRedisLocker(client, "openSUSE:Factory", time.Minute, "ignore")

	ok, err := first.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists("stagectl:lock:openSUSE:Factory"))

	ok, err = second.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	holder, err := second.Holder(ctx)
	require.NoError(t, err)
	assert.Contains(t, holder, "(select)")

	require.NoError(t, first.Unlock(ctx))
	assert.False(t, mr.Exists("stagectl:lock:openSUSE:Factory"))

	ok, err = second.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLocker_ExpiredLeaseIsNotReleasedByOldOwner(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client, err := redisconn.Connect(ctx, "redis://"+mr.Addr())
	require.NoError(t, err)
	defer client.Close()

	stale := NewRedisLocker(client, "p", time.Second, "")
	fresh := NewRedisLocker(client, "p", time.Minute, "")

	ok, err := stale.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	ok, err = fresh.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok, "expired lease must be acquirable")

	require.NoError(t, stale.Unlock(ctx))
	assert.True(t, mr.Exists("stagectl:lock:p"), "old owner must not delete the new lease")

	holder, err := stale.Holder(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, holder)
}

func TestRedisLocker_RenewsLeaseWhileHeld(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client, err := redisconn.Connect(ctx, "redis://"+mr.Addr())
	require.NoError(t, err)
	defer client.Close()

	const key = "stagectl:lock:openSUSE:Factory"
	first := NewRedisLocker(client, "openSUSE:Factory", time.Minute, "select")
	first.renewEvery = 10 * time.Millisecond
	second := NewRedisLocker(client, "openSUSE:Factory", time.Minute, "accept")

	ok, err := first.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// Four steps of 40s add up to well past the one minute ttl.
	for i := 0; i < 4; i++ {
		mr.FastForward(40 * time.Second)
		require.Eventually(t, func() bool { return mr.TTL(key) > 45*time.Second },
			time.Second, 5*time.Millisecond, "lease was not renewed after step %d", i)
	}

	ok, err = second.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "renewed lease must still exclude other lockers")
	select {
	case <-first.Lost():
		t.Fatal("renewed lease reported lost")
	default:
	}

	require.NoError(t, first.Unlock(ctx))
	assert.Nil(t, first.Lost(), "unlock ends the lease")
	assert.False(t, mr.Exists(key))
}

func TestSession_RedisLeaseLostCancelsRun(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client, err := redisconn.Connect(ctx, "redis://"+mr.Addr())
	require.NoError(t, err)
	defer client.Close()

	firstLocker := NewRedisLocker(client, "openSUSE:Factory", time.Minute, "select")
	firstLocker.renewEvery = 10 * time.Millisecond
	first := NewSession(firstLocker, "openSUSE:Factory", 0, nil)
	second := NewSession(NewRedisLocker(client, "openSUSE:Factory", time.Minute, "select"), "openSUSE:Factory", 0, nil)

	var cause error
	err = first.Run(ctx, func(ctx context.Context) error {
		// The operator took longer than the lease in the editor.
		mr.FastForward(2 * time.Minute)
		select {
		case <-ctx.Done():
			cause = context.Cause(ctx)
			return ctx.Err()
		case <-time.After(2 * time.Second):
			t.Error("context was not cancelled after the lease expired")
			return nil
		}
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, stagerr.ErrLockLost)
	assert.ErrorIs(t, cause, stagerr.ErrLockLost)

	entered := false
	require.NoError(t, second.Run(ctx, func(context.Context) error {
		entered = true
		return nil
	}))
	assert.True(t, entered, "the lock is free once the first run gave up")
}
