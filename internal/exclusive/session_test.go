package exclusive

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stagerr "github.com/Iron-Ham/stagectl/internal/errors"
)

type fakeLocker struct {
	held     bool
	freeAt   int // TryLock succeeds from this attempt on; 0 means always
	attempts int
	unlocks  int
	tryErr   error
	holder   string
}

func (f *fakeLocker) TryLock(context.Context) (bool, error) {
	f.attempts++
	if f.tryErr != nil {
		return false, f.tryErr
	}
	if f.freeAt > 0 && f.attempts < f.freeAt {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLocker) Unlock(context.Context) error {
	f.unlocks++
	f.held = false
	return nil
}

func (f *fakeLocker) Holder(context.Context) (string, error) { return f.holder, nil }

func fastSession(l Locker, timeout time.Duration) *Session {
	s := NewSession(l, "openSUSE:Factory", timeout, nil)
	s.newBackOff = func(timeout time.Duration) backoff.BackOff {
		if timeout <= 0 {
			return &backoff.StopBackOff{}
		}
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 5)
	}
	return s
}

func TestSession_RunHoldsLock(t *testing.T) {
	l := &fakeLocker{}
	s := fastSession(l, time.Second)

	called := false
	err := s.Run(context.Background(), func(ctx context.Context) error {
		called = true
		assert.True(t, l.held)
		assert.True(t, s.Held(ctx))
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
	assert.False(t, l.held)
	assert.Equal(t, 1, l.unlocks)
}

func TestSession_RetriesUntilFree(t *testing.T) {
	l := &fakeLocker{freeAt: 3}
	s := fastSession(l, time.Second)

	require.NoError(t, s.Run(context.Background(), func(context.Context) error { return nil }))
	assert.Equal(t, 3, l.attempts)
}

func TestSession_ContentionAbortsWithoutCallingFn(t *testing.T) {
	tests := []struct {
		name    string
		timeout time.Duration
		cause   error
	}{
		{"single attempt", 0, stagerr.ErrLockHeld},
		{"bounded wait", time.Second, stagerr.ErrLockTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &fakeLocker{freeAt: 1000, holder: "PID 1 on build01"}
			s := fastSession(l, tt.timeout)

			err := s.Run(context.Background(), func(context.Context) error {
				t.Fatal("fn must not run without the lock")
				return nil
			})

			var contention *stagerr.LockContention
			require.True(t, errors.As(err, &contention), "got %v", err)
			assert.Equal(t, "openSUSE:Factory", contention.Key)
			assert.Equal(t, "PID 1 on build01", contention.Holder)
			assert.ErrorIs(t, err, tt.cause)
			assert.Zero(t, l.unlocks)
		})
	}
}

func TestSession_LockerErrorIsPermanent(t *testing.T) {
	boom := errors.New("redis down")
	l := &fakeLocker{tryErr: boom}
	s := fastSession(l, time.Second)

	err := s.Run(context.Background(), func(context.Context) error { return nil })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, l.attempts)
}

func TestSession_Reentrant(t *testing.T) {
	l := &fakeLocker{}
	s := fastSession(l, 0)

	depth := 0
	err := s.Run(context.Background(), func(ctx context.Context) error {
		return s.Run(ctx, func(context.Context) error {
			depth = 2
			return nil
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 2, depth)
	assert.Equal(t, 1, l.attempts)
	assert.Equal(t, 1, l.unlocks)
}

func TestSession_ReleasesOnError(t *testing.T) {
	l := &fakeLocker{}
	s := fastSession(l, 0)
	boom := errors.New("commit failed")

	err := s.Run(context.Background(), func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, l.unlocks)
}

func TestSession_FileLockerAcrossSessions(t *testing.T) {
	dir := t.TempDir()
	outer := NewSession(NewFileLocker(dir, "openSUSE:Factory", "select"), "openSUSE:Factory", 0, nil)
	inner := NewSession(NewFileLocker(dir, "openSUSE:Factory", "ignore"), "openSUSE:Factory", 0, nil)

	err := outer.Run(context.Background(), func(ctx context.Context) error {
		err := inner.Run(context.Background(), func(context.Context) error { return nil })
		var contention *stagerr.LockContention
		require.True(t, errors.As(err, &contention))
		assert.Contains(t, contention.Holder, "(select)")
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, inner.Run(context.Background(), func(context.Context) error { return nil }))
}
