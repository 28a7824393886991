package exclusive

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Iron-Ham/stagectl/internal/errors"
	"github.com/Iron-Ham/stagectl/internal/logging"
)

type heldKey struct{ s *Session }

// Session runs operations while holding a Locker. Acquisition retries with
// exponential backoff until timeout; a zero timeout tries once.
type Session struct {
	locker  Locker
	key     string
	timeout time.Duration
	logger  *logging.Logger

	mu sync.Mutex

	// newBackOff is replaced in tests.
	newBackOff func(timeout time.Duration) backoff.BackOff
}

// NewSession returns a Session for key. logger may be nil.
func NewSession(locker Locker, key string, timeout time.Duration, logger *logging.Logger) *Session {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Session{
		locker:     locker,
		key:        key,
		timeout:    timeout,
		logger:     logger,
		newBackOff: defaultBackOff,
	}
}

func defaultBackOff(timeout time.Duration) backoff.BackOff {
	if timeout <= 0 {
		return &backoff.StopBackOff{}
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = timeout
	b.Reset()
	return b
}

// Held reports whether ctx was produced by Run on this session.
func (s *Session) Held(ctx context.Context) bool {
	held, _ := ctx.Value(heldKey{s}).(bool)
	return held
}

// Run acquires the lock, calls fn and releases the lock. If the lock cannot
// be acquired Run returns a *errors.LockContention and fn is not called.
// Calling Run with a context derived from an enclosing Run on the same
// session calls fn directly. When the locker is a LeaseLocker and the hold
// lapses while fn runs, the context passed to fn is cancelled with a cause
// wrapping errors.ErrLockLost and Run returns that cause.
func (s *Session) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.Held(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer func() {
		if err := s.locker.Unlock(context.WithoutCancel(ctx)); err != nil {
			s.logger.Error("failed to release lock", "key", s.key, "error", err)
		} else {
			s.logger.Debug("lock released", "key", s.key)
		}
	}()

	runCtx := context.WithValue(ctx, heldKey{s}, true)
	if ll, ok := s.locker.(LeaseLocker); ok {
		if lost := ll.Lost(); lost != nil {
			var stop func()
			runCtx, stop = s.watchLease(runCtx, lost)
			defer stop()
		}
	}

	err := fn(runCtx)
	if cause := context.Cause(runCtx); errors.Is(cause, errors.ErrLockLost) {
		return cause
	}
	return err
}

// watchLease cancels the returned context once lost is closed. stop ends
// the watch.
func (s *Session) watchLease(ctx context.Context, lost <-chan struct{}) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(ctx)
	done := make(chan struct{})
	go func() {
		select {
		case <-lost:
			s.logger.Error("lock lost while held", "key", s.key)
			cancel(fmt.Errorf("%w: %s", errors.ErrLockLost, s.key))
		case <-done:
		}
	}()
	return ctx, func() {
		close(done)
		cancel(nil)
	}
}

func (s *Session) acquire(ctx context.Context) error {
	start := time.Now()
	attempts := 0
	op := func() error {
		attempts++
		ok, err := s.locker.TryLock(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return errors.ErrLockHeld
		}
		return nil
	}

	err := backoff.Retry(op, backoff.WithContext(s.newBackOff(s.timeout), ctx))
	waited := time.Since(start)
	if err == nil {
		s.logger.Debug("lock acquired", "key", s.key, "attempts", attempts, "waited", waited.String())
		return nil
	}

	cause := err
	if errors.Is(err, errors.ErrLockHeld) && s.timeout > 0 {
		cause = errors.ErrLockTimeout
	}
	contention := errors.NewLockContention(s.key, waited, cause)
	if holder, herr := s.locker.Holder(context.WithoutCancel(ctx)); herr == nil && holder != "" {
		contention = contention.WithHolder(holder)
	}
	s.logger.Warn("lock unavailable", "key", s.key, "attempts", attempts, "error", contention)
	return contention
}
