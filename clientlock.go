package grouplock

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ClientLock is the requester-side handle for one (lock name, owner) pair
// (§3, §4.3). It exposes the standard blocking-mutex contract -- Lock,
// LockContext, TryLock, TryLockTimeout, Unlock -- by exchanging Request
// messages with whichever peer hosts the name's ServerLock, using a
// monitor+condvar idiom taken directly from the teacher package's Mutex
// (dijkstracula/go-ilock): one sync.Mutex/sync.Cond pair, a "while
// (!resolved) cond.Wait()" loop guarding against spurious wakeups, and a
// Broadcast on every state transition.
//
// Go has no analogue of Java's cooperative thread interruption, so
// lock_interruptibly() becomes LockContext(ctx): cancellation is observed
// via ctx.Done() instead of InterruptedException (see SPEC_FULL.md §E).
type ClientLock struct {
	mu   sync.Mutex
	cond *sync.Cond

	name  string
	owner Owner

	acquired bool
	denied   bool

	// closed is set once this handle has been unlocked and deregistered.
	// Any later acquisition attempt on the same *ClientLock is a stale
	// reference (the registry already forgot it, so a response routed by
	// key would never find it again) and is rejected with ErrLockClosed
	// instead of silently retrying.
	closed bool

	// requested is true once a GrantLock request has been sent for the
	// current acquisition attempt and not yet resolved or withdrawn.
	requested bool

	timeout   int64
	isTrylock bool

	sendGrant   func(timeoutMS int64, isTrylock bool) error
	sendRelease func() error
	onUnlock    func()

	notifier *notifier
}

// newClientLock constructs a handle for (name, owner). sendGrant/sendRelease
// are the injected function handles §9 calls for instead of a cyclic
// back-reference to the Layer; onUnlock removes the handle from the Layer's
// registry and fires lockDeleted.
func newClientLock(name string, owner Owner, sendGrant func(int64, bool) error, sendRelease func() error, onUnlock func(), n *notifier) *ClientLock {
	c := &ClientLock{
		name:        name,
		owner:       owner,
		sendGrant:   sendGrant,
		sendRelease: sendRelease,
		onUnlock:    onUnlock,
		notifier:    n,
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Lock blocks until the lock is granted. Its only possible error is
// ErrLockClosed, returned if this handle was already released; §4.3's
// lock() otherwise always eventually returns holding the lock, and Go has
// no uncancelable-but-interruptible distinction to surface beyond that.
func (c *ClientLock) Lock() error {
	// context.Background() never cancels, reproducing lock()'s "absorb and
	// keep waiting" behavior exactly: there is nothing to absorb.
	return c.acquire(context.Background())
}

// LockContext blocks until the lock is granted or ctx is cancelled
// (§4.3's lock_interruptibly()). If ctx is cancelled before a grant
// arrives, the pending request is withdrawn (RELEASE_LOCK) and ctx.Err() is
// returned. If the grant has already landed by the time cancellation is
// observed, the grant wins and nil is returned.
func (c *ClientLock) LockContext(ctx context.Context) error {
	return c.acquire(ctx)
}

// acquire implements §4.3's acquire(throw_on_interrupt): steps 1-5 map
// directly, with ctx.Done() standing in for thread interruption.
func (c *ClientLock) acquire(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrLockClosed
	}
	if c.acquired {
		c.mu.Unlock()
		return nil
	}

	if !c.requested {
		c.requested = true
		c.timeout = 0
		c.isTrylock = false
		c.mu.Unlock()
		if err := c.sendGrant(0, false); err != nil {
			c.logSendFailure(err)
		}
		c.mu.Lock()
	}

	stop := c.watchContext(ctx)
	defer stop()

	for !c.acquired && ctx.Err() == nil {
		c.cond.Wait()
	}

	if c.acquired {
		c.mu.Unlock()
		return nil
	}

	// ctx was cancelled before a grant arrived: withdraw and propagate.
	c.mu.Unlock()
	c.unlock(true)
	return ctx.Err()
}

// watchContext starts a goroutine that broadcasts the condvar when ctx is
// done, so the cond.Wait() loop above can observe cancellation without a
// select (sync.Cond has no native support for one). It returns a stop
// function that must be called once the waiter is done observing ctx,
// otherwise the goroutine leaks until ctx is eventually cancelled/expires.
func (c *ClientLock) watchContext(ctx context.Context) (stop func()) {
	if ctx == nil || ctx.Done() == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			c.mu.Lock()
			c.cond.Broadcast()
			c.mu.Unlock()
		case <-done:
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

// TryLock performs a single non-blocking round trip (§4.3's try_lock()):
// it returns the outcome of a GrantLock(is_trylock=true, timeout=0) request
// once the server has answered. Its only possible error is ErrLockClosed.
func (c *ClientLock) TryLock() (bool, error) {
	return c.acquireTry(context.Background(), 0, false)
}

// TryLockTimeout waits up to d for the lock (§4.3's try_lock(duration)). On
// expiry it withdraws the request (RELEASE_LOCK) and returns false. Its
// only possible error is ErrLockClosed.
func (c *ClientLock) TryLockTimeout(d time.Duration) (bool, error) {
	return c.acquireTry(context.Background(), d.Milliseconds(), true)
}

// acquireTry implements §4.3's acquire_try(timeout_ms, use_timeout).
func (c *ClientLock) acquireTry(ctx context.Context, timeoutMS int64, useTimeout bool) (bool, error) {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()
		return false, ErrLockClosed
	}

	if c.denied {
		c.mu.Unlock()
		return false, nil
	}

	if !c.acquired && !c.requested {
		c.requested = true
		c.isTrylock = true
		c.timeout = timeoutMS
		c.mu.Unlock()
		if err := c.sendGrant(timeoutMS, true); err != nil {
			c.logSendFailure(err)
		}
		c.mu.Lock()
	}

	var deadline time.Time
	var timer *time.Timer
	if useTimeout {
		deadline = time.Now().Add(time.Duration(timeoutMS) * time.Millisecond)
	}

	stopCtx := c.watchContext(ctx)
	defer stopCtx()

	for !c.acquired && !c.denied && ctx.Err() == nil {
		if useTimeout {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				break
			}
			timer = time.AfterFunc(remaining, func() {
				c.mu.Lock()
				c.cond.Broadcast()
				c.mu.Unlock()
			})
			c.cond.Wait()
			timer.Stop()
		} else {
			c.cond.Wait()
		}
	}

	resolved := c.acquired && !c.denied
	cancelled := ctx.Err()
	c.mu.Unlock()

	if !resolved {
		// Guarantees the server is told even in the timeout-lost-to-race
		// case where a grant arrives after the wait already gave up
		// (§4.3 step 5).
		c.unlock(true)
	}

	if cancelled != nil && !resolved {
		return false, cancelled
	}
	return resolved, nil
}

// lockGranted is the up-path handler for a LOCK_GRANTED response (§4.3).
// Idempotent: re-delivery for an already-acquired lock just re-wakes
// waiters.
func (c *ClientLock) lockGranted() {
	c.mu.Lock()
	c.acquired = true
	c.cond.Broadcast()
	c.mu.Unlock()
}

// lockDenied is the up-path handler for a LOCK_DENIED response (§4.3).
func (c *ClientLock) lockDenied() {
	c.mu.Lock()
	c.denied = true
	c.cond.Broadcast()
	c.mu.Unlock()
}

// Unlock releases the lock (§4.3's unlock(), force=false).
func (c *ClientLock) Unlock() {
	c.unlock(false)
}

// unlock implements §4.3's _unlock(force). A non-forced call that holds
// neither acquired nor denied is a no-op; a forced call (interruption or
// timeout cleanup) always sends RELEASE_LOCK and tears down registry state
// regardless of the current flags, since the point of force=true is exactly
// to guarantee the server hears about a withdrawal that may be racing an
// in-flight grant.
func (c *ClientLock) unlock(force bool) {
	c.mu.Lock()
	if c.closed || (!force && !c.acquired && !c.denied) {
		c.mu.Unlock()
		return
	}

	name := c.name
	owner := c.owner
	c.acquired = false
	c.denied = false
	c.requested = false
	c.owner = Owner{}
	c.closed = true
	c.cond.Broadcast()
	c.mu.Unlock()

	if err := c.sendRelease(); err != nil {
		c.logSendFailure(err)
	}

	if c.onUnlock != nil {
		c.onUnlock()
	}
	c.notifier.fireLockDeleted(name)
	_ = owner
}

func (c *ClientLock) logSendFailure(err error) {
	Logger.WithFields(logrus.Fields{
		"event":     "send-failure",
		"lock_name": c.name,
		"owner":     c.owner.String(),
	}).WithError(err).Warn("grouplock: failed to send request")
}

// snapshot returns a read-only view for the management surface (§6).
func (c *ClientLock) snapshot() ClientLockSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ClientLockSnapshot{
		Name:     c.name,
		Owner:    c.owner,
		Acquired: c.acquired,
		Denied:   c.denied,
	}
}

// ClientLockSnapshot is a read-only view of one ClientLock (§6).
type ClientLockSnapshot struct {
	Name     string
	Owner    Owner
	Acquired bool
	Denied   bool
}
