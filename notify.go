package grouplock

import "sync"

// Notification is the four-callback listener interface exposed to lock
// service clients (§6).
type Notification interface {
	LockCreated(name string)
	LockDeleted(name string)
	Locked(name string, owner Owner)
	Unlocked(name string, owner Owner)
}

// notifier fans out Notification callbacks. Registration is guarded by a
// mutex; dispatch iterates a snapshot taken under that same mutex so a
// listener registering/unregistering mid-dispatch never races the slice
// (§4.4, §9: "Iterating listeners under a ServerLock monitor risks
// deadlock... snapshot the listener collection before firing").
type notifier struct {
	mu        sync.Mutex
	listeners []Notification
}

func (n *notifier) Register(l Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listeners = append(n.listeners, l)
}

func (n *notifier) Unregister(l Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, existing := range n.listeners {
		if existing == l {
			n.listeners = append(n.listeners[:i], n.listeners[i+1:]...)
			return
		}
	}
}

func (n *notifier) snapshot() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Notification, len(n.listeners))
	copy(out, n.listeners)
	return out
}

// fireLockCreated dispatches outside any ServerLock/ClientLock monitor.
// Listener panics are recovered and logged (§7: "Listener failure: Caught,
// logged, iteration continues") rather than allowed to unwind into the
// up-path, which must never propagate an exception into the transport.
func (n *notifier) fireLockCreated(name string) {
	for _, l := range n.snapshot() {
		n.safeCall(func() { l.LockCreated(name) })
	}
}

func (n *notifier) fireLockDeleted(name string) {
	for _, l := range n.snapshot() {
		n.safeCall(func() { l.LockDeleted(name) })
	}
}

func (n *notifier) fireLocked(name string, owner Owner) {
	for _, l := range n.snapshot() {
		n.safeCall(func() { l.Locked(name, owner) })
	}
}

func (n *notifier) fireUnlocked(name string, owner Owner) {
	for _, l := range n.snapshot() {
		n.safeCall(func() { l.Unlocked(name, owner) })
	}
}

func (n *notifier) safeCall(f func()) {
	defer func() {
		if r := recover(); r != nil {
			Logger.WithField("panic", r).Error("grouplock: listener panicked, continuing dispatch")
		}
	}()
	f()
}
