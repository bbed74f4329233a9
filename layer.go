package grouplock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

func durationFromMS(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// Layer is the locking service proper (§4.4, §5): it owns the registries of
// ServerLock and ClientLock instances, turns down-path API calls into wire
// Requests via a PolicyHook, and turns up-path MESSAGE/VIEW_CHANGE events
// back into state transitions on the right registry entry. It implements
// PolicyContext so a PolicyHook can route a request without reaching into
// any other part of Layer's internals.
type Layer struct {
	mu sync.RWMutex

	localAddr MemberAddress
	view      []MemberAddress

	sender Sender
	codec  AddressCodec
	policy PolicyHook
	config Config

	notifier *notifier

	serverLocks map[string]*ServerLock
	clientLocks map[string]*ClientLock
}

// NewLayer constructs a Layer. sender/codec/policy are the transport-facing
// collaborators described by §4.6; config supplies the bundling hint and
// Recorder.
func NewLayer(sender Sender, codec AddressCodec, policy PolicyHook, localAddr MemberAddress, config Config) *Layer {
	return &Layer{
		localAddr:   localAddr,
		sender:      sender,
		codec:       codec,
		policy:      policy,
		config:      config,
		notifier:    &notifier{},
		serverLocks: make(map[string]*ServerLock),
		clientLocks: make(map[string]*ClientLock),
	}
}

// --- PolicyContext -----------------------------------------------------

func (l *Layer) Sender() Sender      { return l.sender }
func (l *Layer) Codec() AddressCodec { return l.codec }

func (l *Layer) LocalAddress() MemberAddress {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.localAddr
}

func (l *Layer) View() []MemberAddress {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]MemberAddress, len(l.view))
	copy(out, l.view)
	return out
}

func (l *Layer) Config() Config { return l.config }

// --- Down-path: SET_LOCAL_ADDRESS / VIEW_CHANGE -------------------------

// SetLocalAddress implements the down-path SET_LOCAL_ADDRESS event (§4.4):
// the group membership layer informs this Layer which address identifies it
// within the current view.
func (l *Layer) SetLocalAddress(addr MemberAddress) {
	l.mu.Lock()
	l.localAddr = addr
	l.mu.Unlock()
}

// ApplyViewChange implements the down-path VIEW_CHANGE event (§4.4): every
// ServerLock re-evaluates its owner and queue against the new membership,
// evicting any entry whose member has left (§4.2's handle_view).
//
// A client whose ClientLock was waiting on a server replica that just left
// the view is not automatically retried here; the protocol's policy hook is
// what decides where a lock's server replica now lives, and re-sending a
// pending GrantLock after a view change is a policy-level concern, not a
// core one (§4.6).
func (l *Layer) ApplyViewChange(members []MemberAddress) {
	l.mu.Lock()
	l.view = append([]MemberAddress(nil), members...)
	serverLocks := make([]*ServerLock, 0, len(l.serverLocks))
	for _, sl := range l.serverLocks {
		serverLocks = append(serverLocks, sl)
	}
	l.mu.Unlock()

	for _, sl := range serverLocks {
		sl.HandleView(members)
	}
	l.reapEmptyServerLocks()
}

// --- Down-path: LOCK / UNLOCK / UNLOCK_ALL ------------------------------

// Lock implements the down-path LOCK event (§4.3, §4.4). info.Mode selects
// which of the four blocking-mutex contract operations to perform. It
// returns the ClientLock handle (for a later Unlock) and whether the lock
// was acquired. err is non-nil for ModeInterruptible cancellation, for
// ErrLockClosed from a handle already released, for an unknown Mode, and
// for an empty name (ErrEmptyLockName, with a nil handle).
func (l *Layer) Lock(ctx context.Context, info LockInfo) (*ClientLock, bool, error) {
	if info.Name == "" {
		return nil, false, ErrEmptyLockName
	}
	owner := Owner{Address: l.LocalAddress(), CallerID: info.CallerID}
	cl := l.getOrCreateClientLock(info.Name, owner)

	switch info.Mode {
	case ModeBlocking:
		if err := cl.Lock(); err != nil {
			return cl, false, err
		}
		return cl, true, nil
	case ModeInterruptible:
		err := cl.LockContext(ctx)
		return cl, err == nil, err
	case ModeTry:
		acquired, err := cl.TryLock()
		return cl, acquired, err
	case ModeTryTimeout:
		acquired, err := cl.TryLockTimeout(durationFromMS(info.TimeoutMS))
		return cl, acquired, err
	default:
		return cl, false, fmt.Errorf("grouplock: unknown lock mode %d", info.Mode)
	}
}

// Unlock implements the down-path UNLOCK event (§4.3, §4.4): it releases
// the caller's ClientLock for name, if one is registered.
func (l *Layer) Unlock(info UnlockInfo) {
	owner := Owner{Address: l.LocalAddress(), CallerID: info.CallerID}
	key := clientLockKey(info.Name, owner)

	l.mu.RLock()
	cl, ok := l.clientLocks[key]
	l.mu.RUnlock()
	if !ok {
		return
	}
	cl.Unlock()
}

// UnlockAll implements the down-path UNLOCK_ALL event (§6): every
// registered ClientLock is released. The registry is snapshotted before
// releasing so that each Unlock's own reap callback (which takes l.mu) does
// not deadlock against the iteration (the same snapshot-then-act idiom used
// by notifier.snapshot and ServerLock's deferred-toFire closures).
func (l *Layer) UnlockAll() {
	l.mu.RLock()
	locks := make([]*ClientLock, 0, len(l.clientLocks))
	for _, cl := range l.clientLocks {
		locks = append(locks, cl)
	}
	l.mu.RUnlock()

	for _, cl := range locks {
		cl.Unlock()
	}
}

// --- Up-path: MESSAGE ----------------------------------------------------

// Deliver implements the up-path MESSAGE event (§4.4): payload is handed up
// from the transport exactly as received. A payload without this package's
// protocol header is not our concern and is reported back as "unhandled" so
// a host multiplexing several protocols over one transport can try the next
// layer; any other failure to decode is a protocol error and the message is
// dropped (§7).
func (l *Layer) Deliver(from MemberAddress, payload []byte) (handled bool, err error) {
	if !HasProtocolHeader(payload) {
		return false, nil
	}

	req, err := Decode(payload, l.codec)
	if err != nil {
		logDrop("decode", "<unknown>", Owner{}, err)
		return true, err
	}

	switch req.Type {
	case GrantLock, ReleaseLock:
		l.deliverServerSide(req)
	case LockGranted:
		l.deliverClientSide(req, true)
	case LockDenied:
		l.deliverClientSide(req, false)
	case CreateLock:
		l.deliverCreateLock(req)
	case DeleteLock:
		l.deliverDeleteLock(req)
	default:
		return true, ErrUnknownRequestType
	}
	return true, nil
}

func (l *Layer) deliverServerSide(req Request) {
	var sl *ServerLock
	if req.Type == ReleaseLock {
		// Open question (a), SPEC_FULL.md §D: a RELEASE_LOCK that finds no
		// ServerLock is dropped without creating one.
		l.mu.RLock()
		sl = l.serverLocks[req.LockName]
		l.mu.RUnlock()
		if sl == nil {
			return
		}
	} else {
		var created bool
		sl, created = l.getOrCreateServerLock(req.LockName)
		if created {
			l.notifier.fireLockCreated(req.LockName)
		}
	}
	if err := sl.HandleRequest(req); err != nil {
		logDrop("handle-request", req.LockName, req.Owner, err)
	}
	l.reapServerLockIfEmpty(req.LockName)
}

func (l *Layer) deliverClientSide(req Request, granted bool) {
	key := clientLockKey(req.LockName, req.Owner)
	l.mu.RLock()
	cl, ok := l.clientLocks[key]
	l.mu.RUnlock()
	if !ok {
		Logger.WithFields(logrus.Fields{
			"event":     "unmatched-response",
			"lock_name": req.LockName,
			"owner":     req.Owner.String(),
		}).Warn("grouplock: response for unknown client lock, dropping")
		return
	}
	if granted {
		cl.lockGranted()
	} else {
		cl.lockDenied()
	}
}

// deliverCreateLock implements replica bootstrap for a backup policy
// (§4.6): a coordinator tells a backup to materialize a ServerLock entry
// for name so the backup can take over if the coordinator leaves the view.
// Per §4.4, CREATE_LOCK(name, owner) unconditionally installs a ServerLock
// with that owner pre-set, so a promoted backup never hands out a name a
// client already believes it holds (§8 invariant 4).
func (l *Layer) deliverCreateLock(req Request) {
	sl, created := l.getOrCreateServerLock(req.LockName)
	if created {
		l.notifier.fireLockCreated(req.LockName)
	}
	if !req.Owner.IsZero() {
		sl.InstallOwner(req.Owner)
	}
}

// deliverDeleteLock implements replica teardown for a backup policy
// (§4.6): the inverse of deliverCreateLock.
func (l *Layer) deliverDeleteLock(req Request) {
	l.mu.Lock()
	_, ok := l.serverLocks[req.LockName]
	delete(l.serverLocks, req.LockName)
	l.mu.Unlock()
	if ok {
		l.notifier.fireLockDeleted(req.LockName)
	}
}

// --- registries ----------------------------------------------------------

func (l *Layer) getOrCreateServerLock(name string) (sl *ServerLock, created bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.serverLocks[name]; ok {
		return existing, false
	}
	sl = newServerLock(name, l.sender, l.codec, l.notifier, l.config.recorder())
	l.serverLocks[name] = sl
	return sl, true
}

// reapServerLockIfEmpty removes name's ServerLock once it is free and has
// no waiters (§3 lifecycle; open question (b), SPEC_FULL.md §D: the same
// reap path is used whether the lock was created on demand or by
// replication, so a coordinator and its backups converge on the same
// "forget empty locks" behavior without special-casing either origin).
func (l *Layer) reapServerLockIfEmpty(name string) {
	l.mu.RLock()
	sl, ok := l.serverLocks[name]
	l.mu.RUnlock()
	if !ok || !sl.IsEmpty() {
		return
	}

	l.mu.Lock()
	sl, ok = l.serverLocks[name]
	if ok && sl.IsEmpty() {
		delete(l.serverLocks, name)
	} else {
		ok = false
	}
	l.mu.Unlock()

	if ok {
		l.notifier.fireLockDeleted(name)
	}
}

func (l *Layer) reapEmptyServerLocks() {
	l.mu.RLock()
	names := make([]string, 0, len(l.serverLocks))
	for name := range l.serverLocks {
		names = append(names, name)
	}
	l.mu.RUnlock()
	for _, name := range names {
		l.reapServerLockIfEmpty(name)
	}
}

func (l *Layer) getOrCreateClientLock(name string, owner Owner) *ClientLock {
	key := clientLockKey(name, owner)

	l.mu.RLock()
	if existing, ok := l.clientLocks[key]; ok {
		l.mu.RUnlock()
		return existing
	}
	l.mu.RUnlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.clientLocks[key]; ok {
		return existing
	}

	cl := newClientLock(
		name,
		owner,
		func(timeoutMS int64, isTrylock bool) error {
			return l.policy.SendGrantLockRequest(l, name, owner, timeoutMS, isTrylock)
		},
		func() error {
			return l.policy.SendReleaseLockRequest(l, name, owner)
		},
		func() { l.removeClientLock(key) },
		l.notifier,
	)
	l.clientLocks[key] = cl
	return cl
}

func (l *Layer) removeClientLock(key string) {
	l.mu.Lock()
	delete(l.clientLocks, key)
	l.mu.Unlock()
}

func clientLockKey(name string, owner Owner) string {
	addr := "<nil>"
	if owner.Address != nil {
		addr = owner.Address.Key()
	}
	return name + "\x00" + addr + "\x00" + fmt.Sprintf("%p", owner.CallerID)
}

// Notifications exposes the registry a caller uses to add/remove
// Notification listeners (§6).
func (l *Layer) Notifications() *notifier { return l.notifier }

var _ PolicyContext = (*Layer)(nil)
