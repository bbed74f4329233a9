package grouplock

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// ServerLock is the authoritative state for one lock name on the peer
// currently responsible for arbitrating it (§3, §4.2). All operations on a
// single ServerLock are serialized by its own monitor -- this is the "coarse
// single monitor per lock" design from §4.2, grounded on the same shape as
// ProxyFS's localLockTrack (dlm/llm.go): an owner count/identity, a FIFO
// wait queue, and a grant loop that walks the queue under the monitor.
type ServerLock struct {
	mu sync.Mutex

	name string

	hasOwner bool
	owner    Owner

	// queue holds only GrantLock entries (§3 invariant); RELEASE_LOCK
	// requests are resolved inline by handleReleaseLocked and never
	// appended here.
	queue []Request

	sender   Sender
	codec    AddressCodec
	notifier *notifier
	recorder Recorder
}

func newServerLock(name string, sender Sender, codec AddressCodec, notifier *notifier, recorder Recorder) *ServerLock {
	return &ServerLock{
		name:     name,
		sender:   sender,
		codec:    codec,
		notifier: notifier,
		recorder: recorder,
	}
}

// IsEmpty reports whether the lock is free and has no waiters, the
// condition under which the Layer removes it from the registry (§3
// lifecycle, invariant 1 of §8).
func (s *ServerLock) IsEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.hasOwner && len(s.queue) == 0
}

// HandleRequest dispatches a GrantLock or ReleaseLock request and then
// drains the queue (§4.2). Any other RequestType is an error per §4.2 ("Any
// other type: error").
func (s *ServerLock) HandleRequest(req Request) error {
	s.mu.Lock()
	var toFire []func()
	defer func() {
		s.mu.Unlock()
		for _, f := range toFire {
			f()
		}
	}()

	switch req.Type {
	case GrantLock:
		toFire = append(toFire, s.handleGrantLocked(req)...)
	case ReleaseLock:
		toFire = append(toFire, s.handleReleaseLocked(req)...)
	default:
		return ErrUnknownRequestType
	}

	toFire = append(toFire, s.processQueueLocked()...)
	return nil
}

// handleGrantLocked implements the GRANT_LOCK branch of §4.2's
// handle_request. Caller holds s.mu.
func (s *ServerLock) handleGrantLocked(req Request) (toFire []func()) {
	switch {
	case !s.hasOwner:
		toFire = append(toFire, s.setOwnerLocked(req.Owner)...)
		s.sendGranted(req.Owner)
	case s.owner.Equal(req.Owner):
		// Idempotent re-grant: a retried request from the current holder.
		s.sendGranted(req.Owner)
	case req.IsTrylock && req.Timeout <= 0:
		s.sendDenied(req.Owner)
		s.recorder.LockDenied(s.name)
	default:
		toFire = append(toFire, s.addToQueueLocked(req)...)
	}
	return toFire
}

// handleReleaseLocked implements the RELEASE_LOCK branch of §4.2's
// handle_request. Caller holds s.mu.
func (s *ServerLock) handleReleaseLocked(req Request) (toFire []func()) {
	switch {
	case !s.hasOwner:
		// Open question (a), §9: silent drop.
		return nil
	case s.owner.Equal(req.Owner):
		toFire = append(toFire, s.clearOwnerLocked()...)
	default:
		// A release from a queued (not current) owner withdraws its request.
		s.removeQueuedOwnerLocked(req.Owner)
	}
	return toFire
}

// addToQueueLocked implements §4.2's add_to_queue. Caller holds s.mu.
func (s *ServerLock) addToQueueLocked(req Request) (toFire []func()) {
	if req.Type != GrantLock {
		// A RELEASE_LOCK can only reach here via handleReleaseLocked, which
		// never calls addToQueueLocked; kept for symmetry with the spec's
		// description of add_to_queue handling both message types.
		s.removeQueuedOwnerLocked(req.Owner)
		return nil
	}

	for _, existing := range s.queue {
		if sameOwner(existing, req) {
			// Duplicate GRANT_LOCK from an already-queued owner: discard
			// (§4.2 fairness note; prevents queue bloat from retries).
			return nil
		}
	}
	s.queue = append(s.queue, req)
	s.recorder.LockQueued(s.name, len(s.queue))
	return nil
}

func (s *ServerLock) removeQueuedOwnerLocked(owner Owner) {
	for i, existing := range s.queue {
		if existing.Owner.Equal(owner) {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return
		}
	}
}

// processQueueLocked implements §4.2's process_queue: while free and the
// queue is non-empty, promote the head and stop after one promotion. Caller
// holds s.mu.
func (s *ServerLock) processQueueLocked() (toFire []func()) {
	for !s.hasOwner && len(s.queue) > 0 {
		head := s.queue[0]
		s.queue = s.queue[1:]
		// §3 invariant: queue contains only GrantLock entries.
		toFire = append(toFire, s.setOwnerLocked(head.Owner)...)
		s.sendGranted(head.Owner)
		break
	}
	return toFire
}

// setOwnerLocked transitions Free -> Held(new), returning a deferred
// "locked" notification to fire after the monitor is released (§4.2's
// set_owner; §9 on dispatching outside the lock's own monitor). Caller
// holds s.mu.
func (s *ServerLock) setOwnerLocked(new Owner) (toFire []func()) {
	s.hasOwner = true
	s.owner = new
	name := s.name
	n := s.notifier
	toFire = append(toFire, func() { n.fireLocked(name, new) })
	s.recorder.LockGranted(name)
	return toFire
}

// clearOwnerLocked transitions Held(prev) -> Free, returning a deferred
// "unlocked" notification. Caller holds s.mu.
func (s *ServerLock) clearOwnerLocked() (toFire []func()) {
	prev := s.owner
	s.hasOwner = false
	s.owner = Owner{}
	name := s.name
	n := s.notifier
	toFire = append(toFire, func() { n.fireUnlocked(name, prev) })
	return toFire
}

// InstallOwner implements the replica-bootstrap side of CREATE_LOCK (§4.4):
// it unconditionally sets the owner, bypassing the normal grant/queue path,
// since a backup materializing this entry for the first time has no local
// waiters of its own to reconcile against. It does not fire a Locked
// notification or touch the Recorder: this is state replication, not a
// fresh grant, and counting it as one would double-count the coordinator's
// own LockGranted metric.
func (s *ServerLock) InstallOwner(owner Owner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hasOwner = true
	s.owner = owner
}

// HandleView applies a view change (§4.2's handle_view): an owner or waiter
// whose member has left is evicted, then the queue is drained.
func (s *ServerLock) HandleView(members []MemberAddress) {
	s.mu.Lock()
	var toFire []func()
	defer func() {
		s.mu.Unlock()
		for _, f := range toFire {
			f()
		}
	}()

	present := func(addr MemberAddress) bool {
		if addr == nil {
			return true
		}
		for _, m := range members {
			if m.Equal(addr) {
				return true
			}
		}
		return false
	}

	if s.hasOwner && !present(s.owner.Address) {
		toFire = append(toFire, s.clearOwnerLocked()...)
		s.recorder.LockEvicted(s.name)
	}

	kept := s.queue[:0:0]
	for _, req := range s.queue {
		if present(req.Owner.Address) {
			kept = append(kept, req)
		} else {
			s.recorder.LockEvicted(s.name)
		}
	}
	s.queue = kept

	toFire = append(toFire, s.processQueueLocked()...)
}

func (s *ServerLock) sendGranted(owner Owner) {
	s.sendResponse(LockGranted, owner)
}

func (s *ServerLock) sendDenied(owner Owner) {
	s.sendResponse(LockDenied, owner)
}

func (s *ServerLock) sendResponse(typ RequestType, owner Owner) {
	resp := Request{Type: typ, LockName: s.name, Owner: owner}
	payload, err := Encode(resp, s.codec)
	if err != nil {
		logDrop("encode-response", s.name, owner, err)
		return
	}
	if err := s.sender.SendMessage(owner.Address, payload, MessageFlags{}); err != nil {
		Logger.WithFields(logrus.Fields{
			"event":     "send-failure",
			"lock_name": s.name,
			"owner":     owner.String(),
			"type":      typ.String(),
		}).WithError(err).Warn("grouplock: failed to send response")
	}
}

// snapshot returns a debug/management view of the lock's current state
// (§6: read-only management surface).
func (s *ServerLock) snapshot() ServerLockSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	queue := make([]Owner, 0, len(s.queue))
	for _, req := range s.queue {
		queue = append(queue, req.Owner)
	}
	snap := ServerLockSnapshot{Name: s.name, HasOwner: s.hasOwner, Queue: queue}
	if s.hasOwner {
		snap.Owner = s.owner
	}
	return snap
}

// ServerLockSnapshot is a read-only view of one ServerLock, used by the
// management surface (§6).
type ServerLockSnapshot struct {
	Name     string
	HasOwner bool
	Owner    Owner
	Queue    []Owner
}
