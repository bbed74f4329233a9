// Package policy holds the two PolicyHook shapes described by the core's
// routing design (grouplock.PolicyHook, grouplock.PolicyContext): a single
// coordinator with backup replication, and a deterministic per-peer hash.
// The core package never picks one itself; a host wires up whichever shape
// fits its deployment.
package policy

import (
	"github.com/pkg/errors"

	"github.com/dijkstracula/grouplock"
)

// Central routes every request to one fixed coordinator address and, on the
// coordinator member only, replicates lock creation/deletion to a set of
// backups so one of them can take over arbitration if the coordinator
// leaves the view. It implements both grouplock.PolicyHook (down-path
// routing) and grouplock.Notification (so it can react to Locked/
// LockDeleted fired by the coordinator's own registry).
type Central struct {
	Coordinator grouplock.MemberAddress
	Backups     []grouplock.MemberAddress

	// IsLocalCoordinator must be set true on the member constructing this
	// Central that is itself Coordinator. A backup or a plain client sets
	// it false so it never attempts to replicate.
	IsLocalCoordinator bool

	sender grouplock.Sender
	codec  grouplock.AddressCodec
	cfg    grouplock.Config
}

// NewCentral constructs a Central policy. sender/codec/cfg are the same
// collaborators given to the owning Layer, captured here because
// Notification callbacks (LockCreated/LockDeleted) are not handed a
// PolicyContext.
func NewCentral(coordinator grouplock.MemberAddress, backups []grouplock.MemberAddress, isLocalCoordinator bool, sender grouplock.Sender, codec grouplock.AddressCodec, cfg grouplock.Config) *Central {
	return &Central{
		Coordinator:        coordinator,
		Backups:            backups,
		IsLocalCoordinator: isLocalCoordinator,
		sender:             sender,
		codec:              codec,
		cfg:                cfg,
	}
}

// SendGrantLockRequest implements grouplock.PolicyHook.
func (c *Central) SendGrantLockRequest(ctx grouplock.PolicyContext, name string, owner grouplock.Owner, timeoutMS int64, isTrylock bool) error {
	req := grouplock.Request{Type: grouplock.GrantLock, LockName: name, Owner: owner, Timeout: timeoutMS, IsTrylock: isTrylock}
	return c.route(ctx, req)
}

// SendReleaseLockRequest implements grouplock.PolicyHook.
func (c *Central) SendReleaseLockRequest(ctx grouplock.PolicyContext, name string, owner grouplock.Owner) error {
	req := grouplock.Request{Type: grouplock.ReleaseLock, LockName: name, Owner: owner}
	return c.route(ctx, req)
}

func (c *Central) route(ctx grouplock.PolicyContext, req grouplock.Request) error {
	payload, err := grouplock.Encode(req, ctx.Codec())
	if err != nil {
		return errors.Wrap(err, "policy/central: encode")
	}
	flags := grouplock.MessageFlags{DoNotBundle: ctx.Config().BypassBundling}
	return ctx.Sender().SendMessage(c.Coordinator, payload, flags)
}

// LockCreated implements grouplock.Notification. It is a no-op: §4.4
// requires CREATE_LOCK(name, owner) to install a ServerLock with its owner
// pre-set, and a freshly materialized ServerLock has no owner yet, so there
// is nothing a backup needs to know until Locked fires.
func (c *Central) LockCreated(name string) {}

// LockDeleted implements grouplock.Notification: issued once a ServerLock
// is reaped for being free and empty, it tells every backup to forget the
// entry too.
func (c *Central) LockDeleted(name string) {
	if !c.IsLocalCoordinator {
		return
	}
	c.replicate(grouplock.DeleteLock, name, grouplock.Owner{})
}

// Locked implements grouplock.Notification: the coordinator replicates
// CREATE_LOCK carrying the new owner to every backup, so a backup promoted
// on coordinator failover installs the same owner instead of a free lock a
// client already believes it holds (§8 invariant 4).
func (c *Central) Locked(name string, owner grouplock.Owner) {
	if !c.IsLocalCoordinator {
		return
	}
	c.replicate(grouplock.CreateLock, name, owner)
}

// Unlocked is a no-op for Central: freeing a lock doesn't change whether a
// backup's replicated entry should exist, only DeleteLock does that.
func (c *Central) Unlocked(string, grouplock.Owner) {}

func (c *Central) replicate(typ grouplock.RequestType, name string, owner grouplock.Owner) {
	req := grouplock.Request{Type: typ, LockName: name, Owner: owner}
	payload, err := grouplock.Encode(req, c.codec)
	if err != nil {
		grouplock.Logger.WithError(err).WithField("lock_name", name).Warn("policy/central: failed to encode replication message")
		return
	}
	flags := grouplock.MessageFlags{DoNotBundle: c.cfg.BypassBundling}
	for _, backup := range c.Backups {
		if err := c.sender.SendMessage(backup, payload, flags); err != nil {
			grouplock.Logger.WithError(err).WithField("lock_name", name).WithField("backup", backup.String()).Warn("policy/central: failed to replicate to backup")
		}
	}
}

var (
	_ grouplock.PolicyHook   = (*Central)(nil)
	_ grouplock.Notification = (*Central)(nil)
)
