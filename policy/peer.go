package policy

import (
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"

	"github.com/dijkstracula/grouplock"
)

// Peer routes a request to whichever current view member a deterministic
// hash of the lock name selects, so every member independently agrees on
// who arbitrates a given name without a coordinator round trip. The view
// is sorted by address key before hashing so that every member's view of
// "who holds index i" agrees even if grouplock.PolicyContext.View() returns
// members in an unspecified order.
type Peer struct{}

// NewPeer constructs a Peer policy. It is stateless.
func NewPeer() *Peer { return &Peer{} }

func (p *Peer) route(ctx grouplock.PolicyContext, name string) grouplock.MemberAddress {
	view := ctx.View()
	if len(view) == 0 {
		return ctx.LocalAddress()
	}
	sort.Slice(view, func(i, j int) bool { return view[i].Key() < view[j].Key() })
	idx := xxhash.Sum64String(name) % uint64(len(view))
	return view[idx]
}

// SendGrantLockRequest implements grouplock.PolicyHook.
func (p *Peer) SendGrantLockRequest(ctx grouplock.PolicyContext, name string, owner grouplock.Owner, timeoutMS int64, isTrylock bool) error {
	req := grouplock.Request{Type: grouplock.GrantLock, LockName: name, Owner: owner, Timeout: timeoutMS, IsTrylock: isTrylock}
	return p.send(ctx, req)
}

// SendReleaseLockRequest implements grouplock.PolicyHook.
func (p *Peer) SendReleaseLockRequest(ctx grouplock.PolicyContext, name string, owner grouplock.Owner) error {
	req := grouplock.Request{Type: grouplock.ReleaseLock, LockName: name, Owner: owner}
	return p.send(ctx, req)
}

func (p *Peer) send(ctx grouplock.PolicyContext, req grouplock.Request) error {
	dest := p.route(ctx, req.LockName)
	payload, err := grouplock.Encode(req, ctx.Codec())
	if err != nil {
		return errors.Wrap(err, "policy/peer: encode")
	}
	flags := grouplock.MessageFlags{DoNotBundle: ctx.Config().BypassBundling}
	return ctx.Sender().SendMessage(dest, payload, flags)
}

var _ grouplock.PolicyHook = (*Peer)(nil)
