package grouplock

// MessageFlags carries per-message hints for the transport. The only flag
// named by the spec is DoNotBundle (§5, §6).
type MessageFlags struct {
	DoNotBundle bool
}

// Sender is the "down(Event.MESSAGE, msg)" sink (§6): it hands an already
// encoded Request to the transport for delivery to dest, or to every
// current member if dest is nil ("broadcast", §3).
type Sender interface {
	SendMessage(dest MemberAddress, payload []byte, flags MessageFlags) error
}

// PolicyContext is the slice of Layer state a PolicyHook needs to route a
// request: where to send it, and what the encoding/member context is. It is
// implemented by *Layer; PolicyHook implementations never reach into Layer
// beyond this interface, keeping policy.Central/policy.Peer decoupled from
// the core's internals (§4.6: "The core is oblivious").
type PolicyContext interface {
	Sender() Sender
	Codec() AddressCodec
	LocalAddress() MemberAddress
	View() []MemberAddress
	Config() Config
}

// PolicyHook decides which peer(s) host the server replica for a lock name,
// and whether create/delete should be replicated (§4.6). The core never
// chooses a concrete policy; see the policy subpackage for the two shapes
// the design calls out: a single coordinator with backup replication, and a
// deterministic per-peer hash.
type PolicyHook interface {
	// SendGrantLockRequest routes a GrantLock request for name/owner.
	SendGrantLockRequest(ctx PolicyContext, name string, owner Owner, timeoutMs int64, isTrylock bool) error
	// SendReleaseLockRequest routes a ReleaseLock request for name/owner.
	SendReleaseLockRequest(ctx PolicyContext, name string, owner Owner) error
}

// LockMode selects which of the four blocking-mutex contract operations a
// down-path LOCK event requests (§4.3/§4.4).
type LockMode int

const (
	// ModeBlocking corresponds to lock(): blocks until granted, absorbing
	// interruption.
	ModeBlocking LockMode = iota
	// ModeInterruptible corresponds to lock_interruptibly(): blocks until
	// granted or the supplied context is cancelled.
	ModeInterruptible
	// ModeTry corresponds to try_lock(): a single non-blocking round trip.
	ModeTry
	// ModeTryTimeout corresponds to try_lock(duration): blocks up to a
	// bound, then withdraws.
	ModeTryTimeout
)

// LockInfo parameterizes a down-path LOCK event (§4.4).
type LockInfo struct {
	Name     string
	CallerID *CallerID
	Mode     LockMode
	// TimeoutMS is used only when Mode == ModeTryTimeout.
	TimeoutMS int64
}

// UnlockInfo parameterizes a down-path UNLOCK event (§4.4).
type UnlockInfo struct {
	Name     string
	CallerID *CallerID
}
