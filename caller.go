package grouplock

// CallerID identifies a logical "thread" of control within a single member
// for the lifetime of its interest in the locking API.
//
// The protocol's Owner tuple is (member address, thread id); Go has no
// stable, queryable identifier for a goroutine the way a JVM or a POSIX
// process does for a native thread; ProxyFS's dlm package solves the exact
// same problem by minting an explicit, opaque CallerID token instead of
// reaching for a thread-local trick, and this package follows that shape:
// a caller mints one CallerID per logical thread and passes it to every
// locking call that thread makes. Reusing the same CallerID across two lock
// calls for the same name is what produces the reentrancy-via-re-grant
// effect described in the protocol design; minting a fresh one models a
// distinct contender, even from the same goroutine.
type CallerID struct {
	// name is solely for debug/log readability; identity is by pointer.
	name string
}

// NewCallerID mints a fresh, opaque caller identity. name is an optional
// debug label and does not participate in equality.
func NewCallerID(name string) *CallerID {
	return &CallerID{name: name}
}

// String returns a debug label for the caller identity.
func (c *CallerID) String() string {
	if c == nil {
		return "<nil-caller>"
	}
	if c.name == "" {
		return "caller"
	}
	return c.name
}
