package grouplock

import "github.com/google/uuid"

// MemberAddress is an opaque identifier for a group member. Implementations
// must support equality via Equal and a stable key via Key, since addresses
// are used both as map keys (client_locks, view membership sets) and as
// message destinations.
//
// A nil MemberAddress passed as a message destination means "broadcast to
// all members" (§3); that convention is enforced at the Transport boundary,
// not by this interface.
type MemberAddress interface {
	// Key returns a value suitable for use as a Go map key and is the basis
	// of Equal's default implementation for concrete types in this package.
	Key() string

	// Equal reports whether two addresses name the same member.
	Equal(other MemberAddress) bool

	// String returns a debug/log representation.
	String() string
}

// StringAddress is a concrete MemberAddress backed by an opaque string,
// minted from a UUID by NewStringAddress. It is the address type used by
// this package's own tests and by the memtransport reference transport; a
// production deployment would instead adapt whatever identity its group
// membership layer already hands out (an IP:port pair, a node UUID from a
// gossip layer, etc).
type StringAddress string

// NewStringAddress mints a fresh address with a random, globally unique
// value. label is folded into the value for debug readability only.
func NewStringAddress(label string) StringAddress {
	id := uuid.New().String()
	if label == "" {
		return StringAddress(id)
	}
	return StringAddress(label + "-" + id)
}

// Key implements MemberAddress.
func (a StringAddress) Key() string { return string(a) }

// Equal implements MemberAddress.
func (a StringAddress) Equal(other MemberAddress) bool {
	if other == nil {
		return false
	}
	o, ok := other.(StringAddress)
	if !ok {
		return a.Key() == other.Key()
	}
	return a == o
}

// String implements MemberAddress.
func (a StringAddress) String() string { return string(a) }
