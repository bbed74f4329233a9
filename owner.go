package grouplock

// Owner identifies a specific caller (thread-equivalent) on a specific
// member: it is the unit that either holds a lock or contends for one. Two
// CallerIDs on the same member are distinct owners, exactly as two threads
// on different members are (§3: "two threads on the same member contend
// like threads on different members").
type Owner struct {
	Address  MemberAddress
	CallerID *CallerID
}

// Equal reports structural equality: same member address, same caller
// identity.
func (o Owner) Equal(other Owner) bool {
	if o.CallerID != other.CallerID {
		return false
	}
	if o.Address == nil || other.Address == nil {
		return o.Address == other.Address
	}
	return o.Address.Equal(other.Address)
}

// IsZero reports whether this Owner is the unset zero value.
func (o Owner) IsZero() bool {
	return o.Address == nil && o.CallerID == nil
}

// String returns a debug representation of the form "address/caller".
func (o Owner) String() string {
	addr := "<nil>"
	if o.Address != nil {
		addr = o.Address.String()
	}
	return addr + "/" + o.CallerID.String()
}
