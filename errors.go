package grouplock

import "github.com/pkg/errors"

// Sentinel errors. Callers compare with errors.Is after unwrapping (the
// wrapping points, in codec.go and the policy package, use pkg/errors so the original
// call site is preserved in %+v while the sentinel survives Cause()/Is()).
var (
	// ErrShortBuffer is returned by Decode when the input ends before a
	// length-prefixed or fixed-width field can be fully read.
	ErrShortBuffer = errors.New("grouplock: short buffer")

	// ErrUnknownRequestType is returned by Decode for a type ordinal outside
	// the six declared RequestType values, and by ServerLock.HandleRequest
	// for any RequestType it was not asked to dispatch (§4.2: "any other
	// type: error").
	ErrUnknownRequestType = errors.New("grouplock: unknown request type")

	// ErrBadHeader is returned when a payload handed to Decode is missing
	// or mismatches the protocol header tag (§4.1).
	ErrBadHeader = errors.New("grouplock: missing or mismatched protocol header")

	// ErrEmptyLockName is returned by Encode and Layer.Lock for a
	// zero-length lock name (§3: "non-empty UTF-8 string").
	ErrEmptyLockName = errors.New("grouplock: lock name must not be empty")

	// ErrLockClosed is returned by Lock, LockContext, TryLock, and
	// TryLockTimeout when called on a ClientLock that has already been
	// unlocked and removed from the registry (a stale handle: the Layer
	// would hand out a brand new ClientLock for the same name/owner on the
	// next Lock call, so reusing the old pointer is always a bug).
	ErrLockClosed = errors.New("grouplock: client lock already released")
)
