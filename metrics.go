package grouplock

// Recorder observes protocol events for an optional, out-of-band management
// surface. The spec's §1 scope note lists metrics exposure alongside
// transport and coordinator election as something the surrounding stack
// wires up, not something the core depends on; Layer only ever calls
// through this interface, never a concrete metrics client, so the core
// stays obliviously metrics-free when Recorder is the NoopRecorder zero
// value.
type Recorder interface {
	// LockGranted is called once per successful grant, server-side.
	LockGranted(lockName string)
	// LockDenied is called once per try-lock rejection, server-side.
	LockDenied(lockName string)
	// LockQueued is called when a GrantLock request joins a ServerLock's
	// wait queue.
	LockQueued(lockName string, queueDepth int)
	// LockEvicted is called when a view change clears an owner or drops a
	// queued waiter.
	LockEvicted(lockName string)
}

// NoopRecorder discards every observation. It is the zero value used when a
// Layer is constructed without an explicit Recorder.
type NoopRecorder struct{}

func (NoopRecorder) LockGranted(string)     {}
func (NoopRecorder) LockDenied(string)      {}
func (NoopRecorder) LockQueued(string, int) {}
func (NoopRecorder) LockEvicted(string)     {}

var _ Recorder = NoopRecorder{}
