package grouplock

// LayerSnapshot is the read-only management view over the full registry
// state of a Layer (§6): every ServerLock this member currently arbitrates
// and every ClientLock it currently holds or is waiting on.
type LayerSnapshot struct {
	ServerLocks []ServerLockSnapshot
	ClientLocks []ClientLockSnapshot
}

// Snapshot implements the optional read-only management surface (§6). It
// takes a point-in-time copy; the registries themselves are not held locked
// across the per-entry snapshot calls, so a concurrent grant or release may
// or may not be reflected in any one entry, matching the "point-in-time,
// best-effort" nature of a debug/metrics view.
func (l *Layer) Snapshot() LayerSnapshot {
	l.mu.RLock()
	serverLocks := make([]*ServerLock, 0, len(l.serverLocks))
	for _, sl := range l.serverLocks {
		serverLocks = append(serverLocks, sl)
	}
	clientLocks := make([]*ClientLock, 0, len(l.clientLocks))
	for _, cl := range l.clientLocks {
		clientLocks = append(clientLocks, cl)
	}
	l.mu.RUnlock()

	snap := LayerSnapshot{
		ServerLocks: make([]ServerLockSnapshot, 0, len(serverLocks)),
		ClientLocks: make([]ClientLockSnapshot, 0, len(clientLocks)),
	}
	for _, sl := range serverLocks {
		snap.ServerLocks = append(snap.ServerLocks, sl.snapshot())
	}
	for _, cl := range clientLocks {
		snap.ClientLocks = append(snap.ClientLocks, cl.snapshot())
	}
	return snap
}
