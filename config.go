package grouplock

// Config holds the small set of knobs this layer exposes (§6). Parsing it
// from a file/flags/env is explicitly out of scope (§1); a host application
// builds one directly.
type Config struct {
	// BypassBundling, when true (the default), tags the requests a
	// PolicyHook sends and the replication messages policy.Central sends
	// with a "do-not-bundle" hint for the transport (§5: "a latency hint to
	// the transport; correctness does not depend on it"). Server responses
	// (LOCK_GRANTED/LOCK_DENIED) are sent without the hint regardless of
	// this setting.
	BypassBundling bool

	// Recorder observes protocol events for an optional management/metrics
	// surface. A nil Recorder is treated as NoopRecorder.
	Recorder Recorder
}

// DefaultConfig returns the spec's documented default (§6:
// "bypass_bundling: bool -- default true").
func DefaultConfig() Config {
	return Config{
		BypassBundling: true,
		Recorder:       NoopRecorder{},
	}
}

func (c Config) recorder() Recorder {
	if c.Recorder == nil {
		return NoopRecorder{}
	}
	return c.Recorder
}
