package grouplock

import "github.com/sirupsen/logrus"

// Logger is the package-level structured logger. Every "log and drop" path
// named in §7 (protocol-decode errors, unknown request types, send
// failures, listener panics) goes through it; view-change evictions are not
// logged, only counted through the Recorder. A host
// application can swap it for a pre-configured *logrus.Logger (e.g. one with
// its own output/formatter/hooks) before using the package; configuring the
// logging backend itself is left to the host, per §1's scope note.
var Logger = logrus.New()

func logDrop(event string, lockName string, owner Owner, err error) {
	Logger.WithFields(logrus.Fields{
		"event":     event,
		"lock_name": lockName,
		"owner":     owner.String(),
	}).WithError(err).Warn("grouplock: dropping message")
}
