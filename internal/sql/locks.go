package sql

// Postgres advisory lock IDs for each cluster-exclusive subsystem. It's
// important that they don't share the same value, hence placing them all in
// one place.
const (
	NATSRelayLockID int64 = iota + 179366396344335597
	PubSubRelayLockID
)
