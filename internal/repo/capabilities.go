package jobrepo

// Capabilities is the sealed, migration-time decision about which claim
// strategy and lock primitive the backing database supports. It is
// constructed once at startup (from a driver name or an explicit override)
// and threaded through the repository — never probed per call, replacing
// ad-hoc schema/driver detection at runtime with a single migration-time
// decision.
type Capabilities struct {
	// SkipLocked is true when `FOR UPDATE SKIP LOCKED` is supported (Postgres,
	// modern MySQL/MariaDB). When false, ClaimBatch falls back to pessimistic
	// locking, then to UPDATE-by-subquery.
	SkipLocked bool
	// ForUpdate is true when `SELECT ... FOR UPDATE` is supported at all. When
	// both this and SkipLocked are false (e.g. SQLite in tests), ClaimBatch
	// uses the UPDATE-by-subquery fallback exclusively.
	ForUpdate bool
	// AdvisoryLocks is true when pg_advisory_lock/pg_advisory_xact_lock is
	// available. The repository does not read it: WithLock always delegates
	// to the locks.Locker passed to New.
	AdvisoryLocks bool
}

// PostgresCapabilities is the capability record for a production Postgres
// deployment: every claim strategy and advisory locks are available.
func PostgresCapabilities() Capabilities {
	return Capabilities{SkipLocked: true, ForUpdate: true, AdvisoryLocks: true}
}

// SQLiteCapabilities is the capability record used by the fast in-memory
// unit test suite: SQLite supports neither SKIP LOCKED nor genuine
// cross-connection advisory locks, so the repository exercises its legacy
// UPDATE-by-subquery fallback exclusively.
func SQLiteCapabilities() Capabilities {
	return Capabilities{SkipLocked: false, ForUpdate: false, AdvisoryLocks: false}
}
