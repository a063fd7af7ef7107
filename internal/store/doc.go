// Package store provides persistent storage for broodpress using SQLite.
//
// # Architecture
//
// Persistence is split into small interfaces:
//
//   - KeyStore: API key credential records (hash, name, permissions, usage time)
//   - ArticleStore: drafted articles and their review status
//   - AuditStore: append-only log of administrative actions
//
// SQLiteStore implements all of them in a single struct. MockStore is an
// in-memory stand-in for unit tests.
//
// # Credentials
//
// Only the SHA-256 hex digest of an API key is stored. Listing returns
// APIKeySummary values, which carry no hash at all. A revoked key stays
// revoked: SetAPIKeyActive refuses to flip an inactive record back on.
//
// # SQLite Configuration
//
// Connections are opened with:
//
//	_pragma=busy_timeout(5000)
//	_pragma=foreign_keys(1)
//	_pragma=journal_mode(WAL)   (file databases only)
//
// Use NewSQLiteStore(":memory:") for a throwaway database in tests.
//
// # Migrations
//
// Migrations are embedded and applied by EnsureSchema through golang-migrate.
// Every DDL statement uses IF NOT EXISTS so a rerun is a no-op. When several
// processes start against the same file at once, the ones that find the
// version row dirty (another connection is mid-migration) or the database
// locked back off and retry until the schema is current.
//
// # Error Handling
//
//   - ErrNotFound: requested row does not exist
//   - ErrDuplicateHash: an API key with the same hash is already stored
//   - ErrKeysExist: InsertFirstAPIKey found keys already stored
//   - ErrStatusConflict: an article was not in the expected status
package store
