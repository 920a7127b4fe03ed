//go:build integration

// Package testdb provides database helpers for integration tests.
//
// Tests run against the database named by DATABASE_URL (or
// SCRIBE_TEST_DB_URL / SCRIBE_DATABASE_URL) and are skipped when none is
// set. The schema is migrated once per test binary and every test body runs
// inside a transaction that is rolled back afterwards:
//
//	func TestProjectStore(t *testing.T) {
//	    db := testdb.GetTestDBWithT(t)
//	    testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
//	        projects := postgres.NewPostgresProjectStore(tx, nil)
//	        ...
//	    })
//	}
package testdb
