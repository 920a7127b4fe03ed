// Package store defines the persistence contracts for projects, chapters,
// writing jobs and credit ledgers. Implementations live under
// internal/platform; a Transactor runs a function against one consistent
// set of stores.
package store
